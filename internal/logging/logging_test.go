package logging

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected LogLevel
	}{
		{name: "debug", value: "debug", expected: LevelDebug},
		{name: "info", value: "info", expected: LevelInfo},
		{name: "warn", value: "warn", expected: LevelWarn},
		{name: "warning alias", value: "warning", expected: LevelWarn},
		{name: "error", value: "error", expected: LevelError},
		{name: "case insensitive", value: "DEBUG", expected: LevelDebug},
		{name: "surrounding spaces", value: "  error ", expected: LevelError},
		{name: "empty defaults to info", value: "", expected: LevelInfo},
		{name: "garbage defaults to info", value: "loud", expected: LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.value))
		})
	}
}

func TestLogLevelOrdering(t *testing.T) {
	levels := []LogLevel{LevelDebug, LevelInfo, LevelWarn, LevelError}
	for i := 0; i < len(levels)-1; i++ {
		assert.Less(t, levels[i], levels[i+1])
	}
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
		{LogLevel(99), "unknown(99)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.level.String())
		})
	}
}

func TestSetLevelFiltersOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})

	SetLevel(LevelWarn)
	Debug("hidden debug %d", 1)
	Info("hidden info %d", 2)
	Warn("shown warn %d", 3)
	Error("shown error %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown warn 3")
	assert.Contains(t, out, "shown error 4")
	assert.False(t, IsDebugEnabled())

	buf.Reset()
	SetLevel(LevelDebug)
	Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
	assert.True(t, IsDebugEnabled())
}

func TestComponentAddsField(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stderr) })
	SetLevel(LevelInfo)

	Component("arbiter").Info("scene closed")
	WithFields(logrus.Fields{"frame": 120}).Info("boundary")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "component=arbiter")
	assert.Contains(t, lines[1], "frame=120")
}
