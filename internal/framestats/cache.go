package framestats

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/crypto/blake2b"

	"descale-qc/internal/logging"
)

// CacheKey identifies the statistics of one source file under one set of
// candidates and analysis parameters. The file is identified by absolute
// path, size and modification time rather than content, which would mean
// hashing gigabytes of video.
func CacheKey(source string, labels []string, params ...string) (string, error) {
	abs, err := filepath.Abs(source)
	if err != nil {
		return "", err
	}
	st, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	write := func(s string) {
		h.Write([]byte(strconv.Itoa(len(s))))
		h.Write([]byte{':'})
		h.Write([]byte(s))
	}
	write(abs)
	write(strconv.FormatInt(st.Size(), 10))
	write(strconv.FormatInt(st.ModTime().UnixNano(), 10))
	for _, l := range labels {
		write(l)
	}
	write("--")
	for _, p := range params {
		write(p)
	}
	return hex.EncodeToString(h.Sum(nil)[:16]), nil
}

// CachePath is the statistics file for key inside dir.
func CachePath(dir, key string) string {
	return filepath.Join(dir, key+".csv")
}

// LoadCached reads the cached table for key, or returns nil when there is
// no cache entry.
func LoadCached(dir, key string) (*Table, error) {
	path := CachePath(dir, key)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logging.Info("Using cached frame statistics %s (%d frames)", path, t.Len())
	return t, nil
}
