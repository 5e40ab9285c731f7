package main

import (
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"descale-qc/internal/logging"
	"descale-qc/internal/offset"
	"descale-qc/internal/scenes"
)

// logEvery is the frame interval of progress log lines when stderr is not
// a terminal.
const logEvery = 100

// progress renders frame progress as a bar on terminals and as periodic
// log lines otherwise. It observes both classifier runs and desync scans.
type progress struct {
	w        io.Writer
	desc     string
	terminal bool
	bar      *progressbar.ProgressBar
	log      *logrus.Entry
	start    time.Time
	done     int
	total    int
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func newProgress(w io.Writer, desc string, total int) *progress {
	return &progress{
		w:        w,
		desc:     desc,
		terminal: isTerminal(w) && !logging.IsDebugEnabled(),
		log:      logging.Component(desc),
		start:    time.Now(),
		total:    total,
	}
}

// newBar is created on the first update, once the total is known.
func (p *progress) newBar() *progressbar.ProgressBar {
	return progressbar.NewOptions(p.total,
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionSetDescription(p.desc),
		progressbar.OptionSetItsString("frames"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
	)
}

func (p *progress) step(done int) {
	p.done = done
	if p.terminal && p.total > 0 {
		if p.bar == nil {
			p.bar = p.newBar()
		}
		_ = p.bar.Set(done)
		return
	}
	if done%logEvery == 0 || done == p.total {
		elapsed := time.Since(p.start)
		fps := 0.0
		if elapsed > 0 {
			fps = float64(done) / elapsed.Seconds()
		}
		p.log.WithFields(logrus.Fields{
			"done":  done,
			"total": p.total,
			"fps":   int(fps),
		}).Info("progress")
	}
}

// ObserveFrame implements scenes.Observer.
func (p *progress) ObserveFrame(n, total int, _ bool) {
	p.total = total
	p.step(n + 1)
}

// ObserveScene implements scenes.Observer.
func (p *progress) ObserveScene(d scenes.SceneDecision) {
	if !logging.IsDebugEnabled() {
		return
	}
	fields := logrus.Fields{"start": d.Start, "end": d.End, "frames": d.Frames}
	for i, l := range d.Labels {
		fields[l] = d.Averages[i]
	}
	p.log.WithFields(fields).Debugf("scene accepted=%v nokernel=%v", d.Accepted, d.NoCandidate)
}

// ObservePart implements offset.Observer; progress counts parts.
func (p *progress) ObservePart(part offset.Part, parts, off int) {
	p.total = parts
	p.step(part.Index + 1)
	p.log.WithField("part", part.Index).Debugf("offset %d in [%d %d)", off, part.Start, part.End)
}

// ObserveDesync implements offset.Observer.
func (p *progress) ObserveDesync(offset.Desync) {}

func (p *progress) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
	p.log.Debugf("finished %d/%d in %v", p.done, p.total, time.Since(p.start).Round(time.Millisecond))
}

// desyncObservers fans a desync scan out to several observers.
type desyncObservers []offset.Observer

func (o desyncObservers) ObservePart(part offset.Part, parts, off int) {
	for _, obs := range o {
		obs.ObservePart(part, parts, off)
	}
}

func (o desyncObservers) ObserveDesync(d offset.Desync) {
	for _, obs := range o {
		obs.ObserveDesync(d)
	}
}
