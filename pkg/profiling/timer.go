// Package profiling adds opt-in CPU profiling and phase timing to the
// causes CLI.
package profiling

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Stopper ends a timed span.
type Stopper interface {
	Stop()
}

type span struct {
	name     string
	depth    int
	start    time.Time
	duration time.Duration
	done     bool
}

// Timings records named spans in start order. Spans started while another
// is open are nested under it. The zero value is disabled.
type Timings struct {
	mu      sync.Mutex
	enabled bool
	start   time.Time
	spans   []*span
	open    int
}

var defaultTimings = &Timings{}

// Enable turns on the global recorder.
func Enable() {
	defaultTimings.Enable()
}

// Start begins a span on the global recorder.
func Start(name string) Stopper {
	return defaultTimings.Start(name)
}

// Summarize writes the global recorder's spans to w.
func Summarize(w io.Writer) {
	defaultTimings.Summarize(w)
}

// Enable starts recording. Calling it again keeps the recorded spans.
func (t *Timings) Enable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.enabled {
		return
	}
	t.enabled = true
	t.start = time.Now()
}

// Start begins a span. It returns a no-op Stopper while disabled.
func (t *Timings) Start(name string) Stopper {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return noopStopper{}
	}
	s := &span{name: name, depth: t.open, start: time.Now()}
	t.spans = append(t.spans, s)
	t.open++
	return stopFunc(func() { t.stop(s) })
}

func (t *Timings) stop(s *span) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	s.duration = time.Since(s.start)
	t.open--
}

// Summarize prints every finished span with its share of the total time.
func (t *Timings) Summarize(w io.Writer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}

	total := time.Since(t.start)
	fmt.Fprintln(w, "\n--- Timing Profile ---")
	for _, s := range t.spans {
		if !s.done {
			continue
		}
		pct := 0.0
		if total > 0 {
			pct = float64(s.duration) / float64(total) * 100
		}
		fmt.Fprintf(w, "%*s- %s (%v, %.1f%%)\n", 2*s.depth, "", s.name, s.duration.Round(100*time.Microsecond), pct)
	}
	fmt.Fprintf(w, "total %v\n", total.Round(100*time.Microsecond))
}

type stopFunc func()

func (f stopFunc) Stop() { f() }

type noopStopper struct{}

func (noopStopper) Stop() {}
