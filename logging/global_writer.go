package logging

import (
	"io"
	"os"
	"sync/atomic"
)

// sink is the stderr side of every logger built by this package. Loggers
// hold the sink itself, so redirecting it reaches loggers that already exist.
type sink struct {
	target atomic.Pointer[io.Writer]
}

func newSink(w io.Writer) *sink {
	s := &sink{}
	s.swap(w)
	return s
}

func (s *sink) Write(p []byte) (int, error) {
	return (*s.target.Load()).Write(p)
}

func (s *sink) swap(w io.Writer) io.Writer {
	if w == nil {
		w = io.Discard
	}
	prev := s.target.Swap(&w)
	if prev == nil {
		return nil
	}
	return *prev
}

var stderrSink = newSink(os.Stderr)

// SetGlobalOutput redirects the stderr sink shared by every logger and
// returns the writer it replaced. A nil writer discards output.
func SetGlobalOutput(w io.Writer) io.Writer {
	return stderrSink.swap(w)
}

// GetGlobalOutput returns the shared stderr sink.
func GetGlobalOutput() io.Writer {
	return stderrSink
}
