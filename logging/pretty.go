package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

type notice struct {
	glyph string
	style lipgloss.Style
}

var (
	successNotice = notice{"✓", lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)}
	warnNotice    = notice{"⚠", lipgloss.NewStyle().Foreground(lipgloss.Color("11"))}
	errorNotice   = notice{"✗", lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)}

	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	pathStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Italic(true)
)

// PrettyLogger prints human-facing CLI output. It never goes through the
// structured loggers, so --json and log settings leave it alone.
type PrettyLogger struct {
	out io.Writer
}

// NewPrettyLogger creates a PrettyLogger writing to stderr.
func NewPrettyLogger() *PrettyLogger {
	return &PrettyLogger{out: os.Stderr}
}

// WithWriter redirects the output.
func (p *PrettyLogger) WithWriter(w io.Writer) *PrettyLogger {
	p.out = w
	return p
}

func (p *PrettyLogger) say(n notice, message string) {
	fmt.Fprintln(p.out, n.style.Render(n.glyph), n.style.Render(message))
}

func (p *PrettyLogger) pair(key string, value string, style lipgloss.Style) {
	fmt.Fprintf(p.out, "%s: %s\n", keyStyle.Render(key), style.Render(value))
}

func (p *PrettyLogger) Success(message string) { p.say(successNotice, message) }

func (p *PrettyLogger) WarnPretty(message string) { p.say(warnNotice, message) }

// ErrorPretty prints message followed by err, when there is one.
func (p *PrettyLogger) ErrorPretty(message string, err error) {
	if err != nil {
		message += ": " + err.Error()
	}
	p.say(errorNotice, message)
}

func (p *PrettyLogger) Field(key string, value interface{}) {
	p.pair(key, fmt.Sprint(value), valueStyle)
}

func (p *PrettyLogger) Path(label, path string) {
	p.pair(label, path, pathStyle)
}
