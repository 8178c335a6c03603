package logging

import (
	"bytes"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
)

const timestampLayout = "2006-01-02 15:04:05"

var componentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)

var levelLabels = map[logrus.Level]string{
	logrus.PanicLevel: "PANIC",
	logrus.FatalLevel: "FATAL",
	logrus.ErrorLevel: "ERROR",
	logrus.WarnLevel:  "WARN",
	logrus.InfoLevel:  "INFO",
	logrus.DebugLevel: "DEBUG",
	logrus.TraceLevel: "TRACE",
}

// TextFormatter renders one line per entry:
//
//	2026-01-02 03:04:05 [INFO] [livesync] message key=value
type TextFormatter struct {
	Config FormatConfig
}

// Format implements logrus.Formatter.
func (f *TextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}

	if !f.Config.DisableTimestamp {
		b.WriteString(entry.Time.Format(timestampLayout))
		b.WriteByte(' ')
	}
	b.WriteByte('[')
	b.WriteString(levelLabel(entry.Level))
	b.WriteByte(']')

	if !f.Config.DisableComponent {
		if component, ok := entry.Data[componentField]; ok {
			fmt.Fprintf(b, " [%s]", componentStyle.Render(fmt.Sprint(component)))
		}
	}
	if entry.HasCaller() {
		fmt.Fprintf(b, " [%s:%d %s]",
			filepath.Base(entry.Caller.File), entry.Caller.Line, filepath.Base(entry.Caller.Function))
	}

	b.WriteByte(' ')
	b.WriteString(entry.Message)
	writeFields(b, entry.Data)
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func levelLabel(level logrus.Level) string {
	if label, ok := levelLabels[level]; ok {
		return label
	}
	return strings.ToUpper(level.String())
}

// writeFields appends key=value pairs sorted by key, skipping the component.
func writeFields(b *bytes.Buffer, data logrus.Fields) {
	keys := make([]string, 0, len(data))
	for k := range data {
		if k != componentField {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fieldValue(data[k]))
	}
}

func fieldValue(v interface{}) string {
	var s string
	switch val := v.(type) {
	case error:
		s = val.Error()
	case string:
		s = val
	default:
		s = fmt.Sprint(val)
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
