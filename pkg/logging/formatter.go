// Package logging holds the human-readable log formatter and the logger
// setup shared by the command line tools.
package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// fieldPriority orders the fields an operator scans for first.
var fieldPriority = map[string]int{
	"tx_hash":    1,
	"sender":     2,
	"nonce":      3,
	"attempt_id": 4,
	"error":      5,
}

// ColoredJSONFormatter prints one colored line per entry: time, level and
// message first, then the fields as key=value with JSON encoded values.
type ColoredJSONFormatter struct {
	// Include timestamp in the output
	TimestampFormat string
	// Customize field sorting
	SortingFunc func([]string) []string
	// Disable colors when not in terminal
	DisableColors bool
}

func NewColoredJSONFormatter() *ColoredJSONFormatter {
	return &ColoredJSONFormatter{
		TimestampFormat: time.RFC3339,
		SortingFunc:     defaultFieldSorting,
	}
}

func (f *ColoredJSONFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	if f.SortingFunc != nil {
		keys = f.SortingFunc(keys)
	} else {
		sort.Strings(keys)
	}

	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}

	levelPaint := f.paint(levelColor(entry.Level))
	timeColor := f.paint(color.New(color.FgYellow))
	keyColor := f.paint(color.New(color.FgCyan))
	importantColor := f.paint(color.New(color.FgGreen))
	valueColor := f.paint(color.New(color.FgWhite))

	timestampFormat := f.TimestampFormat
	if timestampFormat == "" {
		timestampFormat = time.RFC3339
	}

	b.WriteString(timeColor.Sprint(entry.Time.Format(timestampFormat)))
	b.WriteByte(' ')
	b.WriteString(levelPaint.Sprintf("%-7s", strings.ToUpper(entry.Level.String())))
	b.WriteByte(' ')
	b.WriteString(levelPaint.Sprint(entry.Message))

	for _, k := range keys {
		b.WriteByte(' ')
		kc := keyColor
		if isImportantField(k) {
			kc = importantColor
		}
		b.WriteString(kc.Sprintf("%s=", k))
		b.WriteString(valueColor.Sprint(formatValue(entry.Data[k])))
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func (f *ColoredJSONFormatter) paint(c *color.Color) *color.Color {
	if f.DisableColors {
		c.DisableColor()
	}
	return c
}

func formatValue(v interface{}) string {
	switch v := v.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case error:
		return fmt.Sprintf("%q", v.Error())
	case fmt.Stringer:
		return fmt.Sprintf("%q", v.String())
	default:
		jsonBytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(jsonBytes)
	}
}

func levelColor(level logrus.Level) *color.Color {
	switch level {
	case logrus.DebugLevel, logrus.TraceLevel:
		return color.New(color.FgBlue)
	case logrus.InfoLevel:
		return color.New(color.FgGreen)
	case logrus.WarnLevel:
		return color.New(color.FgYellow)
	case logrus.ErrorLevel:
		return color.New(color.FgRed)
	case logrus.FatalLevel, logrus.PanicLevel:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgWhite)
	}
}

func isImportantField(field string) bool {
	switch field {
	case "tx_hash", "sender", "nonce", "error":
		return true
	}
	return false
}

func defaultFieldSorting(keys []string) []string {
	sort.Slice(keys, func(i, j int) bool {
		iPriority := fieldPriority[keys[i]]
		jPriority := fieldPriority[keys[j]]
		if iPriority != 0 && jPriority != 0 {
			return iPriority < jPriority
		}
		if iPriority != 0 {
			return true
		}
		if jPriority != 0 {
			return false
		}
		return keys[i] < keys[j]
	})
	return keys
}

// NewLogger builds the process logger. JSON output is the default; pretty
// switches to ColoredJSONFormatter. An unparsable level falls back to info
// with a warning.
func NewLogger(level string, pretty bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if pretty {
		log.SetFormatter(NewColoredJSONFormatter())
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	if parsed, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(parsed)
	} else {
		log.SetLevel(logrus.InfoLevel)
		log.WithFields(logrus.Fields{
			"attempted_level": level,
			"default_level":   "INFO",
		}).Warn("Invalid log level specified, defaulting to INFO")
	}
	return log
}
