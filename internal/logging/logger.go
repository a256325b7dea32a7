package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

var levels = map[string]int{
	"debug": 0,
	"info":  1,
	"warn":  2,
	"error": 3,
}

// Logger provides leveled structured logging
type Logger struct {
	level  int
	format string

	mu     *sync.Mutex
	output io.Writer
	fields map[string]interface{}
}

// NewLogger creates a new logger writing to stdout, stderr or a file path
func NewLogger(level, format, output string) *Logger {
	var w io.Writer
	switch output {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		file, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Printf("Failed to open log file %s: %v, using stdout", output, err)
			w = os.Stdout
		} else {
			w = file
		}
	}
	return NewLoggerWithWriter(level, format, w)
}

// NewLoggerWithWriter creates a logger writing to w
func NewLoggerWithWriter(level, format string, w io.Writer) *Logger {
	lvl, ok := levels[level]
	if !ok {
		lvl = levels["info"]
	}
	return &Logger{
		level:  lvl,
		format: format,
		mu:     &sync.Mutex{},
		output: w,
	}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return NewLoggerWithWriter("error", "text", io.Discard)
}

// With returns a child logger that adds fields to every entry
func (l *Logger) With(fields map[string]interface{}) *Logger {
	if l == nil {
		return nil
	}
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{
		level:  l.level,
		format: l.format,
		mu:     l.mu,
		output: l.output,
		fields: merged,
	}
}

// LogEntry represents a log entry
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func (l *Logger) log(level, message string, fields map[string]interface{}) {
	if l == nil {
		return
	}
	if levels[level] < l.level {
		return
	}

	all := fields
	if len(l.fields) > 0 {
		all = make(map[string]interface{}, len(l.fields)+len(fields))
		for k, v := range l.fields {
			all[k] = v
		}
		for k, v := range fields {
			all[k] = v
		}
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Message:   message,
		Fields:    all,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.format == "json" {
		data, err := json.Marshal(entry)
		if err != nil {
			fmt.Fprintf(l.output, "[%s] %s: %s (unencodable fields: %v)\n", entry.Timestamp, level, message, err)
			return
		}
		fmt.Fprintln(l.output, string(data))
		return
	}

	fieldStr := ""
	if len(all) > 0 {
		fieldStr = fmt.Sprintf(" %+v", all)
	}
	fmt.Fprintf(l.output, "[%s] %s: %s%s\n", entry.Timestamp, level, message, fieldStr)
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields map[string]interface{}) {
	l.log("debug", message, fields)
}

// Info logs an info message
func (l *Logger) Info(message string, fields map[string]interface{}) {
	l.log("info", message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields map[string]interface{}) {
	l.log("warn", message, fields)
}

// Error logs an error message
func (l *Logger) Error(message string, err error, fields map[string]interface{}) {
	merged := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		merged[k] = v
	}
	if err != nil {
		merged["error"] = err.Error()
	}
	l.log("error", message, merged)
}
