// Package logging provides structured logging with session stage tracking.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// contextKey is used for storing logger in context.
type contextKey struct{}

// Logger wraps slog.Logger with session-specific functionality.
type Logger struct {
	*slog.Logger
	session   string
	startTime time.Time
	stageNum  int
}

// StageError represents an error that occurred during a session stage.
type StageError struct {
	Session  string
	Stage    string
	StageNum int
	Op       string
	Err      error
	Stack    string
}

func (e *StageError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("[%s] stage %d (%s) %s: %v", e.Session, e.StageNum, e.Stage, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] stage %d (%s): %v", e.Session, e.StageNum, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Format implements fmt.Formatter for detailed error output.
func (e *StageError) Format(f fmt.State, verb rune) {
	switch verb {
	case 'v':
		if f.Flag('+') {
			fmt.Fprintf(f, "%s\n\nStack trace:\n%s", e.Error(), e.Stack)
			return
		}
		fallthrough
	default:
		fmt.Fprint(f, e.Error())
	}
}

// New creates a new Logger writing to stdout.
func New(jsonFormat bool) *Logger {
	return NewWithWriter(os.Stdout, jsonFormat)
}

// NewWithWriter creates a new Logger with the specified output and format.
// Interactive binaries pass stderr so log lines stay out of the prompt stream.
func NewWithWriter(w io.Writer, jsonFormat bool) *Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{Key: "ts", Value: slog.StringValue(a.Value.Time().Format("2006-01-02 15:04:05.000"))}
			}
			return a
		},
	}
	if jsonFormat {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// Default returns the default logger.
func Default() *Logger {
	return New(false)
}

// With returns a new Logger with the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger:    l.Logger.With(args...),
		session:   l.session,
		startTime: l.startTime,
		stageNum:  l.stageNum,
	}
}

// WithContext returns a new context with the logger attached.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext retrieves the logger from context, or returns default logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(contextKey{}).(*Logger); ok {
		return l
	}
	return Default()
}

// StartSession creates a new logger for a session.
func (l *Logger) StartSession(sessionName string, attrs ...any) *Logger {
	newLogger := &Logger{
		Logger:    l.Logger.With(append([]any{"session", sessionName}, attrs...)...),
		session:   sessionName,
		startTime: time.Now(),
		stageNum:  0,
	}
	newLogger.Info("session started")
	return newLogger
}

// Stage logs a session stage and returns a function to log stage completion.
func (l *Logger) Stage(stageName string, attrs ...any) func(error) {
	l.stageNum++
	stageStart := time.Now()
	stageLogger := l.With(append([]any{"stage", stageName, "stage_num", l.stageNum}, attrs...)...)
	stageLogger.Info("stage started")

	return func(err error) {
		elapsed := time.Since(stageStart)
		if err != nil {
			stageLogger.Error("stage failed",
				"error", err.Error(),
				"elapsed_ms", elapsed.Milliseconds(),
			)
		} else {
			stageLogger.Info("stage completed",
				"elapsed_ms", elapsed.Milliseconds(),
			)
		}
	}
}

// StageInfo logs a stage with additional info message.
func (l *Logger) StageInfo(stageName string, msg string, attrs ...any) {
	l.stageNum++
	l.With(append([]any{"stage", stageName, "stage_num", l.stageNum}, attrs...)...).Info(msg)
}

// EndSession logs session completion.
func (l *Logger) EndSession(err error) {
	elapsed := time.Since(l.startTime)
	if err != nil {
		l.Error("session failed",
			"error", err.Error(),
			"elapsed_ms", elapsed.Milliseconds(),
			"total_stages", l.stageNum,
		)
	} else {
		l.Info("session completed",
			"elapsed_ms", elapsed.Milliseconds(),
			"total_stages", l.stageNum,
		)
	}
}

// WrapError wraps an error with session context and stack trace.
func (l *Logger) WrapError(stage, op string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{
		Session:  l.session,
		Stage:    stage,
		StageNum: l.stageNum,
		Op:       op,
		Err:      err,
		Stack:    captureStack(2),
	}
}

// captureStack captures the current stack trace, skipping the specified number of frames.
func captureStack(skip int) string {
	var pcs [32]uintptr
	n := runtime.Callers(skip+1, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var sb strings.Builder
	for {
		frame, more := frames.Next()
		// Skip runtime and testing frames
		if strings.Contains(frame.File, "runtime/") {
			if !more {
				break
			}
			continue
		}
		fmt.Fprintf(&sb, "  %s\n    %s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return sb.String()
}

// Attrs is a helper to create attribute slices.
func Attrs(keyValues ...any) []any {
	return keyValues
}
