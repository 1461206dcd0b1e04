// Package logx provides leveled component logging.
//
// Loggers carry their own options instead of consulting process-wide state:
// verbosity, output writer and debug domains are fixed when the logger is
// built and inherited by every Child logger.
package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is the severity of a log line.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

const timestampFormat = "2006-01-02T15:04:05.000Z"

// bannerWidth matches the width of the section separators printed around rounds.
const bannerWidth = 70

// sink serializes writes from all loggers that share an output.
type sink struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *sink) writeLine(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = io.WriteString(s.w, line)
}

// Logger writes `[timestamp] [component] LEVEL: message` lines.
type Logger struct {
	component string
	out       *sink
	verbose   bool
	domains   map[string]bool // nil enables every domain
}

// Option configures a Logger.
type Option func(*Logger)

// WithVerbose enables Debug output.
func WithVerbose(verbose bool) Option {
	return func(l *Logger) {
		l.verbose = verbose
	}
}

// WithWriter redirects output (stderr by default).
func WithWriter(w io.Writer) Option {
	return func(l *Logger) {
		if w != nil {
			l.out = &sink{w: w}
		}
	}
}

// WithDomains restricts DebugDomain output to the named domains.
func WithDomains(domains ...string) Option {
	return func(l *Logger) {
		if len(domains) == 0 {
			l.domains = nil
			return
		}
		l.domains = make(map[string]bool, len(domains))
		for _, d := range domains {
			if d = strings.TrimSpace(d); d != "" {
				l.domains[d] = true
			}
		}
	}
}

// NewLogger creates a logger for the named component.
func NewLogger(component string, opts ...Option) *Logger {
	l := &Logger{
		component: component,
		out:       &sink{w: os.Stderr},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return NewLogger("nop", WithWriter(io.Discard))
}

// Child returns a logger for another component sharing this logger's options.
func (l *Logger) Child(component string) *Logger {
	return &Logger{
		component: component,
		out:       l.out,
		verbose:   l.verbose,
		domains:   l.domains,
	}
}

// Component returns the component name printed in each line.
func (l *Logger) Component() string {
	return l.component
}

// Verbose reports whether Debug output is enabled.
func (l *Logger) Verbose() bool {
	return l.verbose
}

// Writer exposes the underlying output for callers that stream raw text.
func (l *Logger) Writer() io.Writer {
	return l.out.w
}

func (l *Logger) log(level Level, format string, args ...any) {
	timestamp := time.Now().UTC().Format(timestampFormat)
	message := fmt.Sprintf(format, args...)
	l.out.writeLine(fmt.Sprintf("[%s] [%s] %s: %s\n", timestamp, l.component, level, message))
}

func (l *Logger) Debug(format string, args ...any) {
	if !l.verbose {
		return
	}
	l.log(LevelDebug, format, args...)
}

// DebugDomain logs a debug line tagged with a domain, subject to domain filtering.
func (l *Logger) DebugDomain(domain, format string, args ...any) {
	if !l.verbose {
		return
	}
	if l.domains != nil && !l.domains[domain] {
		return
	}
	l.log(LevelDebug, "[%s] %s", domain, fmt.Sprintf(format, args...))
}

// DebugState logs a state transition.
func (l *Logger) DebugState(action, state string, extra ...string) {
	extraInfo := ""
	if len(extra) > 0 {
		extraInfo = fmt.Sprintf(" - %s", extra[0])
	}
	l.Debug("State %s: %s%s", action, state, extraInfo)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// Printf writes unprefixed console text, used for banners and summaries.
func (l *Logger) Printf(format string, args ...any) {
	l.out.writeLine(fmt.Sprintf(format, args...))
}

// Section prints a titled banner block.
func (l *Logger) Section(title string) {
	rule := strings.Repeat("=", bannerWidth)
	l.out.writeLine(fmt.Sprintf("%s\n%s\n%s\n", rule, title, rule))
}

// Rule prints a single separator line.
func (l *Logger) Rule() {
	l.out.writeLine(strings.Repeat("=", bannerWidth) + "\n")
}

// DebugBlock prints a titled block only when verbose, used for prompts and raw responses.
func (l *Logger) DebugBlock(title, body string) {
	if !l.verbose {
		return
	}
	l.Section(fmt.Sprintf("[%s] %s", l.component, title))
	l.out.writeLine(body + "\n")
	l.Rule()
}

// Errorf logs and returns the formatted error.
func (l *Logger) Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	l.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err.Error() and returns fmt.Errorf("%s: %w", msg, err).
//
//	if err != nil { return logger.Wrap(err, "open history db") }
func (l *Logger) Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrappedErr := fmt.Errorf("%s: %w", msg, err)
	l.Error("%s", wrappedErr.Error())
	return wrappedErr
}
