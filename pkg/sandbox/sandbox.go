// Package sandbox executes learner JavaScript and captures its console output.
package sandbox

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

const (
	// SuccessSentinel is the single log line reported when a run completes without output.
	SuccessSentinel = "Code executed successfully"
	// GenericErrorMessage is reported when a thrown value carries no usable text.
	GenericErrorMessage = "An error occurred"

	defaultTimeout      = 2 * time.Second
	defaultMaxLogLines  = 500
	defaultMaxLineBytes = 4096
)

var (
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "playground",
		Subsystem: "sandbox",
		Name:      "execution_duration_seconds",
		Help:      "Duration of sandboxed code executions",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"engine"})

	runOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "playground",
		Subsystem: "sandbox",
		Name:      "executions_total",
		Help:      "Number of sandboxed executions by outcome",
	}, []string{"engine", "outcome"})
)

// Result is the observable behaviour of one execution.
type Result struct {
	Logs      []string      `json:"logs"`
	Error     string        `json:"error,omitempty"`
	Success   bool          `json:"success"`
	TimedOut  bool          `json:"timed_out,omitempty"`
	Truncated bool          `json:"truncated,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
}

// Output joins the captured log lines the way they are stored on submissions.
func (r Result) Output() string {
	return strings.Join(r.Logs, "\n")
}

// Runner executes source text. A non-nil error is returned only for
// infrastructure failures; anything the user code does is reported in Result.
type Runner interface {
	Execute(ctx context.Context, source string) (Result, error)
}

// LineHook observes every intercepted console line after it was buffered.
type LineHook func(level, line string)

// Options tunes the limits shared by every runner implementation.
type Options struct {
	Timeout      time.Duration
	MaxLogLines  int
	MaxLineBytes int
	Hook         LineHook
	Logger       zerolog.Logger
}

func (o Options) normalised() Options {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxLogLines <= 0 {
		o.MaxLogLines = defaultMaxLogLines
	}
	if o.MaxLineBytes <= 0 {
		o.MaxLineBytes = defaultMaxLineBytes
	}
	if o.Logger.GetLevel() == zerolog.Disabled {
		o.Logger = zerolog.Nop()
	}
	if o.Hook == nil {
		o.Hook = LogHook(o.Logger)
	}
	return o
}

// LogHook writes each console line to logger at debug level.
func LogHook(logger zerolog.Logger) LineHook {
	return func(level, line string) {
		logger.Debug().Str("console", level).Msg(line)
	}
}

// ChainHooks calls every non-nil hook in order.
func ChainHooks(hooks ...LineHook) LineHook {
	return func(level, line string) {
		for _, hook := range hooks {
			if hook != nil {
				hook(level, line)
			}
		}
	}
}

// logBuffer collects console lines up to the configured limits.
type logBuffer struct {
	lines     []string
	maxLines  int
	maxBytes  int
	truncated bool
	hook      LineHook
}

func newLogBuffer(opts Options) *logBuffer {
	return &logBuffer{maxLines: opts.MaxLogLines, maxBytes: opts.MaxLineBytes, hook: opts.Hook}
}

func (b *logBuffer) append(level, line string) {
	if len(b.lines) >= b.maxLines {
		b.truncated = true
		return
	}
	if len(line) > b.maxBytes {
		line = strings.ToValidUTF8(line[:b.maxBytes], "")
		b.truncated = true
	}
	b.lines = append(b.lines, line)
	b.hook(level, line)
}

// finish turns the harness outcome into a Result, applying the success sentinel.
func finish(buffer *logBuffer, ok bool, message string, duration time.Duration) Result {
	result := Result{
		Logs:      buffer.lines,
		Truncated: buffer.truncated,
		Duration:  duration,
		Success:   ok,
	}
	if result.Logs == nil {
		result.Logs = []string{}
	}

	if ok {
		if len(result.Logs) == 0 {
			result.Logs = []string{SuccessSentinel}
		}
		return result
	}

	if strings.TrimSpace(message) == "" {
		message = GenericErrorMessage
	}
	result.Error = message
	return result
}

func timeoutResult(buffer *logBuffer, timeout, duration time.Duration) Result {
	result := finish(buffer, false, "Execution timed out after "+timeout.String(), duration)
	result.TimedOut = true
	return result
}

func recordOutcome(engine string, result Result) {
	runDuration.WithLabelValues(engine).Observe(result.Duration.Seconds())
	outcome := "success"
	switch {
	case result.TimedOut:
		outcome = "timeout"
	case !result.Success:
		outcome = "error"
	}
	runOutcomes.WithLabelValues(engine, outcome).Inc()
}
