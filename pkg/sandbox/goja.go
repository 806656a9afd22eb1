package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	engineGoja        = "goja"
	maxCallStackDepth = 1024
)

var harnessProgram = goja.MustCompile("harness.js", harnessSource, false)

// GojaRunner runs code in a fresh in-process goja runtime per execution.
type GojaRunner struct {
	opts   Options
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewGojaRunner constructs the default in-process runner.
func NewGojaRunner(opts Options) *GojaRunner {
	opts = opts.normalised()
	return &GojaRunner{
		opts:   opts,
		tracer: otel.Tracer("github.com/noah-isme/script-playground-api/pkg/sandbox"),
		logger: opts.Logger.With().Str("component", "goja_runner").Logger(),
	}
}

// Execute compiles source as a function body and invokes it synchronously.
func (r *GojaRunner) Execute(parent context.Context, source string) (result Result, err error) {
	ctx, span := r.tracer.Start(parent, "sandbox.goja.execute", trace.WithAttributes(
		attribute.Int("source.bytes", len(source)),
	))
	defer span.End()

	runCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	vm := goja.New()
	vm.SetMaxCallStackSize(maxCallStackDepth)
	stop := context.AfterFunc(runCtx, func() {
		vm.Interrupt(runCtx.Err())
	})
	defer stop()

	buffer := newLogBuffer(r.opts)
	start := time.Now()

	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("sandbox panic: %v", recovered)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.logger.Error().Interface("panic", recovered).Msg("goja runtime panicked")
			result = Result{}
		}
	}()

	harness, err := vm.RunProgram(harnessProgram)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, fmt.Errorf("load harness: %w", err)
	}
	run, ok := goja.AssertFunction(harness)
	if !ok {
		return Result{}, errors.New("harness did not evaluate to a function")
	}

	outcome, runErr := run(goja.Undefined(), vm.ToValue(source), vm.ToValue(buffer.append))
	duration := time.Since(start)

	if runErr != nil {
		var interrupted *goja.InterruptedError
		var overflow *goja.StackOverflowError
		var exception *goja.Exception
		switch {
		case errors.As(runErr, &interrupted):
			if parent.Err() != nil {
				result = finish(buffer, false, "Execution cancelled", duration)
				recordOutcome(engineGoja, result)
				return result, parent.Err()
			}
			result = timeoutResult(buffer, r.opts.Timeout, duration)
			span.SetStatus(codes.Error, "execution timed out")
		case errors.As(runErr, &overflow):
			result = finish(buffer, false, "Maximum call stack size exceeded", duration)
		case errors.As(runErr, &exception):
			result = finish(buffer, false, exception.Value().String(), duration)
		default:
			span.RecordError(runErr)
			span.SetStatus(codes.Error, runErr.Error())
			return Result{}, fmt.Errorf("run harness: %w", runErr)
		}
		recordOutcome(engineGoja, result)
		return result, nil
	}

	report := outcome.ToObject(vm)
	result = finish(buffer, report.Get("ok").ToBoolean(), report.Get("error").String(), duration)
	span.SetAttributes(
		attribute.Bool("sandbox.success", result.Success),
		attribute.Int("sandbox.log_lines", len(result.Logs)),
	)
	recordOutcome(engineGoja, result)
	return result, nil
}
