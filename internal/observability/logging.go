// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"log/slog"
	"time"
)

// AsyncOperation logs the start and end of work that outlives its request,
// such as background moderation or transcoding jobs.
type AsyncOperation struct {
	logger    *slog.Logger
	name      string
	attrs     []any
	startedAt time.Time
}

// StartAsync logs the start of operation name and returns a handle to finish it.
func StartAsync(ctx context.Context, logger *slog.Logger, name string, attrs ...any) *AsyncOperation {
	if logger == nil {
		logger = slog.Default()
	}
	op := &AsyncOperation{logger: logger, name: name, attrs: attrs, startedAt: time.Now()}
	logger.InfoContext(ctx, "async operation started", op.fields()...)
	return op
}

// Finish logs the outcome of the operation.
func (op *AsyncOperation) Finish(ctx context.Context, err error) {
	fields := append(op.fields(), slog.Duration("elapsed", time.Since(op.startedAt)))
	if err != nil {
		fields = append(fields, slog.String("error", err.Error()))
		op.logger.ErrorContext(ctx, "async operation failed", fields...)
		return
	}
	op.logger.InfoContext(ctx, "async operation completed", fields...)
}

func (op *AsyncOperation) fields() []any {
	out := make([]any, 0, len(op.attrs)+1)
	out = append(out, slog.String("operation", op.name))
	return append(out, op.attrs...)
}
