package service

import (
	"context"

	"github.com/garyjia/approval-engine/internal/domain/apperror"
	"github.com/garyjia/approval-engine/internal/domain/event"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// EffectExecutor attempts post-commit effects, best-effort
type EffectExecutor interface {
	Execute(ctx context.Context, effects []*event.Event)
}

// Metrics records process activity
type Metrics interface {
	ProcessCreated()
	StepActed(action, outcome string)
}

type noopMetrics struct{}

func (noopMetrics) ProcessCreated()                  {}
func (noopMetrics) StepActed(action, outcome string) {}

// outcomeOf labels the result of an operation for metrics: the resulting
// status on success, otherwise the error kind.
func outcomeOf(status string, err error) string {
	if err != nil {
		return string(apperror.KindOf(err))
	}
	return status
}

// logFailure logs caller rejections at info level and everything else at error level
func logFailure(logger Logger, msg string, err error, keysAndValues ...interface{}) {
	kv := append([]interface{}{"error", err}, keysAndValues...)
	if apperror.KindOf(err) == apperror.KindInternal {
		logger.Error(msg, kv...)
		return
	}
	logger.Info(msg, kv...)
}

func processIDPtr(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
