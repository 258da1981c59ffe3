package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"payment-engine/internal/consumers"
	"payment-engine/internal/gateway"
	"payment-engine/internal/logger"
	"payment-engine/internal/metrics"
	"payment-engine/internal/models"
)

type Worker struct {
	Processor *consumers.PaymentProcessor
}

func NewWorker(processor *consumers.PaymentProcessor) *Worker {
	return &Worker{
		Processor: processor,
	}
}

func (w *Worker) HandleApplyOutcome(ctx context.Context, t *asynq.Task) error {
	var p consumers.CallbackDTO
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		metrics.TasksTotal.WithLabelValues(t.Type(), "malformed").Inc()
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	_, err := w.Processor.ProcessCallback(taskContext(ctx, t), p)
	return finish(t, err)
}

func (w *Worker) HandleVerify(ctx context.Context, t *asynq.Task) error {
	var p consumers.VerificationDTO
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		metrics.TasksTotal.WithLabelValues(t.Type(), "malformed").Inc()
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	err := w.Processor.ProcessVerification(taskContext(ctx, t), p)
	return finish(t, err)
}

// finish records the task result. Errors that cannot improve on retry skip it.
func finish(t *asynq.Task, err error) error {
	switch {
	case err == nil:
		metrics.TasksTotal.WithLabelValues(t.Type(), "ok").Inc()
		return nil
	case gateway.IsPermanent(err),
		errors.Is(err, models.ErrInvalidInput),
		errors.Is(err, models.ErrNotFound):
		metrics.TasksTotal.WithLabelValues(t.Type(), "rejected").Inc()
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	default:
		metrics.TasksTotal.WithLabelValues(t.Type(), "retry").Inc()
		return err
	}
}

func taskContext(ctx context.Context, t *asynq.Task) context.Context {
	l := logger.Logger.With().Str("task_type", t.Type())
	if id, ok := asynq.GetTaskID(ctx); ok {
		l = l.Str("task_id", id)
	}
	return logger.WithContext(ctx, l.Logger())
}

func NewServeMux(processor *consumers.PaymentProcessor) *asynq.ServeMux {
	worker := NewWorker(processor)
	mux := asynq.NewServeMux()

	mux.HandleFunc(TypeApplyOutcome, worker.HandleApplyOutcome)
	mux.HandleFunc(TypeVerify, worker.HandleVerify)
	return mux
}

// StartWorker blocks until the server receives a shutdown signal.
func StartWorker(redisOpt asynq.RedisConnOpt, processor *consumers.PaymentProcessor, concurrency int) error {
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				QueueCritical: 6,
				QueueDefault:  3,
			},
			Logger: asynqLogger{},
		},
	)

	if err := srv.Run(NewServeMux(processor)); err != nil {
		return fmt.Errorf("worker.StartWorker: %w", err)
	}
	return nil
}

// asynqLogger routes asynq's own logs through zerolog.
type asynqLogger struct{}

func (asynqLogger) Debug(args ...interface{}) { logger.Logger.Debug().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Info(args ...interface{})  { logger.Logger.Info().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Warn(args ...interface{})  { logger.Logger.Warn().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Error(args ...interface{}) { logger.Logger.Error().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Fatal(args ...interface{}) { logger.Logger.Fatal().Msg(fmt.Sprint(args...)) }
