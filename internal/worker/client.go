package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"payment-engine/internal/consumers"
	"payment-engine/internal/logger"
)

// Enqueuer is the part of *asynq.Client the dispatcher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskInspector is the part of *asynq.Inspector the dispatcher needs.
type TaskInspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
}

// CallbackAuthenticator checks a callback's signature before it is queued.
type CallbackAuthenticator interface {
	AuthenticateCallback(ctx context.Context, gateway string, headers http.Header, body []byte) error
}

// Dispatcher hands callbacks and verification requests to the worker.
type Dispatcher struct {
	Client        Enqueuer
	Inspector     TaskInspector         // nil trusts every id conflict
	Authenticator CallbackAuthenticator // nil queues unauthenticated callbacks
}

func NewDispatcher(client Enqueuer, inspector TaskInspector, authenticator CallbackAuthenticator) *Dispatcher {
	return &Dispatcher{Client: client, Inspector: inspector, Authenticator: authenticator}
}

// DispatchCallback rejects badly signed callbacks synchronously and queues
// the rest.
func (d *Dispatcher) DispatchCallback(ctx context.Context, gateway string, headers http.Header, body []byte) error {
	if d.Authenticator != nil {
		if err := d.Authenticator.AuthenticateCallback(ctx, gateway, headers, body); err != nil {
			return fmt.Errorf("DispatchCallback: %w", err)
		}
	}

	payload := consumers.CallbackDTO{
		Gateway:    gateway,
		Headers:    headers,
		Body:       body,
		ReceivedAt: time.Now().UTC(),
	}
	task, err := NewApplyOutcomeTask(payload)
	if err != nil {
		return fmt.Errorf("DispatchCallback: %w", err)
	}
	return d.enqueue(ctx, "DispatchCallback", task, QueueCritical, CallbackTaskID(gateway, body), callbackOptions)
}

func (d *Dispatcher) EnqueueVerification(ctx context.Context, transactionID string) error {
	payload := consumers.VerificationDTO{TransactionID: transactionID}
	task, err := NewVerifyTask(payload)
	if err != nil {
		return fmt.Errorf("EnqueueVerification: %w", err)
	}
	return d.enqueue(ctx, "EnqueueVerification", task, QueueDefault, VerifyTaskID(transactionID), verifyOptions)
}

// enqueue queues task under id. A conflict with a task that is still going to
// run, or already succeeded, counts as success. A conflict with an archived or
// vanished task re-queues the work under a fresh id.
func (d *Dispatcher) enqueue(ctx context.Context, op string, task *asynq.Task, queue, id string, options func(id string) []asynq.Option) error {
	log := logger.FromContext(ctx)

	info, err := d.Client.EnqueueContext(ctx, task, options(id)...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		live, lookupErr := d.live(queue, id)
		if lookupErr != nil {
			return fmt.Errorf("%s: inspect %s: %w", op, id, lookupErr)
		}
		if live {
			log.Debug().Str("type", task.Type()).Str("task_id", id).Msg("Task already queued")
			return nil
		}
		log.Warn().Str("type", task.Type()).Str("task_id", id).Msg("Previous task was archived, requeueing")
		info, err = d.Client.EnqueueContext(ctx, task, options(id+":"+uuid.NewString())...)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Info().
		Str("type", task.Type()).
		Str("task_id", info.ID).
		Str("queue", info.Queue).
		Msg("Task enqueued")
	return nil
}

// live reports whether the task holding id is pending, running, waiting for a
// retry or completed.
func (d *Dispatcher) live(queue, id string) (bool, error) {
	if d.Inspector == nil {
		return true, nil
	}
	info, err := d.Inspector.GetTaskInfo(queue, id)
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.State != asynq.TaskStateArchived, nil
}

// RedisOpt accepts either a redis:// URI or a bare host:port.
func RedisOpt(redisURL string) (asynq.RedisConnOpt, error) {
	if !strings.Contains(redisURL, "://") {
		return asynq.RedisClientOpt{Addr: redisURL}, nil
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("worker.RedisOpt: %w", err)
	}
	return opt, nil
}
