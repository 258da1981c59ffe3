package worker

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"payment-engine/internal/consumers"
)

// Task Types
const (
	TypeApplyOutcome = "transaction:apply-outcome"
	TypeVerify       = "transaction:verify"
)

// Queues
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
)

// Completed callback tasks are retained so that gateway redeliveries of the
// same body collapse onto the finished task. Archived tasks never absorb a
// redelivery; see Dispatcher.enqueue.
const callbackRetention = 24 * time.Hour

// Task Creators

func NewApplyOutcomeTask(payload consumers.CallbackDTO) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeApplyOutcome, data), nil
}

func NewVerifyTask(payload consumers.VerificationDTO) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeVerify, data), nil
}

// CallbackTaskID is stable for identical deliveries from one gateway.
func CallbackTaskID(gateway string, body []byte) string {
	sum := sha256.Sum256(body)
	return "callback:" + gateway + ":" + hex.EncodeToString(sum[:])
}

func VerifyTaskID(transactionID string) string {
	return "verify:" + transactionID
}

func callbackOptions(id string) []asynq.Option {
	return []asynq.Option{
		asynq.TaskID(id),
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(10),
		asynq.Retention(callbackRetention),
	}
}

func verifyOptions(id string) []asynq.Option {
	return []asynq.Option{
		asynq.TaskID(id),
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(3),
		asynq.Timeout(time.Minute),
	}
}
