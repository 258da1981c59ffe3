package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-engine/internal/consumers"
	"payment-engine/internal/gateway"
	"payment-engine/internal/handlers"
	"payment-engine/internal/models"
	"payment-engine/internal/repository"
	"payment-engine/internal/services"
)

type enqueued struct {
	task *asynq.Task
	opts []asynq.Option
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	seen  map[string]bool
	tasks []enqueued
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	id := taskID(opts)
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[id] {
		return nil, asynq.ErrTaskIDConflict
	}
	f.seen[id] = true
	f.tasks = append(f.tasks, enqueued{task: task, opts: opts})
	return &asynq.TaskInfo{ID: id, Queue: queueName(opts), Type: task.Type()}, nil
}

func taskID(opts []asynq.Option) string {
	for _, o := range opts {
		if o.Type() == asynq.TaskIDOpt {
			return o.Value().(string)
		}
	}
	return ""
}

// fakeInspector reports task states by id. Unknown ids are not found.
type fakeInspector struct {
	mu     sync.Mutex
	states map[string]asynq.TaskState
	err    error
}

func (f *fakeInspector) set(id string, state asynq.TaskState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.states == nil {
		f.states = make(map[string]asynq.TaskState)
	}
	f.states[id] = state
}

func (f *fakeInspector) GetTaskInfo(queue, id string) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	state, ok := f.states[id]
	if !ok {
		return nil, fmt.Errorf("asynq: %w", asynq.ErrTaskNotFound)
	}
	return &asynq.TaskInfo{ID: id, Queue: queue, State: state}, nil
}

func queueName(opts []asynq.Option) string {
	for _, o := range opts {
		if o.Type() == asynq.QueueOpt {
			return o.Value().(string)
		}
	}
	return ""
}

func TestDispatchCallbackCollapsesDuplicates(t *testing.T) {
	q := &fakeEnqueuer{}
	d := NewDispatcher(q, nil, nil)
	body := []byte(`{"reference":"SBX-1","status":"success"}`)

	require.NoError(t, d.DispatchCallback(context.Background(), "sandbox", http.Header{}, body))
	require.NoError(t, d.DispatchCallback(context.Background(), "sandbox", http.Header{}, body))
	require.NoError(t, d.DispatchCallback(context.Background(), "sandbox", http.Header{}, []byte(`{"reference":"SBX-2","status":"success"}`)))

	require.Len(t, q.tasks, 2)
	first := q.tasks[0]
	assert.Equal(t, TypeApplyOutcome, first.task.Type())
	assert.Equal(t, CallbackTaskID("sandbox", body), taskID(first.opts))
	assert.Equal(t, QueueCritical, queueName(first.opts))

	var payload consumers.CallbackDTO
	require.NoError(t, json.Unmarshal(first.task.Payload(), &payload))
	assert.Equal(t, "sandbox", payload.Gateway)
	assert.Equal(t, body, payload.Body)
}

func TestCallbackTaskIDIsPerGateway(t *testing.T) {
	body := []byte(`{}`)
	assert.Equal(t, CallbackTaskID("paystack", body), CallbackTaskID("paystack", body))
	assert.NotEqual(t, CallbackTaskID("paystack", body), CallbackTaskID("korapay", body))
}

func TestEnqueueVerification(t *testing.T) {
	q := &fakeEnqueuer{}
	d := NewDispatcher(q, nil, nil)

	require.NoError(t, d.EnqueueVerification(context.Background(), "tx-1"))
	require.NoError(t, d.EnqueueVerification(context.Background(), "tx-1"))

	require.Len(t, q.tasks, 1)
	assert.Equal(t, TypeVerify, q.tasks[0].task.Type())
	assert.Equal(t, VerifyTaskID("tx-1"), taskID(q.tasks[0].opts))
}

func TestEnqueueVerificationAfterArchivedTask(t *testing.T) {
	q := &fakeEnqueuer{}
	inspector := &fakeInspector{}
	d := NewDispatcher(q, inspector, nil)
	ctx := context.Background()

	require.NoError(t, d.EnqueueVerification(ctx, "tx-1"))
	inspector.set(VerifyTaskID("tx-1"), asynq.TaskStatePending)
	require.NoError(t, d.EnqueueVerification(ctx, "tx-1"))
	require.Len(t, q.tasks, 1)

	// the first poll exhausted its retries
	inspector.set(VerifyTaskID("tx-1"), asynq.TaskStateArchived)
	require.NoError(t, d.EnqueueVerification(ctx, "tx-1"))
	require.Len(t, q.tasks, 2)

	requeued := q.tasks[1]
	assert.Equal(t, TypeVerify, requeued.task.Type())
	assert.True(t, strings.HasPrefix(taskID(requeued.opts), VerifyTaskID("tx-1")+":"))
	assert.Equal(t, QueueDefault, queueName(requeued.opts))
}

func TestDispatchCallbackConflicts(t *testing.T) {
	body := []byte(`{"reference":"SBX-1","status":"success"}`)
	id := CallbackTaskID("sandbox", body)

	tests := []struct {
		name     string
		state    *asynq.TaskState
		wantSent int
	}{
		{name: "completed task absorbs redelivery", state: statePtr(asynq.TaskStateCompleted), wantSent: 1},
		{name: "retrying task absorbs redelivery", state: statePtr(asynq.TaskStateRetry), wantSent: 1},
		{name: "archived task is requeued", state: statePtr(asynq.TaskStateArchived), wantSent: 2},
		{name: "vanished task is requeued", wantSent: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeEnqueuer{}
			inspector := &fakeInspector{}
			d := NewDispatcher(q, inspector, nil)

			require.NoError(t, d.DispatchCallback(context.Background(), "sandbox", http.Header{}, body))
			if tt.state != nil {
				inspector.set(id, *tt.state)
			}
			require.NoError(t, d.DispatchCallback(context.Background(), "sandbox", http.Header{}, body))
			require.Len(t, q.tasks, tt.wantSent)
			if tt.wantSent == 2 {
				assert.NotEqual(t, id, taskID(q.tasks[1].opts))
				assert.Equal(t, QueueCritical, queueName(q.tasks[1].opts))
			}
		})
	}
}

func TestDispatchCallbackInspectorFailure(t *testing.T) {
	body := []byte(`{}`)
	q := &fakeEnqueuer{}
	inspector := &fakeInspector{}
	d := NewDispatcher(q, inspector, nil)

	require.NoError(t, d.DispatchCallback(context.Background(), "sandbox", http.Header{}, body))
	inspector.err = errors.New("redis down")
	err := d.DispatchCallback(context.Background(), "sandbox", http.Header{}, body)
	assert.Error(t, err)
	assert.Len(t, q.tasks, 1)
}

func statePtr(s asynq.TaskState) *asynq.TaskState { return &s }

func TestDispatchSurfacesQueueErrors(t *testing.T) {
	q := &fakeEnqueuer{err: errors.New("redis down")}
	err := NewDispatcher(q, nil, nil).DispatchCallback(context.Background(), "sandbox", http.Header{}, []byte(`{}`))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, asynq.ErrTaskIDConflict)
}

func TestRedisOpt(t *testing.T) {
	opt, err := RedisOpt("localhost:6379")
	require.NoError(t, err)
	assert.Equal(t, asynq.RedisClientOpt{Addr: "localhost:6379"}, opt)

	opt, err = RedisOpt("redis://localhost:6380/2")
	require.NoError(t, err)
	client, ok := opt.(asynq.RedisClientOpt)
	require.True(t, ok)
	assert.Equal(t, "localhost:6380", client.Addr)
	assert.Equal(t, 2, client.DB)
}

func newTestWorker(t *testing.T) (*Worker, *repository.MemoryStore, *services.TransactionService) {
	t.Helper()
	store := repository.NewMemoryStore()
	registry := gateway.NewRegistry(gateway.NewSandbox("secret"))
	svc := services.NewTransactionService(store, registry, nil, nil, time.Second)
	return NewWorker(consumers.NewPaymentProcessor(svc)), store, svc
}

func processing(t *testing.T, svc *services.TransactionService, reference string) *models.Transaction {
	t.Helper()
	tx, _, err := svc.CreateTransaction(context.Background(), services.CreateTransactionInput{
		Reference:  reference,
		UserID:     "7",
		PropertyID: "42",
		Amount:     decimal.NewFromInt(250000),
		Currency:   models.CurrencyNGN,
		Type:       models.TypeInstallment,
		Method:     models.MethodBankTransfer,
		Gateway:    gateway.SandboxName,
	})
	require.NoError(t, err)
	tx, err = svc.InitializeGatewaySession(context.Background(), tx.ID)
	require.NoError(t, err)
	return tx
}

func callbackTask(t *testing.T, body []byte, signature string) *asynq.Task {
	t.Helper()
	headers := http.Header{}
	headers.Set("x-sandbox-signature", signature)
	task, err := NewApplyOutcomeTask(consumers.CallbackDTO{Gateway: gateway.SandboxName, Headers: headers, Body: body})
	require.NoError(t, err)
	return task
}

func TestHandleApplyOutcome(t *testing.T) {
	w, store, svc := newTestWorker(t)
	tx := processing(t, svc, "PROP-42-W1")

	body := []byte(`{"reference":"SBX-PROP-42-W1","status":"success"}`)
	require.NoError(t, w.HandleApplyOutcome(context.Background(), callbackTask(t, body, gateway.SignSandbox("secret", body))))

	got, err := store.GetByID(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
}

func TestHandleApplyOutcomeSkipsRetryOnBadSignature(t *testing.T) {
	w, _, svc := newTestWorker(t)
	processing(t, svc, "PROP-42-W2")

	body := []byte(`{"reference":"SBX-PROP-42-W2","status":"success"}`)
	err := w.HandleApplyOutcome(context.Background(), callbackTask(t, body, "forged"))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleApplyOutcomeMalformedPayload(t *testing.T) {
	w, _, _ := newTestWorker(t)
	err := w.HandleApplyOutcome(context.Background(), asynq.NewTask(TypeApplyOutcome, []byte("not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleVerify(t *testing.T) {
	w, store, svc := newTestWorker(t)
	tx := processing(t, svc, "PROP-42-W3")

	task, err := NewVerifyTask(consumers.VerificationDTO{TransactionID: tx.ID})
	require.NoError(t, err)
	require.NoError(t, w.HandleVerify(context.Background(), task))

	got, err := store.GetByID(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
}

func TestHandleVerifyMissingSkipsRetry(t *testing.T) {
	w, _, _ := newTestWorker(t)
	task, err := NewVerifyTask(consumers.VerificationDTO{TransactionID: "missing"})
	require.NoError(t, err)
	assert.ErrorIs(t, w.HandleVerify(context.Background(), task), asynq.SkipRetry)
}

func TestServeMuxRoutesTaskTypes(t *testing.T) {
	_, _, svc := newTestWorker(t)
	mux := NewServeMux(consumers.NewPaymentProcessor(svc))

	h, pattern := mux.Handler(asynq.NewTask(TypeVerify, nil))
	assert.NotNil(t, h)
	assert.Equal(t, TypeVerify, pattern)
}

func TestDispatchCallbackAuthenticatesBeforeQueueing(t *testing.T) {
	_, _, svc := newTestWorker(t)
	q := &fakeEnqueuer{}
	d := NewDispatcher(q, &fakeInspector{}, svc)
	ctx := context.Background()

	body := []byte(`{"reference":"SBX-PROP-42-W4","status":"success"}`)
	headers := http.Header{}
	headers.Set("x-sandbox-signature", "forged")
	err := d.DispatchCallback(ctx, gateway.SandboxName, headers, body)
	assert.True(t, gateway.IsPermanent(err))
	assert.Empty(t, q.tasks)

	headers.Set("x-sandbox-signature", gateway.SignSandbox("secret", body))
	require.NoError(t, d.DispatchCallback(ctx, gateway.SandboxName, headers, body))
	assert.Len(t, q.tasks, 1)
}

func TestQueuedWebhookRejectsForgedSignature(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, store, svc := newTestWorker(t)
	q := &fakeEnqueuer{}
	router := handlers.NewRouter(
		handlers.NewTransactionHandler(svc, nil, nil),
		handlers.NewWebhookHandler(svc.Gateways, NewDispatcher(q, &fakeInspector{}, svc)),
	)

	body := []byte(`{"reference":"SBX-PROP-42-W5","status":"success"}`)
	send := func(signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/sandbox", strings.NewReader(string(body)))
		req.Header.Set("x-sandbox-signature", signature)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusBadRequest, send("forged").Code)
	assert.Empty(t, q.tasks)
	logs := store.Callbacks()
	require.Len(t, logs, 1)
	assert.Equal(t, models.CallbackRejected, logs[0].Disposition)

	assert.Equal(t, http.StatusOK, send(gateway.SignSandbox("secret", body)).Code)
	assert.Len(t, q.tasks, 1)
}
