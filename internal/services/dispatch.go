package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"

	"github.com/Lllllllleong/translationquoteflow/internal/models"
)

// ErrQueueClosed is returned by Dispatch after Shutdown.
var ErrQueueClosed = errors.New("analysis queue is shutting down")

// Dispatcher hands an analysis request to a background runner and returns
// without waiting for it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req models.AnalyzeRequest) error
}

type executionCreator interface {
	CreateExecution(ctx context.Context, req *executionspb.CreateExecutionRequest, opts ...gax.CallOption) (*executionspb.Execution, error)
}

// executionRetry retries execution creation on transient API errors.
var executionRetry = gax.WithRetry(func() gax.Retryer {
	return gax.OnCodes([]codes.Code{codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded}, gax.Backoff{
		Initial:    500 * time.Millisecond,
		Max:        8 * time.Second,
		Multiplier: 2,
	})
})

// WorkflowDispatcher starts a Cloud Workflows execution per request. The
// workflow calls the analysis worker with the request as its argument.
type WorkflowDispatcher struct {
	client executionCreator
	parent string
}

// NewWorkflowDispatcher targets projects/{project}/locations/{location}/workflows/{id}.
func NewWorkflowDispatcher(client executionCreator, projectID, location, workflowID string) *WorkflowDispatcher {
	return &WorkflowDispatcher{
		client: client,
		parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", projectID, location, workflowID),
	}
}

func (d *WorkflowDispatcher) Dispatch(ctx context.Context, req models.AnalyzeRequest) error {
	payloadBytes, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	exec, err := d.client.CreateExecution(ctx, &executionspb.CreateExecutionRequest{
		Parent: d.parent,
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}, executionRetry)
	if err != nil {
		return fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	slog.Info("Workflow execution started.", "quoteId", req.QuoteID, "runId", req.RunID, "execution", exec.GetName())
	return nil
}

// Runner performs an analysis synchronously. *Analyzer implements it.
type Runner interface {
	Process(ctx context.Context, req models.AnalyzeRequest) (*models.AnalyzeResponse, error)
}

// QueueOption configures a QueueDispatcher.
type QueueOption func(*QueueDispatcher)

func WithWorkers(n int) QueueOption {
	return func(q *QueueDispatcher) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) QueueOption {
	return func(q *QueueDispatcher) {
		if n > 0 {
			q.ch = make(chan models.AnalyzeRequest, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) QueueOption {
	return func(q *QueueDispatcher) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithCompletion registers a callback run after each request finishes.
func WithCompletion(fn func(models.AnalyzeRequest, *models.AnalyzeResponse, error)) QueueOption {
	return func(q *QueueDispatcher) { q.onDone = fn }
}

// QueueDispatcher runs analysis requests on in-process workers.
type QueueDispatcher struct {
	runner  Runner
	logger  *slog.Logger
	workers int
	timeout time.Duration
	onDone  func(models.AnalyzeRequest, *models.AnalyzeResponse, error)

	ch chan models.AnalyzeRequest
	wg sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewQueueDispatcher starts the workers immediately.
func NewQueueDispatcher(runner Runner, logger *slog.Logger, opts ...QueueOption) *QueueDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	q := &QueueDispatcher{
		runner:  runner,
		logger:  logger,
		workers: 2,
		timeout: 10 * time.Minute,
		ch:      make(chan models.AnalyzeRequest, 256),
	}
	for _, o := range opts {
		o(q)
	}
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(i + 1)
	}
	return q
}

func (q *QueueDispatcher) work(workerID int) {
	defer q.wg.Done()
	q.logger.Info("Analysis worker started.", "workerId", workerID)
	for req := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		resp, err := q.runner.Process(ctx, req)
		cancel()

		if err != nil {
			q.logger.Error("Queued analysis failed.", "workerId", workerID, "quoteId", req.QuoteID, "error", err)
		} else {
			q.logger.Info("Queued analysis finished.", "workerId", workerID, "quoteId", req.QuoteID, "files", len(resp.Files))
		}
		if q.onDone != nil {
			q.onDone(req, resp, err)
		}
	}
	q.logger.Info("Analysis worker stopped.", "workerId", workerID)
}

// Dispatch enqueues req. When the queue is full it blocks until there is room
// or ctx is done.
func (q *QueueDispatcher) Dispatch(ctx context.Context, req models.AnalyzeRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- req:
		q.logger.Info("Queued analysis.", "quoteId", req.QuoteID, "runId", req.RunID, "force", req.Force)
		return nil
	default:
	}
	q.logger.Warn("Analysis queue full, applying backpressure.", "quoteId", req.QuoteID)
	select {
	case q.ch <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting work and waits for queued requests to drain.
func (q *QueueDispatcher) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("Queue shutdown interrupted.")
	case <-done:
		q.logger.Info("Analysis queue drained.")
	}
}
