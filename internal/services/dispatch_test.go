package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/translationquoteflow/internal/models"
)

type fakeExecutions struct {
	req  *executionspb.CreateExecutionRequest
	opts []gax.CallOption
	err  error
}

func (f *fakeExecutions) CreateExecution(_ context.Context, req *executionspb.CreateExecutionRequest, opts ...gax.CallOption) (*executionspb.Execution, error) {
	f.req = req
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &executionspb.Execution{Name: req.Parent + "/executions/1"}, nil
}

func TestWorkflowDispatcher_Dispatch(t *testing.T) {
	fake := &fakeExecutions{}
	d := NewWorkflowDispatcher(fake, "proj", "us-central1", "quote-analysis")

	req := models.AnalyzeRequest{QuoteID: "CS00001", FileNames: []string{"a.pdf"}, RunID: "run-1"}
	require.NoError(t, d.Dispatch(context.Background(), req))

	require.NotNil(t, fake.req)
	assert.Equal(t, "projects/proj/locations/us-central1/workflows/quote-analysis", fake.req.Parent)
	var got models.AnalyzeRequest
	require.NoError(t, json.Unmarshal([]byte(fake.req.Execution.Argument), &got))
	assert.Equal(t, req, got)
	assert.Len(t, fake.opts, 1, "creation carries a retry policy")
}

func TestWorkflowDispatcher_Error(t *testing.T) {
	d := NewWorkflowDispatcher(&fakeExecutions{err: errBoom}, "proj", "us-central1", "wf")
	err := d.Dispatch(context.Background(), models.AnalyzeRequest{QuoteID: "CS00001"})
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "failed to trigger workflow execution")
}

// fakeRunner records requests and can hold each one until released.
type fakeRunner struct {
	mu      sync.Mutex
	seen    []models.AnalyzeRequest
	started chan string
	release chan struct{}
}

func (r *fakeRunner) Process(ctx context.Context, req models.AnalyzeRequest) (*models.AnalyzeResponse, error) {
	r.mu.Lock()
	r.seen = append(r.seen, req)
	r.mu.Unlock()
	if r.started != nil {
		r.started <- req.QuoteID
	}
	if r.release != nil {
		<-r.release
	}
	if _, ok := ctx.Deadline(); !ok {
		return nil, errBoom
	}
	return &models.AnalyzeResponse{QuoteID: req.QuoteID}, nil
}

func TestQueueDispatcher_RunsRequests(t *testing.T) {
	runner := &fakeRunner{}
	var mu sync.Mutex
	var finished []string
	q := NewQueueDispatcher(runner, nil, WithWorkers(3), WithProcessTimeout(time.Minute),
		WithCompletion(func(req models.AnalyzeRequest, resp *models.AnalyzeResponse, err error) {
			assert.NoError(t, err, "each run gets a deadline")
			assert.Equal(t, req.QuoteID, resp.QuoteID)
			mu.Lock()
			finished = append(finished, req.QuoteID)
			mu.Unlock()
		}))

	ctx := context.Background()
	for _, id := range []string{"CS00001", "CS00002", "CS00003", "CS00004"} {
		require.NoError(t, q.Dispatch(ctx, models.AnalyzeRequest{QuoteID: id}))
	}
	q.Shutdown(ctx)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"CS00001", "CS00002", "CS00003", "CS00004"}, finished)
	assert.ErrorIs(t, q.Dispatch(ctx, models.AnalyzeRequest{QuoteID: "CS00005"}), ErrQueueClosed)
}

func TestQueueDispatcher_Backpressure(t *testing.T) {
	runner := &fakeRunner{started: make(chan string, 4), release: make(chan struct{})}
	q := NewQueueDispatcher(runner, nil, WithWorkers(1), WithQueueSize(1))

	ctx := context.Background()
	require.NoError(t, q.Dispatch(ctx, models.AnalyzeRequest{QuoteID: "CS00001"}))
	assert.Equal(t, "CS00001", <-runner.started)
	require.NoError(t, q.Dispatch(ctx, models.AnalyzeRequest{QuoteID: "CS00002"}))

	full, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := q.Dispatch(full, models.AnalyzeRequest{QuoteID: "CS00003"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(runner.release)
	q.Shutdown(ctx)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Len(t, runner.seen, 2)
	assert.Equal(t, "CS00002", runner.seen[1].QuoteID)
}
