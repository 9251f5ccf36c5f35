package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Lllllllleong/translationquoteflow/internal/models"
)

// ErrTimedOut is returned when polling gives up before every file is terminal.
var ErrTimedOut = errors.New("could not retrieve a final status before the attempt budget ran out")

// PollState is the aggregate status of the tracked files of a quote.
type PollState string

const (
	PollPending    PollState = "pending"
	PollProcessing PollState = "processing"
	PollSucceeded  PollState = "succeeded"
	PollFailed     PollState = "failed"
	PollTimedOut   PollState = "timed_out"
)

// Done reports whether polling stops in this state.
func (s PollState) Done() bool {
	return s == PollSucceeded || s == PollFailed || s == PollTimedOut
}

// Default poller settings.
const (
	DefaultPollInterval    = 8 * time.Second
	DefaultPollMaxAttempts = 15
)

// Poller is the status state machine for one quote. It never reads or writes
// storage itself: each Tick is fed one observation of the file rows.
type Poller struct {
	quoteID     string
	tracked     []string
	maxAttempts int

	state    PollState
	attempts int
	files    []models.QuoteFile
}

// NewPoller tracks the named files of a quote, or all of them when none are
// named. Repeated and empty names are dropped. maxAttempts below 1 means
// DefaultPollMaxAttempts.
func NewPoller(quoteID string, fileNames []string, maxAttempts int) *Poller {
	if maxAttempts < 1 {
		maxAttempts = DefaultPollMaxAttempts
	}
	tracked := make([]string, 0, len(fileNames))
	for _, name := range fileNames {
		if name != "" && !slices.Contains(tracked, name) {
			tracked = append(tracked, name)
		}
	}
	return &Poller{
		quoteID:     quoteID,
		tracked:     tracked,
		maxAttempts: maxAttempts,
		state:       PollPending,
	}
}

func (p *Poller) State() PollState          { return p.state }
func (p *Poller) Attempts() int             { return p.attempts }
func (p *Poller) Files() []models.QuoteFile { return p.files }

// Tick applies one observation. A failed fetch uses up an attempt and keeps
// the previous state. Ticks after a final state are ignored.
func (p *Poller) Tick(rows []models.QuoteFile, fetchErr error) PollState {
	if p.state.Done() {
		return p.state
	}
	p.attempts++

	if fetchErr == nil {
		p.files = p.trackedRows(rows)
		p.state = aggregate(p.files, len(p.expected(rows)))
	}
	if !p.state.Done() && p.attempts >= p.maxAttempts {
		p.state = PollTimedOut
	}
	return p.state
}

func (p *Poller) expected(rows []models.QuoteFile) []string {
	if len(p.tracked) > 0 {
		return p.tracked
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.FileName)
	}
	return names
}

func (p *Poller) trackedRows(rows []models.QuoteFile) []models.QuoteFile {
	if len(p.tracked) == 0 {
		return rows
	}
	out := make([]models.QuoteFile, 0, len(p.tracked))
	for _, r := range rows {
		if slices.Contains(p.tracked, r.FileName) {
			out = append(out, r)
		}
	}
	return out
}

// aggregate folds file statuses into a quote state. A tracked file with no
// row yet counts as pending.
func aggregate(rows []models.QuoteFile, expected int) PollState {
	if expected == 0 {
		return PollPending
	}
	terminal, failed, processing := 0, 0, 0
	for _, r := range rows {
		switch r.Status {
		case models.StatusSuccess:
			terminal++
		case models.StatusError:
			terminal++
			failed++
		case models.StatusProcessing:
			processing++
		}
	}
	switch {
	case terminal == expected && failed > 0:
		return PollFailed
	case terminal == expected:
		return PollSucceeded
	case processing > 0 || terminal > 0:
		return PollProcessing
	}
	return PollPending
}

// Snapshot is the aggregate state of rows as observed right now.
func Snapshot(rows []models.QuoteFile) PollState {
	return aggregate(rows, len(rows))
}

// StatusSource reads the current file rows of a quote. store.Repository
// implements it.
type StatusSource interface {
	ListFiles(ctx context.Context, quoteID string) ([]models.QuoteFile, error)
}

// PollResult is the outcome of a finished polling loop.
type PollResult struct {
	QuoteID  string             `json:"quote_id"`
	State    PollState          `json:"state"`
	Attempts int                `json:"attempts"`
	Files    []models.QuoteFile `json:"files"`
}

// Watch runs p until it reaches a final state, waiting interval between
// fetches. Fetches are read-only. onTick, when set, sees every observation.
// A timeout returns the result together with ErrTimedOut.
func Watch(ctx context.Context, src StatusSource, clock Clock, p *Poller, interval time.Duration, onTick func(PollState, []models.QuoteFile)) (*PollResult, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	logCtx := slog.With("quoteId", p.quoteID)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := src.ListFiles(ctx, p.quoteID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logCtx.Warn("Status fetch failed.", "attempt", p.attempts+1, "error", err)
		}
		state := p.Tick(rows, err)
		if onTick != nil {
			onTick(state, p.Files())
		}
		if state.Done() {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-clock.After(interval):
		}
	}

	res := &PollResult{QuoteID: p.quoteID, State: p.state, Attempts: p.attempts, Files: p.files}
	if p.state == PollTimedOut {
		logCtx.Warn("Polling gave up.", "attempts", p.attempts)
		return res, fmt.Errorf("quote %s: %w", p.quoteID, ErrTimedOut)
	}
	logCtx.Info("Polling finished.", "state", p.state, "attempts", p.attempts)
	return res, nil
}

// PollRegistry keeps at most one polling loop per quote. Starting a loop for
// a quote cancels the one already running.
type PollRegistry struct {
	src         StatusSource
	clock       Clock
	interval    time.Duration
	maxAttempts int

	mu      sync.Mutex
	loops   map[string]*pollLoop
	nextGen uint64
	wg      sync.WaitGroup
}

type pollLoop struct {
	gen    uint64
	cancel context.CancelFunc
}

// NewPollRegistry creates a registry whose loops read from src.
func NewPollRegistry(src StatusSource, clock Clock, interval time.Duration, maxAttempts int) *PollRegistry {
	if clock == nil {
		clock = SystemClock
	}
	return &PollRegistry{
		src:         src,
		clock:       clock,
		interval:    interval,
		maxAttempts: maxAttempts,
		loops:       make(map[string]*pollLoop),
	}
}

// Start begins polling quoteID in the background and calls done with the
// result unless the loop is cancelled first, by Stop or by a newer Start.
func (r *PollRegistry) Start(quoteID string, fileNames []string, done func(*PollResult, error)) {
	ctx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	if prev, ok := r.loops[quoteID]; ok {
		prev.cancel()
	}
	r.nextGen++
	loop := &pollLoop{gen: r.nextGen, cancel: cancel}
	r.loops[quoteID] = loop
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer r.release(quoteID, loop.gen)

		p := NewPoller(quoteID, fileNames, r.maxAttempts)
		res, err := Watch(ctx, r.src, r.clock, p, r.interval, nil)
		if ctx.Err() != nil {
			slog.Info("Polling loop replaced or stopped.", "quoteId", quoteID)
			return
		}
		if done != nil {
			done(res, err)
		}
	}()
}

func (r *PollRegistry) release(quoteID string, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if loop, ok := r.loops[quoteID]; ok && loop.gen == gen {
		loop.cancel()
		delete(r.loops, quoteID)
	}
}

// Stop cancels the loop for quoteID, if any.
func (r *PollRegistry) Stop(quoteID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if loop, ok := r.loops[quoteID]; ok {
		loop.cancel()
		delete(r.loops, quoteID)
	}
}

// Active reports whether a loop is running for quoteID.
func (r *PollRegistry) Active(quoteID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.loops[quoteID]
	return ok
}

// Shutdown cancels every loop and waits for them to exit.
func (r *PollRegistry) Shutdown() {
	r.mu.Lock()
	for id, loop := range r.loops {
		loop.cancel()
		delete(r.loops, id)
	}
	r.mu.Unlock()
	r.wg.Wait()
}
