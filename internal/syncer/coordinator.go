package syncer

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/hray3182/calendard/internal/models"
)

const DefaultDebounce = 200 * time.Millisecond

// Runner performs one reconciliation run.
type Runner interface {
	Run(ctx context.Context, accountID string, direction models.SyncDirection) error
}

// StateChange is published after every run.
type StateChange struct {
	AccountID string
	Direction models.SyncDirection
	State     models.SyncState
	Err       error
}

// Coordinator serializes runs per account. Requests that arrive within the
// debounce window, or while a run is in progress, are merged into the next
// run with their directions OR-ed together.
type Coordinator struct {
	mu       sync.Mutex
	runner   Runner
	debounce time.Duration
	workers  map[string]*worker
	subs     map[int]chan StateChange
	nextSub  int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type worker struct {
	pending models.SyncDirection
	wake    chan struct{}
}

func NewCoordinator(runner Runner, debounce time.Duration) *Coordinator {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		runner:   runner,
		debounce: debounce,
		workers:  make(map[string]*worker),
		subs:     make(map[int]chan StateChange),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Request schedules a run for accountID and returns immediately.
func (c *Coordinator) Request(accountID string, direction models.SyncDirection) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx.Err() != nil {
		return
	}

	w, ok := c.workers[accountID]
	if !ok {
		w = &worker{wake: make(chan struct{}, 1)}
		c.workers[accountID] = w
		c.wg.Add(1)
		go c.loop(accountID, w)
	}
	w.pending |= direction

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Subscribe returns a channel of state changes and a function that
// unsubscribes. Slow subscribers miss updates rather than block runs.
func (c *Coordinator) Subscribe() (<-chan StateChange, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan StateChange, 16)
	c.subs[id] = ch

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

// Stop cancels pending work and waits for running syncs to return.
func (c *Coordinator) Stop() {
	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) loop(accountID string, w *worker) {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-w.wake:
		}

		timer := time.NewTimer(c.debounce)
		select {
		case <-c.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		c.mu.Lock()
		direction := w.pending
		w.pending = 0
		c.mu.Unlock()

		if direction == 0 {
			continue
		}

		err := c.runner.Run(c.ctx, accountID, direction)
		if err != nil {
			log.Printf("[syncer] sync %s (%s) failed: %v", accountID, direction, err)
		}
		c.publish(StateChange{
			AccountID: accountID,
			Direction: direction,
			State:     StateOf(err),
			Err:       err,
		})
	}
}

func (c *Coordinator) publish(change StateChange) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range c.subs {
		select {
		case ch <- change:
		default:
		}
	}
}
