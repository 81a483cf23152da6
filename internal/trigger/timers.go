// Package trigger registers named deferred wake-ups and maps reminder
// records onto them.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hray3182/calendard/internal/models"
)

var ErrUnknownTrigger = errors.New("trigger not defined")

// Handler receives the payload of a trigger when it fires.
type Handler func(ctx context.Context, payload models.TriggerPayload)

// DefinitionStore persists trigger definitions across restarts.
type DefinitionStore interface {
	SaveDefinition(ctx context.Context, def models.TriggerDefinition) error
	DeleteDefinitions(ctx context.Context, names []string) error
	ListDefinitions(ctx context.Context) ([]models.TriggerDefinition, error)
}

// Facility is a named trigger registry. Definitions become startable only
// after Reload.
type Facility interface {
	Define(ctx context.Context, def models.TriggerDefinition) error
	Reload(ctx context.Context) error
	Start(ctx context.Context, names ...string) error
	Stop(names ...string)
	IsActive(name string) bool
	Remove(ctx context.Context, names ...string) error
	Names(prefix string) []string
}

type stopper interface {
	Stop() bool
}

type oneShot struct {
	timer stopper
}

// Timers implements Facility with runtime timers for one-shot triggers and
// cron "@every" entries for periodic ones.
type Timers struct {
	mu        sync.Mutex
	store     DefinitionStore
	cron      *cron.Cron
	handler   Handler
	baseCtx   context.Context
	defs      map[string]models.TriggerDefinition
	oneShots  map[string]*oneShot
	periodic  map[string]cron.EntryID
	clock     func() time.Time
	afterFunc func(d time.Duration, f func()) stopper
}

func NewTimers(store DefinitionStore) *Timers {
	return &Timers{
		store:    store,
		cron:     cron.New(),
		baseCtx:  context.Background(),
		defs:     make(map[string]models.TriggerDefinition),
		oneShots: make(map[string]*oneShot),
		periodic: make(map[string]cron.EntryID),
		clock:    time.Now,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
}

// SetHandler installs the callback invoked when a trigger fires.
func (t *Timers) SetHandler(h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

// Run restores persisted triggers, starts the periodic runner and blocks
// until ctx is canceled.
func (t *Timers) Run(ctx context.Context) error {
	t.mu.Lock()
	t.baseCtx = ctx
	t.mu.Unlock()

	if err := t.Reload(ctx); err != nil {
		return fmt.Errorf("failed to load triggers: %w", err)
	}
	if err := t.Start(ctx, t.Names("")...); err != nil {
		log.Printf("Failed to restore triggers: %v", err)
	}
	t.cron.Start()
	log.Printf("Trigger facility started with %d definitions", len(t.Names("")))

	<-ctx.Done()

	t.Stop(t.Names("")...)
	<-t.cron.Stop().Done()
	return nil
}

func (t *Timers) Define(ctx context.Context, def models.TriggerDefinition) error {
	if def.RegisteredAt.IsZero() {
		def.RegisteredAt = t.clock()
	}
	if err := t.store.SaveDefinition(ctx, def); err != nil {
		return fmt.Errorf("failed to save trigger %s: %w", def.Name, err)
	}
	return nil
}

// Reload replaces the loaded definitions with the persisted ones. Running
// triggers are left untouched.
func (t *Timers) Reload(ctx context.Context) error {
	defs, err := t.store.ListDefinitions(ctx)
	if err != nil {
		return err
	}
	loaded := make(map[string]models.TriggerDefinition, len(defs))
	for _, d := range defs {
		loaded[d.Name] = d
	}

	t.mu.Lock()
	t.defs = loaded
	t.mu.Unlock()
	return nil
}

// Start (re)starts the named triggers. Each start is preceded by a stop, so
// starting an active trigger is safe.
func (t *Timers) Start(ctx context.Context, names ...string) error {
	var expired []string
	var errs []error

	t.mu.Lock()
	for _, name := range names {
		t.stopLocked(name)
		def, ok := t.defs[name]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrUnknownTrigger, name))
			continue
		}

		if def.Periodic() {
			t.periodic[name] = t.cron.Schedule(cron.Every(def.Every), cron.FuncJob(func() {
				t.fire(name, nil)
			}))
			continue
		}

		// Past when registered: never fires.
		if !def.FireAt.After(def.RegisteredAt) {
			delete(t.defs, name)
			expired = append(expired, name)
			continue
		}

		delay := def.FireAt.Sub(t.clock())
		if delay < 0 {
			delay = 0
		}
		shot := &oneShot{}
		shot.timer = t.afterFunc(delay, func() {
			t.fire(name, shot)
		})
		t.oneShots[name] = shot
	}
	t.mu.Unlock()

	if len(expired) > 0 {
		if err := t.store.DeleteDefinitions(ctx, expired); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Timers) Stop(names ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, name := range names {
		t.stopLocked(name)
	}
}

func (t *Timers) stopLocked(name string) {
	if shot, ok := t.oneShots[name]; ok {
		shot.timer.Stop()
		delete(t.oneShots, name)
	}
	if id, ok := t.periodic[name]; ok {
		t.cron.Remove(id)
		delete(t.periodic, name)
	}
}

func (t *Timers) IsActive(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, single := t.oneShots[name]
	_, periodic := t.periodic[name]
	return single || periodic
}

// Remove stops the named triggers and deletes their definitions.
func (t *Timers) Remove(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	t.mu.Lock()
	for _, name := range names {
		t.stopLocked(name)
		delete(t.defs, name)
	}
	t.mu.Unlock()
	return t.store.DeleteDefinitions(ctx, names)
}

// Names lists loaded definitions whose name starts with prefix.
func (t *Timers) Names(prefix string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var names []string
	for name := range t.defs {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (t *Timers) fire(name string, shot *oneShot) {
	t.mu.Lock()
	def, ok := t.defs[name]
	if shot != nil && t.oneShots[name] != shot {
		// Stopped or restarted after this timer was armed.
		ok = false
	}
	if !ok {
		t.mu.Unlock()
		return
	}
	if shot != nil {
		delete(t.oneShots, name)
		delete(t.defs, name)
	}
	handler, ctx := t.handler, t.baseCtx
	t.mu.Unlock()

	if shot != nil {
		if err := t.store.DeleteDefinitions(ctx, []string{name}); err != nil {
			log.Printf("Failed to delete fired trigger %s: %v", name, err)
		}
	}
	if handler != nil {
		handler(ctx, def.Payload)
	}
}
