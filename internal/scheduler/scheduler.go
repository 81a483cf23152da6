// Package scheduler drives periodic reminder derivation and routes fired
// triggers to the component that owns them.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/hray3182/calendard/internal/models"
	"github.com/hray3182/calendard/internal/reminder"
)

// Accounts is the registry view the driver needs.
type Accounts interface {
	ListAccounts(ctx context.Context) ([]*models.Account, error)
	ReminderStore(ctx context.Context, accountID string) (reminder.Store, error)
	PendingTasks(ctx context.Context, accountID string) (int, error)
	Lock(accountID string) func()
}

type Deriver interface {
	Derive(ctx context.Context, accountID string, store reminder.Store, clear bool) ([]*models.ReminderRecord, error)
}

// Maintenance is implemented by *trigger.Scheduler.
type Maintenance interface {
	EnsureDownload(ctx context.Context, accountID string, every time.Duration) error
	StopDownload(ctx context.Context, accountID string) error
	SetUploadPending(ctx context.Context, pending bool, every time.Duration) error
}

type Dispatcher interface {
	Fire(ctx context.Context, accountID, reminderID string) error
}

type SyncRequester interface {
	Request(accountID string, direction models.SyncDirection)
}

type Scheduler struct {
	accounts       Accounts
	deriver        Deriver
	maintenance    Maintenance
	dispatcher     Dispatcher
	syncs          SyncRequester
	checkInterval  time.Duration
	uploadInterval time.Duration
	notifyCh       chan struct{}

	mu       sync.Mutex
	pending  map[string]bool
	maintain bool
}

// New builds the driver. syncs may be nil when no remote backend is
// configured; sync triggers are then ignored.
func New(accounts Accounts, deriver Deriver, maintenance Maintenance, dispatcher Dispatcher, syncs SyncRequester, checkInterval, uploadInterval time.Duration) *Scheduler {
	return &Scheduler{
		accounts:       accounts,
		deriver:        deriver,
		maintenance:    maintenance,
		dispatcher:     dispatcher,
		syncs:          syncs,
		checkInterval:  checkInterval,
		uploadInterval: uploadInterval,
		notifyCh:       make(chan struct{}, 1),
		pending:        make(map[string]bool),
	}
}

// Notify requests a derivation for accountID. Requests queued before the
// loop picks them up are merged; clear wins.
func (s *Scheduler) Notify(accountID string, clear bool) {
	s.mu.Lock()
	s.pending[accountID] = s.pending[accountID] || clear
	s.mu.Unlock()
	s.wake()
}

// TasksQueued re-evaluates the upload trigger on the next loop iteration.
func (s *Scheduler) TasksQueued(string) {
	s.mu.Lock()
	s.maintain = true
	s.mu.Unlock()
	s.wake()
}

func (s *Scheduler) wake() {
	select {
	case s.notifyCh <- struct{}{}:
	default:
		// Channel already has a pending notification, skip
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	log.Println("Scheduler started")
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	s.check(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("Scheduler stopped")
			return
		case <-ticker.C:
			s.check(ctx)
		case <-s.notifyCh:
			s.drain(ctx)
		}
	}
}

// check derives every account and refreshes the maintenance triggers.
func (s *Scheduler) check(ctx context.Context) {
	accounts, err := s.accounts.ListAccounts(ctx)
	if err != nil {
		log.Printf("Failed to list accounts: %v", err)
		return
	}
	for _, a := range accounts {
		s.derive(ctx, a.AccountID, false)
	}
	s.Maintain(ctx)
}

func (s *Scheduler) drain(ctx context.Context) {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[string]bool)
	maintain := s.maintain
	s.maintain = false
	s.mu.Unlock()

	for accountID, clear := range pending {
		s.derive(ctx, accountID, clear)
	}
	if maintain {
		s.Maintain(ctx)
	}
}

func (s *Scheduler) derive(ctx context.Context, accountID string, clear bool) {
	unlock := s.accounts.Lock(accountID)
	defer unlock()

	store, err := s.accounts.ReminderStore(ctx, accountID)
	if err != nil {
		log.Printf("Failed to open reminder store for %s: %v", accountID, err)
		return
	}
	records, err := s.deriver.Derive(ctx, accountID, store, clear)
	if err != nil {
		log.Printf("Failed to derive reminders for %s: %v", accountID, err)
		return
	}
	log.Printf("Derived %d reminders for %s (clear=%t)", len(records), accountID, clear)
}

// Maintain keeps one download trigger per syncing network account and the
// shared upload trigger running while any of them has queued tasks.
func (s *Scheduler) Maintain(ctx context.Context) {
	accounts, err := s.accounts.ListAccounts(ctx)
	if err != nil {
		log.Printf("Failed to list accounts: %v", err)
		return
	}

	pending := false
	for _, a := range accounts {
		if !a.IsNetwork() {
			continue
		}
		if !a.SyncEnabled || !a.Direction.Has(models.SyncDownload) || a.DownloadInterval <= 0 {
			if err := s.maintenance.StopDownload(ctx, a.AccountID); err != nil {
				log.Printf("Failed to stop download trigger for %s: %v", a.AccountID, err)
			}
		} else if err := s.maintenance.EnsureDownload(ctx, a.AccountID, a.DownloadInterval); err != nil {
			log.Printf("Failed to start download trigger for %s: %v", a.AccountID, err)
		}

		if !a.SyncEnabled {
			continue
		}
		n, err := s.accounts.PendingTasks(ctx, a.AccountID)
		if err != nil {
			log.Printf("Failed to count upload tasks for %s: %v", a.AccountID, err)
			continue
		}
		if n > 0 {
			pending = true
		}
	}

	if err := s.maintenance.SetUploadPending(ctx, pending, s.uploadInterval); err != nil {
		log.Printf("Failed to update upload trigger: %v", err)
	}
}

// HandleTrigger is installed as the trigger facility handler.
func (s *Scheduler) HandleTrigger(ctx context.Context, payload models.TriggerPayload) {
	switch payload.Kind {
	case models.TriggerReminder:
		if err := s.dispatcher.Fire(ctx, payload.AccountID, payload.ReminderID); err != nil {
			log.Printf("Failed to fire reminder %s: %v", payload.ReminderID, err)
		}
	case models.TriggerDownload:
		if s.syncs != nil {
			s.syncs.Request(payload.AccountID, models.SyncDownload)
		}
	case models.TriggerUpload:
		if s.syncs != nil {
			s.requestUploads(ctx)
		}
	default:
		log.Printf("Ignoring trigger with unknown kind %d", payload.Kind)
	}
}

func (s *Scheduler) requestUploads(ctx context.Context) {
	accounts, err := s.accounts.ListAccounts(ctx)
	if err != nil {
		log.Printf("Failed to list accounts: %v", err)
		return
	}
	for _, a := range accounts {
		if !a.IsNetwork() || !a.SyncEnabled {
			continue
		}
		n, err := s.accounts.PendingTasks(ctx, a.AccountID)
		if err != nil {
			log.Printf("Failed to count upload tasks for %s: %v", a.AccountID, err)
			continue
		}
		if n > 0 {
			s.syncs.Request(a.AccountID, models.SyncUpload)
		}
	}
}

// HandleSyncResult re-derives after a run that may have replaced local
// schedules and refreshes the upload trigger.
func (s *Scheduler) HandleSyncResult(accountID string, direction models.SyncDirection, err error) {
	if err == nil && direction.Has(models.SyncDownload) {
		s.Notify(accountID, true)
	}
	s.TasksQueued(accountID)
}
