package trigger

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hray3182/calendard/internal/metrics"
	"github.com/hray3182/calendard/internal/models"
)

const (
	namePrefix = "calendard"

	// UploadName is the single periodic trigger shared by all network accounts.
	UploadName = namePrefix + ".upload"
)

// accountKey encodes the whole account id. Hex never contains the '-'
// separator, so no account prefix is a prefix of another account's names.
func accountKey(accountID string) string {
	return hex.EncodeToString([]byte(accountID))
}

// AccountPrefix is the name prefix of every reminder trigger of an account.
func AccountPrefix(accountID string) string {
	return fmt.Sprintf("%s-%s-", namePrefix, accountKey(accountID))
}

// Name is the trigger name of a reminder at a given snooze count.
func Name(accountID, reminderID string, snoozeCount int) string {
	return fmt.Sprintf("%s%s-%d", AccountPrefix(accountID), reminderID, snoozeCount)
}

func DownloadName(accountID string) string {
	return fmt.Sprintf("%s.download-%s", namePrefix, accountKey(accountID))
}

// Scheduler maps reminder records and maintenance cadences onto a Facility.
type Scheduler struct {
	mu       sync.Mutex
	facility Facility
	metrics  metrics.Sink
	clock    func() time.Time
}

func NewScheduler(facility Facility, sink metrics.Sink) *Scheduler {
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	return &Scheduler{facility: facility, metrics: sink, clock: time.Now}
}

// Reconcile makes the account's registered triggers match the records whose
// fire time is still ahead: stale triggers are removed, missing ones are
// defined in one batch, reloaded, then started.
func (s *Scheduler) Reconcile(ctx context.Context, accountID string, records []*models.ReminderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	desired := make(map[string]*models.ReminderRecord)
	for _, rec := range records {
		if !rec.RemindAt.After(now) {
			continue
		}
		desired[Name(accountID, rec.ReminderID, rec.SnoozeCount)] = rec
	}

	have := make(map[string]bool)
	var stale []string
	for _, name := range s.facility.Names(AccountPrefix(accountID)) {
		if _, ok := desired[name]; ok {
			have[name] = true
		} else {
			stale = append(stale, name)
		}
	}
	if len(stale) > 0 {
		if err := s.facility.Remove(ctx, stale...); err != nil {
			return fmt.Errorf("failed to remove stale triggers: %w", err)
		}
		s.metrics.TriggersCanceled(len(stale))
	}

	var fresh []string
	for name, rec := range desired {
		if have[name] && s.facility.IsActive(name) {
			rec.TriggerName = name
			continue
		}
		if err := s.facility.Define(ctx, reminderDefinition(name, rec, now)); err != nil {
			return err
		}
		fresh = append(fresh, name)
	}
	if len(fresh) == 0 {
		return nil
	}
	sort.Strings(fresh)

	if err := s.facility.Reload(ctx); err != nil {
		return fmt.Errorf("failed to reload triggers: %w", err)
	}
	if err := s.facility.Start(ctx, fresh...); err != nil {
		return fmt.Errorf("failed to start triggers: %w", err)
	}
	for _, name := range fresh {
		desired[name].TriggerName = name
	}
	s.metrics.TriggersRegistered(len(fresh))
	return nil
}

// Register defines and starts the trigger for one record and stores the
// name on it.
func (s *Scheduler) Register(ctx context.Context, rec *models.ReminderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := Name(rec.AccountID, rec.ReminderID, rec.SnoozeCount)
	if err := s.facility.Define(ctx, reminderDefinition(name, rec, s.clock())); err != nil {
		return err
	}
	if err := s.facility.Reload(ctx); err != nil {
		return fmt.Errorf("failed to reload triggers: %w", err)
	}
	if err := s.facility.Start(ctx, name); err != nil {
		return fmt.Errorf("failed to start trigger %s: %w", name, err)
	}
	rec.TriggerName = name
	s.metrics.TriggersRegistered(1)
	return nil
}

// CancelSingle removes the trigger the record was last registered under.
func (s *Scheduler) CancelSingle(ctx context.Context, rec *models.ReminderRecord) error {
	if rec.TriggerName == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.facility.Remove(ctx, rec.TriggerName); err != nil {
		return fmt.Errorf("failed to cancel trigger %s: %w", rec.TriggerName, err)
	}
	s.metrics.TriggersCanceled(1)
	return nil
}

// CancelAll removes every reminder trigger of the account.
func (s *Scheduler) CancelAll(ctx context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := s.facility.Names(AccountPrefix(accountID))
	if err := s.facility.Remove(ctx, names...); err != nil {
		return fmt.Errorf("failed to cancel triggers of %s: %w", accountID, err)
	}
	if len(names) > 0 {
		s.metrics.TriggersCanceled(len(names))
	}
	return nil
}

// EnsureDownload starts the periodic download trigger of a network account
// unless it already runs.
func (s *Scheduler) EnsureDownload(ctx context.Context, accountID string, every time.Duration) error {
	return s.ensurePeriodic(ctx, DownloadName(accountID), every, models.TriggerPayload{
		Kind:      models.TriggerDownload,
		AccountID: accountID,
	})
}

func (s *Scheduler) StopDownload(ctx context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.facility.Remove(ctx, DownloadName(accountID))
}

// SetUploadPending keeps the shared upload trigger running exactly while
// some network account has queued tasks.
func (s *Scheduler) SetUploadPending(ctx context.Context, pending bool, every time.Duration) error {
	if pending {
		return s.ensurePeriodic(ctx, UploadName, every, models.TriggerPayload{Kind: models.TriggerUpload})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.facility.IsActive(UploadName) && len(s.facility.Names(UploadName)) == 0 {
		return nil
	}
	return s.facility.Remove(ctx, UploadName)
}

func (s *Scheduler) ensurePeriodic(ctx context.Context, name string, every time.Duration, payload models.TriggerPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.facility.IsActive(name) {
		return nil
	}
	def := models.TriggerDefinition{Name: name, Every: every, Payload: payload, RegisteredAt: s.clock()}
	if err := s.facility.Define(ctx, def); err != nil {
		return err
	}
	if err := s.facility.Reload(ctx); err != nil {
		return fmt.Errorf("failed to reload triggers: %w", err)
	}
	if err := s.facility.Start(ctx, name); err != nil {
		return fmt.Errorf("failed to start trigger %s: %w", name, err)
	}
	s.metrics.TriggersRegistered(1)
	return nil
}

func reminderDefinition(name string, rec *models.ReminderRecord, now time.Time) models.TriggerDefinition {
	return models.TriggerDefinition{
		Name:   name,
		FireAt: rec.RemindAt,
		Payload: models.TriggerPayload{
			Kind:       models.TriggerReminder,
			AccountID:  rec.AccountID,
			ReminderID: rec.ReminderID,
		},
		RegisteredAt: now,
	}
}
