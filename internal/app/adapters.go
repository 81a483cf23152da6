package app

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/hray3182/calendard/internal/calendar"
	"github.com/hray3182/calendard/internal/notify"
	"github.com/hray3182/calendard/internal/reminder"
	"github.com/hray3182/calendard/internal/scheduler"
)

// notifyStores and schedulerAccounts narrow the calendar service to the
// store interfaces of the dispatcher and the driver.
type notifyStores struct {
	*calendar.Service
}

func (s notifyStores) ReminderStore(ctx context.Context, accountID string) (notify.Store, error) {
	store, err := s.AccountStore(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return store, nil
}

type schedulerAccounts struct {
	*calendar.Service
}

func (s schedulerAccounts) ReminderStore(ctx context.Context, accountID string) (reminder.Store, error) {
	store, err := s.AccountStore(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// rederiver breaks the construction cycle between the dispatcher and the
// driver.
type rederiver struct {
	sched *scheduler.Scheduler
}

func (r *rederiver) Notify(accountID string, clear bool) {
	r.sched.Notify(accountID, clear)
}

// logNotifier stands in for the bot when no Telegram token is configured.
type logNotifier struct {
	next atomic.Int64
}

func (n *logNotifier) Show(ctx context.Context, note notify.Notification) (int, error) {
	id := int(n.next.Add(1))
	log.Printf("[reminder] %s (%s) %s", note.Title, note.AccountID, note.Body)
	return id, nil
}

func (n *logNotifier) Close(ctx context.Context, notifyID int) error {
	return nil
}
