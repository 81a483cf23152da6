package syncer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/hray3182/calendard/internal/models"
	"github.com/hray3182/calendard/internal/remote"
)

// SyncError is returned by a failed reconciliation run. State is also
// recorded on the account.
type SyncError struct {
	State models.SyncState
	Op    string
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s (%s): %v", e.Op, e.State, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

func newSyncError(op string, err error) *SyncError {
	return &SyncError{State: classify(err), Op: op, Err: err}
}

// StateOf maps any run result to the state recorded on the account.
func StateOf(err error) models.SyncState {
	if err == nil {
		return models.SyncNormal
	}
	var se *SyncError
	if errors.As(err, &se) {
		return se.State
	}
	return classify(err)
}

func classify(err error) models.SyncState {
	if errors.Is(err, remote.ErrStorageFull) {
		return models.SyncStorageFull
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.SyncNetworkAnomaly
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return models.SyncNetworkAnomaly
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return models.SyncNetworkAnomaly
	}
	return models.SyncServerException
}
