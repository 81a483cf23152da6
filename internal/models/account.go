package models

import (
	"strings"
	"time"
)

type AccountType int

const (
	AccountLocal AccountType = iota
	AccountNetwork
)

type SyncState int

const (
	SyncNormal SyncState = iota
	SyncNetworkAnomaly
	SyncStorageFull
	SyncServerException
)

func (s SyncState) String() string {
	switch s {
	case SyncNormal:
		return "normal"
	case SyncNetworkAnomaly:
		return "network_anomaly"
	case SyncStorageFull:
		return "storage_full"
	case SyncServerException:
		return "server_exception"
	}
	return "unknown"
}

// SyncDirection is a bitmask so that concurrent requests can be OR-ed.
type SyncDirection uint8

const (
	SyncUpload SyncDirection = 1 << iota
	SyncDownload

	SyncBoth = SyncUpload | SyncDownload
)

func (d SyncDirection) Has(flag SyncDirection) bool {
	return d&flag != 0
}

func (d SyncDirection) String() string {
	var parts []string
	if d.Has(SyncUpload) {
		parts = append(parts, "upload")
	}
	if d.Has(SyncDownload) {
		parts = append(parts, "download")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// ParseSyncDirection accepts "upload", "download" or "both"; anything else
// falls back to both.
func ParseSyncDirection(s string) SyncDirection {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "upload":
		return SyncUpload
	case "download":
		return SyncDownload
	}
	return SyncBoth
}

type Account struct {
	AccountID        string        `json:"account_id"`
	Name             string        `json:"name"`
	Type             AccountType   `json:"type"`
	SyncState        SyncState     `json:"sync_state"`
	SyncEnabled      bool          `json:"sync_enabled"`
	Direction        SyncDirection `json:"direction"`
	DownloadInterval time.Duration `json:"download_interval"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

func (a *Account) IsNetwork() bool {
	return a.Type == AccountNetwork
}

// Setting is a key/value pair merged last-write-wins by UpdatedAt.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"dt_update"`
}
