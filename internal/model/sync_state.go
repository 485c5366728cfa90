package model

type SyncStatus string

const (
	SyncStatusIdle    SyncStatus = "idle"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusError   SyncStatus = "error"
)

// SyncState is the user-visible reconciliation status. LastSyncTime is in
// milliseconds and only moves forward.
type SyncState struct {
	Status       SyncStatus `json:"status"`
	LastSyncTime int64      `json:"lastSyncTime,omitempty"`
	Message      string     `json:"message,omitempty"`
}

// SyncResult summarizes one reconciliation attempt.
type SyncResult struct {
	Skipped          bool   `json:"skipped,omitempty"`
	SkipReason       string `json:"skipReason,omitempty"`
	IdempotencyKey   string `json:"idempotencyKey,omitempty"`
	Pushed           int    `json:"pushed"`
	Created          int    `json:"created"`
	Pulled           int    `json:"pulled"`
	Imported         int    `json:"imported"`
	Linked           int    `json:"linked"`
	DuplicatesHidden int    `json:"duplicatesHidden"`
	LastSyncTime     int64  `json:"lastSyncTime,omitempty"`
}

// SyncTrigger is a queued request to reconcile one identity.
type SyncTrigger struct {
	DeviceID     string `json:"device_id"`
	ActivationID string `json:"activation_id,omitempty"`
	Reason       string `json:"reason"`
	RequestedAt  int64  `json:"requested_at"`
}
