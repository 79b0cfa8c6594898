package amqp

import (
	"encoding/json"
	"time"
)

// SnapshotExportMessage asks the export worker to push a fresh
// allocation snapshot for one account to the report sink. It carries
// only the account id and a version counter; the worker loads current
// state from the database, so a stale message can never export stale
// numbers.
type SnapshotExportMessage struct {
	AccountID string    `json:"account_id"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSnapshotExportMessage creates an export request for an account.
func NewSnapshotExportMessage(accountID string, version int64) *SnapshotExportMessage {
	return &SnapshotExportMessage{
		AccountID: accountID,
		Version:   version,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *SnapshotExportMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SnapshotExportMessageFromJSON creates a message from JSON bytes
func SnapshotExportMessageFromJSON(data []byte) (*SnapshotExportMessage, error) {
	var msg SnapshotExportMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
