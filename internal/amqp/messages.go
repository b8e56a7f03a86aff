package amqp

import (
	"encoding/json"
	"time"
)

// AccountSyncMessage asks the worker to pull a statement for one
// account. It carries only the ID; the worker reads the account from
// the database so stale message payloads cannot overwrite fresh state.
type AccountSyncMessage struct {
	AccountID   int64     `json:"account_id"`
	RequestedAt time.Time `json:"requested_at"`
}

func NewAccountSyncMessage(accountID int64) *AccountSyncMessage {
	return &AccountSyncMessage{
		AccountID:   accountID,
		RequestedAt: time.Now(),
	}
}

func (m *AccountSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func AccountSyncMessageFromJSON(data []byte) (*AccountSyncMessage, error) {
	var msg AccountSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
