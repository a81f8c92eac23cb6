package amqp

import (
	"encoding/json"
	"time"
)

// TableReplacedMessage announces that the ledger table was rewritten.
// It carries no rows; the consumer reads the table from the source store.
type TableReplacedMessage struct {
	Revision  string    `json:"revision"`
	Rows      int       `json:"rows"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTableReplacedMessage(revision string, rows int, reason string) *TableReplacedMessage {
	return &TableReplacedMessage{
		Revision:  revision,
		Rows:      rows,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

func (m *TableReplacedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TableReplacedMessageFromJSON(data []byte) (*TableReplacedMessage, error) {
	var msg TableReplacedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
