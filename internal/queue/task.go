package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Task is the queue payload: a reference to a persisted message.
type Task struct {
	MessageID  int       `json:"message_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func EncodeTask(messageID int, now time.Time) ([]byte, error) {
	data, err := json.Marshal(Task{MessageID: messageID, EnqueuedAt: now.UTC()})
	if err != nil {
		return nil, fmt.Errorf("marshal task: %w", err)
	}
	return data, nil
}

// DecodeTask parses a queue payload. Payloads without a positive message id
// are rejected.
func DecodeTask(body []byte) (Task, error) {
	var t Task
	if err := json.Unmarshal(body, &t); err != nil {
		return Task{}, fmt.Errorf("unmarshal task: %w", err)
	}
	if t.MessageID <= 0 {
		return Task{}, fmt.Errorf("task has no message_id: %s", body)
	}
	return t, nil
}
