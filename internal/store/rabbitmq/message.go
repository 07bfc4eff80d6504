package rabbitmq

import (
	"encoding/json"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/streamchat/internal/chat"
)

const AttemptHeader = "x-persist-attempt"

// PersistMessage is an exchange the server failed to store. OccurredAt is
// the server's original write time, so a replay sorts where the exchange
// happened rather than when the worker got to it.
type PersistMessage struct {
	SessionID  string      `json:"session_id"`
	OccurredAt time.Time   `json:"occurred_at"`
	Turns      []chat.Turn `json:"turns"`
}

func EncodePersist(m PersistMessage) ([]byte, error) {
	return json.Marshal(m)
}

func DecodePersist(body []byte) (PersistMessage, error) {
	var m PersistMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return PersistMessage{}, err
	}
	if m.SessionID == "" || len(m.Turns) == 0 {
		return PersistMessage{}, errors.New("persist message: session_id and turns are required")
	}
	return m, nil
}

// Attempt reads the retry counter; a missing header is attempt 0.
func Attempt(h amqp.Table) int {
	switch v := h[AttemptHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
