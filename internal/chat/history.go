package chat

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// History reads and appends session messages. Rows are never updated or
// deleted here.
type History struct {
	db *gorm.DB
}

func NewHistory(db *gorm.DB) *History {
	return &History{db: db}
}

type storedMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// roleTag is the stored type for a role.
func roleTag(r Role) string {
	switch r {
	case RoleAssistant:
		return "ai"
	case RoleSystem:
		return "system"
	default:
		return "human"
	}
}

// MapRole maps a stored type tag to a role. Unknown tags read as user.
func MapRole(tag string) Role {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "ai", "assistant":
		return RoleAssistant
	case "system":
		return RoleSystem
	default:
		return RoleUser
	}
}

var textKeys = []string{"content", "text", "message"}

// ExtractText returns the first non-empty string under content, text or
// message, in that order.
func ExtractText(raw map[string]any) string {
	for _, k := range textKeys {
		if s, ok := raw[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func newRow(sessionID string, t Turn) (*MessageRow, error) {
	tag := roleTag(t.Role)
	b, err := json.Marshal(storedMessage{Type: tag, Content: t.Content})
	if err != nil {
		return nil, err
	}
	return &MessageRow{
		SessionID:   sessionID,
		Message:     datatypes.JSON(b),
		MessageType: tag,
	}, nil
}

func decodeRow(row MessageRow) ChatMessage {
	var raw map[string]any
	_ = json.Unmarshal(row.Message, &raw)

	tag, _ := raw["type"].(string)
	if tag == "" {
		tag = row.MessageType
	}
	return ChatMessage{
		ID:        row.ID,
		SessionID: row.SessionID,
		Role:      MapRole(tag),
		Content:   ExtractText(raw),
		CreatedAt: row.CreatedAt,
	}
}

// Append stores a single message.
func (h *History) Append(ctx context.Context, sessionID string, role Role, content string) (*ChatMessage, error) {
	row, err := newRow(sessionID, Turn{Role: role, Content: content})
	if err != nil {
		return nil, err
	}
	if err := h.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, storeErr("append", err)
	}
	msg := decodeRow(*row)
	return &msg, nil
}

// turnSpacing separates the rows of one exchange. Columns too coarse to
// keep it fall back to id order, which matches insert order.
const turnSpacing = time.Microsecond

// AppendTurn stores all turns in one transaction, in the given order.
func (h *History) AppendTurn(ctx context.Context, sessionID string, turns ...Turn) error {
	return h.AppendTurnAt(ctx, sessionID, time.Now(), turns...)
}

// AppendTurnAt is AppendTurn with the exchange stamped at a fixed time. A
// replayed exchange keeps its place ahead of turns stored after it.
func (h *History) AppendTurnAt(ctx context.Context, sessionID string, at time.Time, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}
	if at.IsZero() {
		at = time.Now()
	}
	rows := make([]*MessageRow, 0, len(turns))
	for i, t := range turns {
		row, err := newRow(sessionID, t)
		if err != nil {
			return err
		}
		row.CreatedAt = at.Add(time.Duration(i) * turnSpacing)
		rows = append(rows, row)
	}

	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			if err := tx.Create(row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return storeErr("append_turn", err)
}

// LoadOrdered returns the session's messages oldest first. An unknown
// session yields an empty slice.
func (h *History) LoadOrdered(ctx context.Context, sessionID string) ([]ChatMessage, error) {
	var rows []MessageRow
	if err := h.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, storeErr("load", err)
	}

	out := make([]ChatMessage, 0, len(rows))
	for _, row := range rows {
		out = append(out, decodeRow(row))
	}
	return out, nil
}
