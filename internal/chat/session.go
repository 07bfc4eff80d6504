package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/suPer8Hu/streamchat/internal/common"
	"gorm.io/gorm"
)

const (
	defaultTitle  = "New Chat"
	titleMaxRunes = 50
)

type SessionManager struct {
	db *gorm.DB
	// verifyOwner makes a supplied session id prove it exists and belongs
	// to the caller.
	verifyOwner bool
}

func NewSessionManager(db *gorm.DB, verifyOwner bool) *SessionManager {
	return &SessionManager{db: db, verifyOwner: verifyOwner}
}

func (m *SessionManager) VerifiesOwner() bool { return m.verifyOwner }

// ResolveOrCreate returns the session the request belongs to, creating one
// titled from the first user message when no candidate id is given.
func (m *SessionManager) ResolveOrCreate(ctx context.Context, ownerID, candidateID string, messages []InboundMessage) (string, error) {
	ownerID = strings.TrimSpace(ownerID)
	candidateID = strings.TrimSpace(candidateID)

	if candidateID != "" {
		if !m.verifyOwner {
			return candidateID, nil
		}
		if ownerID == "" {
			return "", ErrMissingOwner
		}
		if err := m.CheckOwner(ctx, ownerID, candidateID); err != nil {
			return "", err
		}
		return candidateID, nil
	}

	if ownerID == "" {
		return "", ErrMissingOwner
	}

	id, err := common.NewULID()
	if err != nil {
		return "", err
	}
	sess := &Session{ID: id, Title: DeriveTitle(messages), OwnerID: ownerID}
	if err := m.db.WithContext(ctx).Create(sess).Error; err != nil {
		return "", storeErr("create_session", err)
	}
	return id, nil
}

func (m *SessionManager) Get(ctx context.Context, sessionID string) (*Session, error) {
	var s Session
	if err := m.db.WithContext(ctx).Where("id = ?", sessionID).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, storeErr("get_session", err)
	}
	return &s, nil
}

// CheckOwner fails with ErrSessionNotFound or ErrForbidden.
func (m *SessionManager) CheckOwner(ctx context.Context, ownerID, sessionID string) error {
	s, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.OwnerID != ownerID {
		return ErrForbidden
	}
	return nil
}

// DeriveTitle uses the first text of the first user message, cut to 50
// characters with "..." appended when longer.
func DeriveTitle(messages []InboundMessage) string {
	for _, msg := range messages {
		if msg.Role != string(RoleUser) {
			continue
		}
		text := firstText(msg)
		if text == "" {
			return defaultTitle
		}
		r := []rune(text)
		if len(r) > titleMaxRunes {
			return string(r[:titleMaxRunes]) + "..."
		}
		return text
	}
	return defaultTitle
}

// firstText is the first non-empty text part, or Content when there are no
// parts.
func firstText(msg InboundMessage) string {
	if len(msg.Parts) == 0 {
		return msg.Content
	}
	for _, p := range msg.Parts {
		if p.Type == "text" && p.Text != "" {
			return p.Text
		}
	}
	return ""
}
