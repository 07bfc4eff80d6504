package chat

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Session is one conversation. ID is a ULID assigned at creation.
type Session struct {
	ID        string    `gorm:"primaryKey;size:26" json:"id"`
	Title     string    `gorm:"type:varchar(64);not null" json:"title"`
	OwnerID   string    `gorm:"type:varchar(64);index;not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

func (Session) TableName() string { return "chat_sessions" }

// MessageRow is the stored form of a message. Message holds {"type","content"};
// MessageType repeats the tag so rows can be filtered without JSON functions.
type MessageRow struct {
	ID          uint64         `gorm:"primaryKey;autoIncrement"`
	SessionID   string         `gorm:"type:varchar(26);index:idx_chat_msg_session_created,priority:1;not null"`
	Message     datatypes.JSON `gorm:"not null"`
	MessageType string         `gorm:"type:varchar(16);not null"`
	CreatedAt   time.Time      `gorm:"index:idx_chat_msg_session_created,priority:2"`
}

func (MessageRow) TableName() string { return "chat_messages" }

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Session{}, &MessageRow{})
}

// ChatMessage is a decoded history entry.
type ChatMessage struct {
	ID        uint64    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Turn is a message pending persistence.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// StreamChunk is one unit of streamed output. The final chunk has Done set
// and an empty Fragment.
type StreamChunk struct {
	SessionID string
	Sequence  int
	Fragment  string
	Done      bool
}

type Part struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// InboundMessage is a message as sent by the client: either plain content
// or a list of typed parts.
type InboundMessage struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
	Parts   []Part `json:"parts,omitempty"`
}
