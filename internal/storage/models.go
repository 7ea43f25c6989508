package storage

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist or belongs
// to a different owner. Callers cannot tell the two apart.
var ErrNotFound = errors.New("not found")

// ErrInvalidRole is returned when a message role is not user or assistant,
// or when an operation record is attached to a non-assistant message.
var ErrInvalidRole = errors.New("invalid message role")

// ErrContentTooLarge is returned when message content exceeds MaxContentLength.
var ErrContentTooLarge = errors.New("message content too large")

const (
	// MaxContentLength bounds message content, in characters.
	MaxContentLength = 4096
	// MaxTitleLength bounds conversation titles, in characters.
	MaxTitleLength = 200
	// DefaultHistoryLimit is used by GetRecentMessages when limit <= 0.
	DefaultHistoryLimit = 50
	// DefaultConversationTitle is the placeholder for untitled conversations.
	DefaultConversationTitle = "New Conversation"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

type Conversation struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Message struct {
	ID              string          `json:"id"`
	ConversationID  string          `json:"conversation_id"`
	Owner           string          `json:"owner"`
	Role            Role            `json:"role"`
	Content         string          `json:"content"`
	OperationRecord json.RawMessage `json:"operation_record,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Priority of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

type Task struct {
	ID          string     `json:"id"`
	Owner       string     `json:"-"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Completed   bool       `json:"completed"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TaskStatus filters ListTasks.
type TaskStatus string

const (
	StatusAll       TaskStatus = "all"
	StatusPending   TaskStatus = "pending"
	StatusCompleted TaskStatus = "completed"
)

type TaskFilter struct {
	Status   TaskStatus
	Priority Priority // empty means any
	Limit    int
	Offset   int
}

// TaskPatch carries the fields of an update; nil fields are left untouched.
type TaskPatch struct {
	Title       *string
	Description *string
	Priority    *Priority
	DueDate     *time.Time
}

func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil && p.DueDate == nil
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
