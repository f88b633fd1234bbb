package models

import (
	"time"

	"github.com/google/uuid"
)

// Sender identifies who authored a message
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// DeliveryState tells whether a message's text is final
type DeliveryState string

const (
	DeliveryComplete   DeliveryState = "complete"
	DeliveryInProgress DeliveryState = "in-progress"
)

// Phase is the session's position in the conversation lifecycle
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseAwaitingReport Phase = "awaiting-report"
	PhaseAwaitingReply  Phase = "awaiting-reply"
	PhaseReady          Phase = "ready"
)

// Busy reports whether new user submissions must be rejected
func (p Phase) Busy() bool {
	return p == PhaseAwaitingReport || p == PhaseAwaitingReply
}

// Message represents one turn in the conversation
type Message struct {
	ID            uuid.UUID     `json:"id"`
	Text          string        `json:"text"`
	Sender        Sender        `json:"sender"`
	DeliveryState DeliveryState `json:"delivery_state"`
	// Notice marks placeholders and error messages generated locally; they are not part of the model history
	Notice bool `json:"notice,omitempty"`
	// Unsent marks a user message that never reached the backend because connectivity was lost
	Unsent    bool      `json:"unsent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Photo is one categorized inspection image
type Photo struct {
	Category    string `json:"category"`
	Ref         string `json:"ref"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

// ChatTurn is a role-tagged history entry sent to the backend
type ChatTurn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// PromptPayload is everything the backend needs for one follow-up turn
type PromptPayload struct {
	SystemPrompt string     `json:"systemPrompt"`
	Context      string     `json:"context"`
	History      []ChatTurn `json:"conversationHistory"`
}

// NavTarget is a navigation intent emitted by a session
type NavTarget string

const (
	NavOfflineScreen NavTarget = "offline-screen"
	NavBack          NavTarget = "back"
)

// ArchivedReport is a generated report kept for later sessions
type ArchivedReport struct {
	ID         uuid.UUID `json:"id"`
	SessionID  uuid.UUID `json:"session_id"`
	Categories []string  `json:"categories"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// SessionView is a read-only snapshot of a session
type SessionView struct {
	ID           uuid.UUID `json:"id"`
	Phase        Phase     `json:"phase"`
	Messages     []Message `json:"messages"`
	PendingInput string    `json:"pending_input"`
	ReportReady  bool      `json:"report_ready"`
	Closed       bool      `json:"closed"`
}

// CreateSessionRequest is the JSON body for entering a session with an existing report
type CreateSessionRequest struct {
	Report   string `json:"report"`
	ReportID string `json:"report_id"`
}

// SendMessageRequest is the request body for sending a message
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}
