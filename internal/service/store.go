package service

import (
	"context"
	"errors"
	"time"

	"vendaschat/internal/model"
)

var (
	// ErrNotFound covers missing sessions, buttons and accounts
	ErrNotFound = errors.New("not found")
	// ErrBotDisabled is returned when the master switch is off
	ErrBotDisabled = errors.New("bot is disabled")
	// ErrButtonOnly is returned for free-text sends while the widget is in button-only mode
	ErrButtonOnly = errors.New("free-text input is disabled in button-only mode")
	// ErrSessionState is returned when an operation does not fit the session's current state
	ErrSessionState = errors.New("operation not allowed in current session state")
	// ErrValidation wraps local input validation failures; no network or
	// storage call happens once it is raised
	ErrValidation = errors.New("validation failed")
)

// ClickCommit is the atomic unit a click persists: appended messages plus the
// session's new tree position and state. Either everything lands or nothing
// does, so a failed click can never leave a half-updated session.
type ClickCommit struct {
	SessionID       string
	Messages        []model.ChatMessage
	Buttons         []model.ButtonNode
	SetButtons      bool
	Status          model.SessionStatus
	PendingButtonID string
}

// SessionStore persists visitor sessions and their message logs
type SessionStore interface {
	CreateSession(ctx context.Context, s model.VisitorSession) error
	GetSession(ctx context.Context, id string) (model.VisitorSession, error)
	UpdateSession(ctx context.Context, s model.VisitorSession) error
	CommitClick(ctx context.Context, commit ClickCommit) error
	AppendMessage(ctx context.Context, msg model.ChatMessage) error
	ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
}

// AccountStore persists trial accounts keyed by WhatsApp number
type AccountStore interface {
	GetAccount(ctx context.Context, whatsapp string) (model.TrialAccount, error)
	// CreateAccount inserts acc unless the number already holds an account,
	// in which case the existing record is returned with alreadyExists=true.
	CreateAccount(ctx context.Context, acc model.TrialAccount) (model.TrialAccount, bool, error)
	MarkPayment(ctx context.Context, whatsapp string) error
}

// ConfigStore reads and writes the single admin-owned bot configuration
type ConfigStore interface {
	GetBotConfig(ctx context.Context) (model.BotConfig, error)
	PutBotConfig(ctx context.Context, cfg model.BotConfig) error
}

// EventBus publishes session and dashboard events
type EventBus interface {
	PublishSession(sessionID string, event map[string]interface{}) error
	PublishAgents(event map[string]interface{}) error
}

// JobClient schedules background jobs
type JobClient interface {
	ScheduleSessionExpiry(sessionID string, in time.Duration) error
	ScheduleLeadFollowup(sessionID string, in time.Duration) error
}
