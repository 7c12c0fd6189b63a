package service

import (
	"context"
	"fmt"
	"time"

	"vendaschat/internal/buttontree"
	"vendaschat/internal/model"

	"github.com/oklog/ulid/v2"
)

const (
	// FarewellMessage is appended when a visitor confirms closing the chat
	FarewellMessage = "Obrigado pelo contato! Até logo."
	// sessionTTL is how long an open session survives without conversion
	// before the expiry job closes it
	sessionTTL = 24 * time.Hour
)

// SessionService owns the visitor session lifecycle: start, free-text sends,
// button clicks, media, the two-phase close and migration to the main chat.
type SessionService struct {
	sessions  SessionStore
	accounts  AccountStore
	configs   ConfigStore
	bus       EventBus
	jobClient JobClient
}

func NewSessionService(sessions SessionStore, accounts AccountStore, configs ConfigStore, bus EventBus) *SessionService {
	return &SessionService{
		sessions: sessions,
		accounts: accounts,
		configs:  configs,
		bus:      bus,
	}
}

// SetJobClient sets the job client for scheduling background jobs
func (s *SessionService) SetJobClient(client JobClient) {
	s.jobClient = client
}

type StartInput struct {
	WhatsApp string `json:"whatsapp,omitempty"`
	Name     string `json:"name,omitempty"`
}

type StartResult struct {
	Session  model.VisitorSession `json:"session"`
	Messages []model.ChatMessage  `json:"messages"`
	Config   PublicConfig         `json:"config"`
}

// PublicConfig is the visitor-facing view of BotConfig
type PublicConfig struct {
	IsEnabled    bool   `json:"isEnabled"`
	Mode         string `json:"mode"`
	Status       int    `json:"status"`
	BotName      string `json:"botName,omitempty"`
	BotAvatarURL string `json:"botAvatarUrl,omitempty"`
}

// Start creates a session positioned at the tree root and appends the welcome
// message. A known WhatsApp number re-attaches the stored lead and credentials
// so the widget can pre-fill and lock its forms.
func (s *SessionService) Start(ctx context.Context, input StartInput) (*StartResult, error) {
	cfg, err := s.configs.GetBotConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load bot config: %w", err)
	}
	if !cfg.IsEnabled {
		return nil, ErrBotDisabled
	}

	now := time.Now()
	sess := model.VisitorSession{
		ID:             ulid.Make().String(),
		Status:         model.SessionActive,
		CurrentButtons: cfg.RootButtons,
		CreatedAt:      now.Format(time.RFC3339),
		UpdatedAt:      now.Format(time.RFC3339),
	}

	if input.WhatsApp != "" {
		acc, err := s.accounts.GetAccount(ctx, input.WhatsApp)
		if err == nil {
			sess.Lead = &model.Lead{Name: acc.Name, WhatsApp: acc.WhatsApp, PIN: acc.PIN}
			sess.Credentials = &model.Credentials{Username: acc.Username, Password: acc.Password}
		} else {
			sess.Lead = &model.Lead{Name: input.Name, WhatsApp: input.WhatsApp}
		}
	}

	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	welcome := model.ChatMessage{
		ID:        ulid.Make().String(),
		SessionID: sess.ID,
		From:      model.FromBot,
		Text:      cfg.WelcomeMessage,
		CreatedAt: now.Format(time.RFC3339),
	}
	if err := s.sessions.AppendMessage(ctx, welcome); err != nil {
		return nil, fmt.Errorf("failed to append welcome message: %w", err)
	}

	_ = s.bus.PublishAgents(map[string]interface{}{
		"type":      "session.started",
		"sessionId": sess.ID,
	})

	if s.jobClient != nil {
		_ = s.jobClient.ScheduleSessionExpiry(sess.ID, sessionTTL)
	}

	return &StartResult{
		Session:  sess,
		Messages: []model.ChatMessage{welcome},
		Config: PublicConfig{
			IsEnabled:    cfg.IsEnabled,
			Mode:         cfg.Mode,
			Status:       cfg.Status,
			BotName:      cfg.BotName,
			BotAvatarURL: cfg.BotAvatarURL,
		},
	}, nil
}

// Get returns a session with its message log
func (s *SessionService) Get(ctx context.Context, id string) (*model.VisitorSession, []model.ChatMessage, error) {
	sess, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("session not found: %w", err)
	}
	msgs, err := s.sessions.ListMessages(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return &sess, msgs, nil
}

// SendText appends a free-text client message. Rejected entirely while the
// widget runs in button-only mode.
func (s *SessionService) SendText(ctx context.Context, sessionID, text string) (*model.ChatMessage, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty message", ErrValidation)
	}

	cfg, err := s.configs.GetBotConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load bot config: %w", err)
	}
	if cfg.Status == model.StatusButtonOnly {
		return nil, ErrButtonOnly
	}

	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	if !sessionOpen(sess.Status) {
		return nil, fmt.Errorf("%w: %s", ErrSessionState, sess.Status)
	}

	msg := model.ChatMessage{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		From:      model.FromClient,
		Text:      text,
		CreatedAt: time.Now().Format(time.RFC3339),
	}
	if err := s.sessions.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}

	_ = s.bus.PublishSession(sessionID, map[string]interface{}{
		"type":      "message.created",
		"sessionId": sessionID,
		"messageId": msg.ID,
	})
	_ = s.bus.PublishAgents(map[string]interface{}{
		"type":      "message.created",
		"sessionId": sessionID,
		"from":      string(model.FromClient),
	})

	return &msg, nil
}

// ClickResult is what a button click returns to the widget
type ClickResult struct {
	Message       *model.ChatMessage `json:"message,omitempty"`
	HasSubButtons bool               `json:"hasSubButtons"`
	Buttons       []model.ButtonNode `json:"buttons"`
	Redirect      *RedirectEffect    `json:"redirect,omitempty"`
	LeadCapture   *LeadCaptureEffect `json:"leadCapture,omitempty"`
}

// Click resolves a button click and commits its effects atomically. The tree
// position only moves after the commit succeeds; a storage failure leaves the
// message log and current buttons exactly as they were.
func (s *SessionService) Click(ctx context.Context, sessionID, buttonID string) (*ClickResult, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	if !sessionOpen(sess.Status) {
		return nil, fmt.Errorf("%w: %s", ErrSessionState, sess.Status)
	}

	cfg, err := s.configs.GetBotConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load bot config: %w", err)
	}

	btn, ok := buttontree.Find(cfg.RootButtons, buttonID)
	if !ok {
		return nil, fmt.Errorf("%w: button %q", ErrNotFound, buttonID)
	}

	plan := ResolveClick(*btn, sess)
	now := time.Now().Format(time.RFC3339)

	echo := model.ChatMessage{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		From:      model.FromClient,
		Text:      btn.Label,
		CreatedAt: now,
	}

	if plan.LeadCapture != nil {
		prompt := model.ChatMessage{
			ID:           ulid.Make().String(),
			SessionID:    sessionID,
			From:         model.FromBot,
			Text:         btn.ResponseText,
			ButtonAction: model.ActionRequestTest,
			CreatedAt:    now,
		}
		commit := ClickCommit{
			SessionID:       sessionID,
			Messages:        []model.ChatMessage{echo, prompt},
			Status:          model.SessionAwaitingLeadCapture,
			PendingButtonID: btn.ID,
		}
		if err := s.sessions.CommitClick(ctx, commit); err != nil {
			return nil, fmt.Errorf("failed to commit click: %w", err)
		}
		s.publishClick(sessionID, btn.ID)
		return &ClickResult{
			Message:     &prompt,
			Buttons:     sess.CurrentButtons,
			Redirect:    plan.Redirect,
			LeadCapture: plan.LeadCapture,
		}, nil
	}

	reply := model.ChatMessage{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		From:      model.FromBot,
		Text:      plan.Reply.Text,
		MediaURL:  plan.Reply.MediaURL,
		MediaType: plan.Reply.MediaType,
		HasButton: plan.Reply.Descend,
		CreatedAt: now,
	}
	// a normal click while a lead form was pending abandons the form
	status := sess.Status
	if status == model.SessionAwaitingLeadCapture || status == model.SessionAwaitingInstallConfirm {
		status = model.SessionActive
	}
	commit := ClickCommit{
		SessionID:  sessionID,
		Messages:   []model.ChatMessage{echo, reply},
		Buttons:    plan.Reply.Buttons,
		SetButtons: true,
		Status:     status,
	}
	if err := s.sessions.CommitClick(ctx, commit); err != nil {
		return nil, fmt.Errorf("failed to commit click: %w", err)
	}
	s.publishClick(sessionID, btn.ID)

	return &ClickResult{
		Message:       &reply,
		HasSubButtons: plan.Reply.Descend,
		Buttons:       plan.Reply.Buttons,
		Redirect:      plan.Redirect,
	}, nil
}

// ResetButtons puts the session back at the tree root
func (s *SessionService) ResetButtons(ctx context.Context, sessionID string) ([]model.ButtonNode, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	if sess.Status == model.SessionClosed || sess.Status == model.SessionExpired {
		return nil, fmt.Errorf("%w: %s", ErrSessionState, sess.Status)
	}

	cfg, err := s.configs.GetBotConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load bot config: %w", err)
	}

	sess.CurrentButtons = cfg.RootButtons
	sess.PendingButtonID = ""
	sess.Status = model.SessionActive
	sess.UpdatedAt = time.Now().Format(time.RFC3339)
	if err := s.sessions.UpdateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to reset buttons: %w", err)
	}
	return cfg.RootButtons, nil
}

// AttachMedia appends a client message carrying an uploaded file
func (s *SessionService) AttachMedia(ctx context.Context, sessionID, mediaURL, mediaType string) (*model.ChatMessage, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	if !sessionOpen(sess.Status) {
		return nil, fmt.Errorf("%w: %s", ErrSessionState, sess.Status)
	}

	msg := model.ChatMessage{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		From:      model.FromClient,
		MediaURL:  mediaURL,
		MediaType: mediaType,
		CreatedAt: time.Now().Format(time.RFC3339),
	}
	if err := s.sessions.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to append media message: %w", err)
	}

	_ = s.bus.PublishSession(sessionID, map[string]interface{}{
		"type":      "message.created",
		"sessionId": sessionID,
		"messageId": msg.ID,
	})

	return &msg, nil
}

// RequestClose marks the session as pending close. Nothing is lost yet; the
// visitor still has to confirm or cancel.
func (s *SessionService) RequestClose(ctx context.Context, sessionID string) error {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("session not found: %w", err)
	}
	if sess.Status == model.SessionClosed || sess.Status == model.SessionExpired {
		return fmt.Errorf("%w: %s", ErrSessionState, sess.Status)
	}
	sess.Status = model.SessionClosePending
	sess.UpdatedAt = time.Now().Format(time.RFC3339)
	return s.sessions.UpdateSession(ctx, sess)
}

// ConfirmClose appends the farewell message and closes the session
func (s *SessionService) ConfirmClose(ctx context.Context, sessionID string) (*model.ChatMessage, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	if sess.Status != model.SessionClosePending {
		return nil, fmt.Errorf("%w: close not requested", ErrSessionState)
	}

	farewell := model.ChatMessage{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		From:      model.FromBot,
		Text:      FarewellMessage,
		CreatedAt: time.Now().Format(time.RFC3339),
	}
	if err := s.sessions.AppendMessage(ctx, farewell); err != nil {
		return nil, fmt.Errorf("failed to append farewell: %w", err)
	}

	sess.Status = model.SessionClosed
	sess.UpdatedAt = time.Now().Format(time.RFC3339)
	if err := s.sessions.UpdateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to close session: %w", err)
	}

	_ = s.bus.PublishAgents(map[string]interface{}{
		"type":      "session.closed",
		"sessionId": sessionID,
	})

	return &farewell, nil
}

// CancelClose returns a pending-close session to its active state
func (s *SessionService) CancelClose(ctx context.Context, sessionID string) error {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("session not found: %w", err)
	}
	if sess.Status != model.SessionClosePending {
		return fmt.Errorf("%w: close not requested", ErrSessionState)
	}
	sess.Status = model.SessionActive
	sess.UpdatedAt = time.Now().Format(time.RFC3339)
	return s.sessions.UpdateSession(ctx, sess)
}

type MigrateInput struct {
	WhatsApp    string             `json:"whatsapp"`
	PIN         string             `json:"pin"`
	Credentials *model.Credentials `json:"credentials,omitempty"`
}

// Migrate links a throwaway sales session to the visitor's durable chat
// identity after conversion
func (s *SessionService) Migrate(ctx context.Context, sessionID string, input MigrateInput) error {
	if input.WhatsApp == "" {
		return fmt.Errorf("%w: whatsapp is required", ErrValidation)
	}
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("session not found: %w", err)
	}

	sess.MigratedTo = input.WhatsApp
	if input.Credentials != nil {
		sess.Credentials = input.Credentials
	}
	sess.UpdatedAt = time.Now().Format(time.RFC3339)
	if err := s.sessions.UpdateSession(ctx, sess); err != nil {
		return fmt.Errorf("failed to migrate session: %w", err)
	}

	_ = s.bus.PublishAgents(map[string]interface{}{
		"type":      "session.migrated",
		"sessionId": sessionID,
		"whatsapp":  input.WhatsApp,
	})
	return nil
}

func (s *SessionService) publishClick(sessionID, buttonID string) {
	_ = s.bus.PublishSession(sessionID, map[string]interface{}{
		"type":      "button.clicked",
		"sessionId": sessionID,
		"buttonId":  buttonID,
	})
}

// sessionOpen reports whether the session accepts sends, clicks and uploads
func sessionOpen(status model.SessionStatus) bool {
	switch status {
	case model.SessionActive, model.SessionCredentialsIssued,
		model.SessionAwaitingLeadCapture, model.SessionAwaitingInstallConfirm:
		return true
	}
	return false
}
