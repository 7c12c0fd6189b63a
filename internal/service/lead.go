package service

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"vendaschat/internal/buttontree"
	"vendaschat/internal/model"

	"go.uber.org/zap"
)

var (
	pinPattern      = regexp.MustCompile(`^[0-9]{2}$`)
	whatsappPattern = regexp.MustCompile(`^[0-9]+$`)
)

const (
	// issueRetryBackoff is the fixed pause before the single automatic retry
	issueRetryBackoff = 2 * time.Second
	// leadFollowupDelay schedules the post-issuance reminder
	leadFollowupDelay = 48 * time.Hour
)

// Provisioner creates the trial account behind a button's external endpoint
type Provisioner interface {
	CreateUser(ctx context.Context, btn model.ButtonNode, lead model.Lead) (model.Credentials, bool, error)
}

// LeadService runs the lead-capture flow: collect identity, gate on app
// install confirmation, then issue trial credentials idempotently per
// WhatsApp number.
type LeadService struct {
	sessions    SessionStore
	accounts    AccountStore
	configs     ConfigStore
	bus         EventBus
	provisioner Provisioner
	jobClient   JobClient
	log         *zap.Logger
}

func NewLeadService(sessions SessionStore, accounts AccountStore, configs ConfigStore, bus EventBus, provisioner Provisioner, log *zap.Logger) *LeadService {
	return &LeadService{
		sessions:    sessions,
		accounts:    accounts,
		configs:     configs,
		bus:         bus,
		provisioner: provisioner,
		log:         log,
	}
}

// SetJobClient sets the job client for scheduling background jobs
func (s *LeadService) SetJobClient(client JobClient) {
	s.jobClient = client
}

// ValidateLead applies the local validation rules: all fields present, PIN
// exactly two digits, WhatsApp digits-only. Failures block submission before
// any storage or network call.
func ValidateLead(lead model.Lead) error {
	if lead.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if lead.WhatsApp == "" {
		return fmt.Errorf("%w: whatsapp is required", ErrValidation)
	}
	if !whatsappPattern.MatchString(lead.WhatsApp) {
		return fmt.Errorf("%w: whatsapp must contain only digits", ErrValidation)
	}
	if !pinPattern.MatchString(lead.PIN) {
		return fmt.Errorf("%w: pin must be exactly 2 digits", ErrValidation)
	}
	return nil
}

// Capture stores the submitted identity on the session and advances to the
// install-confirmation gate. The lead only becomes durable after issuance
// succeeds, so a bad attempt never locks the visitor out.
func (s *LeadService) Capture(ctx context.Context, sessionID string, lead model.Lead) error {
	if err := ValidateLead(lead); err != nil {
		return err
	}

	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("session not found: %w", err)
	}
	if sess.Status != model.SessionAwaitingLeadCapture {
		return fmt.Errorf("%w: lead capture not open", ErrSessionState)
	}

	sess.Lead = &lead
	sess.Status = model.SessionAwaitingInstallConfirm
	sess.UpdatedAt = time.Now().Format(time.RFC3339)
	if err := s.sessions.UpdateSession(ctx, sess); err != nil {
		return fmt.Errorf("failed to store lead: %w", err)
	}

	_ = s.bus.PublishAgents(map[string]interface{}{
		"type":      "lead.captured",
		"sessionId": sessionID,
		"whatsapp":  lead.WhatsApp,
	})
	return nil
}

// IssueResult is the outcome of trial issuance
type IssueResult struct {
	Credentials   model.Credentials `json:"credentials"`
	AlreadyExists bool              `json:"alreadyExists"`
	Message       string            `json:"message"`
}

const (
	issuedMessage        = "Teste criado com sucesso! Anote seus dados de acesso."
	alreadyActiveMessage = "Você já possui um teste ativo. Seguem seus dados de acesso."
)

// Issue generates trial credentials for the session's captured lead. Requires
// the visitor to have confirmed app installation (the gate between Capture
// and Issue). Issuance is idempotent: an existing account for the WhatsApp
// number returns the same pair flagged alreadyExists instead of minting a new
// one, and calling again on an already-issued session repeats the stored pair.
// The provisioning call is retried exactly once after a fixed backoff
// before the failure surfaces; the session stays on the confirmation step so
// the visitor can retry.
func (s *LeadService) Issue(ctx context.Context, sessionID string) (*IssueResult, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	switch sess.Status {
	case model.SessionAwaitingInstallConfirm:
	case model.SessionCredentialsIssued:
		// The widget retries when the response got lost; repeat calls hand
		// back the pair that was already issued
		if sess.Credentials != nil {
			return &IssueResult{
				Credentials:   *sess.Credentials,
				AlreadyExists: true,
				Message:       alreadyActiveMessage,
			}, nil
		}
	default:
		return nil, fmt.Errorf("%w: app install not confirmed", ErrSessionState)
	}
	if sess.Lead == nil {
		return nil, fmt.Errorf("%w: no lead captured", ErrSessionState)
	}
	lead := *sess.Lead

	if existing, err := s.accounts.GetAccount(ctx, lead.WhatsApp); err == nil {
		creds := model.Credentials{Username: existing.Username, Password: existing.Password}
		if err := s.finishIssue(ctx, sess, creds); err != nil {
			return nil, err
		}
		return &IssueResult{
			Credentials:   creds,
			AlreadyExists: true,
			Message:       alreadyActiveMessage,
		}, nil
	}

	btn := s.pendingButton(ctx, sess)
	creds, alreadyExists, err := s.provisionWithRetry(ctx, btn, lead)
	if err != nil {
		s.log.Error("Trial provisioning failed",
			zap.String("session_id", sessionID),
			zap.String("whatsapp", lead.WhatsApp),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to provision trial: %w", err)
	}

	acc := model.TrialAccount{
		WhatsApp: lead.WhatsApp,
		PIN:      lead.PIN,
		Name:     lead.Name,
		Username: creds.Username,
		Password: creds.Password,
	}
	stored, existed, err := s.accounts.CreateAccount(ctx, acc)
	if err != nil {
		return nil, fmt.Errorf("failed to store trial account: %w", err)
	}
	if existed {
		// lost a race against another tab; the stored pair wins
		creds = model.Credentials{Username: stored.Username, Password: stored.Password}
		alreadyExists = true
	}

	if err := s.finishIssue(ctx, sess, creds); err != nil {
		return nil, err
	}

	msg := issuedMessage
	if alreadyExists {
		msg = alreadyActiveMessage
	}
	return &IssueResult{Credentials: creds, AlreadyExists: alreadyExists, Message: msg}, nil
}

// finishIssue persists the converted session state after the account exists
func (s *LeadService) finishIssue(ctx context.Context, sess model.VisitorSession, creds model.Credentials) error {
	sess.Credentials = &creds
	sess.Status = model.SessionCredentialsIssued
	sess.PendingButtonID = ""
	sess.UpdatedAt = time.Now().Format(time.RFC3339)
	if err := s.sessions.UpdateSession(ctx, sess); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	_ = s.bus.PublishSession(sess.ID, map[string]interface{}{
		"type":      "credentials.issued",
		"sessionId": sess.ID,
	})
	_ = s.bus.PublishAgents(map[string]interface{}{
		"type":      "credentials.issued",
		"sessionId": sess.ID,
	})

	if s.jobClient != nil {
		_ = s.jobClient.ScheduleLeadFollowup(sess.ID, leadFollowupDelay)
	}
	return nil
}

func (s *LeadService) provisionWithRetry(ctx context.Context, btn model.ButtonNode, lead model.Lead) (model.Credentials, bool, error) {
	creds, exists, err := s.provisioner.CreateUser(ctx, btn, lead)
	if err == nil {
		return creds, exists, nil
	}

	s.log.Warn("Provisioning attempt failed, retrying once",
		zap.String("whatsapp", lead.WhatsApp),
		zap.Error(err),
	)
	select {
	case <-ctx.Done():
		return model.Credentials{}, false, ctx.Err()
	case <-time.After(issueRetryBackoff):
	}
	return s.provisioner.CreateUser(ctx, btn, lead)
}

// pendingButton joins the session's pending button id against the admin tree
// so issuance can use the button's configured endpoint. A missing node falls
// back to the zero button, which routes to the local issuer.
func (s *LeadService) pendingButton(ctx context.Context, sess model.VisitorSession) model.ButtonNode {
	if sess.PendingButtonID == "" {
		return model.ButtonNode{}
	}
	cfg, err := s.configs.GetBotConfig(ctx)
	if err != nil {
		return model.ButtonNode{}
	}
	if btn, ok := buttontree.Find(cfg.RootButtons, sess.PendingButtonID); ok {
		return *btn
	}
	return model.ButtonNode{}
}

// MarkPayment records payment confirmation for a trial account
func (s *LeadService) MarkPayment(ctx context.Context, whatsapp string) error {
	if whatsapp == "" {
		return fmt.Errorf("%w: whatsapp is required", ErrValidation)
	}
	if err := s.accounts.MarkPayment(ctx, whatsapp); err != nil {
		return fmt.Errorf("failed to mark payment: %w", err)
	}
	_ = s.bus.PublishAgents(map[string]interface{}{
		"type":     "payment.confirmed",
		"whatsapp": whatsapp,
	})
	return nil
}
