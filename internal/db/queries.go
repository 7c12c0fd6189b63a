package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"vendaschat/internal/model"
	"vendaschat/internal/service"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Queries wraps database queries. It implements the service store interfaces.
type Queries struct {
	*pgxpool.Pool
}

// NewQueries creates a new Queries instance
func NewQueries(pool *pgxpool.Pool) *Queries {
	return &Queries{Pool: pool}
}

// Session queries

func (q *Queries) CreateSession(ctx context.Context, s model.VisitorSession) error {
	buttons, err := json.Marshal(s.CurrentButtons)
	if err != nil {
		return fmt.Errorf("failed to encode buttons: %w", err)
	}
	lead, creds, err := encodeIdentity(s)
	if err != nil {
		return err
	}
	_, err = q.Pool.Exec(ctx,
		`INSERT INTO sessions (id, status, current_buttons, pending_button_id, lead, credentials, migrated_to)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, string(s.Status), buttons, s.PendingButtonID, lead, creds, s.MigratedTo,
	)
	return err
}

func (q *Queries) GetSession(ctx context.Context, id string) (model.VisitorSession, error) {
	var (
		s          model.VisitorSession
		status     string
		buttons    []byte
		lead       []byte
		creds      []byte
		createdAt  time.Time
		updatedAt  time.Time
	)
	err := q.Pool.QueryRow(ctx,
		`SELECT id, status, current_buttons, pending_button_id, lead, credentials, migrated_to, created_at, updated_at
		 FROM sessions WHERE id = $1`,
		id,
	).Scan(&s.ID, &status, &buttons, &s.PendingButtonID, &lead, &creds, &s.MigratedTo, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.VisitorSession{}, fmt.Errorf("%w: session %q", service.ErrNotFound, id)
	}
	if err != nil {
		return model.VisitorSession{}, err
	}
	s.Status = model.SessionStatus(status)
	s.CreatedAt = createdAt.Format(time.RFC3339)
	s.UpdatedAt = updatedAt.Format(time.RFC3339)
	if err := decodeIdentity(buttons, lead, creds, &s); err != nil {
		return model.VisitorSession{}, err
	}
	return s, nil
}

func (q *Queries) UpdateSession(ctx context.Context, s model.VisitorSession) error {
	buttons, err := json.Marshal(s.CurrentButtons)
	if err != nil {
		return fmt.Errorf("failed to encode buttons: %w", err)
	}
	lead, creds, err := encodeIdentity(s)
	if err != nil {
		return err
	}
	tag, err := q.Pool.Exec(ctx,
		`UPDATE sessions
		 SET status = $2, current_buttons = $3, pending_button_id = $4, lead = $5, credentials = $6,
		     migrated_to = $7, updated_at = NOW()
		 WHERE id = $1`,
		s.ID, string(s.Status), buttons, s.PendingButtonID, lead, creds, s.MigratedTo,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: session %q", service.ErrNotFound, s.ID)
	}
	return nil
}

// CommitClick lands the click's messages and the session's new position in a
// single transaction
func (q *Queries) CommitClick(ctx context.Context, commit service.ClickCommit) error {
	tx, err := q.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, msg := range commit.Messages {
		if err := insertMessage(ctx, tx, msg); err != nil {
			return err
		}
	}

	set := "status = $2, pending_button_id = $3, updated_at = NOW()"
	args := []interface{}{commit.SessionID, string(commit.Status), commit.PendingButtonID}
	if commit.SetButtons {
		buttons, err := json.Marshal(commit.Buttons)
		if err != nil {
			return fmt.Errorf("failed to encode buttons: %w", err)
		}
		set += ", current_buttons = $4"
		args = append(args, buttons)
	}
	tag, err := tx.Exec(ctx, "UPDATE sessions SET "+set+" WHERE id = $1", args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: session %q", service.ErrNotFound, commit.SessionID)
	}

	return tx.Commit(ctx)
}

func (q *Queries) AppendMessage(ctx context.Context, msg model.ChatMessage) error {
	return insertMessage(ctx, q.Pool, msg)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertMessage(ctx context.Context, ex execer, msg model.ChatMessage) error {
	_, err := ex.Exec(ctx,
		`INSERT INTO messages (id, session_id, from_type, text, media_url, media_type, button_action, has_button)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		msg.ID, msg.SessionID, string(msg.From), msg.Text, msg.MediaURL, msg.MediaType, msg.ButtonAction, msg.HasButton,
	)
	return err
}

func (q *Queries) ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	rows, err := q.Pool.Query(ctx,
		`SELECT id, session_id, from_type, text, media_url, media_type, button_action, has_button, created_at
		 FROM messages WHERE session_id = $1 ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ChatMessage
	for rows.Next() {
		var (
			m         model.ChatMessage
			from      string
			createdAt time.Time
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &from, &m.Text, &m.MediaURL, &m.MediaType, &m.ButtonAction, &m.HasButton, &createdAt); err != nil {
			return nil, err
		}
		m.From = model.MessageFrom(from)
		m.CreatedAt = createdAt.Format(time.RFC3339)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListStaleOpenSessions returns ids of open sessions not touched since cutoff
func (q *Queries) ListStaleOpenSessions(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := q.Pool.Query(ctx,
		`SELECT id FROM sessions
		 WHERE status NOT IN ('CLOSED', 'EXPIRED') AND updated_at < $1`,
		cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Trial account queries

func (q *Queries) GetAccount(ctx context.Context, whatsapp string) (model.TrialAccount, error) {
	var (
		a         model.TrialAccount
		createdAt time.Time
	)
	err := q.Pool.QueryRow(ctx,
		`SELECT whatsapp, pin, name, username, password, payment_confirmed, created_at
		 FROM trial_accounts WHERE whatsapp = $1`,
		whatsapp,
	).Scan(&a.WhatsApp, &a.PIN, &a.Name, &a.Username, &a.Password, &a.PaymentConfirmed, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.TrialAccount{}, fmt.Errorf("%w: account %q", service.ErrNotFound, whatsapp)
	}
	if err != nil {
		return model.TrialAccount{}, err
	}
	a.CreatedAt = createdAt.Format(time.RFC3339)
	return a, nil
}

// CreateAccount inserts the account unless the WhatsApp number already holds
// one; the existing row wins and is returned with alreadyExists=true. The
// unique key on whatsapp makes issuance idempotent even across racing tabs.
func (q *Queries) CreateAccount(ctx context.Context, acc model.TrialAccount) (model.TrialAccount, bool, error) {
	tag, err := q.Pool.Exec(ctx,
		`INSERT INTO trial_accounts (whatsapp, pin, name, username, password)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (whatsapp) DO NOTHING`,
		acc.WhatsApp, acc.PIN, acc.Name, acc.Username, acc.Password,
	)
	if err != nil {
		return model.TrialAccount{}, false, err
	}
	if tag.RowsAffected() == 0 {
		existing, err := q.GetAccount(ctx, acc.WhatsApp)
		if err != nil {
			return model.TrialAccount{}, false, err
		}
		return existing, true, nil
	}
	return acc, false, nil
}

func (q *Queries) MarkPayment(ctx context.Context, whatsapp string) error {
	tag, err := q.Pool.Exec(ctx,
		"UPDATE trial_accounts SET payment_confirmed = TRUE WHERE whatsapp = $1",
		whatsapp,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %q", service.ErrNotFound, whatsapp)
	}
	return nil
}

// Bot config queries. One config row per deployment.

func (q *Queries) GetBotConfig(ctx context.Context) (model.BotConfig, error) {
	var (
		cfg     model.BotConfig
		buttons []byte
	)
	err := q.Pool.QueryRow(ctx,
		`SELECT is_enabled, mode, status, bot_name, bot_avatar_url, welcome_message, buttons
		 FROM bot_config WHERE id = 1`,
	).Scan(&cfg.IsEnabled, &cfg.Mode, &cfg.Status, &cfg.BotName, &cfg.BotAvatarURL, &cfg.WelcomeMessage, &buttons)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.BotConfig{}, fmt.Errorf("%w: bot config", service.ErrNotFound)
	}
	if err != nil {
		return model.BotConfig{}, err
	}
	if len(buttons) > 0 {
		if err := json.Unmarshal(buttons, &cfg.RootButtons); err != nil {
			return model.BotConfig{}, fmt.Errorf("failed to decode buttons: %w", err)
		}
	}
	return cfg, nil
}

func (q *Queries) PutBotConfig(ctx context.Context, cfg model.BotConfig) error {
	buttons, err := json.Marshal(cfg.RootButtons)
	if err != nil {
		return fmt.Errorf("failed to encode buttons: %w", err)
	}
	_, err = q.Pool.Exec(ctx,
		`INSERT INTO bot_config (id, is_enabled, mode, status, bot_name, bot_avatar_url, welcome_message, buttons)
		 VALUES (1, $1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   is_enabled = EXCLUDED.is_enabled, mode = EXCLUDED.mode, status = EXCLUDED.status,
		   bot_name = EXCLUDED.bot_name, bot_avatar_url = EXCLUDED.bot_avatar_url,
		   welcome_message = EXCLUDED.welcome_message, buttons = EXCLUDED.buttons,
		   updated_at = NOW()`,
		cfg.IsEnabled, cfg.Mode, cfg.Status, cfg.BotName, cfg.BotAvatarURL, cfg.WelcomeMessage, buttons,
	)
	return err
}

func encodeIdentity(s model.VisitorSession) ([]byte, []byte, error) {
	var lead, creds []byte
	var err error
	if s.Lead != nil {
		if lead, err = json.Marshal(s.Lead); err != nil {
			return nil, nil, fmt.Errorf("failed to encode lead: %w", err)
		}
	}
	if s.Credentials != nil {
		if creds, err = json.Marshal(s.Credentials); err != nil {
			return nil, nil, fmt.Errorf("failed to encode credentials: %w", err)
		}
	}
	return lead, creds, nil
}

func decodeIdentity(buttons, lead, creds []byte, s *model.VisitorSession) error {
	if len(buttons) > 0 {
		if err := json.Unmarshal(buttons, &s.CurrentButtons); err != nil {
			return fmt.Errorf("failed to decode buttons: %w", err)
		}
	}
	if len(lead) > 0 {
		s.Lead = &model.Lead{}
		if err := json.Unmarshal(lead, s.Lead); err != nil {
			return fmt.Errorf("failed to decode lead: %w", err)
		}
	}
	if len(creds) > 0 {
		s.Credentials = &model.Credentials{}
		if err := json.Unmarshal(creds, s.Credentials); err != nil {
			return fmt.Errorf("failed to decode credentials: %w", err)
		}
	}
	return nil
}
