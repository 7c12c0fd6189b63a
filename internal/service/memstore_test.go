package service

import (
	"context"
	"fmt"
	"sync"

	"vendaschat/internal/model"
)

// memStore is an in-memory SessionStore/AccountStore/ConfigStore for tests.
// failCommits makes CommitClick fail without touching state, to exercise the
// no-partial-mutation guarantee.
type memStore struct {
	mu          sync.Mutex
	config      model.BotConfig
	sessions    map[string]model.VisitorSession
	messages    map[string][]model.ChatMessage
	accounts    map[string]model.TrialAccount
	failCommits bool
}

func newMemStore(cfg model.BotConfig) *memStore {
	return &memStore{
		config:   cfg,
		sessions: make(map[string]model.VisitorSession),
		messages: make(map[string][]model.ChatMessage),
		accounts: make(map[string]model.TrialAccount),
	}
}

func (m *memStore) CreateSession(ctx context.Context, s model.VisitorSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *memStore) GetSession(ctx context.Context, id string) (model.VisitorSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return model.VisitorSession{}, fmt.Errorf("%w: session %q", ErrNotFound, id)
	}
	return s, nil
}

func (m *memStore) UpdateSession(ctx context.Context, s model.VisitorSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return fmt.Errorf("%w: session %q", ErrNotFound, s.ID)
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *memStore) CommitClick(ctx context.Context, commit ClickCommit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCommits {
		return fmt.Errorf("storage unavailable")
	}
	s, ok := m.sessions[commit.SessionID]
	if !ok {
		return fmt.Errorf("%w: session %q", ErrNotFound, commit.SessionID)
	}
	m.messages[commit.SessionID] = append(m.messages[commit.SessionID], commit.Messages...)
	if commit.SetButtons {
		s.CurrentButtons = commit.Buttons
	}
	if commit.Status != "" {
		s.Status = commit.Status
	}
	s.PendingButtonID = commit.PendingButtonID
	m.sessions[commit.SessionID] = s
	return nil
}

func (m *memStore) AppendMessage(ctx context.Context, msg model.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], msg)
	return nil
}

func (m *memStore) ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ChatMessage, len(m.messages[sessionID]))
	copy(out, m.messages[sessionID])
	return out, nil
}

func (m *memStore) GetAccount(ctx context.Context, whatsapp string) (model.TrialAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[whatsapp]
	if !ok {
		return model.TrialAccount{}, fmt.Errorf("%w: account %q", ErrNotFound, whatsapp)
	}
	return acc, nil
}

func (m *memStore) CreateAccount(ctx context.Context, acc model.TrialAccount) (model.TrialAccount, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.accounts[acc.WhatsApp]; ok {
		return existing, true, nil
	}
	m.accounts[acc.WhatsApp] = acc
	return acc, false, nil
}

func (m *memStore) MarkPayment(ctx context.Context, whatsapp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[whatsapp]
	if !ok {
		return fmt.Errorf("%w: account %q", ErrNotFound, whatsapp)
	}
	acc.PaymentConfirmed = true
	m.accounts[whatsapp] = acc
	return nil
}

func (m *memStore) GetBotConfig(ctx context.Context) (model.BotConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config, nil
}

func (m *memStore) PutBotConfig(ctx context.Context, cfg model.BotConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = cfg
	return nil
}

// mockEventBus records published events
type mockEventBus struct {
	mu     sync.Mutex
	events []map[string]interface{}
}

func (b *mockEventBus) PublishSession(sessionID string, event map[string]interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *mockEventBus) PublishAgents(event map[string]interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

// stubProvisioner returns canned credentials, optionally failing a number of
// attempts first
type stubProvisioner struct {
	creds    model.Credentials
	exists   bool
	failures int
	calls    int
}

func (p *stubProvisioner) CreateUser(ctx context.Context, btn model.ButtonNode, lead model.Lead) (model.Credentials, bool, error) {
	p.calls++
	if p.calls <= p.failures {
		return model.Credentials{}, false, fmt.Errorf("provision endpoint unreachable")
	}
	return p.creds, p.exists, nil
}

func testConfig() model.BotConfig {
	return model.BotConfig{
		IsEnabled:      true,
		Mode:           model.ModeButton,
		Status:         model.StatusButtonOnly,
		BotName:        "Iza",
		WelcomeMessage: "Olá! Como posso ajudar?",
		RootButtons: []model.ButtonNode{
			{
				ID: "a", Label: "Planos", ResponseText: "Escolha um plano:",
				SubButtons: []model.ButtonNode{
					{ID: "a1", Label: "Mensal", ResponseText: "Plano mensal."},
					{ID: "a2", Label: "Anual", ResponseText: "Plano anual."},
				},
			},
			{ID: "b", Label: "Suporte", ResponseText: "Fale com o suporte."},
			{
				ID: "t", Label: "TESTE GRÁTIS", ResponseText: "Preencha seus dados",
				APIURL: "https://provision.example/users", APIMethod: "POST",
			},
		},
	}
}
