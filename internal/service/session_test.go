package service

import (
	"context"
	"testing"

	"vendaschat/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSessionService(store *memStore) (*SessionService, *mockEventBus) {
	bus := &mockEventBus{}
	return NewSessionService(store, store, store, bus), bus
}

func TestStartCreatesSessionAtRoot(t *testing.T) {
	store := newMemStore(testConfig())
	svc, _ := newSessionService(store)

	res, err := svc.Start(context.Background(), StartInput{})
	require.NoError(t, err)

	assert.NotEmpty(t, res.Session.ID)
	assert.Equal(t, model.SessionActive, res.Session.Status)
	assert.Len(t, res.Session.CurrentButtons, 3)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "Olá! Como posso ajudar?", res.Messages[0].Text)
	assert.Equal(t, model.FromBot, res.Messages[0].From)
	assert.Equal(t, model.StatusButtonOnly, res.Config.Status)
}

func TestStartDisabledBot(t *testing.T) {
	cfg := testConfig()
	cfg.IsEnabled = false
	svc, _ := newSessionService(newMemStore(cfg))

	_, err := svc.Start(context.Background(), StartInput{})
	require.ErrorIs(t, err, ErrBotDisabled)
}

func TestStartPrefillsReturningVisitor(t *testing.T) {
	store := newMemStore(testConfig())
	store.accounts["11999999999"] = model.TrialAccount{
		WhatsApp: "11999999999", PIN: "42", Name: "João",
		Username: "iaze_11999999999", Password: "x7Ab9",
	}
	svc, _ := newSessionService(store)

	res, err := svc.Start(context.Background(), StartInput{WhatsApp: "11999999999"})
	require.NoError(t, err)

	require.NotNil(t, res.Session.Lead)
	assert.Equal(t, "42", res.Session.Lead.PIN)
	require.NotNil(t, res.Session.Credentials)
	assert.Equal(t, "iaze_11999999999", res.Session.Credentials.Username)
}

func TestSendTextRejectedInButtonOnlyMode(t *testing.T) {
	store := newMemStore(testConfig())
	svc, _ := newSessionService(store)
	res, err := svc.Start(context.Background(), StartInput{})
	require.NoError(t, err)

	_, err = svc.SendText(context.Background(), res.Session.ID, "oi")
	require.ErrorIs(t, err, ErrButtonOnly)

	msgs, _ := store.ListMessages(context.Background(), res.Session.ID)
	assert.Len(t, msgs, 1) // only the welcome message
}

func TestSendTextAppendsClientMessage(t *testing.T) {
	cfg := testConfig()
	cfg.Status = 0
	cfg.Mode = model.ModeIA
	store := newMemStore(cfg)
	svc, _ := newSessionService(store)
	res, err := svc.Start(context.Background(), StartInput{})
	require.NoError(t, err)

	msg, err := svc.SendText(context.Background(), res.Session.ID, "quero saber mais")
	require.NoError(t, err)
	assert.Equal(t, model.FromClient, msg.From)

	msgs, _ := store.ListMessages(context.Background(), res.Session.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, "quero saber mais", msgs[1].Text)
}

func TestClickDescendsReplacesButtons(t *testing.T) {
	store := newMemStore(testConfig())
	svc, _ := newSessionService(store)
	res, err := svc.Start(context.Background(), StartInput{})
	require.NoError(t, err)

	out, err := svc.Click(context.Background(), res.Session.ID, "a")
	require.NoError(t, err)

	assert.True(t, out.HasSubButtons)
	require.Len(t, out.Buttons, 2)
	assert.Equal(t, "a1", out.Buttons[0].ID)
	assert.Equal(t, "a2", out.Buttons[1].ID)

	// replaced, not appended
	sess, _ := store.GetSession(context.Background(), res.Session.ID)
	require.Len(t, sess.CurrentButtons, 2)
	assert.Equal(t, "a1", sess.CurrentButtons[0].ID)

	msgs, _ := store.ListMessages(context.Background(), res.Session.ID)
	require.Len(t, msgs, 3)
	assert.Equal(t, "Planos", msgs[1].Text) // client echo
	assert.Equal(t, "Escolha um plano:", msgs[2].Text)
}

func TestClickLeafClearsButtons(t *testing.T) {
	store := newMemStore(testConfig())
	svc, _ := newSessionService(store)
	res, err := svc.Start(context.Background(), StartInput{})
	require.NoError(t, err)

	out, err := svc.Click(context.Background(), res.Session.ID, "b")
	require.NoError(t, err)
	assert.False(t, out.HasSubButtons)
	assert.Empty(t, out.Buttons)

	sess, _ := store.GetSession(context.Background(), res.Session.ID)
	assert.Empty(t, sess.CurrentButtons)
}

func TestClickUnknownButton(t *testing.T) {
	svc, _ := newSessionService(newMemStore(testConfig()))
	res, err := svc.Start(context.Background(), StartInput{})
	require.NoError(t, err)

	_, err = svc.Click(context.Background(), res.Session.ID, "zzz")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestClickFailureLeavesStateUntouched(t *testing.T) {
	store := newMemStore(testConfig())
	svc, _ := newSessionService(store)
	res, err := svc.Start(context.Background(), StartInput{})
	require.NoError(t, err)

	before, _ := store.GetSession(context.Background(), res.Session.ID)
	msgsBefore, _ := store.ListMessages(context.Background(), res.Session.ID)

	store.failCommits = true
	_, err = svc.Click(context.Background(), res.Session.ID, "a")
	require.Error(t, err)

	after, _ := store.GetSession(context.Background(), res.Session.ID)
	msgsAfter, _ := store.ListMessages(context.Background(), res.Session.ID)
	assert.Equal(t, before, after)
	assert.Equal(t, msgsBefore, msgsAfter)
}

func TestClickOpensLeadCapture(t *testing.T) {
	store := newMemStore(testConfig())
	svc, _ := newSessionService(store)
	res, err := svc.Start(context.Background(), StartInput{})
	require.NoError(t, err)

	out, err := svc.Click(context.Background(), res.Session.ID, "t")
	require.NoError(t, err)

	require.NotNil(t, out.LeadCapture)
	assert.Equal(t, "t", out.LeadCapture.ButtonID)
	require.NotNil(t, out.Message)
	assert.Equal(t, model.ActionRequestTest, out.Message.ButtonAction)

	sess, _ := store.GetSession(context.Background(), res.Session.ID)
	assert.Equal(t, model.SessionAwaitingLeadCapture, sess.Status)
	assert.Equal(t, "t", sess.PendingButtonID)
	// descent is starved while lead capture takes over
	assert.Len(t, sess.CurrentButtons, 3)
}

func TestResetButtonsReturnsToRoot(t *testing.T) {
	store := newMemStore(testConfig())
	svc, _ := newSessionService(store)
	res, err := svc.Start(context.Background(), StartInput{})
	require.NoError(t, err)

	_, err = svc.Click(context.Background(), res.Session.ID, "a")
	require.NoError(t, err)

	buttons, err := svc.ResetButtons(context.Background(), res.Session.ID)
	require.NoError(t, err)
	assert.Len(t, buttons, 3)

	sess, _ := store.GetSession(context.Background(), res.Session.ID)
	assert.Len(t, sess.CurrentButtons, 3)
	assert.Equal(t, model.SessionActive, sess.Status)
}

func TestTwoPhaseClose(t *testing.T) {
	store := newMemStore(testConfig())
	svc, _ := newSessionService(store)
	res, err := svc.Start(context.Background(), StartInput{})
	require.NoError(t, err)
	id := res.Session.ID

	// confirm without request is rejected
	_, err = svc.ConfirmClose(context.Background(), id)
	require.ErrorIs(t, err, ErrSessionState)

	require.NoError(t, svc.RequestClose(context.Background(), id))
	sess, _ := store.GetSession(context.Background(), id)
	assert.Equal(t, model.SessionClosePending, sess.Status)

	// cancel returns to active
	require.NoError(t, svc.CancelClose(context.Background(), id))
	sess, _ = store.GetSession(context.Background(), id)
	assert.Equal(t, model.SessionActive, sess.Status)

	// confirm closes and appends the farewell
	require.NoError(t, svc.RequestClose(context.Background(), id))
	farewell, err := svc.ConfirmClose(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, FarewellMessage, farewell.Text)

	sess, _ = store.GetSession(context.Background(), id)
	assert.Equal(t, model.SessionClosed, sess.Status)

	_, err = svc.Click(context.Background(), id, "a")
	require.ErrorIs(t, err, ErrSessionState)
}

func TestMigrateLinksIdentity(t *testing.T) {
	store := newMemStore(testConfig())
	svc, _ := newSessionService(store)
	res, err := svc.Start(context.Background(), StartInput{})
	require.NoError(t, err)

	err = svc.Migrate(context.Background(), res.Session.ID, MigrateInput{
		WhatsApp:    "11999999999",
		PIN:         "42",
		Credentials: &model.Credentials{Username: "u1", Password: "p1"},
	})
	require.NoError(t, err)

	sess, _ := store.GetSession(context.Background(), res.Session.ID)
	assert.Equal(t, "11999999999", sess.MigratedTo)
	require.NotNil(t, sess.Credentials)
	assert.Equal(t, "u1", sess.Credentials.Username)
}

func TestAttachMedia(t *testing.T) {
	store := newMemStore(testConfig())
	svc, _ := newSessionService(store)
	res, err := svc.Start(context.Background(), StartInput{})
	require.NoError(t, err)

	msg, err := svc.AttachMedia(context.Background(), res.Session.ID, "/files/abc.png", "image")
	require.NoError(t, err)
	assert.Equal(t, "image", msg.MediaType)

	msgs, _ := store.ListMessages(context.Background(), res.Session.ID)
	assert.Len(t, msgs, 2)
}
