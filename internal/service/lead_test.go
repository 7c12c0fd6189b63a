package service

import (
	"context"
	"testing"

	"vendaschat/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLeadFixture(t *testing.T, prov Provisioner) (*LeadService, *SessionService, *memStore, string) {
	t.Helper()
	store := newMemStore(testConfig())
	bus := &mockEventBus{}
	sessions := NewSessionService(store, store, store, bus)
	leads := NewLeadService(store, store, store, bus, prov, zap.NewNop())

	res, err := sessions.Start(context.Background(), StartInput{})
	require.NoError(t, err)
	// open the lead form through the trial button
	_, err = sessions.Click(context.Background(), res.Session.ID, "t")
	require.NoError(t, err)
	return leads, sessions, store, res.Session.ID
}

func TestValidateLead(t *testing.T) {
	ok := model.Lead{Name: "João", WhatsApp: "11999999999", PIN: "42"}
	require.NoError(t, ValidateLead(ok))

	cases := []struct {
		name string
		lead model.Lead
	}{
		{"empty name", model.Lead{WhatsApp: "11999999999", PIN: "42"}},
		{"empty whatsapp", model.Lead{Name: "a", PIN: "42"}},
		{"whatsapp letters", model.Lead{Name: "a", WhatsApp: "11abc", PIN: "42"}},
		{"pin one digit", model.Lead{Name: "a", WhatsApp: "11999999999", PIN: "4"}},
		{"pin three digits", model.Lead{Name: "a", WhatsApp: "11999999999", PIN: "423"}},
		{"pin letters", model.Lead{Name: "a", WhatsApp: "11999999999", PIN: "4a"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, ValidateLead(tc.lead), ErrValidation)
		})
	}
}

func TestCaptureBlocksInvalidPIN(t *testing.T) {
	leads, _, store, id := newLeadFixture(t, &stubProvisioner{})

	err := leads.Capture(context.Background(), id, model.Lead{Name: "João", WhatsApp: "11999999999", PIN: "4"})
	require.ErrorIs(t, err, ErrValidation)

	// submission blocked before any state change
	sess, _ := store.GetSession(context.Background(), id)
	assert.Equal(t, model.SessionAwaitingLeadCapture, sess.Status)
	assert.Nil(t, sess.Lead)
}

func TestCaptureAdvancesToInstallConfirm(t *testing.T) {
	leads, _, store, id := newLeadFixture(t, &stubProvisioner{})

	err := leads.Capture(context.Background(), id, model.Lead{Name: "João", WhatsApp: "11999999999", PIN: "42"})
	require.NoError(t, err)

	sess, _ := store.GetSession(context.Background(), id)
	assert.Equal(t, model.SessionAwaitingInstallConfirm, sess.Status)
	require.NotNil(t, sess.Lead)
	assert.Equal(t, "42", sess.Lead.PIN)
}

func TestCaptureRequiresOpenForm(t *testing.T) {
	store := newMemStore(testConfig())
	bus := &mockEventBus{}
	sessions := NewSessionService(store, store, store, bus)
	leads := NewLeadService(store, store, store, bus, &stubProvisioner{}, zap.NewNop())

	res, err := sessions.Start(context.Background(), StartInput{})
	require.NoError(t, err)

	err = leads.Capture(context.Background(), res.Session.ID, model.Lead{Name: "João", WhatsApp: "11999999999", PIN: "42"})
	require.ErrorIs(t, err, ErrSessionState)
}

func TestIssueRequiresInstallConfirmGate(t *testing.T) {
	leads, _, _, id := newLeadFixture(t, &stubProvisioner{})

	// issuance before capture (gate not reached) is rejected
	_, err := leads.Issue(context.Background(), id)
	require.ErrorIs(t, err, ErrSessionState)
}

func TestIssueCreatesAccount(t *testing.T) {
	prov := &stubProvisioner{creds: model.Credentials{Username: "iaze_11999999999", Password: "x7Ab9"}}
	leads, _, store, id := newLeadFixture(t, prov)

	require.NoError(t, leads.Capture(context.Background(), id, model.Lead{Name: "João", WhatsApp: "11999999999", PIN: "42"}))

	res, err := leads.Issue(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, res.AlreadyExists)
	assert.Equal(t, "iaze_11999999999", res.Credentials.Username)
	assert.Equal(t, "x7Ab9", res.Credentials.Password)

	// lead became durable only now, after the server confirmed
	acc, err := store.GetAccount(context.Background(), "11999999999")
	require.NoError(t, err)
	assert.Equal(t, "42", acc.PIN)
	assert.Equal(t, "João", acc.Name)

	sess, _ := store.GetSession(context.Background(), id)
	assert.Equal(t, model.SessionCredentialsIssued, sess.Status)
	require.NotNil(t, sess.Credentials)
}

func TestIssueIdempotentPerWhatsApp(t *testing.T) {
	prov := &stubProvisioner{creds: model.Credentials{Username: "u1", Password: "p1"}}
	leads, sessions, store, id := newLeadFixture(t, prov)

	require.NoError(t, leads.Capture(context.Background(), id, model.Lead{Name: "João", WhatsApp: "11999999999", PIN: "42"}))
	first, err := leads.Issue(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, first.AlreadyExists)

	// a second session with the same number reaches issuance again
	res2, err := sessions.Start(context.Background(), StartInput{WhatsApp: "11999999999"})
	require.NoError(t, err)
	_, err = sessions.Click(context.Background(), res2.Session.ID, "t")
	require.NoError(t, err)
	require.NoError(t, leads.Capture(context.Background(), res2.Session.ID, model.Lead{Name: "João", WhatsApp: "11999999999", PIN: "42"}))

	second, err := leads.Issue(context.Background(), res2.Session.ID)
	require.NoError(t, err)
	assert.True(t, second.AlreadyExists)
	assert.Equal(t, first.Credentials, second.Credentials)

	// the provisioner never ran again
	assert.Equal(t, 1, prov.calls)
	_ = store
}

func TestIssueRepeatedOnSameSession(t *testing.T) {
	prov := &stubProvisioner{creds: model.Credentials{Username: "u1", Password: "p1"}}
	leads, _, store, id := newLeadFixture(t, prov)

	require.NoError(t, leads.Capture(context.Background(), id, model.Lead{Name: "João", WhatsApp: "11999999999", PIN: "42"}))
	first, err := leads.Issue(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, first.AlreadyExists)

	// the widget retries when the response got lost; the same session hands
	// back the same pair instead of erroring
	second, err := leads.Issue(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, second.AlreadyExists)
	assert.Equal(t, first.Credentials, second.Credentials)
	assert.Equal(t, 1, prov.calls)

	sess, _ := store.GetSession(context.Background(), id)
	assert.Equal(t, model.SessionCredentialsIssued, sess.Status)
}

func TestIssueRetriesOnceThenSucceeds(t *testing.T) {
	prov := &stubProvisioner{
		creds:    model.Credentials{Username: "u1", Password: "p1"},
		failures: 1,
	}
	leads, _, _, id := newLeadFixture(t, prov)

	require.NoError(t, leads.Capture(context.Background(), id, model.Lead{Name: "João", WhatsApp: "11999999999", PIN: "42"}))
	res, err := leads.Issue(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "u1", res.Credentials.Username)
	assert.Equal(t, 2, prov.calls)
}

func TestIssueFailureKeepsSessionOnForm(t *testing.T) {
	prov := &stubProvisioner{failures: 2}
	leads, _, store, id := newLeadFixture(t, prov)

	require.NoError(t, leads.Capture(context.Background(), id, model.Lead{Name: "João", WhatsApp: "11999999999", PIN: "42"}))
	_, err := leads.Issue(context.Background(), id)
	require.Error(t, err)
	assert.Equal(t, 2, prov.calls) // exactly one automatic retry

	// visitor stays on the confirmation step and may retry
	sess, _ := store.GetSession(context.Background(), id)
	assert.Equal(t, model.SessionAwaitingInstallConfirm, sess.Status)
	assert.Nil(t, sess.Credentials)

	// no durable account was written
	_, err = store.GetAccount(context.Background(), "11999999999")
	require.ErrorIs(t, err, ErrNotFound)

	// manual retry succeeds now that the endpoint recovered
	prov.creds = model.Credentials{Username: "u1", Password: "p1"}
	res, err := leads.Issue(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "u1", res.Credentials.Username)
}

func TestMarkPayment(t *testing.T) {
	prov := &stubProvisioner{creds: model.Credentials{Username: "u1", Password: "p1"}}
	leads, _, store, id := newLeadFixture(t, prov)

	require.NoError(t, leads.Capture(context.Background(), id, model.Lead{Name: "João", WhatsApp: "11999999999", PIN: "42"}))
	_, err := leads.Issue(context.Background(), id)
	require.NoError(t, err)

	require.NoError(t, leads.MarkPayment(context.Background(), "11999999999"))
	acc, _ := store.GetAccount(context.Background(), "11999999999")
	assert.True(t, acc.PaymentConfirmed)

	require.Error(t, leads.MarkPayment(context.Background(), "000"))
	require.ErrorIs(t, leads.MarkPayment(context.Background(), ""), ErrValidation)
}

func TestEndToEndConversion(t *testing.T) {
	prov := &stubProvisioner{creds: model.Credentials{Username: "iaze_11999999999", Password: "x7Ab9"}}
	store := newMemStore(testConfig())
	bus := &mockEventBus{}
	sessions := NewSessionService(store, store, store, bus)
	leads := NewLeadService(store, store, store, bus, prov, zap.NewNop())
	ctx := context.Background()

	// visitor converts
	res, err := sessions.Start(ctx, StartInput{})
	require.NoError(t, err)
	_, err = sessions.Click(ctx, res.Session.ID, "t")
	require.NoError(t, err)
	require.NoError(t, leads.Capture(ctx, res.Session.ID, model.Lead{Name: "João", WhatsApp: "11999999999", PIN: "42"}))
	issued, err := leads.Issue(ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, "iaze_11999999999", issued.Credentials.Username)
	assert.Equal(t, "x7Ab9", issued.Credentials.Password)

	// "page reload": a fresh session with the same number pre-fills and the
	// lead-capture form comes back locked
	res2, err := sessions.Start(ctx, StartInput{WhatsApp: "11999999999"})
	require.NoError(t, err)
	require.NotNil(t, res2.Session.Lead)
	assert.Equal(t, "11999999999", res2.Session.Lead.WhatsApp)

	out, err := sessions.Click(ctx, res2.Session.ID, "t")
	require.NoError(t, err)
	require.NotNil(t, out.LeadCapture)
	assert.True(t, out.LeadCapture.Locked)
	require.NotNil(t, out.LeadCapture.Prefill)
	assert.Equal(t, "42", out.LeadCapture.Prefill.PIN)
}
