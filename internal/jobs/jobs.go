package jobs

import (
	"context"
	"fmt"
	"time"

	"vendaschat/internal/model"
	"vendaschat/internal/pubsub"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// sessionTTL is how long an open session may sit idle before it expires
const sessionTTL = 24 * time.Hour

// sweepInterval is how often the stale-session sweep re-enqueues itself
const sweepInterval = time.Hour

// Store is the slice of the database the job handlers need
type Store interface {
	GetSession(ctx context.Context, id string) (model.VisitorSession, error)
	UpdateSession(ctx context.Context, s model.VisitorSession) error
	ListStaleOpenSessions(ctx context.Context, cutoff time.Time) ([]string, error)
	GetAccount(ctx context.Context, whatsapp string) (model.TrialAccount, error)
}

type JobServer struct {
	server *asynq.Server
	client *asynq.Client
	store  Store
	bus    *pubsub.Bus
	log    *zap.Logger
}

func NewJobServer(redisAddr string, store Store, bus *pubsub.Bus, log *zap.Logger) (*JobServer, *asynq.Client) {
	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	client := asynq.NewClient(redisOpt)

	return &JobServer{
		server: server,
		client: client,
		store:  store,
		bus:    bus,
		log:    log,
	}, client
}

func (js *JobServer) Start() error {
	mux := asynq.NewServeMux()

	// Register job handlers
	mux.HandleFunc("session:expire", js.handleSessionExpiry)
	mux.HandleFunc("sessions:sweep", js.handleSessionSweep)
	mux.HandleFunc("lead:followup", js.handleLeadFollowup)

	return js.server.Start(mux)
}

func (js *JobServer) Stop() {
	js.server.Shutdown()
	js.client.Close()
}

// Job handlers

func (js *JobServer) handleSessionExpiry(ctx context.Context, t *asynq.Task) error {
	sessionID := string(t.Payload())

	sess, err := js.store.GetSession(ctx, sessionID)
	if err != nil {
		// Deleted sessions have nothing to expire
		js.log.Debug("Session gone before expiry", zap.String("session_id", sessionID))
		return nil
	}

	if !sessionOpen(sess) {
		return nil
	}

	// A session that stayed active gets its expiry pushed out
	idleSince := parseTime(sess.UpdatedAt)
	if remaining := sessionTTL - time.Since(idleSince); remaining > 0 {
		return ScheduleSessionExpiry(js.client, sessionID, remaining)
	}

	return js.expireSession(ctx, sess)
}

func (js *JobServer) handleSessionSweep(ctx context.Context, t *asynq.Task) error {
	cutoff := time.Now().Add(-sessionTTL)
	ids, err := js.store.ListStaleOpenSessions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list stale sessions: %w", err)
	}

	for _, id := range ids {
		sess, err := js.store.GetSession(ctx, id)
		if err != nil || !sessionOpen(sess) {
			continue
		}
		if err := js.expireSession(ctx, sess); err != nil {
			js.log.Error("Failed to expire session", zap.String("session_id", id), zap.Error(err))
		}
	}

	if len(ids) > 0 {
		js.log.Info("Session sweep completed", zap.Int("expired", len(ids)))
	}

	// Keep the sweep running
	return ScheduleSweep(js.client, sweepInterval)
}

func (js *JobServer) handleLeadFollowup(ctx context.Context, t *asynq.Task) error {
	sessionID := string(t.Payload())

	sess, err := js.store.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	if sess.Lead == nil {
		return nil
	}

	// A confirmed payment means the trial converted; no follow-up needed
	acc, err := js.store.GetAccount(ctx, sess.Lead.WhatsApp)
	if err == nil && acc.PaymentConfirmed {
		return nil
	}

	_ = js.bus.PublishAgents(map[string]interface{}{
		"type":      "lead.followup_due",
		"sessionId": sessionID,
		"whatsapp":  sess.Lead.WhatsApp,
		"name":      sess.Lead.Name,
	})

	js.log.Info("Lead follow-up due", zap.String("session_id", sessionID))
	return nil
}

func (js *JobServer) expireSession(ctx context.Context, sess model.VisitorSession) error {
	sess.Status = model.SessionExpired
	if err := js.store.UpdateSession(ctx, sess); err != nil {
		return fmt.Errorf("failed to expire session: %w", err)
	}

	_ = js.bus.PublishSession(sess.ID, map[string]interface{}{
		"type":      "session.expired",
		"sessionId": sess.ID,
	})

	js.log.Info("Session expired", zap.String("session_id", sess.ID))
	return nil
}

func sessionOpen(sess model.VisitorSession) bool {
	if sess.MigratedTo != "" {
		return false
	}
	return sess.Status != model.SessionClosed && sess.Status != model.SessionExpired
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Schedule jobs

func ScheduleSessionExpiry(client *asynq.Client, sessionID string, in time.Duration) error {
	task := asynq.NewTask("session:expire", []byte(sessionID))
	_, err := client.Enqueue(task, asynq.ProcessIn(in), asynq.Queue("low"))
	return err
}

func ScheduleLeadFollowup(client *asynq.Client, sessionID string, in time.Duration) error {
	task := asynq.NewTask("lead:followup", []byte(sessionID))
	_, err := client.Enqueue(task, asynq.ProcessIn(in))
	return err
}

func ScheduleSweep(client *asynq.Client, in time.Duration) error {
	task := asynq.NewTask("sessions:sweep", nil)
	_, err := client.Enqueue(task, asynq.ProcessIn(in), asynq.Queue("low"))
	return err
}
