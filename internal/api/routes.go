package api

import (
	"net/http"
	"os"

	"vendaschat/internal/auth"
	"vendaschat/internal/db"
	"vendaschat/internal/pubsub"
	"vendaschat/internal/schema"
	"vendaschat/internal/service"
	"vendaschat/internal/storage"
	"vendaschat/internal/ws"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Dependencies struct {
	DB          *db.Pool
	Bus         *pubsub.Bus
	Hub         *ws.Hub
	Log         *zap.Logger
	JobClient   service.JobClient
	Storage     storage.Storage
	Schema      *schema.Compiler
	Provisioner service.Provisioner
}

func Routes(d Dependencies) http.Handler {
	r := chi.NewRouter()

	// Add request logging middleware
	r.Use(RequestLogger(d.Log))

	jwtSecret := os.Getenv("JWT_SECRET")
	jwtConfig := auth.NewJWTConfig(jwtSecret)

	// Session endpoints
	r.Post("/sessions", d.createSession)
	r.Get("/sessions/{id}", d.getSession)
	r.Post("/sessions/{id}/messages", d.postMessage)
	r.Post("/sessions/{id}/click", d.clickButton)
	r.Post("/sessions/{id}/reset", d.resetButtons)
	r.Post("/sessions/{id}/media", d.uploadSessionMedia)
	r.Post("/sessions/{id}/close", d.requestClose)
	r.Post("/sessions/{id}/close/confirm", d.confirmClose)
	r.Post("/sessions/{id}/close/cancel", d.cancelClose)
	r.Post("/sessions/{id}/migrate", d.migrateSession)

	// Lead capture and trial issuance
	r.Post("/sessions/{id}/lead", d.captureLead)
	r.Post("/sessions/{id}/lead/issue", d.issueTrial)
	r.Post("/payments/mark", d.markPayment)

	// Widget config and media
	r.Get("/bot-config", d.getPublicConfig)
	r.Get("/files/{name}", d.serveFile)

	// Admin surface
	r.Route("/admin", func(r chi.Router) {
		r.Use(jwtConfig.RequireAdmin)
		r.Get("/bot-config", d.getBotConfig)
		r.Put("/bot-config", d.putBotConfig)
		r.Post("/bot-config/buttons", d.addButton)
		r.Patch("/bot-config/buttons/{id}", d.patchButton)
		r.Delete("/bot-config/buttons/{id}", d.deleteButton)
		r.Post("/bot-config/media", d.uploadAdminMedia)
	})

	// WebSocket endpoint
	r.Get("/ws", d.wsHandler)

	return r
}
