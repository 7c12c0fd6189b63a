package api

import (
	"encoding/json"
	"net/http"

	"vendaschat/internal/model"
	"vendaschat/internal/service"

	"github.com/go-chi/chi/v5"
)

func (d Dependencies) leadService() *service.LeadService {
	svc := service.NewLeadService(d.DB.Queries, d.DB.Queries, d.DB.Queries, d.Bus, d.Provisioner, d.Log)
	if d.JobClient != nil {
		svc.SetJobClient(d.JobClient)
	}
	return svc
}

func (d Dependencies) captureLead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var lead model.Lead
	if err := json.NewDecoder(r.Body).Decode(&lead); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", d.Log)
		return
	}

	if err := d.leadService().Capture(r.Context(), id, lead); err != nil {
		writeServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "AWAITING_INSTALL_CONFIRM"})
}

func (d Dependencies) issueTrial(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := d.leadService().Issue(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}

	// Field names match what the chat widget renders
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"usuario":       result.Credentials.Username,
		"senha":         result.Credentials.Password,
		"alreadyExists": result.AlreadyExists,
		"message":       result.Message,
	})
}

func (d Dependencies) markPayment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		WhatsApp string `json:"whatsapp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", d.Log)
		return
	}
	if body.WhatsApp == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "whatsapp is required", d.Log)
		return
	}

	if err := d.leadService().MarkPayment(r.Context(), body.WhatsApp); err != nil {
		writeServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "PAYMENT_CONFIRMED"})
}
