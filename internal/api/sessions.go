package api

import (
	"encoding/json"
	"net/http"

	"vendaschat/internal/service"

	"github.com/go-chi/chi/v5"
)

func (d Dependencies) sessionService() *service.SessionService {
	svc := service.NewSessionService(d.DB.Queries, d.DB.Queries, d.DB.Queries, d.Bus)
	if d.JobClient != nil {
		svc.SetJobClient(d.JobClient)
	}
	return svc
}

func (d Dependencies) createSession(w http.ResponseWriter, r *http.Request) {
	var input service.StartInput
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", d.Log)
			return
		}
	}

	result, err := d.sessionService().Start(r.Context(), input)
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (d Dependencies) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sess, messages, err := d.sessionService().Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session":  sess,
		"messages": messages,
	})
}

func (d Dependencies) postMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", d.Log)
		return
	}

	msg, err := d.sessionService().SendText(r.Context(), id, body.Text)
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (d Dependencies) clickButton(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		ButtonID string `json:"buttonId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", d.Log)
		return
	}
	if body.ButtonID == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "buttonId is required", d.Log)
		return
	}

	result, err := d.sessionService().Click(r.Context(), id, body.ButtonID)
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (d Dependencies) resetButtons(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	buttons, err := d.sessionService().ResetButtons(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"buttons": buttons,
	})
}

func (d Dependencies) requestClose(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := d.sessionService().RequestClose(r.Context(), id); err != nil {
		writeServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "CLOSE_PENDING"})
}

func (d Dependencies) confirmClose(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	farewell, err := d.sessionService().ConfirmClose(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "CLOSED",
		"message": farewell,
	})
}

func (d Dependencies) cancelClose(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := d.sessionService().CancelClose(r.Context(), id); err != nil {
		writeServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ACTIVE"})
}

func (d Dependencies) migrateSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var input service.MigrateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", d.Log)
		return
	}

	if err := d.sessionService().Migrate(r.Context(), id, input); err != nil {
		writeServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "MIGRATED"})
}
