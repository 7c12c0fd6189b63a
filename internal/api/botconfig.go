package api

import (
	"encoding/json"
	"net/http"

	"vendaschat/internal/buttontree"
	"vendaschat/internal/model"
	"vendaschat/internal/service"

	"github.com/go-chi/chi/v5"
)

func (d Dependencies) configService() *service.BotConfigService {
	return service.NewBotConfigService(d.DB.Queries, d.Schema, d.Bus)
}

// getPublicConfig is the widget-facing view: display identity and mode, never
// the tree or admin fields
func (d Dependencies) getPublicConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := d.DB.Queries.GetBotConfig(r.Context())
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusOK, service.PublicConfig{
		IsEnabled:    cfg.IsEnabled,
		Mode:         cfg.Mode,
		Status:       cfg.Status,
		BotName:      cfg.BotName,
		BotAvatarURL: cfg.BotAvatarURL,
	})
}

func (d Dependencies) getBotConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := d.configService().Get(r.Context())
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

func (d Dependencies) putBotConfig(w http.ResponseWriter, r *http.Request) {
	var cfg model.BotConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", d.Log)
		return
	}

	if err := d.configService().Put(r.Context(), cfg); err != nil {
		writeServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

type addButtonRequest struct {
	ParentID string           `json:"parentId,omitempty"`
	Button   model.ButtonNode `json:"button"`
}

func (d Dependencies) addButton(w http.ResponseWriter, r *http.Request) {
	var req addButtonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", d.Log)
		return
	}

	cfg, err := d.configService().AddButton(r.Context(), req.ParentID, req.Button)
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusCreated, cfg)
}

type patchButtonRequest struct {
	Label        *string            `json:"label,omitempty"`
	ResponseText *string            `json:"responseText,omitempty"`
	ActionType   *string            `json:"actionType,omitempty"`
	MediaURL     *string            `json:"mediaUrl,omitempty"`
	MediaType    *string            `json:"mediaType,omitempty"`
	RedirectURL  *string            `json:"redirectUrl,omitempty"`
	APIURL       *string            `json:"apiUrl,omitempty"`
	APIMethod    *string            `json:"apiMethod,omitempty"`
	APIHeaders   map[string]string  `json:"apiHeaders,omitempty"`
	Pulse        *bool              `json:"pulse,omitempty"`
	Color        *model.ButtonColor `json:"color,omitempty"`
}

func (d Dependencies) patchButton(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req patchButtonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", d.Log)
		return
	}

	cfg, err := d.configService().PatchButton(r.Context(), id, buttontree.Patch{
		Label:        req.Label,
		ResponseText: req.ResponseText,
		ActionType:   req.ActionType,
		MediaURL:     req.MediaURL,
		MediaType:    req.MediaType,
		RedirectURL:  req.RedirectURL,
		APIURL:       req.APIURL,
		APIMethod:    req.APIMethod,
		APIHeaders:   req.APIHeaders,
		Pulse:        req.Pulse,
		Color:        req.Color,
	})
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

func (d Dependencies) deleteButton(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cfg, err := d.configService().DeleteButton(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}
