package api

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"vendaschat/internal/storage"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxUploadBytes bounds the multipart form parse
const maxUploadBytes = 12 << 20

func (d Dependencies) uploadSessionMedia(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	objectName, contentType, ok := d.saveUpload(w, r)
	if !ok {
		return
	}

	msg, err := d.sessionService().AttachMedia(r.Context(), id, d.Storage.URLFor(objectName), storage.MediaTypeFor(contentType))
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (d Dependencies) uploadAdminMedia(w http.ResponseWriter, r *http.Request) {
	objectName, contentType, ok := d.saveUpload(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"url":       d.Storage.URLFor(objectName),
		"mediaType": storage.MediaTypeFor(contentType),
	})
}

// saveUpload validates and stores the "file" part of a multipart form. It
// writes the error response itself and reports success through ok.
func (d Dependencies) saveUpload(w http.ResponseWriter, r *http.Request) (objectName, contentType string, ok bool) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid multipart form", d.Log)
		return "", "", false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "file part is required", d.Log)
		return "", "", false
	}
	defer file.Close()

	contentType = header.Header.Get("Content-Type")
	if err := storage.DefaultMediaPolicy().ValidateFile(contentType, header.Size); err != nil {
		WriteError(w, http.StatusBadRequest, "policy_violation", err.Error(), d.Log)
		return "", "", false
	}

	objectName, err = d.Storage.Save(r.Context(), header.Filename, file)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "storage_failed", "Failed to store file", d.Log)
		return "", "", false
	}

	return objectName, contentType, true
}

func (d Dependencies) serveFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	reader, err := d.Storage.Get(r.Context(), name)
	if err != nil {
		WriteError(w, http.StatusNotFound, "not_found", "File not found", d.Log)
		return
	}
	defer reader.Close()

	if contentType := mime.TypeByExtension(filepath.Ext(name)); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	// Hash-named objects never change, cache hard
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")

	if _, err := io.Copy(w, reader); err != nil {
		d.Log.Warn("Failed to stream file", zap.String("name", name), zap.Error(err))
	}
}
