package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/stupid-simple/dbbackup/backup"
	"github.com/stupid-simple/dbbackup/retention"
	"github.com/stupid-simple/dbbackup/service"
	"github.com/stupid-simple/dbbackup/settings"
)

const maxBodyBytes = 64 << 10

type response struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *handler) listBackups(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.List(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, records)
}

func (h *handler) createBackup(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Create(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, rec)
}

func (h *handler) cleanupBackups(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Cleanup(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"deleted":     res.Deleted,
		"freed_bytes": res.FreedBytes,
	})
}

func (h *handler) getBackup(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, rec)
}

func (h *handler) restoreBackup(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Restore(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"backup":    res.Backup,
		"live_path": res.LivePath,
		"seconds":   res.Duration.Seconds(),
	})
}

func (h *handler) deleteBackup(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) getSettings(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Settings(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, st)
}

// saveSettings applies the fields present in the body over the stored
// configuration.
func (h *handler) saveSettings(w http.ResponseWriter, r *http.Request) {
	cfg := settings.Default()
	if st, err := h.svc.Settings(r.Context()); err == nil {
		cfg = st.Config
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.respondError(w, r, errors.Join(errInvalidBody, err))
		return
	}
	if err := json.Unmarshal(body, &cfg); err != nil {
		h.respondError(w, r, errors.Join(errInvalidBody, err))
		return
	}

	st, err := h.svc.SaveSettings(r.Context(), cfg)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, st)
}

func (h *handler) respondJSON(w http.ResponseWriter, status int, data any) {
	h.write(w, status, response{Status: "success", Data: data})
}

// respondError answers with the user message of err. Details are only logged.
func (h *handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)

	e := h.logger.Warn()
	if status >= http.StatusInternalServerError {
		e = h.logger.Error()
	}
	e.Err(err).Str("method", r.Method).Str("path", r.URL.Path).Str("code", code).Msg("request failed")

	msg := service.Message(err)
	if errors.Is(err, errInvalidBody) {
		msg = "The request body is not valid JSON."
	}
	h.write(w, status, response{Status: "error", Error: &apiError{Code: code, Message: msg}})
}

func (h *handler) write(w http.ResponseWriter, status int, resp response) {
	data, err := json.Marshal(resp)
	if err != nil {
		h.logger.Error().Err(err).Msg("could not marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		h.logger.Debug().Err(err).Msg("could not write response")
	}
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errInvalidBody):
		return http.StatusBadRequest, "INVALID_BODY"
	case errors.Is(err, service.ErrMissingID):
		return http.StatusBadRequest, "MISSING_ID"
	case errors.Is(err, backup.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, settings.ErrConfigInvalid), errors.Is(err, retention.ErrInvalidMaxCount):
		return http.StatusUnprocessableEntity, "INVALID_SETTINGS"
	case errors.Is(err, backup.ErrSourceUnavailable):
		return http.StatusServiceUnavailable, "SOURCE_UNAVAILABLE"
	case errors.Is(err, backup.ErrBackupFailed):
		return http.StatusInternalServerError, "BACKUP_FAILED"
	case errors.Is(err, backup.ErrDeleteFailed):
		return http.StatusInternalServerError, "DELETE_FAILED"
	case errors.Is(err, backup.ErrReinitFailed):
		return http.StatusInternalServerError, "REINIT_FAILED"
	case errors.Is(err, backup.ErrRestoreFailed):
		return http.StatusInternalServerError, "RESTORE_FAILED"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "CANCELLED"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
