package main

import (
	"log/slog"
	"net/http"

	"github.com/myrjola/clustereval/internal/errors"
	"github.com/myrjola/clustereval/internal/metrics"
	"github.com/myrjola/clustereval/internal/repositories"
	"github.com/myrjola/clustereval/internal/submission"
)

// receiveForm is the built-in forms backend. Posting the same submission twice stores it once and succeeds both
// times.
func (app *application) receiveForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		app.metrics.FormReceived(metrics.FormInvalid)
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	envelope, err := submission.ParseEnvelope(r.PostForm)
	if err != nil {
		app.metrics.FormReceived(metrics.FormInvalid)
		app.logger.LogAttrs(r.Context(), slog.LevelInfo, "rejected form post", errors.SlogError(err))
		app.clientError(w, r, http.StatusBadRequest)
		return
	}

	stored, err := app.submissions.Store(r.Context(), envelope)
	switch {
	case errors.Is(err, repositories.ErrInvalidPayload):
		app.metrics.FormReceived(metrics.FormInvalid)
		app.clientError(w, r, http.StatusBadRequest)
		return
	case err != nil:
		app.serverError(w, r, err)
		return
	case stored:
		app.metrics.FormReceived(metrics.FormStored)
	default:
		app.metrics.FormReceived(metrics.FormDuplicate)
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
