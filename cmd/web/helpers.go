package main

import (
	"log/slog"
	"net/http"

	"github.com/myrjola/clustereval/internal/assignment"
	"github.com/myrjola/clustereval/internal/contexthelpers"
	"github.com/myrjola/clustereval/internal/controller"
	"github.com/myrjola/clustereval/internal/errors"
	"github.com/myrjola/clustereval/internal/logging"
)

func (app *application) serverError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		method = r.Method
		uri    = r.URL.RequestURI()
	)

	app.logger.LogAttrs(r.Context(), slog.LevelError, "server error",
		slog.String("method", method), slog.String("uri", uri), errors.SlogError(err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (app *application) clientError(w http.ResponseWriter, r *http.Request, status int) {
	var (
		method = r.Method
		uri    = r.URL.RequestURI()
	)

	app.logger.LogAttrs(r.Context(), slog.LevelDebug, http.StatusText(status),
		slog.String("method", method), slog.String("uri", uri), slog.Any("formdata", r.PostForm))
	http.Error(w, http.StatusText(status), status)
}

// expertID resolves the expert query parameter and adds it to the logging context. It responds with 400 and
// returns false when the identifier is malformed.
func (app *application) expertID(w http.ResponseWriter, r *http.Request) (string, *http.Request, bool) {
	expertID := r.URL.Query().Get("expert")
	if expertID == "" {
		expertID = app.defaultExpert
	}
	if !assignment.ValidExpertID(expertID) {
		app.clientError(w, r, http.StatusBadRequest)
		return "", r, false
	}
	ctx := logging.WithAttrs(r.Context(), slog.String("expert_id", expertID))
	return expertID, r.WithContext(ctx), true
}

func (app *application) profile(r *http.Request) controller.Profile {
	id := contexthelpers.ProfileID(r.Context())
	return controller.Profile{ID: id, State: app.state.ForProfile(id)}
}

// surveyError answers errors that prevent the survey from being shown at all.
func (app *application) surveyError(w http.ResponseWriter, r *http.Request, err error) {
	var loadErr *assignment.LoadError
	if errors.As(err, &loadErr) {
		app.logger.LogAttrs(r.Context(), slog.LevelWarn, "assignment unavailable", errors.SlogError(err))
		data := surveyTemplateData{ //nolint:exhaustruct // only the message is shown
			BaseTemplateData: app.newBaseTemplateData(r),
			Message:          "Could not load the assignment file " + loadErr.Resource + ". Please contact the study team.",
		}
		app.render(w, r, http.StatusServiceUnavailable, "error", data)
		return
	}
	app.serverError(w, r, err)
}

// redirectToSurvey sends the browser back to the current screen of the expert.
func (app *application) redirectToSurvey(w http.ResponseWriter, r *http.Request, expertID string) {
	http.Redirect(w, r, "/"+expertQuery(expertID), http.StatusSeeOther)
}
