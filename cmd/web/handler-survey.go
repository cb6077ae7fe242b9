package main

import (
	"log/slog"
	"net/http"

	"github.com/myrjola/clustereval/internal/controller"
	"github.com/myrjola/clustereval/internal/errors"
	"github.com/myrjola/clustereval/internal/survey"
)

const msgConsentRequired = "Please confirm that you agree to take part before starting."

// survey shows the current screen of the expert.
func (app *application) survey(w http.ResponseWriter, r *http.Request) {
	expertID, r, ok := app.expertID(w, r)
	if !ok {
		return
	}
	sc, err := app.controller.Open(r.Context(), app.profile(r), expertID)
	if err != nil {
		app.surveyError(w, r, err)
		return
	}
	app.renderScreen(w, r, http.StatusOK, sc, "")
}

func (app *application) renderScreen(
	w http.ResponseWriter, r *http.Request, status int, sc *controller.Context, message string) {
	app.render(w, r, status, string(sc.Screen()), app.newSurveyTemplateData(r, sc, message))
}

func (app *application) consent(w http.ResponseWriter, r *http.Request) {
	expertID, r, ok := app.expertID(w, r)
	if !ok {
		return
	}
	acknowledged := r.PostFormValue("consent") != ""
	sc, err := app.controller.Dispatch(r.Context(), app.profile(r), expertID, survey.Consent{Acknowledged: acknowledged})
	app.afterNavigation(w, r, expertID, sc, err)
}

func (app *application) next(w http.ResponseWriter, r *http.Request) {
	app.navigate(w, r, func(from string) survey.Event { return survey.Next{From: from} })
}

func (app *application) back(w http.ResponseWriter, r *http.Request) {
	app.navigate(w, r, func(from string) survey.Event { return survey.Back{From: from} })
}

// navigate stores the posted task form and moves the cursor.
func (app *application) navigate(w http.ResponseWriter, r *http.Request, event func(from string) survey.Event) {
	expertID, r, ok := app.expertID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	from := r.PostForm.Get("from")
	sc, err := app.controller.Navigate(r.Context(), app.profile(r), expertID, r.PostForm.Get("task"), r.PostForm,
		event(from))
	app.afterNavigation(w, r, expertID, sc, err)
}

// afterNavigation redirects to the current screen or explains why the event was rejected.
func (app *application) afterNavigation(
	w http.ResponseWriter, r *http.Request, expertID string, sc *controller.Context, err error) {
	if err == nil {
		app.redirectToSurvey(w, r, expertID)
		return
	}
	if sc == nil {
		app.surveyError(w, r, err)
		return
	}
	var validationErr *survey.ValidationError
	switch {
	case errors.As(err, &validationErr):
		app.renderScreen(w, r, http.StatusUnprocessableEntity, sc, validationErr.Message)
	case errors.Is(err, survey.ErrConsentRequired):
		app.renderScreen(w, r, http.StatusUnprocessableEntity, sc, msgConsentRequired)
	case errors.Is(err, survey.ErrRatingRange):
		app.clientError(w, r, http.StatusBadRequest)
	case errors.Is(err, survey.ErrStale), errors.Is(err, survey.ErrNotStarted), errors.Is(err, survey.ErrSubmitted):
		// The page was out of date. Showing the current screen is enough.
		app.logger.LogAttrs(r.Context(), slog.LevelDebug, "navigation ignored", errors.SlogError(err))
		app.redirectToSurvey(w, r, expertID)
	default:
		app.serverError(w, r, err)
	}
}

// updateAnswer stores the task form. htmx requests get the task form back only when a conditional field
// appeared or disappeared. Plain form posts are redirected to the current screen.
func (app *application) updateAnswer(w http.ResponseWriter, r *http.Request) {
	expertID, r, ok := app.expertID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	taskKey := r.PostForm.Get("task")
	sc, restructure, err := app.controller.UpdateAnswer(r.Context(), app.profile(r), expertID, taskKey, r.PostForm)
	switch {
	case err == nil:
	case sc == nil:
		app.surveyError(w, r, err)
		return
	case errors.Is(err, survey.ErrRatingRange), errors.Is(err, survey.ErrUnknownTask):
		app.clientError(w, r, http.StatusBadRequest)
		return
	case errors.Is(err, survey.ErrNotStarted), errors.Is(err, survey.ErrSubmitted):
		app.clientError(w, r, http.StatusConflict)
		return
	default:
		app.serverError(w, r, err)
		return
	}

	h := app.htmx.NewHandler(w, r)
	if !h.IsHxRequest() {
		app.redirectToSurvey(w, r, expertID)
		return
	}
	view, ok := sc.View(taskKey)
	if !restructure || !ok {
		h.ReSwap("none")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	data := app.newSurveyTemplateData(r, sc, "")
	data.View = &view
	data.Cursor = view.Key
	app.renderTemplate(w, r, http.StatusOK, "task", "task-form", data)
}
