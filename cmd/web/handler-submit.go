package main

import (
	"net/http"
	"strconv"

	"github.com/myrjola/clustereval/internal/errors"
	"github.com/myrjola/clustereval/internal/submission"
	"github.com/myrjola/clustereval/internal/survey"
)

const msgTransportFailed = "Your answers could not be sent. They are still saved in this browser. Please try again."

// submit sends the answers to the forms backend. A failed delivery keeps the survey open for another click.
func (app *application) submit(w http.ResponseWriter, r *http.Request) {
	expertID, r, ok := app.expertID(w, r)
	if !ok {
		return
	}
	meta := submission.Meta{
		UserAgent: r.UserAgent(),
		Timezone:  r.PostFormValue("timezone"),
		Language:  r.PostFormValue("language"),
	}
	if meta.Language == "" {
		meta.Language = r.Header.Get("Accept-Language")
	}

	sc, _, err := app.controller.Submit(r.Context(), app.profile(r), expertID, meta)
	if err == nil {
		app.redirectToSurvey(w, r, expertID)
		return
	}
	if sc == nil {
		app.surveyError(w, r, err)
		return
	}
	var incomplete *submission.IncompleteError
	switch {
	case errors.As(err, &incomplete) && sc.Screen() == survey.ScreenWelcome:
		app.redirectToSurvey(w, r, expertID)
	case errors.As(err, &incomplete):
		first := incomplete.Failures[0]
		app.renderScreen(w, r, http.StatusUnprocessableEntity, sc,
			"Task "+strconv.Itoa(first.Index+1)+" is incomplete: "+first.Message)
	case errors.Is(err, submission.ErrTransport):
		app.renderScreen(w, r, http.StatusBadGateway, sc, msgTransportFailed)
	default:
		app.serverError(w, r, err)
	}
}
