package main

import (
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"path"

	"github.com/myrjola/clustereval/internal/controller"
	"github.com/myrjola/clustereval/internal/errors"
	"github.com/myrjola/clustereval/internal/render"
	"github.com/myrjola/clustereval/internal/survey"
	"github.com/myrjola/clustereval/ui"
)

type BaseTemplateData struct {
	// Admin reveals links to every configured expert. It is a navigation aid, not access control.
	Admin   bool
	Experts []string
}

func (app *application) newBaseTemplateData(r *http.Request) BaseTemplateData {
	admin := r.URL.Query().Get("admin") == "1"
	data := BaseTemplateData{Admin: admin, Experts: nil}
	if admin {
		data.Experts = app.experts
	}
	return data
}

// surveyTemplateData is shared by every survey screen.
type surveyTemplateData struct {
	BaseTemplateData
	ExpertID string
	// Query is appended to form actions to carry the expert selection.
	Query string
	// Cursor is posted back with navigation so that stale pages can be detected.
	Cursor         string
	TaskCount      int
	View           *render.View
	Message        string
	SubmissionUUID string
}

func expertQuery(expertID string) string {
	return "?" + url.Values{"expert": {expertID}}.Encode()
}

func (app *application) newSurveyTemplateData(r *http.Request, sc *controller.Context, message string) surveyTemplateData {
	data := surveyTemplateData{
		BaseTemplateData: app.newBaseTemplateData(r),
		ExpertID:         sc.ExpertID,
		Query:            expertQuery(sc.ExpertID),
		Cursor:           sc.CursorKey(),
		TaskCount:        len(sc.Assignment.Tasks),
		View:             nil,
		Message:          message,
		SubmissionUUID:   "",
	}
	if view, ok := sc.CurrentView(); ok {
		data.View = &view
	}
	if sc.Screen() == survey.ScreenThanks {
		data.SubmissionUUID = sc.Session.LastSubmissionUUID
	}
	return data
}

// pages lists the directories inside ui/templates/pages. Each has to include a template named "page".
var pages = []string{"welcome", "task", "submit", "thanks", "error"}

// newTemplateCache parses the base template together with every page.
func newTemplateCache() (map[string]*template.Template, error) {
	cache := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		pageFiles, err := fs.Glob(ui.Files, path.Join("templates/pages", page, "*.gohtml"))
		if err != nil {
			return nil, errors.Wrap(err, "glob page template files")
		}
		files := append([]string{"templates/base.gohtml"}, pageFiles...)

		// The FuncMap has to exist before parsing. The functions are overridden in the render function.
		t, err := template.New(page).Funcs(template.FuncMap{
			"nonce": func() string {
				panic("not implemented")
			},
			"csrf": func() string {
				panic("not implemented")
			},
		}).ParseFS(ui.Files, files...)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("parse page %s", page))
		}
		cache[page] = t
	}
	return cache, nil
}
