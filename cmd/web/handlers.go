package main

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/myrjola/clustereval/internal/contexthelpers"
	"github.com/myrjola/clustereval/internal/errors"
)

// render executes the base template of page.
func (app *application) render(w http.ResponseWriter, r *http.Request, status int, page string, data any) {
	app.renderTemplate(w, r, status, page, "base", data)
}

// renderTemplate executes the named template of page, e.g. a fragment swapped in by htmx.
func (app *application) renderTemplate(
	w http.ResponseWriter, r *http.Request, status int, page string, name string, data any) {
	cached, ok := app.templates[page]
	if !ok {
		app.serverError(w, r, errors.New("template not found", slog.String("template", page)))
		return
	}
	// The cached template is never executed so that every request can clone it with its own nonce and token.
	t, err := cached.Clone()
	if err != nil {
		app.serverError(w, r, errors.Wrap(err, "clone template", slog.String("template", page)))
		return
	}

	buf := new(bytes.Buffer)
	ctx := r.Context()
	nonce := fmt.Sprintf("nonce=\"%s\"", contexthelpers.CSPNonce(ctx))
	csrf := fmt.Sprintf("<input type=\"hidden\" name=\"csrf_token\" value=\"%s\"/>", contexthelpers.CSRFToken(ctx))
	t.Funcs(template.FuncMap{
		"nonce": func() template.HTMLAttr {
			return template.HTMLAttr(nonce) //nolint:gosec // we trust the nonce since it's not provided by user.
		},
		"csrf": func() template.HTML {
			return template.HTML(csrf) //nolint:gosec // we trust the csrf since it's not provided by user.
		},
	})
	if err = t.ExecuteTemplate(buf, name, data); err != nil {
		app.serverError(w, r, errors.Wrap(err, "execute template", slog.String("template", page)))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	_, _ = buf.WriteTo(w)
}
