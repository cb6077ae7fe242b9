package main

import (
	"io/fs"
	"net/http"

	"github.com/justinas/alice"
	"github.com/myrjola/clustereval/ui"
)

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()

	static, err := fs.Sub(ui.Files, "static")
	if err != nil {
		// The directory is embedded at build time.
		panic(err)
	}
	mux.Handle("GET /static/", http.StripPrefix("/static", http.FileServer(http.FS(static))))

	dynamic := alice.New(app.sessionManager.LoadAndSave, app.identifyProfile, noSurf, commonContext)
	handle := func(pattern, route string, h http.HandlerFunc) {
		mux.Handle(pattern, app.instrument(route, dynamic.Then(h)))
	}

	handle("GET /{$}", "survey", app.survey)
	handle("POST /consent", "consent", app.consent)
	handle("POST /tasks/next", "next", app.next)
	handle("POST /tasks/back", "back", app.back)
	handle("POST /answers", "answers", app.updateAnswer)
	handle("POST /submit", "submit", app.submit)

	// The forms backend receives posts from other origins and has neither a session nor CSRF protection.
	mux.Handle("POST /forms", app.instrument("forms", http.HandlerFunc(app.receiveForm)))
	mux.HandleFunc("GET /api/healthy", app.healthy)
	mux.Handle("GET /metrics", app.metrics.Handler())

	return app.recoverPanic(app.logRequest(app.secureHeaders(mux)))
}
