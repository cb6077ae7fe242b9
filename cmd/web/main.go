package main

import (
	"context"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/donseba/go-htmx"
	"github.com/joho/godotenv"
	"github.com/myrjola/clustereval/internal/assignment"
	"github.com/myrjola/clustereval/internal/controller"
	"github.com/myrjola/clustereval/internal/envstruct"
	"github.com/myrjola/clustereval/internal/errors"
	"github.com/myrjola/clustereval/internal/logging"
	"github.com/myrjola/clustereval/internal/metrics"
	"github.com/myrjola/clustereval/internal/pprofserver"
	"github.com/myrjola/clustereval/internal/repositories"
	"github.com/myrjola/clustereval/internal/sqlite"
	"github.com/myrjola/clustereval/internal/submission"
)

type application struct {
	logger         *slog.Logger
	sessionManager *scs.SessionManager
	controller     *controller.Controller
	state          *repositories.StateRepository
	submissions    *repositories.SubmissionRepository
	metrics        *metrics.Metrics
	htmx           *htmx.HTMX
	templates      map[string]*template.Template
	defaultExpert  string
	experts        []string
}

type config struct {
	// Addr is the address to listen on. It's possible to choose the address dynamically with localhost:0.
	Addr string `env:"CLUSTEREVAL_ADDR" envDefault:"localhost:4000"`
	// PprofAddr enables the pprof server, e.g. localhost:6060. Empty disables it.
	PprofAddr string `env:"CLUSTEREVAL_PPROF_ADDR" envDefault:""`
	// SqliteURL is the path to the database file or ":memory:".
	SqliteURL string `env:"CLUSTEREVAL_SQLITE_URL" envDefault:"./clustereval.sqlite3"`
	// AssignmentsDir holds {expert}.json files. Ignored when AssignmentsURL is set.
	AssignmentsDir string `env:"CLUSTEREVAL_ASSIGNMENTS_DIR" envDefault:"./data/assignments"`
	AssignmentsURL string `env:"CLUSTEREVAL_ASSIGNMENTS_URL" envDefault:""`
	DefaultExpert  string `env:"CLUSTEREVAL_DEFAULT_EXPERT" envDefault:"E1"`
	// Experts is the comma separated list of experts linked from the admin switcher.
	Experts       string `env:"CLUSTEREVAL_EXPERTS" envDefault:"E1,E2,E3,E4,E5,E6,E7,E8,E9"`
	StoragePrefix string `env:"CLUSTEREVAL_STORAGE_PREFIX" envDefault:"pap_eval_v2"`
	AppVersion    string `env:"CLUSTEREVAL_APP_VERSION" envDefault:"pap-eval-v2"`
	// FormsURL is the external forms backend. Empty stores submissions in the built-in backend.
	FormsURL        string        `env:"CLUSTEREVAL_FORMS_URL" envDefault:""`
	FormName        string        `env:"CLUSTEREVAL_FORM_NAME" envDefault:"expert-eval"`
	SubmitTimeout   time.Duration `env:"CLUSTEREVAL_SUBMIT_TIMEOUT" envDefault:"8s"`
	SessionLifetime time.Duration `env:"CLUSTEREVAL_SESSION_LIFETIME" envDefault:"2160h"`
}

func run(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error {
	var (
		err error
		cfg config
	)
	if err = envstruct.Populate(&cfg, lookupEnv); err != nil {
		return errors.Wrap(err, "populate config")
	}
	if !assignment.ValidExpertID(cfg.DefaultExpert) {
		return errors.Wrap(assignment.ErrInvalidExpert, "default expert", slog.String("expert_id", cfg.DefaultExpert))
	}
	experts, err := parseExperts(cfg.Experts)
	if err != nil {
		return err
	}

	pprofserver.Launch(ctx, cfg.PprofAddr, logger)

	db, err := sqlite.NewDatabase(ctx, cfg.SqliteURL, logger)
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.LogAttrs(ctx, slog.LevelError, "failed to close database", errors.SlogError(closeErr))
		}
	}()
	logger.LogAttrs(ctx, slog.LevelInfo, "connected to db", slog.String("url", cfg.SqliteURL))

	sessionManager := scs.New()
	sessionManager.Store = sqlite3store.NewWithCleanupInterval(db.ReadWrite, 24*time.Hour) //nolint:mnd // daily
	sessionManager.Lifetime = cfg.SessionLifetime
	sessionManager.Cookie.Name = "clustereval_profile"

	state := repositories.NewStateRepository(db, logger)
	submissions := repositories.NewSubmissionRepository(db, logger)

	var loader assignment.Loader = assignment.NewFSLoader(cfg.AssignmentsDir)
	if cfg.AssignmentsURL != "" {
		loader = assignment.NewHTTPLoader(cfg.AssignmentsURL, &http.Client{Timeout: 10 * time.Second}, logger) //nolint:mnd,exhaustruct,lll // defaults
	}

	var transport submission.Transport = submissions
	if cfg.FormsURL != "" {
		transport = submission.NewFormsClient(cfg.FormsURL, &http.Client{}, logger) //nolint:exhaustruct // bounded by the pipeline timeout
	}
	pipeline := submission.NewPipeline(transport, submission.Config{
		FormName:   cfg.FormName,
		AppVersion: cfg.AppVersion,
		Timeout:    cfg.SubmitTimeout,
	}, logger)

	m := metrics.New()
	templates, err := newTemplateCache()
	if err != nil {
		return errors.Wrap(err, "parse templates")
	}

	app := application{
		logger:         logger,
		sessionManager: sessionManager,
		controller:     controller.New(loader, pipeline, m, controller.Config{StoragePrefix: cfg.StoragePrefix}, logger),
		state:          state,
		submissions:    submissions,
		metrics:        m,
		htmx:           htmx.New(),
		templates:      templates,
		defaultExpert:  cfg.DefaultExpert,
		experts:        experts,
	}

	if err = app.configureAndStartServer(ctx, cfg.Addr); err != nil {
		return errors.Wrap(err, "start server")
	}
	return nil
}

func parseExperts(list string) ([]string, error) {
	var experts []string
	for _, expert := range strings.Split(list, ",") {
		expert = strings.TrimSpace(expert)
		if expert == "" {
			continue
		}
		if !assignment.ValidExpertID(expert) {
			return nil, errors.Wrap(assignment.ErrInvalidExpert, "parse experts", slog.String("expert_id", expert))
		}
		experts = append(experts, expert)
	}
	return experts, nil
}

func main() {
	ctx := context.Background()
	loggerHandler := logging.NewContextHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource:   true,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	}))
	logger := slog.New(loggerHandler)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.LogAttrs(ctx, slog.LevelError, "failed to load .env", errors.SlogError(err))
		os.Exit(1)
	}

	if err := run(ctx, logger, os.LookupEnv); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "failure starting application", errors.SlogError(err))
		os.Exit(1)
	}
}
