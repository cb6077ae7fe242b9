package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/myrjola/clustereval/internal/errors"
	"github.com/myrjola/clustereval/internal/repositories"
	"github.com/myrjola/clustereval/internal/sqlite"
	"github.com/myrjola/clustereval/internal/testhelpers"
)

// main migrates a copy of a production database and checks that the stored submissions survived.
func main() {
	logger := testhelpers.NewLogger(os.Stdout)
	var (
		err       error
		start     = time.Now()
		ctx       context.Context
		sqliteURL string
		ok        bool
		cancel    context.CancelFunc
	)
	ctx = context.Background()
	ctx, cancel = context.WithTimeout(ctx, 5*time.Second) //nolint:mnd // 5 seconds

	if sqliteURL, ok = os.LookupEnv("CLUSTEREVAL_SQLITE_URL"); !ok {
		logger.LogAttrs(ctx, slog.LevelError, "CLUSTEREVAL_SQLITE_URL not set")
		os.Exit(1)
	}

	var db *sqlite.Database
	if db, err = sqlite.NewDatabase(ctx, sqliteURL, logger); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating database",
			slog.String("url", sqliteURL), errors.SlogError(err))
		os.Exit(1)
	}

	submissions := repositories.NewSubmissionRepository(db, logger)
	var rows []repositories.Submission
	if rows, err = submissions.List(ctx); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error listing submissions", errors.SlogError(err))
		os.Exit(1)
	}
	for _, row := range rows {
		if row.SubmissionUUID == "" || row.Payload == "" {
			logger.LogAttrs(ctx, slog.LevelError, "submission lost data during migration", slog.Int64("id", row.ID))
			os.Exit(1)
		}
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "submission count", slog.Int("count", len(rows)))

	logger.LogAttrs(ctx, slog.LevelInfo, "Migration test successful 🙌", slog.Duration("duration", time.Since(start)))
	cancel()
	if err = db.Close(); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error closing database", errors.SlogError(err))
		os.Exit(1)
	}
	os.Exit(0)
}
