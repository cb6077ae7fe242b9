package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/myrjola/clustereval/internal/e2etest"
	"github.com/myrjola/clustereval/internal/errors"
	"github.com/myrjola/clustereval/internal/logging"
)

// TestSurvey opens the survey of every expert in a fresh browser and checks that the first task is shown. Nothing
// is submitted.
func TestSurvey(url string, experts []string) error {
	ctx := context.Background()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second) //nolint:mnd // 10 seconds
	defer cancel()

	for _, expert := range experts {
		client, err := e2etest.NewClient(url)
		if err != nil {
			return errors.Wrap(err, "create client")
		}
		if err = client.WaitForReady(ctx, "/api/healthy"); err != nil {
			return errors.Wrap(err, "wait for ready")
		}
		if _, err = client.StartSurvey(ctx, expert); err != nil {
			return errors.Wrap(err, "start survey", slog.String("expert_id", expert))
		}
	}
	return nil
}

func main() {
	loggerHandler := logging.NewContextHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	}))
	logger := slog.New(loggerHandler)
	ctx := context.Background()

	if len(os.Args) < 2 { //nolint:mnd // hostname and optional experts
		logger.LogAttrs(ctx, slog.LevelError, "usage: smoketest <hostname> [expert...]")
		os.Exit(1)
	}

	var (
		hostname = os.Args[1]
		url      = "https://" + hostname
		experts  = os.Args[2:]
	)
	if len(experts) == 0 {
		experts = []string{"E1"}
	}
	ctx = logging.WithAttrs(ctx, slog.String("hostname", url))

	if err := TestSurvey(url, experts); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "smoke test failed", errors.SlogError(err))
		os.Exit(1)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Smoke test successful 🙌", slog.Int("experts", len(experts)))
	os.Exit(0)
}
