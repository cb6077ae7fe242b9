package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/myrjola/clustereval/internal/logging"
	"github.com/stretchr/testify/require"
)

func TestContextHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(logging.NewContextHandler(slog.NewTextHandler(&buf, nil))).With("component", "test")

	ctx := logging.WithAttrs(context.Background(), slog.String("expert_id", "E1"))
	ctx = logging.WithAttrs(ctx, slog.String("assignment_id", "a1"), slog.String("expert_id", "E2"))
	logger.InfoContext(ctx, "loaded")

	out := buf.String()
	require.Contains(t, out, "component=test")
	require.Contains(t, out, "expert_id=E2")
	require.Contains(t, out, "assignment_id=a1")
	require.NotContains(t, out, "expert_id=E1")
	require.Len(t, logging.Attrs(ctx), 2)
}
