package exportcmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/myrjola/clustereval/internal/errors"
	"github.com/myrjola/clustereval/internal/export"
	"github.com/myrjola/clustereval/internal/repositories"
	"github.com/myrjola/clustereval/internal/sqlite"
	"github.com/spf13/cobra"
)

var Group = &cobra.Group{
	ID:    "export",
	Title: "Data export",
}

func init() {
	Export.Flags().String("db", "", "path to the SQLite database of the built-in forms backend")
	Export.Flags().String("csv", "", "path to a CSV export of the forms backend with a payload column")
	Export.Flags().String("out", "./export", "directory for the generated CSV files")
	Export.Flags().Bool("keep-duplicates", false, "expand superseded submissions into the rating tables too")
	Export.MarkFlagsMutuallyExclusive("db", "csv")
	Export.MarkFlagsOneRequired("db", "csv")
}

var Export = &cobra.Command{
	Use:     "export",
	GroupID: "export",
	Short:   "Export submissions as tidy CSV files",
	Long: `Reads received submissions, keeps the latest one per expert, assignment and browser session, and writes
submissions.csv, item_ratings.csv, cluster_ratings.csv and pair_ratings.csv.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dbPath, _ := cmd.Flags().GetString("db")
		csvPath, _ := cmd.Flags().GetString("csv")
		out, _ := cmd.Flags().GetString("out")
		keepDuplicates, _ := cmd.Flags().GetBool("keep-duplicates")
		logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))

		var (
			sources []export.Source
			err     error
		)
		if dbPath != "" {
			sources, err = fromDatabase(cmd.Context(), dbPath, logger)
		} else {
			sources, err = fromCSV(csvPath)
		}
		if err != nil {
			return err
		}

		records, parseErrors := export.Decode(sources, time.Now())
		result := export.Build(records, keepDuplicates)
		if err = result.WriteDir(out); err != nil {
			return errors.Wrap(err, "write export")
		}

		kept := 0
		for _, s := range result.Submissions {
			if s.Kept {
				kept++
			}
		}
		summary(cmd.OutOrStdout(), out, len(sources), parseErrors, len(result.Submissions), kept, result)
		return nil
	},
}

func summary(w io.Writer, out string, rows, parseErrors, submissions, kept int, result export.Result) {
	_, _ = fmt.Fprintf(w, "Read %d rows (%d unparsable)\n", rows, parseErrors)
	_, _ = fmt.Fprintf(w, "Submissions: %d, kept: %d\n", submissions, kept)
	_, _ = fmt.Fprintf(w, "Rows: %d items, %d clusters, %d pairs\n",
		len(result.Items), len(result.Clusters), len(result.Pairs))
	_, _ = fmt.Fprintf(w, "Wrote %s\n", out)
}

func fromDatabase(ctx context.Context, path string, logger *slog.Logger) ([]export.Source, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	db, err := sqlite.NewDatabase(ctx, path, logger)
	if err != nil {
		return nil, errors.Wrap(err, "open database", slog.String("path", path))
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.LogAttrs(ctx, slog.LevelError, "failed to close database", errors.SlogError(closeErr))
		}
	}()
	rows, err := repositories.NewSubmissionRepository(db, logger).List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list submissions")
	}
	sources := make([]export.Source, 0, len(rows))
	for _, row := range rows {
		sources = append(sources, export.Source{Payload: row.Payload, Created: row.Received})
	}
	return sources, nil
}

func fromCSV(path string) ([]export.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open csv", slog.String("path", path))
	}
	defer f.Close()
	sources, err := export.ReadCSV(f)
	if err != nil {
		return nil, errors.Wrap(err, "read csv", slog.String("path", path))
	}
	return sources, nil
}
