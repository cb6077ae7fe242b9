package main

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/myrjola/clustereval/cmd/cli/exportcmd"
	"github.com/myrjola/clustereval/internal/errors"
	"github.com/spf13/cobra"
)

func init() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	rootCmd.AddGroup(exportcmd.Group)
	rootCmd.AddCommand(exportcmd.Export)
}

var rootCmd = &cobra.Command{
	Use:          "clustereval-cli",
	Long:         `Command line utilities for the cluster evaluation survey`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
