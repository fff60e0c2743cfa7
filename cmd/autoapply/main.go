package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "autoapply",
	Short: "Apply to hh.ru vacancies on behalf of subscribed users",
	Long: `autoapply discovers matching vacancies for each active résumé of a user,
writes a cover letter and submits the application, never applying twice
to the same vacancy with the same résumé.

Examples:
  autoapply serve              # Telegram bot plus scheduled cohort runs
  autoapply run hourly         # One cohort run now
  autoapply apply 12345        # Manual run for one user
  autoapply bulk               # Run every subscribed user
  autoapply reconcile          # Resolve stuck attempts
  autoapply resume 12345 https://hh.ru/resume/<id>`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, runCmd, applyCmd, bulkCmd, reconcileCmd, authorizeCmd, resumeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
