package main

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"autoapply/internal/model"
	"autoapply/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot and the cohort triggers",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var runCmd = &cobra.Command{
	Use:   "run <trigger>",
	Short: "Run one cohort trigger now (e.g. hourly, daily)",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrigger,
}

var applyCmd = &cobra.Command{
	Use:   "apply <user_id>",
	Short: "Run a manual pass for one user",
	Args:  cobra.ExactArgs(1),
	RunE:  runApply,
}

var bulkCmd = &cobra.Command{
	Use:   "bulk [user_id...]",
	Short: "Run the given users, or every subscribed user",
	RunE:  runBulk,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Resolve attempts stuck in the sent state",
	Args:  cobra.NoArgs,
	RunE:  runReconcile,
}

var authorizeCmd = &cobra.Command{
	Use:   "authorize <user_id> [code]",
	Short: "Print the hh.ru authorization link, or store the token for a code",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runAuthorize,
}

var resumeCmd = &cobra.Command{
	Use:   "resume <user_id> <link|id>",
	Short: "Fetch an hh.ru résumé and store it active for the user",
	Args:  cobra.ExactArgs(2),
	RunE:  runResume,
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// withApp wires the app, starts the pool and runs fn under a signal context.
func withApp(withBot bool, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(withBot)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signalContext()
	defer cancel()
	a.start(ctx)
	return fn(ctx, a)
}

func runServe(_ *cobra.Command, _ []string) error {
	return withApp(true, func(ctx context.Context, a *app) error {
		a.log.Info("starting autoapply", "workers", a.cfg.Workers)
		go a.sched.Run(ctx)
		a.bot.Run(ctx)
		a.log.Info("autoapply stopped")
		return nil
	})
}

func runTrigger(cmd *cobra.Command, args []string) error {
	return withApp(false, func(ctx context.Context, a *app) error {
		sum, err := a.sched.ScheduleCohort(ctx, args[0])
		if err != nil {
			return err
		}
		printSummary(cmd, sum)
		return nil
	})
}

func runApply(cmd *cobra.Command, args []string) error {
	userID, err := parseUserID(args[0])
	if err != nil {
		return err
	}
	return withApp(false, func(ctx context.Context, a *app) error {
		run, err := a.sched.RunUser(ctx, userID, model.RunManual)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "run %s: dispatched %d, sent %d, failed %d, skipped tests %d\n",
			run.ID, run.Dispatched, run.Sent, run.Failed, len(run.SkippedTests))
		return nil
	})
}

func runBulk(cmd *cobra.Command, args []string) error {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := parseUserID(arg)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	return withApp(false, func(ctx context.Context, a *app) error {
		sum, err := a.sched.ScheduleBulk(ctx, ids)
		if err != nil {
			return err
		}
		printSummary(cmd, sum)
		return nil
	})
}

func runReconcile(_ *cobra.Command, _ []string) error {
	return withApp(false, func(ctx context.Context, a *app) error {
		a.sched.Reconcile(ctx)
		return nil
	})
}

func runAuthorize(cmd *cobra.Command, args []string) error {
	userID, err := parseUserID(args[0])
	if err != nil {
		return err
	}
	return withApp(false, func(ctx context.Context, a *app) error {
		if len(args) == 1 {
			fmt.Fprintln(cmd.OutOrStdout(), a.auth.AuthCodeURL(userID))
			return nil
		}
		if err := a.auth.Exchange(ctx, userID, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "token stored for user %d\n", userID)
		return nil
	})
}

func runResume(cmd *cobra.Command, args []string) error {
	userID, err := parseUserID(args[0])
	if err != nil {
		return err
	}
	return withApp(false, func(ctx context.Context, a *app) error {
		r, err := a.enroll.AddResume(ctx, userID, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "resume %s stored for user %d, keywords: %s\n",
			r.ID, userID, strings.Join(r.PositiveKeywords, ", "))
		return nil
	})
}

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}

func printSummary(cmd *cobra.Command, sum scheduler.Summary) {
	fmt.Fprintf(cmd.OutOrStdout(), "users %d, skipped %d, dispatched %d, sent %d\n",
		sum.Users, sum.Skipped, sum.Dispatched, sum.Sent)
}
