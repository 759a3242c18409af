package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"
	"github.com/sourcegraph/conc"

	"task-manager/internal/clog"
	"task-manager/internal/config"
	"task-manager/internal/repository"
)

const shutdownTimeout = 10 * time.Second

var (
	app = kingpin.New("taskmanager", "Personal task manager with priority ordering and email digests")

	serveCmd   = app.Command("serve", "Run the HTTP API, the report scheduler and the Telegram bot").Default()
	sendCmd    = app.Command("send-reports", "Send every due report once and exit")
	migrateCmd = app.Command("migrate", "Create or update the database schema")
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(clog.NewLogger(os.Stderr, cfg.Env, cfg.SlogLevel()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case serveCmd.FullCommand():
		err = runServe(ctx, cfg)
	case sendCmd.FullCommand():
		err = runSendReports(ctx, cfg)
	case migrateCmd.FullCommand():
		err = runMigrate(cfg)
	}
	if err != nil {
		slog.Error("command failed", "command", command, "error", err)
		os.Exit(1)
	}
}

func runServe(parent context.Context, cfg config.Config) error {
	ctx, cancelRun := context.WithCancel(parent)
	defer cancelRun()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.scheduleReports(); err != nil {
		return err
	}
	a.scheduler.Start(ctx)
	defer a.scheduler.Stop()

	var wg conc.WaitGroup
	serverErr := make(chan error, 1)
	wg.Go(func() {
		if err := a.server.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	})
	if a.bot != nil {
		wg.Go(func() {
			if err := a.bot.Start(ctx); err != nil {
				slog.Error("bot stopped", "error", err)
			}
		})
	}

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err = <-serverErr:
	}
	cancelRun()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := a.server.Shutdown(shutdownCtx); shutdownErr != nil {
		slog.Warn("http shutdown", "error", shutdownErr)
	}
	wg.Wait()
	slog.Info("shutdown complete")
	return err
}

func runSendReports(ctx context.Context, cfg config.Config) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	var processed []string
	runErr := a.scheduler.Run(ctx, "send-reports", func(ctx context.Context) error {
		var err error
		processed, err = a.reports.SendReports(ctx)
		return err
	})

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	for _, username := range processed {
		fmt.Printf("%s %s\n", green("sent"), username)
	}
	if runErr != nil {
		fmt.Printf("%s %v\n", red("failed"), runErr)
		return runErr
	}
	fmt.Printf("%d report(s) sent\n", len(processed))
	return nil
}

func runMigrate(cfg config.Config) error {
	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	closeDB(db)
	fmt.Println(color.GreenString("schema up to date"))
	return nil
}
