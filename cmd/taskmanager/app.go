package main

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"task-manager/internal/api"
	"task-manager/internal/bot"
	"task-manager/internal/config"
	"task-manager/internal/mail"
	"task-manager/internal/repository"
	"task-manager/internal/service"
)

// application holds the wired components shared by the commands.
type application struct {
	cfg       config.Config
	db        *gorm.DB
	reports   *service.ReportService
	scheduler *service.SchedulerService
	server    *api.Server
	bot       *bot.Bot
}

func newApp(cfg config.Config) (_ *application, err error) {
	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			closeDB(db)
		}
	}()

	tx := repository.NewTransactor(db)
	userRepo := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	reportRepo := repository.NewReportRepository(db)
	historyRepo := repository.NewHistoryRepository(db)

	authSvc := service.NewAuthService(tx, userRepo, reportRepo, cfg.JWTSecret, cfg.TokenTTL)
	taskSvc := service.NewTaskService(tx, taskRepo, reportRepo, historyRepo, cfg.History)
	digestSvc := service.NewDigestService(taskRepo)

	mailer, err := newMailer(cfg.MailConfig)
	if err != nil {
		return nil, err
	}

	a := &application{
		cfg:       cfg,
		db:        db,
		scheduler: service.NewSchedulerService(time.UTC, cfg.Timeout),
	}

	opts := []service.ReportOption{service.WithFailFast(cfg.FailFast)}
	if cfg.TelegramToken != "" {
		a.bot, err = bot.New(cfg.TelegramToken, userRepo, taskSvc, digestSvc)
		if err != nil {
			return nil, err
		}
		opts = append(opts, service.WithChatNotifier(a.bot))
	}
	a.reports = service.NewReportService(reportRepo, digestSvc, mailer, cfg.From, opts...)

	a.server = api.NewServer(
		cfg.HTTPAddr(),
		cfg.CORSAllowedOrigins,
		authSvc,
		taskSvc,
		a.reports,
		cfg.LoginRateLimit,
		cfg.LoginRateWindow,
	)
	return a, nil
}

func newMailer(cfg config.MailConfig) (service.Mailer, error) {
	addr := cfg.SMTPAddr()
	if addr == "" {
		slog.Warn("SMTP_HOST not set, reports are written to the log")
		return mail.LogMailer{}, nil
	}
	return mail.NewSMTPMailer(addr, cfg.SMTPUsername, cfg.SMTPPassword)
}

// scheduleReports registers the dispatcher, by cron spec when configured and
// by interval otherwise.
func (a *application) scheduleReports() error {
	job := func(ctx context.Context) error {
		_, err := a.reports.SendReports(ctx)
		return err
	}
	var err error
	if a.cfg.Cron != "" {
		_, err = a.scheduler.Schedule("send-reports", a.cfg.Cron, job)
	} else {
		_, err = a.scheduler.ScheduleInterval("send-reports", a.cfg.Interval, job)
	}
	return err
}

func (a *application) close() {
	closeDB(a.db)
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
