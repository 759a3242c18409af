package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"task-manager/internal/cerr"
	"task-manager/internal/mail"
	"task-manager/internal/model"
	"task-manager/internal/repository"
)

// reportPeriod is the minimum time between two digests of one user.
const reportPeriod = 24 * time.Hour

var ErrNoRecipient = errors.New("user has no email address")

type Mailer interface {
	Send(ctx context.Context, msg mail.Message) error
}

// ChatNotifier delivers a digest copy to a linked chat.
type ChatNotifier interface {
	SendDigest(ctx context.Context, chatID int64, text string) error
}

type ReportOption func(*ReportService)

func WithChatNotifier(n ChatNotifier) ReportOption {
	return func(s *ReportService) { s.chat = n }
}

// WithFailFast aborts a run at the first failed user.
func WithFailFast(failFast bool) ReportOption {
	return func(s *ReportService) { s.failFast = failFast }
}

func WithClock(now func() time.Time) ReportOption {
	return func(s *ReportService) { s.now = now }
}

// ReportService dispatches digests to users whose last one is at least a day
// old, and manages the per-user report settings.
type ReportService struct {
	reportRepo *repository.ReportRepository
	digests    *DigestService
	mailer     Mailer
	chat       ChatNotifier
	from       string
	failFast   bool
	now        func() time.Time
}

func NewReportService(
	reportRepo *repository.ReportRepository,
	digests *DigestService,
	mailer Mailer,
	from string,
	opts ...ReportOption,
) *ReportService {
	s := &ReportService{
		reportRepo: reportRepo,
		digests:    digests,
		mailer:     mailer,
		from:       from,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendReports runs one dispatch pass and returns the usernames that got their
// digest. Failed users keep their old last_report and are retried on the next
// run; their errors are joined into the returned error.
func (s *ReportService) SendReports(ctx context.Context) ([]string, error) {
	now := s.now().UTC()
	reports, err := s.reportRepo.ListOverdue(ctx, now.Add(-reportPeriod))
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "dispatching reports", "due", len(reports))

	var (
		processed []string
		errs      []error
	)
	for i := range reports {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		report := &reports[i]
		if err := s.sendReport(ctx, report, now); err != nil {
			err = fmt.Errorf("report for %s: %w", report.User.Username, err)
			if s.failFast {
				return processed, err
			}
			slog.ErrorContext(ctx, "report failed", "user_id", report.UserID, "error", err)
			errs = append(errs, err)
			continue
		}
		processed = append(processed, report.User.Username)
	}

	slog.InfoContext(ctx, "reports dispatched", "sent", len(processed), "failed", len(errs))
	return processed, errors.Join(errs...)
}

func (s *ReportService) sendReport(ctx context.Context, report *model.Report, now time.Time) error {
	user := report.User
	if user.Email == "" {
		return ErrNoRecipient
	}

	digest, err := s.digests.BuildDigest(ctx, user)
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, mail.Message{
		From:    s.from,
		To:      []string{user.Email},
		Subject: digest.Subject,
		Body:    digest.Body,
	}); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	if s.chat != nil && user.TelegramChatID != nil {
		if err := s.chat.SendDigest(ctx, *user.TelegramChatID, digest.Subject+"\n\n"+digest.Body); err != nil {
			slog.WarnContext(ctx, "chat delivery failed", "user_id", user.ID, "error", err)
		}
	}

	return s.reportRepo.MarkSent(ctx, report, NextReportTime(now, report.Timing))
}

// NextReportTime is now in UTC with its hour replaced by timing.
func NextReportTime(now time.Time, timing int) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), timing,
		now.Minute(), now.Second(), now.Nanosecond(), time.UTC)
}

func (s *ReportService) GetReport(ctx context.Context, user *model.User) (*model.Report, error) {
	report, err := s.reportRepo.FindByUser(ctx, user.ID)
	if err != nil {
		return nil, notFound(err, "report not found")
	}
	return report, nil
}

// SetTiming stores the preferred hour of day (0-23) for the user's digest.
func (s *ReportService) SetTiming(ctx context.Context, user *model.User, timing int) (*model.Report, error) {
	if timing < 0 || timing > 23 {
		return nil, cerr.Invalid("timing must be an hour between 0 and 23")
	}
	report, err := s.GetReport(ctx, user)
	if err != nil {
		return nil, err
	}
	if err := s.reportRepo.UpdateTiming(ctx, report, timing); err != nil {
		return nil, err
	}
	return report, nil
}
