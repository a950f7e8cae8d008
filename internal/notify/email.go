package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/yakoovad/reviewmate/internal/config"
	"github.com/yakoovad/reviewmate/internal/model"
	"github.com/yakoovad/reviewmate/internal/repository"
)

// Mailer sends status-change notifications and the daily digest over SMTP.
// With SMTP unconfigured every send is a silent no-op, matching a local
// development setup without a mail server.
type Mailer struct {
	cfg    config.SMTPConfig
	dialer *gomail.Dialer
	logger *zap.Logger
}

func NewMailer(cfg config.SMTPConfig, logger *zap.Logger) *Mailer {
	m := &Mailer{cfg: cfg, logger: logger}
	if cfg.Configured() {
		m.dialer = gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass)
	}
	return m
}

// NotifyStatusChange mails the owner that a tracked PR changed status.
func (m *Mailer) NotifyStatusChange(_ context.Context, user *model.User, review *model.Review) error {
	if m.dialer == nil {
		return nil
	}

	subject := fmt.Sprintf("[ReviewMate] %s #%d is %s", review.Repository, review.PRNumber, review.Status)
	body := fmt.Sprintf(
		"Hi %s,\n\n"+
			"The pull request %s is now %s.\n"+
			"Title: %s\n"+
			"Files changed: %d\n"+
			"Lines changed: %d\n\n"+
			"View PR: %s\n\n"+
			"– ReviewMate",
		user.Email, review.PRID, review.Status, review.Title,
		review.FilesChanged, review.LinesChanged, review.PRURL,
	)

	return m.send(user.Email, subject, body)
}

// DigestSender mails each user their pending reviews. Wired to a cron
// schedule in main.
type DigestSender struct {
	mailer  *Mailer
	users   repository.UserRepository
	reviews repository.ReviewRepository
	logger  *zap.Logger
}

func NewDigestSender(mailer *Mailer, users repository.UserRepository, reviews repository.ReviewRepository, logger *zap.Logger) *DigestSender {
	return &DigestSender{mailer: mailer, users: users, reviews: reviews, logger: logger}
}

const digestLimit = 50

func (d *DigestSender) SendDailyDigest(ctx context.Context) {
	if d.mailer.dialer == nil {
		return
	}

	users, err := d.users.ListAll(ctx)
	if err != nil {
		d.logger.Error("failed to list users for digest", zap.Error(err))
		return
	}

	for _, user := range users {
		pending, err := d.reviews.List(ctx, user.ID, &repository.ListFilter{
			Status: string(model.ReviewStatusOpen),
			SortBy: "date",
		})
		if err != nil {
			d.logger.Error("failed to list pending reviews", zap.String("user_id", user.ID), zap.Error(err))
			continue
		}
		if len(pending) == 0 {
			continue
		}
		if len(pending) > digestLimit {
			pending = pending[:digestLimit]
		}

		subject := fmt.Sprintf("[ReviewMate] Pending reviews (%d)", len(pending))
		if err = d.mailer.send(user.Email, subject, buildDigestBody(pending)); err != nil {
			d.logger.Error("failed to send digest", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
}

func buildDigestBody(reviews []*repository.Review) string {
	lines := make([]string, 0, len(reviews))
	for _, review := range reviews {
		ageHours := int(time.Since(review.CreatedAt).Round(time.Hour).Hours())
		lines = append(lines, fmt.Sprintf("• %s #%d (%s) — %dh old\n   %s",
			review.Repository, review.PRNumber, review.Priority, ageHours, review.PRURL))
	}

	return fmt.Sprintf("Here are your pending pull requests:\n\n%s\n\nKeep the reviews flowing!",
		strings.Join(lines, "\n\n"))
}

func (m *Mailer) send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	return m.dialer.DialAndSend(msg)
}
