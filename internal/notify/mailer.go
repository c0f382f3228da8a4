// Package notify sends operational mail to the support team.
package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/config"
	"gopkg.in/gomail.v2"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers over SMTP with gomail.
type SMTPSender struct {
	from   string
	dialer *gomail.Dialer
}

func NewSMTPSender(cfg *config.Config) *SMTPSender {
	return &SMTPSender{
		from:   cfg.SMTPFrom,
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword),
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.Body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	return nil
}

// LogSender writes messages to the log instead of sending them. Used when
// SMTP is not configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Warn("mail not sent: smtp disabled", "to", msg.To, "subject", msg.Subject)
	return nil
}

// PaymentIssue is what support needs to chase a charge that did not verify.
type PaymentIssue struct {
	MarketID  string
	Reference string
	UserID    string
	Email     string
	Amount    string
	Currency  string
	Reason    string
}

// SupportNotifier turns payment problems into support mail.
type SupportNotifier struct {
	sender   Sender
	fallback string
	lookup   func(marketID string) string
}

// NewSupportNotifier sends to lookup(marketID) when it returns an address,
// otherwise to fallback.
func NewSupportNotifier(sender Sender, fallback string, lookup func(marketID string) string) *SupportNotifier {
	return &SupportNotifier{sender: sender, fallback: fallback, lookup: lookup}
}

func (n *SupportNotifier) recipient(marketID string) string {
	if n.lookup != nil {
		if to := n.lookup(marketID); to != "" {
			return to
		}
	}
	return n.fallback
}

func (n *SupportNotifier) PaymentVerificationFailed(ctx context.Context, issue PaymentIssue) error {
	to := n.recipient(issue.MarketID)
	if to == "" {
		return fmt.Errorf("no support address for market %q", issue.MarketID)
	}
	return n.sender.Send(ctx, Message{
		To:      to,
		Subject: "Payment verification failed: " + issue.Reference,
		Body:    paymentIssueBody(issue),
	})
}

func paymentIssueBody(issue PaymentIssue) string {
	rows := [][2]string{
		{"Market", issue.MarketID},
		{"Reference", issue.Reference},
		{"User", issue.UserID},
		{"Email", issue.Email},
		{"Amount", issue.Amount + " " + issue.Currency},
		{"Reason", issue.Reason},
	}
	var b strings.Builder
	b.WriteString("<p>A customer completed the payment popup but the charge could not be verified. No ad was published.</p><table>")
	for _, r := range rows {
		fmt.Fprintf(&b, "<tr><th align=\"left\">%s</th><td>%s</td></tr>", r[0], html.EscapeString(r[1]))
	}
	b.WriteString("</table>")
	return b.String()
}
