package services

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/kendall-kelly/storefront-api/config"
	"github.com/kendall-kelly/storefront-api/logger"
	"github.com/kendall-kelly/storefront-api/models"
	"github.com/kendall-kelly/storefront-api/utils"
	"go.uber.org/zap"
)

// Message is an outgoing plain-text email
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer sends email
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer delivers mail through an SMTP relay with PLAIN auth
type SMTPMailer struct {
	addr string
	auth smtp.Auth
	from string
}

// LogMailer only logs messages. Used when no SMTP host is configured.
type LogMailer struct{}

var mailerInstance Mailer = LogMailer{}

// InitMailer picks the SMTP mailer when SMTP_HOST is set
func InitMailer() Mailer {
	cfg := config.GetConfig()
	if cfg.SMTPHost == "" {
		mailerInstance = LogMailer{}
		return mailerInstance
	}

	mailerInstance = &SMTPMailer{
		addr: fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
		auth: smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost),
		from: cfg.MailFrom,
	}
	return mailerInstance
}

// GetMailer returns the active mailer
func GetMailer() Mailer {
	return mailerInstance
}

// SetMailer sets the active mailer (primarily for testing)
func SetMailer(m Mailer) {
	mailerInstance = m
}

// Send delivers msg. net/smtp has no context support, so ctx is only checked
// before dialing.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.Body)

	if err := smtp.SendMail(m.addr, m.auth, m.from, []string{msg.To}, []byte(b.String())); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// Send logs the message
func (LogMailer) Send(ctx context.Context, msg Message) error {
	logger.Info("Email (not delivered)", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

// SendAsync sends msg in the background. Failures are logged and never reach
// the caller.
func SendAsync(mailer Mailer, msg Message) {
	if mailer == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := mailer.Send(ctx, msg); err != nil {
			logger.Warn("Failed to send email",
				zap.String("to", msg.To),
				zap.String("subject", msg.Subject),
				zap.Error(err))
		}
	}()
}

// OrderConfirmationMessage builds the confirmation email for a confirmed order
func OrderConfirmationMessage(order *models.Order, to string) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Thank you for your order %s.\n\n", order.OrderNumber)
	for _, item := range order.Items {
		name := fmt.Sprintf("Item #%d", item.VariantID)
		if item.Variant != nil && item.Variant.Product != nil {
			name = fmt.Sprintf("%s (%s / %s)", item.Variant.Product.Name, item.Variant.Color, item.Variant.Size)
		}
		fmt.Fprintf(&b, "  %d x %s  ₹%s\n", item.Quantity, name, utils.FormatMajor(item.Subtotal))
	}
	fmt.Fprintf(&b, "\nSubtotal: ₹%s\n", utils.FormatMajor(order.Subtotal))
	if order.Discount > 0 {
		fmt.Fprintf(&b, "Discount: -₹%s\n", utils.FormatMajor(order.Discount))
	}
	fmt.Fprintf(&b, "Shipping: ₹%s\n", utils.FormatMajor(order.Shipping))
	if order.Tax > 0 {
		fmt.Fprintf(&b, "Tax: ₹%s\n", utils.FormatMajor(order.Tax))
	}
	fmt.Fprintf(&b, "Total: ₹%s\n", utils.FormatMajor(order.Total))
	if order.PaymentMethod == models.PaymentMethodCOD {
		b.WriteString("\nPlease keep the amount ready for cash on delivery.\n")
	}

	return Message{
		To:      to,
		Subject: fmt.Sprintf("Order %s confirmed", order.OrderNumber),
		Body:    b.String(),
	}
}

// OTPMessage builds the login code email
func OTPMessage(to, code string, ttl time.Duration) Message {
	return Message{
		To:      to,
		Subject: "Your login code",
		Body:    fmt.Sprintf("Your login code is %s. It expires in %d minutes.\n", code, int(ttl.Minutes())),
	}
}
