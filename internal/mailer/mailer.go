package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/obsplan/obsplan/pkg/config"
	"github.com/obsplan/obsplan/pkg/logger"
)

// Mailer sends magic-link login e-mail over SMTP.
type Mailer struct {
	cfg    config.SMTPConfig
	logger *logger.Logger
}

// New creates a new SMTP mailer.
func New(cfg config.SMTPConfig, logger *logger.Logger) *Mailer {
	return &Mailer{
		cfg:    cfg,
		logger: logger,
	}
}

// SendLoginLink mails the one-time login credentials to the address. The
// dial is bound to ctx; cancellation mid-conversation closes the
// connection, and the aborted send's error is logged rather than dropped.
func (m *Mailer) SendLoginLink(ctx context.Context, email, loginID, token string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", email)
	b.WriteString("Subject: Your observation planner login link\r\n")
	b.WriteString("\r\n")
	b.WriteString("Use the following credentials to sign in. The link expires shortly\r\n")
	b.WriteString("and works exactly once.\r\n\r\n")
	fmt.Fprintf(&b, "Login ID: %s\r\nToken: %s\r\n", loginID, token)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial failed: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- m.send(conn, auth, email, []byte(b.String()))
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send failed: %w", err)
		}
		m.logger.Infof("Sent login link to %s", email)
		return nil
	case <-ctx.Done():
		// Closing the connection aborts the in-flight conversation.
		conn.Close()
		go func() {
			if err := <-done; err != nil {
				m.logger.Warnf("SMTP send to %s abandoned after cancellation: %v", email, err)
			}
		}()
		return ctx.Err()
	}
}

func (m *Mailer) send(conn net.Conn, auth smtp.Auth, rcpt string, msg []byte) error {
	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if auth != nil {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
				return err
			}
		}
		if err := c.Auth(auth); err != nil {
			return err
		}
	}

	if err := c.Mail(m.cfg.From); err != nil {
		return err
	}
	if err := c.Rcpt(rcpt); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
