package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"sync"
)

// Notifier delivers password-reset codes to account holders.
type Notifier interface {
	// SendResetCode delivers the code to the address. Does not log the code.
	SendResetCode(ctx context.Context, email, name, code string) error
}

// SMTPNotifier sends reset codes by email over SMTP.
type SMTPNotifier struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

func NewSMTPNotifier(host, port, username, password, from string) *SMTPNotifier {
	return &SMTPNotifier{Host: host, Port: port, Username: username, Password: password, From: from}
}

func (n *SMTPNotifier) SendResetCode(ctx context.Context, email, name, code string) error {
	if n.Host == "" {
		return fmt.Errorf("notify: smtp host not configured")
	}
	greeting := name
	if greeting == "" {
		greeting = "there"
	}
	msg := strings.Join([]string{
		"From: " + n.From,
		"To: " + email,
		"Subject: Your password reset code",
		"",
		"Hi " + greeting + ",",
		"",
		"Your password reset code is: " + code,
		"",
		"The code expires shortly. If you did not request a reset, ignore this email.",
	}, "\r\n")

	var auth smtp.Auth
	if n.Username != "" {
		auth = smtp.PlainAuth("", n.Username, n.Password, n.Host)
	}
	return smtp.SendMail(n.Host+":"+n.Port, auth, n.From, []string{email}, []byte(msg))
}

// MemoryNotifier records sent codes for tests.
type MemoryNotifier struct {
	mu   sync.Mutex
	sent map[string]string // email -> last code
}

func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{sent: make(map[string]string)}
}

func (n *MemoryNotifier) SendResetCode(ctx context.Context, email, name, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent[email] = code
	return nil
}

// LastCode returns the last code sent to the address, empty when none was.
func (n *MemoryNotifier) LastCode(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent[email]
}
