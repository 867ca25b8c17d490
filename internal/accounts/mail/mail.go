// Package mail renders the account lifecycle emails. Delivery is pluggable,
// the bundled LogNotifier only writes the rendered message to the log.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"text/template"
	"time"

	"github.com/aussiebroadwan/accounts/pkg/slogx"
)

// Notifier sends the account lifecycle emails.
type Notifier interface {
	SendVerificationCode(ctx context.Context, to, name, code string, ttl time.Duration) error
	SendWelcome(ctx context.Context, to, name string) error
	SendPasswordReset(ctx context.Context, to, resetURL string, ttl time.Duration) error
	SendPasswordResetSuccess(ctx context.Context, to string) error
}

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	Body    string
}

var templates = template.Must(template.New("mail").Funcs(template.FuncMap{"ttl": formatTTL}).Parse(`
{{define "verification"}}Hi {{.Name}},

Your verification code is {{.Code}}. It expires in {{ttl .TTL}}.
{{end}}
{{define "welcome"}}Hi {{.Name}},

Your email is verified. Welcome aboard.
{{end}}
{{define "reset"}}Someone asked to reset the password for this account.

Follow this link within {{ttl .TTL}} to choose a new password:
{{.URL}}

If it wasn't you, ignore this email.
{{end}}
{{define "reset_success"}}Your password was changed.

If you didn't do this, reset your password immediately.
{{end}}
`))

// formatTTL spells a duration the way it reads in a sentence, e.g. "24 hours".
func formatTTL(d time.Duration) string {
	unit := func(n int64, name string) string {
		if n == 1 {
			return "1 " + name
		}
		return fmt.Sprintf("%d %ss", n, name)
	}
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return unit(int64(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return unit(int64(d/time.Minute), "minute")
	default:
		return d.Round(time.Second).String()
	}
}

// Render executes the named template into a Message.
func Render(name, to, subject string, data any) (Message, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return Message{}, fmt.Errorf("mail: render %s: %w", name, err)
	}
	return Message{To: to, Subject: subject, Body: buf.String()}, nil
}

// LogNotifier renders messages and logs them instead of sending.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier logs through base, or the request logger when base is nil.
func NewLogNotifier(base *slog.Logger) *LogNotifier {
	return &LogNotifier{log: base}
}

func (n *LogNotifier) SendVerificationCode(ctx context.Context, to, name, code string, ttl time.Duration) error {
	msg, err := Render("verification", to, "Verify your email", struct {
		Name, Code string
		TTL        time.Duration
	}{name, code, ttl})
	if err != nil {
		return err
	}
	return n.deliver(ctx, msg)
}

func (n *LogNotifier) SendWelcome(ctx context.Context, to, name string) error {
	msg, err := Render("welcome", to, "Welcome", struct{ Name string }{name})
	if err != nil {
		return err
	}
	return n.deliver(ctx, msg)
}

func (n *LogNotifier) SendPasswordReset(ctx context.Context, to, resetURL string, ttl time.Duration) error {
	msg, err := Render("reset", to, "Reset your password", struct {
		URL string
		TTL time.Duration
	}{resetURL, ttl})
	if err != nil {
		return err
	}
	return n.deliver(ctx, msg)
}

func (n *LogNotifier) SendPasswordResetSuccess(ctx context.Context, to string) error {
	msg, err := Render("reset_success", to, "Your password was reset", nil)
	if err != nil {
		return err
	}
	return n.deliver(ctx, msg)
}

// Bodies carry live codes and links, so they only go out at debug level.
func (n *LogNotifier) deliver(ctx context.Context, msg Message) error {
	log := n.log
	if log == nil {
		log = slogx.FromContext(ctx)
	}
	log.InfoContext(ctx, "mail queued", "to", msg.To, "subject", msg.Subject)
	log.DebugContext(ctx, "mail body", "to", msg.To, "body", msg.Body)
	return nil
}
