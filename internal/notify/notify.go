// Package notify emails the run summary after each pipeline run.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/smtp"
	"net/textproto"
	"strings"

	"github.com/jonathan/kids-video-pipeline/internal/config"
	"github.com/jonathan/kids-video-pipeline/internal/errkind"
	"github.com/jonathan/kids-video-pipeline/internal/fetch"
	"github.com/jonathan/kids-video-pipeline/internal/provider"
	"github.com/jonathan/kids-video-pipeline/internal/retry"
	"github.com/jonathan/kids-video-pipeline/internal/types"
)

// Provider names.
const (
	SMTPName   = "smtp"
	ResendName = "resend"
)

// Notifier delivers a run summary.
type Notifier interface {
	Notify(ctx context.Context, summary *types.RunSummary) error
}

// Providers is the registry of notification transports.
var Providers = provider.NewRegistry[Notifier]("notify")

func init() {
	Providers.Register(SMTPName, func(cfg *config.Config, env *provider.Env) (Notifier, error) {
		return NewSMTP(cfg.Notifications.Email, env)
	})
	Providers.Register(ResendName, func(cfg *config.Config, env *provider.Env) (Notifier, error) {
		return NewResend(cfg.Notifications.Email, env)
	})
}

// New creates the notifier selected by notifications.email.provider, or nil
// when email is disabled.
func New(cfg *config.Config, env *provider.Env) (Notifier, error) {
	if !cfg.Notifications.Email.Enabled {
		return nil, nil
	}
	return Providers.New(cfg.Notifications.Email.Provider, cfg, env)
}

// Message renders the subject and plain-text body for a summary.
func Message(s *types.RunSummary) (subject, body string) {
	stamp := s.FinishedAt.Format("2006-01-02 15:04:05")
	subject = fmt.Sprintf("[Kids Video Pipeline] Run Complete - %s", stamp)

	var b strings.Builder
	fmt.Fprintf(&b, "Pipeline run completed: %s\n", stamp)
	fmt.Fprintf(&b, "Variant    : %s\n", s.Variant)
	if s.Topic != nil {
		fmt.Fprintf(&b, "Topic      : %s (%s)\n", s.Topic.Topic, s.Topic.Category)
	}
	if s.Error != "" {
		fmt.Fprintf(&b, "Error      : %s\n", s.Error)
	}
	b.WriteString("\n")

	for _, l := range s.Languages {
		name := l.Name
		if name == "" {
			name = l.Code
		}
		pad := 40 - len([]rune(name))
		if pad < 0 {
			pad = 0
		}
		fmt.Fprintf(&b, "-- %s %s\n", name, strings.Repeat("-", pad))
		fmt.Fprintf(&b, "  Full video : %s\n", orFailed(l.VideoURL))
		fmt.Fprintf(&b, "  Shorts     : %s\n", orFailed(l.ShortsURL))
		if l.ReelURL != "" {
			fmt.Fprintf(&b, "  Reel       : %s\n", l.ReelURL)
		}
		if l.PlaylistID != "" {
			fmt.Fprintf(&b, "  Playlist   : %s\n", l.PlaylistID)
		}
		if l.Error != "" {
			fmt.Fprintf(&b, "  Error      : %s\n", l.Error)
		}
		b.WriteString("\n")
	}
	runDir := s.RunDir
	if runDir == "" {
		runDir = "N/A"
	}
	fmt.Fprintf(&b, "Output dir : %s", runDir)
	return subject, b.String()
}

func orFailed(url string) string {
	if url == "" {
		return "FAILED / skipped"
	}
	return url
}

// SendMailFunc matches smtp.SendMail.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTP sends mail through an authenticated SMTP relay. smtp.SendMail
// upgrades the connection with STARTTLS when the server offers it.
type SMTP struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       string
	env      *provider.Env
	sendMail SendMailFunc
}

// NewSMTP creates an SMTP notifier.
func NewSMTP(cfg config.EmailConfig, env *provider.Env) (*SMTP, error) {
	if err := provider.RequireKey("notify", "EMAIL_SENDER", cfg.SenderEmail); err != nil {
		return nil, err
	}
	if err := provider.RequireKey("notify", "EMAIL_PASSWORD", cfg.SenderPassword); err != nil {
		return nil, err
	}
	if env == nil {
		env = &provider.Env{}
	}
	return &SMTP{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.SenderEmail,
		password: cfg.SenderPassword,
		from:     cfg.SenderEmail,
		to:       cfg.RecipientEmail,
		env:      env,
		sendMail: smtp.SendMail,
	}, nil
}

// SetSendMail replaces the transport.
func (s *SMTP) SetSendMail(fn SendMailFunc) { s.sendMail = fn }

// Notify implements Notifier.
func (s *SMTP) Notify(ctx context.Context, summary *types.RunSummary) error {
	subject, body := Message(summary)

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.from)
	fmt.Fprintf(&msg, "To: %s\r\n", s.to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	msg.WriteString("\r\n")

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	auth := smtp.PlainAuth("", s.username, s.password, s.host)
	err := retry.Do(ctx, s.env.Policy(SMTPName), func(ctx context.Context) error {
		if err := s.env.Acquire(ctx, SMTPName); err != nil {
			return err
		}
		return classifySMTP(s.sendMail(addr, auth, s.from, []string{s.to}, []byte(msg.String())))
	})
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	logf("Email sent to %s (via SMTP)", s.to)
	return nil
}

// classifySMTP retries 4xx replies and network failures.
func classifySMTP(err error) error {
	if err == nil {
		return nil
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code >= 400 && tpErr.Code < 500 {
		return errkind.Transient(SMTPName, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return errkind.Transient(SMTPName, err)
	}
	return err
}

// Resend sends mail through the Resend HTTP API.
type Resend struct {
	client *fetch.Client
	url    string
	from   string
	to     string
}

// NewResend creates a Resend notifier. The sender defaults to Resend's
// onboarding address.
func NewResend(cfg config.EmailConfig, env *provider.Env) (*Resend, error) {
	if err := provider.RequireKey("notify", "RESEND_API_KEY", cfg.ResendAPIKey); err != nil {
		return nil, err
	}
	if env == nil {
		env = &provider.Env{}
	}
	client := env.Client(ResendName)
	client.Headers = map[string]string{"Authorization": "Bearer " + cfg.ResendAPIKey}
	from := cfg.SenderEmail
	if from == "" {
		from = "onboarding@resend.dev"
	}
	endpoint := cfg.ResendURL
	if endpoint == "" {
		endpoint = "https://api.resend.com/emails"
	}
	return &Resend{client: client, url: endpoint, from: from, to: cfg.RecipientEmail}, nil
}

// Notify implements Notifier.
func (r *Resend) Notify(ctx context.Context, summary *types.RunSummary) error {
	subject, body := Message(summary)
	req, err := fetch.JSONRequest(http.MethodPost, r.url, map[string]any{
		"from":    r.from,
		"to":      []string{r.to},
		"subject": subject,
		"text":    body,
	})
	if err != nil {
		return err
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := r.client.JSON(ctx, req, &resp); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	logf("Email sent to %s (via Resend, id=%s)", r.to, resp.ID)
	return nil
}

func logf(format string, args ...any) {
	log.Printf("[notify] "+format, args...)
}
