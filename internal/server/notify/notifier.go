package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"text/template"
	"time"

	"github.com/dmitrijs2005/gophaccounts/internal/logging"
	"github.com/dmitrijs2005/gophaccounts/internal/server/auth"
	"github.com/dmitrijs2005/gophaccounts/internal/server/config"
	"github.com/dmitrijs2005/gophaccounts/internal/server/models"
)

const (
	VerifyEmailPath          = "/accounts/registration/verify-email/"
	PasswordResetConfirmPath = "/accounts/password/reset/confirm/"
)

var (
	confirmationTmpl = template.Must(template.New("confirmation").Parse(
		`Hello from {{.Site}}!

You're receiving this e-mail because {{.Email}} was given as an e-mail address
{{if eq .Reason "change"}}for an existing account{{else}}to register an account{{end}} on {{.Site}}.

To confirm this is correct, go to {{.Link}}

The link expires on {{.Expires}}.
`))

	resetTmpl = template.Must(template.New("reset").Parse(
		`Hello from {{.Site}}!

You're receiving this e-mail because you or someone else has requested a
password for your user account ({{.UserName}}). It can be safely ignored if
you did not request a password reset. Click the link below to reset your password.

{{.Link}}

uid: {{.UID}}
token: {{.Token}}
`))
)

// EmailNotifier renders confirmation and reset mails and sends them through a
// Mailer. It satisfies identity.Notifier.
type EmailNotifier struct {
	mailer        Mailer
	logger        logging.Logger
	secret        []byte
	confirmExpiry time.Duration
	siteURL       string
	site          string
	from          string
}

func NewEmailNotifier(m Mailer, cfg *config.Config, l logging.Logger) *EmailNotifier {
	site := cfg.SiteURL
	if u, err := url.Parse(cfg.SiteURL); err == nil && u.Host != "" {
		site = u.Host
	}
	return &EmailNotifier{
		mailer:        m,
		logger:        l.With("module", "notify"),
		secret:        []byte(cfg.SecretKey),
		confirmExpiry: cfg.EmailConfirmationExpiry,
		siteURL:       strings.TrimRight(cfg.SiteURL, "/"),
		site:          site,
		from:          cfg.MailFrom,
	}
}

// ConfirmationState is the identity state a confirmation key is bound to.
func ConfirmationState(address *models.EmailAddress) string {
	return strings.ToLower(address.Email)
}

// SendVerification mails a confirmation key for address.
func (n *EmailNotifier) SendVerification(ctx context.Context, address *models.EmailAddress, reason models.ChallengeContext) error {
	key, err := auth.GenerateKey(auth.PurposeEmailConfirmation, address.ID, ConfirmationState(address), n.secret, n.confirmExpiry)
	if err != nil {
		return fmt.Errorf("confirmation key: %w", err)
	}

	body, err := render(confirmationTmpl, map[string]any{
		"Site":    n.site,
		"Email":   address.Email,
		"Reason":  string(reason),
		"Link":    n.siteURL + VerifyEmailPath + "?key=" + url.QueryEscape(key),
		"Expires": time.Now().Add(n.confirmExpiry).UTC().Format(time.RFC1123),
	})
	if err != nil {
		return err
	}

	msg := NewMessage(n.from, address.Email, fmt.Sprintf("[%s] Please Confirm Your E-mail Address", n.site), body)
	if err := n.mailer.Send(ctx, msg); err != nil {
		return err
	}
	n.logger.Info(ctx, "verification sent", "identity_id", address.ID, "reason", string(reason), "message_id", msg.ID)
	return nil
}

// SendPasswordReset mails the uid/token pair for a password reset.
func (n *EmailNotifier) SendPasswordReset(ctx context.Context, user *models.User, uid, token string) error {
	body, err := render(resetTmpl, map[string]any{
		"Site":     n.site,
		"UserName": user.UserName,
		"UID":      uid,
		"Token":    token,
		"Link":     n.siteURL + PasswordResetConfirmPath + "?uid=" + url.QueryEscape(uid) + "&token=" + url.QueryEscape(token),
	})
	if err != nil {
		return err
	}

	msg := NewMessage(n.from, user.Email, fmt.Sprintf("Password reset on %s", n.site), body)
	if err := n.mailer.Send(ctx, msg); err != nil {
		return err
	}
	n.logger.Info(ctx, "password reset sent", "user_id", user.ID, "message_id", msg.ID)
	return nil
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
