// Package auth detects and establishes a logged-in session on a Stack
// Exchange site and confirms it by reaching the account's profile page.
package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/nikshitha/stack-daily-login/config"
	"github.com/nikshitha/stack-daily-login/logger"
	"github.com/nikshitha/stack-daily-login/sites"
	"github.com/nikshitha/stack-daily-login/stealth"
)

// Page element identifiers shared by every site in the network
const (
	LoginLinkText    = "Log in"
	EmailFieldID     = "email"
	PasswordFieldID  = "password"
	SubmitButtonID   = "submit-button"
	CalendarID       = "js-daily-access-calendar-container"
	linkSelector     = "a"
	loginLinkPattern = `^\s*` + LoginLinkText + `\s*$`
)

// Error types for authentication
var (
	ErrLoginFormNotFound   = errors.New("login form element not found")
	ErrProfileNotConfirmed = errors.New("profile page could not be confirmed")
)

// Authenticator performs the login check and login action on one page
type Authenticator struct {
	config  *config.Config
	logger  *logger.Logger
	stealth *stealth.StealthManager
	page    *rod.Page

	// display name as a regex matching any link text containing it
	namePattern string
}

// NewAuthenticator creates an authenticator bound to page
func NewAuthenticator(cfg *config.Config, log *logger.Logger, s *stealth.StealthManager, page *rod.Page) *Authenticator {
	return &Authenticator{
		config:      cfg,
		logger:      log.WithModule("auth"),
		stealth:     s,
		page:        page,
		namePattern: nameLinkPattern(cfg.Stack.Name),
	}
}

// nameLinkPattern returns a regex matching any text that contains name
// literally. It is evaluated as a JavaScript RegExp by rod, which reads a
// leading "/" as the start of a /pattern/flags literal, so "/" is escaped too.
func nameLinkPattern(name string) string {
	return strings.ReplaceAll(regexp.QuoteMeta(name), "/", `\/`)
}

// waitLink waits up to the presence timeout for a link whose text matches pattern
func (a *Authenticator) waitLink(ctx context.Context, pattern string) (*rod.Element, error) {
	el, err := a.page.Context(ctx).Timeout(a.config.GetPresenceTimeout()).ElementR(linkSelector, pattern)
	if err != nil {
		return nil, err
	}
	return el.CancelTimeout(), nil
}

// waitID waits up to the presence timeout for the element with the given id
func (a *Authenticator) waitID(ctx context.Context, id string) (*rod.Element, error) {
	el, err := a.page.Context(ctx).Timeout(a.config.GetPresenceTimeout()).Element("#" + id)
	if err != nil {
		return nil, err
	}
	return el.CancelTimeout(), nil
}

// IsLoggedIn reports whether a link containing the display name is present.
// A missing link only ever means "not logged in"; page or network failures
// are indistinguishable from it.
func (a *Authenticator) IsLoggedIn(ctx context.Context, site sites.Site) bool {
	start := time.Now()
	_, err := a.waitLink(ctx, a.namePattern)
	a.logger.WithSite(site.String()).WithFields(map[string]interface{}{
		"logged_in":  err == nil,
		"elapsed_ms": time.Since(start).Milliseconds(),
	}).Debug("Checked session marker")
	return err == nil
}

// Login opens the login form and submits the account credentials
func (a *Authenticator) Login(ctx context.Context, site sites.Site) error {
	a.logger.LoginAttempt(site.String(), a.config.Stack.Email)

	link, err := a.waitLink(ctx, loginLinkPattern)
	if err != nil {
		return fmt.Errorf("%w: %q link: %v", ErrLoginFormNotFound, LoginLinkText, err)
	}
	if err := a.stealth.ClickElement(link); err != nil {
		return fmt.Errorf("failed to click %q link: %w", LoginLinkText, err)
	}

	if err := a.fill(ctx, EmailFieldID, a.config.Stack.Email); err != nil {
		return err
	}
	a.stealth.ActionDelay()
	if err := a.fill(ctx, PasswordFieldID, a.config.Stack.Password); err != nil {
		return err
	}
	a.stealth.ActionDelay()

	submit, err := a.waitID(ctx, SubmitButtonID)
	if err != nil {
		return fmt.Errorf("%w: #%s: %v", ErrLoginFormNotFound, SubmitButtonID, err)
	}
	if err := a.stealth.ClickElement(submit); err != nil {
		return fmt.Errorf("failed to submit login form: %w", err)
	}

	a.logger.WithSite(site.String()).Info("Login form submitted")
	return nil
}

func (a *Authenticator) fill(ctx context.Context, id, value string) error {
	field, err := a.waitID(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: #%s: %v", ErrLoginFormNotFound, id, err)
	}
	if err := a.stealth.HumanType(a.page.Context(ctx), field, value); err != nil {
		return fmt.Errorf("failed to type into #%s: %w", id, err)
	}
	return nil
}

// ConfirmProfile follows the display-name link and waits for the daily access
// calendar, returning its text.
func (a *Authenticator) ConfirmProfile(ctx context.Context, site sites.Site) (string, error) {
	profile, err := a.waitLink(ctx, a.namePattern)
	if err != nil {
		return "", fmt.Errorf("%w: no link containing the display name: %v", ErrProfileNotConfirmed, err)
	}
	if err := a.stealth.ClickElement(profile); err != nil {
		return "", fmt.Errorf("failed to open profile: %w", err)
	}

	calendar, err := a.waitID(ctx, CalendarID)
	if err != nil {
		return "", fmt.Errorf("%w: #%s: %v", ErrProfileNotConfirmed, CalendarID, err)
	}

	text, err := calendar.Text()
	if err != nil {
		return "", fmt.Errorf("failed to read #%s: %w", CalendarID, err)
	}

	a.logger.ProfileConfirmed(site.String(), text)
	return text, nil
}
