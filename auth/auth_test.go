package auth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"unicode"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/nikshitha/stack-daily-login/browser"
	"github.com/nikshitha/stack-daily-login/config"
	"github.com/nikshitha/stack-daily-login/logger"
	"github.com/nikshitha/stack-daily-login/sites"
	"github.com/nikshitha/stack-daily-login/stealth"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "jane@example.com"
	testPassword = "correct horse"
	testName     = "Jane Doe"
)

// fakeSite serves the handful of pages the login flow touches. Once logged
// in, the header shows a decoy link first and then the profile link, whose
// text carries the display name followed by the reputation.
func fakeSite(name, decoy string) *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("session"); err == nil {
			fmt.Fprintf(w, `<html><body><a href="/users/2/other">%s</a> <a href="/users/1/me">%s 1,234 reputation</a></body></html>`,
				html.EscapeString(decoy), html.EscapeString(name))
			return
		}
		fmt.Fprint(w, `<html><body><a href="/users/login">Log in</a> <a href="/users/signup">Sign up</a></body></html>`)
	})

	mux.HandleFunc("/users/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if r.FormValue("email") == testEmail && r.FormValue("password") == testPassword {
				http.SetCookie(w, &http.Cookie{Name: "session", Value: "ok", Path: "/"})
				http.Redirect(w, r, "/", http.StatusFound)
				return
			}
			http.Redirect(w, r, "/users/login", http.StatusFound)
			return
		}
		fmt.Fprint(w, `<html><body><form method="post" action="/users/login">
<input id="email" name="email" type="text">
<input id="password" name="password" type="password">
<button id="submit-button" type="submit">Log in</button>
</form></body></html>`)
	})

	mux.HandleFunc("/users/1/me", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div id="js-daily-access-calendar-container">Visited 12 days, 4 consecutive</div></body></html>`)
	})

	// the decoy profile has no calendar, so following it fails confirmation
	mux.HandleFunc("/users/2/other", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>someone else</p></body></html>`)
	})

	return httptest.NewServer(mux)
}

func newTestRig(t *testing.T, name, password string) (*Authenticator, *browser.Browser) {
	t.Helper()
	if testing.Short() {
		t.Skip("browser test skipped in short mode")
	}
	bin, found := launcher.LookPath()
	if !found {
		t.Skip("no Chrome/Chromium binary available")
	}

	cfg := config.DefaultConfig()
	cfg.Stack = config.StackConfig{Email: testEmail, Password: password, Name: name}
	cfg.Browser.Bin = bin
	cfg.Stealth.Enabled = false
	cfg.Wait.PresenceTimeout = 2

	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)
	sm := stealth.NewStealthManager(&cfg.Stealth, log)

	b := browser.NewBrowser(cfg, log, sm)
	require.NoError(t, b.Launch())
	t.Cleanup(func() { _ = b.Close() })

	return NewAuthenticator(cfg, log, sm, b.Page()), b
}

func TestLoginFlow(t *testing.T) {
	tests := []struct {
		name        string
		displayName string
		decoy       string
	}{
		{"plain name", testName, "Jane"},
		{"regex metacharacters", "J.R. (Bob)+", "JxRx Bob"},
		{"slashes", "/dev/null", "dev null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fakeSite(tt.displayName, tt.decoy)
			defer srv.Close()

			a, b := newTestRig(t, tt.displayName, testPassword)
			ctx := context.Background()

			require.NoError(t, b.Navigate(ctx, srv.URL))
			require.False(t, a.IsLoggedIn(ctx, sites.AskUbuntu))

			require.NoError(t, a.Login(ctx, sites.AskUbuntu))

			// The name link only partially matches and follows a decoy
			text, err := a.ConfirmProfile(ctx, sites.AskUbuntu)
			require.NoError(t, err)
			require.Contains(t, text, "Visited 12 days")

			// The session cookie now marks the account as logged in
			require.NoError(t, b.Navigate(ctx, srv.URL))
			require.True(t, a.IsLoggedIn(ctx, sites.AskUbuntu))
		})
	}
}

func TestWrongPasswordFailsConfirmation(t *testing.T) {
	srv := fakeSite(testName, "Jane")
	defer srv.Close()

	a, b := newTestRig(t, testName, "wrong")
	ctx := context.Background()

	require.NoError(t, b.Navigate(ctx, srv.URL))
	require.NoError(t, a.Login(ctx, sites.ServerFault))

	_, err := a.ConfirmProfile(ctx, sites.ServerFault)
	require.True(t, errors.Is(err, ErrProfileNotConfirmed), "got %v", err)
}

func TestLoginWithoutLoginLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>maintenance</p></body></html>`)
	}))
	defer srv.Close()

	a, b := newTestRig(t, testName, testPassword)
	ctx := context.Background()

	require.NoError(t, b.Navigate(ctx, srv.URL))
	require.False(t, a.IsLoggedIn(ctx, sites.GIS))

	err := a.Login(ctx, sites.GIS)
	require.True(t, errors.Is(err, ErrLoginFormNotFound), "got %v", err)
}

func TestNameLinkPattern(t *testing.T) {
	tests := []struct {
		name    string
		matches []string
		misses  []string
	}{
		{
			name:    "Jane Doe",
			matches: []string{"Jane Doe", "Jane Doe 1,234 reputation", "  Jane Doe\n12"},
			misses:  []string{"Jane", "jane doe", "Log in"},
		},
		{
			name:    "J.R. (Bob)+",
			matches: []string{"J.R. (Bob)+", "J.R. (Bob)+ 5 reputation"},
			misses:  []string{"JxRx Bob", "J.R. Bob", "J.R. (Bob)(Bob)"},
		},
		{
			name:    "/dev/null",
			matches: []string{"/dev/null 3"},
			misses:  []string{"dev null"},
		},
		{
			name:    `a\b [x]{2} ^$ |?*`,
			matches: []string{`a\b [x]{2} ^$ |?* 10`},
			misses:  []string{"ab xx"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pattern := nameLinkPattern(tt.name)

			// rod treats a leading slash as a /pattern/flags literal
			require.False(t, strings.HasPrefix(pattern, "/"), pattern)
			// only punctuation is escaped, which JavaScript reads the same way
			for i := 0; i < len(pattern); i++ {
				if pattern[i] == '\\' {
					require.Less(t, i+1, len(pattern), pattern)
					c := rune(pattern[i+1])
					require.False(t, unicode.IsLetter(c) || unicode.IsDigit(c), "escape \\%c in %s", c, pattern)
					i++
				}
			}

			re := regexp.MustCompile(pattern)
			for _, text := range tt.matches {
				require.True(t, re.MatchString(text), "%q should match %q", pattern, text)
			}
			for _, text := range tt.misses {
				require.False(t, re.MatchString(text), "%q should not match %q", pattern, text)
			}
		})
	}
}
