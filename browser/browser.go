// Package browser manages the lifecycle of the single headless browser used
// for a run: launch, one page, navigation, and a guaranteed release.
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	rodstealth "github.com/go-rod/stealth"
	"github.com/nikshitha/stack-daily-login/config"
	"github.com/nikshitha/stack-daily-login/logger"
	"github.com/nikshitha/stack-daily-login/stealth"
)

// Browser wraps the Rod browser with the run's single page
type Browser struct {
	config   *config.Config
	logger   *logger.Logger
	stealth  *stealth.StealthManager
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page

	closeOnce sync.Once
	closeErr  error
}

// NewBrowser creates a new, not yet launched, browser
func NewBrowser(cfg *config.Config, log *logger.Logger, s *stealth.StealthManager) *Browser {
	return &Browser{
		config:  cfg,
		logger:  log.WithModule("browser"),
		stealth: s,
	}
}

// Launch starts the browser process and opens the page. No user data
// directory is kept, so every run starts without cookies.
func (b *Browser) Launch() error {
	b.logger.WithField("headless", b.config.Browser.Headless).Info("Launching browser")

	l := launcher.New().
		Headless(b.config.Browser.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-infobars").
		Set("disable-dev-shm-usage").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-sync").
		Set("disable-translate").
		Set("disable-extensions")

	if b.config.Browser.Bin != "" {
		l = l.Bin(b.config.Browser.Bin)
	}

	url, err := l.Launch()
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	// Only a started process can be cleaned up
	b.launcher = l

	browser := rod.New().ControlURL(url)
	if b.config.Browser.SlowMotion > 0 {
		browser = browser.SlowMotion(time.Duration(b.config.Browser.SlowMotion) * time.Millisecond)
	}
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}
	b.browser = browser

	b.logger.Debug("Browser connected")
	return b.createPage()
}

// createPage opens the run's page, with stealth evasions when enabled
func (b *Browser) createPage() error {
	var err error
	if b.config.Stealth.Enabled {
		b.page, err = rodstealth.Page(b.browser)
	} else {
		b.page, err = b.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		return fmt.Errorf("failed to create page: %w", err)
	}

	if b.config.Stealth.RandomUserAgent {
		userAgent := b.stealth.GetRandomUserAgent()
		err = b.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: userAgent})
		if err != nil {
			b.logger.WithError(err).Warn("Failed to set user agent")
		} else {
			b.logger.WithField("user_agent", userAgent).Debug("User agent set")
		}
	}

	return nil
}

// Page returns the run's page
func (b *Browser) Page() *rod.Page {
	return b.page
}

// Navigate loads url and waits for the load event, bounded by the browser timeout
func (b *Browser) Navigate(ctx context.Context, url string) error {
	if b.page == nil {
		return fmt.Errorf("navigation to %s: browser not launched", url)
	}
	b.logger.BrowserAction("navigate", url)

	page := b.page.Context(ctx).Timeout(b.config.GetTimeout())
	defer page.CancelTimeout()

	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("page load failed: %w", err)
	}
	return nil
}

// Screenshot saves a PNG of the current page
func (b *Browser) Screenshot(filename string) error {
	if b.page == nil {
		return fmt.Errorf("screenshot: browser not launched")
	}

	data, err := b.page.Screenshot(true, nil)
	if err != nil {
		return fmt.Errorf("screenshot failed: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to save screenshot: %w", err)
	}

	b.logger.WithField("filename", filename).Info("Screenshot saved")
	return nil
}

// Close releases the browser process. It is safe to call more than once and
// on a browser that never launched.
func (b *Browser) Close() error {
	b.closeOnce.Do(func() {
		if b.browser != nil {
			b.logger.Info("Closing browser")
			b.closeErr = b.browser.Close()
		}
		if b.launcher != nil {
			b.launcher.Kill()
			b.launcher.Cleanup()
		}
	})
	return b.closeErr
}
