// Package visit runs the per-site loop: navigate, check the session marker,
// log in when it is absent, and confirm the profile page.
package visit

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/nikshitha/stack-daily-login/logger"
	"github.com/nikshitha/stack-daily-login/sites"
	"github.com/nikshitha/stack-daily-login/storage"
)

// Navigator loads pages and captures them on failure
type Navigator interface {
	Navigate(ctx context.Context, url string) error
	Screenshot(filename string) error
}

// Authenticator checks and establishes the session on the current page
type Authenticator interface {
	IsLoggedIn(ctx context.Context, site sites.Site) bool
	Login(ctx context.Context, site sites.Site) error
	ConfirmProfile(ctx context.Context, site sites.Site) (string, error)
}

// Recorder receives visit outcomes. storage.Database satisfies it.
type Recorder interface {
	StartRun(startedAt time.Time) (int64, error)
	FinishRun(id int64, finishedAt time.Time, runErr error) error
	RecordVisit(v *storage.Visit) (int64, error)
}

// Visitor walks every site once per call to VisitAll
type Visitor struct {
	nav           Navigator
	auth          Authenticator
	recorder      Recorder
	logger        *logger.Logger
	screenshotDir string
	sites         []sites.Site
	now           func() time.Time
}

// Option customizes a Visitor
type Option func(*Visitor)

// WithRecorder stores every outcome in r
func WithRecorder(r Recorder) Option {
	return func(v *Visitor) { v.recorder = r }
}

// WithScreenshotDir saves a screenshot of the failing page into dir
func WithScreenshotDir(dir string) Option {
	return func(v *Visitor) { v.screenshotDir = dir }
}

// NewVisitor creates a visitor over the fixed site list
func NewVisitor(nav Navigator, auth Authenticator, log *logger.Logger, opts ...Option) *Visitor {
	v := &Visitor{
		nav:    nav,
		auth:   auth,
		logger: log.WithModule("visit"),
		sites:  sites.All(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// VisitAll visits the sites in order and stops at the first failure.
// The returned error names the failing site.
func (v *Visitor) VisitAll(ctx context.Context) error {
	runID := v.startRun()

	var runErr error
	for _, site := range v.sites {
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("run interrupted before %s: %w", site, err)
			break
		}
		if err := v.visit(ctx, runID, site); err != nil {
			runErr = fmt.Errorf("%s: %w", site, err)
			break
		}
	}

	v.finishRun(runID, runErr)
	if runErr == nil {
		v.logger.Infof("All %d sites confirmed", len(v.sites))
	}
	return runErr
}

func (v *Visitor) visit(ctx context.Context, runID int64, site sites.Site) error {
	start := v.now()
	outcome := &storage.Visit{RunID: runID, Site: site.String(), VisitedAt: start}

	err := v.attempt(ctx, site, outcome)

	outcome.Duration = v.now().Sub(start)
	if err != nil {
		outcome.Error = err.Error()
		v.logger.WithSite(site.String()).WithError(err).Error("Visit failed")
		v.captureFailure(site, start)
	}
	v.record(outcome)
	return err
}

func (v *Visitor) attempt(ctx context.Context, site sites.Site, outcome *storage.Visit) error {
	v.logger.SiteVisit(site.String(), site.URL())
	if err := v.nav.Navigate(ctx, site.URL()); err != nil {
		return err
	}

	outcome.LoggedInBefore = v.auth.IsLoggedIn(ctx, site)
	if !outcome.LoggedInBefore {
		outcome.LoginPerformed = true
		if err := v.auth.Login(ctx, site); err != nil {
			return err
		}
	}

	calendar, err := v.auth.ConfirmProfile(ctx, site)
	if err != nil {
		return err
	}
	outcome.Confirmed = true
	outcome.Calendar = calendar
	return nil
}

func (v *Visitor) captureFailure(site sites.Site, at time.Time) {
	if v.screenshotDir == "" {
		return
	}
	name := fmt.Sprintf("%s-%s.png", at.Format("20060102-150405"), site)
	if err := v.nav.Screenshot(filepath.Join(v.screenshotDir, name)); err != nil {
		v.logger.WithError(err).Warn("Failed to capture failure screenshot")
	}
}

// History problems are logged and never fail the run

func (v *Visitor) startRun() int64 {
	if v.recorder == nil {
		return 0
	}
	id, err := v.recorder.StartRun(v.now())
	if err != nil {
		v.logger.WithError(err).Warn("Failed to record run start")
	}
	return id
}

func (v *Visitor) finishRun(id int64, runErr error) {
	if v.recorder == nil || id == 0 {
		return
	}
	if err := v.recorder.FinishRun(id, v.now(), runErr); err != nil {
		v.logger.WithError(err).Warn("Failed to record run end")
	}
}

// record drops outcomes of a run that could not be started, so no visit
// points at a missing run
func (v *Visitor) record(outcome *storage.Visit) {
	if v.recorder == nil || outcome.RunID == 0 {
		return
	}
	if _, err := v.recorder.RecordVisit(outcome); err != nil {
		v.logger.WithError(err).Warn("Failed to record visit")
	}
}
