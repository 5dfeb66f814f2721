package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/nikshitha/stack-daily-login/auth"
	"github.com/nikshitha/stack-daily-login/browser"
	"github.com/nikshitha/stack-daily-login/config"
	"github.com/nikshitha/stack-daily-login/logger"
	"github.com/nikshitha/stack-daily-login/schedule"
	"github.com/nikshitha/stack-daily-login/sites"
	"github.com/nikshitha/stack-daily-login/stealth"
	"github.com/nikshitha/stack-daily-login/storage"
	"github.com/nikshitha/stack-daily-login/visit"
	"github.com/olekukonko/tablewriter"
)

// Application holds the components that outlive a single run
type Application struct {
	config *config.Config
	logger *logger.Logger
	loc    *time.Location
	db     *storage.Database
}

// NewApplication opens the history database when enabled
func NewApplication(cfg *config.Config, log *logger.Logger) (*Application, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	app := &Application{config: cfg, logger: log, loc: loc}

	if cfg.Storage.HistoryEnabled {
		db, err := storage.NewDatabase(cfg.Storage.DatabasePath, loc, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		app.db = db
	}

	return app, nil
}

// RunOnce launches a fresh browser, visits every site and releases the
// browser whatever the outcome.
func (app *Application) RunOnce(ctx context.Context) error {
	sm := stealth.NewStealthManager(&app.config.Stealth, app.logger)

	b := browser.NewBrowser(app.config, app.logger, sm)
	defer b.Close()

	if err := b.Launch(); err != nil {
		return err
	}

	authenticator := auth.NewAuthenticator(app.config, app.logger, sm, b.Page())

	var opts []visit.Option
	if app.db != nil {
		opts = append(opts, visit.WithRecorder(app.db))
	}
	if dir := app.config.Browser.ScreenshotDir; dir != "" {
		opts = append(opts, visit.WithScreenshotDir(dir))
	}

	if err := visit.NewVisitor(b, authenticator, app.logger, opts...).VisitAll(ctx); err != nil {
		app.logger.WithError(err).Error("Run failed")
		return err
	}
	return nil
}

// RunScheduled performs RunOnce on every tick of the configured schedule
func (app *Application) RunScheduled(ctx context.Context) error {
	s, err := schedule.New(app.config.Schedule.Cron, app.loc, app.logger)
	if err != nil {
		return err
	}
	return s.Run(ctx, app.RunOnce)
}

// PrintHistory writes recent runs, recent visits and current streaks to w
func (app *Application) PrintHistory(w io.Writer, limit int) error {
	if app.db == nil {
		return fmt.Errorf("visit history is disabled (storage.history_enabled)")
	}

	runs, err := app.db.RecentRuns(limit)
	if err != nil {
		return fmt.Errorf("failed to read runs: %w", err)
	}

	runTable := tablewriter.NewWriter(w)
	runTable.SetHeader([]string{"Run", "Started", "Status", "Error"})
	for _, r := range runs {
		runTable.Append([]string{
			fmt.Sprint(r.ID),
			r.StartedAt.Format("2006-01-02 15:04"),
			r.Status,
			r.Error,
		})
	}
	runTable.Render()

	visits, err := app.db.RecentVisits(limit)
	if err != nil {
		return fmt.Errorf("failed to read visits: %w", err)
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"When", "Site", "Login", "Result", "Took"})
	for _, v := range visits {
		login := "session"
		if v.LoginPerformed {
			login = "form"
		}
		result := "confirmed"
		if !v.Confirmed {
			result = "failed: " + v.Error
		}
		table.Append([]string{
			v.VisitedAt.Format("2006-01-02 15:04"),
			v.Site,
			login,
			result,
			v.Duration.Round(100 * time.Millisecond).String(),
		})
	}
	table.Render()

	now := time.Now()
	streaks := tablewriter.NewWriter(w)
	streaks.SetHeader([]string{"Site", "Streak (days)"})
	for _, site := range sites.All() {
		n, err := app.db.Streak(site.String(), now)
		if err != nil {
			return err
		}
		streaks.Append([]string{site.String(), fmt.Sprint(n)})
	}
	streaks.Render()
	return nil
}

// Close releases the database and log file
func (app *Application) Close() {
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.WithError(err).Warn("Failed to close database")
		}
	}
	_ = app.logger.Close()
}
