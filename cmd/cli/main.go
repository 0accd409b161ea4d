package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openrota/openrota/internal/config"
	"github.com/openrota/openrota/pkg/core/model"
	"github.com/openrota/openrota/pkg/core/recurrence"
	"github.com/openrota/openrota/pkg/presence"
	"github.com/openrota/openrota/pkg/session"
	"github.com/openrota/openrota/pkg/store"
	"github.com/openrota/openrota/pkg/store/memstore"
	"github.com/openrota/openrota/pkg/sync"
	"github.com/openrota/openrota/pkg/transport/natsbus"
	"github.com/openrota/openrota/pkg/utils/logging"
	"github.com/openrota/openrota/pkg/view"
)

// App holds the application dependencies.
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	ctx    context.Context
}

var (
	env string
	app *App
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "openrota",
		Short: "OpenRota CLI - collaborative volunteer shift signup",
		Long:  `A CLI for running and inspecting the OpenRota collaborative scheduling engine.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app != nil && app.logger != nil {
				app.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&env, "env", "e", "dev", "Environment name used for log files")

	rootCmd.AddCommand(demoCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initApp sets up logger and config.
func initApp() error {
	var err error
	app = &App{ctx: context.Background()}

	app.logger, err = logging.InitLogger(env)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.logger.Debug("Configuration loaded", zap.String("nats_url", app.cfg.NATSURL))

	return nil
}

// connectBus dials NATS; a failed dial degrades to nil (engine then
// runs on the local feed or polling only).
func connectBus() *natsbus.Bus {
	nc, err := nats.Connect(app.cfg.NATSURL, nats.Timeout(2*time.Second))
	if err != nil {
		app.logger.Info("NATS unavailable, running without shared transport", zap.Error(err))
		return nil
	}
	return natsbus.New(nc, app.logger)
}

// startEmbeddedNATS runs an in-process server on a random port.
func startEmbeddedNATS() (*server.Server, error) {
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded NATS server: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server not ready")
	}
	return ns, nil
}

func demoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run a two-client convergence demo against an in-memory store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo()
		},
	}
}

// runDemo seeds an event with a recurring shift, signs two volunteers
// in through independent sync controllers, and shows their snapshots
// converging after each mutation.
func runDemo() error {
	st := memstore.New()

	maxHours := 8.0
	event := model.Event{
		ID:        uuid.New().String(),
		Name:      "Spring Street Fair",
		StartDate: time.Now().Truncate(24 * time.Hour),
		EndDate:   time.Now().Truncate(24 * time.Hour).AddDate(0, 0, 2),
		MaxHours:  &maxHours,
	}
	if err := st.InsertEvent(app.ctx, event); err != nil {
		return err
	}

	tasks, err := recurrence.Expand(recurrence.Template{
		Name:        "Kitchen",
		StartClock:  "09:00",
		DurationMin: 180,
		Required:    2,
		RRule:       "FREQ=DAILY",
	}, event, time.Local)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := st.InsertTask(app.ctx, t); err != nil {
			return err
		}
	}

	// Prefer the configured NATS server; without one, run an embedded
	// server so the demo stays self-contained and `watch` in another
	// terminal can still attach to the printed URL.
	bus := connectBus()
	if bus == nil {
		ns, err := startEmbeddedNATS()
		if err != nil {
			return err
		}
		defer ns.Shutdown()
		nc, err := nats.Connect(ns.ClientURL())
		if err != nil {
			return err
		}
		defer nc.Close()
		bus = natsbus.New(nc, app.logger)
		fmt.Printf("embedded NATS server at %s (watch %s)\n", ns.ClientURL(), event.ID)
	}

	// Relay local mutations onto the shared feed so other processes
	// see them.
	st.SetMirror(func(ev store.ChangeEvent) {
		if err := bus.PublishChange(ev); err != nil {
			app.logger.Debug("change relay failed", zap.Error(err))
		}
	})

	newClient := func(name string, sess session.Store) (*view.View, *sync.Controller, error) {
		ctrl := sync.New(event.ID, st, st, nil,
			sync.WithLogger(app.logger),
			sync.WithCooldown(app.cfg.Sync.Cooldown),
			sync.WithQuietPeriod(app.cfg.Sync.QuietPeriod),
			sync.WithPollInterval(app.cfg.Sync.PollInterval),
			sync.WithWatchTick(app.cfg.Sync.WatchTick),
		)
		if err := ctrl.Start(app.ctx); err != nil {
			return nil, nil, err
		}
		v := view.New(event.ID, st, ctrl, sess, app.logger)
		if _, err := v.SignIn(app.ctx, name); err != nil {
			return nil, nil, err
		}
		return v, ctrl, nil
	}

	// Amy carries the persistent identity file; Ben signs in fresh, like
	// a second browser tab.
	amy, amyCtrl, err := newClient("Amy", persistentSession())
	if err != nil {
		return err
	}
	defer amyCtrl.Stop()

	ben, benCtrl, err := newClient("Ben", session.NewMemoryStore())
	if err != nil {
		return err
	}
	defer benCtrl.Stop()

	firstTask := tasks[0].ID
	if err := amy.Assign(app.ctx, firstTask); err != nil {
		return err
	}
	if err := ben.Assign(app.ctx, firstTask); err != nil {
		return err
	}

	// Let the trailing refreshes land.
	time.Sleep(2 * app.cfg.Sync.Cooldown)

	printDay(ben, event.StartDate)

	return nil
}

// persistentSession opens the configured identity file, falling back
// to the platform default path and then to an in-memory store.
func persistentSession() session.Store {
	path := app.cfg.IdentityFile
	if path == "" {
		var err error
		if path, err = session.DefaultPath(); err != nil {
			app.logger.Warn("no identity file location, identity will not persist", zap.Error(err))
			return session.NewMemoryStore()
		}
	}
	return session.NewFileStore(path)
}

func printDay(v *view.View, day time.Time) {
	fmt.Printf("\n%s\n", day.Format("Monday 2 January"))
	for _, b := range v.Day(day) {
		fmt.Printf("  [col %d/%d] %s  %s-%s  %d/%d volunteers\n",
			b.Column+1, b.Columns, b.ID,
			b.Start.Format("15:04"), b.End.Format("15:04"),
			b.Assigned, b.Required)
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <event-id>",
		Short: "Watch an event's day grid converge over the NATS feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(args[0])
		},
	}
}

// runWatch subscribes to the shared feed for an event served by another
// process and prints each fresh snapshot. It needs a reachable store;
// with only the in-memory reference store in-tree it demonstrates the
// presence channel and the feed wiring.
func runWatch(eventID string) error {
	bus := connectBus()
	if bus == nil {
		return fmt.Errorf("watch requires a reachable NATS server at %s", app.cfg.NATSURL)
	}

	tracker := presence.NewBroadcaster(eventID, uuid.New().String(), "watcher", bus)
	tracker.SetTimings(app.cfg.Presence.Throttle, app.cfg.Presence.StaleAfter, app.cfg.Presence.SweepEvery)
	tracker.Start()
	defer tracker.Stop()

	sub, err := bus.Subscribe(app.ctx, eventID)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	fmt.Printf("watching event %s (ctrl-c to stop)\n", eventID)
	for ev := range sub.Events() {
		fmt.Printf("%s change: %s %s task=%s\n",
			time.Now().Format("15:04:05"), ev.Table, ev.Op, ev.TaskID)
		for _, c := range tracker.Cursors() {
			fmt.Printf("  cursor %s at %.0f%%,%.0f%% (%s)\n", c.Name, c.X, c.Y, c.Color)
		}
	}

	return nil
}
