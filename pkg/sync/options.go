package sync

import (
	"time"

	"go.uber.org/zap"

	"github.com/openrota/openrota/pkg/core/model"
)

const (
	// DefaultQuietPeriod is how long the change feed may stay silent
	// before the controller falls back to polling.
	DefaultQuietPeriod = 30 * time.Second

	// DefaultPollInterval is the store poll cadence while in polling
	// mode.
	DefaultPollInterval = 5 * time.Second

	// DefaultCooldown is the refresh coalescing window.
	DefaultCooldown = 1 * time.Second

	// DefaultWatchTick is how often the quiet-period and poll timers
	// are evaluated.
	DefaultWatchTick = 1 * time.Second
)

type options struct {
	quietPeriod  time.Duration
	pollInterval time.Duration
	cooldown     time.Duration
	watchTick    time.Duration
	logger       *zap.Logger
	onSnapshot   func(*model.Snapshot)
}

func defaultOptions() options {
	return options{
		quietPeriod:  DefaultQuietPeriod,
		pollInterval: DefaultPollInterval,
		cooldown:     DefaultCooldown,
		watchTick:    DefaultWatchTick,
		logger:       zap.NewNop(),
	}
}

// Option configures a Controller.
type Option func(*options)

// WithQuietPeriod overrides the feed quiet period.
func WithQuietPeriod(d time.Duration) Option {
	return func(o *options) { o.quietPeriod = d }
}

// WithPollInterval overrides the polling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

// WithCooldown overrides the refresh coalescing window.
func WithCooldown(d time.Duration) Option {
	return func(o *options) { o.cooldown = d }
}

// WithWatchTick overrides the timer evaluation cadence. Tests use a
// short tick so quiet and poll timeouts resolve quickly.
func WithWatchTick(d time.Duration) Option {
	return func(o *options) { o.watchTick = d }
}

// WithLogger sets the logger; the default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithOnSnapshot registers a hook invoked with every freshly built
// snapshot. The hook runs on the refreshing goroutine and must not
// block.
func WithOnSnapshot(fn func(*model.Snapshot)) Option {
	return func(o *options) { o.onSnapshot = fn }
}
