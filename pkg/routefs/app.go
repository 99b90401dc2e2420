package routefs

import (
	"go.uber.org/zap"

	"github.com/routefs/routefs/internal/cache"
	"github.com/routefs/routefs/internal/dispatch"
	"github.com/routefs/routefs/internal/fuse"
	"github.com/routefs/routefs/pkg/types"
)

// AttributeDefaults holds the values applied to listing entries that omit
// attribute fields.
type AttributeDefaults = cache.Defaults

// MountOptions configures the kernel binding.
type MountOptions = fuse.MountOptions

// NewAttributeDefaults returns the defaults: size 100, mode 0644, nlink 1,
// owned by the current process.
func NewAttributeDefaults() AttributeDefaults {
	return cache.NewDefaults()
}

// DefaultMountOptions returns the binding defaults.
func DefaultMountOptions() *MountOptions {
	return fuse.DefaultMountOptions()
}

// Options configures an App. Zero values are usable.
type Options struct {
	Logger   *zap.Logger
	Metrics  types.MetricsCollector
	Defaults *AttributeDefaults
}

// App holds the route registrations and the state they answer from.
type App struct {
	dispatcher *dispatch.Dispatcher
}

// New creates an App with no routes. Every directory is empty and every
// open fails until handlers are registered.
func New(opts Options) *App {
	return &App{
		dispatcher: dispatch.New(dispatch.Options{
			Logger:   opts.Logger,
			Metrics:  opts.Metrics,
			Defaults: opts.Defaults,
		}),
	}
}

// Ls registers a directory listing handler for pattern.
func (a *App) Ls(pattern string, handler types.ListingHandler) error {
	return a.dispatcher.RegisterListing(pattern, handler)
}

// Read registers a file content handler for pattern.
func (a *App) Read(pattern string, handler types.ReadHandler) error {
	return a.dispatcher.RegisterRead(pattern, handler)
}

// Handle registers handler for op. handler must have the signature op
// expects.
func (a *App) Handle(pattern string, op types.Operation, handler any) error {
	return a.dispatcher.Register(pattern, op, handler)
}

// Routes lists the registrations oldest first as "op pattern".
func (a *App) Routes() []string {
	return a.dispatcher.Routes()
}

// Dispatcher exposes the kernel operation table backing the App.
func (a *App) Dispatcher() *dispatch.Dispatcher {
	return a.dispatcher
}
