package shadercache

import (
	"log/slog"

	"github.com/gogpu/shadercache/config"
)

// Option configures a ShaderProgramManager during creation.
//
// Example:
//
//	settings, _ := config.Load("~/.config/emu/shaders.toml")
//	m, err := shadercache.New(driver, generator,
//	    shadercache.WithSettings(settings),
//	    shadercache.WithTitleID(0x0004000000030800),
//	)
type Option func(*managerOptions)

// managerOptions holds optional configuration for manager creation.
type managerOptions struct {
	settings config.Settings
	titleID  uint64
	profile  *Profile
	layout   Layout
	logger   *slog.Logger
}

// defaultOptions returns the default manager options.
func defaultOptions() managerOptions {
	return managerOptions{
		settings: config.Default(),
		layout:   DefaultLayout(),
	}
}

// WithSettings sets the process-wide settings. Defaults to config.Default().
func WithSettings(s config.Settings) Option {
	return func(o *managerOptions) {
		o.settings = s
	}
}

// WithTitleID sets the emulated title whose program cache file is used.
func WithTitleID(id uint64) Option {
	return func(o *managerOptions) {
		o.titleID = id
	}
}

// WithProfile overrides driver capability detection.
func WithProfile(p Profile) Option {
	return func(o *managerOptions) {
		o.profile = &p
	}
}

// WithLayout sets the expected uniform block sizes. Defaults to
// DefaultLayout().
func WithLayout(l Layout) Option {
	return func(o *managerOptions) {
		o.layout = l
	}
}

// WithLogger sets the manager's logger. Defaults to Logger() at creation.
func WithLogger(l *slog.Logger) Option {
	return func(o *managerOptions) {
		o.logger = l
	}
}
