package internal

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/crosslink/internal/linker"
	"github.com/starford/crosslink/internal/storage"
	"github.com/starford/crosslink/internal/watch"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Corpus  CorpusConfig      `yaml:"corpus"`
	Linking LinkingConfig     `yaml:"linking"`
	Inspect InspectConfig     `yaml:"inspect"`
	Watch   WatchConfig       `yaml:"watch"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Corpus.Validate(); err != nil {
		return fmt.Errorf("corpus: %w", err)
	}
	if err := c.Linking.Validate(); err != nil {
		return fmt.Errorf("linking: %w", err)
	}
	if err := c.Inspect.Validate(); err != nil {
		return fmt.Errorf("inspect: %w", err)
	}
	if err := c.Watch.Validate(); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// CorpusConfig describes where documents live.
type CorpusConfig struct {
	Root      string   `yaml:"root"`
	Folders   []string `yaml:"folders"`
	Extension string   `yaml:"extension"`
}

// Validate validates the corpus configuration.
func (c *CorpusConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.Folders, validation.Each(validation.By(notEscaping))),
		validation.Field(&c.Extension, validation.Required),
	)
}

func notEscaping(v any) error {
	s, _ := v.(string)
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "..") {
		return validation.NewError("validation_folder", "must stay inside the vault root")
	}
	return nil
}

// LinkingConfig holds the linking pipeline parameters.
type LinkingConfig struct {
	MaxDistance int      `yaml:"max_distance"`
	Workers     int      `yaml:"workers"`
	LabelKeys   []string `yaml:"label_keys"`
	// IsolateHeaderErrors skips documents with malformed headers instead of
	// aborting the run.
	IsolateHeaderErrors bool `yaml:"isolate_header_errors"`
	DryRun              bool `yaml:"dry_run"`
}

// Validate validates the linking configuration.
func (c *LinkingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxDistance, validation.Required, validation.Min(1)),
		validation.Field(&c.Workers, validation.Min(0)),
		validation.Field(&c.LabelKeys, validation.Required, validation.Each(validation.Required)),
	)
}

// InspectConfig controls the SQLite inspection store.
type InspectConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Path     string `yaml:"path"`
	KeepRuns int    `yaml:"keep_runs"`
}

// Validate validates the inspection configuration.
func (c *InspectConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.KeepRuns, validation.Min(0)),
	)
}

// WatchConfig tunes change batching in watch and serve modes.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// AuthConfig holds HTTP API authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Corpus: CorpusConfig{
			Root:      ".",
			Folders:   []string{"."},
			Extension: storage.DefaultExtension,
		},
		Linking: LinkingConfig{
			MaxDistance: linker.DefaultMaxDistance,
			LabelKeys:   append([]string(nil), linker.DefaultLabelKeys...),
		},
		Inspect: InspectConfig{
			Path:     "./crosslink.db",
			KeepRuns: 100,
		},
		Watch: WatchConfig{
			Debounce: watch.DefaultDebounce,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
