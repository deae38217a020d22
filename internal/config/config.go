// Package config loads the daemon configuration: a YAML file, an optional
// .env file and QUEUEDL_* environment overrides, applied in that order.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/warpdl/queuedl/pkg/backend"
	"github.com/warpdl/queuedl/pkg/credman"
	"github.com/warpdl/queuedl/pkg/logger"
	"github.com/warpdl/queuedl/pkg/queuelib"
)

const (
	// EnvPrefix prefixes every environment override, e.g. QUEUEDL_WORKERS.
	EnvPrefix = "QUEUEDL"
	// ConfigDirEnv overrides the configuration directory.
	ConfigDirEnv = "QUEUEDL_CONFIG_DIR"

	FileName     = "config.yaml"
	DatabaseName = "queuedl.db"
	DotEnvFile   = ".env"

	DefaultListen       = "127.0.0.1:3849"
	DefaultDownloadPath = "./downloads"
	DefaultRetryDelay   = 5 * time.Second

	redacted = "********"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the daemon configuration.
type Config struct {
	DownloadPath    string        `yaml:"download_path" split_words:"true"`
	DatabasePath    string        `yaml:"database_path" split_words:"true"`
	Workers         int           `yaml:"workers" split_words:"true"`
	MaxRetries      int           `yaml:"max_retries" split_words:"true"`
	RetryDelay      time.Duration `yaml:"retry_delay" split_words:"true"`
	PollInterval    time.Duration `yaml:"poll_interval" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
	Listen          string        `yaml:"listen" split_words:"true"`
	RPCSecret       string        `yaml:"rpc_secret,omitempty" split_words:"true"`
	LogFile         string        `yaml:"log_file,omitempty" split_words:"true"`
	// ClearSchedule is a cron expression for removing finished jobs.
	ClearSchedule string `yaml:"clear_schedule,omitempty" split_words:"true"`
	// PauseSchedule and ResumeSchedule bound a recurring quiet window.
	PauseSchedule  string        `yaml:"pause_schedule,omitempty" split_words:"true"`
	ResumeSchedule string        `yaml:"resume_schedule,omitempty" split_words:"true"`
	Backend        BackendConfig `yaml:"backend" split_words:"true"`

	dir string
}

type BackendConfig struct {
	Kind           string        `yaml:"kind" split_words:"true"`
	BotToken       string        `yaml:"bot_token,omitempty" split_words:"true"`
	APIURL         string        `yaml:"api_url,omitempty" envconfig:"api_url"`
	Proxy          string        `yaml:"proxy,omitempty" split_words:"true"`
	DemoSize       int64         `yaml:"demo_size,omitempty" split_words:"true"`
	DemoChunkDelay time.Duration `yaml:"demo_chunk_delay,omitempty" split_words:"true"`
	Session        SessionConfig `yaml:"session" split_words:"true"`
}

type SessionConfig struct {
	Protocol   string `yaml:"protocol,omitempty" split_words:"true"`
	Host       string `yaml:"host,omitempty" split_words:"true"`
	User       string `yaml:"user,omitempty" split_words:"true"`
	Password   string `yaml:"password,omitempty" split_words:"true"`
	KeyPath    string `yaml:"key_path,omitempty" split_words:"true"`
	KnownHosts string `yaml:"known_hosts,omitempty" split_words:"true"`
	Root       string `yaml:"root,omitempty" split_words:"true"`
}

// Dir returns the configuration directory: $QUEUEDL_CONFIG_DIR, or
// queuedl under the user configuration directory.
func Dir() (string, error) {
	if d := os.Getenv(ConfigDirEnv); d != "" {
		return d, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(base, "queuedl"), nil
}

// Default returns the built-in configuration rooted at dir.
func Default(dir string) *Config {
	return &Config{
		DownloadPath:    DefaultDownloadPath,
		DatabasePath:    filepath.Join(dir, DatabaseName),
		Workers:         queuelib.DefaultWorkers,
		MaxRetries:      queuelib.DefaultMaxRetries,
		RetryDelay:      DefaultRetryDelay,
		PollInterval:    queuelib.DefaultPollInterval,
		ShutdownTimeout: queuelib.DefaultShutdownTimeout,
		Listen:          DefaultListen,
		Backend: BackendConfig{
			Kind:   string(backend.KindDemo),
			APIURL: backend.DefaultBotAPIURL,
			Session: SessionConfig{
				KnownHosts: filepath.Join(dir, "known_hosts"),
			},
		},
		dir: dir,
	}
}

// Load reads the configuration. An empty path selects config.yaml in Dir
// and tolerates its absence; an explicit path must exist.
func Load(path string) (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	explicit := path != ""
	if !explicit {
		path = filepath.Join(dir, FileName)
	}
	return load(dir, path, explicit, DotEnvFile)
}

func load(dir, path string, explicit bool, envFile string) (*Config, error) {
	cfg := Default(dir)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Dir returns the configuration directory the config was loaded for.
func (c *Config) Dir() string {
	return c.dir
}

// Validate checks ranges and formats. Secrets are not required here since
// they may still be resolved from the credential store.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.DownloadPath) == "" {
		problems = append(problems, "download_path is empty")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		problems = append(problems, "database_path is empty")
	}
	if c.Workers < 1 {
		problems = append(problems, fmt.Sprintf("workers must be at least 1, got %d", c.Workers))
	}
	if c.MaxRetries < 0 {
		problems = append(problems, fmt.Sprintf("max_retries must not be negative, got %d", c.MaxRetries))
	}
	if c.RetryDelay < 0 {
		problems = append(problems, "retry_delay must not be negative")
	}
	if c.PollInterval <= 0 {
		problems = append(problems, "poll_interval must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		problems = append(problems, "shutdown_timeout must be positive")
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		problems = append(problems, fmt.Sprintf("listen %q: %v", c.Listen, err))
	}
	gx := gronx.New()
	for _, sch := range []struct{ key, expr string }{
		{"clear_schedule", c.ClearSchedule},
		{"pause_schedule", c.PauseSchedule},
		{"resume_schedule", c.ResumeSchedule},
	} {
		if sch.expr != "" && !gx.IsValid(sch.expr) {
			problems = append(problems, fmt.Sprintf("%s %q is not a valid cron expression", sch.key, sch.expr))
		}
	}
	if (c.PauseSchedule == "") != (c.ResumeSchedule == "") {
		problems = append(problems, "pause_schedule and resume_schedule must be set together")
	}
	kind, err := backend.ParseKind(c.Backend.Kind)
	if err != nil {
		problems = append(problems, err.Error())
	}
	if kind == backend.KindSession {
		proto, err := backend.ParseProtocol(c.Backend.Session.Protocol)
		if err != nil {
			problems = append(problems, err.Error())
		}
		if c.Backend.Session.Host == "" || (proto == backend.ProtocolSFTP && c.Backend.Session.User == "") {
			problems = append(problems, "session backend needs backend.session.host and backend.session.user")
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// SecretSource is the subset of credman.SecretManager used to fill in
// secrets missing from the file and environment.
type SecretSource interface {
	Get(name string) (string, error)
}

// ResolveSecrets fills empty secret fields from src.
func (c *Config) ResolveSecrets(src SecretSource) error {
	fields := []struct {
		name string
		dst  *string
	}{
		{credman.BotToken, &c.Backend.BotToken},
		{credman.SessionPassword, &c.Backend.Session.Password},
		{credman.RPCSecret, &c.RPCSecret},
	}
	for _, f := range fields {
		if *f.dst != "" {
			continue
		}
		v, err := src.Get(f.name)
		if errors.Is(err, credman.ErrSecretNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read secret %s: %w", f.name, err)
		}
		*f.dst = v
	}
	return nil
}

// ManagerOpts converts the configuration into queue manager options.
func (c *Config) ManagerOpts(l logger.Logger) queuelib.ManagerOpts {
	retries := c.MaxRetries
	if retries == 0 {
		// zero selects the library default; negative disables retries
		retries = -1
	}
	return queuelib.ManagerOpts{
		Workers:         c.Workers,
		MaxRetries:      retries,
		RetryDelay:      c.RetryDelay,
		PollInterval:    c.PollInterval,
		ShutdownTimeout: c.ShutdownTimeout,
		DownloadDir:     c.DownloadPath,
		Logger:          l,
	}
}

// BackendOptions converts the configuration into backend options.
func (c *Config) BackendOptions(fs afero.Fs, l logger.Logger) (backend.Options, error) {
	kind, err := backend.ParseKind(c.Backend.Kind)
	if err != nil {
		return backend.Options{}, err
	}
	return backend.Options{
		Kind: kind,
		Bot: backend.BotOptions{
			Token:  c.Backend.BotToken,
			APIURL: c.Backend.APIURL,
			Proxy:  c.Backend.Proxy,
		},
		Session: backend.SessionOptions{
			Protocol:   c.Backend.Session.Protocol,
			Host:       c.Backend.Session.Host,
			User:       c.Backend.Session.User,
			Password:   c.Backend.Session.Password,
			KeyPath:    c.Backend.Session.KeyPath,
			KnownHosts: c.Backend.Session.KnownHosts,
			Root:       c.Backend.Session.Root,
			Proxy:      c.Backend.Proxy,
		},
		Demo: backend.DemoOptions{
			Size:       c.Backend.DemoSize,
			ChunkDelay: c.Backend.DemoChunkDelay,
		},
		Fs:     fs,
		Logger: l,
	}, nil
}

// Redacted returns a copy with every secret masked.
func (c *Config) Redacted() *Config {
	cp := *c
	for _, s := range []*string{&cp.RPCSecret, &cp.Backend.BotToken, &cp.Backend.Session.Password} {
		if *s != "" {
			*s = redacted
		}
	}
	return &cp
}

// YAML renders the configuration with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}
