package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the settings loaded from voyager.yml plus environment
// overrides.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Validation ValidationConfig `yaml:"validation"`
	Deploy     DeployConfig     `yaml:"deploy"`
	Precheck   PrecheckConfig   `yaml:"precheck"`
	Web        WebConfig        `yaml:"web"`
	API        APIConfig        `yaml:"api"`
}

type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
	Debug bool   `yaml:"debug,omitempty"`
	Dir   string `yaml:"dir,omitempty"`
}

type ValidationConfig struct {
	Strict bool `yaml:"strict,omitempty"`
}

type DeployConfig struct {
	// DryRun defaults to true when unset.
	DryRun   *bool  `yaml:"dry_run,omitempty"`
	WorkDir  string `yaml:"work_dir,omitempty"`
	PlanFile string `yaml:"plan_file,omitempty"`
}

type PrecheckConfig struct {
	Network      bool          `yaml:"network,omitempty"`
	ProbePort    int           `yaml:"probe_port,omitempty"`
	ProbeTimeout time.Duration `yaml:"probe_timeout,omitempty"`
	Parallelism  int           `yaml:"parallelism,omitempty"`
}

type WebConfig struct {
	Addr        string      `yaml:"addr,omitempty"`
	MaxWorkers  int         `yaml:"max_workers,omitempty"`
	TaskStorage string      `yaml:"task_storage,omitempty"`
	TaskBackend string      `yaml:"task_backend,omitempty"` // json or sqlite
	JWTSecret   string      `yaml:"jwt_secret,omitempty"`
	Defaults    WebDefaults `yaml:"defaults,omitempty"`
}

// WebDefaults seeds the stage selection and options shown by the UI.
type WebDefaults struct {
	Stages     []string       `yaml:"stages,omitempty"`
	RunOptions DefaultOptions `yaml:"run_options,omitempty"`
}

type DefaultOptions struct {
	DryRun           *bool `yaml:"dry_run,omitempty"`
	StrictValidation *bool `yaml:"strict_validation,omitempty"`
	Debug            *bool `yaml:"debug,omitempty"`
}

type APIConfig struct {
	BaseURL string `yaml:"base_url,omitempty"`
	Token   string `yaml:"token,omitempty"`
	Timeout int    `yaml:"timeout,omitempty"` // seconds
	Mock    bool   `yaml:"mock,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// DryRunDefault reports the configured dry-run default.
func (c *Config) DryRunDefault() bool {
	if c.Deploy.DryRun == nil {
		return true
	}
	return *c.Deploy.DryRun
}

// DebugDefault reports whether debug logging is the configured default.
func (c *Config) DebugDefault() bool {
	return c.Logging.Debug || strings.EqualFold(c.Logging.Level, "debug")
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
	if c.Deploy.WorkDir == "" {
		c.Deploy.WorkDir = "."
	}
	if c.Precheck.ProbePort == 0 {
		c.Precheck.ProbePort = 22
	}
	if c.Precheck.ProbeTimeout == 0 {
		c.Precheck.ProbeTimeout = 3 * time.Second
	}
	if c.Precheck.Parallelism <= 0 {
		c.Precheck.Parallelism = 8
	}
	if c.Web.Addr == "" {
		c.Web.Addr = ":8000"
	}
	if c.Web.MaxWorkers <= 0 {
		c.Web.MaxWorkers = 4
	}
	if c.Web.TaskBackend == "" {
		c.Web.TaskBackend = "json"
	}
	if c.Web.TaskStorage == "" {
		name := "web_tasks.json"
		if c.Web.TaskBackend == "sqlite" {
			name = "web_tasks.db"
		}
		c.Web.TaskStorage = filepath.Join(c.Logging.Dir, name)
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = 30
	}
}

// Load reads voyager.yml or voyager.yaml from dir, then applies .env and
// VOYAGER_* environment overrides. A missing file is not an error.
func Load(dir string) (*Config, error) {
	for _, name := range []string{"voyager.yml", "voyager.yaml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return LoadFile(path)
	}
	cfg := &Config{}
	if err := cfg.finish(dir); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads the configuration at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.finish(filepath.Dir(path)); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) finish(dir string) error {
	if err := loadDotEnv(dir); err != nil {
		return fmt.Errorf("config: load .env: %w", err)
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return err
	}
	c.applyDefaults()
	return nil
}

func loadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return godotenv.Load(path)
}

func pick(getenv func(string) string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := pick(getenv, "VOYAGER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := pick(getenv, "VOYAGER_TASK_STORAGE", "CXVOYAGER_TASK_STORAGE"); v != "" {
		c.Web.TaskStorage = v
	}
	if v := pick(getenv, "VOYAGER_TASK_BACKEND"); v != "" {
		c.Web.TaskBackend = v
	}
	if v := pick(getenv, "VOYAGER_JWT_SECRET"); v != "" {
		c.Web.JWTSecret = v
	}
	if v := pick(getenv, "VOYAGER_API_TOKEN", "SMARTX_TOKEN"); v != "" {
		c.API.Token = v
	}
	if v := pick(getenv, "VOYAGER_API_BASE_URL", "SMARTX_API_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := pick(getenv, "VOYAGER_API_TIMEOUT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: VOYAGER_API_TIMEOUT: %w", err)
		}
		c.API.Timeout = n
	}
	if v := pick(getenv, "VOYAGER_API_MOCK"); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			c.API.Mock = true
		default:
			c.API.Mock = false
		}
	}
	if v := pick(getenv, "VOYAGER_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: VOYAGER_WORKERS: %w", err)
		}
		c.Web.MaxWorkers = n
	}
	return nil
}
