package config

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the single configuration file shared by the startup orchestrator
// and the provisioner.
type Config struct {
	Database  Database  `yaml:"database"`
	Static    Static    `yaml:"static"`
	Server    Server    `yaml:"server"`
	Proxy     Proxy     `yaml:"proxy"`
	Provision Provision `yaml:"provision"`
	Journal   Journal   `yaml:"journal"`
	Steps     Steps     `yaml:"steps"`
}

// Database configures the schema-migration step.
type Database struct {
	// URL is a postgres:// or sqlite:// connection string. Never stored in
	// YAML in production; comes from secrets.env or the environment.
	URL             string `yaml:"url"`
	MigrationsDir   string `yaml:"migrations_dir"`
	MigrationsTable string `yaml:"migrations_table"`
}

// Static configures the static-asset collection step.
type Static struct {
	// Sources are scanned in order; the first occurrence of a relative
	// path wins.
	Sources  []string `yaml:"sources"`
	Root     string   `yaml:"root"`
	Manifest bool     `yaml:"manifest"`
}

// Server describes the request-serving process the orchestrator execs into.
type Server struct {
	Command                string   `yaml:"command"`
	App                    string   `yaml:"app"`
	Bind                   string   `yaml:"bind"`
	Workers                int      `yaml:"workers"`
	Threads                int      `yaml:"threads"`
	TimeoutSeconds         int      `yaml:"timeout_seconds"`
	GracefulTimeoutSeconds int      `yaml:"graceful_timeout_seconds"`
	KeepAliveSeconds       int      `yaml:"keep_alive_seconds"`
	ExtraArgs              []string `yaml:"extra_args"`
}

// Proxy describes the reverse-proxy site the provisioner writes.
type Proxy struct {
	Hostname   string `yaml:"hostname"`
	Upstream   string `yaml:"upstream"`
	AccessLog  string `yaml:"access_log"`
	ConfigPath string `yaml:"config_path"`
}

// Provision configures the host-bootstrap run.
type Provision struct {
	Firewall []string `yaml:"firewall"`
	Host     Host     `yaml:"host"`
	SSH      SSH      `yaml:"ssh"`
}

// Host is the remote target; empty IP means provision the local machine.
type Host struct {
	IP   string `yaml:"ip"`
	User string `yaml:"user"`
	Port int    `yaml:"port"`
}

type SSH struct {
	KeyDir     string `yaml:"key_dir"`
	KnownHosts string `yaml:"known_hosts"`
}

// Journal configures the local run-history store.
type Journal struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled"`
}

// Steps holds additional release commands run after static collection and
// before the server exec.
type Steps struct {
	Extra [][]string `yaml:"extra"`
}

// Load reads YAML configuration from path. If path is empty it tries
// /etc/cw/config.yaml, then $XDG_CONFIG_HOME/cw/config.yaml or
// ~/.config/cw/config.yaml. Secrets and environment are overlaid afterwards.
func Load(path string) (*Config, error) {
	if path == "" {
		path = defaultPath()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	// Merge secrets.env next to the config file, then the environment, so
	// the database URL never has to live in YAML.
	secrets, _ := LoadSecretsEnv(filepath.Join(filepath.Dir(path), "secrets.env"))
	if v := os.Getenv("DATABASE_URL"); v != "" {
		secrets["DATABASE_URL"] = v
	}
	if u, ok := secrets["DATABASE_URL"]; ok && u != "" {
		cfg.Database.URL = u
	}
	return cfg, nil
}

func defaultPath() string {
	const etc = "/etc/cw/config.yaml"
	if _, err := os.Stat(etc); err == nil {
		return etc
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "cw", "config.yaml")
}

func (c *Config) applyDefaults() {
	if c.Database.MigrationsDir == "" {
		c.Database.MigrationsDir = "/app/migrations"
	}
	if c.Database.MigrationsTable == "" {
		c.Database.MigrationsTable = "schema_migrations"
	}
	if c.Static.Root == "" {
		c.Static.Root = "/app/staticfiles"
	}
	if c.Server.Command == "" {
		c.Server.Command = "gunicorn"
	}
	if c.Server.App == "" {
		c.Server.App = "core.wsgi:application"
	}
	if c.Server.Bind == "" {
		c.Server.Bind = "0.0.0.0:8000"
	}
	if c.Server.Workers == 0 {
		c.Server.Workers = 3
	}
	if c.Server.Threads == 0 {
		c.Server.Threads = 2
	}
	if c.Server.TimeoutSeconds == 0 {
		c.Server.TimeoutSeconds = 60
	}
	if c.Server.GracefulTimeoutSeconds == 0 {
		c.Server.GracefulTimeoutSeconds = 30
	}
	if c.Server.KeepAliveSeconds == 0 {
		c.Server.KeepAliveSeconds = 5
	}
	if c.Proxy.Upstream == "" {
		if _, port, err := net.SplitHostPort(c.Server.Bind); err == nil {
			c.Proxy.Upstream = "127.0.0.1:" + port
		} else {
			c.Proxy.Upstream = "127.0.0.1:8000"
		}
	}
	if c.Proxy.AccessLog == "" {
		c.Proxy.AccessLog = "/var/log/caddy/access.log"
	}
	if c.Proxy.ConfigPath == "" {
		c.Proxy.ConfigPath = "/etc/caddy/Caddyfile"
	}
	if len(c.Provision.Firewall) == 0 {
		c.Provision.Firewall = []string{"22/tcp", "80/tcp", "443/tcp"}
	}
	if c.Provision.Host.Port == 0 {
		c.Provision.Host.Port = 22
	}
	if c.Provision.Host.User == "" {
		c.Provision.Host.User = "root"
	}
	if c.Provision.SSH.KeyDir == "" {
		c.Provision.SSH.KeyDir = "/etc/cw/ssh"
	}
	if c.Provision.SSH.KnownHosts == "" {
		c.Provision.SSH.KnownHosts = "/etc/cw/ssh/known_hosts"
	}
	if c.Journal.Path == "" {
		c.Journal.Path = "/var/lib/cw/journal.db"
	}
}

// Validate checks the fields the orchestrator cannot run without.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("config: database.url is required (set DATABASE_URL)")
	}
	if len(c.Static.Sources) == 0 {
		return fmt.Errorf("config: static.sources is required")
	}
	if _, _, err := net.SplitHostPort(c.Server.Bind); err != nil {
		return fmt.Errorf("config: invalid server.bind %q: %w", c.Server.Bind, err)
	}
	return nil
}
