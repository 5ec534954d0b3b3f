package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults mirror the settings the proxy has always shipped with.
const (
	DefaultPort         = 5956
	DefaultWorkers      = 24
	DefaultMaxInFlight  = 40
	DefaultChunkSize    = 16384
	DefaultMaxRedirects = 10
	DefaultUserAgent    = "mavenproxy/1.0"
)

type Config struct {
	Server struct {
		Address     string `yaml:"address"`
		Port        int    `yaml:"port"`
		Compression *bool  `yaml:"compression"`
		// MaxInFlight bounds concurrently handled inbound requests.
		MaxInFlight int `yaml:"max_in_flight"`
		TLS         struct {
			CertFile string `yaml:"cert_file"`
			KeyFile  string `yaml:"key_file"`
		} `yaml:"tls"`
	} `yaml:"server"`
	Proxy struct {
		Origins   []string `yaml:"origins"`
		UserAgent string   `yaml:"user_agent"`
		// Workers bounds concurrent outbound fetches (pool slots).
		Workers      int    `yaml:"workers"`
		ChunkSize    int    `yaml:"chunk_size"`
		MaxBodySize  int64  `yaml:"max_body_size"`
		MaxRedirects int    `yaml:"max_redirects"`
		BufferPool   string `yaml:"buffer_pool"` // pooled|heap
		// AcquireTimeoutSec bounds how long a fetch waits for a free
		// pool slot. Zero means wait indefinitely.
		AcquireTimeoutSec int `yaml:"acquire_timeout_sec"`
	} `yaml:"proxy"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // text|json
	} `yaml:"logging"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

// Addr returns host:port for the HTTP server.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Server.Port
	if p == 0 {
		p = DefaultPort
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// CompressionEnabled reports whether HTTP response compression is on.
// It defaults to on when the config does not say otherwise.
func (c *Config) CompressionEnabled() bool {
	if c.Server.Compression == nil {
		return true
	}
	return *c.Server.Compression
}

// Workers returns the outbound fetch worker count with the default applied.
func (c *Config) Workers() int {
	if c.Proxy.Workers <= 0 {
		return DefaultWorkers
	}
	return c.Proxy.Workers
}

// MaxInFlight returns the inbound concurrency bound with the default applied.
func (c *Config) MaxInFlight() int {
	if c.Server.MaxInFlight <= 0 {
		return DefaultMaxInFlight
	}
	return c.Server.MaxInFlight
}

// ChunkSize returns the streamed-chunk size cap with the default applied.
func (c *Config) ChunkSize() int {
	if c.Proxy.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return c.Proxy.ChunkSize
}

// MaxRedirects returns the redirect-follow bound with the default applied.
func (c *Config) MaxRedirects() int {
	if c.Proxy.MaxRedirects <= 0 {
		return DefaultMaxRedirects
	}
	return c.Proxy.MaxRedirects
}

// UserAgent returns the outbound user agent with the default applied.
func (c *Config) UserAgent() string {
	if strings.TrimSpace(c.Proxy.UserAgent) == "" {
		return DefaultUserAgent
	}
	return c.Proxy.UserAgent
}

// AcquireTimeout returns the pool-slot acquisition timeout.
func (c *Config) AcquireTimeout() time.Duration {
	if c.Proxy.AcquireTimeoutSec <= 0 {
		return 0
	}
	return time.Duration(c.Proxy.AcquireTimeoutSec) * time.Second
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseCommandFlags defines and parses command-line flags and returns their
// values along with a map indicating which flags were explicitly set.
func ParseCommandFlags() (addr string, origins string, cfgPath string, setFlags map[string]bool) {
	addrPtr := flag.String("addr", fmt.Sprintf(":%d", DefaultPort), "HTTP listen address")
	originPtr := flag.String("origins", "", "Comma-separated origin repository base URLs")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return *addrPtr, *originPtr, *cfgPtr, setFlags
}

// ParseList splits a comma-separated value into trimmed non-empty parts.
func ParseList(v string) []string {
	if v == "" {
		return nil
	}
	var parts []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

// LoadEnvOverrides applies environment overrides onto the provided cfg and
// reports whether any env vars were used.
func LoadEnvOverrides(cfg *Config) bool {
	envUsed := false

	if v := os.Getenv("MAVENPROXY_ADDRESS"); v != "" {
		envUsed = true
		cfg.Server.Address = v
	}
	if v := os.Getenv("MAVENPROXY_PORT"); v != "" {
		if pi, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Server.Port = pi
		}
	}
	if v := os.Getenv("MAVENPROXY_ORIGINS"); v != "" {
		envUsed = true
		cfg.Proxy.Origins = ParseList(v)
	}
	if v := os.Getenv("MAVENPROXY_WORKERS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Proxy.Workers = n
		}
	}
	if v := os.Getenv("MAVENPROXY_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Proxy.ChunkSize = n
		}
	}
	if v := os.Getenv("MAVENPROXY_MAX_BODY_SIZE"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			envUsed = true
			cfg.Proxy.MaxBodySize = n
		}
	}
	if v := os.Getenv("MAVENPROXY_COMPRESSION"); v != "" {
		envUsed = true
		b := parseBool(v)
		cfg.Server.Compression = &b
	}
	if v := os.Getenv("MAVENPROXY_MAX_IN_FLIGHT"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Server.MaxInFlight = n
		}
	}
	if v := os.Getenv("MAVENPROXY_BUFFER_POOL"); v != "" {
		envUsed = true
		cfg.Proxy.BufferPool = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("MAVENPROXY_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envUsed = true
			cfg.RateLimit.RPS = f
		}
	}
	if v := os.Getenv("MAVENPROXY_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.RateLimit.Burst = n
		}
	}
	if v := os.Getenv("MAVENPROXY_LOG_LEVEL"); v != "" {
		envUsed = true
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MAVENPROXY_LOG_FORMAT"); v != "" {
		envUsed = true
		cfg.Logging.Format = v
	}
	if c := os.Getenv("MAVENPROXY_TLS_CERT"); c != "" {
		envUsed = true
		cfg.Server.TLS.CertFile = c
	}
	if k := os.Getenv("MAVENPROXY_TLS_KEY"); k != "" {
		envUsed = true
		cfg.Server.TLS.KeyFile = k
	}
	return envUsed
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// LoadEffective loads config from the given path (file) and applies
// environment overrides. A missing file is not an error; env and flags can
// carry a full configuration on their own. fileUsed and envUsed report
// which sources actually contributed.
func LoadEffective(path string) (cfg *Config, fileUsed, envUsed bool, err error) {
	cfg, lerr := Load(path)
	fileUsed = lerr == nil
	if !fileUsed {
		cfg = &Config{}
	}
	envUsed = LoadEnvOverrides(cfg)
	return cfg, fileUsed, envUsed, nil
}

// ResolveConfigPath decides the config file path using the flag-provided
// value and the MAVENPROXY_CONFIG env var when the flag was not set.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("MAVENPROXY_CONFIG"); p != "" {
		return p
	}
	return flagPath
}

// Validate checks settings the server cannot run without.
func (c *Config) Validate() error {
	if len(c.Proxy.Origins) == 0 {
		return fmt.Errorf("no origin repositories configured")
	}
	for _, o := range c.Proxy.Origins {
		if !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			return fmt.Errorf("origin %q must be an http(s) URL", o)
		}
	}
	if bp := c.Proxy.BufferPool; bp != "" && bp != "pooled" && bp != "heap" {
		return fmt.Errorf("buffer_pool must be \"pooled\" or \"heap\", got %q", bp)
	}
	if (c.Server.TLS.CertFile == "") != (c.Server.TLS.KeyFile == "") {
		return fmt.Errorf("both TLS cert_file and key_file must be set")
	}
	return nil
}
