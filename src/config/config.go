package config

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/asaskevich/govalidator"
	"github.com/creasty/defaults"
	"github.com/pelletier/go-toml/v2"
)

// DefaultRelativeLocation is where the configuration lives relative to the
// home directory of the user running the API.
const DefaultRelativeLocation = ".config/resticapi/config.toml"

var (
	mu      sync.RWMutex
	_config *Configuration
)

// NotFoundError is returned when no configuration file exists at the
// requested location.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return "Configuration file not found at " + e.Path
}

// IsNotFound reports whether err was caused by a missing configuration file.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// RepositoryConfiguration identifies the restic repository every request is
// executed against. Both values are required.
type RepositoryConfiguration struct {
	// Path is the restic repository location. Anything restic accepts for -r
	// works here, a local path or a backend URI such as s3:host/bucket.
	Path string `json:"path" toml:"path"`

	// Password is written to a short-lived file for each invocation and is
	// never passed on the command line.
	Password string `json:"-" toml:"password"`
}

type ServerConfiguration struct {
	IP   string `default:"0.0.0.0" json:"ip" toml:"ip"`
	Port int    `default:"8080" json:"port" toml:"port"`
}

// ResticConfiguration controls how the restic binary is located and run.
type ResticConfiguration struct {
	// Binary is looked up in PATH when BinaryPath is empty.
	Binary     string `default:"restic" json:"binary" toml:"binary"`
	BinaryPath string `json:"binary_path" toml:"binary_path"`

	// Timeout bounds a single invocation. A hung restic process is killed
	// once it elapses so that it cannot hold the repository forever.
	Timeout string `default:"30m" json:"timeout" toml:"timeout"`

	// TmpDirectory is where password files are created. Defaults to the
	// system temporary directory.
	TmpDirectory string `json:"tmp_directory" toml:"tmp_directory"`
}

// CacheConfiguration controls caching of read-only results (stats and
// snapshot listings). A zero TTL disables the cache.
type CacheConfiguration struct {
	TTL string `default:"0s" json:"ttl" toml:"ttl"`
}

// ApiConfiguration holds settings for the HTTP surface itself.
type ApiConfiguration struct {
	// RateLimit is the number of requests per second allowed across all
	// clients. Zero disables rate limiting.
	RateLimit float64 `json:"rate_limit" toml:"rate_limit"`
	RateBurst int64   `json:"rate_burst" toml:"rate_burst"`
}

type LogConfiguration struct {
	// Directory receives resticapi.log when set. Console logging is always
	// enabled.
	Directory string `json:"directory" toml:"directory"`
}

type Configuration struct {
	// The location from which this configuration instance was loaded.
	path string

	Debug bool `json:"debug" toml:"debug"`

	Repository RepositoryConfiguration `json:"repository" toml:"repository"`
	Server     ServerConfiguration     `json:"server" toml:"server"`
	Restic     ResticConfiguration     `json:"restic" toml:"restic"`
	Cache      CacheConfiguration      `json:"cache" toml:"cache"`
	Api        ApiConfiguration        `json:"api" toml:"api"`
	Log        LogConfiguration        `json:"log" toml:"log"`
}

// DefaultLocation returns the configuration path under the current user's
// home directory.
func DefaultLocation() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("HOME directory not found")
	}
	return filepath.Join(home, DefaultRelativeLocation), nil
}

// NewAtPath returns a configuration with every default applied that will be
// associated with the given path.
func NewAtPath(path string) (*Configuration, error) {
	var c Configuration
	if err := defaults.Set(&c); err != nil {
		return nil, err
	}
	c.path = path
	return &c, nil
}

// FromFile reads the TOML configuration at path, applies defaults and any
// RESTICAPI_ environment overrides, and validates the result. It does not
// set the global configuration.
func FromFile(path string) (*Configuration, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, errors.Wrap(err, "config: failed to stat configuration file")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: failed to read configuration file")
	}

	c, err := NewAtPath(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: failed to apply defaults")
	}
	if err := toml.Unmarshal(b, c); err != nil {
		return nil, errors.Wrap(err, "config: failed to parse configuration file")
	}
	if err := MergeEnv(c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate ensures every value needed to serve requests is present and
// well formed.
func (c *Configuration) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Repository.Path) == "" {
		missing = append(missing, "repository.path")
	}
	if c.Repository.Password == "" {
		missing = append(missing, "repository.password")
	}
	if len(missing) > 0 {
		return errors.Errorf("config: missing required configuration: %s", strings.Join(missing, ", "))
	}

	if !govalidator.IsPort(strconv.Itoa(c.Server.Port)) {
		return errors.Errorf("config: invalid server port: %d", c.Server.Port)
	}
	if !govalidator.IsHost(c.Server.IP) {
		return errors.Errorf("config: invalid server ip: %q", c.Server.IP)
	}

	if _, err := c.Restic.InvocationTimeout(); err != nil {
		return err
	}
	if _, err := c.Cache.Duration(); err != nil {
		return err
	}
	if c.Api.RateLimit < 0 || c.Api.RateBurst < 0 {
		return errors.New("config: api rate limits cannot be negative")
	}
	return nil
}

// GetPath returns the location the configuration was loaded from.
func (c *Configuration) GetPath() string {
	return c.path
}

// Addr returns the address the HTTP server binds to.
func (c *Configuration) Addr() string {
	return net.JoinHostPort(c.Server.IP, strconv.Itoa(c.Server.Port))
}

// InvocationTimeout parses Timeout. A zero duration disables the timeout.
func (r ResticConfiguration) InvocationTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(r.Timeout)
	if err != nil {
		return 0, errors.Wrapf(err, "config: invalid restic timeout %q", r.Timeout)
	}
	if d < 0 {
		return 0, errors.Errorf("config: restic timeout cannot be negative: %s", r.Timeout)
	}
	return d, nil
}

// Duration parses TTL. A zero duration disables the cache.
func (c CacheConfiguration) Duration() (time.Duration, error) {
	d, err := time.ParseDuration(c.TTL)
	if err != nil {
		return 0, errors.Wrapf(err, "config: invalid cache ttl %q", c.TTL)
	}
	if d < 0 {
		return 0, errors.Errorf("config: cache ttl cannot be negative: %s", c.TTL)
	}
	return d, nil
}

// Set sets the global configuration instance.
func Set(c *Configuration) {
	mu.Lock()
	defer mu.Unlock()
	_config = c
}

// Get returns the global configuration instance. It panics if no
// configuration has been loaded since that is a programming error.
func Get() *Configuration {
	mu.RLock()
	defer mu.RUnlock()
	if _config == nil {
		panic("config: attempt to access configuration before it was loaded")
	}
	// Return a copy so callers cannot mutate the shared instance.
	c := *_config
	return &c
}
