package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/creasty/defaults"
	"gopkg.in/yaml.v2"

	"github.com/priyxstudio/fwauth/system"
)

// DefaultLocation is set dynamically based on the platform
var DefaultLocation = GetDefaultConfigLocation()

// Backends understood by the firewall command.
const (
	BackendAuto    = "auto"
	BackendWindows = "windows"
	BackendSQLite  = "sqlite"
	BackendMemory  = "memory"
)

var (
	mu            sync.RWMutex
	_config       *Configuration
	_debugViaFlag bool
)

// Locker specific to writing the configuration to the disk, this happens
// in areas that might already be locked, so we don't want to crash the process.
var _writeLock sync.Mutex

// RuleConfiguration defines the firewall rule registered for the application.
type RuleConfiguration struct {
	// Name is the rule identity. When empty the application's short name is
	// used. Supports environment variables and file:// references.
	Name string `yaml:"name"`

	// Executable is the program the rule applies to. When empty the running
	// executable is used.
	Executable string `yaml:"executable"`
}

// SystemConfiguration defines basic system configuration settings.
type SystemConfiguration struct {
	// The root directory where all of the local state is stored at.
	RootDirectory string `yaml:"root_directory"`

	// Directory where logs for the process are stored.
	LogDirectory string `yaml:"log_directory"`

	// Database is the SQLite file holding the authorization history and,
	// for the sqlite backend, the emulated firewall policy.
	Database string `yaml:"database,omitempty"`
}

// HistoryConfiguration controls the record of past authorization attempts.
type HistoryConfiguration struct {
	Enabled bool `default:"true" yaml:"enabled"`

	// Retain is the number of records kept. Values below one keep everything.
	Retain int `default:"100" yaml:"retain"`
}

type Configuration struct {
	// The location from which this configuration instance was instantiated.
	path string

	// Determines if the process should be running in debug mode. This value is
	// ignored if the debug flag is passed through the command line arguments.
	Debug bool `yaml:"debug"`

	// Backend selects the firewall policy store: "windows" for Windows
	// Firewall, "sqlite" for the emulated store in the local database,
	// "memory" for a throwaway dry run, or "auto" to pick windows on Windows
	// and sqlite everywhere else.
	Backend string `default:"auto" yaml:"backend"`

	// Timeout in seconds for the whole authorization. Set to 0 to wait for the
	// policy service indefinitely.
	Timeout int `default:"30" yaml:"timeout"`

	Rule    RuleConfiguration    `yaml:"rule"`
	System  SystemConfiguration  `yaml:"system"`
	History HistoryConfiguration `yaml:"history"`
}

// NewAtPath creates a new struct and set the path where it should be stored.
// This function does not modify the currently stored global configuration.
func NewAtPath(path string) (*Configuration, error) {
	c, err := newWithDefaults(path)
	if err != nil {
		return nil, err
	}
	applyPlatformDefaults(c)
	return c, nil
}

// newWithDefaults applies the struct defaults only. Platform paths depend on
// other values, such as the root directory, and are filled in afterwards.
func newWithDefaults(path string) (*Configuration, error) {
	var c Configuration
	// Configures the default values for many of the configuration options present
	// in the structs. Values set in the configuration file take priority over the
	// default values.
	if err := defaults.Set(&c); err != nil {
		return nil, err
	}
	c.path = path
	return &c, nil
}

// Set the global configuration instance. This is a blocking operation such that
// anything trying to set a different configuration value, or read the configuration
// will be paused until it is complete.
func Set(c *Configuration) {
	mu.Lock()
	defer mu.Unlock()
	_config = c
}

// SetDebugViaFlag tracks if the application is running in debug mode because of
// a command line flag argument. If so we do not want to store that configuration
// change to the disk.
func SetDebugViaFlag(d bool) {
	mu.Lock()
	defer mu.Unlock()
	_config.Debug = d
	_debugViaFlag = d
}

// Get returns the global configuration instance. This is a thread-safe operation
// that will block if the configuration is presently being modified.
//
// Be aware that you CANNOT make modifications to the currently stored configuration
// by modifying the struct returned by this function. The only way to make
// modifications is by using the Update() function and passing data through in
// the callback.
func Get() *Configuration {
	mu.RLock()
	// Create a copy of the struct so that all modifications made beyond this
	// point are immutable.
	//goland:noinspection GoVetCopyLock
	c := *_config
	mu.RUnlock()
	return &c
}

// Update performs an in-situ update of the global configuration object using
// a thread-safe mutex lock. This is the correct way to make modifications to
// the global configuration.
func Update(callback func(c *Configuration)) {
	mu.Lock()
	defer mu.Unlock()
	callback(_config)
}

// Path returns the file path where this configuration is stored.
func (c *Configuration) Path() string {
	return c.path
}

// RuleName returns the rule identity, falling back to the application's
// short name.
func (c *Configuration) RuleName() string {
	if c.Rule.Name != "" {
		return c.Rule.Name
	}
	return system.ShortName
}

// ApplicationPath returns the absolute native path of the executable the
// rule applies to.
func (c *Configuration) ApplicationPath() (string, error) {
	if c.Rule.Executable == "" {
		return system.Executable()
	}
	return system.NativePath(c.Rule.Executable)
}

// TimeoutDuration returns the configured timeout.
func (c *Configuration) TimeoutDuration() time.Duration {
	if c.Timeout <= 0 {
		return 0
	}
	return time.Duration(c.Timeout) * time.Second
}

// Validate checks values that cannot be expressed through struct defaults.
func (c *Configuration) Validate() error {
	switch c.Backend {
	case BackendAuto, BackendWindows, BackendSQLite, BackendMemory:
	default:
		return errors.Errorf("config: unknown backend %q (must be one of auto, windows, sqlite, memory)", c.Backend)
	}
	if c.Timeout < 0 {
		return errors.Errorf("config: timeout cannot be negative, got %d", c.Timeout)
	}
	if c.Rule.Name != "" && strings.TrimSpace(c.Rule.Name) == "" {
		return errors.New("config: rule name cannot be blank")
	}
	return nil
}

// WriteToDisk writes the configuration to the disk. This is a thread safe operation
// and will only allow one write at a time. Additional calls while writing are
// queued up.
func WriteToDisk(c *Configuration) error {
	_writeLock.Lock()
	defer _writeLock.Unlock()

	//goland:noinspection GoVetCopyLock
	ccopy := *c
	// If debugging is set with the flag, don't save that to the configuration file,
	// otherwise you'll always end up in debug mode.
	if _debugViaFlag {
		ccopy.Debug = false
	}
	if c.path == "" {
		return errors.New("cannot write configuration, no path defined in struct")
	}
	// The database follows the root directory unless it was moved explicitly.
	if ccopy.System.Database == defaultDatabase(ccopy.System.RootDirectory) {
		ccopy.System.Database = ""
	}
	b, err := yaml.Marshal(&ccopy)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(c.path, b, 0o600)
}

// Load reads the configuration at path without storing it globally.
func Load(path string) (*Configuration, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parse(path, b)
}

func parse(path string, b []byte) (*Configuration, error) {
	c, err := newWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, errors.Wrap(err, "config: failed to parse configuration")
	}
	applyPlatformDefaults(c)
	if err := finalize(c); err != nil {
		return nil, err
	}
	return c, nil
}

// finalize applies the environment override, expands references and
// validates the result.
func finalize(c *Configuration) error {
	var err error
	if v := os.Getenv("FWAUTH_RULE_NAME"); v != "" {
		c.Rule.Name = v
	}
	c.Rule.Name, err = Expand(c.Rule.Name)
	if err != nil {
		return err
	}
	c.Rule.Executable, err = Expand(c.Rule.Executable)
	if err != nil {
		return err
	}
	return c.Validate()
}

// FromFile reads the configuration from the provided file and stores it in the
// global singleton for this instance.
func FromFile(path string) error {
	c, err := Load(path)
	if err != nil {
		return err
	}
	Set(c)
	return nil
}

// FromFileOrDefaults behaves like FromFile but falls back to the defaults when
// no file exists at path. The authorizer is usually started by a hosting
// application that ships without a configuration file.
func FromFileOrDefaults(path string) error {
	err := FromFile(path)
	if err == nil || !os.IsNotExist(errors.Cause(err)) {
		return err
	}
	log.WithField("path", path).Debug("no configuration file found, using defaults")
	c, err := NewAtPath(path)
	if err != nil {
		return err
	}
	if err := finalize(c); err != nil {
		return err
	}
	Set(c)
	return nil
}

// Expand expands an input string by calling [os.ExpandEnv] to expand all
// environment variables, then checks if the value is prefixed with `file://`
// to support reading the value from a file.
func Expand(v string) (string, error) {
	v = os.ExpandEnv(v)

	// Handle files.
	const filePrefix = "file://"
	if strings.HasPrefix(v, filePrefix) {
		p := v[len(filePrefix):]

		b, err := os.ReadFile(p)
		if err != nil {
			return "", errors.WithDetails(errors.Wrap(err, "config: failed to read referenced file"), "path", p)
		}
		v = string(bytes.TrimRight(bytes.TrimRight(b, "\n"), "\r"))
	}

	return v, nil
}

// applyPlatformDefaults fills empty paths with the defaults of the current
// platform, see paths_windows.go and paths_other.go.
func applyPlatformDefaults(c *Configuration) {
	if c.System.RootDirectory == "" {
		c.System.RootDirectory = GetDefaultRootDirectory()
	}
	if c.System.LogDirectory == "" {
		c.System.LogDirectory = GetDefaultLogDirectory()
	}
	if c.System.Database == "" {
		c.System.Database = defaultDatabase(c.System.RootDirectory)
	}
}

func defaultDatabase(root string) string {
	return filepath.Join(root, "fwauth.db")
}
