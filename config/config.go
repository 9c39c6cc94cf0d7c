// Package config loads the peripheral's YAML configuration.
package config

import (
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/bleperiph"
	"github.com/rigado/bleperiph/bond"
	"github.com/rigado/bleperiph/kvlog"
	"github.com/rigado/bleperiph/notify"
	"github.com/rigado/bleperiph/session"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds all peripheral settings.
type Config struct {
	Name          string              `yaml:"name"`
	LogLevel      string              `yaml:"log_level"`
	Storage       StorageConfig       `yaml:"storage"`
	Advertising   AdvertisingConfig   `yaml:"advertising"`
	Notifications NotificationsConfig `yaml:"notifications"`
	KeepAlive     time.Duration       `yaml:"keep_alive"`
	RetryDelay    time.Duration       `yaml:"retry_delay"`

	// LinkSecurity is the level a real host reports for every link.
	LinkSecurity bleperiph.SecurityLevel `yaml:"link_security"`
}

// StorageConfig places the bond region inside a flash image file.
type StorageConfig struct {
	Path     string `yaml:"path"`
	Offset   uint32 `yaml:"offset"`
	Size     uint32 `yaml:"size"`
	PageSize uint32 `yaml:"page_size"`
}

type AdvertisingConfig struct {
	IntervalMin time.Duration `yaml:"interval_min"`
	IntervalMax time.Duration `yaml:"interval_max"`
}

type NotificationsConfig struct {
	Enabled bool          `yaml:"enabled"`
	Period  time.Duration `yaml:"period"`
	Welcome string        `yaml:"welcome"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	ap := bleperiph.DefaultAdvParams()
	return &Config{
		Name:     session.DefaultName,
		LogLevel: "info",
		Storage: StorageConfig{
			Path:     "bonds.img",
			Offset:   bond.DefaultRegion.Start,
			Size:     bond.DefaultRegion.Len(),
			PageSize: 4096,
		},
		Advertising: AdvertisingConfig{
			IntervalMin: ap.IntervalMin,
			IntervalMax: ap.IntervalMax,
		},
		Notifications: NotificationsConfig{
			Enabled: false,
			Period:  session.DefaultNotifyPeriod,
			Welcome: session.DefaultWelcome,
		},
		KeepAlive:    session.DefaultKeepAlive,
		RetryDelay:   session.DefaultRetryDelay,
		LinkSecurity: bleperiph.Encrypted,
	}
}

// Load reads a YAML file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config file")
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parsing config file")
	}
	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("name must not be empty")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Errorf("log_level %q is not a log level", c.LogLevel)
	}

	s := c.Storage
	if s.Path == "" {
		return errors.New("storage.path must not be empty")
	}
	if s.PageSize == 0 || s.PageSize > kvlog.MaxPageSize {
		return errors.Errorf("storage.page_size must be between 1 and %d", kvlog.MaxPageSize)
	}
	if s.Offset%s.PageSize != 0 || s.Size%s.PageSize != 0 {
		return errors.Errorf("storage region 0x%x+0x%x is not aligned to page_size 0x%x", s.Offset, s.Size, s.PageSize)
	}
	if s.Size < 2*s.PageSize {
		return errors.New("storage.size must hold at least two pages")
	}
	if uint64(s.Offset)+uint64(s.Size) > 1<<32-1 {
		return errors.New("storage region exceeds 4 GiB")
	}

	if c.Advertising.IntervalMin <= 0 || c.Advertising.IntervalMax < c.Advertising.IntervalMin {
		return errors.Errorf("advertising interval %s-%s is invalid", c.Advertising.IntervalMin, c.Advertising.IntervalMax)
	}
	if c.Notifications.Period <= 0 {
		return errors.New("notifications.period must be > 0")
	}
	if len(c.Notifications.Welcome) > notify.MaxMessageLen {
		return errors.Errorf("notifications.welcome is longer than %d bytes", notify.MaxMessageLen)
	}
	if c.KeepAlive <= 0 {
		return errors.New("keep_alive must be > 0")
	}
	if c.RetryDelay < 0 {
		return errors.New("retry_delay must not be negative")
	}
	if !c.LinkSecurity.Valid() {
		return errors.Errorf("link_security %d is invalid", c.LinkSecurity)
	}
	return nil
}

// Region is the bond region inside the storage image.
func (c *Config) Region() kvlog.Region {
	return kvlog.Region{Start: c.Storage.Offset, End: c.Storage.Offset + c.Storage.Size}
}

// Capacity is the size the storage image needs.
func (c *Config) Capacity() uint32 {
	return c.Storage.Offset + c.Storage.Size
}

// Options converts the settings the orchestrator understands.
func (c *Config) Options() []bleperiph.Option {
	ap := bleperiph.DefaultAdvParams()
	ap.IntervalMin = c.Advertising.IntervalMin
	ap.IntervalMax = c.Advertising.IntervalMax
	return []bleperiph.Option{
		bleperiph.OptName(c.Name),
		bleperiph.OptAdvParams(ap),
		bleperiph.OptNotifications(c.Notifications.Enabled),
		bleperiph.OptNotifyPeriod(c.Notifications.Period),
		bleperiph.OptWelcome(c.Notifications.Welcome),
		bleperiph.OptKeepAlive(c.KeepAlive),
		bleperiph.OptRetryDelay(c.RetryDelay),
	}
}
