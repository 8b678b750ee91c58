package ops

import (
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/yanun0323/errors"

	"tradecore/internal/core"
	"tradecore/internal/journal"
	"tradecore/internal/model/enum"
	"tradecore/internal/recorder"
	"tradecore/pkg/exception"
)

// FileConfig mirrors the config file layout.
type FileConfig struct {
	Recorder  RecorderConfig  `mapstructure:"recorder"`
	Runtime   RuntimeConfig   `mapstructure:"runtime"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Profiling ProfilingConfig `mapstructure:"profiling"`
}

// RecorderConfig tunes the canonical store and the fan-out.
type RecorderConfig struct {
	InstrumentIndependent bool   `mapstructure:"instrument_independent"`
	LogOutput             bool   `mapstructure:"log_output"`
	Location              string `mapstructure:"location"`
	BarIntervals          []int  `mapstructure:"bar_intervals"`
}

// RuntimeConfig selects the execution model.
type RuntimeConfig struct {
	Mode                    string `mapstructure:"mode"`
	QueueSize               int    `mapstructure:"queue_size"`
	MaxConcurrentExtensions int    `mapstructure:"max_concurrent_extensions"`
}

// JournalConfig describes the optional postgres trade journal.
type JournalConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	Database   string `mapstructure:"database"`
	SSLMode    string `mapstructure:"ssl_mode"`
	ConnString string `mapstructure:"conn_string"`
}

// ProfilingConfig enables continuous profiling.
type ProfilingConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	ServerAddress   string `mapstructure:"server_address"`
	ApplicationName string `mapstructure:"application_name"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Engine    core.Config
	Journal   JournalSpec
	Profiling ProfilingConfig
}

// JournalSpec is the resolved journal definition.
type JournalSpec struct {
	Enabled bool
	Options journal.Options
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("recorder.instrument_independent", false)
	v.SetDefault("recorder.log_output", false)
	v.SetDefault("recorder.location", "Local")
	v.SetDefault("recorder.bar_intervals", []int{int(enum.Interval1m)})
	v.SetDefault("runtime.mode", string(core.ModeBlocking))
	v.SetDefault("runtime.queue_size", 4096)
	v.SetDefault("runtime.max_concurrent_extensions", 8)
	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.port", 5432)
	v.SetDefault("journal.ssl_mode", "disable")
	v.SetDefault("profiling.enabled", false)
	v.SetDefault("profiling.application_name", "tradecore")
}

// New returns a viper instance with defaults and TRADECORE_ environment
// overrides, e.g. TRADECORE_RUNTIME_MODE.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("tradecore")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads a config file and resolves it. An empty path uses defaults and
// environment only.
func Load(path string) (Loaded, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Loaded{}, errors.Wrapf(err, "read config %s", path)
		}
	}
	return Resolve(v)
}

// Resolve decodes and validates the settings held by v.
func Resolve(v *viper.Viper) (Loaded, error) {
	var cfg FileConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return Loaded{}, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Loaded{}, err
	}
	return cfg.resolve()
}

// Validate checks value ranges without touching the environment.
func (cfg FileConfig) Validate() error {
	if !core.Mode(cfg.Runtime.Mode).IsAvailable() {
		return errors.Wrapf(exception.ErrMisconfiguration, "runtime.mode %q", cfg.Runtime.Mode)
	}
	if cfg.Runtime.QueueSize <= 0 {
		return errors.Wrap(exception.ErrMisconfiguration, "runtime.queue_size must be > 0")
	}
	if cfg.Runtime.MaxConcurrentExtensions <= 0 {
		return errors.Wrap(exception.ErrMisconfiguration, "runtime.max_concurrent_extensions must be > 0")
	}
	if len(cfg.Recorder.BarIntervals) == 0 {
		return errors.Wrap(exception.ErrMisconfiguration, "recorder.bar_intervals is empty")
	}
	for _, iv := range cfg.Recorder.BarIntervals {
		if !enum.Interval(iv).IsAvailable() {
			return errors.Wrapf(exception.ErrMisconfiguration, "recorder.bar_intervals: %d minutes", iv)
		}
	}
	if cfg.Journal.Enabled && cfg.Journal.ConnString == "" && cfg.Journal.Database == "" {
		return errors.Wrap(exception.ErrMisconfiguration, "journal needs conn_string or database")
	}
	if cfg.Profiling.Enabled && cfg.Profiling.ServerAddress == "" {
		return errors.Wrap(exception.ErrMisconfiguration, "profiling.server_address is empty")
	}
	return nil
}

func (cfg FileConfig) resolve() (Loaded, error) {
	loc, err := resolveLocation(cfg.Recorder.Location)
	if err != nil {
		return Loaded{}, err
	}

	intervals := make([]enum.Interval, 0, len(cfg.Recorder.BarIntervals))
	for _, iv := range cfg.Recorder.BarIntervals {
		intervals = append(intervals, enum.Interval(iv))
	}
	slices.Sort(intervals)
	intervals = slices.Compact(intervals)

	return Loaded{
		Engine: core.Config{
			Mode: core.Mode(cfg.Runtime.Mode),
			Recorder: recorder.Config{
				LogOutput:    cfg.Recorder.LogOutput,
				Location:     loc,
				BarIntervals: intervals,
			},
			InstrumentIndependent:   cfg.Recorder.InstrumentIndependent,
			QueueSize:               cfg.Runtime.QueueSize,
			MaxConcurrentExtensions: cfg.Runtime.MaxConcurrentExtensions,
		},
		Journal: JournalSpec{
			Enabled: cfg.Journal.Enabled,
			Options: journal.Options{
				Host:       cfg.Journal.Host,
				Port:       cfg.Journal.Port,
				User:       cfg.Journal.User,
				Password:   cfg.Journal.Password,
				Database:   cfg.Journal.Database,
				SSLMode:    cfg.Journal.SSLMode,
				ConnString: cfg.Journal.ConnString,
			},
		},
		Profiling: cfg.Profiling,
	}, nil
}

func resolveLocation(name string) (*time.Location, error) {
	switch strings.TrimSpace(name) {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.Wrapf(exception.ErrMisconfiguration, "recorder.location %q: %v", name, err)
	}
	return loc, nil
}
