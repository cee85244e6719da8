package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"freetime/internal/model"
)

// SourceConfig describes a remote ICS subscription whose busy times are
// merged alongside the local files.
type SourceConfig struct {
	// ID is an internal identifier used for logging and cache keys.
	ID string `yaml:"id" json:"id"`
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
}

// Config is the top-level application configuration.
type Config struct {
	// Directory is searched (non-recursively) for input calendars.
	Directory string `yaml:"directory" json:"directory"`

	// Pattern is a glob matched against file names in Directory.
	Pattern string `yaml:"pattern" json:"pattern"`

	// Sources lists additional remote calendars.
	Sources []SourceConfig `yaml:"sources" json:"sources"`

	// CacheDir holds ETag/Last-Modified caches for Sources.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// BufferMinutes is trimmed from both ends of every free interval.
	BufferMinutes int `yaml:"buffer_minutes" json:"buffer_minutes"`

	// DayStart / DayEnd bound the daily free window as HHMMSS integers
	// (e.g. 70000 and 240000).
	DayStart int `yaml:"day_start" json:"day_start"`
	DayEnd   int `yaml:"day_end" json:"day_end"`

	// MinFreeMinutes is the shortest free interval, after buffering, that is kept.
	MinFreeMinutes int `yaml:"min_free_minutes" json:"min_free_minutes"`

	// Output is the base name of the generated calendar, without extension.
	Output string `yaml:"output" json:"output"`

	// CalendarName and Summary label the generated calendar and its events.
	CalendarName string `yaml:"calendar_name" json:"calendar_name"`
	Summary      string `yaml:"summary" json:"summary"`

	// LegacyGapScan replaces the running busy end with each later interval's
	// end instead of the maximum. Clipping is controlled by ClipToWindow.
	LegacyGapScan bool `yaml:"legacy_gap_scan" json:"legacy_gap_scan"`

	// ClipToWindow trims gaps between busy ranges to [DayStart, DayEnd]
	// before the buffer is applied.
	ClipToWindow bool `yaml:"clip_to_window" json:"clip_to_window"`

	// LogLevel is one of DEBUG, INFO, WARN, ERROR.
	LogLevel string `yaml:"log_level" json:"log_level"`
}

const (
	defaultDirectory      = "."
	defaultPattern        = "*.ics"
	defaultCacheDir       = "./var/ics-cache"
	defaultBufferMinutes  = 5
	defaultDayStart       = 70000
	defaultDayEnd         = 240000
	defaultMinFreeMinutes = 30
	defaultOutput         = "freetime"
	defaultLabel          = "Free Time"
	defaultLogLevel       = "INFO"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Directory:      defaultDirectory,
		Pattern:        defaultPattern,
		Sources:        []SourceConfig{},
		CacheDir:       defaultCacheDir,
		BufferMinutes:  defaultBufferMinutes,
		DayStart:       defaultDayStart,
		DayEnd:         defaultDayEnd,
		MinFreeMinutes: defaultMinFreeMinutes,
		Output:         defaultOutput,
		CalendarName:   defaultLabel,
		Summary:        defaultLabel,
		ClipToWindow:   true,
		LogLevel:       defaultLogLevel,
	}
}

// Normalize fills in missing string values with defaults. Numeric fields
// are left alone since zero is a meaningful buffer or minimum; YAML
// unmarshalling into DefaultConfig() covers omitted numbers.
func (c *Config) Normalize() {
	if c.Directory == "" {
		c.Directory = defaultDirectory
	}
	if c.Pattern == "" {
		c.Pattern = defaultPattern
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.Output == "" {
		c.Output = defaultOutput
	}
	if c.CalendarName == "" {
		c.CalendarName = defaultLabel
	}
	if c.Summary == "" {
		c.Summary = defaultLabel
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.Sources == nil {
		c.Sources = []SourceConfig{}
	}
}

// Validate checks the numeric policy settings.
func (c *Config) Validate() error {
	if c.BufferMinutes < 0 {
		return fmt.Errorf("buffer_minutes must not be negative, got %d", c.BufferMinutes)
	}
	if c.MinFreeMinutes < 0 {
		return fmt.Errorf("min_free_minutes must not be negative, got %d", c.MinFreeMinutes)
	}
	start, err := model.ClockFromHHMMSS(c.DayStart)
	if err != nil {
		return fmt.Errorf("day_start: %w", err)
	}
	end, err := model.ClockFromHHMMSS(c.DayEnd)
	if err != nil {
		return fmt.Errorf("day_end: %w", err)
	}
	if start >= end {
		return fmt.Errorf("day_start %s must be before day_end %s", start, end)
	}
	for i, s := range c.Sources {
		if s.URL == "" {
			return fmt.Errorf("sources[%d]: url is empty", i)
		}
	}
	return nil
}

// Window returns the validated daily free window.
func (c *Config) Window() (model.TimeRange, error) {
	if err := c.Validate(); err != nil {
		return model.TimeRange{}, err
	}
	return model.TimeRange{
		Start: model.MustClock(c.DayStart),
		End:   model.MustClock(c.DayEnd),
	}, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If path is empty, the defaults are returned.
//   - If the file does not exist, a default config is written there with
//     0600 perms and returned.
//   - Otherwise the YAML is read over the defaults and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes the given configuration to the specified path atomically
// (temp file + rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, 0o600)
}

// WriteFileAtomic writes data to a temp file in the target directory, then
// renames it over path. Nothing is left at path if any step fails.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
