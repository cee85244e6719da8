package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"freetime/internal/config"
	"freetime/internal/freetime"
	"freetime/internal/ics"
	appLog "freetime/internal/log"
)

// flagConfig holds CLI flag values; set ones override the config file.
type flagConfig struct {
	configPath string
	directory  string
	pattern    string
	buffer     int
	start      int
	end        int
	minTime    int
	output     string
	legacy     bool
	clip       bool
	list       bool
	verbose    bool

	set map[string]bool
}

func main() {
	os.Exit(run())
}

func run() int {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return 1
	}
	flags.apply(conf)

	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	if flags.verbose {
		appLog.SetLevel(appLog.LevelDebug)
	}

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err)
		return 1
	}

	appLog.Debug("effective config",
		"directory", conf.Directory,
		"pattern", conf.Pattern,
		"sources", len(conf.Sources),
		"buffer_minutes", conf.BufferMinutes,
		"day_start", conf.DayStart,
		"day_end", conf.DayEnd,
		"min_free_minutes", conf.MinFreeMinutes,
		"output", conf.Output,
		"legacy_gap_scan", conf.LegacyGapScan,
		"clip_to_window", conf.ClipToWindow,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	job, err := buildJob(conf)
	if err != nil {
		appLog.Error("failed to prepare run", err, "directory", conf.Directory)
		return 1
	}

	res, err := freetime.Run(ctx, ics.NewLoader(conf.CacheDir), job)
	if errors.Is(err, freetime.ErrNoInput) {
		appLog.Error("no calendars to merge", err, "directory", conf.Directory, "pattern", conf.Pattern)
		return 2
	}
	if err != nil {
		appLog.Error("free time run failed", err)
		return 1
	}

	fmt.Printf("Done. Free time calendar created at %s\n", res.Output)

	if flags.list {
		if err := listFirstWeek(res); err != nil {
			appLog.Error("failed to list occurrences", err, "path", res.Output)
			return 1
		}
	}
	return 0
}

func buildJob(conf *config.Config) (freetime.Job, error) {
	window, err := conf.Window()
	if err != nil {
		return freetime.Job{}, err
	}
	mode := freetime.ScanMax
	if conf.LegacyGapScan {
		mode = freetime.ScanLegacy
	}
	policy, err := freetime.NewPolicy(window, conf.BufferMinutes, conf.MinFreeMinutes, mode)
	if err != nil {
		return freetime.Job{}, err
	}
	policy.ClipToWindow = conf.ClipToWindow

	sources, err := ics.Discover(conf.Directory, conf.Pattern)
	if err != nil {
		return freetime.Job{}, err
	}
	output := filepath.Join(conf.Directory, conf.Output+".ics")
	kept := sources[:0]
	for _, s := range sources {
		// A previous run's output would otherwise be merged as busy time.
		if filepath.Clean(s.Path) == filepath.Clean(output) {
			continue
		}
		kept = append(kept, s)
	}
	for _, s := range conf.Sources {
		kept = append(kept, ics.Source{ID: s.ID, URL: s.URL})
	}

	return freetime.Job{
		Sources: kept,
		Policy:  policy,
		Output:  output,
		Labels: ics.WriteOptions{
			CalendarName: conf.CalendarName,
			Summary:      conf.Summary,
		},
	}, nil
}

// listFirstWeek prints the concrete free slots of the schedule's first week.
func listFirstWeek(res *freetime.Result) error {
	f, err := os.Open(res.Output)
	if err != nil {
		return err
	}
	defer f.Close()

	from, err := time.Parse("20060102", res.Meta.StartDate)
	if err != nil {
		return err
	}
	occ, err := ics.Expand(ics.Source{ID: "output", Path: res.Output}, f, ics.ExpandConfig{
		RangeStart: from.Add(-24 * time.Hour),
		RangeEnd:   from.Add(8 * 24 * time.Hour),
	})
	if err != nil {
		return err
	}
	for _, o := range occ {
		fmt.Printf("%s %s %s-%s\n", o.Weekday, o.Start.Format("2006-01-02"), o.Start.Format("15:04"), o.End.Format("15:04"))
	}
	return nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "", "Path to YAML config file (created with defaults if missing)")
	flag.StringVar(&cfg.directory, "d", "", "Directory to look for iCal files")
	flag.StringVar(&cfg.pattern, "pattern", "", "Glob for input file names (default \"*.ics\")")
	flag.IntVar(&cfg.buffer, "b", 0, "Buffer between events, in minutes (default 5)")
	flag.IntVar(&cfg.start, "s", 0, "Start of free time, HHMMSS (default 70000)")
	flag.IntVar(&cfg.end, "e", 0, "End of free time, HHMMSS (default 240000)")
	flag.IntVar(&cfg.minTime, "m", 0, "Minimum free time between events, in minutes (default 30)")
	flag.StringVar(&cfg.output, "n", "", "Name of output file, without extension (default \"freetime\")")
	flag.BoolVar(&cfg.legacy, "legacy", false, "Use the suffix-restart gap scan (nested events can open gaps)")
	flag.BoolVar(&cfg.clip, "clip", true, "Trim gaps between events to the -s/-e window")
	flag.BoolVar(&cfg.list, "list", false, "Print the first week of free slots after writing")
	flag.BoolVar(&cfg.verbose, "v", false, "Debug logging")

	flag.Parse()

	cfg.set = make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { cfg.set[f.Name] = true })
	return cfg
}

// apply copies explicitly set flags over the loaded config.
func (f flagConfig) apply(c *config.Config) {
	if f.set["d"] {
		c.Directory = f.directory
	}
	if f.set["pattern"] {
		c.Pattern = f.pattern
	}
	if f.set["b"] {
		c.BufferMinutes = f.buffer
	}
	if f.set["s"] {
		c.DayStart = f.start
	}
	if f.set["e"] {
		c.DayEnd = f.end
	}
	if f.set["m"] {
		c.MinFreeMinutes = f.minTime
	}
	if f.set["n"] {
		c.Output = f.output
	}
	if f.set["legacy"] {
		c.LegacyGapScan = f.legacy
	}
	if f.set["clip"] {
		c.ClipToWindow = f.clip
	}
	c.Normalize()
}
