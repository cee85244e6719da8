package ics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"

	appLog "freetime/internal/log"
)

// Source is one input calendar: a local file (Path) or a remote
// subscription (URL).
type Source struct {
	// ID is an internal identifier used for logging and cache keys.
	ID   string
	Path string
	URL  string
}

// Name returns a label for logs and errors. URLs are redacted.
func (s Source) Name() string {
	switch {
	case s.Path != "":
		return s.Path
	case s.ID != "":
		return s.ID
	case s.URL != "":
		return redactURL(s.URL)
	default:
		return "<unnamed>"
	}
}

// Discover lists the regular files in dir whose names match the glob
// pattern, in name order.
func Discover(dir, pattern string) ([]Source, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", pattern, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []Source
	for _, e := range entries {
		if !e.Type().IsRegular() || !g.Match(e.Name()) {
			continue
		}
		out = append(out, Source{ID: e.Name(), Path: filepath.Join(dir, e.Name())})
	}

	appLog.Debug("ics sources discovered", "dir", dir, "pattern", pattern, "count", len(out))
	return out, nil
}

// ParseFile opens src.Path, parses it fully and closes it before returning.
func ParseFile(src Source) (*ParseResult, error) {
	f, err := os.Open(src.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Parse(src, f)
}
