package freetime

import (
	"context"
	"errors"
	"fmt"

	"freetime/internal/ics"
	appLog "freetime/internal/log"
	"freetime/internal/model"
)

// ErrNoInput is returned when no source produced a usable event.
var ErrNoInput = errors.New("no input calendars")

// Job describes one run: where the busy calendars come from, how free time
// is cut, and where the result goes.
type Job struct {
	Sources []ics.Source
	Policy  Policy
	Output  string
	Labels  ics.WriteOptions
}

// Result summarizes a completed run.
type Result struct {
	Free    *model.WeeklySchedule
	Meta    ics.Meta
	Inputs  int // sources that contributed at least one event
	Skipped int // malformed events across all sources
	Output  string
}

// Run parses every source, computes the shared free time and writes it to
// job.Output. Nothing is written when no source has a usable event or when
// any source cannot be read.
func Run(ctx context.Context, loader *ics.Loader, job Job) (*Result, error) {
	results, err := loader.LoadAll(ctx, job.Sources)
	if err != nil {
		return nil, err
	}

	res := &Result{Output: job.Output}
	meta, ok := sharedMeta(results)
	if !ok {
		return nil, fmt.Errorf("%w: %d source(s), none with a parseable event", ErrNoInput, len(job.Sources))
	}
	res.Meta = meta

	calendars := make([]*model.WeeklySchedule, 0, len(results))
	for _, r := range results {
		res.Skipped += len(r.Skipped)
		if r.HasMeta {
			res.Inputs++
		}
		calendars = append(calendars, r.Schedule)
	}

	res.Free = Compute(calendars, job.Policy)

	if err := ics.WriteFile(job.Output, res.Free, meta, job.Labels); err != nil {
		return nil, err
	}

	appLog.Info("free time calendar written",
		"path", job.Output,
		"inputs", res.Inputs,
		"free_ranges", res.Free.Len(),
		"skipped_events", res.Skipped,
	)
	return res, nil
}

// sharedMeta takes the schedule context from the first source that has one.
// Later sources that disagree are reported but do not change it.
func sharedMeta(results []*ics.ParseResult) (ics.Meta, bool) {
	var (
		meta  ics.Meta
		found bool
		from  string
	)
	for _, r := range results {
		if !r.HasMeta {
			continue
		}
		if !found {
			meta, found, from = r.Meta, true, r.Source.Name()
			continue
		}
		if r.Meta != meta {
			appLog.Warn("calendar date range or timezone differs; keeping first",
				"source", r.Source.Name(),
				"first", from,
				"start", r.Meta.StartDate,
				"end", r.Meta.EndDate,
				"tzid", r.Meta.TZID,
			)
		}
	}
	return meta, found
}
