package freetime

import (
	"fmt"
	"time"

	"freetime/internal/model"
)

// Policy decides which candidate gaps become free time.
type Policy struct {
	// Window bounds the free time considered on every day.
	Window model.TimeRange

	// Buffer is trimmed from each end of a candidate.
	Buffer time.Duration

	// MinDuration is the shortest accepted range after trimming.
	MinDuration time.Duration

	Mode ScanMode

	// ClipToWindow trims interior gaps to Window before the buffer is
	// applied. Without it a gap between two busy ranges that lie outside
	// the window is kept as is. Independent of Mode.
	ClipToWindow bool
}

// NewPolicy builds a policy from minute-resolution settings. Clipping to
// the window is on.
func NewPolicy(window model.TimeRange, bufferMinutes, minMinutes int, mode ScanMode) (Policy, error) {
	if !window.Valid() {
		return Policy{}, fmt.Errorf("policy: invalid window %s", window)
	}
	if bufferMinutes < 0 || minMinutes < 0 {
		return Policy{}, fmt.Errorf("policy: negative buffer (%d) or minimum (%d)", bufferMinutes, minMinutes)
	}
	return Policy{
		Window:       window,
		Buffer:       time.Duration(bufferMinutes) * time.Minute,
		MinDuration:  time.Duration(minMinutes) * time.Minute,
		Mode:         mode,
		ClipToWindow: true,
	}, nil
}

// Apply trims the buffer from both ends of gap and reports whether what is
// left is at least MinDuration long. A range of exactly MinDuration is kept.
func (p Policy) Apply(gap model.TimeRange) (model.TimeRange, bool) {
	r := model.TimeRange{
		Start: gap.Start.Add(p.Buffer),
		End:   gap.End.Add(-p.Buffer),
	}
	if !r.Valid() || r.Duration() < p.MinDuration {
		return model.TimeRange{}, false
	}
	return r, true
}

// Caps returns the candidate gaps between the window edges and a day's
// sorted busy ranges. An empty day yields the whole window.
func (p Policy) Caps(busy []model.TimeRange) []model.TimeRange {
	if len(busy) == 0 {
		return []model.TimeRange{p.Window}
	}

	var out []model.TimeRange
	if first := busy[0].Start; p.Window.Start < first {
		out = append(out, model.TimeRange{Start: p.Window.Start, End: first})
	}
	if last := p.lastEnd(busy); last < p.Window.End {
		out = append(out, model.TimeRange{Start: last, End: p.Window.End})
	}
	return out
}

func (p Policy) lastEnd(busy []model.TimeRange) model.Clock {
	if p.Mode == ScanLegacy {
		return busy[len(busy)-1].End
	}
	end := busy[0].End
	for _, r := range busy[1:] {
		end = max(end, r.End)
	}
	return end
}

// clip restricts gap to the window when ClipToWindow is set.
func (p Policy) clip(gap model.TimeRange) (model.TimeRange, bool) {
	if !p.ClipToWindow {
		return gap, gap.Valid()
	}
	r := model.TimeRange{
		Start: max(gap.Start, p.Window.Start),
		End:   min(gap.End, p.Window.End),
	}
	return r, r.Valid()
}
