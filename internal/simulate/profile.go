// Package simulate drives the cadence service with synthetic runners.
//
// A Profile describes a run as a list of segments at a fixed target
// cadence. Run streams the resulting steps to a live service over HTTP in
// real time; Replay feeds them through an in-process service on a virtual
// clock and returns the activity log it produced.
package simulate

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

// Segment is a stretch of running at a steady cadence. An SPM of 0 is a
// pause with no steps. Jitter perturbs every step uniformly within
// [-Jitter, +Jitter].
type Segment struct {
	Duration time.Duration
	SPM      int
	Jitter   time.Duration
}

// Profile is a run made of consecutive segments.
type Profile []Segment

// Common profiles used by the CLI.
var (
	// SteadyProfile holds one pace for two minutes.
	SteadyProfile = Profile{{Duration: 2 * time.Minute, SPM: 160, Jitter: 5 * time.Millisecond}}

	// IntervalsProfile settles in, speeds up, drifts slow, then stops.
	IntervalsProfile = Profile{
		{Duration: 40 * time.Second, SPM: 160, Jitter: 5 * time.Millisecond},
		{Duration: 20 * time.Second, SPM: 180, Jitter: 5 * time.Millisecond},
		{Duration: 20 * time.Second, SPM: 160, Jitter: 5 * time.Millisecond},
		{Duration: 20 * time.Second, SPM: 140, Jitter: 5 * time.Millisecond},
		{Duration: 10 * time.Second, SPM: 0},
	}
)

// Named returns one of the built-in profiles.
func Named(name string) (Profile, bool) {
	switch strings.ToLower(name) {
	case "steady":
		return SteadyProfile, true
	case "intervals":
		return IntervalsProfile, true
	}
	return nil, false
}

// ParseProfile reads a profile written as comma separated segments of the
// form DURATION@SPM[~JITTER], e.g. "30s@160,20s@180~10ms,5s@0". Built-in
// profile names are accepted too.
func ParseProfile(s string) (Profile, error) {
	s = strings.TrimSpace(s)
	if p, ok := Named(s); ok {
		return p, nil
	}
	if s == "" {
		return nil, fmt.Errorf("%w: empty profile", ErrInvalidProfile)
	}

	var p Profile
	for _, part := range strings.Split(s, ",") {
		seg, err := parseSegment(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		p = append(p, seg)
	}
	return p, nil
}

func parseSegment(s string) (Segment, error) {
	durPart, rest, ok := strings.Cut(s, "@")
	if !ok {
		return Segment{}, fmt.Errorf("%w: segment %q lacks @spm", ErrInvalidProfile, s)
	}
	spmPart, jitterPart, hasJitter := strings.Cut(rest, "~")

	d, err := time.ParseDuration(durPart)
	if err != nil || d <= 0 {
		return Segment{}, fmt.Errorf("%w: segment %q has a bad duration", ErrInvalidProfile, s)
	}
	spm, err := strconv.Atoi(spmPart)
	if err != nil || spm < 0 {
		return Segment{}, fmt.Errorf("%w: segment %q has a bad spm", ErrInvalidProfile, s)
	}
	seg := Segment{Duration: d, SPM: spm}
	if hasJitter {
		j, err := time.ParseDuration(jitterPart)
		if err != nil || j < 0 {
			return Segment{}, fmt.Errorf("%w: segment %q has a bad jitter", ErrInvalidProfile, s)
		}
		seg.Jitter = j
	}
	return seg, nil
}

// Duration is the total length of the run.
func (p Profile) Duration() time.Duration {
	var total time.Duration
	for _, seg := range p {
		total += seg.Duration
	}
	return total
}

// String renders p in the form ParseProfile reads.
func (p Profile) String() string {
	parts := make([]string, 0, len(p))
	for _, seg := range p {
		part := seg.Duration.String() + "@" + strconv.Itoa(seg.SPM)
		if seg.Jitter > 0 {
			part += "~" + seg.Jitter.String()
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ",")
}

// Steps returns step offsets in milliseconds from the start of the run,
// strictly increasing. The same seed always yields the same steps.
func (p Profile) Steps(seed uint64) []int64 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	var (
		out   []int64
		start int64
		last  int64 = -1
	)
	for _, seg := range p {
		end := start + seg.Duration.Milliseconds()
		if seg.SPM > 0 {
			interval := int64(60000 / seg.SPM)
			jitter := seg.Jitter.Milliseconds()
			for t := start + interval; t <= end; t += interval {
				at := t
				if jitter > 0 {
					at += rng.Int64N(2*jitter+1) - jitter
				}
				if at <= last {
					at = last + 1
				}
				out = append(out, at)
				last = at
			}
		}
		start = end
	}
	return out
}
