package model

import "time"

// Session identifies one coaching activity for one participant.
type Session struct {
	ID            string
	ParticipantID int
	StartedAt     time.Time // wall clock, used for log timestamps
	StartMS       int64     // timeline offset of the start
	Generation    uint64    // bumped on every start; stale callbacks compare against it
}

// ElapsedMS returns milliseconds since the session started on the timeline.
func (s Session) ElapsedMS(nowMS int64) int64 {
	if nowMS < s.StartMS {
		return 0
	}
	return nowMS - s.StartMS
}

// ElapsedSec returns whole seconds since the session started.
func (s Session) ElapsedSec(nowMS int64) int {
	return int(s.ElapsedMS(nowMS) / 1000)
}

// WallClock maps a timeline instant onto wall-clock time.
func (s Session) WallClock(nowMS int64) time.Time {
	return s.StartedAt.Add(time.Duration(s.ElapsedMS(nowMS)) * time.Millisecond)
}

// TimelineAt maps a wall-clock instant in Unix milliseconds onto the
// timeline. Instants before the start map before StartMS.
func (s Session) TimelineAt(unixMS int64) int64 {
	return s.StartMS + unixMS - s.StartedAt.UnixMilli()
}
