package model

import (
	"strconv"
	"time"
)

// TimestampLayout renders record timestamps with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000"

// Header lists the activity log columns in persisted order.
var Header = []string{
	"participantId",
	"sessionId",
	"timestamp",
	"elapsedTimeSec",
	"cadenceSpm",
	"baselineCadence",
	"cadenceDeviation",
	"cadenceState",
}

// Record is one activity log row.
type Record struct {
	ParticipantID int
	SessionID     string
	Timestamp     time.Time
	ElapsedSec    int
	Cadence       int
	Baseline      int
	Deviation     int
	State         string
}

// NewRecord builds a row for the given session instant. Deviation is derived
// from cadence and baseline so callers cannot get it out of sync.
func NewRecord(s Session, nowMS int64, cadence, baseline int, state string) Record {
	return Record{
		ParticipantID: s.ParticipantID,
		SessionID:     s.ID,
		Timestamp:     s.WallClock(nowMS),
		ElapsedSec:    s.ElapsedSec(nowMS),
		Cadence:       cadence,
		Baseline:      baseline,
		Deviation:     cadence - baseline,
		State:         state,
	}
}

// Values renders the row in Header order.
func (r Record) Values() []string {
	return []string{
		strconv.Itoa(r.ParticipantID),
		r.SessionID,
		r.Timestamp.Format(TimestampLayout),
		strconv.Itoa(r.ElapsedSec),
		strconv.Itoa(r.Cadence),
		strconv.Itoa(r.Baseline),
		strconv.Itoa(r.Deviation),
		r.State,
	}
}
