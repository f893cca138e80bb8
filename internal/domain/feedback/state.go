// Package feedback decides, tick by tick, whether a runner is above, below
// or back inside their baseline band, and drives the cue sink on changes.
package feedback

// State is the coaching state reported to the runner.
type State string

// Feedback states.
const (
	StateInit State = "INIT"
	StateUp   State = "UP"
	StateDown State = "DOWN"
	StateOK   State = "OK"
	StateStop State = "STOP"
)

// String implements fmt.Stringer.
func (s State) String() string { return string(s) }

// Sink receives the audible side effects of state changes.
type Sink interface {
	StartBeat(spm int)
	StopBeat()
	PlayCadenceUp()
	PlayCadenceDown()
	PlayCadenceRecovered()
}

// NopSink discards every cue.
type NopSink struct{}

func (NopSink) StartBeat(int)         {}
func (NopSink) StopBeat()             {}
func (NopSink) PlayCadenceUp()        {}
func (NopSink) PlayCadenceDown()      {}
func (NopSink) PlayCadenceRecovered() {}
