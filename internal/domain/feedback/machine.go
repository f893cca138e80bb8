package feedback

// Thresholds tune the state machine. Times are in milliseconds.
type Thresholds struct {
	BandPercent    int   // half-width of the tolerance band around baseline
	RiseDelta      int   // tick-to-tick increase that flags UP
	DropDelta      int   // tick-to-tick decrease that flags DOWN (negative)
	DeltaDetection bool  // enable the RiseDelta/DropDelta rule
	StopCadence    int   // cadence at or above this counts as movement
	StopTimeoutMS  int64 // no movement for this long forces STOP
	RecoveryMS     int64 // continuous in-band time required to commit OK
}

// DefaultThresholds returns the production tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BandPercent:    5,
		RiseDelta:      5,
		DropDelta:      -5,
		DeltaDetection: true,
		StopCadence:    15,
		StopTimeoutMS:  5000,
		RecoveryMS:     5000,
	}
}

// Band returns the floored tolerance band around baseline.
func (t Thresholds) Band(baseline int) (lower, upper int) {
	lower = baseline * (100 - t.BandPercent) / 100
	upper = baseline * (100 + t.BandPercent) / 100
	return lower, upper
}

// Transition describes the outcome of one tick.
type Transition struct {
	From    State
	To      State
	Changed bool
}

// Machine is the per-session coaching state machine. Like the estimator it
// expects to be driven from a single timeline.
type Machine struct {
	th   Thresholds
	sink Sink

	state    State
	baseline int
	armed    bool

	prevCadence    int
	lastMovementMS int64
	stableStartMS  int64
	stableRunning  bool
}

// Option configures a Machine.
type Option func(*Machine)

// WithThresholds replaces the default tuning.
func WithThresholds(th Thresholds) Option {
	return func(m *Machine) { m.th = th }
}

// WithDeltaDetection toggles the tick-to-tick delta rule.
func WithDeltaDetection(enabled bool) Option {
	return func(m *Machine) { m.th.DeltaDetection = enabled }
}

// NewMachine returns a machine in INIT that reports to sink.
func NewMachine(sink Sink, opts ...Option) *Machine {
	if sink == nil {
		sink = NopSink{}
	}
	m := &Machine{th: DefaultThresholds(), sink: sink, state: StateInit}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Arm starts monitoring against baseline from nowMS. A usable baseline also
// starts the metronome at that tempo.
func (m *Machine) Arm(baseline int, nowMS int64) {
	m.baseline = baseline
	m.armed = true
	m.prevCadence = baseline
	m.lastMovementMS = nowMS
	m.stableRunning = false
	if baseline > 0 {
		m.sink.StartBeat(baseline)
	}
}

// Reset stops the beat and returns the machine to INIT.
func (m *Machine) Reset() {
	m.sink.StopBeat()
	m.state = StateInit
	m.baseline = 0
	m.armed = false
	m.prevCadence = 0
	m.lastMovementMS = 0
	m.stableRunning = false
}

// State returns the committed state.
func (m *Machine) State() State { return m.state }

// Baseline returns the baseline the machine was armed with.
func (m *Machine) Baseline() int { return m.baseline }

// Thresholds returns the active tuning.
func (m *Machine) Thresholds() Thresholds { return m.th }

// Tick evaluates one monitoring period.
func (m *Machine) Tick(cadence int, nowMS int64) Transition {
	if !m.armed || m.baseline <= 0 {
		return Transition{From: m.state, To: m.state}
	}

	prev := m.prevCadence
	m.prevCadence = cadence

	moving := cadence >= m.th.StopCadence
	if moving {
		m.lastMovementMS = nowMS
	}
	if nowMS-m.lastMovementMS >= m.th.StopTimeoutMS {
		m.stableRunning = false
		return m.commit(StateStop)
	}
	if !moving {
		m.stableRunning = false
		return Transition{From: m.state, To: m.state}
	}

	lower, upper := m.th.Band(m.baseline)
	delta, deltaValid := cadence-prev, m.th.DeltaDetection && prev >= m.th.StopCadence

	switch {
	case cadence > upper || (deltaValid && delta >= m.th.RiseDelta):
		m.stableRunning = false
		return m.commit(StateUp)
	case cadence < lower || (deltaValid && delta <= m.th.DropDelta):
		m.stableRunning = false
		return m.commit(StateDown)
	}

	if m.state == StateOK {
		return Transition{From: m.state, To: m.state}
	}
	if !m.stableRunning {
		m.stableRunning = true
		m.stableStartMS = nowMS
	}
	if nowMS-m.stableStartMS >= m.th.RecoveryMS {
		return m.commit(StateOK)
	}
	return Transition{From: m.state, To: m.state}
}

func (m *Machine) commit(next State) Transition {
	from := m.state
	if from == next {
		return Transition{From: from, To: next}
	}
	m.state = next

	if from == StateStop {
		m.sink.StartBeat(m.baseline)
	}
	switch next {
	case StateUp:
		m.sink.PlayCadenceUp()
	case StateDown:
		m.sink.PlayCadenceDown()
	case StateOK:
		m.sink.PlayCadenceRecovered()
	case StateStop:
		m.sink.StopBeat()
	case StateInit:
	}
	return Transition{From: from, To: next, Changed: true}
}
