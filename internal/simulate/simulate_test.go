package simulate

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/EdinaDepner/CadenceCoach/pkg/logger"
)

func TestMain(m *testing.M) {
	_ = logger.InitWithWriter(io.Discard)
	os.Exit(m.Run())
}

func TestParseProfile(t *testing.T) {
	Convey("Given profile strings", t, func() {
		Convey("Segments with and without jitter are parsed", func() {
			p, err := ParseProfile("30s@160, 20s@180~10ms,5s@0")
			So(err, ShouldBeNil)
			So(p, ShouldResemble, Profile{
				{Duration: 30 * time.Second, SPM: 160},
				{Duration: 20 * time.Second, SPM: 180, Jitter: 10 * time.Millisecond},
				{Duration: 5 * time.Second, SPM: 0},
			})
			So(p.Duration(), ShouldEqual, 55*time.Second)
		})

		Convey("String renders a parseable profile", func() {
			p, err := ParseProfile(IntervalsProfile.String())
			So(err, ShouldBeNil)
			So(p, ShouldResemble, IntervalsProfile)
		})

		Convey("Built-in names are accepted", func() {
			p, err := ParseProfile("Steady")
			So(err, ShouldBeNil)
			So(p, ShouldResemble, SteadyProfile)
		})

		Convey("Malformed segments are rejected", func() {
			for _, bad := range []string{"", "30s", "x@160", "30s@-1", "30s@fast", "30s@160~soon", "0s@160"} {
				_, err := ParseProfile(bad)
				So(errors.Is(err, ErrInvalidProfile), ShouldBeTrue)
			}
		})
	})
}

func TestProfileSteps(t *testing.T) {
	Convey("Given a profile without jitter", t, func() {
		p := Profile{{Duration: 3 * time.Second, SPM: 120}, {Duration: 2 * time.Second, SPM: 0}, {Duration: time.Second, SPM: 240}}

		Convey("Steps fall on the exact interval of each segment", func() {
			So(p.Steps(1), ShouldResemble, []int64{500, 1000, 1500, 2000, 2500, 3000, 5250, 5500, 5750, 6000})
		})
	})

	Convey("Given a profile with jitter", t, func() {
		p := Profile{{Duration: 20 * time.Second, SPM: 180, Jitter: 40 * time.Millisecond}}

		Convey("The same seed gives the same steps", func() {
			So(p.Steps(7), ShouldResemble, p.Steps(7))
		})

		Convey("Steps are strictly increasing and stay near the target", func() {
			steps := p.Steps(42)
			So(len(steps), ShouldEqual, 60)
			for i := range steps {
				base := int64(i+1) * 333
				So(steps[i], ShouldBeBetweenOrEqual, base-40, base+40)
				if i > 0 {
					So(steps[i], ShouldBeGreaterThan, steps[i-1])
				}
			}
		})
	})
}

func TestReplay(t *testing.T) {
	Convey("Given a steady profile replayed offline", t, func() {
		dir := t.TempDir()
		started := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
		res, err := Replay(context.Background(), ReplayConfig{
			Profile:       Profile{{Duration: 40 * time.Second, SPM: 160}},
			ParticipantID: 3,
			LogDir:        dir,
			StartedAt:     started,
		})
		So(err, ShouldBeNil)

		Convey("Then the baseline is the steady cadence", func() {
			So(res.Steps, ShouldEqual, 106)
			So(res.Baseline, ShouldEqual, 160)
			So(res.Session.ParticipantID, ShouldEqual, 3)
		})

		Convey("Then the log holds the baseline row and one row per tick", func() {
			So(len(res.Records), ShouldEqual, 6)
			So(res.Records[0].ElapsedSec, ShouldEqual, 30)
			So(res.Records[0].State, ShouldEqual, "INIT")
			So(res.Records[5].ElapsedSec, ShouldEqual, 40)
			So(res.Records[5].Cadence, ShouldEqual, 160)
		})

		Convey("Then the runner settles into OK", func() {
			So(len(res.Transitions), ShouldEqual, 1)
			So(res.Transitions[0].From, ShouldEqual, "INIT")
			So(res.Transitions[0].To, ShouldEqual, "OK")
			So(res.Transitions[0].ElapsedSec, ShouldEqual, 38)
		})

		Convey("Then the CSV file matches the recorded rows", func() {
			So(res.LogPath, ShouldNotBeEmpty)
			f, err := os.Open(res.LogPath)
			So(err, ShouldBeNil)
			defer f.Close()
			rows, err := csv.NewReader(f).ReadAll()
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 7)
			So(rows[1], ShouldResemble, res.Records[0].Values())
		})
	})

	Convey("Given a replay without a log dir", t, func() {
		res, err := Replay(context.Background(), ReplayConfig{Profile: Profile{{Duration: 10 * time.Second, SPM: 160}}})
		So(err, ShouldBeNil)

		Convey("Then no file is written and no baseline is taken", func() {
			So(res.LogPath, ShouldBeEmpty)
			So(res.Records, ShouldBeEmpty)
			So(res.Baseline, ShouldEqual, 0)
		})
	})
}

type fakeCoach struct {
	mu       sync.Mutex
	steps    atomic.Int64
	started  int
	stopped  int
	body     startRequest
	healthy  atomic.Bool
	throttle int64
	stamps   []int64
}

func (f *fakeCoach) counts() (started, stopped, participant int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started, f.stopped, f.body.ParticipantID
}

func (f *fakeCoach) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !f.healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /session/start", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.started++
		_ = json.NewDecoder(r.Body).Decode(&f.body)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(startResponse{SessionID: "sim-1", ParticipantID: f.body.ParticipantID})
	})
	mux.HandleFunc("POST /session/stop", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		f.stopped++
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /steps", func(w http.ResponseWriter, r *http.Request) {
		var body stepRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.stamps = append(f.stamps, body.TimestampMS)
		f.mu.Unlock()
		if f.steps.Add(1) == f.throttle {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
	return mux
}

func TestRun(t *testing.T) {
	Convey("Given a live coaching service", t, func() {
		coach := &fakeCoach{throttle: 3}
		coach.healthy.Store(true)
		srv := httptest.NewServer(coach.handler())
		defer srv.Close()

		cfg := &Config{
			BaseURL:       srv.URL,
			Profile:       Profile{{Duration: time.Second, SPM: 600}},
			ParticipantID: 2,
			EventIDs:      true,
			ManageSession: true,
		}

		Convey("When a short profile is streamed", func() {
			stats, err := Run(context.Background(), cfg)
			So(err, ShouldBeNil)

			Convey("Then every step is posted and counted", func() {
				So(stats.StepsPlanned, ShouldEqual, 10)
				So(stats.StepsSent, ShouldEqual, 10)
				So(stats.StepsAccepted, ShouldEqual, 9)
				So(stats.StepsThrottled, ShouldEqual, 1)
				So(stats.Duration, ShouldBeGreaterThanOrEqualTo, 900*time.Millisecond)
			})

			Convey("Then each step is stamped with its planned instant", func() {
				coach.mu.Lock()
				stamps := slices.Clone(coach.stamps)
				coach.mu.Unlock()
				slices.Sort(stamps)
				So(len(stamps), ShouldEqual, 10)
				for i := 1; i < len(stamps); i++ {
					So(stamps[i]-stamps[i-1], ShouldEqual, int64(100))
				}
			})

			Convey("Then the session is started and stopped around the run", func() {
				started, stopped, participant := coach.counts()
				So(stats.SessionID, ShouldEqual, "sim-1")
				So(started, ShouldEqual, 1)
				So(stopped, ShouldEqual, 1)
				So(participant, ShouldEqual, 2)
			})
		})

		Convey("When the service is unhealthy", func() {
			coach.healthy.Store(false)
			_, err := Run(context.Background(), cfg)
			So(errors.Is(err, ErrUnhealthy), ShouldBeTrue)
			started, _, _ := coach.counts()
			So(started, ShouldEqual, 0)
		})

		Convey("When the run is cancelled", func() {
			cfg.Profile = Profile{{Duration: time.Minute, SPM: 60}}
			ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
			defer cancel()
			stats, err := Run(ctx, cfg)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			So(stats.StepsSent, ShouldEqual, 1)
			_, stopped, _ := coach.counts()
			So(stopped, ShouldEqual, 1)
		})
	})
}
