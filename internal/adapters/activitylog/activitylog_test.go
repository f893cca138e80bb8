package activitylog_test

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/EdinaDepner/CadenceCoach/internal/adapters/activitylog"
	"github.com/EdinaDepner/CadenceCoach/internal/domain/model"
)

var testSession = model.Session{
	ID:            "5b0f6c1e",
	ParticipantID: 4,
	StartedAt:     time.Date(2025, 5, 2, 7, 0, 0, 0, time.UTC),
}

func row(elapsedMS int64, cadence, baseline int, state string) model.Record {
	return model.NewRecord(testSession, elapsedMS, cadence, baseline, state)
}

func readCSV(path string) [][]string {
	f, err := os.Open(path)
	So(err, ShouldBeNil)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	So(err, ShouldBeNil)
	return rows
}

func TestCSVWriter(t *testing.T) {
	Convey("Given a CSV writer in a temp dir", t, func() {
		dir := filepath.Join(t.TempDir(), "logs")
		w, err := activitylog.NewCSVWriter(dir, testSession)
		So(err, ShouldBeNil)

		Convey("Then the file is named after participant and session", func() {
			So(filepath.Base(w.Path()), ShouldEqual, "4_5b0f6c1e.csv")
		})

		Convey("When rows are appended", func() {
			So(w.Append(context.Background(), row(30_000, 160, 160, "INIT")), ShouldBeNil)
			So(w.Append(context.Background(), row(32_000, 171, 160, "UP")), ShouldBeNil)

			Convey("Then the header comes first and rows are flushed immediately", func() {
				rows := readCSV(w.Path())
				So(len(rows), ShouldEqual, 3)
				So(rows[0], ShouldResemble, model.Header)
				So(rows[2], ShouldResemble, []string{
					"4", "5b0f6c1e", "2025-05-02T07:00:32.000", "32", "171", "160", "11", "UP",
				})
			})

			Convey("And the file is reopened for the same session", func() {
				So(w.Close(), ShouldBeNil)
				again, err := activitylog.NewCSVWriter(dir, testSession)
				So(err, ShouldBeNil)
				So(again.Append(context.Background(), row(34_000, 150, 160, "DOWN")), ShouldBeNil)
				So(again.Close(), ShouldBeNil)

				Convey("Then rows are appended without a second header", func() {
					rows := readCSV(w.Path())
					So(len(rows), ShouldEqual, 4)
					So(rows[3][7], ShouldEqual, "DOWN")
				})
			})
		})

		Convey("When appending after close", func() {
			So(w.Close(), ShouldBeNil)
			So(w.Close(), ShouldBeNil)
			err := w.Append(context.Background(), row(0, 0, 0, "INIT"))

			Convey("Then ErrClosed is returned", func() {
				So(errors.Is(err, activitylog.ErrClosed), ShouldBeTrue)
			})
		})
	})

	Convey("Given a log dir that cannot be created", t, func() {
		blocker := filepath.Join(t.TempDir(), "file")
		So(os.WriteFile(blocker, []byte("x"), 0o600), ShouldBeNil)

		_, err := activitylog.NewCSVWriter(filepath.Join(blocker, "logs"), testSession)

		Convey("Then opening fails with ErrWriteFailed", func() {
			So(errors.Is(err, activitylog.ErrWriteFailed), ShouldBeTrue)
		})
	})
}

type fakeDB struct {
	mu    sync.Mutex
	execs []string
	args  [][]any
	err   error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	f.execs = append(f.execs, sql)
	f.args = append(f.args, args)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestPostgresWriter(t *testing.T) {
	Convey("Given a postgres writer over a fake DB", t, func() {
		db := &fakeDB{}
		w := activitylog.NewPostgresWriter(db)

		Convey("When the schema is ensured", func() {
			So(activitylog.EnsureSchema(context.Background(), db), ShouldBeNil)
			So(db.execs[0], ShouldEqual, activitylog.Schema)
		})

		Convey("When a row is appended", func() {
			r := row(32_000, 171, 160, "UP")
			So(w.Append(context.Background(), r), ShouldBeNil)

			Convey("Then the columns are bound in log order", func() {
				So(db.args[0], ShouldResemble, []any{4, "5b0f6c1e", r.Timestamp, 32, 171, 160, 11, "UP"})
			})
		})

		Convey("When the database rejects the insert", func() {
			db.err = errors.New("connection reset")
			err := w.Append(context.Background(), row(0, 0, 0, "INIT"))

			Convey("Then ErrWriteFailed wraps the cause", func() {
				So(errors.Is(err, activitylog.ErrWriteFailed), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "connection reset")
			})
		})

		Convey("Then Close leaves the shared pool alone", func() {
			So(w.Close(), ShouldBeNil)
		})
	})
}

func TestPostgresIntegration(t *testing.T) {
	dsn := os.Getenv("CADENCE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CADENCE_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration test")
	}
	ctx := context.Background()

	pool, err := activitylog.OpenPool(ctx, dsn)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := activitylog.EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	w := activitylog.NewPostgresWriter(pool)
	if err := w.Append(ctx, row(30_000, 160, 160, "INIT")); err != nil {
		t.Fatalf("append: %v", err)
	}

	var n int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM cadence_log WHERE session_id = $1`, testSession.ID).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n < 1 {
		t.Errorf("expected at least one row, got %d", n)
	}
}

type memWriter struct {
	mu      sync.Mutex
	rows    []model.Record
	failAt  int
	delay   time.Duration
	release chan struct{}
	closed  bool
}

func (m *memWriter) Append(_ context.Context, r model.Record) error {
	if m.release != nil {
		<-m.release
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAt > 0 && r.ElapsedSec == m.failAt {
		return activitylog.ErrWriteFailed
	}
	m.rows = append(m.rows, r)
	return nil
}

func (m *memWriter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func TestAsyncLog(t *testing.T) {
	Convey("Given an async log over a slow writer", t, func() {
		mw := &memWriter{delay: time.Millisecond}
		a := activitylog.NewAsync(mw)

		Convey("When many rows are appended and the log is closed", func() {
			for i := 0; i < 50; i++ {
				So(a.Append(context.Background(), row(int64(i)*2000, 160, 160, "OK")), ShouldBeNil)
			}
			So(a.Close(), ShouldBeNil)

			Convey("Then every row is written in order before the writer closes", func() {
				So(len(mw.rows), ShouldEqual, 50)
				for i, r := range mw.rows {
					So(r.ElapsedSec, ShouldEqual, i*2)
				}
				So(mw.closed, ShouldBeTrue)
			})

			Convey("Then later appends are refused", func() {
				err := a.Append(context.Background(), row(0, 0, 0, "INIT"))
				So(errors.Is(err, activitylog.ErrClosed), ShouldBeTrue)
			})
		})
	})

	Convey("Given an async log whose writer fails one row", t, func() {
		mw := &memWriter{failAt: 4}
		a := activitylog.NewAsync(mw)

		for i := 0; i < 4; i++ {
			So(a.Append(context.Background(), row(int64(i)*2000, 160, 160, "OK")), ShouldBeNil)
		}

		Convey("Then the failure surfaces on Errors and later rows still land", func() {
			select {
			case err := <-a.Errors():
				So(errors.Is(err, activitylog.ErrWriteFailed), ShouldBeTrue)
			case <-time.After(time.Second):
				So("no error reported", ShouldBeEmpty)
			}
			So(a.Close(), ShouldBeNil)
			So(len(mw.rows), ShouldEqual, 3)
		})
	})

	Convey("Given an async log with a one-row queue and a blocked writer", t, func() {
		mw := &memWriter{release: make(chan struct{})}
		a := activitylog.NewAsync(mw, activitylog.WithQueueSize(1))

		var err error
		for i := 0; i < 10 && err == nil; i++ {
			err = a.Append(context.Background(), row(int64(i)*2000, 160, 160, "OK"))
		}

		Convey("Then Append fails fast with ErrQueueFull", func() {
			So(errors.Is(err, activitylog.ErrQueueFull), ShouldBeTrue)
			close(mw.release)
			So(a.Close(), ShouldBeNil)
		})
	})
}
