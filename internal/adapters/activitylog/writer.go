// Package activitylog persists the per-tick coaching rows.
//
// Writers only append; they never rewrite or truncate a session's rows.
// AsyncLog keeps slow writers off the session timeline.
package activitylog

import (
	"context"

	"github.com/EdinaDepner/CadenceCoach/internal/domain/model"
)

// Writer appends activity log rows.
type Writer interface {
	Append(ctx context.Context, r model.Record) error
	Close() error
}

// Factory opens a Writer for a new session.
type Factory func(ctx context.Context, s model.Session) (Writer, error)

// Discard is a Writer that drops every row.
type Discard struct{}

func (Discard) Append(context.Context, model.Record) error { return nil }
func (Discard) Close() error                               { return nil }

// DiscardFactory opens Discard writers.
func DiscardFactory(context.Context, model.Session) (Writer, error) { return Discard{}, nil }
