// Package constraints checks the rows written into a table against its CHECK constraints.
package constraints

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/hugr-lab/url-engine/pkg/expr"
	"github.com/hugr-lab/url-engine/pkg/storages"
	"github.com/hugr-lab/url-engine/pkg/types"
)

var ErrConstraintViolation = errors.New("constraint violated")

type checkingSink struct {
	storages.RowSink
	constraints []types.Constraint
	ev          *expr.Evaluator
	rows        int
	aborted     error
}

// CheckConstraints wraps the sink, a violating record aborts the write.
func CheckConstraints(sink storages.RowSink, constraints []types.Constraint, ev *expr.Evaluator) storages.RowSink {
	if len(constraints) == 0 {
		return sink
	}
	return &checkingSink{
		RowSink:     sink,
		constraints: constraints,
		ev:          ev,
	}
}

func (s *checkingSink) Write(ctx context.Context, rec arrow.RecordBatch) error {
	if s.aborted != nil {
		return s.aborted
	}
	if err := s.check(ctx, rec); err != nil {
		s.aborted = err
		_ = s.RowSink.Close()
		return err
	}
	s.rows += int(rec.NumRows())
	return s.RowSink.Write(ctx, rec)
}

func (s *checkingSink) Finish(ctx context.Context) error {
	if s.aborted != nil {
		return s.aborted
	}
	return s.RowSink.Finish(ctx)
}

func (s *checkingSink) check(ctx context.Context, rec arrow.RecordBatch) error {
	fields := rec.Schema().Fields()
	row := make(map[string]any, len(fields))
	for r := 0; r < int(rec.NumRows()); r++ {
		for c, f := range fields {
			row[f.Name] = types.ValueAt(rec.Column(c), r)
		}
		for _, c := range s.constraints {
			ok, err := s.ev.Check(ctx, c.Expression, row)
			if err != nil {
				return fmt.Errorf("constraint %s: %w", c.Name, err)
			}
			if !ok {
				return fmt.Errorf("%w: %s at row %d", ErrConstraintViolation, c.Name, s.rows+r+1)
			}
		}
	}
	return nil
}
