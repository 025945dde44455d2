package streams

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
)

// RowSequence drives a block input stream as a forward-only sequence of records.
// The prefix is read before the first record, the suffix after the last one,
// the stream is closed exactly once on the end of data, on an error or on Close.
type RowSequence struct {
	ctx    context.Context
	in     BlockInputStream
	cur    Block
	err    error
	done   bool
	opened bool

	closeOnce sync.Once
	closeErr  error
}

func NewRowSequence(ctx context.Context, in BlockInputStream) *RowSequence {
	return &RowSequence{ctx: ctx, in: in}
}

func (s *RowSequence) Name() string {
	return s.in.Name()
}

func (s *RowSequence) Schema() *arrow.Schema {
	return s.in.Header()
}

// Next advances to the next non empty record.
func (s *RowSequence) Next() bool {
	s.cur.Release()
	s.cur = Block{}
	if s.done {
		return false
	}
	if !s.opened {
		s.opened = true
		if err := s.in.ReadPrefix(s.ctx); err != nil {
			s.fail(err)
			return false
		}
	}
	for {
		if err := s.ctx.Err(); err != nil {
			s.fail(err)
			return false
		}
		b, err := s.in.Read(s.ctx)
		if errors.Is(err, io.EOF) {
			s.done = true
			if err := s.in.ReadSuffix(s.ctx); err != nil {
				s.fail(err)
				return false
			}
			if err := s.close(); err != nil {
				s.err = err
			}
			return false
		}
		if err != nil {
			s.fail(err)
			return false
		}
		if b.Record == nil || b.Record.NumRows() == 0 {
			b.Release()
			continue
		}
		s.cur = b
		return true
	}
}

// Record returns the current record, it is valid until the next call of Next or Close.
func (s *RowSequence) Record() arrow.RecordBatch {
	return s.cur.Record
}

func (s *RowSequence) Err() error {
	return s.err
}

// Close stops the sequence and releases the stream, it is safe to call it many times.
func (s *RowSequence) Close() error {
	s.cur.Release()
	s.cur = Block{}
	s.done = true
	err := s.close()
	if s.err != nil {
		return s.err
	}
	return err
}

func (s *RowSequence) fail(err error) {
	s.done = true
	if s.err == nil {
		s.err = err
	}
	_ = s.close()
}

func (s *RowSequence) close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.in.Close()
	})
	return s.closeErr
}

// Drain reads all the records of the sequence, the caller releases them.
func Drain(s *RowSequence) ([]arrow.RecordBatch, error) {
	defer s.Close()
	var out []arrow.RecordBatch
	for s.Next() {
		rec := s.Record()
		rec.Retain()
		out = append(out, rec)
	}
	if err := s.Err(); err != nil {
		for _, rec := range out {
			rec.Release()
		}
		return nil, err
	}
	return out, nil
}
