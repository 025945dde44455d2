// Package jq runs jq programs over row values.
package jq

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/itchyny/gojq"
)

type Transformer struct {
	query string
	code  *gojq.Code
	vars  []string

	compileTime time.Duration
	runs        atomic.Int64
	transformed atomic.Int64
}

type Stat struct {
	CompilerTime time.Duration `json:"compiler_time"`
	Runs         int64         `json:"runs"`
	Transformed  int64         `json:"transformed"`
}

// NewTransformer parses and compiles the query, the transformer is safe for concurrent use.
func NewTransformer(query string, opts ...Option) (*Transformer, error) {
	start := time.Now()
	q, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("jq: parse %q: %w", query, err)
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	c, err := gojq.Compile(q, o.compilerOptions()...)
	if err != nil {
		return nil, fmt.Errorf("jq: compile %q: %w", query, err)
	}
	return &Transformer{
		query:       query,
		code:        c,
		vars:        o.varNames,
		compileTime: time.Since(start),
	}, nil
}

func (t *Transformer) Query() string {
	return t.query
}

// Run returns all the results of the query over the data.
func (t *Transformer) Run(ctx context.Context, data any, vars map[string]any) ([]any, error) {
	vv := make([]any, len(t.vars))
	for i, name := range t.vars {
		vv[i] = Normalize(vars[name])
	}
	iter := t.code.RunWithContext(ctx, Normalize(data), vv...)
	var results []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			var he *gojq.HaltError
			if errors.As(err, &he) && he.Value() == nil {
				break
			}
			return nil, fmt.Errorf("jq: %w", err)
		}
		results = append(results, v)
	}
	t.runs.Add(1)
	t.transformed.Add(int64(len(results)))
	return results, nil
}

// Transform returns the single result or the slice of the results.
func (t *Transformer) Transform(ctx context.Context, data any, vars map[string]any) (any, error) {
	results, err := t.Run(ctx, data, vars)
	if err != nil {
		return nil, err
	}
	if len(results) == 1 {
		return results[0], nil
	}
	return results, nil
}

func (t *Transformer) Stats() Stat {
	return Stat{
		CompilerTime: t.compileTime,
		Runs:         t.runs.Load(),
		Transformed:  t.transformed.Load(),
	}
}
