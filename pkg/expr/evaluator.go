// Package expr evaluates the default value and constraint expressions of the table columns.
package expr

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/hugr-lab/url-engine/pkg/jq"
)

var ErrMultipleResults = errors.New("expression returned more than one value")

const DefaultCacheSize = 256

// Evaluator compiles the expressions once and shares the compiled programs.
type Evaluator struct {
	cache *lru.Cache[string, *jq.Transformer]
	group singleflight.Group
	opts  []jq.Option
}

func New(size int, opts ...jq.Option) (*Evaluator, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *jq.Transformer](size)
	if err != nil {
		return nil, err
	}
	return &Evaluator{cache: cache, opts: opts}, nil
}

// Compile returns the compiled expression, concurrent compiles of the same expression are shared.
func (e *Evaluator) Compile(expression string) (*jq.Transformer, error) {
	if t, ok := e.cache.Get(expression); ok {
		return t, nil
	}
	v, err, _ := e.group.Do(expression, func() (any, error) {
		if t, ok := e.cache.Get(expression); ok {
			return t, nil
		}
		t, err := jq.NewTransformer(expression, e.opts...)
		if err != nil {
			return nil, err
		}
		e.cache.Add(expression, t)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*jq.Transformer), nil
}

// Eval evaluates the expression against the row, an empty result is NULL.
func (e *Evaluator) Eval(ctx context.Context, expression string, row map[string]any) (any, error) {
	t, err := e.Compile(expression)
	if err != nil {
		return nil, err
	}
	results, err := t.Run(ctx, row, nil)
	if err != nil {
		return nil, err
	}
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrMultipleResults, expression)
}

// Check evaluates the expression as a condition, NULL and false fail the check.
func (e *Evaluator) Check(ctx context.Context, expression string, row map[string]any) (bool, error) {
	v, err := e.Eval(ctx, expression, row)
	if err != nil {
		return false, err
	}
	switch v := v.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	}
	return true, nil
}

func (e *Evaluator) Len() int {
	return e.cache.Len()
}
