package jq

import (
	"github.com/google/uuid"
	"github.com/itchyny/gojq"
)

type options struct {
	varNames  []string
	functions []function
}

type function struct {
	name     string
	min, max int
	fn       func(any, []any) any
}

func (o *options) compilerOptions() []gojq.CompilerOption {
	opts := []gojq.CompilerOption{
		gojq.WithFunction("generateUUIDv4", 0, 0, func(any, []any) any {
			return uuid.NewString()
		}),
	}
	for _, f := range o.functions {
		opts = append(opts, gojq.WithFunction(f.name, f.min, f.max, f.fn))
	}
	if len(o.varNames) > 0 {
		opts = append(opts, gojq.WithVariables(o.varNames))
	}
	return opts
}

type Option func(*options)

// WithVariables declares the query variables, names must start with $.
func WithVariables(names ...string) Option {
	return func(opts *options) {
		opts.varNames = append(opts.varNames, names...)
	}
}

// WithFunction registers the custom function available in the query.
func WithFunction(name string, minArity, maxArity int, fn func(any, []any) any) Option {
	return func(opts *options) {
		opts.functions = append(opts.functions, function{name: name, min: minArity, max: maxArity, fn: fn})
	}
}
