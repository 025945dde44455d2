package types

import (
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

var (
	ErrUnknownColumn   = errors.New("unknown column")
	ErrDuplicateColumn = errors.New("duplicate column")
)

type DefaultKind string

const (
	DefaultKindDefault      DefaultKind = "DEFAULT"
	DefaultKindMaterialized DefaultKind = "MATERIALIZED"
	DefaultKindAlias        DefaultKind = "ALIAS"
)

// ColumnDefault is a default value expression of the column.
// The expression is a jq program evaluated against the row object.
type ColumnDefault struct {
	Kind       DefaultKind `json:"kind" yaml:"kind"`
	Expression string      `json:"expression" yaml:"expression"`
}

type Column struct {
	Name     string         `json:"name"`
	Type     arrow.DataType `json:"-"`
	Nullable bool           `json:"nullable"`
	Default  *ColumnDefault `json:"default,omitempty"`
}

func (c Column) Field() arrow.Field {
	return arrow.Field{
		Name:     c.Name,
		Type:     c.Type,
		Nullable: c.Nullable,
	}
}

// Columns is the ordered list of the declared table columns.
type Columns []Column

func (cc Columns) Validate() error {
	if len(cc) == 0 {
		return errors.New("table must have at least one column")
	}
	seen := make(map[string]struct{}, len(cc))
	for _, c := range cc {
		if c.Name == "" {
			return errors.New("column name is empty")
		}
		if c.Type == nil {
			return fmt.Errorf("column %s has no type", c.Name)
		}
		if _, ok := seen[c.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateColumn, c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}

func (cc Columns) Names() []string {
	names := make([]string, len(cc))
	for i, c := range cc {
		names[i] = c.Name
	}
	return names
}

func (cc Columns) Get(name string) (Column, bool) {
	for _, c := range cc {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Project returns the columns in the requested order.
func (cc Columns) Project(names []string) (Columns, error) {
	if len(names) == 0 {
		return cc, nil
	}
	out := make(Columns, 0, len(names))
	for _, name := range names {
		c, ok := cc.Get(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
		}
		out = append(out, c)
	}
	return out, nil
}

// Physical returns the columns stored in the resource, alias columns are computed only.
func (cc Columns) Physical() Columns {
	out := make(Columns, 0, len(cc))
	for _, c := range cc {
		if c.Default != nil && c.Default.Kind == DefaultKindAlias {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (cc Columns) Defaults() ColumnDefaults {
	var defaults ColumnDefaults
	for _, c := range cc {
		if c.Default == nil || c.Default.Expression == "" {
			continue
		}
		if defaults == nil {
			defaults = ColumnDefaults{}
		}
		defaults[c.Name] = *c.Default
	}
	return defaults
}

func (cc Columns) ArrowSchema() *arrow.Schema {
	fields := make([]arrow.Field, len(cc))
	for i, c := range cc {
		fields[i] = c.Field()
	}
	return arrow.NewSchema(fields, nil)
}

type ColumnDefaults map[string]ColumnDefault

type Constraint struct {
	Name       string `json:"name" yaml:"name"`
	Expression string `json:"expression" yaml:"check"`
}
