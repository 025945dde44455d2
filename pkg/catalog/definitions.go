package catalog

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/hugr-lab/url-engine/pkg/storages"
	"github.com/hugr-lab/url-engine/pkg/transport"
	"github.com/hugr-lab/url-engine/pkg/types"
)

type ColumnDefinition struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
	// Default is the jq expression of the column value, Kind is DEFAULT if empty.
	Default     string            `json:"default,omitempty" yaml:"default,omitempty"`
	DefaultKind types.DefaultKind `json:"default_kind,omitempty" yaml:"default_kind,omitempty"`
}

// Definition is the table declaration: CREATE TABLE catalog.name (columns) ENGINE = engine(args).
type Definition struct {
	Catalog     string               `json:"catalog" yaml:"catalog"`
	Name        string               `json:"name" yaml:"name"`
	Engine      string               `json:"engine" yaml:"engine"`
	Args        []string             `json:"args" yaml:"args"`
	Columns     []ColumnDefinition   `json:"columns" yaml:"columns"`
	Constraints []types.Constraint   `json:"constraints,omitempty" yaml:"constraints,omitempty"`
	Auth        transport.AuthParams `json:"auth,omitempty" yaml:"auth,omitempty"`
}

type definitionsFile struct {
	Tables []Definition `yaml:"tables"`
}

func (d Definition) ID() types.TableID {
	return types.TableID{Catalog: d.Catalog, Name: d.Name}
}

func (d Definition) ParseColumns() (types.Columns, error) {
	cols := make(types.Columns, 0, len(d.Columns))
	for _, cd := range d.Columns {
		dt, nullable, err := types.ParseType(cd.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", cd.Name, err)
		}
		c := types.Column{Name: cd.Name, Type: dt, Nullable: nullable}
		if cd.Default != "" || cd.DefaultKind != "" {
			kind := cd.DefaultKind
			if kind == "" {
				kind = types.DefaultKindDefault
			}
			switch kind {
			case types.DefaultKindDefault, types.DefaultKindMaterialized, types.DefaultKindAlias:
			default:
				return nil, fmt.Errorf("column %s: unknown default kind %s", cd.Name, kind)
			}
			if cd.Default == "" {
				return nil, fmt.Errorf("column %s: %s without expression", cd.Name, kind)
			}
			c.Default = &types.ColumnDefault{Kind: kind, Expression: cd.Default}
		}
		cols = append(cols, c)
	}
	return cols, cols.Validate()
}

// Arguments resolves the definition into the engine arguments, environment variables are substituted in the engine args.
func (d Definition) Arguments(ec *storages.ExecutionContext) (storages.Arguments, error) {
	if d.ID().IsZero() {
		return storages.Arguments{}, fmt.Errorf("table name is required")
	}
	cols, err := d.ParseColumns()
	if err != nil {
		return storages.Arguments{}, fmt.Errorf("table %s: %w", d.ID(), err)
	}
	args := make([]string, len(d.Args))
	for i, a := range d.Args {
		args[i], err = ApplyEnvVars(a)
		if err != nil {
			return storages.Arguments{}, fmt.Errorf("table %s: %w", d.ID(), err)
		}
	}
	return storages.Arguments{
		Engine:      d.Engine,
		EngineArgs:  args,
		ID:          d.ID(),
		Columns:     cols,
		Constraints: d.Constraints,
		Context:     ec,
		Auth:        d.Auth,
	}, nil
}

func ParseDefinitions(data []byte) ([]Definition, error) {
	var f definitionsFile
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("parse table definitions: %w", err)
	}
	return f.Tables, nil
}

func LoadDefinitions(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDefinitions(data)
}

// SaveDefinitions writes the definitions file, the file is replaced atomically.
func SaveDefinitions(path string, defs []Definition) error {
	data, err := yaml.Marshal(definitionsFile{Tables: defs})
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// RenameDefinition renames the table declared in the definitions file.
func RenameDefinition(path string, from, to types.TableID) error {
	defs, err := LoadDefinitions(path)
	if err != nil {
		return err
	}
	found := -1
	for i, d := range defs {
		switch d.ID() {
		case from:
			found = i
		case to:
			return fmt.Errorf("%w: %s", ErrTableExists, to)
		}
	}
	if found < 0 {
		return fmt.Errorf("%w: %s", ErrTableNotFound, from)
	}
	defs[found].Catalog, defs[found].Name = to.Catalog, to.Name
	return SaveDefinitions(path, defs)
}

var reEnvVar = regexp.MustCompile(`\[\$[A-Za-z_][A-Za-z0-9_]*\]`)

// ApplyEnvVars replaces the [$NAME] placeholders with the environment variable values.
func ApplyEnvVars(s string) (string, error) {
	var missing string
	out := reEnvVar.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(match, "[$"), "]")
		v := os.Getenv(name)
		if v == "" && missing == "" {
			missing = name
		}
		return v
	})
	if missing != "" {
		return "", fmt.Errorf("environment variable %s is not set", missing)
	}
	return out, nil
}
