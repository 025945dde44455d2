package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugr-lab/url-engine/pkg/storages"
	urlstorage "github.com/hugr-lab/url-engine/pkg/storages/url"
	"github.com/hugr-lab/url-engine/pkg/types"
)

const definitions = `
tables:
  - catalog: db
    name: events
    engine: URL
    args: ["http://[$EVENTS_HOST]/events.csv.gz", "CSVWithNames"]
    columns:
      - name: id
        type: UInt64
      - name: ts
        type: DateTime64(3)
      - name: kind
        type: Nullable(String)
      - name: level
        type: Int32
        default: "1"
      - name: title
        type: String
        default: '.kind + "!"'
        default_kind: ALIAS
    constraints:
      - name: positive_id
        check: ".id > 0"
  - catalog: db
    name: remote
    engine: URLBridge
    args: ["http://example.com/query", "JSONEachRow", "gzip"]
    columns:
      - name: id
        type: Int64
    auth:
      type: http
      scheme: basic
      username: user
      password: secret
`

func newService(t *testing.T) *Service {
	t.Helper()
	f := storages.NewFactory()
	urlstorage.Register(f)
	ec, err := storages.NewExecutionContext(storages.DefaultSettings(), nil)
	require.NoError(t, err)
	return New(f, ec)
}

func TestParseDefinitions(t *testing.T) {
	t.Setenv("EVENTS_HOST", "example.com")
	defs, err := ParseDefinitions([]byte(definitions))
	require.NoError(t, err)
	require.Len(t, defs, 2)

	args, err := defs[0].Arguments(nil)
	require.NoError(t, err)
	assert.Equal(t, types.TableID{Catalog: "db", Name: "events"}, args.ID)
	assert.Equal(t, []string{"http://example.com/events.csv.gz", "CSVWithNames"}, args.EngineArgs)
	require.Len(t, args.Columns, 5)
	assert.Equal(t, arrow.PrimitiveTypes.Uint64, args.Columns[0].Type)
	assert.True(t, args.Columns[2].Nullable)
	assert.Equal(t, types.DefaultKindDefault, args.Columns[3].Default.Kind)
	assert.Equal(t, types.DefaultKindAlias, args.Columns[4].Default.Kind)
	assert.Equal(t, []types.Constraint{{Name: "positive_id", Expression: ".id > 0"}}, args.Constraints)
	assert.Equal(t, "basic", defs[1].Auth.Scheme)

	_, err = ParseDefinitions([]byte("tables:\n  - catalog: db\n    unknown: 1\n"))
	assert.Error(t, err)
}

func TestDefinitionErrors(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
	}{
		{name: "no name", def: Definition{Engine: "URL"}},
		{name: "bad type", def: Definition{Name: "t", Columns: []ColumnDefinition{{Name: "a", Type: "Decimal"}}}},
		{name: "no columns", def: Definition{Name: "t"}},
		{name: "bad default kind", def: Definition{Name: "t", Columns: []ColumnDefinition{{Name: "a", Type: "Int8", Default: "1", DefaultKind: "EPHEMERAL"}}}},
		{name: "alias without expression", def: Definition{Name: "t", Columns: []ColumnDefinition{{Name: "a", Type: "Int8", DefaultKind: types.DefaultKindAlias}}}},
		{name: "missing env", def: Definition{Name: "t", Args: []string{"[$URL_ENGINE_UNSET_VAR]"}, Columns: []ColumnDefinition{{Name: "a", Type: "Int8"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.def.Arguments(nil)
			assert.Error(t, err)
		})
	}
}

func TestApplyEnvVars(t *testing.T) {
	t.Setenv("URL_ENGINE_TOKEN", "abc")
	out, err := ApplyEnvVars("http://host/data?token=[$URL_ENGINE_TOKEN]&x=[plain]")
	require.NoError(t, err)
	assert.Equal(t, "http://host/data?token=abc&x=[plain]", out)
}

func TestService(t *testing.T) {
	t.Setenv("EVENTS_HOST", "example.com")
	dir := t.TempDir()
	path := filepath.Join(dir, "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte(definitions), 0o600))

	s := newService(t)
	ctx := context.Background()
	require.NoError(t, s.Load(ctx, path))

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "db.events", list[0].ID().String())
	assert.Equal(t, urlstorage.EngineURLBridge, list[1].Engine())

	defs, err := LoadDefinitions(path)
	require.NoError(t, err)
	_, err = s.Create(ctx, defs[0])
	assert.ErrorIs(t, err, ErrTableExists)

	events := types.TableID{Catalog: "db", Name: "events"}
	renamed := types.TableID{Catalog: "archive", Name: "events"}
	require.NoError(t, s.Rename(events, renamed))
	_, err = s.Get(events)
	assert.ErrorIs(t, err, ErrTableNotFound)
	st, err := s.Get(renamed)
	require.NoError(t, err)
	assert.Equal(t, renamed, st.ID())

	assert.ErrorIs(t, s.Rename(events, renamed), ErrTableNotFound)
	assert.ErrorIs(t, s.Rename(renamed, types.TableID{Catalog: "db", Name: "remote"}), ErrTableExists)

	require.NoError(t, s.Drop(renamed))
	assert.ErrorIs(t, s.Drop(renamed), ErrTableNotFound)
	assert.Len(t, s.List(), 1)
}

func TestRenameDefinition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte(definitions), 0o600))

	events := types.TableID{Catalog: "db", Name: "events"}
	renamed := types.TableID{Catalog: "archive", Name: "events_2024"}
	require.NoError(t, RenameDefinition(path, events, renamed))

	defs, err := LoadDefinitions(path)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, renamed, defs[0].ID())
	assert.Equal(t, "http://[$EVENTS_HOST]/events.csv.gz", defs[0].Args[0], "placeholders are kept")
	assert.Equal(t, types.DefaultKindAlias, defs[0].Columns[4].DefaultKind)
	assert.Equal(t, "secret", defs[1].Auth.Password)
	assert.Empty(t, defs[0].Auth.Type)

	assert.ErrorIs(t, RenameDefinition(path, events, renamed), ErrTableNotFound)
	assert.ErrorIs(t, RenameDefinition(path, renamed, types.TableID{Catalog: "db", Name: "remote"}), ErrTableExists)
}
