package formats

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugr-lab/url-engine/pkg/streams"
	"github.com/hugr-lab/url-engine/pkg/types"
)

var (
	tsType = &arrow.TimestampType{Unit: arrow.Millisecond, TimeZone: "UTC"}

	fullSchema = arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "score", Type: arrow.PrimitiveTypes.Float64},
		{Name: "active", Type: arrow.FixedWidthTypes.Boolean},
		{Name: "day", Type: arrow.FixedWidthTypes.Date32},
		{Name: "ts", Type: tsType},
	}, nil)

	day = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	ts  = time.Date(2024, 5, 1, 10, 30, 15, 250_000_000, time.UTC)
)

func buildRecord(t *testing.T, schema *arrow.Schema, rows [][]any) arrow.RecordBatch {
	t.Helper()
	b := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer b.Release()
	for _, row := range rows {
		for i, v := range row {
			require.NoError(t, types.AppendValue(b.Field(i), v))
		}
	}
	return b.NewRecord()
}

func testRows() [][]any {
	return [][]any{
		{int64(1), "alpha", 1.5, true, day, ts},
		{int64(2), nil, -2.25, false, day.AddDate(0, 0, 1), ts.Add(time.Hour)},
		{int64(3), "", 0.0, true, day.AddDate(1, 0, 0), ts.Add(-time.Minute)},
	}
}

func encode(t *testing.T, format string, schema *arrow.Schema, recs ...arrow.RecordBatch) []byte {
	t.Helper()
	ctx := context.Background()
	var buf bytes.Buffer
	out, err := Output(format, &buf, schema, Settings{})
	require.NoError(t, err)
	require.NoError(t, out.WritePrefix(ctx))
	for _, rec := range recs {
		require.NoError(t, out.Write(ctx, rec))
	}
	require.NoError(t, out.WriteSuffix(ctx))
	require.NoError(t, out.Flush())
	return buf.Bytes()
}

func decode(t *testing.T, format string, data []byte, header *arrow.Schema, s Settings) ([]arrow.RecordBatch, []streams.MissingValues, error) {
	t.Helper()
	in, err := Input(format, bytes.NewReader(data), header, s)
	require.NoError(t, err)
	ctx := context.Background()
	defer in.Close()
	if err := in.ReadPrefix(ctx); err != nil {
		return nil, nil, err
	}
	var (
		recs    []arrow.RecordBatch
		missing []streams.MissingValues
	)
	for {
		b, err := in.Read(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		recs = append(recs, b.Record)
		missing = append(missing, b.Missing)
	}
	return recs, missing, in.ReadSuffix(ctx)
}

func rowsOf(recs []arrow.RecordBatch) [][]any {
	var rows [][]any
	for _, rec := range recs {
		for r := 0; r < int(rec.NumRows()); r++ {
			row := make([]any, rec.NumCols())
			for c := range row {
				v := types.ValueAt(rec.Column(c), r)
				if tv, ok := v.(time.Time); ok {
					v = tv.UTC()
				}
				row[c] = v
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func release(recs []arrow.RecordBatch) {
	for _, r := range recs {
		r.Release()
	}
}

func TestRoundTrip(t *testing.T) {
	csvSchema := arrow.NewSchema(fullSchema.Fields()[:5], nil)

	tests := []struct {
		format string
		schema *arrow.Schema
		blocks int
	}{
		{format: "JSONEachRow", schema: fullSchema, blocks: 2},
		{format: "ArrowStream", schema: fullSchema},
		{format: "Parquet", schema: fullSchema},
		{format: "MsgPack", schema: fullSchema, blocks: 2},
		{format: "CSV", schema: csvSchema, blocks: 2},
		{format: "CSVWithNames", schema: csvSchema, blocks: 2},
		{format: "TSV", schema: csvSchema, blocks: 2},
		{format: "TabSeparatedWithNames", schema: csvSchema, blocks: 2},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			rows := testRows()
			for i := range rows {
				rows[i] = rows[i][:tt.schema.NumFields()]
			}
			rec := buildRecord(t, tt.schema, rows)
			defer rec.Release()
			want := rowsOf([]arrow.RecordBatch{rec})

			data := encode(t, tt.format, tt.schema, rec)
			recs, missing, err := decode(t, tt.format, data, tt.schema, Settings{MaxBlockSize: 2})
			require.NoError(t, err)
			defer release(recs)

			if tt.blocks > 0 {
				assert.Len(t, recs, tt.blocks, "max block size splits the blocks")
			}
			assert.Equal(t, want, rowsOf(recs))
			for _, m := range missing {
				assert.True(t, m.Empty())
			}
		})
	}
}

func TestEmptyInput(t *testing.T) {
	for _, format := range []string{"JSONEachRow", "CSV", "CSVWithNames", "ArrowStream", "Parquet", "MsgPack"} {
		t.Run(format, func(t *testing.T) {
			recs, _, err := decode(t, format, nil, fullSchema, Settings{})
			require.NoError(t, err)
			assert.Empty(t, recs)
		})
	}
}

func TestJSONEachRowMissingValues(t *testing.T) {
	header := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "c1", Type: arrow.PrimitiveTypes.Int32},
		{Name: "note", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
	data := []byte(`{"id": 1, "c1": 5, "note": "x"}
{"id": 2}
{"id": 3, "c1": null, "note": null}
{"id": 4, "c1": 7, "note": {"a": [1, 2]}}
`)
	recs, missing, err := decode(t, "JSONEachRow", data, header, Settings{})
	require.NoError(t, err)
	defer release(recs)
	require.Len(t, recs, 1)

	m := missing[0]
	assert.False(t, m.Has(1, 0))
	assert.True(t, m.Has(1, 1), "absent key")
	assert.True(t, m.Has(1, 2), "null in non-nullable column")
	assert.True(t, m.Has(2, 1), "absent nullable key")
	assert.False(t, m.Has(2, 2), "null in nullable column is a value")

	rows := rowsOf(recs)
	assert.Equal(t, int64(0), rows[1][1], "missing non-nullable cell holds the zero value")
	assert.Nil(t, rows[1][2])
	assert.Equal(t, `{"a":[1,2]}`, rows[3][2])
}

func TestJSONEachRowUnknownFields(t *testing.T) {
	header := arrow.NewSchema([]arrow.Field{{Name: "id", Type: arrow.PrimitiveTypes.Int64}}, nil)
	data := []byte("{\"id\": 1}\n{\"id\": 2, \"extra\": true}\n")

	_, _, err := decode(t, "JSONEachRow", data, header, Settings{})
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Row)
	assert.Contains(t, pe.Error(), "extra")

	recs, _, err := decode(t, "JSONEachRow", data, header, Settings{SkipUnknownFields: true})
	require.NoError(t, err)
	release(recs)

	recs, _, err = decode(t, "JSONEachRow", data, header, Settings{KnownFields: []string{"extra"}})
	require.NoError(t, err)
	release(recs)
}

func TestJSONEachRowMalformed(t *testing.T) {
	header := arrow.NewSchema([]arrow.Field{{Name: "id", Type: arrow.PrimitiveTypes.Int64}}, nil)
	_, _, err := decode(t, "JSONEachRow", []byte("{\"id\": 1}\n{\"id\": \"abc\"}\n"), header, Settings{})
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Row)
}

func TestCSVWithNamesMapping(t *testing.T) {
	header := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "c1", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
	data := []byte("name,other,id\nalpha,zzz,1\n\\N,yyy,2\n")

	_, _, err := decode(t, "CSVWithNames", data, header, Settings{})
	var pe *ParseError
	require.ErrorAs(t, err, &pe, "unknown column must fail")

	recs, missing, err := decode(t, "CSVWithNames", data, header, Settings{SkipUnknownFields: true})
	require.NoError(t, err)
	defer release(recs)
	require.Len(t, recs, 1)

	assert.Equal(t, [][]any{
		{int64(1), int64(0), "alpha"},
		{int64(2), int64(0), nil},
	}, rowsOf(recs))
	assert.True(t, missing[0].Has(1, 0))
	assert.True(t, missing[0].Has(1, 1))
	assert.False(t, missing[0].Has(0, 0))
}

func TestCSVMalformed(t *testing.T) {
	header := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.BinaryTypes.String},
	}, nil)
	_, _, err := decode(t, "CSV", []byte("1,a\nnot-a-number,b\n"), header, Settings{})
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "CSV", pe.Format)
}

func TestArrowStreamByName(t *testing.T) {
	src := buildRecord(t, fullSchema, testRows())
	defer src.Release()
	data := encode(t, "ArrowStream", fullSchema, src)

	header := arrow.NewSchema([]arrow.Field{
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "id", Type: arrow.PrimitiveTypes.Int32},
		{Name: "absent", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)
	recs, missing, err := decode(t, "ArrowStream", data, header, Settings{})
	require.NoError(t, err)
	defer release(recs)

	assert.Equal(t, [][]any{
		{"alpha", int64(1), nil},
		{nil, int64(2), nil},
		{"", int64(3), nil},
	}, rowsOf(recs))
	assert.Equal(t, []bool{true, true, true}, missing[0].Column(2))
}

func TestFactory(t *testing.T) {
	f := NewFactory()
	_, err := f.Input("Unknown", strings.NewReader(""), fullSchema, Settings{})
	assert.ErrorIs(t, err, ErrUnknownFormat)
	_, err = f.Output("Unknown", io.Discard, fullSchema, Settings{})
	assert.ErrorIs(t, err, ErrUnknownFormat)

	names := f.Names()
	for _, n := range []string{"ArrowStream", "CSV", "CSVWithNames", "JSONEachRow", "MsgPack", "Parquet", "TSV", "TabSeparated"} {
		assert.Contains(t, names, n)
	}

	f.RegisterInput("Lines", func(r io.Reader, header *arrow.Schema, s Settings) (streams.BlockInputStream, error) {
		assert.Equal(t, DefaultMaxBlockSize, s.MaxBlockSize)
		assert.Equal(t, DefaultNullString, s.NullString)
		return nil, errors.New("not implemented")
	})
	_, err = f.Input("Lines", strings.NewReader(""), fullSchema, Settings{})
	assert.EqualError(t, err, "not implemented")
	assert.NotContains(t, Names(), "Lines", "the default factory is not affected")
}

func TestCSVFieldCount(t *testing.T) {
	header := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.BinaryTypes.String},
		{Name: "score", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	}, nil)
	tests := []struct {
		name   string
		format string
		data   string
		row    int
	}{
		{name: "short first row", format: "CSV", data: "1,a\n", row: 1},
		{name: "long first row", format: "CSV", data: "1,a,1.5,x\n2,b,2.5\n", row: 1},
		{name: "short row after names", format: "CSVWithNames", data: "id,name,score\n1,a\n", row: 2},
		{name: "short tsv row", format: "TSV", data: "1\ta\n", row: 1},
		{name: "short later row", format: "CSV", data: "1,a,1.5\n2,b\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				err error
				pe  *ParseError
			)
			require.NotPanics(t, func() {
				_, _, err = decode(t, tt.format, []byte(tt.data), header, Settings{})
			})
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.format, pe.Format)
			if tt.row > 0 {
				assert.Equal(t, tt.row, pe.Row)
			}
		})
	}
}

func decodeWith(f *Factory, format, data string, header *arrow.Schema, s Settings) ([][]any, error) {
	in, err := f.Input(format, strings.NewReader(data), header, s)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	ctx := context.Background()
	if err := in.ReadPrefix(ctx); err != nil {
		return nil, err
	}
	var recs []arrow.RecordBatch
	defer func() {
		for _, rec := range recs {
			rec.Release()
		}
	}()
	for {
		b, err := in.Read(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		recs = append(recs, b.Record)
	}
	return rowsOf(recs), nil
}

func TestCSVDelimiterPerCall(t *testing.T) {
	header := arrow.NewSchema([]arrow.Field{
		{Name: "a", Type: arrow.PrimitiveTypes.Int64},
		{Name: "b", Type: arrow.PrimitiveTypes.Int64},
	}, nil)
	f := NewFactory()
	want := [][]any{{int64(1), int64(2)}}

	rows, err := decodeWith(f, "CSV", "1;2\n", header, Settings{CSVDelimiter: ';'})
	require.NoError(t, err)
	assert.Equal(t, want, rows)
	rows, err = decodeWith(f, "CSV", "1,2\n", header, Settings{CSVDelimiter: ','})
	require.NoError(t, err)
	assert.Equal(t, want, rows)
	rows, err = decodeWith(f, "TSV", "1\t2\n", header, Settings{CSVDelimiter: ';'})
	require.NoError(t, err)
	assert.Equal(t, want, rows, "tsv keeps the tab")

	rec := buildRecord(t, header, [][]any{{int64(1), int64(2)}})
	defer rec.Release()
	for _, d := range []rune{';', ','} {
		var buf bytes.Buffer
		out, err := f.Output("CSV", &buf, header, Settings{CSVDelimiter: d})
		require.NoError(t, err)
		require.NoError(t, out.Write(context.Background(), rec))
		require.NoError(t, out.Flush())
		assert.Equal(t, "1"+string(d)+"2\n", buf.String())
	}
}

func TestCSVConcurrentDelimiters(t *testing.T) {
	header := arrow.NewSchema([]arrow.Field{
		{Name: "a", Type: arrow.PrimitiveTypes.Int64},
		{Name: "b", Type: arrow.PrimitiveTypes.Int64},
	}, nil)
	f := NewFactory()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		d := []rune{';', ',', '|'}[i%3]
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows, err := decodeWith(f, "CSV", "1"+string(d)+"2\n", header, Settings{CSVDelimiter: d})
			assert.NoError(t, err)
			assert.Equal(t, [][]any{{int64(1), int64(2)}}, rows)
		}()
	}
	wg.Wait()
}
