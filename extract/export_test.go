package extract

import (
	"context"
	"database/sql"
	"encoding/hex"
	"io"
	"strings"
	"testing"

	"github.com/cockroachdb/cockroachdb-parser/pkg/sql/sem/tree"
	"github.com/pgshift/pgshift/dbtable"
	"github.com/pgshift/pgshift/testutils"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRecordWriter(t *testing.T) {
	var sb strings.Builder
	rw := newRecordWriter(&sb, threeColTable(t), Config{}.withDefaults())

	require.NoError(t, rw.writeRecord([]sql.RawBytes{
		sql.RawBytes("1"), sql.RawBytes("plain"), nil,
	}))
	require.NoError(t, rw.writeRecord([]sql.RawBytes{
		sql.RawBytes("2"), sql.RawBytes("has\ttab and \"quote\""), sql.RawBytes("a\nb"),
	}))
	require.NoError(t, rw.writeRecord([]sql.RawBytes{
		sql.RawBytes("3"), sql.RawBytes(`\N`), sql.RawBytes(""),
	}))

	require.Equal(t,
		"1\tplain\t\\N\n"+
			"2\t\"has\ttab and \"\"quote\"\"\"\t\"a\nb\"\n"+
			"3\t\"\\N\"\t\n",
		sb.String(),
	)
}

// Blob bytes go out hex encoded and come back byte for byte, even when the
// raw value holds NULs, delimiters, quotes, and line breaks.
func TestRecordWriterBlobBytesRoundTrip(t *testing.T) {
	table := &dbtable.TableSchema{
		Name: "Attachment",
		Columns: []dbtable.ColumnDef{
			{Name: "id", Type: dbtable.ColumnType{Family: dbtable.FamilyInt}},
			{Name: "payload", Type: dbtable.ColumnType{Family: dbtable.FamilyBlob}, Nullable: true},
		},
	}
	raw := []byte{0x00, '\t', '"', '\n', 0xff, '\\', 'N'}

	var sb strings.Builder
	rw := newRecordWriter(&sb, table, Config{}.withDefaults())
	require.NoError(t, rw.writeRecord([]sql.RawBytes{sql.RawBytes("1"), sql.RawBytes(raw)}))
	require.NoError(t, rw.writeRecord([]sql.RawBytes{sql.RawBytes("2"), nil}))
	require.Equal(t, "1\t\\x0009220aff5c4e\n2\t\\N\n", sb.String())

	r := NewRowReader(strings.NewReader(sb.String()), table, Config{}, zerolog.Nop())
	rows := readAll(t, r)
	require.Len(t, rows, 2)
	require.Equal(t, dbtable.FieldRaw, rows[0][1].Kind)
	decoded, err := hex.DecodeString(strings.TrimPrefix(rows[0][1].Text, `\x`))
	require.NoError(t, err)
	require.Equal(t, raw, decoded)
	require.True(t, rows[1][1].IsNull())
}

func TestQuoteMySQL(t *testing.T) {
	require.Equal(t, "`Appointment`", quoteMySQL("Appointment"))
	require.Equal(t, "`weird``name`", quoteMySQL("weird`name"))
}

// Round trip: whatever the exporter writes, the reader reconstructs.
func TestExportFormatRoundTrip(t *testing.T) {
	table := &dbtable.TableSchema{
		Name: "Appointment",
		Columns: []dbtable.ColumnDef{
			{Name: "id", Type: dbtable.ColumnType{Family: dbtable.FamilyInt}, Identity: true},
			{Name: "title", Type: dbtable.ColumnType{Family: dbtable.FamilyVarchar, Length: 100}},
			{Name: "notes", Type: dbtable.ColumnType{Family: dbtable.FamilyText}, Nullable: true},
			{Name: "amount", Type: dbtable.ColumnType{Family: dbtable.FamilyDecimal, Precision: 10, Scale: 2}, Nullable: true},
			{Name: "created_at", Type: dbtable.ColumnType{Family: dbtable.FamilyDateTime}},
		},
		PrimaryKey: []tree.Name{"id"},
	}

	rows := testutils.FakeRows(table, 50, 1234)
	// Force awkward values through as well.
	rows = append(rows,
		dbtable.Row{
			dbtable.ValueField("51"),
			dbtable.ValueField("multi\nline\ntitle"),
			dbtable.ValueField("tab\there and \"quotes\""),
			dbtable.NullField(),
			dbtable.ValueField("2024-01-01 00:00:00"),
		},
		dbtable.Row{
			dbtable.ValueField("52"),
			dbtable.ValueField(`literal \N token`),
			dbtable.ValueField(""),
			dbtable.ValueField("12.50"),
			dbtable.ValueField("2024-01-02 00:00:00"),
		},
	)

	var sb strings.Builder
	rw := newRecordWriter(&sb, table, Config{}.withDefaults())
	for _, row := range rows {
		raw := make([]sql.RawBytes, len(row))
		for i, f := range row {
			if f.Kind == dbtable.FieldNull {
				continue
			}
			raw[i] = sql.RawBytes(f.Text)
		}
		require.NoError(t, rw.writeRecord(raw))
	}

	r := NewRowReader(strings.NewReader(sb.String()), table, Config{BatchSize: 7}, zerolog.Nop())
	var got []dbtable.Row
	for {
		batch, err := r.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, batch...)
	}
	require.Equal(t, rows, got)
	require.Empty(t, r.Skipped())
}
