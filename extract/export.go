package extract

import (
	"context"
	"database/sql"
	"encoding/hex"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pgshift/pgshift/dbconn"
	"github.com/pgshift/pgshift/dbtable"
)

// Export dumps every row of a source table as delimiter separated text,
// in the record format RowReader consumes. Values containing the delimiter,
// the quote, or line breaks are quoted with doubled quotes; NULL is written
// as the unquoted null token. Blob columns are hex encoded in bytea input
// form so arbitrary bytes survive the text stream. Returns the number of
// rows written.
//
// The read runs in a REPEATABLE READ read-only transaction so the dump is a
// consistent snapshot even while the source takes writes.
func Export(
	ctx context.Context,
	conn *dbconn.MySQLConn,
	table *dbtable.TableSchema,
	w io.Writer,
	cfg Config,
) (int, error) {
	cfg = cfg.withDefaults()

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelRepeatableRead,
		ReadOnly:  true,
	})
	if err != nil {
		return 0, errors.Wrap(err, "beginning export transaction")
	}
	defer func() { _ = tx.Rollback() }()

	cols := make([]string, table.Arity())
	for i, name := range table.ColumnNames() {
		cols[i] = quoteMySQL(string(name))
	}
	q := "SELECT " + strings.Join(cols, ", ") + " FROM " + quoteMySQL(string(table.Name))
	rows, err := tx.QueryContext(ctx, q)
	if err != nil {
		return 0, errors.Wrapf(err, "exporting table %s", table.Name)
	}
	defer rows.Close()

	raw := make([]sql.RawBytes, table.Arity())
	scanDest := make([]any, table.Arity())
	for i := range raw {
		scanDest[i] = &raw[i]
	}

	bw := newRecordWriter(w, table, cfg)
	n := 0
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := rows.Scan(scanDest...); err != nil {
			return n, errors.Wrapf(err, "scanning table %s", table.Name)
		}
		if err := bw.writeRecord(raw); err != nil {
			return n, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, errors.Wrapf(err, "reading table %s", table.Name)
	}
	return n, nil
}

type recordWriter struct {
	w    io.Writer
	cfg  Config
	blob []bool
	buf  strings.Builder
}

func newRecordWriter(w io.Writer, table *dbtable.TableSchema, cfg Config) *recordWriter {
	blob := make([]bool, table.Arity())
	for i, col := range table.Columns {
		blob[i] = col.Type.Family == dbtable.FamilyBlob
	}
	return &recordWriter{w: w, cfg: cfg, blob: blob}
}

func (rw *recordWriter) writeRecord(fields []sql.RawBytes) error {
	rw.buf.Reset()
	for i, f := range fields {
		if i > 0 {
			rw.buf.WriteByte(rw.cfg.Delimiter)
		}
		if f == nil {
			rw.buf.WriteString(rw.cfg.NullToken)
			continue
		}
		if rw.blob[i] {
			// Hex never collides with the delimiter, quote, or null token.
			rw.buf.WriteString(`\x`)
			rw.buf.WriteString(hex.EncodeToString(f))
			continue
		}
		rw.writeField(string(f))
	}
	rw.buf.WriteByte('\n')
	_, err := io.WriteString(rw.w, rw.buf.String())
	return err
}

func (rw *recordWriter) writeField(v string) {
	quote := rw.cfg.Quote
	// Values that would read back as NULL must be quoted.
	if !strings.ContainsAny(v, string([]byte{rw.cfg.Delimiter, quote, '\n', '\r'})) &&
		v != rw.cfg.NullToken && v != "NULL" {
		rw.buf.WriteString(v)
		return
	}
	rw.buf.WriteByte(quote)
	for i := 0; i < len(v); i++ {
		if v[i] == quote {
			rw.buf.WriteByte(quote)
		}
		rw.buf.WriteByte(v[i])
	}
	rw.buf.WriteByte(quote)
}

func quoteMySQL(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
