// Package extract streams rows out of a tab separated dump, reassembling
// records whose field values contain literal newlines.
//
// Dumps are line oriented but rows are not: a value holding a newline splits
// one logical record over several physical lines. The reader merges physical
// lines until the quote aware field count matches the table arity, restoring
// the embedded newlines byte for byte.
package extract

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/cockroachdb-parser/pkg/sql/sem/tree"
	"github.com/pgshift/pgshift/dbtable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	extractedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pgshift",
		Subsystem: "extract",
		Name:      "rows_extracted",
		Help:      "Number of rows extracted from the source dump",
	}, []string{"table"})
	skippedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pgshift",
		Subsystem: "extract",
		Name:      "records_skipped",
		Help:      "Number of malformed dump records skipped in lenient mode",
	}, []string{"table"})
)

const (
	DefaultDelimiter = '\t'
	DefaultQuote     = '"'
	DefaultNullToken = `\N`
	DefaultBatchSize = 1000
)

type Config struct {
	Delimiter byte
	Quote     byte
	// NullToken marks NULL when it appears unquoted. A quoted empty string
	// stays an empty string.
	NullToken string
	BatchSize int
	// Lenient skips records that cannot be reassembled instead of failing
	// the table.
	Lenient bool
}

func (cfg Config) withDefaults() Config {
	if cfg.Delimiter == 0 {
		cfg.Delimiter = DefaultDelimiter
	}
	if cfg.Quote == 0 {
		cfg.Quote = DefaultQuote
	}
	if cfg.NullToken == "" {
		cfg.NullToken = DefaultNullToken
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return cfg
}

// RowReconstructionError reports a dump record that could not be reassembled
// into a row of the table's arity.
type RowReconstructionError struct {
	Table  tree.Name
	Line   int
	Fields int
	Arity  int
	Record string
}

func (e *RowReconstructionError) Error() string {
	return fmt.Sprintf(
		"table %s line %d: record has %d fields, expected %d",
		e.Table, e.Line, e.Fields, e.Arity,
	)
}

// SkippedRecord is a record dropped in lenient mode, kept for reporting.
type SkippedRecord struct {
	Line   int
	Record string
	Err    error
}

// RowReader yields batches of reassembled rows from a dump stream.
type RowReader struct {
	table  *dbtable.TableSchema
	cfg    Config
	br     *bufio.Reader
	logger zerolog.Logger

	line    int
	skipped []SkippedRecord
	done    bool
}

func NewRowReader(
	in io.Reader, table *dbtable.TableSchema, cfg Config, logger zerolog.Logger,
) *RowReader {
	return &RowReader{
		table:  table,
		cfg:    cfg.withDefaults(),
		br:     bufio.NewReaderSize(in, 1024*1024),
		logger: logger.With().Str("table", string(table.Name)).Logger(),
	}
}

// Next returns the next batch of rows, io.EOF once the stream is exhausted.
// In strict mode a malformed record aborts with a RowReconstructionError; in
// lenient mode it is recorded via Skipped and reading continues.
func (r *RowReader) Next(ctx context.Context) ([]dbtable.Row, error) {
	if r.done {
		return nil, io.EOF
	}
	batch := make([]dbtable.Row, 0, r.cfg.BatchSize)
	for len(batch) < r.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := r.nextRow()
		if err == io.EOF {
			r.done = true
			break
		}
		if err != nil {
			return nil, err
		}
		batch = append(batch, row)
	}
	if len(batch) == 0 {
		return nil, io.EOF
	}
	extractedRows.WithLabelValues(string(r.table.Name)).Add(float64(len(batch)))
	return batch, nil
}

// Skipped returns the records dropped so far in lenient mode.
func (r *RowReader) Skipped() []SkippedRecord {
	return r.skipped
}

func (r *RowReader) nextRow() (dbtable.Row, error) {
	for {
		record, startLine, err := r.nextRecord()
		if err != nil {
			return nil, err
		}
		fields, ok := splitRecord(record, r.cfg.Delimiter, r.cfg.Quote)
		if !ok || len(fields) != r.table.Arity() {
			recErr := &RowReconstructionError{
				Table:  r.table.Name,
				Line:   startLine,
				Fields: len(fields),
				Arity:  r.table.Arity(),
				Record: record,
			}
			if !r.cfg.Lenient {
				return nil, recErr
			}
			r.skip(startLine, record, recErr)
			continue
		}
		row := make(dbtable.Row, len(fields))
		for i, f := range fields {
			row[i] = r.normalizeField(r.table.Columns[i], f)
		}
		return row, nil
	}
}

// nextRecord merges physical lines until the record parses to at least the
// table arity or its quoting closes. Returns the merged record and the
// physical line it started on.
func (r *RowReader) nextRecord() (string, int, error) {
	var candidate strings.Builder
	startLine := 0
	started := false
	for {
		line, err := r.readLine()
		if err == io.EOF {
			if !started {
				return "", 0, io.EOF
			}
			// Truncated trailing record.
			record := candidate.String()
			recErr := &RowReconstructionError{
				Table:  r.table.Name,
				Line:   startLine,
				Fields: countFields(record, r.cfg.Delimiter, r.cfg.Quote),
				Arity:  r.table.Arity(),
				Record: record,
			}
			if !r.cfg.Lenient {
				return "", 0, recErr
			}
			r.skip(startLine, record, recErr)
			return "", 0, io.EOF
		}
		if err != nil {
			return "", 0, err
		}
		if !started {
			startLine = r.line
			started = true
		} else {
			candidate.WriteByte('\n')
		}
		candidate.WriteString(line)

		record := candidate.String()
		fields, ok := splitRecord(record, r.cfg.Delimiter, r.cfg.Quote)
		if !ok {
			// Open quote: the newline belongs to the value.
			continue
		}
		if len(fields) < r.table.Arity() {
			continue
		}
		return record, startLine, nil
	}
}

func (r *RowReader) readLine() (string, error) {
	line, err := r.br.ReadString('\n')
	if err == io.EOF && line == "" {
		return "", io.EOF
	}
	if err != nil && err != io.EOF {
		return "", err
	}
	r.line++
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}

func (r *RowReader) skip(line int, record string, err error) {
	r.logger.Warn().Int("line", line).Err(err).Msg("skipping malformed record")
	r.skipped = append(r.skipped, SkippedRecord{Line: line, Record: record, Err: err})
	skippedRecords.WithLabelValues(string(r.table.Name)).Inc()
}

func (r *RowReader) normalizeField(col dbtable.ColumnDef, f rawField) dbtable.Field {
	// Unquoted sentinels mean NULL; the same text quoted is a literal value.
	// Some exporters spell NULL out instead of using the token.
	if !f.quoted && (f.text == r.cfg.NullToken || f.text == "NULL") {
		return dbtable.NullField()
	}
	// Blob bytes are opaque: no normalization may touch them.
	if col.Type.Family == dbtable.FamilyBlob {
		return dbtable.RawField(f.text)
	}
	return dbtable.ValueField(normalizeValue(col, f.text))
}

type rawField struct {
	text   string
	quoted bool
}

// splitRecord splits a record on the delimiter, honoring quoting. A quote
// doubled inside a quoted field is a literal quote. Reports !ok when a quoted
// field is left open, meaning the record continues on the next physical line.
func splitRecord(record string, delim, quote byte) ([]rawField, bool) {
	var fields []rawField
	var cur strings.Builder
	inQuotes := false
	fieldQuoted := false
	for i := 0; i < len(record); i++ {
		c := record[i]
		switch {
		case inQuotes:
			if c != quote {
				cur.WriteByte(c)
			} else if i+1 < len(record) && record[i+1] == quote {
				cur.WriteByte(quote)
				i++
			} else {
				inQuotes = false
			}
		case c == quote && cur.Len() == 0 && !fieldQuoted:
			inQuotes = true
			fieldQuoted = true
		case c == delim:
			fields = append(fields, rawField{text: cur.String(), quoted: fieldQuoted})
			cur.Reset()
			fieldQuoted = false
		default:
			cur.WriteByte(c)
		}
	}
	if inQuotes {
		return nil, false
	}
	fields = append(fields, rawField{text: cur.String(), quoted: fieldQuoted})
	return fields, true
}

func countFields(record string, delim, quote byte) int {
	fields, ok := splitRecord(record, delim, quote)
	if !ok {
		return 0
	}
	return len(fields)
}
