// Package load bulk loads extracted rows into the target database.
//
// Two paths exist. The strict path COPYs each table inside one transaction
// holding a table lock, so a table arrives either whole or not at all. The
// lenient path inserts row by row under savepoints, skipping rows the target
// rejects and reporting them instead of failing the table.
package load

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cockroachdb/cockroachdb-parser/pkg/sql/lexbase"
	"github.com/cockroachdb/cockroachdb-parser/pkg/sql/sem/tree"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/pgshift/pgshift/dbconn"
	"github.com/pgshift/pgshift/dbtable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	loadedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pgshift",
		Subsystem: "load",
		Name:      "rows_loaded",
		Help:      "Number of rows loaded into the target",
	}, []string{"table"})
	rejectedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pgshift",
		Subsystem: "load",
		Name:      "rows_rejected",
		Help:      "Number of rows the target rejected in lenient mode",
	}, []string{"table"})
)

type IdentityMode int

const (
	// IdentityPreserve loads source identity values verbatim.
	IdentityPreserve IdentityMode = iota
	// IdentityRegenerate omits the identity column so the target assigns
	// fresh values.
	IdentityRegenerate
)

type Strictness int

const (
	Strict Strictness = iota
	Lenient
)

type Config struct {
	Identity   IdentityMode
	Strictness Strictness
	// Truncate empties the target table inside the load transaction first,
	// making re-runs idempotent.
	Truncate bool
}

// RowStream yields batches of rows and io.EOF when exhausted. extract's
// RowReader satisfies it.
type RowStream interface {
	Next(ctx context.Context) ([]dbtable.Row, error)
}

// SkippedRow is a row the target rejected in lenient mode.
type SkippedRow struct {
	Row dbtable.Row
	Err error
}

// Result reports what happened to a single table's rows. Attempted counts
// every row received from the stream; Rows only those the target accepted.
// In strict mode the two are equal or the whole load failed.
type Result struct {
	Attempted int
	Rows      int
	Skipped   []SkippedRow
	StartTime time.Time
	EndTime   time.Time
}

// LoadError wraps a failure that aborts the whole table.
type LoadError struct {
	Table tree.Name
	cause error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading table %s: %v", e.Table, e.cause)
}

func (e *LoadError) Unwrap() error {
	return e.cause
}

// Load drains src into the target table.
func Load(
	ctx context.Context,
	conn *dbconn.PGConn,
	logger zerolog.Logger,
	table *dbtable.TableSchema,
	src RowStream,
	cfg Config,
) (Result, error) {
	logger = logger.With().Str("table", string(table.Name)).Logger()
	ret := Result{StartTime: time.Now()}

	cols, identityIdx := loadColumns(table, cfg.Identity)

	var err error
	switch cfg.Strictness {
	case Lenient:
		err = loadLenient(ctx, conn, logger, cfg, table, src, cols, identityIdx, &ret)
	default:
		err = loadStrict(ctx, conn, cfg, table, src, cols, identityIdx, &ret)
	}
	if err != nil {
		return ret, &LoadError{Table: table.Name, cause: err}
	}
	ret.EndTime = time.Now()
	logger.Info().
		Int("rows", ret.Rows).
		Int("skipped", len(ret.Skipped)).
		Dur("duration", ret.EndTime.Sub(ret.StartTime)).
		Msg("table load complete")
	return ret, nil
}

// loadColumns returns the target column list and the index of the source
// identity column to drop, or -1 when every source column carries over.
func loadColumns(table *dbtable.TableSchema, mode IdentityMode) ([]tree.Name, int) {
	if mode != IdentityRegenerate {
		return table.ColumnNames(), -1
	}
	_, idx, ok := table.IdentityColumn()
	if !ok {
		return table.ColumnNames(), -1
	}
	names := table.ColumnNames()
	cols := make([]tree.Name, 0, len(names)-1)
	cols = append(cols, names[:idx]...)
	cols = append(cols, names[idx+1:]...)
	return cols, idx
}

func loadStrict(
	ctx context.Context,
	conn *dbconn.PGConn,
	cfg Config,
	table *dbtable.TableSchema,
	src RowStream,
	cols []tree.Name,
	identityIdx int,
	ret *Result,
) error {
	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "beginning load transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, lockSQL(table.Name)); err != nil {
		return errors.Wrap(err, "locking table")
	}
	if cfg.Truncate {
		if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+quote(table.Name)); err != nil {
			return errors.Wrap(err, "truncating table")
		}
	}

	pr, pw := io.Pipe()
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer func() { _ = pw.Close() }()
		var sb strings.Builder
		for {
			batch, err := src.Next(gCtx)
			if err == io.EOF {
				return nil
			}
			if err != nil {
				_ = pw.CloseWithError(err)
				return err
			}
			sb.Reset()
			for _, row := range batch {
				encodeRow(&sb, table, row, identityIdx)
			}
			if _, err := io.WriteString(pw, sb.String()); err != nil {
				return err
			}
			ret.Attempted += len(batch)
			ret.Rows += len(batch)
		}
	})
	g.Go(func() error {
		_, err := tx.Conn().PgConn().CopyFrom(gCtx, pr, copyFrom(table.Name, cols))
		// Unblock the writer if COPY fails midway.
		_ = pr.CloseWithError(err)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "committing load transaction")
	}
	loadedRows.WithLabelValues(string(table.Name)).Add(float64(ret.Rows))
	return nil
}

func loadLenient(
	ctx context.Context,
	conn *dbconn.PGConn,
	logger zerolog.Logger,
	cfg Config,
	table *dbtable.TableSchema,
	src RowStream,
	cols []tree.Name,
	identityIdx int,
	ret *Result,
) error {
	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "beginning load transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, lockSQL(table.Name)); err != nil {
		return errors.Wrap(err, "locking table")
	}
	if cfg.Truncate {
		if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+quote(table.Name)); err != nil {
			return errors.Wrap(err, "truncating table")
		}
	}

	stmt := insertSQL(table.Name, cols)
	for {
		batch, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		for _, row := range batch {
			ret.Attempted++
			args := rowArgs(table, row, identityIdx)
			// A nested transaction is a savepoint, so one rejected row
			// rolls back alone.
			sp, err := tx.Begin(ctx)
			if err != nil {
				return errors.Wrap(err, "creating savepoint")
			}
			if _, err := sp.Exec(ctx, stmt, args...); err != nil {
				_ = sp.Rollback(ctx)
				logger.Warn().Err(err).Msg("target rejected row")
				ret.Skipped = append(ret.Skipped, SkippedRow{Row: row, Err: err})
				rejectedRows.WithLabelValues(string(table.Name)).Inc()
				continue
			}
			if err := sp.Commit(ctx); err != nil {
				return errors.Wrap(err, "releasing savepoint")
			}
			ret.Rows++
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "committing load transaction")
	}
	loadedRows.WithLabelValues(string(table.Name)).Add(float64(ret.Rows))
	return nil
}

// lockSQL holds writers off the table for the duration of the load, in both
// strictness modes.
func lockSQL(table tree.Name) string {
	return "LOCK TABLE " + quote(table) + " IN EXCLUSIVE MODE"
}

func copyFrom(table tree.Name, cols []tree.Name) string {
	return fmt.Sprintf(
		`COPY %s (%s) FROM STDIN WITH (FORMAT csv, DELIMITER E'\t', QUOTE '"', ESCAPE '"', NULL '\N')`,
		quote(table), quoteList(cols),
	)
}

func insertSQL(table tree.Name, cols []tree.Name) string {
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		quote(table), quoteList(cols), strings.Join(placeholders, ", "),
	)
}

// encodeRow appends one row in the CSV dialect copyFrom declares.
func encodeRow(sb *strings.Builder, table *dbtable.TableSchema, row dbtable.Row, identityIdx int) {
	first := true
	for i, f := range row {
		if i == identityIdx {
			continue
		}
		if !first {
			sb.WriteByte('\t')
		}
		first = false
		if f.Kind == dbtable.FieldNull {
			sb.WriteString(`\N`)
			continue
		}
		encodeField(sb, coerceField(table.Columns[i], f.Text))
	}
	sb.WriteByte('\n')
}

func encodeField(sb *strings.Builder, v string) {
	if !strings.ContainsAny(v, "\t\"\n\r") && v != `\N` {
		sb.WriteString(v)
		return
	}
	sb.WriteByte('"')
	for i := 0; i < len(v); i++ {
		if v[i] == '"' {
			sb.WriteByte('"')
		}
		sb.WriteByte(v[i])
	}
	sb.WriteByte('"')
}

// coerceField adjusts source literals the target type will not take as-is.
func coerceField(col dbtable.ColumnDef, v string) string {
	if col.Type.BooleanLike() {
		switch v {
		case "0":
			return "f"
		case "1":
			return "t"
		}
	}
	return v
}

func rowArgs(table *dbtable.TableSchema, row dbtable.Row, identityIdx int) []any {
	args := make([]any, 0, len(row))
	for i, f := range row {
		if i == identityIdx {
			continue
		}
		if f.Kind == dbtable.FieldNull {
			args = append(args, nil)
			continue
		}
		args = append(args, coerceField(table.Columns[i], f.Text))
	}
	return args
}

func quote(name tree.Name) string {
	return lexbase.EscapeSQLIdent(string(name))
}

func quoteList(names []tree.Name) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quote(n)
	}
	return strings.Join(quoted, ", ")
}
