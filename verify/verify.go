// Package verify compares row counts between source and target after a
// table has been migrated.
package verify

import (
	"context"
	"strings"

	"github.com/cockroachdb/cockroachdb-parser/pkg/sql/lexbase"
	"github.com/cockroachdb/cockroachdb-parser/pkg/sql/sem/tree"
	"github.com/pgshift/pgshift/dbconn"
	"github.com/pgshift/pgshift/dbtable"
	"github.com/rs/zerolog"
)

type Status int

const (
	StatusMatch Status = iota
	StatusCountMismatch
	StatusSourceUnreadable
	StatusTargetUnreadable
)

func (s Status) String() string {
	switch s {
	case StatusMatch:
		return "MATCH"
	case StatusCountMismatch:
		return "COUNT_MISMATCH"
	case StatusSourceUnreadable:
		return "SOURCE_UNREADABLE"
	case StatusTargetUnreadable:
		return "TARGET_UNREADABLE"
	}
	return "UNKNOWN"
}

type Result struct {
	Table      tree.Name
	Status     Status
	SourceRows int64
	TargetRows int64
	// Err carries the read failure for the unreadable statuses.
	Err error
}

// Delta is target minus source. Negative means rows went missing, positive
// means the target has rows the source does not.
func (r Result) Delta() int64 {
	return r.TargetRows - r.SourceRows
}

// Passed reports whether the table needs no further attention.
func (r Result) Passed() bool {
	return r.Status == StatusMatch
}

// Table compares the row counts of one table on both sides. A count that
// cannot be read is a status, not an error: verification of other tables
// continues.
func Table(
	ctx context.Context,
	logger zerolog.Logger,
	source *dbconn.MySQLConn,
	target *dbconn.PGConn,
	table *dbtable.TableSchema,
) Result {
	ret := Result{Table: table.Name}

	srcCount, srcErr := sourceCount(ctx, source, table.Name)
	tgtCount, tgtErr := targetCount(ctx, target, table.Name)
	ret.SourceRows = srcCount
	ret.TargetRows = tgtCount
	ret.Status, ret.Err = classify(srcErr, tgtErr, srcCount, tgtCount)

	ev := logger.Info()
	if ret.Status != StatusMatch {
		ev = logger.Warn()
	}
	ev.
		Str("table", string(table.Name)).
		Str("status", ret.Status.String()).
		Int64("source_rows", ret.SourceRows).
		Int64("target_rows", ret.TargetRows).
		Msg("table verification")
	return ret
}

func classify(srcErr, tgtErr error, src, tgt int64) (Status, error) {
	switch {
	case srcErr != nil:
		return StatusSourceUnreadable, srcErr
	case tgtErr != nil:
		return StatusTargetUnreadable, tgtErr
	case src != tgt:
		return StatusCountMismatch, nil
	}
	return StatusMatch, nil
}

func sourceCount(ctx context.Context, conn *dbconn.MySQLConn, table tree.Name) (int64, error) {
	var n int64
	q := "SELECT COUNT(*) FROM `" + strings.ReplaceAll(string(table), "`", "``") + "`"
	if err := conn.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func targetCount(ctx context.Context, conn *dbconn.PGConn, table tree.Name) (int64, error) {
	var n int64
	q := "SELECT COUNT(*) FROM " + lexbase.EscapeSQLIdent(string(table))
	if err := conn.QueryRow(ctx, q).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
