package verify

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/cockroachdb-parser/pkg/sql/lexbase"
	"github.com/cockroachdb/cockroachdb-parser/pkg/sql/sem/tree"
	"github.com/cockroachdb/errors"
	"github.com/pgshift/pgshift/dbconn"
	"github.com/pgshift/pgshift/dbtable"
)

// IdentityResult reports whether a table's identity values survived the
// move intact and whether the target sequence is positioned past them.
type IdentityResult struct {
	Table tree.Name
	// Checked is false for tables without an identity column.
	Checked   bool
	SourceMax *int64
	TargetMax *int64
	// NextValue is what the target sequence hands out on the next insert.
	NextValue  int64
	Mismatches []string
}

func (r IdentityResult) Passed() bool {
	return len(r.Mismatches) == 0
}

// Identity compares the identity column's maximum on both sides and checks
// that the target sequence will not reissue a migrated value. Only
// meaningful after a load that preserved identity values.
func Identity(
	ctx context.Context,
	source *dbconn.MySQLConn,
	target *dbconn.PGConn,
	table *dbtable.TableSchema,
) (IdentityResult, error) {
	ret := IdentityResult{Table: table.Name}
	idCol, _, ok := table.IdentityColumn()
	if !ok {
		return ret, nil
	}
	ret.Checked = true

	srcMax, err := sourceMax(ctx, source, table.Name, idCol.Name)
	if err != nil {
		return ret, errors.Wrapf(err, "reading source max identity for table %s", table.Name)
	}
	ret.SourceMax = srcMax

	var tgtMax *int64
	if err := target.QueryRow(
		ctx,
		fmt.Sprintf(
			"SELECT MAX(%s) FROM %s",
			lexbase.EscapeSQLIdent(string(idCol.Name)),
			lexbase.EscapeSQLIdent(string(table.Name)),
		),
	).Scan(&tgtMax); err != nil {
		return ret, errors.Wrapf(err, "reading target max identity for table %s", table.Name)
	}
	ret.TargetMax = tgtMax

	next, err := sequenceNext(ctx, target, table.Name, idCol.Name)
	if err != nil {
		return ret, errors.Wrapf(err, "reading sequence state for table %s", table.Name)
	}
	ret.NextValue = next

	ret.Mismatches = compareIdentity(table.Name, srcMax, tgtMax, next)
	return ret, nil
}

func compareIdentity(table tree.Name, srcMax, tgtMax *int64, next int64) []string {
	var mismatches []string
	switch {
	case srcMax == nil && tgtMax == nil:
	case srcMax == nil:
		mismatches = append(mismatches, fmt.Sprintf(
			"table %s has identity values on the target but none on the source", table,
		))
	case tgtMax == nil:
		mismatches = append(mismatches, fmt.Sprintf(
			"table %s has identity values on the source but none on the target", table,
		))
	case *srcMax != *tgtMax:
		mismatches = append(mismatches, fmt.Sprintf(
			"table %s max identity differs: source %d, target %d", table, *srcMax, *tgtMax,
		))
	}
	if tgtMax != nil && next <= *tgtMax {
		mismatches = append(mismatches, fmt.Sprintf(
			"table %s sequence would reissue value %d, already present up to %d",
			table, next, *tgtMax,
		))
	}
	return mismatches
}

func sourceMax(
	ctx context.Context, conn *dbconn.MySQLConn, table tree.Name, col tree.Name,
) (*int64, error) {
	quote := func(n tree.Name) string {
		return "`" + strings.ReplaceAll(string(n), "`", "``") + "`"
	}
	var max *int64
	q := "SELECT MAX(" + quote(col) + ") FROM " + quote(table)
	if err := conn.QueryRowContext(ctx, q).Scan(&max); err != nil {
		return nil, err
	}
	return max, nil
}

// sequenceNext resolves the value the identity sequence will produce next,
// accounting for sequences that have never been called.
func sequenceNext(
	ctx context.Context, conn *dbconn.PGConn, table tree.Name, col tree.Name,
) (int64, error) {
	var seqName *string
	if err := conn.QueryRow(
		ctx,
		"SELECT pg_get_serial_sequence($1, $2)",
		lexbase.EscapeSQLIdent(string(table)),
		string(col),
	).Scan(&seqName); err != nil {
		return 0, errors.Wrap(err, "resolving sequence")
	}
	if seqName == nil {
		return 0, errors.Newf("column %s has no backing sequence", col)
	}
	var lastValue int64
	var isCalled bool
	if err := conn.QueryRow(
		ctx, "SELECT last_value, is_called FROM "+*seqName,
	).Scan(&lastValue, &isCalled); err != nil {
		return 0, errors.Wrap(err, "reading sequence state")
	}
	if isCalled {
		return lastValue + 1, nil
	}
	return lastValue, nil
}
