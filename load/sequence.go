package load

import (
	"context"
	"fmt"

	"github.com/cockroachdb/cockroachdb-parser/pkg/sql/sem/tree"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/pgshift/pgshift/dbconn"
	"github.com/pgshift/pgshift/dbtable"
)

// SequenceError reports a failure to line a table's identity sequence up
// with its data. The data itself is already loaded when this fires.
type SequenceError struct {
	Table tree.Name
	cause error
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("reconciling sequence for table %s: %v", e.Table, e.cause)
}

func (e *SequenceError) Unwrap() error {
	return e.cause
}

// ReconcileSequence points the identity sequence of a table past the highest
// loaded value, so freshly inserted rows do not collide with migrated ones.
// Returns the value the sequence was set to, or (0, nil) for tables without
// an identity column. An empty table resets the sequence to start at 1.
func ReconcileSequence(
	ctx context.Context, conn *dbconn.PGConn, table *dbtable.TableSchema,
) (int64, error) {
	idCol, _, ok := table.IdentityColumn()
	if !ok {
		return 0, nil
	}

	var seqName *string
	if err := conn.QueryRow(
		ctx,
		"SELECT pg_get_serial_sequence($1, $2)",
		quote(table.Name),
		string(idCol.Name),
	).Scan(&seqName); err != nil {
		return 0, &SequenceError{Table: table.Name, cause: errors.Wrap(err, "resolving sequence")}
	}
	if seqName == nil {
		return 0, &SequenceError{
			Table: table.Name,
			cause: errors.Newf("column %s has no backing sequence", idCol.Name),
		}
	}

	var max *int64
	if err := conn.QueryRow(
		ctx,
		fmt.Sprintf("SELECT MAX(%s) FROM %s", quote(idCol.Name), quote(table.Name)),
	).Scan(&max); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, &SequenceError{Table: table.Name, cause: errors.Wrap(err, "reading max identity value")}
	}

	var val int64
	var err error
	if max == nil {
		// Empty table: next nextval() call yields 1.
		err = conn.QueryRow(ctx, "SELECT setval($1, 1, false)", *seqName).Scan(&val)
	} else {
		val = *max
		err = conn.QueryRow(ctx, "SELECT setval($1, $2)", *seqName, *max).Scan(&val)
	}
	if err != nil {
		return 0, &SequenceError{Table: table.Name, cause: errors.Wrap(err, "setting sequence value")}
	}
	return val, nil
}
