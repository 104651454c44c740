package verify

import (
	"context"
	"fmt"

	"github.com/cockroachdb/cockroachdb-parser/pkg/sql/sem/tree"
	"github.com/cockroachdb/errors"
	"github.com/pgshift/pgshift/dbconn"
	"github.com/pgshift/pgshift/dbtable"
)

// ColumnInfo is one target column as reported by the information schema.
type ColumnInfo struct {
	Name     tree.Name
	Nullable bool
}

// Columns checks the target table's column names, order, and nullability
// against the source schema. Returns one message per mismatch, empty when
// the structures line up.
func Columns(
	ctx context.Context, target *dbconn.PGConn, table *dbtable.TableSchema,
) ([]string, error) {
	rows, err := target.Query(
		ctx,
		`SELECT column_name, is_nullable
FROM information_schema.columns
WHERE table_schema = 'public' AND table_name = $1
ORDER BY ordinal_position`,
		string(table.Name),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "reading target columns for table %s", table.Name)
	}
	defer rows.Close()

	var got []ColumnInfo
	for rows.Next() {
		var name, nullable string
		if err := rows.Scan(&name, &nullable); err != nil {
			return nil, err
		}
		got = append(got, ColumnInfo{Name: tree.Name(name), Nullable: nullable == "YES"})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return compareColumns(table, got), nil
}

func compareColumns(table *dbtable.TableSchema, got []ColumnInfo) []string {
	var mismatches []string
	if len(got) == 0 {
		return []string{fmt.Sprintf("table %s does not exist on the target", table.Name)}
	}
	if len(got) != len(table.Columns) {
		mismatches = append(mismatches, fmt.Sprintf(
			"table %s has %d columns on the target, expected %d",
			table.Name, len(got), len(table.Columns),
		))
	}
	for i, col := range table.Columns {
		if i >= len(got) {
			mismatches = append(mismatches, fmt.Sprintf(
				"column %s missing on the target", col.Name,
			))
			continue
		}
		if got[i].Name != col.Name {
			mismatches = append(mismatches, fmt.Sprintf(
				"column %d is %s on the target, expected %s", i, got[i].Name, col.Name,
			))
			continue
		}
		if got[i].Nullable != col.Nullable {
			mismatches = append(mismatches, fmt.Sprintf(
				"column %s nullability differs: target %t, expected %t",
				col.Name, got[i].Nullable, col.Nullable,
			))
		}
	}
	return mismatches
}
