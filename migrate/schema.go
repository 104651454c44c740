package migrate

import (
	"context"
	"regexp"
	"strings"

	"github.com/cockroachdb/cockroachdb-parser/pkg/sql/sem/tree"
	"github.com/cockroachdb/errors"
	"github.com/pgshift/pgshift/dbconn"
	"github.com/pgshift/pgshift/dbtable"
	"github.com/pgshift/pgshift/mysqlddl"
)

const DefaultFilterString = ".*"

type FilterConfig struct {
	TableFilter string
}

func DefaultFilterConfig() FilterConfig {
	return FilterConfig{TableFilter: DefaultFilterString}
}

// FailedTable is a source table whose DDL could not be read or parsed.
type FailedTable struct {
	Table tree.Name
	Err   error
}

// SourceSchemas lists the source tables matching the filter and parses each
// table's DDL. Tables come back parents first so a caller processing them in
// order never sees a child before its referenced table. A table whose DDL
// cannot be read or parsed is reported in the failed slice instead of
// aborting the rest.
func SourceSchemas(
	ctx context.Context, conn *dbconn.MySQLConn, filter FilterConfig,
) ([]*dbtable.TableSchema, []FailedTable, error) {
	tableRe, err := regexp.CompilePOSIX(filter.TableFilter)
	if err != nil {
		return nil, nil, errors.Wrap(err, "compiling table filter")
	}

	rows, err := conn.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, nil, errors.Wrap(err, "listing source tables")
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, nil, err
		}
		if tableRe.MatchString(name) {
			names = append(names, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var schemas []*dbtable.TableSchema
	var failed []FailedTable
	for _, name := range names {
		ddl, err := showCreateTable(ctx, conn, name)
		if err != nil {
			failed = append(failed, FailedTable{Table: tree.Name(name), Err: err})
			continue
		}
		schema, err := mysqlddl.Parse(ddl)
		if err != nil {
			failed = append(failed, FailedTable{
				Table: tree.Name(name), Err: errors.Wrapf(err, "table %s", name),
			})
			continue
		}
		schemas = append(schemas, schema)
	}
	return sortByDependency(schemas), failed, nil
}

func showCreateTable(ctx context.Context, conn *dbconn.MySQLConn, name string) (string, error) {
	var tableName, ddl string
	q := "SHOW CREATE TABLE `" + strings.ReplaceAll(name, "`", "``") + "`"
	if err := conn.QueryRowContext(ctx, q).Scan(&tableName, &ddl); err != nil {
		return "", errors.Wrapf(err, "reading DDL for table %s", name)
	}
	return ddl, nil
}

// sortByDependency orders tables so referenced tables precede referencing
// ones. Cycles fall back to the incoming order; foreign keys are installed
// after all loads, so ordering only affects determinism, not correctness.
func sortByDependency(schemas []*dbtable.TableSchema) []*dbtable.TableSchema {
	byName := make(map[tree.Name]*dbtable.TableSchema, len(schemas))
	for _, s := range schemas {
		byName[s.Name] = s
	}
	ordered := make([]*dbtable.TableSchema, 0, len(schemas))
	seen := make(map[tree.Name]bool, len(schemas))
	visiting := make(map[tree.Name]bool, len(schemas))

	var visit func(s *dbtable.TableSchema)
	visit = func(s *dbtable.TableSchema) {
		if seen[s.Name] || visiting[s.Name] {
			return
		}
		visiting[s.Name] = true
		for _, edge := range s.DependencyEdges() {
			if parent, ok := byName[edge.To]; ok {
				visit(parent)
			}
		}
		visiting[s.Name] = false
		seen[s.Name] = true
		ordered = append(ordered, s)
	}
	for _, s := range schemas {
		visit(s)
	}
	return ordered
}
