// Package translate renders a parsed source table schema as PostgreSQL DDL.
//
// Output is split into three phases so that a migration can create bare
// tables first, add indexes after the data is loaded, and wire up foreign
// keys only once every referenced table exists:
//
//	Phase1: CREATE TYPE (enums) and CREATE TABLE
//	Phase2: CREATE INDEX
//	Phase3: ALTER TABLE ... ADD CONSTRAINT ... FOREIGN KEY
package translate

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/cockroachdb-parser/pkg/sql/lexbase"
	"github.com/cockroachdb/cockroachdb-parser/pkg/sql/sem/tree"
	"github.com/pgshift/pgshift/dbtable"
	"github.com/pgshift/pgshift/typemap"
)

type Config struct {
	TypeMap typemap.Config
}

// Statements is the DDL for a single table, phase by phase, plus the foreign
// key dependency edges the table contributes to the migration order.
type Statements struct {
	Phase1 []string
	Phase2 []string
	Phase3 []string
	Edges  []dbtable.DependencyEdge
}

// Table renders DDL for one table. Identifier case from the source schema is
// preserved by double quoting every identifier.
func Table(schema *dbtable.TableSchema, cfg Config) (Statements, error) {
	var stmts Statements

	if cfg.TypeMap.EnumsAsNative {
		for _, col := range schema.Columns {
			if col.Type.Family != dbtable.FamilyEnum {
				continue
			}
			stmts.Phase1 = append(stmts.Phase1, fmt.Sprintf(
				"CREATE TYPE %s AS ENUM (%s)",
				quote(typemap.EnumTypeName(schema.Name, col.Name)),
				typemap.EnumValueList(col.EnumValues),
			))
		}
	}

	var defs []string
	for _, col := range schema.Columns {
		def, err := columnDef(schema, col, cfg)
		if err != nil {
			return Statements{}, err
		}
		defs = append(defs, def)
	}
	if len(schema.PrimaryKey) > 0 {
		defs = append(defs, fmt.Sprintf("    PRIMARY KEY (%s)", quoteList(schema.PrimaryKey)))
	}
	stmts.Phase1 = append(stmts.Phase1, fmt.Sprintf(
		"CREATE TABLE %s (\n%s\n)",
		quote(schema.Name),
		strings.Join(defs, ",\n"),
	))

	for _, idx := range schema.Indexes {
		unique := ""
		if idx.Unique {
			unique = "UNIQUE "
		}
		stmts.Phase2 = append(stmts.Phase2, fmt.Sprintf(
			"CREATE %sINDEX %s ON %s (%s)",
			unique,
			quote(idx.Name),
			quote(schema.Name),
			quoteList(idx.Columns),
		))
	}

	for _, fk := range schema.ForeignKeys {
		stmts.Phase3 = append(stmts.Phase3, fmt.Sprintf(
			"ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s ON UPDATE %s",
			quote(schema.Name),
			quote(fk.Name),
			quoteList(fk.Columns),
			quote(fk.RefTable),
			quoteList(fk.RefColumns),
			fk.OnDelete,
			fk.OnUpdate,
		))
	}

	stmts.Edges = schema.DependencyEdges()
	return stmts, nil
}

func columnDef(schema *dbtable.TableSchema, col dbtable.ColumnDef, cfg Config) (string, error) {
	typ, err := typemap.Map(schema.Name, col, cfg.TypeMap)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "    %s %s", quote(col.Name), typ)
	if !col.Nullable {
		sb.WriteString(" NOT NULL")
	}
	if col.Identity {
		sb.WriteString(" GENERATED BY DEFAULT AS IDENTITY")
		return sb.String(), nil
	}
	if col.Default != nil {
		if def, ok := translateDefault(col, *col.Default); ok {
			fmt.Fprintf(&sb, " DEFAULT %s", def)
		}
	}
	return sb.String(), nil
}

// translateDefault rewrites a source default expression for the target
// column, or reports that the default should be dropped. Source defaults
// that only exist as MySQL quirks (zero dates, NULL spelled out) do not
// carry over.
func translateDefault(col dbtable.ColumnDef, raw string) (string, bool) {
	switch strings.ToUpper(raw) {
	case "NULL":
		return "", false
	}
	if col.Type.BooleanLike() {
		switch raw {
		case "'0'", "0":
			return "false", true
		case "'1'", "1":
			return "true", true
		}
	}
	if isZeroDate(raw) {
		return "", false
	}
	if strings.HasPrefix(raw, "b'") {
		return "B" + raw[1:], true
	}
	return raw, true
}

func isZeroDate(raw string) bool {
	trimmed := strings.Trim(raw, "'")
	return strings.HasPrefix(trimmed, "0000-00-00")
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
