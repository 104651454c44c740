// Package typemap maps MySQL column types onto their PostgreSQL
// equivalents.
package typemap

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/cockroachdb-parser/pkg/sql/sem/tree"
	"github.com/pgshift/pgshift/dbtable"
)

// Config adjusts how types are rendered.
type Config struct {
	// EnumsAsNative renders MySQL enums as native PostgreSQL enum types
	// (one CREATE TYPE per enum column) instead of VARCHAR.
	EnumsAsNative bool
	// StripStringSizes drops length limits from CHAR and VARCHAR so that
	// oversized source values cannot be rejected on load.
	StripStringSizes bool
}

// TypeMappingError reports a source column whose type has no target
// equivalent. It is fatal for the affected table only.
type TypeMappingError struct {
	Table      tree.Name
	Column     tree.Name
	SourceType string
}

func (e *TypeMappingError) Error() string {
	return fmt.Sprintf(
		"no target type mapping for %s.%s (source type %q)",
		e.Table, e.Column, e.SourceType,
	)
}

// EnumTypeName returns the name of the PostgreSQL enum type generated for an
// enum column.
func EnumTypeName(table tree.Name, col tree.Name) tree.Name {
	return tree.Name(fmt.Sprintf("%s_%s", table, col))
}

// Map returns the PostgreSQL type for a source column. Integer widths are
// widened one step for unsigned source types since PostgreSQL has no unsigned
// integers.
func Map(table tree.Name, col dbtable.ColumnDef, cfg Config) (string, error) {
	t := col.Type
	switch t.Family {
	case dbtable.FamilyTinyInt:
		if t.BooleanLike() {
			return "BOOLEAN", nil
		}
		return "SMALLINT", nil
	case dbtable.FamilySmallInt:
		if t.Unsigned {
			return "INTEGER", nil
		}
		return "SMALLINT", nil
	case dbtable.FamilyMediumInt:
		return "INTEGER", nil
	case dbtable.FamilyInt:
		if t.Unsigned {
			return "BIGINT", nil
		}
		return "INTEGER", nil
	case dbtable.FamilyBigInt:
		if t.Unsigned {
			return "NUMERIC(20, 0)", nil
		}
		return "BIGINT", nil
	case dbtable.FamilyDecimal:
		if t.Precision > 0 {
			return fmt.Sprintf("DECIMAL(%d, %d)", t.Precision, t.Scale), nil
		}
		return "DECIMAL", nil
	case dbtable.FamilyFloat:
		return "REAL", nil
	case dbtable.FamilyDouble:
		return "DOUBLE PRECISION", nil
	case dbtable.FamilyBit:
		if t.Length == 1 {
			return "BIT(1)", nil
		}
		if t.Length > 0 {
			return fmt.Sprintf("VARBIT(%d)", t.Length), nil
		}
		return "VARBIT", nil
	case dbtable.FamilyChar:
		if cfg.StripStringSizes || t.Length <= 0 {
			return "TEXT", nil
		}
		return fmt.Sprintf("CHAR(%d)", t.Length), nil
	case dbtable.FamilyVarchar:
		if cfg.StripStringSizes || t.Length <= 0 {
			return "TEXT", nil
		}
		return fmt.Sprintf("VARCHAR(%d)", t.Length), nil
	case dbtable.FamilyText:
		return "TEXT", nil
	case dbtable.FamilyBlob:
		return "BYTEA", nil
	case dbtable.FamilyDate:
		return "DATE", nil
	case dbtable.FamilyTime:
		return "TIME", nil
	case dbtable.FamilyDateTime, dbtable.FamilyTimestamp:
		if t.FracPrecision > 0 {
			return fmt.Sprintf("TIMESTAMP(%d)", t.FracPrecision), nil
		}
		return "TIMESTAMP", nil
	case dbtable.FamilyYear:
		return "SMALLINT", nil
	case dbtable.FamilyEnum:
		if cfg.EnumsAsNative {
			return string(EnumTypeName(table, col.Name)), nil
		}
		return fmt.Sprintf("VARCHAR(%d)", maxEnumLen(col.EnumValues)), nil
	case dbtable.FamilySet:
		// No native set type; a comma joined VARCHAR preserves the dump
		// representation.
		return "TEXT", nil
	case dbtable.FamilyJSON:
		return "JSONB", nil
	}
	return "", &TypeMappingError{
		Table:      table,
		Column:     col.Name,
		SourceType: t.Raw,
	}
}

func maxEnumLen(values []string) int {
	max := 1
	for _, v := range values {
		if n := len(v); n > max {
			max = n
		}
	}
	return max
}

// EnumValueList renders a quoted, comma separated value list for a CREATE
// TYPE ... AS ENUM statement.
func EnumValueList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
	return strings.Join(quoted, ", ")
}
