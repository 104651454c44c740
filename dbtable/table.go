// Package dbtable holds the parsed, immutable description of a source table
// and the transient row representation that flows between the extractor and
// the loader.
package dbtable

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/cockroachdb-parser/pkg/sql/sem/tree"
	"github.com/cockroachdb/errors"
)

// Family is the coarse MySQL type family of a column. The raw type text is
// kept alongside for error reporting; mapping decisions key off the family
// plus length/precision.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyTinyInt
	FamilySmallInt
	FamilyMediumInt
	FamilyInt
	FamilyBigInt
	FamilyDecimal
	FamilyFloat
	FamilyDouble
	FamilyBit
	FamilyChar
	FamilyVarchar
	FamilyText
	FamilyBlob
	FamilyDate
	FamilyTime
	FamilyDateTime
	FamilyTimestamp
	FamilyYear
	FamilyEnum
	FamilySet
	FamilyJSON
)

// ColumnType describes a source column type. Length is the display width or
// string size (0 when unspecified); Precision/Scale apply to decimals;
// FracPrecision is the fractional-second precision of datetime/timestamp.
type ColumnType struct {
	Family        Family
	Raw           string
	Length        int
	Precision     int
	Scale         int
	FracPrecision int
	Unsigned      bool
}

// BooleanLike reports whether the column is MySQL's conventional boolean
// encoding, tinyint(1).
func (t ColumnType) BooleanLike() bool {
	return t.Family == FamilyTinyInt && t.Length == 1
}

type ColumnDef struct {
	Name     tree.Name
	Type     ColumnType
	Nullable bool
	// Default is the rendered source-dialect default expression, nil when
	// the column has no default.
	Default    *string
	Identity   bool
	EnumValues []string
}

type IndexDef struct {
	Name    tree.Name
	Columns []tree.Name
	Unique  bool
}

type ForeignKeyDef struct {
	Name       tree.Name
	Columns    []tree.Name
	RefTable   tree.Name
	RefColumns []tree.Name
	OnDelete   string
	OnUpdate   string
}

// DependencyEdge is a single FK reference from one table to another. The
// orchestrator consumes these to order phase 3 across tables; the core never
// traverses them.
type DependencyEdge struct {
	From tree.Name
	To   tree.Name
}

// TableSchema is derived once from the source DDL and immutable thereafter.
// Column order is significant: rows align 1:1 with Columns.
type TableSchema struct {
	Name        tree.Name
	Columns     []ColumnDef
	PrimaryKey  []tree.Name
	Indexes     []IndexDef
	ForeignKeys []ForeignKeyDef
}

func (s *TableSchema) String() string {
	return string(s.Name)
}

func (s *TableSchema) Arity() int {
	return len(s.Columns)
}

func (s *TableSchema) ColumnNames() []tree.Name {
	names := make([]tree.Name, len(s.Columns))
	for i, col := range s.Columns {
		names[i] = col.Name
	}
	return names
}

// IdentityColumn returns the identity column and its ordinal position, if the
// table has one.
func (s *TableSchema) IdentityColumn() (ColumnDef, int, bool) {
	for i, col := range s.Columns {
		if col.Identity {
			return col, i, true
		}
	}
	return ColumnDef{}, -1, false
}

func (s *TableSchema) Column(name tree.Name) (ColumnDef, bool) {
	for _, col := range s.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return ColumnDef{}, false
}

// DependencyEdges reports one edge per foreign key, self-references excluded.
func (s *TableSchema) DependencyEdges() []DependencyEdge {
	var edges []DependencyEdge
	for _, fk := range s.ForeignKeys {
		if fk.RefTable == s.Name {
			continue
		}
		edges = append(edges, DependencyEdge{From: s.Name, To: fk.RefTable})
	}
	return edges
}

// Validate enforces the structural invariants a freshly parsed schema must
// hold before any other component consumes it.
func (s *TableSchema) Validate() error {
	if len(s.Name) == 0 {
		return errors.New("table has no name")
	}
	if len(s.Columns) == 0 {
		return errors.Newf("table %s has no columns", s.Name)
	}
	identities := 0
	seen := make(map[tree.Name]struct{}, len(s.Columns))
	for _, col := range s.Columns {
		if _, ok := seen[col.Name]; ok {
			return errors.Newf("table %s: duplicate column %s", s.Name, col.Name)
		}
		seen[col.Name] = struct{}{}
		if col.Identity {
			identities++
		}
	}
	if identities > 1 {
		return errors.Newf("table %s has %d identity columns, at most one allowed", s.Name, identities)
	}
	for _, fk := range s.ForeignKeys {
		if len(fk.Columns) != len(fk.RefColumns) {
			return errors.Newf(
				"table %s: foreign key %s has %d columns referencing %d",
				s.Name, fk.Name, len(fk.Columns), len(fk.RefColumns),
			)
		}
	}
	return nil
}

// FieldKind distinguishes a present value from an explicit NULL. Raw marks
// text (JSON, blobs) that passed through normalization untyped.
type FieldKind int

const (
	FieldValue FieldKind = iota
	FieldNull
	FieldRaw
)

type Field struct {
	Kind FieldKind
	Text string
}

func NullField() Field {
	return Field{Kind: FieldNull}
}

func ValueField(text string) Field {
	return Field{Kind: FieldValue, Text: text}
}

func RawField(text string) Field {
	return Field{Kind: FieldRaw, Text: text}
}

func (f Field) IsNull() bool {
	return f.Kind == FieldNull
}

// Row is an ordered field sequence aligned with TableSchema.Columns.
type Row []Field

func (r Row) String() string {
	var sb strings.Builder
	for i, f := range r {
		if i > 0 {
			sb.WriteByte('\t')
		}
		if f.IsNull() {
			sb.WriteString("<null>")
		} else {
			fmt.Fprintf(&sb, "%q", f.Text)
		}
	}
	return sb.String()
}
