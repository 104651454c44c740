// Package mysqlddl parses MySQL CREATE TABLE text (as emitted by SHOW CREATE
// TABLE) into a dbtable.TableSchema.
package mysqlddl

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/cockroachdb-parser/pkg/sql/sem/tree"
	"github.com/cockroachdb/errors"
	"github.com/pgshift/pgshift/dbtable"
	"github.com/pingcap/tidb/parser"
	"github.com/pingcap/tidb/parser/ast"
	"github.com/pingcap/tidb/parser/format"
	"github.com/pingcap/tidb/parser/mysql"
	"github.com/pingcap/tidb/parser/types"
	_ "github.com/pingcap/tidb/types/parser_driver"
)

// ParseError marks source DDL that could not be turned into a TableSchema.
// It is fatal for the affected table only.
type ParseError struct {
	cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing source DDL: %v", e.cause)
}

func (e *ParseError) Unwrap() error {
	return e.cause
}

// Parse converts one CREATE TABLE statement into a TableSchema. Identifier
// case is preserved exactly as spelled in the DDL.
func Parse(ddl string) (*dbtable.TableSchema, error) {
	p := parser.New()
	stmt, err := p.ParseOneStmt(ddl, "", "")
	if err != nil {
		return nil, &ParseError{cause: err}
	}
	ct, ok := stmt.(*ast.CreateTableStmt)
	if !ok {
		return nil, &ParseError{cause: errors.Newf("expected CREATE TABLE, got %T", stmt)}
	}

	schema := &dbtable.TableSchema{
		Name: tree.Name(ct.Table.Name.O),
	}
	for _, col := range ct.Cols {
		cd, err := convertColumn(col)
		if err != nil {
			return nil, &ParseError{cause: err}
		}
		schema.Columns = append(schema.Columns, cd)
	}
	for _, cons := range ct.Constraints {
		switch cons.Tp {
		case ast.ConstraintPrimaryKey:
			for _, key := range cons.Keys {
				schema.PrimaryKey = append(schema.PrimaryKey, tree.Name(key.Column.Name.O))
			}
		case ast.ConstraintKey, ast.ConstraintIndex, ast.ConstraintUniq,
			ast.ConstraintUniqKey, ast.ConstraintUniqIndex:
			idx := dbtable.IndexDef{
				Name:   tree.Name(cons.Name),
				Unique: cons.Tp != ast.ConstraintKey && cons.Tp != ast.ConstraintIndex,
			}
			for _, key := range cons.Keys {
				idx.Columns = append(idx.Columns, tree.Name(key.Column.Name.O))
			}
			schema.Indexes = append(schema.Indexes, idx)
		case ast.ConstraintForeignKey:
			fk := dbtable.ForeignKeyDef{
				Name:     tree.Name(cons.Name),
				RefTable: tree.Name(cons.Refer.Table.Name.O),
				OnDelete: "RESTRICT",
				OnUpdate: "RESTRICT",
			}
			for _, key := range cons.Keys {
				fk.Columns = append(fk.Columns, tree.Name(key.Column.Name.O))
			}
			for _, key := range cons.Refer.IndexPartSpecifications {
				fk.RefColumns = append(fk.RefColumns, tree.Name(key.Column.Name.O))
			}
			if cons.Refer.OnDelete != nil && cons.Refer.OnDelete.ReferOpt != ast.ReferOptionNoOption {
				fk.OnDelete = cons.Refer.OnDelete.ReferOpt.String()
			}
			if cons.Refer.OnUpdate != nil && cons.Refer.OnUpdate.ReferOpt != ast.ReferOptionNoOption {
				fk.OnUpdate = cons.Refer.OnUpdate.ReferOpt.String()
			}
			schema.ForeignKeys = append(schema.ForeignKeys, fk)
		}
	}
	// MySQL also allows PRIMARY KEY as a column option.
	for _, col := range ct.Cols {
		for _, opt := range col.Options {
			if opt.Tp == ast.ColumnOptionPrimaryKey && len(schema.PrimaryKey) == 0 {
				schema.PrimaryKey = append(schema.PrimaryKey, tree.Name(col.Name.Name.O))
			}
		}
	}
	if err := schema.Validate(); err != nil {
		return nil, &ParseError{cause: err}
	}
	return schema, nil
}

func convertColumn(col *ast.ColumnDef) (dbtable.ColumnDef, error) {
	ft := col.Tp
	cd := dbtable.ColumnDef{
		Name:     tree.Name(col.Name.Name.O),
		Nullable: true,
	}
	cd.Type = convertFieldType(ft)
	if cd.Type.Family == dbtable.FamilyEnum || cd.Type.Family == dbtable.FamilySet {
		cd.EnumValues = append(cd.EnumValues, ft.Elems...)
	}

	for _, opt := range col.Options {
		switch opt.Tp {
		case ast.ColumnOptionNotNull:
			cd.Nullable = false
		case ast.ColumnOptionNull:
			cd.Nullable = true
		case ast.ColumnOptionAutoIncrement:
			cd.Identity = true
		case ast.ColumnOptionPrimaryKey:
			cd.Nullable = false
		case ast.ColumnOptionDefaultValue:
			def, err := renderExpr(opt.Expr)
			if err != nil {
				return cd, errors.Wrapf(err, "rendering default for column %s", cd.Name)
			}
			cd.Default = &def
		}
	}
	return cd, nil
}

func convertFieldType(ft *types.FieldType) dbtable.ColumnType {
	ct := dbtable.ColumnType{
		Raw:      ft.String(),
		Unsigned: mysql.HasUnsignedFlag(ft.Flag),
	}
	if ft.Flen != types.UnspecifiedLength {
		ct.Length = ft.Flen
	}
	switch ft.Tp {
	case mysql.TypeTiny:
		ct.Family = dbtable.FamilyTinyInt
	case mysql.TypeShort:
		ct.Family = dbtable.FamilySmallInt
	case mysql.TypeInt24:
		ct.Family = dbtable.FamilyMediumInt
	case mysql.TypeLong:
		ct.Family = dbtable.FamilyInt
	case mysql.TypeLonglong:
		ct.Family = dbtable.FamilyBigInt
	case mysql.TypeNewDecimal, mysql.TypeUnspecified:
		ct.Family = dbtable.FamilyDecimal
		if ft.Flen != types.UnspecifiedLength {
			ct.Precision = ft.Flen
		}
		if ft.Decimal != types.UnspecifiedLength {
			ct.Scale = ft.Decimal
		}
	case mysql.TypeFloat:
		ct.Family = dbtable.FamilyFloat
	case mysql.TypeDouble:
		ct.Family = dbtable.FamilyDouble
	case mysql.TypeBit:
		ct.Family = dbtable.FamilyBit
	case mysql.TypeString:
		ct.Family = dbtable.FamilyChar
		if isBinaryCharset(ft) {
			ct.Family = dbtable.FamilyBlob
		}
	case mysql.TypeVarchar, mysql.TypeVarString:
		ct.Family = dbtable.FamilyVarchar
		if isBinaryCharset(ft) {
			ct.Family = dbtable.FamilyBlob
		}
	case mysql.TypeTinyBlob, mysql.TypeBlob, mysql.TypeMediumBlob, mysql.TypeLongBlob:
		if isBinaryCharset(ft) {
			ct.Family = dbtable.FamilyBlob
		} else {
			ct.Family = dbtable.FamilyText
		}
	case mysql.TypeDate, mysql.TypeNewDate:
		ct.Family = dbtable.FamilyDate
	case mysql.TypeDuration:
		ct.Family = dbtable.FamilyTime
	case mysql.TypeDatetime:
		ct.Family = dbtable.FamilyDateTime
		ct.FracPrecision = fracPrecision(ft)
	case mysql.TypeTimestamp:
		ct.Family = dbtable.FamilyTimestamp
		ct.FracPrecision = fracPrecision(ft)
	case mysql.TypeYear:
		ct.Family = dbtable.FamilyYear
	case mysql.TypeEnum:
		ct.Family = dbtable.FamilyEnum
	case mysql.TypeSet:
		ct.Family = dbtable.FamilySet
	case mysql.TypeJSON:
		ct.Family = dbtable.FamilyJSON
	default:
		ct.Family = dbtable.FamilyUnknown
	}
	return ct
}

func isBinaryCharset(ft *types.FieldType) bool {
	return ft.Charset == "binary"
}

func fracPrecision(ft *types.FieldType) int {
	if ft.Decimal == types.UnspecifiedLength {
		return 0
	}
	return ft.Decimal
}

// renderExpr renders a default-value expression back to SQL text. Literals
// come out single quoted; function defaults such as CURRENT_TIMESTAMP keep
// their call form.
func renderExpr(expr ast.ExprNode) (string, error) {
	var sb strings.Builder
	restoreCtx := format.NewRestoreCtx(
		format.RestoreStringSingleQuotes|format.RestoreKeyWordUppercase|format.RestoreNameBackQuotes,
		&sb,
	)
	if err := expr.Restore(restoreCtx); err != nil {
		return "", err
	}
	return sb.String(), nil
}
