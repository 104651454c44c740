package translate

import (
	"testing"

	"github.com/cockroachdb/cockroachdb-parser/pkg/sql/sem/tree"
	"github.com/pgshift/pgshift/dbtable"
	"github.com/pgshift/pgshift/typemap"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func appointmentSchema() *dbtable.TableSchema {
	return &dbtable.TableSchema{
		Name: "Appointment",
		Columns: []dbtable.ColumnDef{
			{
				Name:     "id",
				Type:     dbtable.ColumnType{Family: dbtable.FamilyInt, Length: 11},
				Identity: true,
			},
			{
				Name: "user_id",
				Type: dbtable.ColumnType{Family: dbtable.FamilyInt, Length: 11},
			},
			{
				Name:     "title",
				Type:     dbtable.ColumnType{Family: dbtable.FamilyVarchar, Length: 100},
				Nullable: false,
			},
			{
				Name:     "confirmed",
				Type:     dbtable.ColumnType{Family: dbtable.FamilyTinyInt, Length: 1},
				Default:  strPtr("'0'"),
				Nullable: false,
			},
			{
				Name:       "status",
				Type:       dbtable.ColumnType{Family: dbtable.FamilyEnum},
				EnumValues: []string{"A", "B", "C"},
				Default:    strPtr("'A'"),
				Nullable:   true,
			},
			{
				Name:     "created_at",
				Type:     dbtable.ColumnType{Family: dbtable.FamilyDateTime, FracPrecision: 3},
				Default:  strPtr("CURRENT_TIMESTAMP(3)"),
				Nullable: false,
			},
			{
				Name:     "legacy_ts",
				Type:     dbtable.ColumnType{Family: dbtable.FamilyTimestamp},
				Default:  strPtr("'0000-00-00 00:00:00'"),
				Nullable: true,
			},
		},
		PrimaryKey: []tree.Name{"id"},
		Indexes: []dbtable.IndexDef{
			{Name: "Appointment_user_id_idx", Columns: []tree.Name{"user_id"}},
			{Name: "Appointment_title_key", Columns: []tree.Name{"title"}, Unique: true},
		},
		ForeignKeys: []dbtable.ForeignKeyDef{
			{
				Name:       "Appointment_user_id_fkey",
				Columns:    []tree.Name{"user_id"},
				RefTable:   "User",
				RefColumns: []tree.Name{"id"},
				OnDelete:   "CASCADE",
				OnUpdate:   "RESTRICT",
			},
		},
	}
}

func TestTable(t *testing.T) {
	stmts, err := Table(appointmentSchema(), Config{})
	require.NoError(t, err)

	require.Len(t, stmts.Phase1, 1)
	require.Equal(t, `CREATE TABLE "Appointment" (
    "id" INTEGER NOT NULL GENERATED BY DEFAULT AS IDENTITY,
    "user_id" INTEGER NOT NULL,
    "title" VARCHAR(100) NOT NULL,
    "confirmed" BOOLEAN NOT NULL DEFAULT false,
    "status" VARCHAR(1) DEFAULT 'A',
    "created_at" TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
    "legacy_ts" TIMESTAMP,
    PRIMARY KEY ("id")
)`, stmts.Phase1[0])

	require.Equal(t, []string{
		`CREATE INDEX "Appointment_user_id_idx" ON "Appointment" ("user_id")`,
		`CREATE UNIQUE INDEX "Appointment_title_key" ON "Appointment" ("title")`,
	}, stmts.Phase2)

	require.Equal(t, []string{
		`ALTER TABLE "Appointment" ADD CONSTRAINT "Appointment_user_id_fkey" FOREIGN KEY ("user_id") REFERENCES "User" ("id") ON DELETE CASCADE ON UPDATE RESTRICT`,
	}, stmts.Phase3)

	require.Equal(t, []dbtable.DependencyEdge{
		{From: "Appointment", To: "User"},
	}, stmts.Edges)
}

func TestTableNativeEnums(t *testing.T) {
	stmts, err := Table(appointmentSchema(), Config{
		TypeMap: typemap.Config{EnumsAsNative: true},
	})
	require.NoError(t, err)

	require.Len(t, stmts.Phase1, 2)
	require.Equal(t,
		`CREATE TYPE "Appointment_status" AS ENUM ('A', 'B', 'C')`,
		stmts.Phase1[0])
	require.Contains(t, stmts.Phase1[1], `"status" "Appointment_status" DEFAULT 'A'`)
}

func TestTableTypeMappingError(t *testing.T) {
	schema := &dbtable.TableSchema{
		Name: "Place",
		Columns: []dbtable.ColumnDef{
			{Name: "loc", Type: dbtable.ColumnType{Family: dbtable.FamilyUnknown, Raw: "geometry"}},
		},
	}
	_, err := Table(schema, Config{})
	require.Error(t, err)
	var mapErr *typemap.TypeMappingError
	require.ErrorAs(t, err, &mapErr)
}

func TestTranslateDefault(t *testing.T) {
	boolCol := dbtable.ColumnDef{Type: dbtable.ColumnType{Family: dbtable.FamilyTinyInt, Length: 1}}
	textCol := dbtable.ColumnDef{Type: dbtable.ColumnType{Family: dbtable.FamilyVarchar, Length: 10}}
	bitCol := dbtable.ColumnDef{Type: dbtable.ColumnType{Family: dbtable.FamilyBit, Length: 1}}

	for _, tc := range []struct {
		desc     string
		col      dbtable.ColumnDef
		raw      string
		expected string
		kept     bool
	}{
		{desc: "boolean zero", col: boolCol, raw: "'0'", expected: "false", kept: true},
		{desc: "boolean one", col: boolCol, raw: "'1'", expected: "true", kept: true},
		{desc: "explicit null dropped", col: textCol, raw: "NULL", kept: false},
		{desc: "zero date dropped", col: textCol, raw: "'0000-00-00'", kept: false},
		{desc: "string kept", col: textCol, raw: "'hello'", expected: "'hello'", kept: true},
		{desc: "bit literal", col: bitCol, raw: "b'1'", expected: "B'1'", kept: true},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			got, ok := translateDefault(tc.col, tc.raw)
			require.Equal(t, tc.kept, ok)
			if tc.kept {
				require.Equal(t, tc.expected, got)
			}
		})
	}
}
