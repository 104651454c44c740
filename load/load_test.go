package load

import (
	"strings"
	"testing"

	"github.com/cockroachdb/cockroachdb-parser/pkg/sql/sem/tree"
	"github.com/pgshift/pgshift/dbtable"
	"github.com/stretchr/testify/require"
)

func userTable() *dbtable.TableSchema {
	return &dbtable.TableSchema{
		Name: "User",
		Columns: []dbtable.ColumnDef{
			{Name: "id", Type: dbtable.ColumnType{Family: dbtable.FamilyInt}, Identity: true},
			{Name: "name", Type: dbtable.ColumnType{Family: dbtable.FamilyVarchar, Length: 50}},
			{Name: "active", Type: dbtable.ColumnType{Family: dbtable.FamilyTinyInt, Length: 1}},
		},
		PrimaryKey: []tree.Name{"id"},
	}
}

func TestLoadColumns(t *testing.T) {
	table := userTable()

	cols, idx := loadColumns(table, IdentityPreserve)
	require.Equal(t, []tree.Name{"id", "name", "active"}, cols)
	require.Equal(t, -1, idx)

	cols, idx = loadColumns(table, IdentityRegenerate)
	require.Equal(t, []tree.Name{"name", "active"}, cols)
	require.Equal(t, 0, idx)

	noIdentity := userTable()
	noIdentity.Columns[0].Identity = false
	cols, idx = loadColumns(noIdentity, IdentityRegenerate)
	require.Equal(t, []tree.Name{"id", "name", "active"}, cols)
	require.Equal(t, -1, idx)
}

func TestCopyFrom(t *testing.T) {
	require.Equal(t,
		`COPY "User" ("id", "name") FROM STDIN WITH (FORMAT csv, DELIMITER E'\t', QUOTE '"', ESCAPE '"', NULL '\N')`,
		copyFrom("User", []tree.Name{"id", "name"}),
	)
}

func TestLockSQL(t *testing.T) {
	require.Equal(t, `LOCK TABLE "User" IN EXCLUSIVE MODE`, lockSQL("User"))
}

func TestInsertSQL(t *testing.T) {
	require.Equal(t,
		`INSERT INTO "User" ("name", "active") VALUES ($1, $2)`,
		insertSQL("User", []tree.Name{"name", "active"}),
	)
}

func TestEncodeRow(t *testing.T) {
	table := userTable()
	for _, tc := range []struct {
		desc        string
		row         dbtable.Row
		identityIdx int
		expected    string
	}{
		{
			desc: "plain",
			row: dbtable.Row{
				dbtable.ValueField("1"), dbtable.ValueField("alice"), dbtable.ValueField("1"),
			},
			identityIdx: -1,
			expected:    "1\talice\tt\n",
		},
		{
			desc: "null and boolean zero",
			row: dbtable.Row{
				dbtable.ValueField("2"), dbtable.NullField(), dbtable.ValueField("0"),
			},
			identityIdx: -1,
			expected:    "2\t\\N\tf\n",
		},
		{
			desc: "identity stripped",
			row: dbtable.Row{
				dbtable.ValueField("3"), dbtable.ValueField("bob"), dbtable.ValueField("1"),
			},
			identityIdx: 0,
			expected:    "bob\tt\n",
		},
		{
			desc: "embedded separators quoted",
			row: dbtable.Row{
				dbtable.ValueField("4"),
				dbtable.ValueField("line one\nline\ttwo \"quoted\""),
				dbtable.ValueField("0"),
			},
			identityIdx: -1,
			expected:    "4\t\"line one\nline\ttwo \"\"quoted\"\"\"\tf\n",
		},
		{
			desc: "literal null token quoted",
			row: dbtable.Row{
				dbtable.ValueField("5"), dbtable.ValueField(`\N`), dbtable.ValueField("1"),
			},
			identityIdx: -1,
			expected:    "5\t\"\\N\"\tt\n",
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			var sb strings.Builder
			encodeRow(&sb, table, tc.row, tc.identityIdx)
			require.Equal(t, tc.expected, sb.String())
		})
	}
}

func TestCoerceField(t *testing.T) {
	boolCol := dbtable.ColumnDef{Type: dbtable.ColumnType{Family: dbtable.FamilyTinyInt, Length: 1}}
	intCol := dbtable.ColumnDef{Type: dbtable.ColumnType{Family: dbtable.FamilyInt}}

	require.Equal(t, "f", coerceField(boolCol, "0"))
	require.Equal(t, "t", coerceField(boolCol, "1"))
	require.Equal(t, "2", coerceField(boolCol, "2"))
	require.Equal(t, "0", coerceField(intCol, "0"))
}

func TestRowArgs(t *testing.T) {
	table := userTable()
	row := dbtable.Row{
		dbtable.ValueField("7"), dbtable.NullField(), dbtable.ValueField("1"),
	}
	require.Equal(t, []any{"7", nil, "t"}, rowArgs(table, row, -1))
	require.Equal(t, []any{nil, "t"}, rowArgs(table, row, 0))
}
