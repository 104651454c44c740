package testutils

import (
	"strconv"
	"strings"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/pgshift/pgshift/dbtable"
)

// FakeRows generates n plausible rows for a table, for exercising the
// extract and load paths without a source database. Seeded for
// reproducibility.
func FakeRows(table *dbtable.TableSchema, n int, seed int64) []dbtable.Row {
	faker := gofakeit.New(seed)
	rows := make([]dbtable.Row, n)
	for i := range rows {
		row := make(dbtable.Row, table.Arity())
		for j, col := range table.Columns {
			if col.Nullable && faker.Number(0, 9) == 0 {
				row[j] = dbtable.NullField()
				continue
			}
			row[j] = dbtable.ValueField(fakeValue(faker, col, i))
		}
		rows[i] = row
	}
	return rows
}

func fakeValue(faker *gofakeit.Faker, col dbtable.ColumnDef, rowIdx int) string {
	switch col.Type.Family {
	case dbtable.FamilyTinyInt:
		if col.Type.BooleanLike() {
			if faker.Bool() {
				return "1"
			}
			return "0"
		}
		return strconv.Itoa(faker.Number(0, 127))
	case dbtable.FamilySmallInt, dbtable.FamilyMediumInt, dbtable.FamilyInt, dbtable.FamilyBigInt:
		if col.Identity {
			return strconv.Itoa(rowIdx + 1)
		}
		return strconv.Itoa(faker.Number(1, 1_000_000))
	case dbtable.FamilyDecimal:
		return strconv.FormatFloat(faker.Float64Range(0, 10_000), 'f', col.Type.Scale, 64)
	case dbtable.FamilyFloat, dbtable.FamilyDouble:
		return strconv.FormatFloat(faker.Float64Range(0, 10_000), 'f', -1, 64)
	case dbtable.FamilyDate:
		return faker.Date().Format("2006-01-02")
	case dbtable.FamilyTime:
		return faker.Date().Format("15:04:05")
	case dbtable.FamilyDateTime, dbtable.FamilyTimestamp:
		return faker.Date().Format("2006-01-02 15:04:05")
	case dbtable.FamilyYear:
		return strconv.Itoa(faker.Number(1970, 2030))
	case dbtable.FamilyEnum, dbtable.FamilySet:
		if len(col.EnumValues) > 0 {
			return faker.RandomString(col.EnumValues)
		}
		return faker.Word()
	case dbtable.FamilyJSON:
		return `{"note":"` + faker.Word() + `"}`
	case dbtable.FamilyChar, dbtable.FamilyVarchar:
		s := faker.Sentence(3)
		if col.Type.Length > 0 && len(s) > col.Type.Length {
			s = s[:col.Type.Length]
		}
		return strings.TrimSpace(s)
	default:
		return faker.Word()
	}
}
