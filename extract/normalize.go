package extract

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/pgshift/pgshift/dbtable"
)

// normalizeValue cleans a decoded field value for the target column. Stray
// control bytes picked up from client encodings are dropped; tabs and
// newlines are data and stay.
func normalizeValue(col dbtable.ColumnDef, v string) string {
	v = stripControl(v)
	switch col.Type.Family {
	case dbtable.FamilyJSON:
		return normalizeJSON(v)
	case dbtable.FamilyDecimal:
		return canonicalDecimal(v)
	}
	return v
}

func stripControl(s string) string {
	clean := func(r rune) bool {
		return (r < 0x20 && r != '\n' && r != '\t') || r == 0x7f
	}
	if strings.IndexFunc(s, clean) < 0 {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if clean(r) {
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// normalizeJSON undoes one level of backslash doubling that some dump
// clients apply to JSON values. The collapse is only kept when it yields
// valid JSON, so values that were correct to begin with pass through
// untouched.
func normalizeJSON(v string) string {
	if !strings.Contains(v, `\\`) {
		return v
	}
	if json.Valid([]byte(v)) {
		return v
	}
	collapsed := strings.ReplaceAll(v, `\\`, `\`)
	if json.Valid([]byte(collapsed)) {
		return collapsed
	}
	return v
}

// canonicalDecimal rewrites a decimal value in plain notation so that
// scientific notation from the source never reaches COPY. Values that do not
// parse are passed through for the loader to reject with context.
func canonicalDecimal(v string) string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return v
	}
	d, _, err := apd.NewFromString(trimmed)
	if err != nil {
		return v
	}
	return d.Text('f')
}
