package extract

import (
	"testing"

	"github.com/pgshift/pgshift/dbtable"
	"github.com/stretchr/testify/require"
)

func TestNormalizeJSON(t *testing.T) {
	for _, tc := range []struct {
		desc     string
		in       string
		expected string
	}{
		{
			desc:     "valid stays",
			in:       `{"a": 1}`,
			expected: `{"a": 1}`,
		},
		{
			desc:     "valid with escaped quote stays",
			in:       `{"a":"say \"hi\""}`,
			expected: `{"a":"say \"hi\""}`,
		},
		{
			desc:     "doubled escapes collapse",
			in:       `{"a":"say \\"hi\\""}`,
			expected: `{"a":"say \"hi\""}`,
		},
		{
			desc:     "doubled backslash in valid json stays",
			in:       `{"path":"C:\\dir"}`,
			expected: `{"path":"C:\\dir"}`,
		},
		{
			desc:     "unfixable stays",
			in:       `{"a": broken`,
			expected: `{"a": broken`,
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			require.Equal(t, tc.expected, normalizeJSON(tc.in))
		})
	}
}

func TestCanonicalDecimal(t *testing.T) {
	for _, tc := range []struct {
		in       string
		expected string
	}{
		{in: "1.50", expected: "1.50"},
		{in: "1.5E+2", expected: "150"},
		{in: "-0.5e-1", expected: "-0.05"},
		{in: "not-a-number", expected: "not-a-number"},
		{in: "", expected: ""},
	} {
		t.Run(tc.in, func(t *testing.T) {
			require.Equal(t, tc.expected, canonicalDecimal(tc.in))
		})
	}
}

func TestStripControl(t *testing.T) {
	require.Equal(t, "ab", stripControl("a\x00\x01b"))
	require.Equal(t, "a\tb\nc", stripControl("a\tb\nc"))
	require.Equal(t, "x", stripControl("x\x7f"))
	require.Equal(t, "héllo", stripControl("héllo"))
}

func TestNormalizeValueByFamily(t *testing.T) {
	jsonCol := dbtable.ColumnDef{Type: dbtable.ColumnType{Family: dbtable.FamilyJSON}}
	decCol := dbtable.ColumnDef{Type: dbtable.ColumnType{Family: dbtable.FamilyDecimal}}
	textCol := dbtable.ColumnDef{Type: dbtable.ColumnType{Family: dbtable.FamilyText}}

	require.Equal(t, `{"a":"say \"hi\""}`, normalizeValue(jsonCol, `{"a":"say \\"hi\\""}`))
	require.Equal(t, "150", normalizeValue(decCol, "1.5E+2"))
	require.Equal(t, `{"a":"say \\"hi\\""}`, normalizeValue(textCol, `{"a":"say \\"hi\\""}`))
}
