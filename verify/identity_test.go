package verify

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompareIdentity(t *testing.T) {
	i64 := func(v int64) *int64 { return &v }
	for _, tc := range []struct {
		desc     string
		srcMax   *int64
		tgtMax   *int64
		next     int64
		expected []string
	}{
		{
			desc:   "preserved",
			srcMax: i64(42),
			tgtMax: i64(42),
			next:   43,
		},
		{
			desc: "both empty",
			next: 1,
		},
		{
			desc:   "max differs",
			srcMax: i64(42),
			tgtMax: i64(40),
			next:   41,
			expected: []string{
				"table Appointment max identity differs: source 42, target 40",
			},
		},
		{
			desc:   "target empty",
			srcMax: i64(42),
			next:   1,
			expected: []string{
				"table Appointment has identity values on the source but none on the target",
			},
		},
		{
			desc:   "source empty",
			tgtMax: i64(7),
			next:   8,
			expected: []string{
				"table Appointment has identity values on the target but none on the source",
			},
		},
		{
			desc:   "sequence behind the data",
			srcMax: i64(42),
			tgtMax: i64(42),
			next:   10,
			expected: []string{
				"table Appointment sequence would reissue value 10, already present up to 42",
			},
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			require.Equal(t, tc.expected, compareIdentity("Appointment", tc.srcMax, tc.tgtMax, tc.next))
		})
	}
}
