package verify

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	readErr := errors.New("connection refused")
	for _, tc := range []struct {
		desc     string
		srcErr   error
		tgtErr   error
		src, tgt int64
		expected Status
		wantErr  bool
	}{
		{desc: "match", src: 10, tgt: 10, expected: StatusMatch},
		{desc: "both empty", src: 0, tgt: 0, expected: StatusMatch},
		{desc: "mismatch", src: 10, tgt: 7, expected: StatusCountMismatch},
		{desc: "source unreadable", srcErr: readErr, expected: StatusSourceUnreadable, wantErr: true},
		{desc: "target unreadable", tgtErr: readErr, expected: StatusTargetUnreadable, wantErr: true},
		{
			desc:     "source error wins over target error",
			srcErr:   readErr,
			tgtErr:   readErr,
			expected: StatusSourceUnreadable,
			wantErr:  true,
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			status, err := classify(tc.srcErr, tc.tgtErr, tc.src, tc.tgt)
			require.Equal(t, tc.expected, status)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestResultDelta(t *testing.T) {
	require.Equal(t, int64(-3), Result{SourceRows: 10, TargetRows: 7}.Delta())
	require.Equal(t, int64(2), Result{SourceRows: 5, TargetRows: 7}.Delta())
	require.True(t, Result{Status: StatusMatch}.Passed())
	require.False(t, Result{Status: StatusCountMismatch}.Passed())
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "MATCH", StatusMatch.String())
	require.Equal(t, "COUNT_MISMATCH", StatusCountMismatch.String())
	require.Equal(t, "SOURCE_UNREADABLE", StatusSourceUnreadable.String())
	require.Equal(t, "TARGET_UNREADABLE", StatusTargetUnreadable.String())
}
