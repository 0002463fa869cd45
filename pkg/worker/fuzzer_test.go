package worker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftsec/fuzzfleet/pkg/errdefs"
	"github.com/driftsec/fuzzfleet/pkg/types"
)

func TestBuildArgs(t *testing.T) {
	f := NewFuzzer("ffuf")

	tests := []struct {
		name string
		opts *types.ScanOptions
		want []string
	}{
		{
			name: "defaults",
			opts: &types.ScanOptions{},
			want: []string{"-u", "https://t/FUZZ", "-w", "/wl/common.txt", "-o", "-", "-of", "json", "-t", "10"},
		},
		{
			name: "threads",
			opts: &types.ScanOptions{Threads: 40},
			want: []string{"-u", "https://t/FUZZ", "-w", "/wl/common.txt", "-o", "-", "-of", "json", "-t", "40"},
		},
		{
			name: "full options",
			opts: &types.ScanOptions{
				Threads:         20,
				Method:          "POST",
				Headers:         []string{"Authorization: Bearer x"},
				Data:            "a=1",
				Cookies:         "session=abc",
				Rate:            50,
				Recursive:       true,
				FollowRedirects: true,
			},
			want: []string{
				"-u", "https://t/FUZZ", "-w", "/wl/common.txt", "-o", "-", "-of", "json", "-t", "20",
				"-X", "POST", "-H", "Authorization: Bearer x", "-d", "a=1", "-b", "session=abc",
				"-rate", "50", "-recursion", "-r",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.buildArgs("https://t/FUZZ", "/wl/common.txt", tt.opts)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseOutput(t *testing.T) {
	output, err := parseOutput([]byte(`{"results":[{"url":"https://t/admin","status":200,"length":1234,"words":80,"lines":40}]}`))
	require.NoError(t, err)
	require.Len(t, output.Results, 1)
	require.Equal(t, "https://t/admin", output.Results[0].URL)
	require.Equal(t, 200, output.Results[0].Status)
	require.Equal(t, int64(1234), output.Results[0].Length)

	output, err = parseOutput([]byte(`{"results":[]}`))
	require.NoError(t, err)
	require.Empty(t, output.Results)

	_, err = parseOutput([]byte("fatal: something broke"))
	require.ErrorIs(t, err, errdefs.ErrFuzzerFailure)
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "abc", truncate("abc", 5))
	require.Equal(t, "abcde", truncate("abcdefgh", 5))
}
