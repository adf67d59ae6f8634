package util

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSHA256Hex(t *testing.T) {
	sum, err := SHA256Hex(strings.NewReader("hello"))
	require.NoError(t, err)
	require.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", sum)
}

func TestGetIDFromString(t *testing.T) {
	a := "https://example.com/owner/repo"
	b := "https://example.com/owner/other"

	require.Len(t, GetIDFromString(&a), 40)
	require.Equal(t, GetIDFromString(&a), GetIDFromString(&a))
	require.NotEqual(t, GetIDFromString(&a), GetIDFromString(&b))
}

func TestRetry(t *testing.T) {
	testCases := []struct {
		name      string
		attempts  int
		failFirst int
		wantCalls int
		wantErr   bool
	}{
		{name: "Success at first call", attempts: 3, failFirst: 0, wantCalls: 1},
		{name: "Success after failures", attempts: 3, failFirst: 2, wantCalls: 3},
		{name: "All attempts fail", attempts: 2, failFirst: 5, wantCalls: 2, wantErr: true},
		{name: "Zero attempts means one call", attempts: 0, failFirst: 5, wantCalls: 1, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), tc.attempts, time.Millisecond, func(int) error {
				calls++
				if calls <= tc.failFirst {
					return errors.New("boom")
				}

				return nil
			})

			require.Equal(t, tc.wantCalls, calls)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, 5, time.Hour, func(int) error {
		calls++
		return errors.New("boom")
	})

	require.Error(t, err)
	require.Equal(t, 1, calls)
}
