package cli

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chain-watchdog/internal/config"
	"chain-watchdog/internal/service"
)

func TestReportExitCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		out  string
	}{
		{
			name: "validation",
			err:  fmt.Errorf("load: %w", &config.ValidationError{Errors: []error{errors.New("runtime.mode is required")}}),
			code: exitValidationFailed,
			out:  "    - runtime.mode is required\n",
		},
		{
			name: "halted",
			err:  fmt.Errorf("runtime: %w", service.ErrHalted),
			code: exitHalted,
			out:  "[!] Runtime halted",
		},
		{
			name: "other",
			err:  errors.New("boom"),
			code: exitError,
			out:  "[!] boom\n",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			assert.Equal(t, tc.code, report(&buf, tc.err))
			assert.Contains(t, buf.String(), tc.out)
		})
	}
}

func TestExportWindow(t *testing.T) {
	now := time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)

	from, to, err := exportWindow("", "", 0, now)
	require.NoError(t, err)
	assert.Nil(t, from)
	assert.Nil(t, to)

	from, to, err = exportWindow("", "", 6*time.Hour, now)
	require.NoError(t, err)
	require.NotNil(t, from)
	assert.Nil(t, to)
	assert.Equal(t, now.Add(-6*time.Hour), *from)

	from, to, err = exportWindow("", "2025-01-01T10:00:00Z", time.Hour, now)
	require.NoError(t, err)
	require.NotNil(t, to)
	assert.Equal(t, time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC), *from)

	_, _, err = exportWindow("2025-01-01T00:00:00Z", "", time.Hour, now)
	assert.Error(t, err)

	_, _, err = exportWindow("yesterday", "", 0, now)
	assert.ErrorContains(t, err, "invalid --from value")
}
