package service_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/accelkit/acceldiag/internal/service"
)

func TestParseCron(t *testing.T) {
	t.Parallel()
	cases := []struct {
		scenario string
		given    string
		wantErr  string
	}{
		{"valid_5_fields", "*/15 * * * *", ""},
		{"valid_daily", "0 3 * * *", ""},
		{"macro_hourly", "@hourly", ""},
		{"macro_every", "@every 5m", ""},
		{"surrounding_whitespace", "  @daily  ", ""},
		{"invalid_field_count_4", "* * * *", "expected exactly 5 fields"},
		{"invalid_field_count_6", "0 */2 * * * *", "expected exactly 5 fields"},
		{"invalid_token", "* * 32 * *", "above maximum"},
		{"empty", "", "empty cron expression"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			err := service.ParseCron(tc.given)
			if tc.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.ErrorContains(t, err, tc.wantErr)
			}
		})
	}
}
