package protocol

import (
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStampUnmarshal(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantLower time.Time
		wantUpper time.Time
		dateOnly  bool
		wantErr   bool
	}{
		{
			name:      "datetime form",
			input:     `"2026-05-01 10:30:00"`,
			wantLower: time.Date(2026, 5, 1, 10, 30, 0, 0, time.UTC),
			wantUpper: time.Date(2026, 5, 1, 10, 30, 0, 0, time.UTC),
		},
		{
			name:      "date-only form widens",
			input:     `"2026-05-01"`,
			wantLower: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
			wantUpper: time.Date(2026, 5, 1, 23, 59, 59, 0, time.UTC),
			dateOnly:  true,
		},
		{name: "empty", input: `""`, wantErr: true},
		{name: "garbage", input: `"yesterday"`, wantErr: true},
		{name: "wrong separator", input: `"2026-05-01T10:30:00"`, wantErr: true},
		{name: "number", input: `1714557000`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Stamp

			err := json.Unmarshal([]byte(tt.input), &s)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.True(t, s.IsSet())
			assert.Equal(t, tt.dateOnly, s.DateOnly())
			assert.Equal(t, tt.wantLower, s.Lower())
			assert.Equal(t, tt.wantUpper, s.Upper())
		})
	}
}

func TestDateUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{name: "date", input: `"2026-05-01"`, want: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)},
		{name: "datetime rejected", input: `"2026-05-01 10:30:00"`, wantErr: true},
		{name: "empty", input: `""`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Date

			err := json.Unmarshal([]byte(tt.input), &d)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.True(t, d.IsSet())
			assert.Equal(t, tt.want, d.Time())
		})
	}
}
