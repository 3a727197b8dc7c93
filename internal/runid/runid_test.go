package runid

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2025, time.October, 14, 18, 30, 0, 0, time.UTC)

func TestName(t *testing.T) {
	name, err := Name(day, "custom-grpc", Params{VUs: 20, Duration: 60 * time.Second, Hardware: "t3.medium"})
	require.NoError(t, err)
	assert.Equal(t, "141025-quickpizza-custom-grpc-20vus-60s-t3.medium.gz", name)
}

func TestNameDefaultsHardware(t *testing.T) {
	name, err := Name(day, "default-collector", Params{VUs: 1, Duration: 1500 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, "141025-quickpizza-default-collector-1vus-1500ms-t3.medium.gz", name)
}

func TestNameIsPure(t *testing.T) {
	p := Params{VUs: 20, Duration: time.Minute}
	a, err := Name(day, "http-json", p)
	require.NoError(t, err)
	b, err := Name(day.Add(3*time.Hour), "http-json", p)
	require.NoError(t, err)
	assert.Equal(t, a, b, "same day and label must give the same name")
}

func TestNameRejects(t *testing.T) {
	tests := []struct {
		name  string
		label string
		vus   int
		want  error
	}{
		{"empty label", "", 20, ErrEmptyLabel},
		{"blank label", "   ", 20, ErrEmptyLabel},
		{"slash", "a/b", 20, ErrInvalidLabel},
		{"backslash", `a\b`, 20, ErrInvalidLabel},
		{"no vus", "grpc", 0, ErrInvalidVUs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Name(day, tt.label, Params{VUs: tt.vus, Duration: time.Second})
			require.Error(t, err)
			assert.Equal(t, tt.want, errors.Cause(err))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "60s", FormatDuration(time.Minute))
	assert.Equal(t, "0s", FormatDuration(0))
	assert.Equal(t, "250ms", FormatDuration(250*time.Millisecond))
}

func TestParse(t *testing.T) {
	name, err := Name(day, "custom-http-json-gzip", Params{VUs: 20, Duration: time.Minute})
	require.NoError(t, err)

	info, ok := Parse("/data/results/" + name)
	require.True(t, ok)
	assert.Equal(t, "custom-http-json-gzip", info.Label)
	assert.Equal(t, 20, info.VUs)
	assert.Equal(t, time.Minute, info.Duration)
	assert.Equal(t, "t3.medium", info.Hardware)
	assert.Equal(t, "2025-10-14", info.Date.Format("2006-01-02"))
}

func TestParseFallsBackToStem(t *testing.T) {
	info, ok := Parse("somewhere/results.csv.gz")
	assert.False(t, ok)
	assert.Equal(t, "results", info.Label)
}
