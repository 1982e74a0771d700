package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExtendedDuration(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		durStr string
		expErr bool
		expDur time.Duration
	}{
		{"", true, 0},
		{"d", true, 0},
		{"gibberish", true, 0},
		{"-1d4h", true, 0},
		{"1000", false, 1000 * time.Millisecond},
		{"1.5", false, 1500 * time.Microsecond},
		{"10s", false, 10 * time.Second},
		{"2m", false, 2 * time.Minute},
		{"1d", false, 24 * time.Hour},
		{"1d2h", false, 26 * time.Hour},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.durStr, func(t *testing.T) {
			t.Parallel()
			result, err := ParseExtendedDuration(tc.durStr)
			if tc.expErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expDur, result)
		})
	}
}

func TestNullDurationJSON(t *testing.T) {
	t.Parallel()

	t.Run("null round trip", func(t *testing.T) {
		t.Parallel()
		var d NullDuration
		require.NoError(t, json.Unmarshal([]byte(`null`), &d))
		assert.False(t, d.Valid)
		data, err := json.Marshal(d)
		require.NoError(t, err)
		assert.Equal(t, `null`, string(data))
	})

	t.Run("string value", func(t *testing.T) {
		t.Parallel()
		var d NullDuration
		require.NoError(t, json.Unmarshal([]byte(`"2s"`), &d))
		assert.Equal(t, NullDurationFrom(2*time.Second), d)
		data, err := json.Marshal(d)
		require.NoError(t, err)
		assert.Equal(t, `"2s"`, string(data))
	})

	t.Run("unitless milliseconds", func(t *testing.T) {
		t.Parallel()
		var d NullDuration
		require.NoError(t, json.Unmarshal([]byte(`2000`), &d))
		assert.Equal(t, NullDurationFrom(2*time.Second), d)
	})
}

func TestNullDurationText(t *testing.T) {
	t.Parallel()

	var d NullDuration
	require.NoError(t, d.UnmarshalText(nil))
	assert.False(t, d.Valid)

	require.NoError(t, d.UnmarshalText([]byte(`10s`)))
	assert.Equal(t, NullDurationFrom(10*time.Second), d)
	assert.Equal(t, 10*time.Second, d.TimeDuration())
}

func TestNullDurationValueOrZero(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Duration(0), NullDuration{}.ValueOrZero())
	assert.Equal(t, Duration(time.Second), NullDurationFrom(time.Second).ValueOrZero())
}
