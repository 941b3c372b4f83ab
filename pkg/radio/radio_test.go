package radio

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"always_on", AlwaysOn, false},
		{"balanced", Balanced, false},
		{"Power-Save", PowerSave, false},
		{" deep_sleep_ready ", DeepSleepReady, false},
		{"turbo", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMode_TextRoundTrip(t *testing.T) {
	for m := AlwaysOn; m <= DeepSleepReady; m++ {
		text, err := m.MarshalText()
		require.NoError(t, err)

		var back Mode
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, m, back)
	}

	_, err := Mode(9).MarshalText()
	assert.ErrorIs(t, err, ErrInvalidMode)
	assert.Equal(t, "mode(9)", Mode(9).String())
}

func TestStatus_JSONNames(t *testing.T) {
	data, err := json.Marshal(Status{Mode: PowerSave, Activity: Medium, Sleep: SleepMax})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"mode":"power_save"`)
	assert.Contains(t, string(data), `"activity":"medium"`)
	assert.Contains(t, string(data), `"sleep":"max"`)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		rate uint32
		want Activity
	}{
		{0, Idle},
		{1, Low},
		{4, Low},
		{5, Medium},
		{19, Medium},
		{20, High},
		{1 << 31, High},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, classify(tt.rate), "rate %d", tt.rate)
	}
}
