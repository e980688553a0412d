package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFillsDefaults(t *testing.T) {
	s := MixSettings{PreserveVocals: true}
	require.NoError(t, s.Normalize())

	assert.Equal(t, 16, s.IntroLengthBars)
	assert.Equal(t, 16, s.OutroLengthBars)
	assert.Equal(t, BeatDetectionAuto, s.BeatDetection)
	assert.True(t, s.PreserveVocals)
}

func TestNormalizeRejectsBadValues(t *testing.T) {
	cases := []struct {
		name     string
		settings MixSettings
	}{
		{"intro too long", MixSettings{IntroLengthBars: 65}},
		{"intro negative", MixSettings{IntroLengthBars: -4}},
		{"outro too long", MixSettings{OutroLengthBars: 128}},
		{"unknown beat method", MixSettings{BeatDetection: "essentia"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := tc.settings
			assert.Error(t, s.Normalize())
		})
	}
}

func TestSettingsScanValue(t *testing.T) {
	original := MixSettings{IntroLengthBars: 8, OutroLengthBars: 32, PreserveVocals: false, BeatDetection: BeatDetectionMadmom}

	raw, err := original.Value()
	require.NoError(t, err)

	var scanned MixSettings
	require.NoError(t, scanned.Scan(raw))
	assert.Equal(t, original, scanned)

	// A NULL column reads as the engine defaults.
	var fromNull MixSettings
	require.NoError(t, fromNull.Scan(nil))
	assert.Equal(t, DefaultMixSettings(), fromNull)

	assert.Error(t, scanned.Scan(42))
}

func TestStatusValid(t *testing.T) {
	for _, s := range []TrackStatus{StatusUploaded, StatusProcessing, StatusCompleted, StatusFailed} {
		assert.True(t, s.Valid(), "%s", s)
	}
	assert.False(t, TrackStatus("queued").Valid())
	assert.False(t, TrackStatus("").Valid())
}
