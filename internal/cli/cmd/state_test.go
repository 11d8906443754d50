package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPurgeCutoffUsesConfiguredRetention(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	cutoff, window, err := purgeCutoff(now, 0, false, 90)
	require.NoError(t, err)
	require.Equal(t, now.AddDate(0, 0, -90), cutoff)
	require.Contains(t, window, "90 days")
}

func TestPurgeCutoffFlagOverridesRetention(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	cutoff, window, err := purgeCutoff(now, 7, false, 90)
	require.NoError(t, err)
	require.Equal(t, now.AddDate(0, 0, -7), cutoff)
	require.Contains(t, window, "7 days")
}

func TestPurgeCutoffAll(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	cutoff, window, err := purgeCutoff(now, 0, true, 90)
	require.NoError(t, err)
	require.Equal(t, now, cutoff)
	require.Equal(t, "(all)", window)
}

func TestPurgeCutoffRejectsBadWindows(t *testing.T) {
	now := time.Now()

	_, _, err := purgeCutoff(now, -1, false, 90)
	require.Error(t, err)

	// No flag and retention disabled in config.
	_, _, err = purgeCutoff(now, 0, false, 0)
	require.Error(t, err)
}

func TestFormatSize(t *testing.T) {
	require.Equal(t, "512 B", formatSize(512))
	require.Equal(t, "1.0 KB", formatSize(1024))
	require.Equal(t, "1.5 MB", formatSize(1536*1024))
}
