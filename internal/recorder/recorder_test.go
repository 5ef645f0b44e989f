package recorder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(y int, m time.Month, d int) func() time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func TestResolvePathFirstStartUsesExpandedName(t *testing.T) {
	dir := t.TempDir()
	template := filepath.Join(dir, "rec-%Y%m%d.mkv")

	got, err := ResolvePath(template, time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "rec-20240315.mkv"), got)
}

func TestResolvePathCollisionAppendsSuffix(t *testing.T) {
	dir := t.TempDir()
	template := filepath.Join(dir, "rec-%Y%m%d.mkv")
	date := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)

	first, err := ResolvePath(template, date)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(first, []byte("x"), 0o600))

	second, err := ResolvePath(template, date)
	require.NoError(t, err)
	assert.Equal(t, first+".000", second)
}

func TestResolvePathCreatesParentDirectory(t *testing.T) {
	dir := t.TempDir()
	template := filepath.Join(dir, "nested", "deeper", "rec-%Y.mkv")

	got, err := ResolvePath(template, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	info, err := os.Stat(filepath.Dir(got))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestExpandStrftimeAllFields(t *testing.T) {
	got := expandStrftime("%Y%m%d-%H%M%S", time.Date(2024, time.March, 5, 9, 7, 2, 0, time.UTC))
	assert.Equal(t, "20240305-090702", got)
}

func TestNewRecorderDefaultsToSendEOSOnStop(t *testing.T) {
	r := New(Config{Template: filepath.Join(t.TempDir(), "out.mkv")}, testLogger(), fixedClock(2024, time.March, 15))
	assert.True(t, r.Worker().SendEOSOnStop)
}
