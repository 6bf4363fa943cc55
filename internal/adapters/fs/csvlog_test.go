package fs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testHeader = Header([]string{"ALT", "LABEL"}, "TEAM_NAME")

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestHeader(t *testing.T) {
	assert.Equal(t, []string{"A", "B", "TEAM_NAME"}, Header([]string{"A", "B"}, "TEAM_NAME"))
	assert.Equal(t, []string{"A", "TEAM_NAME"}, Header([]string{"A", "TEAM_NAME"}, "TEAM_NAME"))
	assert.Equal(t, []string{"A"}, Header([]string{"A"}, ""))
}

func TestCSVLog_Append(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "data.csv")
	l := NewCSVLog(path, testHeader)
	defer l.Close()

	require.NoError(t, l.Append([]string{"120.5", "ok", "COSMOS"}))
	require.NoError(t, l.Append([]string{"abc", `quoted"x`, "COSMOS"}))

	// Appends are visible without an explicit flush.
	newGoldie(t).Assert(t, "append", readFile(t, path))
}

func TestCSVLog_HeaderWrittenOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")

	l := NewCSVLog(path, testHeader)
	require.NoError(t, l.Append([]string{"1", "a", "COSMOS"}))
	require.NoError(t, l.Close())

	l = NewCSVLog(path, testHeader)
	require.NoError(t, l.Append([]string{"2", "b", "COSMOS"}))
	require.NoError(t, l.Close())

	lines := strings.Split(strings.TrimSpace(string(readFile(t, path))), "\n")
	assert.Equal(t, []string{"ALT,LABEL,TEAM_NAME", "1,a,COSMOS", "2,b,COSMOS"}, lines)
}

func TestCSVLog_ResetIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	l := NewCSVLog(path, testHeader)
	defer l.Close()

	require.NoError(t, l.Append([]string{"1", "a", "COSMOS"}))

	g := newGoldie(t)
	require.NoError(t, l.Reset())
	g.Assert(t, "reset", readFile(t, path))
	require.NoError(t, l.Reset())
	g.Assert(t, "reset", readFile(t, path))

	// The log keeps appending after a reset.
	require.NoError(t, l.Append([]string{"2", "b", "COSMOS"}))
	assert.Equal(t, "ALT,LABEL,TEAM_NAME\n2,b,COSMOS\n", string(readFile(t, path)))
}

func TestCSVLog_Export(t *testing.T) {
	dir := t.TempDir()
	l := NewCSVLog(filepath.Join(dir, "data.csv"), testHeader)
	l.now = func() time.Time { return time.Date(2024, 6, 1, 14, 30, 5, 0, time.FixedZone("X", 3600)) }
	defer l.Close()

	require.NoError(t, l.Append([]string{"1", "a", "COSMOS"}))

	dest, err := l.Export(filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out", "data-20240601T133005Z.csv"), dest)
	assert.Equal(t, readFile(t, l.Path()), readFile(t, dest))

	// Exporting twice in the same second must not clobber the first copy.
	_, err = l.Export(filepath.Join(dir, "out"))
	assert.Error(t, err)
}

func TestCSVLog_SetHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	l := NewCSVLog(path, testHeader)
	defer l.Close()

	require.NoError(t, l.Open())
	l.SetHeader([]string{"X", "Y"})
	require.NoError(t, l.Reset())

	assert.Equal(t, "X,Y\n", string(readFile(t, path)))
}
