package artifact

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

func TestWrite_FilenameLayout(t *testing.T) {
	s := NewStore(t.TempDir())
	at := time.Date(2026, 3, 14, 9, 30, 45, 123000000, time.UTC)

	path, err := s.Write(LayerDrift, "drift", payload{Name: "a"}, at)
	require.NoError(t, err)
	assert.Equal(t, "drift-20260314T093045.123.json", filepath.Base(path))
	assert.True(t, strings.HasSuffix(filepath.Dir(path), LayerDrift))
}

func TestWrite_TimestampIsUTC(t *testing.T) {
	s := NewStore(t.TempDir())
	est := time.FixedZone("EST", -5*3600)
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, est) // 14:00 UTC

	path, err := s.Write(LayerDrift, "drift", payload{}, at)
	require.NoError(t, err)
	assert.Equal(t, "drift-20260314T140000.000.json", filepath.Base(path))
}

func TestHistoryAndLatest(t *testing.T) {
	s := NewStore(t.TempDir())
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	for i, name := range []string{"old", "mid", "new"} {
		_, err := s.Write(LayerFutures, "forecast", payload{Name: name}, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	paths, err := s.History(LayerFutures)
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.True(t, sortedAscending(paths))

	var latest payload
	found, err := s.Latest(LayerFutures, &latest)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "new", latest.Name)
}

func TestLatest_EmptyLayer(t *testing.T) {
	s := NewStore(t.TempDir())
	var v payload
	found, err := s.Latest(LayerRunbook, &v)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestReadAll(t *testing.T) {
	s := NewStore(t.TempDir())
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := s.Write(LayerReview, "review", payload{Score: float64(i)}, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}

	all, err := ReadAll[payload](s, LayerReview)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, p := range all {
		assert.Equal(t, float64(i), p.Score, "oldest first")
	}
}

func sortedAscending(paths []string) bool {
	for i := 1; i < len(paths); i++ {
		if paths[i] < paths[i-1] {
			return false
		}
	}
	return true
}
