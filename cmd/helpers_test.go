package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/vibetest/internal/models"
	"github.com/joescharf/vibetest/internal/store"
)

// testStore opens a throwaway SQLite store for cmd-level tests.
func testStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "01HXYZABCDEF", shortID("01HXYZABCDEF0123456789"))
	assert.Equal(t, "short", shortID("short"))
	assert.Equal(t, "", shortID(""))
}

func TestTimeAgo(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "just now", timeAgo(now.Add(-30*time.Second)))
	assert.Equal(t, "5m ago", timeAgo(now.Add(-5*time.Minute)))
	assert.Equal(t, "3h ago", timeAgo(now.Add(-3*time.Hour)))
	assert.Equal(t, "2d ago", timeAgo(now.Add(-48*time.Hour)))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{59 * time.Second, "59s"},
		{60 * time.Second, "1m 0s"},
		{125 * time.Second, "2m 5s"},
		{2 * time.Hour, "2h 0m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.d), "duration %s", tt.d)
	}
}

func TestSessionDuration(t *testing.T) {
	created := time.Now().Add(-10 * time.Minute)
	done := created.Add(125 * time.Second)

	completed := &models.Session{Status: models.SessionStatusCompleted, CreatedAt: created, CompletedAt: &done}
	assert.Equal(t, "2m 5s", sessionDuration(completed))

	running := &models.Session{Status: models.SessionStatusRunning, CreatedAt: created}
	assert.NotEqual(t, "-", sessionDuration(running), "running sessions show elapsed time")

	pending := &models.Session{Status: models.SessionStatusPending, CreatedAt: created}
	assert.Equal(t, "-", sessionDuration(pending))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "0123456...", truncate("0123456789abc", 10))
}

func TestFindSession_ExactID(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateSession(ctx, &models.Session{ID: "alpha-one", BaseURL: "http://a.test"}))

	s, err := findSession(ctx, st, "alpha-one")
	require.NoError(t, err)
	assert.Equal(t, "http://a.test", s.BaseURL)
}

func TestFindSession_ByPrefix(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateSession(ctx, &models.Session{ID: "alpha-one", BaseURL: "http://a.test"}))
	require.NoError(t, st.CreateSession(ctx, &models.Session{ID: "beta-one", BaseURL: "http://b.test"}))

	s, err := findSession(ctx, st, "beta")
	require.NoError(t, err)
	assert.Equal(t, "beta-one", s.ID)
}

func TestFindSession_AmbiguousPrefix(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateSession(ctx, &models.Session{ID: "alpha-one", BaseURL: "http://a.test"}))
	require.NoError(t, st.CreateSession(ctx, &models.Session{ID: "alpha-two", BaseURL: "http://a.test"}))

	_, err := findSession(ctx, st, "alpha")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")
}

func TestFindSession_NotFound(t *testing.T) {
	st := testStore(t)

	_, err := findSession(context.Background(), st, "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestReadTasksFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- Sign up with a new account\n- \"Check the pricing page\"\n"), 0644))

	tasks, err := readTasksFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Sign up with a new account", "Check the pricing page"}, tasks)
}

func TestReadTasksFile_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	require.NoError(t, os.WriteFile(path, []byte("[]\n"), 0644))

	_, err := readTasksFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tasks")
}

func TestReadTasksFile_Missing(t *testing.T) {
	_, err := readTasksFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestReadTasksFile_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: a\nlist: here\n"), 0644))

	_, err := readTasksFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse tasks file")
}
