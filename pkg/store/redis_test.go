package store

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nat-king-15/Master-Extractor-Bot/pkg/logging"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/manifest"
)

// newTestStore connects to the Redis named by REDIS_TEST_ADDR, skipping
// the test when none is configured. Tests use database 15 and flush it.
func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	log := logging.New("error", false, io.Discard)
	s, err := New(context.Background(), addr, "", 15, log)
	require.NoError(t, err)
	require.NoError(t, s.cl.FlushDB(context.Background()).Err())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSubscribers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddSubscriber(ctx, 100))
	require.NoError(t, s.AddSubscriber(ctx, 200))
	require.NoError(t, s.AddSubscriber(ctx, 100)) // duplicate add

	subs, err := s.Subscribers(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{100, 200}, subs)
}

func TestPremiumExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetPremium(ctx, 100, time.Now().Add(time.Hour)))
	ok, err := s.IsPremium(ctx, 100)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.SetPremium(ctx, 200, time.Now().Add(-time.Minute)))
	ok, err = s.IsPremium(ctx, 200)
	require.NoError(t, err)
	assert.False(t, ok, "expired grant must read as not premium")

	ok, err = s.IsPremium(ctx, 300)
	require.NoError(t, err)
	assert.False(t, ok, "unknown user must read as not premium")

	require.NoError(t, s.RemovePremium(ctx, 100))
	ok, err = s.IsPremium(ctx, 100)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBackupRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := manifest.New("Algebra")
	m.Add("Lecture 1", "https://cdn.example.com/v1.m3u8")
	m.Add("Notes", "https://cdn.example.com/n1.pdf")

	require.NoError(t, s.SaveBackup(ctx, 100, "algebra", m))

	names, err := s.ListBackups(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"algebra"}, names)

	got, err := s.GetBackup(ctx, 100, "algebra")
	require.NoError(t, err)
	assert.Equal(t, m.Entries, got.Entries)

	// Saving under the same name overwrites.
	m2 := manifest.New("Algebra")
	m2.Add("Lecture 2", "https://cdn.example.com/v2.m3u8")
	require.NoError(t, s.SaveBackup(ctx, 100, "algebra", m2))
	got, err = s.GetBackup(ctx, 100, "algebra")
	require.NoError(t, err)
	assert.Equal(t, m2.Entries, got.Entries)

	_, err = s.GetBackup(ctx, 100, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppxAPIDirectory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetAppxAPI(ctx, "studyapp", "https://studyapi.example.com"))
	u, err := s.GetAppxAPI(ctx, "studyapp")
	require.NoError(t, err)
	assert.Equal(t, "https://studyapi.example.com", u)

	all, err := s.ListAppxAPIs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"studyapp": "https://studyapi.example.com"}, all)

	require.NoError(t, s.DeleteAppxAPI(ctx, "studyapp"))
	_, err = s.GetAppxAPI(ctx, "studyapp")
	assert.ErrorIs(t, err, ErrNotFound)
}
