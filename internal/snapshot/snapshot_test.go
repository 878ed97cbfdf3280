package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/andresmejia3/vigil/internal/types"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var now = time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)

func TestWriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "JSON", "sleep_detection_data.json")
	require.NoError(t, Write(path, []Record{New("1", "Driver", "Drowsy", 42.5, now)}))

	got, err := Read(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Drowsy", got[0].Status)
	assert.Equal(t, 42.5, got[0].SleepPercentage)
	assert.True(t, got[0].HasPercentage())
	assert.True(t, now.Equal(got[0].LastUpdate))
}

func TestRead_ToleratesReaders(t *testing.T) {
	dir := t.TempDir()

	_, err := Read(filepath.Join(dir, "missing.json"))
	assert.True(t, errors.Is(err, types.ErrNotFound))

	tests := []struct {
		name    string
		body    string
		wantErr error
		wantLen int
	}{
		{"truncated", `[{"id": "1", "sleep_perc`, types.ErrDecode, 0},
		{"empty", ``, types.ErrDecode, 0},
		{"scalar root", `42`, types.ErrDecode, 0},
		{"single object", `{"id": "1", "status": "Active", "sleep_percentage": 10}`, nil, 1},
		{"bad element skipped", `[7, "x", {"id": "2", "sleep_percentage": 3}]`, nil, 1},
		{"numeric id", `[{"id": 1, "type": "car", "status": "Active", "sleep_percentage": 42}]`, nil, 1},
		{"epoch last_update", `{"id": "1", "sleep_percentage": 42, "last_update": 1700000000}`, nil, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0644))
			got, err := Read(path)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.wantLen)
		})
	}
}

func TestDecode_MissingPercentage(t *testing.T) {
	got, err := Decode([]byte(`[{"id": "1", "status": "Not running"}]`))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].HasPercentage())
}

func TestDecode_LenientFields(t *testing.T) {
	got, err := Decode([]byte(`[{"id": 1, "type": 3, "status": null, "sleep_percentage": 42}]`))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
	assert.Empty(t, got[0].Type)
	assert.Empty(t, got[0].Status)
	assert.True(t, got[0].HasPercentage())
	assert.Equal(t, 42.0, got[0].SleepPercentage)

	got, err = Decode([]byte(`{"id": "1", "sleep_percentage": 42, "last_update": 1700000000.5}`))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, time.Unix(1700000000, 5e8).Equal(got[0].LastUpdate))

	got, err = Decode([]byte(`[{"id": "1", "sleep_percentage": "high"}, {"id": "2", "sleep_percentage": null}]`))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.False(t, got[0].HasPercentage())
	assert.False(t, got[1].HasPercentage())
}

func TestMirror_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	kv := NewRedisKVStore(client)
	ctx := context.Background()

	_, err := Fetch(ctx, kv, "1")
	assert.True(t, errors.Is(err, types.ErrNotFound))

	require.NoError(t, Mirror(ctx, kv, New("1", "Driver", "Sleeping", 80, now), time.Minute))
	assert.True(t, mr.Exists(Key("1")))

	got, err := Fetch(ctx, kv, "1")
	require.NoError(t, err)
	assert.Equal(t, "Sleeping", got.Status)
	assert.Equal(t, 80.0, got.SleepPercentage)

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists(Key("1")))
}

func TestPublisher_FinalRecordWins(t *testing.T) {
	mr := miniredis.RunT(t)
	kv := NewRedisKVStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	path := filepath.Join(t.TempDir(), "snap.json")

	p := NewPublisher(path, zap.NewNop(), WithMirror(kv, time.Minute), WithInterval(time.Hour))
	for i := 0; i < 50; i++ {
		p.Publish(New("1", "Driver", "Active", float64(i), now))
	}
	p.Close(New("1", "Driver", StatusNotRunning, 12, now))

	got, err := Read(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, StatusNotRunning, got[0].Status)
	assert.Equal(t, 12.0, got[0].SleepPercentage)

	fetched, err := Fetch(context.Background(), kv, "1")
	require.NoError(t, err)
	assert.Equal(t, StatusNotRunning, fetched.Status)
}

func TestPublisher_WritesLatest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	p := NewPublisher(path, zap.NewNop())
	defer p.Close(New("1", "Driver", StatusNotRunning, 0, now))

	p.Publish(New("1", "Driver", "Drowsy", 33, now))
	require.Eventually(t, func() bool {
		got, err := Read(path)
		return err == nil && len(got) == 1 && got[0].Status == "Drowsy"
	}, 2*time.Second, 10*time.Millisecond)
}
