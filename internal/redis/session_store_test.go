package redis_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"sentinal-media/internal/domain/media"
	sentinalredis "sentinal-media/internal/redis"
	sentinal_errors "sentinal-media/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, ttl time.Duration) (*sentinalredis.SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return sentinalredis.NewSessionStore(client, sentinalredis.SessionStoreConfig{TTL: ttl}), mr
}

func newSession(total int) *media.UploadSession {
	return media.NewUploadSession(uuid.New(), "photo.png", "image/png", 2048, total, media.MediaTypeImage, time.Now())
}

func TestSessionStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t, time.Hour)
	session := newSession(3)

	require.NoError(t, store.Create(ctx, session))

	got, err := store.Get(ctx, session.UploadID)
	require.NoError(t, err)
	assert.Equal(t, session.UploadID, got.UploadID)
	assert.Equal(t, session.UploaderID, got.UploaderID)
	assert.Equal(t, "photo.png", got.FileName)
	assert.Equal(t, "image/png", got.MimeType)
	assert.Equal(t, int64(2048), got.TotalSizeBytes)
	assert.Equal(t, 3, got.TotalChunkCount)
	assert.Equal(t, media.MediaTypeImage, got.MediaType)
	assert.Equal(t, session.CreatedAt.UnixMilli(), got.CreatedAt.UnixMilli())
	assert.Equal(t, 0, got.ReceivedCount())
}

func TestSessionStore_GetMissing(t *testing.T) {
	store, _ := newStore(t, time.Hour)

	_, err := store.Get(context.Background(), uuid.New())

	assert.ErrorIs(t, err, sentinal_errors.ErrUploadSessionNotFound)
}

func TestSessionStore_AddChunkIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t, time.Hour)
	session := newSession(2)
	require.NoError(t, store.Create(ctx, session))

	n, err := store.AddChunk(ctx, session.UploadID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.AddChunk(ctx, session.UploadID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.Get(ctx, session.UploadID)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, got.ReceivedChunks())
	assert.False(t, got.IsComplete())
}

func TestSessionStore_AddChunkOutOfRange(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t, time.Hour)
	session := newSession(3)
	require.NoError(t, store.Create(ctx, session))

	_, err := store.AddChunk(ctx, session.UploadID, 5)
	assert.ErrorIs(t, err, sentinal_errors.ErrInvalidChunkNumber)

	_, err = store.AddChunk(ctx, session.UploadID, -1)
	assert.ErrorIs(t, err, sentinal_errors.ErrInvalidChunkNumber)

	got, err := store.Get(ctx, session.UploadID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.ReceivedCount())
}

func TestSessionStore_AddChunkMissingSession(t *testing.T) {
	store, _ := newStore(t, time.Hour)

	_, err := store.AddChunk(context.Background(), uuid.New(), 0)

	assert.ErrorIs(t, err, sentinal_errors.ErrUploadSessionNotFound)
}

func TestSessionStore_ConcurrentChunksAllRegister(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t, time.Hour)
	session := newSession(50)
	require.NoError(t, store.Create(ctx, session))

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := store.AddChunk(ctx, session.UploadID, n); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := store.Get(ctx, session.UploadID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.ReceivedCount())
	assert.True(t, got.IsComplete())
}

func TestSessionStore_SessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t, time.Hour)
	a, b := newSession(2), newSession(2)
	require.NoError(t, store.Create(ctx, a))
	require.NoError(t, store.Create(ctx, b))

	_, err := store.AddChunk(ctx, a.UploadID, 0)
	require.NoError(t, err)
	_, err = store.AddChunk(ctx, a.UploadID, 1)
	require.NoError(t, err)

	gotA, err := store.Get(ctx, a.UploadID)
	require.NoError(t, err)
	gotB, err := store.Get(ctx, b.UploadID)
	require.NoError(t, err)
	assert.True(t, gotA.IsComplete())
	assert.Equal(t, 0, gotB.ReceivedCount())
}

func TestSessionStore_TTLRefreshedOnChunk(t *testing.T) {
	ctx := context.Background()
	store, mr := newStore(t, time.Minute)
	session := newSession(2)
	require.NoError(t, store.Create(ctx, session))

	mr.FastForward(50 * time.Second)
	_, err := store.AddChunk(ctx, session.UploadID, 0)
	require.NoError(t, err)

	mr.FastForward(50 * time.Second)
	got, err := store.Get(ctx, session.UploadID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ReceivedCount())

	ttl, err := store.ExpiresIn(ctx, session.UploadID)
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, 10*time.Second+time.Millisecond)
}

func TestSessionStore_Expires(t *testing.T) {
	ctx := context.Background()
	store, mr := newStore(t, time.Minute)
	session := newSession(1)
	require.NoError(t, store.Create(ctx, session))

	mr.FastForward(61 * time.Second)

	_, err := store.Get(ctx, session.UploadID)
	assert.ErrorIs(t, err, sentinal_errors.ErrUploadSessionNotFound)
	_, err = store.AddChunk(ctx, session.UploadID, 0)
	assert.ErrorIs(t, err, sentinal_errors.ErrUploadSessionNotFound)
}

func TestSessionStore_DeleteOnce(t *testing.T) {
	ctx := context.Background()
	store, mr := newStore(t, time.Hour)
	session := newSession(1)
	require.NoError(t, store.Create(ctx, session))
	_, err := store.AddChunk(ctx, session.UploadID, 0)
	require.NoError(t, err)

	deleted, err := store.Delete(ctx, session.UploadID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.Delete(ctx, session.UploadID)
	require.NoError(t, err)
	assert.False(t, deleted)

	assert.False(t, mr.Exists("uploads:{"+session.UploadID.String()+"}"))
	assert.False(t, mr.Exists("uploads:{"+session.UploadID.String()+"}:chunks"))
}

func TestPublisher_AppendsToExchangeStream(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	pub := sentinalredis.NewPublisher(client)
	require.NoError(t, pub.Publish(ctx, "media.exchange", "media.image.process", []byte(`{"file_id":1}`)))

	entries, err := client.XRange(ctx, sentinalredis.Stream("media.exchange", "media.image.process"), "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, `{"file_id":1}`, entries[0].Values["payload"])
	assert.Equal(t, "media.exchange", entries[0].Values["exchange"])
	assert.Equal(t, "media.image.process", entries[0].Values["routing_key"])
}

func TestPublisher_MessageKeptWithoutConsumer(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	// Nobody is listening when the message is written.
	pub := sentinalredis.NewPublisher(client)
	require.NoError(t, pub.Publish(ctx, "media.exchange", "media.audio.process", []byte(`{"file_id":2}`)))
	require.NoError(t, pub.Publish(ctx, "media.exchange", "media.audio.process", []byte(`{"file_id":3}`)))

	// A worker that starts later reads both from the beginning.
	stream := sentinalredis.Stream("media.exchange", "media.audio.process")
	require.NoError(t, client.XGroupCreate(ctx, stream, "media-workers", "0").Err())
	res, err := client.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    "media-workers",
		Consumer: "worker-1",
		Streams:  []string{stream, ">"},
		Count:    10,
	}).Result()
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Len(t, res[0].Messages, 2)
	assert.Equal(t, `{"file_id":2}`, res[0].Messages[0].Values["payload"])
	assert.Equal(t, `{"file_id":3}`, res[0].Messages[1].Values["payload"])
}

func TestSessionStore_KeysShareHashSlot(t *testing.T) {
	ctx := context.Background()
	store, mr := newStore(t, time.Hour)
	session := newSession(2)
	require.NoError(t, store.Create(ctx, session))
	_, err := store.AddChunk(ctx, session.UploadID, 1)
	require.NoError(t, err)

	id := session.UploadID.String()
	assert.True(t, mr.Exists("uploads:{"+id+"}"))
	assert.True(t, mr.Exists("uploads:{"+id+"}:chunks"))

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	keys, err := client.Keys(ctx, "uploads:*").Result()
	require.NoError(t, err)
	for _, k := range keys {
		assert.Contains(t, k, "{"+id+"}")
	}
}
