package persist

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tournethub/coordinator/internal/logging"
)

func TestMemorySaveLoadQuery(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	type payload struct {
		Name string `json:"name"`
	}
	require.NoError(t, store.Save(ctx, "tournament", "t1", payload{Name: "Cup"}))
	require.NoError(t, store.Save(ctx, "tournament", "t2", payload{Name: "League"}))

	var loaded payload
	require.NoError(t, store.Load(ctx, "tournament", "t1", &loaded))
	assert.Equal(t, "Cup", loaded.Name)

	err := store.Load(ctx, "tournament", "missing", &loaded)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	ids, err := store.Query(ctx, "tournament", nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t1", "t2"}, ids)

	ids, err = store.Query(ctx, "tournament", func(id string) bool { return id == "t2" })
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, ids)
}

type flakyStore struct {
	mu       sync.Mutex
	failures int
	saved    map[string]int
}

func (f *flakyStore) Save(_ context.Context, kind, id string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("transient failure")
	}
	if f.saved == nil {
		f.saved = make(map[string]int)
	}
	f.saved[kind+"/"+id]++
	return nil
}

func (f *flakyStore) Load(context.Context, string, string, any) error {
	return ErrRecordNotFound
}

func (f *flakyStore) Query(context.Context, string, func(string) bool) ([]string, error) {
	return nil, nil
}

func (f *flakyStore) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saved[key]
}

func TestWriteBehindDrainsOnClose(t *testing.T) {
	store := &flakyStore{}
	writer := NewWriteBehind(store, 2, logging.NewTestLogger())

	for i := 0; i < 10; i++ {
		writer.Enqueue("tournament", "t1", map[string]int{"round": i})
	}
	writer.Close()

	assert.Equal(t, 10, store.count("tournament/t1"), "Close must flush every queued write")
}

func TestWriteBehindRetriesOnce(t *testing.T) {
	store := &flakyStore{failures: 1}
	writer := NewWriteBehind(store, 1, logging.NewTestLogger())

	writer.Enqueue("tournament", "t1", "snapshot")
	writer.Close()

	assert.Equal(t, 1, store.count("tournament/t1"), "a transient failure must be retried")
}

func TestWriteBehindNilReceiverIsSafe(t *testing.T) {
	var writer *WriteBehind
	writer.Enqueue("tournament", "t1", nil)
	writer.Close()
}
