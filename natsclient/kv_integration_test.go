//go:build integration

package natsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKVTestStore(ctx context.Context, t *testing.T, bucket string) (*Client, *KVStore) {
	t.Helper()
	natsContainer, natsURL := startNATSContainerWithJS(ctx, t)
	t.Cleanup(func() { _ = natsContainer.Terminate(ctx) })

	client, err := NewClient(natsURL)
	require.NoError(t, err)
	require.NoError(t, client.Connect(ctx))
	t.Cleanup(func() { _ = client.Close(ctx) })

	kvBucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "device endpoint records",
	})
	require.NoError(t, err)
	return client, client.NewKVStore(kvBucket)
}

func TestIntegration_KVStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, kv := newKVTestStore(ctx, t, "kv-roundtrip")

	rev, err := kv.Put(ctx, "urn:dev:1", []byte(`{"lifetime":120}`))
	require.NoError(t, err)
	assert.NotZero(t, rev)

	entry, err := kv.Get(ctx, "urn:dev:1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"lifetime":120}`), entry.Value)
	assert.Equal(t, rev, entry.Revision)

	require.NoError(t, kv.Delete(ctx, "urn:dev:1"))
	_, err = kv.Get(ctx, "urn:dev:1")
	assert.ErrorIs(t, err, ErrKVKeyNotFound)
}

func TestIntegration_KVUpdateWithRetry(t *testing.T) {
	ctx := context.Background()
	_, kv := newKVTestStore(ctx, t, "kv-cas")

	_, err := kv.Put(ctx, "urn:dev:2", []byte("1"))
	require.NoError(t, err)

	// On the first attempt, sneak a conflicting write in behind the
	// update function; the retry must pick up the new revision.
	attempts := 0
	err = kv.UpdateWithRetry(ctx, "urn:dev:2", func(current []byte) ([]byte, error) {
		attempts++
		if attempts == 1 {
			_, putErr := kv.Put(ctx, "urn:dev:2", []byte("interfering"))
			require.NoError(t, putErr)
		}
		return []byte("final"), nil
	})
	require.NoError(t, err)
	assert.Greater(t, attempts, 1, "first attempt must conflict and retry")

	entry, err := kv.Get(ctx, "urn:dev:2")
	require.NoError(t, err)
	assert.Equal(t, []byte("final"), entry.Value)
}

func TestIntegration_KVUpdateJSONConcurrent(t *testing.T) {
	ctx := context.Background()
	_, kv := newKVTestStore(ctx, t, "kv-json")

	// Concurrent folds into the same record, the way lifecycle events
	// for one endpoint race through the follower.
	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := kv.UpdateJSON(ctx, "urn:dev:3", func(current map[string]any) error {
				n, _ := current["events"].(float64)
				current["events"] = n + 1
				current[fmt.Sprintf("writer_%d", i)] = true
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	entry, err := kv.Get(ctx, "urn:dev:3")
	require.NoError(t, err)
	var record map[string]any
	require.NoError(t, json.Unmarshal(entry.Value, &record))
	assert.Equal(t, float64(writers), record["events"], "no update may be lost")
}

func TestIntegration_KVCreateAndRevisions(t *testing.T) {
	ctx := context.Background()
	_, kv := newKVTestStore(ctx, t, "kv-revisions")

	rev, err := kv.Create(ctx, "urn:dev:4", []byte("a"))
	require.NoError(t, err)

	_, err = kv.Create(ctx, "urn:dev:4", []byte("b"))
	assert.ErrorIs(t, err, ErrKVKeyExists)

	// Update with a stale revision is rejected.
	rev2, err := kv.Update(ctx, "urn:dev:4", []byte("c"), rev)
	require.NoError(t, err)
	_, err = kv.Update(ctx, "urn:dev:4", []byte("d"), rev)
	assert.ErrorIs(t, err, ErrKVRevisionMismatch)

	entry, err := kv.Get(ctx, "urn:dev:4")
	require.NoError(t, err)
	assert.Equal(t, rev2, entry.Revision)
	assert.Equal(t, []byte("c"), entry.Value)
}
