package endpointstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Penlect/emqxlwm2m/errors"
	"github.com/Penlect/emqxlwm2m/lwm2m"
	"github.com/Penlect/emqxlwm2m/natsclient"
	"github.com/Penlect/emqxlwm2m/pkg/retry"
)

// BucketName is the JetStream KV bucket holding endpoint records.
const BucketName = "emqxlwm2m_endpoints"

// Store provides persistence for endpoint records using NATS KV.
type Store struct {
	bucket  jetstream.KeyValue
	kvStore *natsclient.KVStore
}

// NewStore creates the endpoint store, creating the bucket if needed.
func NewStore(ctx context.Context, natsClient *natsclient.Client) (*Store, error) {
	if natsClient == nil {
		return nil, errors.WrapInvalid(nil, "endpointstore", "NewStore", "nats client cannot be nil")
	}

	// JetStream may still be electing a leader right after connect, so
	// bucket creation is retried rather than failed outright.
	bucket, err := retry.DoWithResult(ctx, retry.Persistent(), func() (jetstream.KeyValue, error) {
		return natsClient.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
			Bucket:      BucketName,
			Description: "Known LwM2M endpoints and their registration state",
			History:     5,
		})
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "endpointstore", "NewStore", "create KV bucket")
	}

	return &Store{
		bucket:  bucket,
		kvStore: natsClient.NewKVStore(bucket),
	}, nil
}

// Apply folds one lifecycle event into the endpoint's record, creating it
// on first sight. Concurrent writers are handled with CAS retry.
func (s *Store) Apply(ctx context.Context, lc *lwm2m.Lifecycle) error {
	if lc == nil || lc.Endpoint == "" {
		return errors.WrapInvalid(nil, "endpointstore", "Apply", "event without endpoint")
	}

	key := encodeKey(lc.Endpoint)
	err := s.kvStore.UpdateWithRetry(ctx, key, func(current []byte) ([]byte, error) {
		var rec Record
		if len(current) > 0 {
			if err := json.Unmarshal(current, &rec); err != nil {
				return nil, fmt.Errorf("unmarshal record %s: %w", key, err)
			}
		}
		rec.fold(lc)
		return json.Marshal(&rec)
	})
	if err != nil {
		return errors.WrapTransient(err, "endpointstore", "Apply", "CAS update")
	}
	return nil
}

// Get retrieves one endpoint's record.
func (s *Store) Get(ctx context.Context, endpoint string) (*Record, error) {
	if endpoint == "" {
		return nil, errors.WrapInvalid(nil, "endpointstore", "Get", "endpoint cannot be empty")
	}

	entry, err := s.kvStore.Get(ctx, encodeKey(endpoint))
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: endpoint %q", errors.ErrNotFound, endpoint),
				"endpointstore", "Get", "lookup")
		}
		return nil, errors.WrapTransient(err, "endpointstore", "Get", "get from KV")
	}

	var rec Record
	if err := json.Unmarshal(entry.Value, &rec); err != nil {
		return nil, errors.WrapFatal(err, "endpointstore", "Get", "unmarshal record")
	}
	return &rec, nil
}

// Delete removes an endpoint's record.
func (s *Store) Delete(ctx context.Context, endpoint string) error {
	if endpoint == "" {
		return errors.WrapInvalid(nil, "endpointstore", "Delete", "endpoint cannot be empty")
	}
	if err := s.kvStore.Delete(ctx, encodeKey(endpoint)); err != nil {
		return errors.WrapTransient(err, "endpointstore", "Delete", "delete from KV")
	}
	return nil
}

// List retrieves every known endpoint record.
func (s *Store) List(ctx context.Context) ([]*Record, error) {
	keys, err := s.bucket.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, errors.WrapTransient(err, "endpointstore", "List", "list KV keys")
	}

	records := make([]*Record, 0, len(keys))
	for _, key := range keys {
		rec, err := s.Get(ctx, decodeKey(key))
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				continue
			}
			return nil, errors.WrapTransient(err, "endpointstore", "List",
				fmt.Sprintf("get record %s", key))
		}
		records = append(records, rec)
	}
	return records, nil
}
