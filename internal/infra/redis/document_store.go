package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"campus-sync-service/internal/app"
	"campus-sync-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// DocumentStore is a Redis-backed app.DocumentStore.
// Layout:
//
//	HSET doc:{collection} {id} {json}
//	INCR doc:{collection}:seq          -> ID assignment
//	PUBLISH doc:changed:{collection}   -> change feed
//
// Every publish makes each subscriber re-read the full hash, so delivery
// keeps the full-replace contract: subscribers always receive the complete
// current result set, never a diff. Concurrent re-reads of the same
// collection are collapsed through singleflight.
type DocumentStore struct {
	client *redis.Client
	sf     singleflight.Group
}

func NewDocumentStore(client *redis.Client) *DocumentStore {
	return &DocumentStore{client: client}
}

func (d *DocumentStore) key(collection string) string {
	return "doc:" + collection
}

func (d *DocumentStore) seqKey(collection string) string {
	return "doc:" + collection + ":seq"
}

func channelFor(collection string) string {
	return "doc:changed:" + collection
}

type subscription struct {
	pubsub *redis.PubSub
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) Stop() {
	s.once.Do(func() {
		close(s.done)
		_ = s.pubsub.Close()
	})
}

// Subscribe delivers the initial snapshot before returning, then one snapshot
// per change notification until Stop.
func (d *DocumentStore) Subscribe(ctx context.Context, collection string, filter *app.Filter, fn app.SnapshotFunc) (app.Subscription, error) {
	pubsub := d.client.Subscribe(ctx, channelFor(collection))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", collection, err)
	}

	records, err := d.read(ctx, collection, filter)
	if err != nil {
		_ = pubsub.Close()
		return nil, err
	}
	fn(records, nil)

	sub := &subscription{pubsub: pubsub, done: make(chan struct{})}
	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-sub.done:
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				records, err := d.read(ctx, collection, filter)
				select {
				case <-sub.done:
					return
				default:
				}
				fn(records, err)
			}
		}
	}()
	return sub, nil
}

// read fetches the complete matching record set in ID order.
func (d *DocumentStore) read(ctx context.Context, collection string, filter *app.Filter) ([]app.Record, error) {
	v, err, _ := d.sf.Do(collection, func() (interface{}, error) {
		return d.client.HGetAll(ctx, d.key(collection)).Result()
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", collection, err)
	}
	raw := v.(map[string]string)

	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	records := make([]app.Record, 0, len(ids))
	for _, id := range ids {
		data := json.RawMessage(raw[id])
		if filter != nil && !matches(data, filter) {
			continue
		}
		records = append(records, app.Record{ID: id, Data: data})
	}
	return records, nil
}

func (d *DocumentStore) Get(ctx context.Context, collection, id string) (app.Record, error) {
	raw, err := d.client.HGet(ctx, d.key(collection), id).Result()
	if err == redis.Nil {
		return app.Record{}, domain.ErrNotFound
	}
	if err != nil {
		return app.Record{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return app.Record{ID: id, Data: json.RawMessage(raw)}, nil
}

func (d *DocumentStore) Add(ctx context.Context, collection string, doc any) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal %s doc: %w", collection, err)
	}
	seq, err := d.client.Incr(ctx, d.seqKey(collection)).Result()
	if err != nil {
		return "", fmt.Errorf("assign %s id: %w", collection, err)
	}
	id := fmt.Sprintf("%s-%d", collection, seq)
	if err := d.client.HSet(ctx, d.key(collection), id, string(raw)).Err(); err != nil {
		return "", fmt.Errorf("add %s: %w", collection, err)
	}
	d.publish(ctx, collection)
	return id, nil
}

func (d *DocumentStore) Set(ctx context.Context, collection, id string, doc any, merge bool) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s doc: %w", collection, err)
	}
	if merge {
		existing, err := d.client.HGet(ctx, d.key(collection), id).Result()
		if err != nil && err != redis.Nil {
			return fmt.Errorf("set %s/%s: %w", collection, id, err)
		}
		if err == nil {
			raw, err = mergeJSON(json.RawMessage(existing), raw)
			if err != nil {
				return err
			}
		}
	}
	if err := d.client.HSet(ctx, d.key(collection), id, string(raw)).Err(); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	d.publish(ctx, collection)
	return nil
}

func (d *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	removed, err := d.client.HDel(ctx, d.key(collection), id).Result()
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if removed == 0 {
		return domain.ErrNotFound
	}
	d.publish(ctx, collection)
	return nil
}

func (d *DocumentStore) publish(ctx context.Context, collection string) {
	// Change notification is best-effort; subscribers re-read on the next
	// publish either way.
	_ = d.client.Publish(ctx, channelFor(collection), "1").Err()
}

func matches(raw json.RawMessage, filter *app.Filter) bool {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return false
	}
	value, _ := doc[filter.Field].(string)
	return value == filter.Value
}

func mergeJSON(existing, patch json.RawMessage) (json.RawMessage, error) {
	var base, overlay map[string]any
	if err := json.Unmarshal(existing, &base); err != nil {
		return nil, fmt.Errorf("merge decode: %w", err)
	}
	if err := json.Unmarshal(patch, &overlay); err != nil {
		return nil, fmt.Errorf("merge decode: %w", err)
	}
	for k, v := range overlay {
		base[k] = v
	}
	return json.Marshal(base)
}
