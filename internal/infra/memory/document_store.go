package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"campus-sync-service/internal/app"
	"campus-sync-service/internal/domain"
)

// DocumentStore is an in-process app.DocumentStore. Every mutation pushes a
// complete, freshly computed result set to each live subscription on the
// affected collection, synchronously in the mutating call. It backs local
// runs and doubles as the test fake.
type DocumentStore struct {
	mu          sync.Mutex
	collections map[string]map[string]json.RawMessage
	subs        map[int]*subscription
	nextDoc     int
	nextSub     int
	seq         uint64
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		collections: make(map[string]map[string]json.RawMessage),
		subs:        make(map[int]*subscription),
	}
}

type subscription struct {
	store      *DocumentStore
	id         int
	collection string
	filter     *app.Filter
	fn         app.SnapshotFunc

	deliverMu sync.Mutex
	lastSeq   uint64
}

func (s *subscription) Stop() {
	s.store.mu.Lock()
	delete(s.store.subs, s.id)
	s.store.mu.Unlock()
}

// deliver serializes snapshot callbacks per subscription. Sequence numbers are
// assigned under the store mutex, so a snapshot computed before another can
// never overwrite it.
func (s *subscription) deliver(records []app.Record, seq uint64) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if seq < s.lastSeq {
		return
	}
	s.lastSeq = seq
	s.fn(records, nil)
}

func (s *subscription) deliverErr(err error) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	s.fn(nil, err)
}

// Subscribe registers a live query and delivers the initial snapshot before
// returning.
func (d *DocumentStore) Subscribe(_ context.Context, collection string, filter *app.Filter, fn app.SnapshotFunc) (app.Subscription, error) {
	d.mu.Lock()
	d.nextSub++
	sub := &subscription{store: d, id: d.nextSub, collection: collection, filter: filter, fn: fn}
	d.subs[sub.id] = sub
	d.seq++
	seq := d.seq
	records := d.snapshotLocked(collection, filter)
	d.mu.Unlock()

	sub.deliver(records, seq)
	return sub, nil
}

func (d *DocumentStore) Get(_ context.Context, collection, id string) (app.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	raw, ok := d.collections[collection][id]
	if !ok {
		return app.Record{}, domain.ErrNotFound
	}
	return app.Record{ID: id, Data: raw}, nil
}

func (d *DocumentStore) Add(_ context.Context, collection string, doc any) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal %s doc: %w", collection, err)
	}
	d.mu.Lock()
	d.nextDoc++
	id := fmt.Sprintf("%s-%d", collection, d.nextDoc)
	d.ensureLocked(collection)[id] = raw
	deliveries := d.pendingLocked(collection)
	d.mu.Unlock()

	dispatch(deliveries)
	return id, nil
}

func (d *DocumentStore) Set(_ context.Context, collection, id string, doc any, merge bool) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s doc: %w", collection, err)
	}
	d.mu.Lock()
	col := d.ensureLocked(collection)
	if merge {
		if existing, ok := col[id]; ok {
			raw, err = mergeJSON(existing, raw)
			if err != nil {
				d.mu.Unlock()
				return err
			}
		}
	}
	col[id] = raw
	deliveries := d.pendingLocked(collection)
	d.mu.Unlock()

	dispatch(deliveries)
	return nil
}

func (d *DocumentStore) Delete(_ context.Context, collection, id string) error {
	d.mu.Lock()
	if _, ok := d.collections[collection][id]; !ok {
		d.mu.Unlock()
		return domain.ErrNotFound
	}
	delete(d.collections[collection], id)
	deliveries := d.pendingLocked(collection)
	d.mu.Unlock()

	dispatch(deliveries)
	return nil
}

// FailSubscriptions delivers an error to every live subscription on the
// collection, simulating a dropped change feed. Test hook.
func (d *DocumentStore) FailSubscriptions(collection string, err error) {
	d.mu.Lock()
	var subs []*subscription
	for _, sub := range d.subs {
		if sub.collection == collection {
			subs = append(subs, sub)
		}
	}
	d.mu.Unlock()
	for _, sub := range subs {
		sub.deliverErr(err)
	}
}

// SubscriberCount reports live subscriptions for a collection. Test hook.
func (d *DocumentStore) SubscriberCount(collection string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, sub := range d.subs {
		if sub.collection == collection {
			n++
		}
	}
	return n
}

type delivery struct {
	sub     *subscription
	records []app.Record
	seq     uint64
}

func dispatch(deliveries []delivery) {
	for _, del := range deliveries {
		del.sub.deliver(del.records, del.seq)
	}
}

func (d *DocumentStore) ensureLocked(collection string) map[string]json.RawMessage {
	col, ok := d.collections[collection]
	if !ok {
		col = make(map[string]json.RawMessage)
		d.collections[collection] = col
	}
	return col
}

func (d *DocumentStore) pendingLocked(collection string) []delivery {
	d.seq++
	seq := d.seq
	var out []delivery
	for _, sub := range d.subs {
		if sub.collection != collection {
			continue
		}
		out = append(out, delivery{sub: sub, records: d.snapshotLocked(collection, sub.filter), seq: seq})
	}
	return out
}

// snapshotLocked computes the full matching result set in ID order.
func (d *DocumentStore) snapshotLocked(collection string, filter *app.Filter) []app.Record {
	col := d.collections[collection]
	ids := make([]string, 0, len(col))
	for id := range col {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	records := make([]app.Record, 0, len(ids))
	for _, id := range ids {
		raw := col[id]
		if filter != nil && !matches(raw, filter) {
			continue
		}
		records = append(records, app.Record{ID: id, Data: raw})
	}
	return records
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
