package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps documents as JSON values in Redis and fans change
// notifications out over Pub/Sub, one channel per collection. DEL's atomic
// removed-count doubles as the delete-if-exists claim primitive.
//
// Keys:
//
//	store:doc:<collection>:<id>  document JSON
//	store:idx:<collection>       list of ids in insertion order
//	store:chg:<collection>       pub/sub channel for wireChange payloads
type RedisStore struct {
	rdb *redis.Client
}

type wireChange struct {
	Type ChangeType      `json:"type"`
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// NewRedisStore wraps an already-connected client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func docKey(collection, id string) string { return "store:doc:" + collection + ":" + id }
func idxKey(collection string) string     { return "store:idx:" + collection }
func chgKey(collection string) string     { return "store:chg:" + collection }

func wrapUnavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

func (r *RedisStore) publish(ctx context.Context, collection string, c wireChange) {
	payload, err := json.Marshal(c)
	if err != nil {
		log.Printf("ERROR: encoding change for %s: %v", collection, err)
		return
	}
	// A lost notification only delays observers until their next snapshot;
	// the document write itself already succeeded.
	if err := r.rdb.Publish(ctx, chgKey(collection), payload).Err(); err != nil {
		log.Printf("ERROR: publishing change for %s: %v", collection, err)
	}
}

func (r *RedisStore) Create(ctx context.Context, collection string, doc any) (string, error) {
	raw, err := encodeDoc(doc)
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, docKey(collection, id), []byte(raw), 0)
	pipe.RPush(ctx, idxKey(collection), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", wrapUnavailable("create "+collection, err)
	}
	r.publish(ctx, collection, wireChange{Type: ChangeAdded, ID: id, Data: raw})
	return id, nil
}

func (r *RedisStore) Get(ctx context.Context, collection, id string, out any) (bool, error) {
	raw, err := r.rdb.Get(ctx, docKey(collection, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, wrapUnavailable("get "+collection, err)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return true, fmt.Errorf("decode document %s/%s: %w", collection, id, err)
		}
	}
	return true, nil
}

func (r *RedisStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	key := docKey(collection, id)
	// Read-merge-write under WATCH so concurrent partial updates to the
	// same document (both sides flipping status, typing writes racing a
	// signaling write) never clobber each other's fields.
	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		merged, err := mergeFields(raw, fields)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, []byte(merged), 0)
			return nil
		})
		if err != nil {
			return err
		}
		r.publish(ctx, collection, wireChange{Type: ChangeModified, ID: id, Data: merged})
		return nil
	}
	for attempt := 0; attempt < 5; attempt++ {
		err := r.rdb.Watch(ctx, txn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && errors.Is(err, redis.ErrClosed) {
			return wrapUnavailable("update "+collection, err)
		}
		return err
	}
	return wrapUnavailable("update "+collection, redis.TxFailedErr)
}

func (r *RedisStore) DeleteIfExists(ctx context.Context, collection, id string) (bool, error) {
	key := docKey(collection, id)
	// Capture the body first so removal observers get the final state; the
	// claim itself is the DEL below.
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, wrapUnavailable("delete "+collection, err)
	}
	n, err := r.rdb.Del(ctx, key).Result()
	if err != nil {
		return false, wrapUnavailable("delete "+collection, err)
	}
	if n == 0 {
		// Someone else's DEL won the race.
		return false, nil
	}
	if err := r.rdb.LRem(ctx, idxKey(collection), 1, id).Err(); err != nil {
		log.Printf("WARNING: removing %s/%s from index: %v", collection, id, err)
	}
	r.publish(ctx, collection, wireChange{Type: ChangeRemoved, ID: id, Data: raw})
	return true, nil
}

func (r *RedisStore) Find(ctx context.Context, collection string, filter Filter, limit int) ([]Snapshot, error) {
	ids, err := r.rdb.LRange(ctx, idxKey(collection), 0, -1).Result()
	if err != nil {
		return nil, wrapUnavailable("find "+collection, err)
	}
	var out []Snapshot
	for _, id := range ids {
		raw, err := r.rdb.Get(ctx, docKey(collection, id)).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // deleted between LRANGE and GET
		}
		if err != nil {
			return nil, wrapUnavailable("find "+collection, err)
		}
		snap := Snapshot{ID: id, Data: raw}
		if !filter.Matches(snap) {
			continue
		}
		out = append(out, snap)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Subscribe attaches to the collection's change channel, then replays the
// current matching documents as ChangeAdded. The seen-set inside the
// subscription absorbs the snapshot/stream overlap.
func (r *RedisStore) Subscribe(ctx context.Context, collection string, filter Filter) (*Subscription, error) {
	pubsub := r.rdb.Subscribe(ctx, chgKey(collection))
	// Force the SUBSCRIBE onto the wire before the snapshot read so no
	// change can fall between them.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, wrapUnavailable("subscribe "+collection, err)
	}

	snaps, err := r.Find(ctx, collection, filter, 0)
	if err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	var sub *Subscription
	sub = newSubscription(func() { _ = pubsub.Close() })
	for _, snap := range snaps {
		sub.deliver(ChangeAdded, snap, true)
	}
	go sub.run()
	go func() {
		for msg := range pubsub.Channel() {
			var wc wireChange
			if err := json.Unmarshal([]byte(msg.Payload), &wc); err != nil {
				log.Printf("ERROR: decoding change on %s: %v", msg.Channel, err)
				continue
			}
			snap := Snapshot{ID: wc.ID, Data: wc.Data}
			sub.deliver(wc.Type, snap, filter.Matches(snap))
		}
	}()
	return sub, nil
}

var _ Store = (*RedisStore)(nil)
