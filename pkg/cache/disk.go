package cache

import (
	"encoding/binary"
	"os"
	"sync"
	"time"

	"github.com/boltdb/bolt"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/heremaps/here-data-sdk-go/pkg/olperror"
)

var dataBucket = []byte("data")

// diskTier is one on-disk KV store: either the mutable tier or the
// read-only protected tier. It tracks its own byte-budget total and a
// recency index (for LRU eviction) that deliberately excludes keys under
// internalKeyPrefix, per spec.md 9 ("internal bypass ... must be a separate
// code path from the LRU index, not an always-protected entry").
type diskTier struct {
	mu       sync.Mutex
	db       *bolt.DB
	path     string
	readOnly bool
	recency  *lru.Cache[string, struct{}]
	curBytes uint64
}

func newDiskTier(path string, readOnly bool) *diskTier {
	recency, _ := lru.New[string, struct{}](unboundedCapacity)
	return &diskTier{path: path, readOnly: readOnly, recency: recency}
}

func (d *diskTier) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.path == "" {
		return nil
	}
	opts := &bolt.Options{}
	mode := os.FileMode(0600)
	if d.readOnly {
		opts.ReadOnly = true
		mode = 0400
	}
	db, err := bolt.Open(d.path, mode, opts)
	if err != nil {
		return olperror.Wrap(olperror.KindServiceUnavailable, 0, err)
	}
	d.db = db

	if !d.readOnly {
		if err := db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(dataBucket)
			return err
		}); err != nil {
			return olperror.Wrap(olperror.KindServiceUnavailable, 0, err)
		}
	}

	return db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(dataBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			key := string(k)
			_, payload, expiry := decodeRecord(v)
			d.curBytes += entrySizeWithExpiry(key, payload, expiry)
			if !isInternalKey(key) {
				d.recency.Add(key, struct{}{})
			}
			return nil
		})
	})
}

func (d *diskTier) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

func (d *diskTier) enabled() bool { return d.path != "" }

// Get returns (payload, live, err). live is false both when the key is
// absent and when it is present but logically expired (spec.md 3: a `get`
// observing expiry <= now returns "absent").
func (d *diskTier) Get(key string, now time.Time) ([]byte, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil, false, nil
	}
	var raw []byte
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(dataBucket)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, olperror.Wrap(olperror.KindUnknown, 0, err)
	}
	if raw == nil {
		return nil, false, nil
	}
	hasExpiry, payload, expiry := decodeRecord(raw)
	if hasExpiry && !expiry.After(now) {
		return nil, false, nil
	}
	if !isInternalKey(key) {
		d.recency.Add(key, struct{}{})
	}
	return payload, true, nil
}

func (d *diskTier) Put(key string, value []byte, expiry time.Time) error {
	if d.readOnly {
		return olperror.InvalidArgument("cannot write to a read-only protected cache")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	record := encodeRecord(value, expiry)

	var oldSize uint64
	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(dataBucket)
		if old := b.Get([]byte(key)); old != nil {
			_, oldPayload, oldExpiry := decodeRecord(old)
			oldSize = entrySizeWithExpiry(key, oldPayload, oldExpiry)
		}
		return b.Put([]byte(key), record)
	})
	if err != nil {
		return olperror.Wrap(olperror.KindUnknown, 0, err)
	}
	d.curBytes -= oldSize
	d.curBytes += entrySizeWithExpiry(key, value, expiry)
	if !isInternalKey(key) {
		d.recency.Add(key, struct{}{})
	}
	return nil
}

func (d *diskTier) Delete(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deleteLocked(key)
}

func (d *diskTier) deleteLocked(key string) error {
	if d.db == nil {
		return nil
	}
	var removed bool
	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(dataBucket)
		if old := b.Get([]byte(key)); old != nil {
			_, payload, expiry := decodeRecord(old)
			d.curBytes -= entrySizeWithExpiry(key, payload, expiry)
			removed = true
		}
		return b.Delete([]byte(key))
	})
	if removed {
		d.recency.Remove(key)
	}
	if err != nil {
		return olperror.Wrap(olperror.KindUnknown, 0, err)
	}
	return nil
}

func (d *diskTier) DeletePrefix(prefix string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	var keys []string
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(dataBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if hasPrefix(string(k), prefix) {
				keys = append(keys, string(k))
			}
			return nil
		})
	})
	if err != nil {
		return olperror.Wrap(olperror.KindUnknown, 0, err)
	}
	for _, k := range keys {
		if err := d.deleteLocked(k); err != nil {
			return err
		}
	}
	return nil
}

func (d *diskTier) Contains(key string, now time.Time) bool {
	_, live, err := d.Get(key, now)
	return err == nil && live
}

func (d *diskTier) Size() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.curBytes
}

func (d *diskTier) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	err := d.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(dataBucket); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(dataBucket)
		return err
	})
	if err != nil {
		return olperror.Wrap(olperror.KindUnknown, 0, err)
	}
	d.curBytes = 0
	d.recency.Purge()
	return nil
}

// oldestNonProtected returns the least-recently-used key that protectedFn
// reports as unprotected, or ("", false) if none exists — meaning every
// remaining tracked key is pinned.
func (d *diskTier) oldestNonProtected(protectedFn func(string) bool) (string, bool) {
	d.mu.Lock()
	keys := d.recency.Keys()
	d.mu.Unlock()
	for _, k := range keys {
		if !protectedFn(k) {
			return k, true
		}
	}
	return "", false
}

// expiredKeys returns every key (including internal-bypass ones, since TTL
// is orthogonal to the LRU bypass rule) whose stored expiry has passed.
func (d *diskTier) expiredKeys(now time.Time) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	var expired []string
	_ = d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(dataBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			hasExpiry, _, expiry := decodeRecord(v)
			if hasExpiry && !expiry.After(now) {
				expired = append(expired, string(k))
			}
			return nil
		})
	})
	return expired
}

func isInternalKey(key string) bool { return hasPrefix(key, internalKeyPrefix) }

func entrySizeWithExpiry(key string, payload []byte, expiry time.Time) uint64 {
	size := uint64(len(key) + len(payload))
	if !expiry.IsZero() {
		size += 8
	}
	return size
}

// record wire format: [1 byte hasExpiry][8 bytes unix-seconds if hasExpiry][payload...]
func encodeRecord(payload []byte, expiry time.Time) []byte {
	if expiry.IsZero() {
		out := make([]byte, 1+len(payload))
		out[0] = 0
		copy(out[1:], payload)
		return out
	}
	out := make([]byte, 9+len(payload))
	out[0] = 1
	binary.LittleEndian.PutUint64(out[1:9], uint64(expiry.Unix()))
	copy(out[9:], payload)
	return out
}

func decodeRecord(raw []byte) (hasExpiry bool, payload []byte, expiry time.Time) {
	if len(raw) == 0 {
		return false, nil, time.Time{}
	}
	if raw[0] == 0 {
		return false, raw[1:], time.Time{}
	}
	secs := binary.LittleEndian.Uint64(raw[1:9])
	return true, raw[9:], time.Unix(int64(secs), 0)
}
