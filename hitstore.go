package staticserve

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const hitsBucket = "hits"

// hitStore keeps a persistent count of successful responses per path.
type hitStore struct {
	db *bolt.DB
}

// openHitStore will open, or create if it does not exist, the hit
// database in folder.
func openHitStore(folder string) (*hitStore, error) {
	if _, err := os.Stat(folder); os.IsNotExist(err) {
		err := os.MkdirAll(folder, 0770)
		if err != nil {
			return nil, fmt.Errorf("error: failed to create database directory %v: %v", folder, err)
		}
	}

	dbPath := filepath.Join(folder, "hits.db")
	db, err := bolt.Open(dbPath, 0660, &bolt.Options{Timeout: time.Second * 2})
	if err != nil {
		return nil, fmt.Errorf("error: failed to open db %v: %v", dbPath, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(hitsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error: failed to create bucket %v: %v", hitsBucket, err)
	}

	return &hitStore{db: db}, nil
}

// inc will increment the counter for path by one. Concurrent calls are
// grouped into a single transaction.
func (h *hitStore) inc(path string) error {
	return h.db.Batch(func(tx *bolt.Tx) error {
		bu := tx.Bucket([]byte(hitsBucket))

		n := decodeHits(bu.Get([]byte(path))) + 1

		v := make([]byte, 8)
		binary.BigEndian.PutUint64(v, n)
		return bu.Put([]byte(path), v)
	})
}

// get will return the counter for path.
func (h *hitStore) get(path string) (uint64, error) {
	var n uint64
	err := h.db.View(func(tx *bolt.Tx) error {
		n = decodeHits(tx.Bucket([]byte(hitsBucket)).Get([]byte(path)))
		return nil
	})
	return n, err
}

// total will return the sum of all counters.
func (h *hitStore) total() (uint64, error) {
	var n uint64
	err := h.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(hitsBucket)).ForEach(func(_, v []byte) error {
			n += decodeHits(v)
			return nil
		})
	})
	return n, err
}

func (h *hitStore) close() error {
	return h.db.Close()
}

func decodeHits(v []byte) uint64 {
	if len(v) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}
