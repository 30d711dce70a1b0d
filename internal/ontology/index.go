package ontology

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/conceptkernel/ck-core/internal/ontology/triplestore"
	"github.com/conceptkernel/ck-core/pkg/ckerr"
)

var indexBucket = []byte("kernels")

// cachedGraph is the flattened, reload-ready form of one kernel's
// ontology graph, keyed by kernel name in index.bolt.
type cachedGraph struct {
	Graph         string              `json:"graph"`
	SourceModTime int64               `json:"sourceModTime"`
	Triples       []triplestore.Triple `json:"triples"`
}

// boltIndex wraps concepts/.ontology/index.bolt, the compiled
// warm-restart cache that lets a Library skip re-parsing Turtle on
// every process start when the source file hasn't changed since the
// last load.
type boltIndex struct {
	db *bolt.DB
}

// openBoltIndex opens (creating if necessary) the index.bolt database
// under root/concepts/.ontology/. Any error here is non-fatal to a
// Library: callers fall back to parsing Turtle on every load.
func openBoltIndex(root string) (*boltIndex, error) {
	dir := filepath.Join(root, "concepts", ".ontology")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating .ontology dir: %v", ckerr.IoError, err)
	}
	db, err := bolt.Open(filepath.Join(dir, "index.bolt"), 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: opening index.bolt: %v", ckerr.IoError, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(indexBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: initializing index.bolt: %v", ckerr.IoError, err)
	}
	return &boltIndex{db: db}, nil
}

func (b *boltIndex) close() error {
	if b == nil {
		return nil
	}
	return b.db.Close()
}

// get returns the cached graph for name, if index.bolt has one.
func (b *boltIndex) get(name string) (cachedGraph, bool) {
	var entry cachedGraph
	found := false
	_ = b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(indexBucket).Get([]byte(name))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil
		}
		found = true
		return nil
	})
	return entry, found
}

// put stores the flattened graph for name, invalidated on next get by
// comparing SourceModTime against the source file's current mtime.
func (b *boltIndex) put(name string, entry cachedGraph) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: %v", ckerr.Json, err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(indexBucket).Put([]byte(name), data)
	})
}
