package personality

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/iguit0/ai-chatbot-personality/pkg/api"
	"github.com/iguit0/ai-chatbot-personality/pkg/types"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var (
	boltItemsBucket = []byte("personalities")
	boltIndexBucket = []byte("personality_index")
)

// BoltRepository keeps personalities in a bbolt file. Items are keyed by a
// bucket sequence number so cursor order is insertion order; a second bucket
// maps ids to their sequence key.
type BoltRepository struct {
	db *bolt.DB
}

var _ Repository = (*BoltRepository)(nil)

func NewBoltRepository(path string) (*BoltRepository, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt personality repository: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "could not create directory for %s", path)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(boltItemsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(boltIndexBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "could not initialize personality buckets")
	}
	return &BoltRepository{db: db}, nil
}

func (r *BoltRepository) List(_ context.Context) ([]types.Personality, error) {
	var out []types.Personality
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(boltItemsBucket).ForEach(func(k, v []byte) error {
			var p types.Personality
			if err := json.Unmarshal(v, &p); err != nil {
				return errors.Wrapf(err, "corrupt personality record %x", k)
			}
			out = append(out, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *BoltRepository) Create(_ context.Context, p types.Personality) error {
	if p.ID == "" {
		return &api.ValidationError{Field: "id", Reason: "is required"}
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		items := tx.Bucket(boltItemsBucket)
		index := tx.Bucket(boltIndexBucket)
		if index.Get([]byte(p.ID)) != nil {
			return &api.ValidationError{Field: "id", Reason: fmt.Sprintf("personality %q already exists", p.ID)}
		}
		seq, err := items.NextSequence()
		if err != nil {
			return err
		}
		key := sequenceKey(seq)
		if err := items.Put(key, payload); err != nil {
			return err
		}
		return index.Put([]byte(p.ID), key)
	})
}

func (r *BoltRepository) Update(_ context.Context, id string, p types.Personality) error {
	p.ID = id
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		key := tx.Bucket(boltIndexBucket).Get([]byte(id))
		if key == nil {
			return &api.NotFoundError{Resource: "personality", ID: id}
		}
		return tx.Bucket(boltItemsBucket).Put(key, payload)
	})
}

func (r *BoltRepository) Delete(_ context.Context, id string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		index := tx.Bucket(boltIndexBucket)
		key := index.Get([]byte(id))
		if key == nil {
			return &api.NotFoundError{Resource: "personality", ID: id}
		}
		// key is only valid for the life of the transaction, copy before deleting
		k := append([]byte(nil), key...)
		if err := tx.Bucket(boltItemsBucket).Delete(k); err != nil {
			return err
		}
		return index.Delete([]byte(id))
	})
}

func (r *BoltRepository) Close() error {
	return r.db.Close()
}

func sequenceKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}
