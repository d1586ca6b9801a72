package services

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/MegaGrindStone/chat-relay/internal/models"
	bolt "go.etcd.io/bbolt"
)

// BoltDB implements the Journal interface using a BoltDB backend. Every relay request is stored as one
// JSON-encoded exchange under a key that starts with the bucket sequence, so a cursor walks them in
// insertion order.
type BoltDB struct {
	db *bolt.DB
}

var exchangesBucket = []byte("exchanges")

// NewBoltDB creates a new BoltDB instance with the specified file path. It initializes the database
// with required buckets and returns an error if the database cannot be opened or initialized. The
// database file is created with 0600 permissions if it doesn't exist.
func NewBoltDB(path string) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(exchangesBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return BoltDB{}, fmt.Errorf("failed to create bucket: %w", err)
	}

	return BoltDB{db: db}, nil
}

// Exchanges retrieves all stored exchanges in reverse chronological order.
func (b BoltDB) Exchanges(context.Context) ([]models.Exchange, error) {
	var exchanges []models.Exchange
	err := b.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(exchangesBucket)
		if b == nil {
			return nil
		}

		return b.ForEach(func(_, v []byte) error {
			var ex models.Exchange
			if err := json.Unmarshal(v, &ex); err != nil {
				return fmt.Errorf("failed to unmarshal exchange: %w", err)
			}
			exchanges = append(exchanges, ex)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(exchanges)
	return exchanges, nil
}

// AddExchange stores a new exchange. The stored key combines a zero-padded sequence number with the
// exchange's own ID, and is returned.
func (b BoltDB) AddExchange(_ context.Context, exchange models.Exchange) (string, error) {
	var key string
	err := b.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(exchangesBucket)
		if b == nil {
			return fmt.Errorf("bucket %s not found", exchangesBucket)
		}

		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}
		key = fmt.Sprintf("%020d-%s", seq, exchange.ID)

		v, err := json.Marshal(exchange)
		if err != nil {
			return fmt.Errorf("failed to marshal exchange: %w", err)
		}

		return b.Put([]byte(key), v)
	})

	return key, err
}

// Close releases the database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}
