package preview

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	previewBucket  = "previews"
	settingsBucket = "settings"
)

// ErrNotFound is returned for lookups of records that do not exist.
var ErrNotFound = errors.New("not found")

// DB defines the persistence operations the service needs.
type DB interface {
	// SavePreview stores or replaces a preview record.
	SavePreview(p *Preview) error

	// GetPreview retrieves a preview by ID.
	GetPreview(id string) (*Preview, error)

	// ListPreviews returns all stored previews.
	ListPreviews() ([]*Preview, error)

	// DeletePreview removes a preview record.
	DeletePreview(id string) error

	// GetSetting reads one settings value; missing keys return "".
	GetSetting(key string) (string, error)

	// PutSetting writes one settings value.
	PutSetting(key, value string) error

	// Close closes the underlying database.
	Close() error
}

// BoltDB implements the DB interface on top of bbolt.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens (or creates) the database file and its buckets.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{previewBucket, settingsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SavePreview stores or replaces a preview record.
func (b *BoltDB) SavePreview(p *Preview) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshaling preview: %w", err)
		}
		return tx.Bucket([]byte(previewBucket)).Put([]byte(p.ID), data)
	})
}

// GetPreview retrieves a preview by ID.
func (b *BoltDB) GetPreview(id string) (*Preview, error) {
	var p *Preview
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(previewBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("preview %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListPreviews returns all stored previews.
func (b *BoltDB) ListPreviews() ([]*Preview, error) {
	previews := make([]*Preview, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(previewBucket)).ForEach(func(k, v []byte) error {
			var p Preview
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("unmarshaling preview: %w", err)
			}
			previews = append(previews, &p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return previews, nil
}

// DeletePreview removes a preview record.
func (b *BoltDB) DeletePreview(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(previewBucket)).Delete([]byte(id))
	})
}

// GetSetting reads one settings value; missing keys return "".
func (b *BoltDB) GetSetting(key string) (string, error) {
	var value string
	err := b.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket([]byte(settingsBucket)).Get([]byte(key)); data != nil {
			value = string(data)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return value, nil
}

// PutSetting writes one settings value.
func (b *BoltDB) PutSetting(key, value string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(settingsBucket)).Put([]byte(key), []byte(value))
	})
}

// Close closes the underlying database.
func (b *BoltDB) Close() error {
	return b.db.Close()
}
