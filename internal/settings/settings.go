// Package settings persists the store connection configuration on the local
// machine so it survives restarts.
package settings

import (
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.etcd.io/bbolt"

	"github.com/erazemk/stojala/internal/docstore"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	bucketSettings = []byte("settings")
	keyStore       = []byte("store")
)

// ErrNotFound is returned by Load when nothing has been saved yet.
var ErrNotFound = errors.New("settings not found")

// Record is the saved configuration.
type Record struct {
	Store   docstore.Config `json:"store"`
	SavedAt time.Time       `json:"savedAt"`
}

// Settings is a bbolt file holding the saved configuration.
type Settings struct {
	db *bbolt.DB
}

// Open opens or creates the settings file at path.
func Open(path string) (*Settings, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening settings: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSettings)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating settings bucket: %w", err)
	}

	return &Settings{db: db}, nil
}

// Close closes the settings file.
func (s *Settings) Close() error {
	return s.db.Close()
}

// Save stores cfg, replacing the previous configuration.
func (s *Settings) Save(cfg docstore.Config) error {
	data, err := json.Marshal(Record{Store: cfg, SavedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSettings).Put(keyStore, data)
	})
	if err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

// Load returns the saved configuration or ErrNotFound.
func (s *Settings) Load() (Record, error) {
	var rec Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSettings).Get(keyStore)
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("loading settings: %w", err)
	}
	return rec, nil
}

// Clear removes the saved configuration.
func (s *Settings) Clear() error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSettings).Delete(keyStore)
	})
	if err != nil {
		return fmt.Errorf("clearing settings: %w", err)
	}
	return nil
}
