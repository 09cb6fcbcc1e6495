package config

import (
	"fmt"
	"time"
)

// StoreKind selects the pending authorization backend.
type StoreKind string

const (
	// StoreMemory keeps one record per state in process memory.
	StoreMemory StoreKind = "memory"
	// StoreSlot keeps a single record; every deposit replaces the last one.
	StoreSlot StoreKind = "slot"
	// StoreFirestore keeps one document per state in Cloud Firestore so
	// several instances share pending codes.
	StoreFirestore StoreKind = "firestore"
)

type StoreConfig interface {
	GetStoreKind() StoreKind
	GetCleanupInterval() time.Duration
	GetProjectID() string
	GetFirestoreDatabase() string
	GetFirestoreCollection() string
}

type Store struct {
	Kind                StoreKind     `env:"RELAY_STORE" envDefault:"memory"`
	CleanupInterval     time.Duration `env:"RELAY_CLEANUP_INTERVAL" envDefault:"1m"`
	ProjectID           string        `env:"GCP_PROJECT_ID"`
	FirestoreDatabase   string        `env:"FIRESTORE_DATABASE" envDefault:"(default)"`
	FirestoreCollection string        `env:"FIRESTORE_COLLECTION" envDefault:"code_relay_pending"`
}

var _ StoreConfig = Store{}

func (s Store) GetStoreKind() StoreKind {
	return s.Kind
}

func (s Store) GetCleanupInterval() time.Duration {
	return s.CleanupInterval
}

func (s Store) GetProjectID() string {
	return s.ProjectID
}

func (s Store) GetFirestoreDatabase() string {
	return s.FirestoreDatabase
}

func (s Store) GetFirestoreCollection() string {
	return s.FirestoreCollection
}

func (s Store) validate() error {
	switch s.Kind {
	case StoreMemory, StoreSlot:
	case StoreFirestore:
		if s.ProjectID == "" {
			return fmt.Errorf("GCP_PROJECT_ID is required for the firestore store")
		}
	default:
		return fmt.Errorf("RELAY_STORE must be one of memory, slot, firestore; got %q", s.Kind)
	}
	if s.CleanupInterval <= 0 {
		return fmt.Errorf("RELAY_CLEANUP_INTERVAL must be positive, got %s", s.CleanupInterval)
	}
	return nil
}
