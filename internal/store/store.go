// Package store is the PostgreSQL data access layer for the pharmacy domain:
// the medication catalog, store locations, inventory, users, and
// prescriptions that the agent's tools query on behalf of the model.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the pharmacy tables. Execute it via
// [Store.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS medications (
    med_id              TEXT PRIMARY KEY,
    brand_name          TEXT NOT NULL,
    generic_name        TEXT NOT NULL,
    active_ingredients  TEXT NOT NULL DEFAULT '',
    form                TEXT NOT NULL DEFAULT '',
    strength            TEXT NOT NULL DEFAULT '',
    rx_required         BOOLEAN NOT NULL DEFAULT false,
    standard_directions TEXT NOT NULL DEFAULT '',
    warnings            TEXT NOT NULL DEFAULT '',
    contraindications   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_medications_brand ON medications(brand_name);
CREATE INDEX IF NOT EXISTS idx_medications_generic ON medications(generic_name);

CREATE TABLE IF NOT EXISTS users (
    user_id            TEXT PRIMARY KEY,
    full_name          TEXT NOT NULL,
    phone              TEXT NOT NULL DEFAULT '',
    email              TEXT NOT NULL DEFAULT '',
    preferred_language TEXT NOT NULL DEFAULT 'en'
);

CREATE TABLE IF NOT EXISTS stores (
    store_id TEXT PRIMARY KEY,
    name     TEXT NOT NULL,
    city     TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS inventory (
    med_id       TEXT NOT NULL REFERENCES medications(med_id),
    store_id     TEXT NOT NULL REFERENCES stores(store_id),
    quantity     INTEGER NOT NULL DEFAULT 0,
    last_updated TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (med_id, store_id)
);

CREATE TABLE IF NOT EXISTS prescriptions (
    prescription_id   TEXT PRIMARY KEY,
    user_id           TEXT NOT NULL REFERENCES users(user_id),
    med_id            TEXT NOT NULL REFERENCES medications(med_id),
    directions        TEXT NOT NULL DEFAULT '',
    refills_remaining INTEGER NOT NULL DEFAULT 0,
    expires_at        DATE NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_prescriptions_user ON prescriptions(user_id);

CREATE TABLE IF NOT EXISTS refill_requests (
    request_id      TEXT PRIMARY KEY,
    prescription_id TEXT NOT NULL REFERENCES prescriptions(prescription_id),
    user_id         TEXT NOT NULL REFERENCES users(user_id),
    status          TEXT NOT NULL DEFAULT 'submitted',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Medication is one catalog entry.
type Medication struct {
	ID                 string
	BrandName          string
	GenericName        string
	ActiveIngredients  string
	Form               string
	Strength           string
	RxRequired         bool
	StandardDirections string
	Warnings           string
	Contraindications  string
}

// DisplayName is the "Brand (generic)" label used in tool results.
func (m Medication) DisplayName() string {
	return fmt.Sprintf("%s (%s)", m.BrandName, m.GenericName)
}

// User is one registered pharmacy customer.
type User struct {
	ID                string
	FullName          string
	Phone             string
	Email             string
	PreferredLanguage string
}

// Location is one pharmacy store.
type Location struct {
	ID   string
	Name string
	City string
}

// StockRecord is one inventory row for a medication at a store.
type StockRecord struct {
	MedID       string
	StoreID     string
	Quantity    int
	LastUpdated time.Time
}

// StoreStock is an inventory row joined with its store's details.
type StoreStock struct {
	StoreID     string
	StoreName   string
	City        string
	Quantity    int
	LastUpdated time.Time
}

// MedicationStock is a catalog entry joined with one inventory row.
// StoreID is empty when the medication has no inventory record.
type MedicationStock struct {
	Medication
	StoreID  string
	Quantity int
}

// Prescription is one prescription row joined with its medication's names.
type Prescription struct {
	ID               string
	UserID           string
	MedID            string
	BrandName        string
	GenericName      string
	Directions       string
	RefillsRemaining int
	ExpiresAt        time.Time
	RxRequired       bool

	// Status is "active", "no_refills", or "expired". Populated only by
	// [Store.QueryPrescriptions].
	Status string
}

// Store provides pharmacy domain queries over a PostgreSQL database.
type Store struct {
	db DB
}

// New creates a Store using the given connection or pool. The caller is
// responsible for calling [Store.Migrate] before issuing queries.
func New(db DB) *Store {
	return &Store{db: db}
}

// Migrate executes the [Schema] DDL against the database, creating the
// pharmacy tables and indexes if they do not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// like wraps a search term for ILIKE partial matching.
func like(term string) string {
	return "%" + term + "%"
}
