// Package pharmacy registers the built-in pharmacy domain tools: medication
// catalog lookups, user search, inventory checks, and prescription workflows,
// all backed by the PostgreSQL store.
//
// Handlers return structured maps only. Domain failures are data the model
// can react to ({"error": "NOT_FOUND", ...}); storage failures surface as
// {"error": "STORAGE_ERROR"} so a database outage never aborts a turn.
package pharmacy

import (
	"context"
	"log/slog"
	"time"

	"github.com/wonderful-ai/pharmagent/internal/store"
	"github.com/wonderful-ai/pharmagent/internal/tools"
)

// Domain error codes returned in tool results.
const (
	ErrNotFound           = "NOT_FOUND"
	ErrUnauthorized       = "UNAUTHORIZED"
	ErrNoRefills          = "NO_REFILLS"
	ErrExpired            = "EXPIRED"
	ErrMedicationNotFound = "MEDICATION_NOT_FOUND"
	ErrMissingParameter   = "MISSING_PARAMETER"
	ErrStorage            = "STORAGE_ERROR"
)

// catalogScanLimit caps how many catalog entries the fuzzy matcher considers.
const catalogScanLimit = 500

// Store is the data access surface the pharmacy tools need.
// *store.Store satisfies it.
type Store interface {
	SearchMedications(ctx context.Context, term string, limit int) ([]store.Medication, error)
	MedicationByID(ctx context.Context, medID string) (*store.Medication, error)
	MedicationsByIngredient(ctx context.Context, term string) ([]store.Medication, error)
	QueryMedications(ctx context.Context, f store.MedicationFilter) ([]store.Medication, error)
	MedicationsWithStock(ctx context.Context, q store.StockQuery) ([]store.MedicationStock, error)
	Stock(ctx context.Context, medID, storeID string) (*store.StockRecord, error)
	StockAcrossStores(ctx context.Context, medID string, storeIDs []string, inStockOnly bool) ([]store.StoreStock, error)
	SearchUsers(ctx context.Context, f store.UserFilter) ([]store.User, error)
	ListStores(ctx context.Context, city string) ([]store.Location, error)
	PrescriptionsForUser(ctx context.Context, userID string) ([]store.Prescription, error)
	PrescriptionByID(ctx context.Context, prescriptionID string) (*store.Prescription, error)
	QueryPrescriptions(ctx context.Context, f store.PrescriptionFilter) ([]store.Prescription, error)
	SubmitRefill(ctx context.Context, requestID, prescriptionID, userID string, now time.Time) error
}

// Compile-time check: the concrete store satisfies the tool surface.
var _ Store = (*store.Store)(nil)

// Tools holds the pharmacy tool handlers.
type Tools struct {
	store  Store
	fuzzy  *Fuzzy
	logger *slog.Logger

	// now is swappable in tests for deterministic refill request IDs.
	now func() time.Time
}

// New creates the pharmacy tool set. A nil logger falls back to slog.Default.
func New(s Store, logger *slog.Logger) *Tools {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tools{
		store:  s,
		fuzzy:  NewFuzzy(),
		logger: logger,
		now:    time.Now,
	}
}

// Register adds every pharmacy tool to the registry.
func (t *Tools) Register(reg *tools.Registry) error {
	for _, d := range t.descriptors() {
		if err := reg.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// storageError logs a failed store call and returns the structured result
// fed back to the model.
func (t *Tools) storageError(tool string, err error) map[string]any {
	t.logger.Error("tool storage query failed", "tool", tool, "error", err)
	return map[string]any{"error": ErrStorage, "tool": tool}
}

// ---------------------------------------------------------------------------
// Argument extraction — completion clients deliver JSON-decoded values, so
// numbers arrive as float64 and arrays as []any.
// ---------------------------------------------------------------------------

func argString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func argInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func argBool(args map[string]any, key string) *bool {
	if v, ok := args[key].(bool); ok {
		return &v
	}
	return nil
}

func argStringSlice(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
