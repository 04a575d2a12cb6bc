package pharmacy

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wonderful-ai/pharmagent/internal/stats"
	"github.com/wonderful-ai/pharmagent/internal/store"
	"github.com/wonderful-ai/pharmagent/internal/tools"
)

// fakeStore satisfies Store with canned data and records refill submissions.
type fakeStore struct {
	meds          []store.Medication
	medByID       *store.Medication
	stock         *store.StockRecord
	storeStock    []store.StoreStock
	users         []store.User
	locations     []store.Location
	prescriptions []store.Prescription
	rxByID        *store.Prescription
	err           error

	searchTerms []string
	refills     [][3]string // requestID, prescriptionID, userID
	refillErr   error
}

func (f *fakeStore) SearchMedications(_ context.Context, term string, _ int) ([]store.Medication, error) {
	f.searchTerms = append(f.searchTerms, term)
	if f.err != nil {
		return nil, f.err
	}
	if term == "" {
		return f.meds, nil
	}
	var out []store.Medication
	for _, m := range f.meds {
		if strings.Contains(strings.ToLower(m.BrandName), strings.ToLower(term)) ||
			strings.Contains(strings.ToLower(m.GenericName), strings.ToLower(term)) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) MedicationByID(context.Context, string) (*store.Medication, error) {
	return f.medByID, f.err
}

func (f *fakeStore) MedicationsByIngredient(context.Context, string) ([]store.Medication, error) {
	return nil, f.err
}

func (f *fakeStore) QueryMedications(context.Context, store.MedicationFilter) ([]store.Medication, error) {
	return f.meds, f.err
}

func (f *fakeStore) MedicationsWithStock(context.Context, store.StockQuery) ([]store.MedicationStock, error) {
	return nil, f.err
}

func (f *fakeStore) Stock(context.Context, string, string) (*store.StockRecord, error) {
	return f.stock, f.err
}

func (f *fakeStore) StockAcrossStores(context.Context, string, []string, bool) ([]store.StoreStock, error) {
	return f.storeStock, f.err
}

func (f *fakeStore) SearchUsers(context.Context, store.UserFilter) ([]store.User, error) {
	return f.users, f.err
}

func (f *fakeStore) ListStores(context.Context, string) ([]store.Location, error) {
	return f.locations, f.err
}

func (f *fakeStore) PrescriptionsForUser(context.Context, string) ([]store.Prescription, error) {
	return f.prescriptions, f.err
}

func (f *fakeStore) PrescriptionByID(context.Context, string) (*store.Prescription, error) {
	return f.rxByID, f.err
}

func (f *fakeStore) QueryPrescriptions(context.Context, store.PrescriptionFilter) ([]store.Prescription, error) {
	return f.prescriptions, f.err
}

func (f *fakeStore) SubmitRefill(_ context.Context, requestID, prescriptionID, userID string, _ time.Time) error {
	f.refills = append(f.refills, [3]string{requestID, prescriptionID, userID})
	return f.refillErr
}

func newTestTools(fs *fakeStore) *Tools {
	t := New(fs, nil)
	t.now = func() time.Time {
		return time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	}
	return t
}

func TestGetMedicationByNameExactMatch(t *testing.T) {
	t.Parallel()

	fs := &fakeStore{meds: []store.Medication{{
		ID: "MED001", BrandName: "Advil", GenericName: "Ibuprofen",
		ActiveIngredients: "ibuprofen", Form: "tablet", Strength: "200 mg",
		Warnings: "May cause stomach upset",
	}}}
	got := newTestTools(fs).getMedicationByName(context.Background(), map[string]any{"name": "advil"})

	if got["found"] != true {
		t.Fatalf("found = %v, want true: %v", got["found"], got)
	}
	med, ok := got["med"].(map[string]any)
	if !ok {
		t.Fatalf("med missing from result: %v", got)
	}
	if med["med_id"] != "MED001" || med["brand_name"] != "Advil" {
		t.Fatalf("unexpected med payload: %v", med)
	}
	warnings, _ := med["warnings"].([]any)
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want one entry", med["warnings"])
	}
}

func TestGetMedicationByNameFuzzyRecovery(t *testing.T) {
	t.Parallel()

	fs := &fakeStore{meds: []store.Medication{
		{ID: "MED001", BrandName: "Advil", GenericName: "Ibuprofen"},
		{ID: "MED002", BrandName: "Tylenol", GenericName: "Paracetamol"},
	}}
	got := newTestTools(fs).getMedicationByName(context.Background(), map[string]any{"name": "iburprofen"})

	if got["found"] != false || got["fuzzy"] != true {
		t.Fatalf("expected fuzzy miss, got %v", got)
	}
	if got["input_name"] != "iburprofen" {
		t.Fatalf("input_name = %v", got["input_name"])
	}
	candidates, _ := got["candidates"].([]any)
	if len(candidates) == 0 {
		t.Fatal("expected fuzzy candidates")
	}
	first := candidates[0].(map[string]any)
	if first["med_id"] != "MED001" {
		t.Fatalf("best fuzzy candidate = %v, want MED001", first)
	}
}

func TestGetMedicationByNameAmbiguous(t *testing.T) {
	t.Parallel()

	fs := &fakeStore{meds: []store.Medication{
		{ID: "MED010", BrandName: "Ibuprofen Forte", GenericName: "Ibuprofen"},
		{ID: "MED011", BrandName: "Ibuprofen Kids", GenericName: "Ibuprofen"},
	}}
	got := newTestTools(fs).getMedicationByName(context.Background(), map[string]any{"name": "ibuprofen"})

	if got["found"] != false || got["ambiguous"] != true {
		t.Fatalf("expected ambiguous result, got %v", got)
	}
	candidates, _ := got["candidates"].([]any)
	if len(candidates) != 2 {
		t.Fatalf("candidates = %v, want 2", got["candidates"])
	}
}

func TestGetMedicationByNameStorageError(t *testing.T) {
	t.Parallel()

	fs := &fakeStore{err: errors.New("connection refused")}
	got := newTestTools(fs).getMedicationByName(context.Background(), map[string]any{"name": "advil"})

	if got["error"] != ErrStorage {
		t.Fatalf("error = %v, want %s", got["error"], ErrStorage)
	}
}

func TestSearchUsersRequiresSelector(t *testing.T) {
	t.Parallel()

	fs := &fakeStore{}
	got := newTestTools(fs).searchUsers(context.Background(), map[string]any{})

	msg, _ := got["error"].(string)
	if !strings.Contains(msg, "At least one search parameter") {
		t.Fatalf("error = %q, want selector guard message", msg)
	}
}

func TestSearchUsersReturnsMatches(t *testing.T) {
	t.Parallel()

	fs := &fakeStore{users: []store.User{
		{ID: "USR001", FullName: "Dana Levi", Email: "dana@example.com", PreferredLanguage: "he"},
	}}
	got := newTestTools(fs).searchUsers(context.Background(), map[string]any{"name": "dana"})

	if got["count"] != 1 {
		t.Fatalf("count = %v, want 1", got["count"])
	}
	users := got["users"].([]any)
	if users[0].(map[string]any)["user_id"] != "USR001" {
		t.Fatalf("unexpected user payload: %v", users[0])
	}
}

func TestCheckStockAvailability(t *testing.T) {
	t.Parallel()

	updated := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	fs := &fakeStore{stock: &store.StockRecord{
		MedID: "MED001", StoreID: "STORE_TLV_01", Quantity: 3, LastUpdated: updated,
	}}
	got := newTestTools(fs).checkStockAvailability(context.Background(), map[string]any{
		"med_id": "MED001", "store_id": "STORE_TLV_01",
	})

	if got["quantity"] != 3 || got["status"] != "low_stock" {
		t.Fatalf("unexpected stock result: %v", got)
	}
	if got["last_updated"] != updated.Format(time.RFC3339) {
		t.Fatalf("last_updated = %v", got["last_updated"])
	}
}

func TestCheckStockAvailabilityNotFound(t *testing.T) {
	t.Parallel()

	fs := &fakeStore{}
	got := newTestTools(fs).checkStockAvailability(context.Background(), map[string]any{
		"med_id": "MED404", "store_id": "STORE_TLV_01",
	})

	if got["error"] != ErrNotFound {
		t.Fatalf("error = %v, want %s", got["error"], ErrNotFound)
	}
}

func TestQueryStockMultipleStoresMissingParameter(t *testing.T) {
	t.Parallel()

	fs := &fakeStore{}
	got := newTestTools(fs).queryStockMultipleStores(context.Background(), map[string]any{})

	if got["error"] != ErrMissingParameter {
		t.Fatalf("error = %v, want %s", got["error"], ErrMissingParameter)
	}
}

func TestQueryStockMultipleStoresResolvesName(t *testing.T) {
	t.Parallel()

	fs := &fakeStore{
		meds:    []store.Medication{{ID: "MED001", BrandName: "Advil", GenericName: "Ibuprofen"}},
		medByID: &store.Medication{ID: "MED001", BrandName: "Advil", GenericName: "Ibuprofen"},
		storeStock: []store.StoreStock{
			{StoreID: "STORE_TLV_01", StoreName: "Dizengoff", City: "Tel Aviv", Quantity: 12},
		},
	}
	got := newTestTools(fs).queryStockMultipleStores(context.Background(), map[string]any{
		"med_name": "advil",
	})

	if got["med_id"] != "MED001" {
		t.Fatalf("med_id = %v, want MED001", got["med_id"])
	}
	if got["med_name"] != "Advil (Ibuprofen)" {
		t.Fatalf("med_name = %v", got["med_name"])
	}
	stock := got["stock"].([]any)
	if len(stock) != 1 || stock[0].(map[string]any)["status"] != "in_stock" {
		t.Fatalf("unexpected stock rows: %v", got["stock"])
	}
}

func TestRequestRefillEligibilityChain(t *testing.T) {
	t.Parallel()

	active := &store.Prescription{
		ID: "RX001", UserID: "USR001", MedID: "MED001",
		RefillsRemaining: 2,
		ExpiresAt:        time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
	}

	cases := []struct {
		name    string
		rx      *store.Prescription
		userID  string
		wantErr string
	}{
		{"not found", nil, "USR001", ErrNotFound},
		{"wrong owner", active, "USR002", ErrUnauthorized},
		{
			"no refills",
			&store.Prescription{ID: "RX001", UserID: "USR001", ExpiresAt: active.ExpiresAt},
			"USR001", ErrNoRefills,
		},
		{
			"expired",
			&store.Prescription{
				ID: "RX001", UserID: "USR001", RefillsRemaining: 2,
				ExpiresAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			},
			"USR001", ErrExpired,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fs := &fakeStore{rxByID: tc.rx}
			got := newTestTools(fs).requestPrescriptionRefill(context.Background(), map[string]any{
				"user_id": tc.userID, "prescription_id": "RX001",
			})

			if got["accepted"] != false || got["error"] != tc.wantErr {
				t.Fatalf("result = %v, want accepted=false error=%s", got, tc.wantErr)
			}
			if len(fs.refills) != 0 {
				t.Fatal("refill must not be submitted when ineligible")
			}
		})
	}
}

func TestRequestRefillAccepted(t *testing.T) {
	t.Parallel()

	fs := &fakeStore{rxByID: &store.Prescription{
		ID: "RX001", UserID: "USR001", MedID: "MED001",
		RefillsRemaining: 1,
		ExpiresAt:        time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
	}}
	got := newTestTools(fs).requestPrescriptionRefill(context.Background(), map[string]any{
		"user_id": "USR001", "prescription_id": "RX001",
	})

	if got["accepted"] != true || got["status"] != "submitted" || got["eta_hours"] != 4 {
		t.Fatalf("unexpected accept payload: %v", got)
	}
	id, _ := got["refill_request_id"].(string)
	if !strings.HasPrefix(id, "RR-20260315103000") || !strings.HasSuffix(id, "-RX001") {
		t.Fatalf("refill_request_id = %q", id)
	}
	if len(fs.refills) != 1 || fs.refills[0][1] != "RX001" || fs.refills[0][2] != "USR001" {
		t.Fatalf("submitted refills = %v", fs.refills)
	}
}

func TestRequestRefillExpiresTodayStillEligible(t *testing.T) {
	t.Parallel()

	fs := &fakeStore{rxByID: &store.Prescription{
		ID: "RX001", UserID: "USR001", RefillsRemaining: 1,
		ExpiresAt: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
	}}
	got := newTestTools(fs).requestPrescriptionRefill(context.Background(), map[string]any{
		"user_id": "USR001", "prescription_id": "RX001",
	})

	if got["accepted"] != true {
		t.Fatalf("expiry-day refill rejected: %v", got)
	}
}

func TestListUserPrescriptionsShape(t *testing.T) {
	t.Parallel()

	fs := &fakeStore{prescriptions: []store.Prescription{{
		ID: "RX001", MedID: "MED001", BrandName: "Advil", GenericName: "Ibuprofen",
		Directions: "1 tablet every 8 hours", RefillsRemaining: 2,
		ExpiresAt: time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
	}}}
	got := newTestTools(fs).listUserPrescriptions(context.Background(), map[string]any{"user_id": "USR001"})

	if got["user_id"] != "USR001" {
		t.Fatalf("user_id = %v", got["user_id"])
	}
	rxs := got["prescriptions"].([]any)
	rx := rxs[0].(map[string]any)
	if rx["med_name"] != "Advil (Ibuprofen)" || rx["expires_at"] != "2026-12-31" {
		t.Fatalf("unexpected prescription payload: %v", rx)
	}
}

func TestRegisterWiresAllTools(t *testing.T) {
	t.Parallel()

	reg := tools.NewRegistry(stats.NewMemory())
	if err := newTestTools(&fakeStore{}).Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}

	defs := reg.Definitions()
	want := []string{
		"check_stock_availability",
		"get_medication_by_name",
		"list_medications",
		"list_stores",
		"list_user_prescriptions",
		"query_medications_flexible",
		"query_medications_with_stock",
		"query_prescriptions_flexible",
		"query_stock_multiple_stores",
		"request_prescription_refill",
		"search_users",
	}
	if len(defs) != len(want) {
		t.Fatalf("got %d tool definitions, want %d", len(defs), len(want))
	}
	for i, name := range want {
		if defs[i].Name != name {
			t.Fatalf("definition %d = %s, want %s", i, defs[i].Name, name)
		}
	}
}
