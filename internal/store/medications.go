package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

const medicationColumns = `med_id, brand_name, generic_name, active_ingredients,
	form, strength, rx_required, standard_directions, warnings, contraindications`

// MedicationFilter narrows a flexible catalog query. Zero-valued fields are
// ignored; set fields must ALL match.
type MedicationFilter struct {
	BrandName        string
	GenericName      string
	ActiveIngredient string
	Form             string
	Strength         string
	RxRequired       *bool
	Limit            int
}

// SearchMedications finds catalog entries whose brand name, generic name, or
// active ingredients contain term (case-insensitive). An empty term lists the
// whole catalog. Brand-name matches sort before generic-name matches.
func (s *Store) SearchMedications(ctx context.Context, term string, limit int) ([]Medication, error) {
	if limit <= 0 {
		limit = 20
	}

	var (
		rows pgx.Rows
		err  error
	)
	if term == "" {
		query := fmt.Sprintf(`
			SELECT %s FROM medications
			ORDER BY brand_name
			LIMIT $1`, medicationColumns)
		rows, err = s.db.Query(ctx, query, limit)
	} else {
		pattern := like(term)
		query := fmt.Sprintf(`
			SELECT %s FROM medications
			WHERE brand_name ILIKE $1 OR generic_name ILIKE $1 OR active_ingredients ILIKE $1
			ORDER BY
				CASE
					WHEN brand_name ILIKE $1 THEN 1
					WHEN generic_name ILIKE $1 THEN 2
					ELSE 3
				END,
				brand_name
			LIMIT $2`, medicationColumns)
		rows, err = s.db.Query(ctx, query, pattern, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("store: search medications: %w", err)
	}
	defer rows.Close()

	return scanMedications(rows)
}

// MedicationByID retrieves a single catalog entry. It returns (nil, nil) when
// no medication with the given ID exists.
func (s *Store) MedicationByID(ctx context.Context, medID string) (*Medication, error) {
	query := fmt.Sprintf(`SELECT %s FROM medications WHERE med_id = $1`, medicationColumns)

	var m Medication
	err := s.db.QueryRow(ctx, query, medID).Scan(
		&m.ID, &m.BrandName, &m.GenericName, &m.ActiveIngredients,
		&m.Form, &m.Strength, &m.RxRequired, &m.StandardDirections,
		&m.Warnings, &m.Contraindications,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: medication %q: %w", medID, err)
	}
	return &m, nil
}

// MedicationsByIngredient finds catalog entries whose active ingredients
// contain term. Used to suggest alternatives when a name lookup misses.
func (s *Store) MedicationsByIngredient(ctx context.Context, term string) ([]Medication, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM medications
		WHERE active_ingredients ILIKE $1
		ORDER BY brand_name`, medicationColumns)

	rows, err := s.db.Query(ctx, query, like(term))
	if err != nil {
		return nil, fmt.Errorf("store: medications by ingredient: %w", err)
	}
	defer rows.Close()

	return scanMedications(rows)
}

// QueryMedications applies every set filter field conjunctively.
func (s *Store) QueryMedications(ctx context.Context, f MedicationFilter) ([]Medication, error) {
	var conditions []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if f.BrandName != "" {
		add("brand_name ILIKE $%d", like(f.BrandName))
	}
	if f.GenericName != "" {
		add("generic_name ILIKE $%d", like(f.GenericName))
	}
	if f.ActiveIngredient != "" {
		add("active_ingredients ILIKE $%d", like(f.ActiveIngredient))
	}
	if f.Form != "" {
		add("form ILIKE $%d", like(f.Form))
	}
	if f.Strength != "" {
		add("strength ILIKE $%d", like(f.Strength))
	}
	if f.RxRequired != nil {
		add("rx_required = $%d", *f.RxRequired)
	}

	where := "1=1"
	if len(conditions) > 0 {
		where = strings.Join(conditions, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT %s FROM medications
		WHERE %s
		ORDER BY brand_name
		LIMIT $%d`, medicationColumns, where, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query medications: %w", err)
	}
	defer rows.Close()

	return scanMedications(rows)
}

// StockQuery narrows a combined catalog + inventory query.
type StockQuery struct {
	SearchTerm       string
	ActiveIngredient string
	Form             string
	RxRequired       *bool
	StoreIDs         []string
	InStockOnly      bool
	Limit            int
}

// MedicationsWithStock joins the catalog against inventory, one row per
// (medication, store) pair. Medications without inventory surface once with
// an empty StoreID.
func (s *Store) MedicationsWithStock(ctx context.Context, q StockQuery) ([]MedicationStock, error) {
	var conditions []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if q.SearchTerm != "" {
		pattern := like(q.SearchTerm)
		args = append(args, pattern)
		n := len(args)
		conditions = append(conditions, fmt.Sprintf(
			"(m.brand_name ILIKE $%d OR m.generic_name ILIKE $%d OR m.active_ingredients ILIKE $%d)", n, n, n))
	}
	if q.ActiveIngredient != "" {
		add("m.active_ingredients ILIKE $%d", like(q.ActiveIngredient))
	}
	if q.Form != "" {
		add("m.form ILIKE $%d", like(q.Form))
	}
	if q.RxRequired != nil {
		add("m.rx_required = $%d", *q.RxRequired)
	}

	where := "1=1"
	if len(conditions) > 0 {
		where = strings.Join(conditions, " AND ")
	}

	joinFilter := ""
	if len(q.StoreIDs) > 0 {
		args = append(args, q.StoreIDs)
		joinFilter = fmt.Sprintf(" AND i.store_id = ANY($%d)", len(args))
		if q.InStockOnly {
			where += " AND i.quantity > 0"
		}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT DISTINCT
			m.med_id, m.brand_name, m.generic_name, m.active_ingredients,
			m.form, m.strength, m.rx_required,
			COALESCE(i.store_id, '') AS store_id,
			COALESCE(i.quantity, 0) AS quantity
		FROM medications m
		LEFT JOIN inventory i ON m.med_id = i.med_id%s
		WHERE %s
		ORDER BY m.brand_name, store_id
		LIMIT $%d`, joinFilter, where, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: medications with stock: %w", err)
	}
	defer rows.Close()

	var results []MedicationStock
	for rows.Next() {
		var ms MedicationStock
		if err := rows.Scan(
			&ms.ID, &ms.BrandName, &ms.GenericName, &ms.ActiveIngredients,
			&ms.Form, &ms.Strength, &ms.RxRequired,
			&ms.StoreID, &ms.Quantity,
		); err != nil {
			return nil, fmt.Errorf("store: medications with stock scan: %w", err)
		}
		results = append(results, ms)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: medications with stock: %w", err)
	}
	return results, nil
}

// Stock retrieves the inventory record for a medication at one store.
// It returns (nil, nil) when no record exists.
func (s *Store) Stock(ctx context.Context, medID, storeID string) (*StockRecord, error) {
	const query = `
		SELECT med_id, store_id, quantity, last_updated
		FROM inventory
		WHERE med_id = $1 AND store_id = $2`

	var r StockRecord
	err := s.db.QueryRow(ctx, query, medID, storeID).Scan(
		&r.MedID, &r.StoreID, &r.Quantity, &r.LastUpdated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: stock %q at %q: %w", medID, storeID, err)
	}
	return &r, nil
}

// StockAcrossStores returns a medication's inventory across stores, joined
// with store details and sorted by city then store name. Empty storeIDs
// checks all stores.
func (s *Store) StockAcrossStores(ctx context.Context, medID string, storeIDs []string, inStockOnly bool) ([]StoreStock, error) {
	conditions := []string{"i.med_id = $1"}
	args := []any{medID}

	if len(storeIDs) > 0 {
		args = append(args, storeIDs)
		conditions = append(conditions, fmt.Sprintf("i.store_id = ANY($%d)", len(args)))
	}
	if inStockOnly {
		conditions = append(conditions, "i.quantity > 0")
	}

	query := fmt.Sprintf(`
		SELECT i.store_id, COALESCE(s.name, ''), COALESCE(s.city, ''),
		       i.quantity, i.last_updated
		FROM inventory i
		LEFT JOIN stores s ON i.store_id = s.store_id
		WHERE %s
		ORDER BY s.city, s.name`, strings.Join(conditions, " AND "))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: stock across stores: %w", err)
	}
	defer rows.Close()

	var results []StoreStock
	for rows.Next() {
		var ss StoreStock
		if err := rows.Scan(&ss.StoreID, &ss.StoreName, &ss.City, &ss.Quantity, &ss.LastUpdated); err != nil {
			return nil, fmt.Errorf("store: stock across stores scan: %w", err)
		}
		results = append(results, ss)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: stock across stores: %w", err)
	}
	return results, nil
}

// scanMedications drains rows into Medication values.
func scanMedications(rows pgx.Rows) ([]Medication, error) {
	var meds []Medication
	for rows.Next() {
		var m Medication
		if err := rows.Scan(
			&m.ID, &m.BrandName, &m.GenericName, &m.ActiveIngredients,
			&m.Form, &m.Strength, &m.RxRequired, &m.StandardDirections,
			&m.Warnings, &m.Contraindications,
		); err != nil {
			return nil, fmt.Errorf("store: medication scan: %w", err)
		}
		meds = append(meds, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: medications: %w", err)
	}
	return meds, nil
}
