package pharmacy

import (
	"context"
	"strings"
	"time"

	"github.com/wonderful-ai/pharmagent/internal/store"
)

func (t *Tools) getMedicationByName(ctx context.Context, args map[string]any) map[string]any {
	name := argString(args, "name")

	meds, err := t.store.SearchMedications(ctx, name, catalogScanLimit)
	if err != nil {
		return t.storageError("get_medication_by_name", err)
	}

	if len(meds) == 0 {
		// No direct match: fuzzy candidates let the model recover from typos.
		catalog, err := t.store.SearchMedications(ctx, "", catalogScanLimit)
		if err != nil {
			return t.storageError("get_medication_by_name", err)
		}
		if candidates := t.fuzzy.Candidates(name, catalog); len(candidates) > 0 {
			out := make([]any, 0, len(candidates))
			for _, c := range candidates {
				out = append(out, map[string]any{
					"med_id":  c.Med.ID,
					"brand":   c.Med.BrandName,
					"generic": c.Med.GenericName,
					"score":   c.Score,
				})
			}
			return map[string]any{
				"found":      false,
				"ambiguous":  true,
				"fuzzy":      true,
				"input_name": name,
				"candidates": out,
			}
		}

		// Last resort: alternatives sharing the active ingredient substring.
		byIngredient, err := t.store.MedicationsByIngredient(ctx, name)
		if err != nil {
			return t.storageError("get_medication_by_name", err)
		}
		names := make([]any, 0, len(byIngredient))
		for _, m := range byIngredient {
			names = append(names, m.DisplayName())
		}
		return map[string]any{
			"found":      false,
			"candidates": names,
			"input_name": name,
		}
	}

	if len(meds) > 1 {
		limit := min(len(meds), 5)
		out := make([]any, 0, limit)
		for _, m := range meds[:limit] {
			out = append(out, map[string]any{
				"med_id":  m.ID,
				"brand":   m.BrandName,
				"generic": m.GenericName,
			})
		}
		return map[string]any{"found": false, "ambiguous": true, "candidates": out}
	}

	return map[string]any{"found": true, "med": medicationDetail(meds[0])}
}

func (t *Tools) listMedications(ctx context.Context, args map[string]any) map[string]any {
	term := argString(args, "search_term")
	limit := argInt(args, "limit", 20)

	meds, err := t.store.SearchMedications(ctx, term, limit)
	if err != nil {
		return t.storageError("list_medications", err)
	}
	return map[string]any{
		"count":       len(meds),
		"medications": medicationSummaries(meds),
	}
}

func (t *Tools) queryMedicationsFlexible(ctx context.Context, args map[string]any) map[string]any {
	filter := store.MedicationFilter{
		BrandName:        argString(args, "brand_name"),
		GenericName:      argString(args, "generic_name"),
		ActiveIngredient: argString(args, "active_ingredient"),
		Form:             argString(args, "form"),
		Strength:         argString(args, "strength"),
		RxRequired:       argBool(args, "rx_required"),
		Limit:            argInt(args, "limit", 20),
	}

	meds, err := t.store.QueryMedications(ctx, filter)
	if err != nil {
		return t.storageError("query_medications_flexible", err)
	}
	return map[string]any{
		"count":       len(meds),
		"medications": medicationSummaries(meds),
	}
}

func (t *Tools) queryMedicationsWithStock(ctx context.Context, args map[string]any) map[string]any {
	q := store.StockQuery{
		SearchTerm:       argString(args, "search_term"),
		ActiveIngredient: argString(args, "active_ingredient"),
		Form:             argString(args, "form"),
		RxRequired:       argBool(args, "rx_required"),
		StoreIDs:         argStringSlice(args, "store_ids"),
		InStockOnly:      args["in_stock_only"] == true,
		Limit:            argInt(args, "limit", 20),
	}

	rows, err := t.store.MedicationsWithStock(ctx, q)
	if err != nil {
		return t.storageError("query_medications_with_stock", err)
	}

	// Group one row per (medication, store) into one entry per medication.
	var order []string
	grouped := map[string]map[string]any{}
	for _, row := range rows {
		entry, seen := grouped[row.ID]
		if !seen {
			entry = map[string]any{
				"med_id":             row.ID,
				"brand_name":         row.BrandName,
				"generic_name":       row.GenericName,
				"active_ingredients": row.ActiveIngredients,
				"form":               row.Form,
				"strength":           row.Strength,
				"rx_required":        row.RxRequired,
				"stock":              []any{},
			}
			grouped[row.ID] = entry
			order = append(order, row.ID)
		}
		if row.StoreID != "" {
			entry["stock"] = append(entry["stock"].([]any), map[string]any{
				"store_id": row.StoreID,
				"quantity": row.Quantity,
				"status":   stockStatus(row.Quantity),
			})
		}
	}

	meds := make([]any, 0, len(order))
	for _, id := range order {
		meds = append(meds, grouped[id])
	}
	return map[string]any{"count": len(meds), "medications": meds}
}

func (t *Tools) checkStockAvailability(ctx context.Context, args map[string]any) map[string]any {
	medID := argString(args, "med_id")
	storeID := argString(args, "store_id")

	record, err := t.store.Stock(ctx, medID, storeID)
	if err != nil {
		return t.storageError("check_stock_availability", err)
	}
	if record == nil {
		return map[string]any{"error": ErrNotFound, "med_id": medID, "store_id": storeID}
	}
	return map[string]any{
		"med_id":       medID,
		"store_id":     storeID,
		"quantity":     record.Quantity,
		"status":       stockStatus(record.Quantity),
		"last_updated": record.LastUpdated.Format(time.RFC3339),
	}
}

func (t *Tools) queryStockMultipleStores(ctx context.Context, args map[string]any) map[string]any {
	medID := argString(args, "med_id")
	medName := argString(args, "med_name")

	if medID == "" && medName != "" {
		resolved, result := t.resolveMedicationID(ctx, medName, "query_stock_multiple_stores")
		if result != nil {
			return result
		}
		medID = resolved
	}
	if medID == "" {
		return map[string]any{
			"error":   ErrMissingParameter,
			"message": "Either med_id or med_name must be provided",
		}
	}

	rows, err := t.store.StockAcrossStores(ctx, medID,
		argStringSlice(args, "store_ids"), args["in_stock_only"] == true)
	if err != nil {
		return t.storageError("query_stock_multiple_stores", err)
	}

	displayName := ""
	if med, err := t.store.MedicationByID(ctx, medID); err == nil && med != nil {
		displayName = med.DisplayName()
	}

	stock := make([]any, 0, len(rows))
	for _, r := range rows {
		stock = append(stock, map[string]any{
			"store_id":     r.StoreID,
			"store_name":   r.StoreName,
			"city":         r.City,
			"quantity":     r.Quantity,
			"status":       stockStatus(r.Quantity),
			"last_updated": r.LastUpdated.Format(time.RFC3339),
		})
	}
	return map[string]any{
		"med_id":   medID,
		"med_name": displayName,
		"count":    len(rows),
		"stock":    stock,
	}
}

func (t *Tools) listStores(ctx context.Context, args map[string]any) map[string]any {
	locations, err := t.store.ListStores(ctx, argString(args, "city"))
	if err != nil {
		return t.storageError("list_stores", err)
	}
	out := make([]any, 0, len(locations))
	for _, l := range locations {
		out = append(out, map[string]any{
			"store_id": l.ID,
			"name":     l.Name,
			"city":     l.City,
		})
	}
	return map[string]any{"count": len(locations), "stores": out}
}

// resolveMedicationID maps a name to a med_id when the catalog has exactly
// one match. Ambiguous or missing names come back as a MEDICATION_NOT_FOUND
// result for the model to handle.
func (t *Tools) resolveMedicationID(ctx context.Context, medName, tool string) (string, map[string]any) {
	meds, err := t.store.SearchMedications(ctx, medName, catalogScanLimit)
	if err != nil {
		return "", t.storageError(tool, err)
	}
	if len(meds) != 1 {
		return "", map[string]any{
			"error":    ErrMedicationNotFound,
			"med_name": medName,
			"message":  "Medication not found in catalog",
		}
	}
	return meds[0].ID, nil
}

// medicationDetail is the full catalog payload for a single exact match.
func medicationDetail(m store.Medication) map[string]any {
	var ingredients []any
	if m.ActiveIngredients != "" {
		for _, ing := range strings.Split(m.ActiveIngredients, ", ") {
			ingredients = append(ingredients, ing)
		}
	}
	warnings := []any{}
	if m.Warnings != "" {
		warnings = append(warnings, m.Warnings)
	}
	contraindications := []any{}
	if m.Contraindications != "" {
		contraindications = append(contraindications, m.Contraindications)
	}
	return map[string]any{
		"med_id":              m.ID,
		"brand_name":          m.BrandName,
		"generic_name":        m.GenericName,
		"active_ingredients":  ingredients,
		"form":                m.Form,
		"strength":            m.Strength,
		"rx_required":         m.RxRequired,
		"standard_directions": m.StandardDirections,
		"warnings":            warnings,
		"contraindications":   contraindications,
		"source":              "Synthetic internal pharmacy catalog",
	}
}

// medicationSummaries is the compact listing payload used by the catalog
// browse tools.
func medicationSummaries(meds []store.Medication) []any {
	out := make([]any, 0, len(meds))
	for _, m := range meds {
		out = append(out, map[string]any{
			"med_id":             m.ID,
			"brand_name":         m.BrandName,
			"generic_name":       m.GenericName,
			"active_ingredients": m.ActiveIngredients,
			"form":               m.Form,
			"strength":           m.Strength,
			"rx_required":        m.RxRequired,
		})
	}
	return out
}

func stockStatus(quantity int) string {
	if quantity > 0 {
		return "in_stock"
	}
	return "out_of_stock"
}
