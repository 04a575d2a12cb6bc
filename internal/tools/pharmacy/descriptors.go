package pharmacy

import "github.com/wonderful-ai/pharmagent/internal/tools"

// descriptors builds the registry entries for every pharmacy tool. The
// descriptions are written for the model: they spell out when to reach for
// each tool and that the catalog is the only source of truth.
func (t *Tools) descriptors() []tools.Descriptor {
	return []tools.Descriptor{
		{
			Name: "get_medication_by_name",
			Description: "Fetch detailed medication information from the pharmacy catalog by brand/generic name " +
				"or active ingredient. Fuzzy matching handles typos automatically (e.g., 'iburprofen' finds " +
				"'ibuprofen'); if no exact match is found, similar medications are suggested. CRITICAL: only " +
				"medications in the database are returned. If 'found': false comes back, the medication does not " +
				"exist in the catalog and you must NOT describe it from general knowledge — use list_medications " +
				"to find alternatives instead.",
			Parameters: map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Medication name (brand, generic, or active ingredient). Typos are handled automatically.",
				},
			},
			Required: []string{"name"},
			Handler:  t.getMedicationByName,
		},
		{
			Name: "list_medications",
			Description: "List or search medications from the catalog. Use this to browse available medications, " +
				"find medications when unsure of the exact name, or suggest alternatives when a medication is not " +
				"found. More efficient than calling get_medication_by_name repeatedly. Returns basic info only; " +
				"use get_medication_by_name for full details.",
			Parameters: map[string]any{
				"search_term": map[string]any{
					"type":        "string",
					"description": "Optional filter across brand name, generic name, and active ingredients. Omit to list the whole catalog up to the limit.",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of medications to return (default: 20, max recommended: 50)",
				},
			},
			Handler: t.listMedications,
		},
		{
			Name: "search_users",
			Description: "Search for users by name, email, phone, or user_id. Use this to find a user's user_id " +
				"for prescription operations (listing prescriptions or requesting refills). At least one search " +
				"parameter must be provided.",
			Parameters: map[string]any{
				"name":    map[string]any{"type": "string", "description": "Search by full name (partial match supported)"},
				"email":   map[string]any{"type": "string", "description": "Search by email address (partial match supported)"},
				"phone":   map[string]any{"type": "string", "description": "Search by phone number (partial match supported)"},
				"user_id": map[string]any{"type": "string", "description": "Search by exact user_id"},
			},
			Handler: t.searchUsers,
		},
		{
			Name:        "check_stock_availability",
			Description: "Check inventory quantity for a medication in a specific store.",
			Parameters: map[string]any{
				"med_id":   map[string]any{"type": "string"},
				"store_id": map[string]any{"type": "string"},
			},
			Required: []string{"med_id", "store_id"},
			Handler:  t.checkStockAvailability,
		},
		{
			Name:        "list_user_prescriptions",
			Description: "List prescriptions for a user (for refill workflows).",
			Parameters: map[string]any{
				"user_id": map[string]any{"type": "string"},
			},
			Required: []string{"user_id"},
			Handler:  t.listUserPrescriptions,
		},
		{
			Name:        "request_prescription_refill",
			Description: "Submit a refill request for a user's prescription.",
			Parameters: map[string]any{
				"user_id":         map[string]any{"type": "string"},
				"prescription_id": map[string]any{"type": "string"},
			},
			Required: []string{"user_id", "prescription_id"},
			Handler:  t.requestPrescriptionRefill,
		},
		{
			Name: "query_medications_flexible",
			Description: "Flexible medication query with multiple optional filters, combined as needed. Use this " +
				"for complex searches like 'find all tablets with paracetamol that don't require prescription'. " +
				"Returns medications matching ALL specified criteria.",
			Parameters: map[string]any{
				"brand_name":        map[string]any{"type": "string", "description": "Filter by brand name (partial match)"},
				"generic_name":      map[string]any{"type": "string", "description": "Filter by generic name (partial match)"},
				"active_ingredient": map[string]any{"type": "string", "description": "Filter by active ingredient (partial match)"},
				"form":              map[string]any{"type": "string", "description": "Filter by form (e.g., 'tablet', 'liquid', 'capsule')"},
				"strength":          map[string]any{"type": "string", "description": "Filter by strength (e.g., '200 mg', '500 mg')"},
				"rx_required":       map[string]any{"type": "boolean", "description": "Filter by prescription requirement (false = over-the-counter)"},
				"limit":             map[string]any{"type": "integer", "description": "Maximum number of results (default: 20)"},
			},
			Handler: t.queryMedicationsFlexible,
		},
		{
			Name: "query_medications_with_stock",
			Description: "Query medications with optional stock filtering across one or more stores. Combines " +
				"medication search with inventory checks in a single query — much more efficient than calling " +
				"get_medication_by_name and check_stock_availability separately.",
			Parameters: map[string]any{
				"search_term":       map[string]any{"type": "string", "description": "Search term for brand name, generic name, or active ingredients"},
				"active_ingredient": map[string]any{"type": "string", "description": "Filter by active ingredient"},
				"form":              map[string]any{"type": "string", "description": "Filter by form (e.g., 'tablet')"},
				"rx_required":       map[string]any{"type": "boolean", "description": "Filter by prescription requirement"},
				"store_ids": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Store IDs to check (e.g., ['STORE_TLV_01']). Omit to check all stores.",
				},
				"in_stock_only": map[string]any{"type": "boolean", "description": "If true, only return medications in stock at the specified stores"},
				"limit":         map[string]any{"type": "integer", "description": "Maximum number of medications to return (default: 20)"},
			},
			Handler: t.queryMedicationsWithStock,
		},
		{
			Name: "query_stock_multiple_stores",
			Description: "Check stock availability for a medication across multiple stores in a single query, " +
				"instead of calling check_stock_availability per store. Accepts med_id or medication name.",
			Parameters: map[string]any{
				"med_id":   map[string]any{"type": "string", "description": "Medication ID (use this if you know it)"},
				"med_name": map[string]any{"type": "string", "description": "Medication name (brand or generic) — med_id is looked up automatically"},
				"store_ids": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Store IDs to check. Omit to check all stores.",
				},
				"in_stock_only": map[string]any{"type": "boolean", "description": "If true, only return stores where the medication is in stock"},
			},
			Handler: t.queryStockMultipleStores,
		},
		{
			Name: "list_stores",
			Description: "List available pharmacy store locations. Use this to find store_ids when customers ask " +
				"about specific cities or locations.",
			Parameters: map[string]any{
				"city": map[string]any{"type": "string", "description": "Optional: filter stores by city name (e.g., 'Tel Aviv', 'Jerusalem')"},
			},
			Handler: t.listStores,
		},
		{
			Name: "query_prescriptions_flexible",
			Description: "Flexible prescription query with multiple optional filters: user, medication, expiration " +
				"window, and refill availability. Use this for queries like 'find all prescriptions expiring in " +
				"the next 7 days'.",
			Parameters: map[string]any{
				"user_id":            map[string]any{"type": "string", "description": "Filter by user ID"},
				"med_id":             map[string]any{"type": "string", "description": "Filter by medication ID"},
				"med_name":           map[string]any{"type": "string", "description": "Filter by medication name (med_id is looked up)"},
				"expiring_soon_days": map[string]any{"type": "integer", "description": "Keep prescriptions expiring within this many days"},
				"has_refills":        map[string]any{"type": "boolean", "description": "Filter by refill availability"},
				"limit":              map[string]any{"type": "integer", "description": "Maximum number of results (default: 50)"},
			},
			Handler: t.queryPrescriptionsFlexible,
		},
	}
}
