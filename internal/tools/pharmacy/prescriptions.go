package pharmacy

import (
	"context"
	"fmt"

	"github.com/wonderful-ai/pharmagent/internal/store"
)

const dateLayout = "2006-01-02"

func (t *Tools) searchUsers(ctx context.Context, args map[string]any) map[string]any {
	filter := store.UserFilter{
		UserID: argString(args, "user_id"),
		Name:   argString(args, "name"),
		Email:  argString(args, "email"),
		Phone:  argString(args, "phone"),
	}
	if filter.IsEmpty() {
		return map[string]any{
			"error": "At least one search parameter (name, email, phone, or user_id) must be provided",
		}
	}

	users, err := t.store.SearchUsers(ctx, filter)
	if err != nil {
		return t.storageError("search_users", err)
	}
	out := make([]any, 0, len(users))
	for _, u := range users {
		out = append(out, map[string]any{
			"user_id":            u.ID,
			"full_name":          u.FullName,
			"phone":              u.Phone,
			"email":              u.Email,
			"preferred_language": u.PreferredLanguage,
		})
	}
	return map[string]any{"count": len(users), "users": out}
}

func (t *Tools) listUserPrescriptions(ctx context.Context, args map[string]any) map[string]any {
	userID := argString(args, "user_id")

	prescriptions, err := t.store.PrescriptionsForUser(ctx, userID)
	if err != nil {
		return t.storageError("list_user_prescriptions", err)
	}
	out := make([]any, 0, len(prescriptions))
	for _, p := range prescriptions {
		out = append(out, map[string]any{
			"prescription_id":   p.ID,
			"med_id":            p.MedID,
			"med_name":          fmt.Sprintf("%s (%s)", p.BrandName, p.GenericName),
			"directions":        p.Directions,
			"refills_remaining": p.RefillsRemaining,
			"expires_at":        p.ExpiresAt.Format(dateLayout),
			"rx_required":       p.RxRequired,
		})
	}
	return map[string]any{"user_id": userID, "prescriptions": out}
}

func (t *Tools) queryPrescriptionsFlexible(ctx context.Context, args map[string]any) map[string]any {
	filter := store.PrescriptionFilter{
		UserID:     argString(args, "user_id"),
		MedID:      argString(args, "med_id"),
		HasRefills: argBool(args, "has_refills"),
		Limit:      argInt(args, "limit", 50),
	}
	if days, ok := args["expiring_soon_days"].(float64); ok {
		d := int(days)
		filter.ExpiringWithinDays = &d
	}
	if filter.MedID == "" {
		if medName := argString(args, "med_name"); medName != "" {
			resolved, result := t.resolveMedicationID(ctx, medName, "query_prescriptions_flexible")
			if result != nil {
				return result
			}
			filter.MedID = resolved
		}
	}

	prescriptions, err := t.store.QueryPrescriptions(ctx, filter)
	if err != nil {
		return t.storageError("query_prescriptions_flexible", err)
	}
	out := make([]any, 0, len(prescriptions))
	for _, p := range prescriptions {
		out = append(out, map[string]any{
			"prescription_id":   p.ID,
			"user_id":           p.UserID,
			"med_id":            p.MedID,
			"med_name":          fmt.Sprintf("%s (%s)", p.BrandName, p.GenericName),
			"directions":        p.Directions,
			"refills_remaining": p.RefillsRemaining,
			"expires_at":        p.ExpiresAt.Format(dateLayout),
			"status":            p.Status,
			"rx_required":       p.RxRequired,
		})
	}
	return map[string]any{"count": len(prescriptions), "prescriptions": out}
}

func (t *Tools) requestPrescriptionRefill(ctx context.Context, args map[string]any) map[string]any {
	userID := argString(args, "user_id")
	prescriptionID := argString(args, "prescription_id")

	rx, err := t.store.PrescriptionByID(ctx, prescriptionID)
	if err != nil {
		return t.storageError("request_prescription_refill", err)
	}
	if rx == nil {
		return map[string]any{"accepted": false, "error": ErrNotFound}
	}
	if rx.UserID != userID {
		return map[string]any{"accepted": false, "error": ErrUnauthorized}
	}
	if rx.RefillsRemaining <= 0 {
		return map[string]any{"accepted": false, "error": ErrNoRefills}
	}

	now := t.now().UTC()
	if rx.ExpiresAt.Format(dateLayout) < now.Format(dateLayout) {
		return map[string]any{"accepted": false, "error": ErrExpired}
	}

	// Millisecond timestamp keeps IDs unique across rapid submissions.
	requestID := fmt.Sprintf("RR-%s%03d-%s",
		now.Format("20060102150405"), now.Nanosecond()/1e6, prescriptionID)

	if err := t.store.SubmitRefill(ctx, requestID, prescriptionID, userID, now); err != nil {
		return t.storageError("request_prescription_refill", err)
	}
	return map[string]any{
		"accepted":          true,
		"refill_request_id": requestID,
		"status":            "submitted",
		"eta_hours":         4,
	}
}
