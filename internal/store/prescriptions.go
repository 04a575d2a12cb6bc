package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// PrescriptionFilter narrows a flexible prescription query. Zero-valued
// fields are ignored; set fields must ALL match.
type PrescriptionFilter struct {
	UserID string
	MedID  string

	// ExpiringWithinDays, when non-nil, keeps prescriptions whose expiry
	// falls between today and today+N days.
	ExpiringWithinDays *int

	// HasRefills filters on refills_remaining > 0 (true) or <= 0 (false).
	HasRefills *bool

	Limit int
}

// PrescriptionsForUser lists all of a user's prescriptions joined with
// medication names.
func (s *Store) PrescriptionsForUser(ctx context.Context, userID string) ([]Prescription, error) {
	const query = `
		SELECT p.prescription_id, p.user_id, p.med_id, m.brand_name, m.generic_name,
		       p.directions, p.refills_remaining, p.expires_at, m.rx_required
		FROM prescriptions p
		JOIN medications m ON m.med_id = p.med_id
		WHERE p.user_id = $1`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("store: prescriptions for user: %w", err)
	}
	defer rows.Close()

	return scanPrescriptions(rows, false)
}

// PrescriptionByID retrieves one prescription. It returns (nil, nil) when no
// prescription with the given ID exists.
func (s *Store) PrescriptionByID(ctx context.Context, prescriptionID string) (*Prescription, error) {
	const query = `
		SELECT p.prescription_id, p.user_id, p.med_id, m.brand_name, m.generic_name,
		       p.directions, p.refills_remaining, p.expires_at, m.rx_required
		FROM prescriptions p
		JOIN medications m ON m.med_id = p.med_id
		WHERE p.prescription_id = $1`

	var p Prescription
	err := s.db.QueryRow(ctx, query, prescriptionID).Scan(
		&p.ID, &p.UserID, &p.MedID, &p.BrandName, &p.GenericName,
		&p.Directions, &p.RefillsRemaining, &p.ExpiresAt, &p.RxRequired,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: prescription %q: %w", prescriptionID, err)
	}
	return &p, nil
}

// QueryPrescriptions applies every set filter field conjunctively. Each
// returned row carries a derived Status of "expired", "no_refills", or
// "active", and rows sort by expiry date then user.
func (s *Store) QueryPrescriptions(ctx context.Context, f PrescriptionFilter) ([]Prescription, error) {
	var conditions []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if f.UserID != "" {
		add("p.user_id = $%d", f.UserID)
	}
	if f.MedID != "" {
		add("p.med_id = $%d", f.MedID)
	}
	if f.ExpiringWithinDays != nil {
		add("p.expires_at <= CURRENT_DATE + MAKE_INTERVAL(days => $%d)", *f.ExpiringWithinDays)
		conditions = append(conditions, "p.expires_at >= CURRENT_DATE")
	}
	if f.HasRefills != nil {
		if *f.HasRefills {
			conditions = append(conditions, "p.refills_remaining > 0")
		} else {
			conditions = append(conditions, "p.refills_remaining <= 0")
		}
	}

	where := "1=1"
	if len(conditions) > 0 {
		where = strings.Join(conditions, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT p.prescription_id, p.user_id, p.med_id, m.brand_name, m.generic_name,
		       p.directions, p.refills_remaining, p.expires_at, m.rx_required,
		       CASE
		           WHEN p.expires_at < CURRENT_DATE THEN 'expired'
		           WHEN p.refills_remaining <= 0 THEN 'no_refills'
		           ELSE 'active'
		       END AS status
		FROM prescriptions p
		JOIN medications m ON p.med_id = m.med_id
		WHERE %s
		ORDER BY p.expires_at, p.user_id
		LIMIT $%d`, where, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query prescriptions: %w", err)
	}
	defer rows.Close()

	return scanPrescriptions(rows, true)
}

// SubmitRefill records a refill request and decrements the prescription's
// remaining refills in one transaction. Eligibility (ownership, refills,
// expiry) is the caller's responsibility.
func (s *Store) SubmitRefill(ctx context.Context, requestID, prescriptionID, userID string, now time.Time) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: submit refill: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO refill_requests (request_id, prescription_id, user_id, status, created_at)
		 VALUES ($1, $2, $3, 'submitted', $4)`,
		requestID, prescriptionID, userID, now)
	if err != nil {
		return fmt.Errorf("store: submit refill: insert: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE prescriptions SET refills_remaining = refills_remaining - 1
		 WHERE prescription_id = $1`,
		prescriptionID)
	if err != nil {
		return fmt.Errorf("store: submit refill: decrement: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: submit refill: commit: %w", err)
	}
	return nil
}

// scanPrescriptions drains rows into Prescription values. withStatus selects
// the extra derived-status column emitted by QueryPrescriptions.
func scanPrescriptions(rows pgx.Rows, withStatus bool) ([]Prescription, error) {
	var prescriptions []Prescription
	for rows.Next() {
		var p Prescription
		dest := []any{
			&p.ID, &p.UserID, &p.MedID, &p.BrandName, &p.GenericName,
			&p.Directions, &p.RefillsRemaining, &p.ExpiresAt, &p.RxRequired,
		}
		if withStatus {
			dest = append(dest, &p.Status)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("store: prescription scan: %w", err)
		}
		prescriptions = append(prescriptions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: prescriptions: %w", err)
	}
	return prescriptions, nil
}
