// internal/infra/database/postgres_alert_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lifeguard_alerts/internal/domain/alert"
	"lifeguard_alerts/internal/domain/notify"

	"github.com/lib/pq" // For pq.Error codes and driver registration
)

// Custom errors specific to the alert repository
var ErrAlertNotFound = fmt.Errorf("emergency alert not found")
var ErrDeliveryNotFound = fmt.Errorf("delivery record not found for alert and contact")
var ErrDuplicateDelivery = fmt.Errorf("duplicate delivery record (EmergencyId, ContactId)")
var ErrUnknownContact = fmt.Errorf("delivery record references a missing contact")

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

const defaultHistoryLimit = 50

type PostgresAlertRepository struct {
	db *sql.DB
}

func NewPostgresAlertRepository(db *sql.DB) *PostgresAlertRepository {
	return &PostgresAlertRepository{db: db}
}

// --- EmergencyAlerts ---

func (r *PostgresAlertRepository) CreateWithDeliveries(ctx context.Context, a *alert.Alert, records []*alert.DeliveryRecord) error {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for alert create: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	if a.Status == "" {
		a.Status = alert.StatusActive
	}
	query := `INSERT INTO "EmergencyAlerts" ("UserId", "Message", "Location", "Status", "CreatedAt")
               VALUES ($1, $2, $3, $4, NOW())
               RETURNING "Id", "CreatedAt"`
	if err := txn.QueryRowContext(ctx, query, a.UserID, a.Message, a.Location, a.Status).Scan(&a.ID, &a.CreatedAt); err != nil {
		return fmt.Errorf("error creating emergency alert: %w", err)
	}

	if len(records) > 0 {
		stmt, err := txn.PrepareContext(ctx, `INSERT INTO "EmergencyContactAlerts" ("EmergencyId", "ContactId", "EmailSent", "SmsSent", "CreatedAt")
                                         VALUES ($1, $2, FALSE, FALSE, $3)
                                         RETURNING "Id"`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement for delivery records: %w", err)
		}
		defer stmt.Close()

		for _, rec := range records {
			rec.EmergencyID = a.ID
			rec.CreatedAt = a.CreatedAt
			if err := stmt.QueryRowContext(ctx, rec.EmergencyID, rec.ContactID, rec.CreatedAt).Scan(&rec.ID); err != nil {
				var pqErr *pq.Error
				if errors.As(err, &pqErr) {
					switch pqErr.Code {
					case pqUniqueViolation:
						return fmt.Errorf("error creating delivery record (A:%d, C:%d): %w", a.ID, rec.ContactID, ErrDuplicateDelivery)
					case pqForeignKeyViolation:
						return fmt.Errorf("error creating delivery record (A:%d, C:%d): %w", a.ID, rec.ContactID, ErrUnknownContact)
					}
				}
				return fmt.Errorf("error creating delivery record (A:%d, C:%d): %w", a.ID, rec.ContactID, err)
			}
		}
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("failed to commit alert create: %w", err)
	}
	return nil
}

const alertColumns = `"Id", "UserId", COALESCE("Message", ''), COALESCE("Location", ''), "Status", "CreatedAt", "ResolvedAt"`

func scanAlert(row interface{ Scan(dest ...any) error }) (*alert.Alert, error) {
	a := &alert.Alert{}
	err := row.Scan(&a.ID, &a.UserID, &a.Message, &a.Location, &a.Status, &a.CreatedAt, &a.ResolvedAt)
	return a, err
}

func (r *PostgresAlertRepository) GetByID(ctx context.Context, id int64) (*alert.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM "EmergencyAlerts" WHERE "Id" = $1`
	a, err := scanAlert(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("error getting emergency alert by ID: %w", err)
	}
	return a, nil
}

// ListByUser returns the user's alerts, newest first.
func (r *PostgresAlertRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*alert.Alert, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	query := `SELECT ` + alertColumns + ` FROM "EmergencyAlerts"
               WHERE "UserId" = $1
               ORDER BY "CreatedAt" DESC, "Id" DESC
               LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing emergency alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*alert.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning emergency alert row: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating emergency alert rows: %w", err)
	}
	return alerts, nil
}

func (r *PostgresAlertRepository) Resolve(ctx context.Context, id int64, at time.Time) (bool, error) {
	query := `UPDATE "EmergencyAlerts"
               SET "Status" = $1, "ResolvedAt" = $2
               WHERE "Id" = $3 AND "Status" = $4`
	res, err := r.db.ExecContext(ctx, query, alert.StatusResolved, at, id, alert.StatusActive)
	if err != nil {
		return false, fmt.Errorf("error resolving emergency alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading resolve result: %w", err)
	}
	return n == 1, nil
}

// --- EmergencyContactAlerts ---

func (r *PostgresAlertRepository) MarkChannelSent(ctx context.Context, alertID, contactID int64, ch notify.Channel) error {
	var column string
	switch ch {
	case notify.ChannelEmail:
		column = `"EmailSent"`
	case notify.ChannelSMS:
		column = `"SmsSent"`
	default:
		return fmt.Errorf("unknown channel %q", ch)
	}

	query := `UPDATE "EmergencyContactAlerts" SET ` + column + ` = TRUE
               WHERE "EmergencyId" = $1 AND "ContactId" = $2`
	res, err := r.db.ExecContext(ctx, query, alertID, contactID)
	if err != nil {
		return fmt.Errorf("error marking %s sent: %w", ch, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading mark-sent result: %w", err)
	}
	if n == 0 {
		return ErrDeliveryNotFound
	}
	return nil
}

func (r *PostgresAlertRepository) ListDeliveries(ctx context.Context, alertID int64) ([]*alert.DeliveryRecord, error) {
	query := `SELECT "Id", "EmergencyId", "ContactId", COALESCE("EmailSent", FALSE), COALESCE("SmsSent", FALSE),
                      "CreatedAt", "ResponseStatus", "ResponseTime"
               FROM "EmergencyContactAlerts"
               WHERE "EmergencyId" = $1
               ORDER BY "Id" ASC`
	rows, err := r.db.QueryContext(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("error listing delivery records: %w", err)
	}
	defer rows.Close()

	var records []*alert.DeliveryRecord
	for rows.Next() {
		rec := &alert.DeliveryRecord{}
		var status sql.NullString
		if err := rows.Scan(&rec.ID, &rec.EmergencyID, &rec.ContactID, &rec.EmailSent, &rec.SmsSent,
			&rec.CreatedAt, &status, &rec.ResponseTime); err != nil {
			return nil, fmt.Errorf("error scanning delivery record row: %w", err)
		}
		rec.ResponseStatus = alert.ResponseStatus(status.String)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating delivery record rows: %w", err)
	}
	return records, nil
}

// RecordResponse writes the first response only. A later call returns false, or
// ErrDeliveryNotFound when the contact was never part of the alert.
func (r *PostgresAlertRepository) RecordResponse(ctx context.Context, alertID, contactID int64, status alert.ResponseStatus, at time.Time) (bool, error) {
	query := `UPDATE "EmergencyContactAlerts"
               SET "ResponseStatus" = $1, "ResponseTime" = $2
               WHERE "EmergencyId" = $3 AND "ContactId" = $4 AND "ResponseStatus" IS NULL`
	res, err := r.db.ExecContext(ctx, query, status, at, alertID, contactID)
	if err != nil {
		return false, fmt.Errorf("error recording response: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading response result: %w", err)
	}
	if n == 1 {
		return true, nil
	}

	var exists bool
	err = r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM "EmergencyContactAlerts" WHERE "EmergencyId" = $1 AND "ContactId" = $2)`,
		alertID, contactID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking delivery record: %w", err)
	}
	if !exists {
		return false, ErrDeliveryNotFound
	}
	return false, nil
}

// MarkTimedOut never overwrites an existing response and skips resolved alerts.
func (r *PostgresAlertRepository) MarkTimedOut(ctx context.Context, cutoff time.Time, at time.Time) (int64, error) {
	query := `UPDATE "EmergencyContactAlerts" AS eca
               SET "ResponseStatus" = $1, "ResponseTime" = $2
               FROM "EmergencyAlerts" AS ea
               WHERE eca."EmergencyId" = ea."Id"
                 AND ea."Status" = $3
                 AND eca."ResponseStatus" IS NULL
                 AND eca."CreatedAt" < $4`
	res, err := r.db.ExecContext(ctx, query, alert.ResponseTimedOut, at, alert.StatusActive, cutoff)
	if err != nil {
		return 0, fmt.Errorf("error marking timed out responses: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error reading timeout sweep result: %w", err)
	}
	return n, nil
}
