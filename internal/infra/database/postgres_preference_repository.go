package database

import (
	"context"
	"database/sql"
	"fmt"

	"lifeguard_alerts/internal/domain/preference"
)

var ErrPreferenceNotFound = fmt.Errorf("emergency preference not found")

type PostgresPreferenceRepository struct {
	db *sql.DB
}

func NewPostgresPreferenceRepository(db *sql.DB) *PostgresPreferenceRepository {
	return &PostgresPreferenceRepository{db: db}
}

func (r *PostgresPreferenceRepository) Get(ctx context.Context, userID string) (*preference.Preference, error) {
	query := `SELECT "UserId", "SendToEmergencyContacts", "SendToAmbulanceService", "CreatedAt", "UpdatedAt"
               FROM "EmergencyPreferences" WHERE "UserId" = $1`
	p := &preference.Preference{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&p.UserID, &p.SendToEmergencyContacts, &p.SendToAmbulanceService, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrPreferenceNotFound
		}
		return nil, fmt.Errorf("error getting emergency preference: %w", err)
	}
	return p, nil
}

// Upsert inserts or replaces the user's row; timestamps are filled from the database.
func (r *PostgresPreferenceRepository) Upsert(ctx context.Context, p *preference.Preference) error {
	query := `INSERT INTO "EmergencyPreferences" ("UserId", "SendToEmergencyContacts", "SendToAmbulanceService", "CreatedAt", "UpdatedAt")
               VALUES ($1, $2, $3, NOW(), NOW())
               ON CONFLICT ("UserId") DO UPDATE SET
                   "SendToEmergencyContacts" = EXCLUDED."SendToEmergencyContacts",
                   "SendToAmbulanceService" = EXCLUDED."SendToAmbulanceService",
                   "UpdatedAt" = NOW()
               RETURNING "CreatedAt", "UpdatedAt"`
	err := r.db.QueryRowContext(ctx, query, p.UserID, p.SendToEmergencyContacts, p.SendToAmbulanceService).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error upserting emergency preference: %w", err)
	}
	return nil
}
