package database

import (
	"context"
	"database/sql"
	"fmt"

	"lifeguard_alerts/internal/domain/alert"
)

type PostgresTestAuditRepository struct {
	db *sql.DB
}

func NewPostgresTestAuditRepository(db *sql.DB) *PostgresTestAuditRepository {
	return &PostgresTestAuditRepository{db: db}
}

func (r *PostgresTestAuditRepository) Create(ctx context.Context, e *alert.TestAudit) error {
	query := `INSERT INTO "TestAlertAudit" ("UserId", "ContactId", "Channel", "Succeeded", "Error", "CreatedAt")
               VALUES ($1, $2, $3, $4, $5, $6)
               RETURNING "Id"`
	err := r.db.QueryRowContext(ctx, query, e.UserID, e.ContactID, e.Channel, e.Succeeded, e.Error, e.CreatedAt).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("error creating test alert audit entry: %w", err)
	}
	return nil
}
