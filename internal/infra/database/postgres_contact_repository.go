package database

import (
	"context"
	"database/sql"
	"fmt"

	"lifeguard_alerts/internal/domain/contact"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Custom errors
var ErrContactNotFound = fmt.Errorf("emergency contact not found")

// PostgresContactRepository is the read-only view on "EmergencyContacts".
// Contact CRUD is owned by the contacts service.
type PostgresContactRepository struct {
	db *sql.DB
}

func NewPostgresContactRepository(db *sql.DB) *PostgresContactRepository {
	return &PostgresContactRepository{db: db}
}

const contactColumns = `"Id", "UserId", "Name", COALESCE("Phone", ''), COALESCE("Email", ''), "Relationship",
               COALESCE("Role", 'General'), COALESCE("Priority", 1), COALESCE("IsVerified", FALSE), "CreatedAt", "UpdatedAt"`

func scanContact(row interface{ Scan(dest ...any) error }) (*contact.Contact, error) {
	c := &contact.Contact{}
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Phone, &c.Email, &c.Relationship,
		&c.Role, &c.Priority, &c.IsVerified, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *PostgresContactRepository) GetByID(ctx context.Context, id int64) (*contact.Contact, error) {
	query := `SELECT ` + contactColumns + `
               FROM "EmergencyContacts" WHERE "Id" = $1`
	c, err := scanContact(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrContactNotFound
		}
		return nil, fmt.Errorf("error getting emergency contact by ID: %w", err)
	}
	return c, nil
}

// ListByUser returns every contact of the user, verified or not, ordered by priority then ID.
func (r *PostgresContactRepository) ListByUser(ctx context.Context, userID string) ([]*contact.Contact, error) {
	query := `SELECT ` + contactColumns + `
               FROM "EmergencyContacts" WHERE "UserId" = $1
               ORDER BY "Priority" ASC, "Id" ASC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing emergency contacts: %w", err)
	}
	defer rows.Close()

	var contacts []*contact.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning emergency contact row: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating emergency contact rows: %w", err)
	}
	return contacts, nil
}
