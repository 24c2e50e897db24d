package contact

import (
	"database/sql"
	"strings"
	"time"
)

// Role classifies who an emergency contact is.
type Role string

const (
	RoleGeneral   Role = "General"
	RoleMedical   Role = "Medical"
	RoleEmergency Role = "Emergency" // Professional services, e.g. the ambulance line
)

// Priority orders personal contacts; lower values are notified first.
type Priority int

const (
	PriorityHigh   Priority = 1
	PriorityMedium Priority = 2
	PriorityLow    Priority = 3
)

// Contact is a person or service eligible to receive emergency alerts.
// Corresponds to the "EmergencyContacts" table.
type Contact struct {
	ID           int64
	UserID       string // Owner of the contact
	Name         string
	Phone        string
	Email        string
	Relationship sql.NullString
	Role         Role
	Priority     Priority
	IsVerified   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasEmail reports whether the contact can be reached by email.
func (c *Contact) HasEmail() bool {
	return strings.TrimSpace(c.Email) != ""
}

// HasPhone reports whether the contact can be reached by SMS.
func (c *Contact) HasPhone() bool {
	return strings.TrimSpace(c.Phone) != ""
}
