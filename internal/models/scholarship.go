package models

import "time"

// Scholarship is a funding program offering one or more schemas.
type Scholarship struct {
	ID        string     `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Provider  string     `db:"provider" json:"provider"`
	IsActive  bool       `db:"is_active" json:"is_active"`
	StartDate *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate   *time.Time `db:"end_date" json:"end_date,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// ScholarshipSchema is one eligibility/quota configuration under a scholarship.
type ScholarshipSchema struct {
	ID            string `db:"id" json:"id"`
	ScholarshipID string `db:"scholarship_id" json:"scholarship_id"`
	Name          string `db:"name" json:"name"`
	Quota         int    `db:"quota" json:"quota"`
}

// Stage is a named, ordered post-validation review step of a schema.
type Stage struct {
	ID       string `db:"id" json:"id"`
	SchemaID string `db:"schema_id" json:"schema_id"`
	Name     string `db:"name" json:"name"`
	OrderNo  int    `db:"order_no" json:"order_no"`
}
