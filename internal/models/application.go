package models

import "time"

// ApplicationStatus captures the review workflow states of an application.
type ApplicationStatus string

const (
	ApplicationStatusDraft          ApplicationStatus = "DRAFT"
	ApplicationStatusAwaitingVerify ApplicationStatus = "MENUNGGU_VERIFIKASI"
	ApplicationStatusVerified       ApplicationStatus = "VERIFIED"
	ApplicationStatusRejected       ApplicationStatus = "REJECTED"
	ApplicationStatusRevisionNeeded ApplicationStatus = "REVISION_NEEDED"
	ApplicationStatusValidated      ApplicationStatus = "VALIDATED"
)

// ApplicationEntityType is the entity_type recorded on activity logs about applications.
const ApplicationEntityType = "Application"

// ReviewStatuses lists every non-draft status in workflow order.
var ReviewStatuses = []ApplicationStatus{
	ApplicationStatusAwaitingVerify,
	ApplicationStatusRevisionNeeded,
	ApplicationStatusVerified,
	ApplicationStatusValidated,
	ApplicationStatusRejected,
}

// Application is one student's candidacy for one scholarship schema.
type Application struct {
	ID                  string            `db:"id" json:"id"`
	SchemaID            string            `db:"schema_id" json:"schema_id"`
	StudentID           string            `db:"student_id" json:"student_id"`
	Status              ApplicationStatus `db:"status" json:"status"`
	Notes               *string           `db:"notes" json:"notes,omitempty"`
	SubmittedAt         *time.Time        `db:"submitted_at" json:"submitted_at,omitempty"`
	VerifiedBy          *string           `db:"verified_by" json:"verified_by,omitempty"`
	VerifiedAt          *time.Time        `db:"verified_at" json:"verified_at,omitempty"`
	ValidatedBy         *string           `db:"validated_by" json:"validated_by,omitempty"`
	ValidatedAt         *time.Time        `db:"validated_at" json:"validated_at,omitempty"`
	RejectedBy          *string           `db:"rejected_by" json:"rejected_by,omitempty"`
	RejectedAt          *time.Time        `db:"rejected_at" json:"rejected_at,omitempty"`
	RevisionRequestedBy *string           `db:"revision_requested_by" json:"revision_requested_by,omitempty"`
	RevisionRequestedAt *time.Time        `db:"revision_requested_at" json:"revision_requested_at,omitempty"`
	RevisionDeadline    *time.Time        `db:"revision_deadline" json:"revision_deadline,omitempty"`
	CreatedAt           time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time         `db:"updated_at" json:"updated_at"`
}

// ApplicationRecord is an application joined with the ownership facts needed for access checks.
type ApplicationRecord struct {
	Application
	StudentUserID    string `db:"student_user_id" json:"-"`
	StudentFacultyID string `db:"student_faculty_id" json:"-"`
}
