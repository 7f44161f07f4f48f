package dto

import (
	"time"

	"github.com/noah-isme/scholarship-api/internal/models"
)

// CreateApplicationRequest opens a draft application for the calling student.
type CreateApplicationRequest struct {
	SchemaID string  `json:"schema_id" validate:"required"`
	Notes    *string `json:"notes"`
}

// RejectApplicationRequest carries the mandatory rejection reason.
type RejectApplicationRequest struct {
	Notes string `json:"notes"`
}

// RequestRevisionRequest carries the revision notes and an optional future deadline.
type RequestRevisionRequest struct {
	Notes    string     `json:"notes"`
	Deadline *time.Time `json:"deadline"`
}

// TransitionResult is the response body of every review transition.
type TransitionResult struct {
	ID                  string                   `json:"id"`
	Status              models.ApplicationStatus `json:"status"`
	SubmittedAt         *time.Time               `json:"submitted_at,omitempty"`
	VerifiedAt          *time.Time               `json:"verified_at,omitempty"`
	ValidatedAt         *time.Time               `json:"validated_at,omitempty"`
	RejectedAt          *time.Time               `json:"rejected_at,omitempty"`
	RevisionRequestedAt *time.Time               `json:"revision_requested_at,omitempty"`
	RevisionDeadline    *time.Time               `json:"revision_deadline,omitempty"`
	StagesCreated       int                      `json:"stages_created,omitempty"`
}

// UpdateStageProgressRequest changes one stage checklist row.
type UpdateStageProgressRequest struct {
	Status models.StageProgressStatus `json:"status" validate:"required"`
	Notes  *string                    `json:"notes"`
}

// UpdateScholarshipStatusRequest opens or closes a scholarship.
type UpdateScholarshipStatusRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}
