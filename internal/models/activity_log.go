package models

import "time"

// Activity actions recorded by the review workflow and its neighbours.
const (
	ActivityCreateApplication   = "CREATE_APPLICATION"
	ActivitySubmitApplication   = "SUBMIT_APPLICATION"
	ActivityVerifyApplication   = "VERIFY_APPLICATION"
	ActivityValidateApplication = "VALIDATE_APPLICATION"
	ActivityRejectApplication   = "REJECT_APPLICATION"
	ActivityRequestRevision     = "REQUEST_REVISION"
	ActivityUpdateStageProgress = "UPDATE_STAGE_PROGRESS"
	ActivityUpdateScholarship   = "UPDATE_SCHOLARSHIP"
	ActivityExportApplications  = "EXPORT_APPLICATIONS"
)

// ActivityLog is an append-only "who did what to which entity" record.
type ActivityLog struct {
	ID          string    `db:"id" json:"id"`
	UserID      *string   `db:"user_id" json:"user_id,omitempty"`
	Action      string    `db:"action" json:"action"`
	EntityType  string    `db:"entity_type" json:"entity_type"`
	EntityID    string    `db:"entity_id" json:"entity_id"`
	Description string    `db:"description" json:"description"`
	IPAddress   string    `db:"ip_address" json:"ip_address"`
	UserAgent   string    `db:"user_agent" json:"user_agent"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ActivityLogView is an activity row joined with the actor's display name.
type ActivityLogView struct {
	ActivityLog
	ActorName *string `db:"actor_name" json:"actor_name,omitempty"`
}
