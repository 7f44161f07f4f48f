package models

import "time"

// StageProgressStatus is the state of one stage checklist item.
type StageProgressStatus string

const (
	StageProgressNotStarted StageProgressStatus = "BELUM_DIMULAI"
	StageProgressInProgress StageProgressStatus = "SEDANG_BERLANGSUNG"
	StageProgressDone       StageProgressStatus = "SELESAI"
	StageProgressFailed     StageProgressStatus = "GAGAL"
)

// Valid reports whether s belongs to the enum domain.
func (s StageProgressStatus) Valid() bool {
	switch s {
	case StageProgressNotStarted, StageProgressInProgress, StageProgressDone, StageProgressFailed:
		return true
	}
	return false
}

// Terminal reports whether the stage has finished, successfully or not.
func (s StageProgressStatus) Terminal() bool {
	return s == StageProgressDone || s == StageProgressFailed
}

// ApplicationStageProgress is one (application, stage) checklist row.
type ApplicationStageProgress struct {
	ID            string              `db:"id" json:"id"`
	ApplicationID string              `db:"application_id" json:"application_id"`
	StageID       string              `db:"stage_id" json:"stage_id"`
	Status        StageProgressStatus `db:"status" json:"status"`
	StartedAt     *time.Time          `db:"started_at" json:"started_at,omitempty"`
	CompletedAt   *time.Time          `db:"completed_at" json:"completed_at,omitempty"`
	Notes         *string             `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time           `db:"updated_at" json:"updated_at"`
}

// StageProgressDetail joins a progress row with its stage label and order.
type StageProgressDetail struct {
	ApplicationStageProgress
	StageName string `db:"stage_name" json:"stage_name"`
	OrderNo   int    `db:"order_no" json:"order_no"`
}
