package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ApplicationStatus string

const (
	ApplicationStatusApplied   ApplicationStatus = "applied"
	ApplicationStatusReviewing ApplicationStatus = "reviewing"
	ApplicationStatusHired     ApplicationStatus = "hired"
	ApplicationStatusRejected  ApplicationStatus = "rejected"
)

// Application links a jobseeker to a job. Moving it to "hired" opens the chat
// thread between the employer and the jobseeker if one doesn't exist yet.
type Application struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	JobID       uint      `gorm:"index:idx_applications_job_seeker,unique;not null" json:"job_id"`
	JobseekerID uuid.UUID `gorm:"type:uuid;index:idx_applications_job_seeker,unique;not null" json:"jobseeker_id"`

	Note   string            `gorm:"type:text" json:"note"`
	Status ApplicationStatus `gorm:"type:varchar(20);default:'applied';index" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Job       *Job  `gorm:"foreignKey:JobID" json:"job,omitempty"`
	Jobseeker *User `gorm:"foreignKey:JobseekerID" json:"jobseeker,omitempty"`
}

func (a *Application) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
