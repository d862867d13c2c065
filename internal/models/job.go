package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type JobStatus string

const (
	JobStatusOpen   JobStatus = "open"
	JobStatusClosed JobStatus = "closed"
)

// Job is a posting created by an employer. Jobseekers apply to it and chat
// threads are scoped to it.
type Job struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	EmployerID uuid.UUID `gorm:"type:uuid;index;not null" json:"employer_id"`
	CategoryID *uint     `gorm:"index" json:"category_id,omitempty"`

	Title          string `gorm:"not null" json:"title"`
	Description    string `gorm:"type:text" json:"description"`
	Location       string `json:"location"`
	EmploymentType string `gorm:"type:varchar(30)" json:"employment_type"` // full_time, part_time, contract

	Tags        datatypes.JSON `json:"tags"`         // ["barista", "weekend", ...]
	SalaryRange datatypes.JSON `json:"salary_range"` // { min: ..., max: ..., currency: "..." }

	Status JobStatus `gorm:"type:varchar(20);default:'open';index" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Employer *User     `gorm:"foreignKey:EmployerID" json:"employer,omitempty"`
	Category *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
}

type Category struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"uniqueIndex;not null" json:"name"`
	Slug string `gorm:"uniqueIndex;not null" json:"slug"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
