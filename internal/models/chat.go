// internal/models/chat.go
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Thread represents a chat conversation between an employer and a jobseeker,
// scoped to a job, or between a user and platform admin (is_admin_thread).
type Thread struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	JobID      *uint     `gorm:"index" json:"job_id,omitempty"` // nil for admin threads
	EmployerID uuid.UUID `gorm:"type:uuid;index" json:"employer_id"`
	WorkerID   uuid.UUID `gorm:"type:uuid;index" json:"worker_id"`

	IsAdminThread bool `gorm:"default:false" json:"is_admin_thread"`

	// PairKey is the dedup key: one thread per (job, unordered pair), one
	// admin thread per user. Unique index makes find-or-create race-safe.
	PairKey string `gorm:"uniqueIndex;not null" json:"-"`

	LastMessageText string    `json:"last_message_text"`
	LastMessageAt   time.Time `json:"last_message_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Employer     *User               `gorm:"foreignKey:EmployerID" json:"employer,omitempty"`
	Worker       *User               `gorm:"foreignKey:WorkerID" json:"worker,omitempty"`
	Job          *Job                `gorm:"foreignKey:JobID" json:"job,omitempty"`
	Participants []ThreadParticipant `gorm:"foreignKey:ThreadID" json:"participants,omitempty"`
	Messages     []Message           `gorm:"foreignKey:ThreadID" json:"messages,omitempty"`
}

func (t *Thread) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// ThreadPairKey builds the dedup key for a job thread. The pair is sorted so
// the key doesn't depend on who opened the chat.
func ThreadPairKey(jobID uint, a, b uuid.UUID) string {
	lo, hi := a.String(), b.String()
	if hi < lo {
		lo, hi = hi, lo
	}
	return fmt.Sprintf("job:%d:%s:%s", jobID, lo, hi)
}

// AdminThreadPairKey builds the dedup key for a user's contact-admin thread.
func AdminThreadPairKey(userID uuid.UUID) string {
	return "admin:" + userID.String()
}

// ThreadParticipant holds one participant's unread counter for a thread.
// Sending bumps the other side's counter, mark-read resets yours.
type ThreadParticipant struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ThreadID uuid.UUID `gorm:"type:uuid;index:idx_thread_participant,unique;not null" json:"thread_id"`
	UserID   uuid.UUID `gorm:"type:uuid;index:idx_thread_participant,unique;not null" json:"user_id"`

	UnreadCount int        `gorm:"default:0" json:"unread_count"`
	LastReadAt  *time.Time `json:"last_read_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *ThreadParticipant) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Message is one chat message. Immutable after creation; the auto-increment
// id is the total order within a thread and the cursor for incremental fetch.
type Message struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	ThreadID uuid.UUID `gorm:"type:uuid;index;not null" json:"thread_id"`
	SenderID uuid.UUID `gorm:"type:uuid;index;not null" json:"sender_id"`

	Body      string    `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	Sender *User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}
