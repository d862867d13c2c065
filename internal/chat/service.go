// Package chat implements the messaging core: thread find-or-create, the
// append-only message log and per-participant unread tracking.
package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kerjahub/kerjahub_be/internal/models"
)

const (
	// MaxBodyLen caps a message body after trimming.
	MaxBodyLen = 4000

	// snippetLen caps the denormalized last-message preview on the thread.
	snippetLen = 160

	DefaultMessageLimit = 50
	MaxMessageLimit     = 200
)

type Service struct {
	DB *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{DB: db}
}

// EnsureThread returns the unique thread for (job, requester, participant),
// creating it if needed. Concurrent calls with the same pair land on the
// pair_key unique index; the loser re-fetches the winner's row, so callers
// never see the race.
func (s *Service) EnsureThread(jobID uint, participantID, requesterID uuid.UUID) (*models.Thread, bool, error) {
	if participantID == requesterID {
		return nil, false, fmt.Errorf("%w: cannot open a thread with yourself", ErrInvalidRequest)
	}

	var participant models.User
	if err := s.DB.First(&participant, "id = ?", participantID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, false, fmt.Errorf("%w: participant", ErrNotFound)
		}
		return nil, false, err
	}

	var job models.Job
	if err := s.DB.First(&job, "id = ?", jobID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, false, fmt.Errorf("%w: job", ErrNotFound)
		}
		return nil, false, err
	}

	// One side of the pair must be the job's employer.
	var employerID, workerID uuid.UUID
	switch job.EmployerID {
	case requesterID:
		employerID, workerID = requesterID, participantID
	case participantID:
		employerID, workerID = participantID, requesterID
	default:
		return nil, false, fmt.Errorf("%w: neither party owns this job", ErrInvalidRequest)
	}

	thread := models.Thread{
		JobID:      &job.ID,
		EmployerID: employerID,
		WorkerID:   workerID,
		PairKey:    models.ThreadPairKey(job.ID, requesterID, participantID),
	}
	created, err := s.ensure(&thread)
	if err != nil {
		return nil, false, err
	}
	return &thread, created, nil
}

// EnsureAdminThread returns the requester's single contact-admin thread,
// creating it against the platform admin account if needed.
func (s *Service) EnsureAdminThread(requesterID uuid.UUID) (*models.Thread, bool, error) {
	var admin models.User
	err := s.DB.
		Where("role = ? AND is_active = true", models.RoleAdmin).
		Order("created_at ASC").
		First(&admin).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, false, fmt.Errorf("%w: no admin account", ErrNotFound)
		}
		return nil, false, err
	}
	if admin.ID == requesterID {
		return nil, false, fmt.Errorf("%w: cannot open a thread with yourself", ErrInvalidRequest)
	}

	thread := models.Thread{
		EmployerID:    admin.ID,
		WorkerID:      requesterID,
		IsAdminThread: true,
		PairKey:       models.AdminThreadPairKey(requesterID),
	}
	created, err := s.ensure(&thread)
	if err != nil {
		return nil, false, err
	}
	return &thread, created, nil
}

// ensure inserts the thread with ON CONFLICT DO NOTHING on pair_key. When the
// insert is a no-op someone else won the race; fetch their row instead.
func (s *Service) ensure(thread *models.Thread) (bool, error) {
	created := false
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pair_key"}},
			DoNothing: true,
		}).Create(thread)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// fetch into a fresh value: thread already carries the losing id
			// and First would add it to the WHERE clause
			var winner models.Thread
			if err := tx.Where("pair_key = ?", thread.PairKey).First(&winner).Error; err != nil {
				return err
			}
			*thread = winner
			return nil
		}

		created = true
		participants := []models.ThreadParticipant{
			{ThreadID: thread.ID, UserID: thread.EmployerID},
			{ThreadID: thread.ID, UserID: thread.WorkerID},
		}
		return tx.Create(&participants).Error
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// SendMessage appends a message, refreshes the thread snippet and bumps the
// unread counter of every participant except the sender, all in one tx.
func (s *Service) SendMessage(threadID, senderID uuid.UUID, body string) (*models.Message, *models.Thread, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, nil, fmt.Errorf("%w: empty message body", ErrInvalidRequest)
	}
	if len(body) > MaxBodyLen {
		return nil, nil, fmt.Errorf("%w: message body too long", ErrInvalidRequest)
	}

	var thread models.Thread
	var msg models.Message
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&thread, "id = ?", threadID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("%w: thread", ErrNotFound)
			}
			return err
		}
		if err := s.requireParticipant(tx, threadID, senderID); err != nil {
			return err
		}

		msg = models.Message{
			ThreadID: threadID,
			SenderID: senderID,
			Body:     body,
		}
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.Thread{}).
			Where("id = ?", threadID).
			Updates(map[string]interface{}{
				"last_message_text": snippet(body),
				"last_message_at":   msg.CreatedAt,
			}).Error; err != nil {
			return err
		}

		return tx.Model(&models.ThreadParticipant{}).
			Where("thread_id = ? AND user_id <> ?", threadID, senderID).
			Update("unread_count", gorm.Expr("unread_count + 1")).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &msg, &thread, nil
}

// FetchMessages returns the thread's messages in send order. afterID is an
// exclusive cursor for incremental refresh (0 = from the beginning).
func (s *Service) FetchMessages(threadID, requesterID uuid.UUID, afterID uint, limit int) ([]models.Message, error) {
	if err := s.requireThread(threadID); err != nil {
		return nil, err
	}
	if err := s.requireParticipant(s.DB, threadID, requesterID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	if limit > MaxMessageLimit {
		limit = MaxMessageLimit
	}

	q := s.DB.Where("thread_id = ?", threadID)
	if afterID > 0 {
		q = q.Where("id > ?", afterID)
	}

	var msgs []models.Message
	if err := q.Order("id ASC").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// MarkRead zeroes the caller's unread counter on the thread. Already-zero is
// a no-op, not an error.
func (s *Service) MarkRead(threadID, userID uuid.UUID) error {
	if err := s.requireThread(threadID); err != nil {
		return err
	}

	now := time.Now()
	res := s.DB.Model(&models.ThreadParticipant{}).
		Where("thread_id = ? AND user_id = ?", threadID, userID).
		Updates(map[string]interface{}{
			"unread_count": 0,
			"last_read_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: not a thread participant", ErrForbidden)
	}
	return nil
}

// ThreadSummary is a thread annotated with the requesting user's unread count.
type ThreadSummary struct {
	Thread      models.Thread
	UnreadCount int
}

// ListThreads returns every thread the user participates in, most recently
// active first.
func (s *Service) ListThreads(userID uuid.UUID) ([]ThreadSummary, error) {
	var parts []models.ThreadParticipant
	if err := s.DB.Where("user_id = ?", userID).Find(&parts).Error; err != nil {
		return nil, err
	}

	unread := make(map[uuid.UUID]int, len(parts))
	ids := make([]uuid.UUID, 0, len(parts))
	for _, p := range parts {
		unread[p.ThreadID] = p.UnreadCount
		ids = append(ids, p.ThreadID)
	}

	out := make([]ThreadSummary, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var threads []models.Thread
	if err := s.DB.
		Preload("Employer").
		Preload("Worker").
		Preload("Job").
		Where("id IN ?", ids).
		Order("last_message_at DESC").
		Find(&threads).Error; err != nil {
		return nil, err
	}

	for _, t := range threads {
		out = append(out, ThreadSummary{Thread: t, UnreadCount: unread[t.ID]})
	}
	return out, nil
}

// UnreadTotal sums the user's unread counters across all threads.
func (s *Service) UnreadTotal(userID uuid.UUID) (int64, error) {
	var total int64
	err := s.DB.Model(&models.ThreadParticipant{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(unread_count), 0)").
		Scan(&total).Error
	return total, err
}

// Participants returns the user ids on the thread (for realtime fan-out).
func (s *Service) Participants(threadID uuid.UUID) ([]uuid.UUID, error) {
	var parts []models.ThreadParticipant
	if err := s.DB.Where("thread_id = ?", threadID).Find(&parts).Error; err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(parts))
	for _, p := range parts {
		ids = append(ids, p.UserID)
	}
	return ids, nil
}

func (s *Service) requireThread(threadID uuid.UUID) error {
	var thread models.Thread
	if err := s.DB.Select("id").First(&thread, "id = ?", threadID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fmt.Errorf("%w: thread", ErrNotFound)
		}
		return err
	}
	return nil
}

func (s *Service) requireParticipant(tx *gorm.DB, threadID, userID uuid.UUID) error {
	var n int64
	if err := tx.Model(&models.ThreadParticipant{}).
		Where("thread_id = ? AND user_id = ?", threadID, userID).
		Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: not a thread participant", ErrForbidden)
	}
	return nil
}

func snippet(body string) string {
	r := []rune(body)
	if len(r) <= snippetLen {
		return body
	}
	return string(r[:snippetLen])
}
