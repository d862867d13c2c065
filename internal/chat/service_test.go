package chat

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kerjahub/kerjahub_be/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// a :memory: database exists per connection; keep the pool at one
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, gdb.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Job{},
		&models.Application{},
		&models.Thread{},
		&models.ThreadParticipant{},
		&models.Message{},
	))
	return gdb
}

func seedUser(t *testing.T, db *gorm.DB, name string, role models.Role) *models.User {
	t.Helper()
	u := models.User{
		Name:     name,
		Email:    name + "@test.local",
		Password: "x",
		Role:     role,
		IsActive: true,
	}
	require.NoError(t, db.Create(&u).Error)
	return &u
}

func seedJob(t *testing.T, db *gorm.DB, employerID uuid.UUID) *models.Job {
	t.Helper()
	j := models.Job{
		EmployerID: employerID,
		Title:      "Barista weekend",
		Status:     models.JobStatusOpen,
	}
	require.NoError(t, db.Create(&j).Error)
	return &j
}

func TestEnsureThreadIdempotent(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	employer := seedUser(t, db, "employer", models.RoleEmployer)
	worker := seedUser(t, db, "worker", models.RoleJobseeker)
	job := seedJob(t, db, employer.ID)

	t1, created, err := svc.EnsureThread(job.ID, worker.ID, employer.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, employer.ID, t1.EmployerID)
	assert.Equal(t, worker.ID, t1.WorkerID)

	// same pair again, same thread
	t2, created, err := svc.EnsureThread(job.ID, worker.ID, employer.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, t1.ID, t2.ID)

	// pair is unordered: worker opening the chat lands on the same thread
	t3, created, err := svc.EnsureThread(job.ID, employer.ID, worker.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, t1.ID, t3.ID)

	var n int64
	require.NoError(t, db.Model(&models.Thread{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)

	// both participants start at zero unread
	var parts []models.ThreadParticipant
	require.NoError(t, db.Where("thread_id = ?", t1.ID).Find(&parts).Error)
	require.Len(t, parts, 2)
	for _, p := range parts {
		assert.Zero(t, p.UnreadCount)
	}
}

func TestEnsureThreadValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	employer := seedUser(t, db, "employer", models.RoleEmployer)
	worker := seedUser(t, db, "worker", models.RoleJobseeker)
	outsider := seedUser(t, db, "outsider", models.RoleJobseeker)
	job := seedJob(t, db, employer.ID)

	_, _, err := svc.EnsureThread(job.ID, employer.ID, employer.ID)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, _, err = svc.EnsureThread(job.ID, uuid.New(), employer.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = svc.EnsureThread(9999, worker.ID, employer.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// neither side owns the job
	_, _, err = svc.EnsureThread(job.ID, outsider.ID, worker.ID)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestEnsureAdminThread(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	worker := seedUser(t, db, "worker", models.RoleJobseeker)

	// no admin account yet
	_, _, err := svc.EnsureAdminThread(worker.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	admin := seedUser(t, db, "admin", models.RoleAdmin)

	t1, created, err := svc.EnsureAdminThread(worker.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, t1.IsAdminThread)
	assert.Nil(t, t1.JobID)
	assert.Equal(t, admin.ID, t1.EmployerID)

	t2, created, err := svc.EnsureAdminThread(worker.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, t1.ID, t2.ID)

	var n int64
	require.NoError(t, db.Model(&models.Thread{}).Where("is_admin_thread = true").Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestSendMessageOrderingAndUnread(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	employer := seedUser(t, db, "employer", models.RoleEmployer)
	worker := seedUser(t, db, "worker", models.RoleJobseeker)
	job := seedJob(t, db, employer.ID)

	thread, _, err := svc.EnsureThread(job.ID, worker.ID, employer.ID)
	require.NoError(t, err)

	m1, _, err := svc.SendMessage(thread.ID, employer.ID, "Hello")
	require.NoError(t, err)
	m2, _, err := svc.SendMessage(thread.ID, employer.ID, "  Are you available?  ")
	require.NoError(t, err)
	assert.Greater(t, m2.ID, m1.ID)
	assert.Equal(t, "Are you available?", m2.Body)

	// sender's counter untouched, recipient's bumped per message
	assert.Equal(t, 0, unreadOf(t, db, thread.ID, employer.ID))
	assert.Equal(t, 2, unreadOf(t, db, thread.ID, worker.ID))

	// thread snippet follows the latest message
	var reloaded models.Thread
	require.NoError(t, db.First(&reloaded, "id = ?", thread.ID).Error)
	assert.Equal(t, "Are you available?", reloaded.LastMessageText)
	assert.Equal(t, m2.CreatedAt.Unix(), reloaded.LastMessageAt.Unix())

	msgs, err := svc.FetchMessages(thread.ID, worker.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hello", msgs[0].Body)
	assert.Equal(t, "Are you available?", msgs[1].Body)
}

func TestSendMessageRejectsEmptyBody(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	employer := seedUser(t, db, "employer", models.RoleEmployer)
	worker := seedUser(t, db, "worker", models.RoleJobseeker)
	job := seedJob(t, db, employer.ID)

	thread, _, err := svc.EnsureThread(job.ID, worker.ID, employer.ID)
	require.NoError(t, err)

	for _, body := range []string{"", "   ", "\n\t"} {
		_, _, err := svc.SendMessage(thread.ID, employer.ID, body)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}

	var n int64
	require.NoError(t, db.Model(&models.Message{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestSendMessageBodyTooLong(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	employer := seedUser(t, db, "employer", models.RoleEmployer)
	worker := seedUser(t, db, "worker", models.RoleJobseeker)
	job := seedJob(t, db, employer.ID)

	thread, _, err := svc.EnsureThread(job.ID, worker.ID, employer.ID)
	require.NoError(t, err)

	long := make([]byte, MaxBodyLen+1)
	for i := range long {
		long[i] = 'a'
	}
	_, _, err = svc.SendMessage(thread.ID, employer.ID, string(long))
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestAuthorization(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	employer := seedUser(t, db, "employer", models.RoleEmployer)
	worker := seedUser(t, db, "worker", models.RoleJobseeker)
	outsider := seedUser(t, db, "outsider", models.RoleJobseeker)
	job := seedJob(t, db, employer.ID)

	thread, _, err := svc.EnsureThread(job.ID, worker.ID, employer.ID)
	require.NoError(t, err)

	_, _, err = svc.SendMessage(thread.ID, outsider.ID, "hi")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.FetchMessages(thread.ID, outsider.ID, 0, 0)
	assert.ErrorIs(t, err, ErrForbidden)

	err = svc.MarkRead(thread.ID, outsider.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	// unknown thread is NotFound, not Forbidden
	_, err = svc.FetchMessages(uuid.New(), outsider.ID, 0, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchMessagesCursorAndLimit(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	employer := seedUser(t, db, "employer", models.RoleEmployer)
	worker := seedUser(t, db, "worker", models.RoleJobseeker)
	job := seedJob(t, db, employer.ID)

	thread, _, err := svc.EnsureThread(job.ID, worker.ID, employer.ID)
	require.NoError(t, err)

	var ids []uint
	for _, body := range []string{"one", "two", "three", "four"} {
		m, _, err := svc.SendMessage(thread.ID, employer.ID, body)
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}

	// incremental refresh: only what came after the cursor
	msgs, err := svc.FetchMessages(thread.ID, worker.ID, ids[1], 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "three", msgs[0].Body)
	assert.Equal(t, "four", msgs[1].Body)

	msgs, err = svc.FetchMessages(thread.ID, worker.ID, 0, 3)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)

	// oversized limit clamps instead of failing
	msgs, err = svc.FetchMessages(thread.ID, worker.ID, 0, MaxMessageLimit+100)
	require.NoError(t, err)
	assert.Len(t, msgs, 4)
}

func TestMarkRead(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	employer := seedUser(t, db, "employer", models.RoleEmployer)
	worker := seedUser(t, db, "worker", models.RoleJobseeker)
	job := seedJob(t, db, employer.ID)

	thread, _, err := svc.EnsureThread(job.ID, worker.ID, employer.ID)
	require.NoError(t, err)

	_, _, err = svc.SendMessage(thread.ID, employer.ID, "ping")
	require.NoError(t, err)
	require.Equal(t, 1, unreadOf(t, db, thread.ID, worker.ID))

	require.NoError(t, svc.MarkRead(thread.ID, worker.ID))
	assert.Equal(t, 0, unreadOf(t, db, thread.ID, worker.ID))
	assert.Equal(t, 0, unreadOf(t, db, thread.ID, employer.ID))

	// already zero: still fine
	require.NoError(t, svc.MarkRead(thread.ID, worker.ID))
	assert.Equal(t, 0, unreadOf(t, db, thread.ID, worker.ID))
}

func TestListThreadsOrderAndUnread(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	employer := seedUser(t, db, "employer", models.RoleEmployer)
	worker := seedUser(t, db, "worker", models.RoleJobseeker)
	other := seedUser(t, db, "other", models.RoleJobseeker)
	job1 := seedJob(t, db, employer.ID)
	job2 := seedJob(t, db, employer.ID)

	t1, _, err := svc.EnsureThread(job1.ID, worker.ID, employer.ID)
	require.NoError(t, err)
	t2, _, err := svc.EnsureThread(job2.ID, other.ID, employer.ID)
	require.NoError(t, err)

	_, _, err = svc.SendMessage(t1.ID, worker.ID, "first")
	require.NoError(t, err)
	_, _, err = svc.SendMessage(t2.ID, other.ID, "second")
	require.NoError(t, err)

	summaries, err := svc.ListThreads(employer.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// most recently active first
	assert.Equal(t, t2.ID, summaries[0].Thread.ID)
	assert.Equal(t, t1.ID, summaries[1].Thread.ID)
	assert.Equal(t, 1, summaries[0].UnreadCount)
	assert.Equal(t, 1, summaries[1].UnreadCount)

	// the worker only sees their own thread
	workerSide, err := svc.ListThreads(worker.ID)
	require.NoError(t, err)
	require.Len(t, workerSide, 1)
	assert.Equal(t, t1.ID, workerSide[0].Thread.ID)
	assert.Equal(t, 0, workerSide[0].UnreadCount)

	total, err := svc.UnreadTotal(employer.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

// TestEndToEndScenario walks the full employer/worker exchange.
func TestEndToEndScenario(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	e := seedUser(t, db, "employer", models.RoleEmployer)
	w := seedUser(t, db, "worker", models.RoleJobseeker)
	x := seedUser(t, db, "third", models.RoleJobseeker)
	j := seedJob(t, db, e.ID)

	// (1) E opens the thread
	thread, created, err := svc.EnsureThread(j.ID, w.ID, e.ID)
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, 0, unreadOf(t, db, thread.ID, e.ID))
	assert.Equal(t, 0, unreadOf(t, db, thread.ID, w.ID))

	// (2) E sends "Hello"
	_, _, err = svc.SendMessage(thread.ID, e.ID, "Hello")
	require.NoError(t, err)
	assert.Equal(t, 0, unreadOf(t, db, thread.ID, e.ID))
	assert.Equal(t, 1, unreadOf(t, db, thread.ID, w.ID))

	// (3) W reads
	msgs, err := svc.FetchMessages(thread.ID, w.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hello", msgs[0].Body)
	require.NoError(t, svc.MarkRead(thread.ID, w.ID))
	assert.Equal(t, 0, unreadOf(t, db, thread.ID, w.ID))

	// (4) W replies
	_, _, err = svc.SendMessage(thread.ID, w.ID, "Hi back")
	require.NoError(t, err)
	assert.Equal(t, 1, unreadOf(t, db, thread.ID, e.ID))
	assert.Equal(t, 0, unreadOf(t, db, thread.ID, w.ID))

	msgs, err = svc.FetchMessages(thread.ID, e.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hello", msgs[0].Body)
	assert.Equal(t, "Hi back", msgs[1].Body)

	// (5) outsider is rejected
	_, err = svc.FetchMessages(thread.ID, x.ID, 0, 0)
	assert.ErrorIs(t, err, ErrForbidden)
}

func unreadOf(t *testing.T, db *gorm.DB, threadID, userID uuid.UUID) int {
	t.Helper()
	var p models.ThreadParticipant
	require.NoError(t, db.Where("thread_id = ? AND user_id = ?", threadID, userID).First(&p).Error)
	return p.UnreadCount
}
