package handlers

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/kerjahub/kerjahub_be/internal/chat"
	"github.com/kerjahub/kerjahub_be/internal/models"
	"github.com/kerjahub/kerjahub_be/internal/realtime"
)

type ApplicationHandler struct {
	DB      *gorm.DB
	ChatSvc *chat.Service
	Hub     *realtime.Hub
	RDB     *redis.Client
}

func NewApplicationHandler(db *gorm.DB, chatSvc *chat.Service, hub *realtime.Hub, rdb *redis.Client) *ApplicationHandler {
	return &ApplicationHandler{DB: db, ChatSvc: chatSvc, Hub: hub, RDB: rdb}
}

type ApplyRequest struct {
	Note string `json:"note"`
}

// Apply creates a jobseeker's application for an open job. One application
// per (job, jobseeker).
func (h *ApplicationHandler) Apply(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	jobID, err := c.ParamsInt("id")
	if err != nil || jobID < 1 {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid job ID"})
	}

	var req ApplyRequest
	c.BodyParser(&req)

	var job models.Job
	if err := h.DB.First(&job, "id = ?", jobID).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"success": false, "message": "Job not found"})
	}

	if job.Status != models.JobStatusOpen {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Lowongan sudah ditutup"})
	}
	if job.EmployerID == userUUID {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Tidak bisa melamar lowongan sendiri"})
	}

	var existing models.Application
	err = h.DB.Where("job_id = ? AND jobseeker_id = ?", job.ID, userUUID).First(&existing).Error
	if err == nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Sudah melamar lowongan ini"})
	}
	if err != gorm.ErrRecordNotFound {
		return c.Status(500).JSON(fiber.Map{"success": false, "message": "Terjadi kesalahan server"})
	}

	app := models.Application{
		JobID:       job.ID,
		JobseekerID: userUUID,
		Note:        strings.TrimSpace(req.Note),
		Status:      models.ApplicationStatusApplied,
	}

	if err := h.DB.Create(&app).Error; err != nil {
		log.Println("Error creating application:", err)
		return c.Status(500).JSON(fiber.Map{"success": false, "message": "Gagal melamar"})
	}

	// Let the employer know a new applicant arrived
	h.Hub.SendToUser(job.EmployerID, fiber.Map{
		"type":        "new_application",
		"application": app,
	})

	return c.Status(201).JSON(fiber.Map{"success": true, "data": app})
}

// ListMine returns the caller's applications with job info.
func (h *ApplicationHandler) ListMine(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	var apps []models.Application
	if err := h.DB.
		Preload("Job").
		Preload("Job.Employer").
		Where("jobseeker_id = ?", userUUID).
		Order("created_at DESC").
		Find(&apps).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "message": "Gagal mengambil lamaran"})
	}

	return c.JSON(fiber.Map{"success": true, "data": apps})
}

// ListForJob returns the applicants of one of the employer's jobs.
func (h *ApplicationHandler) ListForJob(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	jobID, err := c.ParamsInt("id")
	if err != nil || jobID < 1 {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid job ID"})
	}

	var job models.Job
	if err := h.DB.First(&job, "id = ?", jobID).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"success": false, "message": "Job not found"})
	}
	if job.EmployerID != userUUID {
		return c.Status(403).JSON(fiber.Map{"success": false, "message": "Access denied"})
	}

	var apps []models.Application
	if err := h.DB.
		Preload("Jobseeker").
		Where("job_id = ?", job.ID).
		Order("created_at ASC").
		Find(&apps).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "message": "Gagal mengambil pelamar"})
	}

	return c.JSON(fiber.Map{"success": true, "data": apps})
}

type UpdateApplicationStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus moves an application along applied → reviewing → hired/rejected.
// Hiring opens (or re-finds) the chat thread between employer and jobseeker.
func (h *ApplicationHandler) UpdateStatus(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	appUUID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid application ID"})
	}

	var req UpdateApplicationStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid request body"})
	}

	validStatuses := map[string]bool{
		"reviewing": true,
		"hired":     true,
		"rejected":  true,
	}
	if !validStatuses[req.Status] {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid status"})
	}

	var app models.Application
	if err := h.DB.Preload("Job").First(&app, "id = ?", appUUID).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"success": false, "message": "Application not found"})
	}

	// Only the job's employer moves applications
	if app.Job == nil || app.Job.EmployerID != userUUID {
		return c.Status(403).JSON(fiber.Map{"success": false, "message": "Access denied"})
	}

	app.Status = models.ApplicationStatus(req.Status)
	if err := h.DB.Save(&app).Error; err != nil {
		log.Println("Error updating application status:", err)
		return c.Status(500).JSON(fiber.Map{"success": false, "message": "Failed to update status"})
	}

	var threadID *uuid.UUID
	if app.Status == models.ApplicationStatusHired {
		// hiring implicitly opens the chat between the two sides
		thread, _, err := h.ChatSvc.EnsureThread(app.JobID, app.JobseekerID, userUUID)
		if err != nil {
			log.Println("Error ensuring thread on hire:", err)
		} else {
			threadID = &thread.ID
		}
	}

	// Broadcast status change via WebSocket
	h.Hub.SendToUser(app.JobseekerID, fiber.Map{
		"type":        "application_status_update",
		"application": app,
	})

	if h.RDB != nil {
		notif := map[string]interface{}{
			"type":           "application_status",
			"application_id": app.ID.String(),
			"job_id":         app.JobID,
			"status":         string(app.Status),
		}
		payload, _ := json.Marshal(notif)
		h.RDB.Publish(context.Background(), "notifications:"+app.JobseekerID.String(), payload)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"application": app,
			"thread_id":   threadID,
		},
	})
}
