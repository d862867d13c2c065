package handlers

import (
	"encoding/json"
	"log"
	"math"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/kerjahub/kerjahub_be/internal/models"
)

type JobHandler struct {
	DB *gorm.DB
}

func NewJobHandler(db *gorm.DB) *JobHandler {
	return &JobHandler{DB: db}
}

// ==== REQUEST STRUCTS ====

type SalaryRangeReq struct {
	Min      int64  `json:"min"`
	Max      int64  `json:"max"`
	Currency string `json:"currency"`
}

type JobReq struct {
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Location       string         `json:"location"`
	EmploymentType string         `json:"employment_type"` // full_time / part_time / contract
	CategoryID     *uint          `json:"category_id"`
	Tags           []string       `json:"tags"`
	SalaryRange    SalaryRangeReq `json:"salary_range"`
}

// ==== HANDLER ====

func (h *JobHandler) Create(c *fiber.Ctx) error {
	var req JobReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Body request tidak valid",
		})
	}

	if strings.TrimSpace(req.Title) == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Judul wajib diisi",
		})
	}

	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Unauthorized",
		})
	}

	tagsJSON, err := json.Marshal(req.Tags)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Gagal memproses tags",
		})
	}
	salaryJSON, err := json.Marshal(req.SalaryRange)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Gagal memproses salary range",
		})
	}

	job := models.Job{
		EmployerID:     userUUID,
		CategoryID:     req.CategoryID,
		Title:          strings.TrimSpace(req.Title),
		Description:    req.Description,
		Location:       req.Location,
		EmploymentType: req.EmploymentType,
		Tags:           datatypes.JSON(tagsJSON),
		SalaryRange:    datatypes.JSON(salaryJSON),
		Status:         models.JobStatusOpen,
	}

	if err := h.DB.Create(&job).Error; err != nil {
		log.Println("Error creating job:", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Gagal membuat lowongan",
		})
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    job,
	})
}

func (h *JobHandler) ListMine(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Unauthorized",
		})
	}

	var jobs []models.Job
	if err := h.DB.
		Preload("Category").
		Where("employer_id = ?", userUUID).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Gagal mengambil lowongan",
		})
	}

	return c.JSON(fiber.Map{"success": true, "data": jobs})
}

func (h *JobHandler) ListPublic(c *fiber.Ctx) error {
	// ===== FILTER =====
	qSearch := c.Query("q")
	location := c.Query("location")
	employmentType := c.Query("type")
	categoryID := c.QueryInt("cat", 0)
	sortParam := c.Query("sort") // latest | oldest

	q := h.DB.Model(&models.Job{}).
		Preload("Employer").
		Preload("Category").
		Where("status = ?", models.JobStatusOpen)

	if qSearch != "" {
		q = q.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(qSearch)+"%")
	}
	if location != "" {
		q = q.Where("LOWER(location) LIKE ?", "%"+strings.ToLower(location)+"%")
	}
	if employmentType != "" {
		q = q.Where("employment_type = ?", employmentType)
	}
	if categoryID > 0 {
		q = q.Where("category_id = ?", categoryID)
	}

	// ===== SORTING =====
	switch sortParam {
	case "oldest":
		q = q.Order("created_at ASC")
	default:
		q = q.Order("created_at DESC")
	}

	// ===== PAGINATION =====
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := (page - 1) * limit

	var totalItems int64
	if err := q.Session(&gorm.Session{}).Count(&totalItems).Error; err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Gagal menghitung lowongan",
		})
	}

	var jobs []models.Job
	if err := q.Limit(limit).Offset(offset).Find(&jobs).Error; err != nil {
		log.Println("Error listing jobs:", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Gagal mengambil lowongan",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    jobs,
		"meta": fiber.Map{
			"page":        page,
			"limit":       limit,
			"total_items": totalItems,
			"total_pages": int(math.Ceil(float64(totalItems) / float64(limit))),
		},
	})
}

func (h *JobHandler) GetDetail(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "ID tidak valid",
		})
	}

	var job models.Job
	if err := h.DB.
		Preload("Employer").
		Preload("Category").
		First(&job, "id = ?", id).Error; err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Lowongan tidak ditemukan",
		})
	}

	return c.JSON(fiber.Map{"success": true, "data": job})
}

func (h *JobHandler) Update(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Unauthorized",
		})
	}

	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "ID tidak valid",
		})
	}

	var job models.Job
	if err := h.DB.First(&job, "id = ?", id).Error; err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Lowongan tidak ditemukan",
		})
	}

	if job.EmployerID != userUUID {
		return c.Status(http.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"message": "Access denied",
		})
	}

	var req JobReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Body request tidak valid",
		})
	}

	tagsJSON, _ := json.Marshal(req.Tags)
	salaryJSON, _ := json.Marshal(req.SalaryRange)

	job.Title = strings.TrimSpace(req.Title)
	job.Description = req.Description
	job.Location = req.Location
	job.EmploymentType = req.EmploymentType
	job.CategoryID = req.CategoryID
	job.Tags = datatypes.JSON(tagsJSON)
	job.SalaryRange = datatypes.JSON(salaryJSON)

	if err := h.DB.Save(&job).Error; err != nil {
		log.Println("Error updating job:", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Gagal memperbarui lowongan",
		})
	}

	return c.JSON(fiber.Map{"success": true, "data": job})
}

// Close sets the posting to closed so it drops out of the public listing.
// Existing chat threads on the job stay readable.
func (h *JobHandler) Close(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Unauthorized",
		})
	}

	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "ID tidak valid",
		})
	}

	var job models.Job
	if err := h.DB.First(&job, "id = ?", id).Error; err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Lowongan tidak ditemukan",
		})
	}

	if job.EmployerID != userUUID {
		return c.Status(http.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"message": "Access denied",
		})
	}

	if err := h.DB.Model(&job).Update("status", models.JobStatusClosed).Error; err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Gagal menutup lowongan",
		})
	}

	return c.JSON(fiber.Map{"success": true})
}
