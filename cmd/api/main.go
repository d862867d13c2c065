package main

import (
	"context"
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"

	"github.com/kerjahub/kerjahub_be/internal/chat"
	"github.com/kerjahub/kerjahub_be/internal/config"
	"github.com/kerjahub/kerjahub_be/internal/db"
	"github.com/kerjahub/kerjahub_be/internal/handlers"
	"github.com/kerjahub/kerjahub_be/internal/middleware"
	"github.com/kerjahub/kerjahub_be/internal/models"
	"github.com/kerjahub/kerjahub_be/internal/realtime"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}

	rdb := realtime.NewRedis()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal("Redis not reachable:", err)
	}

	hub := realtime.NewHub()
	go hub.Run()

	if err := gdb.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Job{},
		&models.Application{},
		&models.Thread{},
		&models.ThreadParticipant{},
		&models.Message{},
	); err != nil {
		log.Fatal(err)
	}

	chatSvc := chat.NewService(gdb)

	chatH := handlers.NewChatHandler(gdb, chatSvc, hub, rdb)
	jobH := handlers.NewJobHandler(gdb)
	categoryH := handlers.NewCategoryHandler(gdb)
	appH := handlers.NewApplicationHandler(gdb, chatSvc, hub, rdb)

	authH := &handlers.AuthHandler{
		DB:        gdb,
		JWTSecret: cfg.JWTSecret,
		Expires:   cfg.JWTExpiresMin,
	}
	googleH := &handlers.GoogleOAuthHandler{
		DB:              gdb,
		JWTSecret:       cfg.JWTSecret,
		Expires:         cfg.JWTExpiresMin,
		GoogleClientID:  cfg.GoogleClientID,
		GoogleSecret:    cfg.GoogleSecret,
		GoogleRedirect:  cfg.GoogleRedirect,
		FrontendBaseURL: cfg.FrontendBaseURL,
	}

	app := fiber.New()

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://127.0.0.1:3000, http://localhost:3000",
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		ExposeHeaders:    "Content-Length",
		AllowCredentials: true,
	}))

	app.Options("/*", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	api := app.Group("/api")

	// public
	api.Post("/auth/register", authH.Register)
	api.Post("/auth/login", authH.Login)
	api.Post("/auth/logout", authH.Logout)
	api.Get("/auth/google/start", googleH.GoogleStart)
	api.Get("/auth/google/callback", googleH.GoogleCallback)
	api.Get("/categories", categoryH.GetCategories)
	api.Get("/jobs", jobH.ListPublic)
	api.Get("/jobs/:id", jobH.GetDetail)

	// protected (JWT)
	protected := api.Group("/",
		middleware.JWTFromCookie(cfg.JWTSecret),
		middleware.AttachJWTLocals(),
	)

	protected.Get("/me", func(c *fiber.Ctx) error {
		uid := c.Locals("userId")

		var user models.User
		if err := gdb.First(&user, "id = ?", uid).Error; err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "User tidak ditemukan",
			})
		}

		return c.JSON(fiber.Map{
			"success": true,
			"data": fiber.Map{
				"id":    user.ID,
				"name":  user.Name,
				"email": user.Email,
				"role":  user.Role,
			},
		})
	})

	// employer only
	protected.Post("/employer/jobs",
		middleware.RequireRoles("employer"),
		jobH.Create,
	)
	protected.Get("/employer/jobs",
		middleware.RequireRoles("employer"),
		jobH.ListMine,
	)
	protected.Put("/employer/jobs/:id",
		middleware.RequireRoles("employer"),
		jobH.Update,
	)
	protected.Patch("/employer/jobs/:id/close",
		middleware.RequireRoles("employer"),
		jobH.Close,
	)
	protected.Get("/employer/jobs/:id/applications",
		middleware.RequireRoles("employer"),
		appH.ListForJob,
	)
	protected.Patch("/applications/:id/status",
		middleware.RequireRoles("employer"),
		appH.UpdateStatus,
	)

	// jobseeker only
	protected.Post("/jobs/:id/apply",
		middleware.RequireRoles("jobseeker"),
		appH.Apply,
	)
	protected.Get("/applications/mine",
		middleware.RequireRoles("jobseeker"),
		appH.ListMine,
	)

	chatGroup := protected.Group("/chat")

	chatGroup.Post("/threads", chatH.EnsureThread)
	chatGroup.Get("/threads", chatH.GetThreads)
	chatGroup.Get("/threads/:id/messages", chatH.GetMessages)
	chatGroup.Post("/threads/:id/messages", chatH.SendMessage)
	chatGroup.Patch("/threads/:id/read", chatH.MarkAsRead)
	chatGroup.Get("/unread-total", chatH.GetUnreadTotal)

	// WebSocket endpoint (no JWT middleware, auth via query param)
	app.Get("/ws/chat", websocket.New(chatH.WebSocketHandler))

	// admin only
	protected.Get("/admin/users",
		middleware.RequireRoles("admin"),
		func(c *fiber.Ctx) error {
			var users []models.User
			if err := gdb.Order("created_at DESC").Find(&users).Error; err != nil {
				return c.Status(500).JSON(fiber.Map{"success": false, "message": "Gagal mengambil users"})
			}
			return c.JSON(fiber.Map{"success": true, "data": users})
		},
	)

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}
	log.Fatal(app.Listen(":" + port))
}
