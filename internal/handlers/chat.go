package handlers

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/kerjahub/kerjahub_be/internal/chat"
	"github.com/kerjahub/kerjahub_be/internal/models"
	"github.com/kerjahub/kerjahub_be/internal/realtime"
)

type ChatHandler struct {
	DB  *gorm.DB
	Svc *chat.Service
	Hub *realtime.Hub
	RDB *redis.Client
}

func NewChatHandler(db *gorm.DB, svc *chat.Service, hub *realtime.Hub, rdb *redis.Client) *ChatHandler {
	return &ChatHandler{DB: db, Svc: svc, Hub: hub, RDB: rdb}
}

type ensureThreadReq struct {
	JobID         *uint   `json:"job_id"`
	ParticipantID *string `json:"participant_id"`
	Admin         bool    `json:"admin"`
}

// EnsureThread creates a new thread or returns the existing one. With
// admin=true it resolves the caller's contact-admin thread instead.
func (h *ChatHandler) EnsureThread(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	var req ensureThreadReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid request"})
	}

	var thread *models.Thread
	var created bool

	if req.Admin {
		thread, created, err = h.Svc.EnsureAdminThread(userUUID)
	} else {
		if req.JobID == nil || req.ParticipantID == nil {
			return c.Status(400).JSON(fiber.Map{
				"success": false,
				"message": "job_id and participant_id required",
			})
		}
		participantUUID, perr := uuid.Parse(*req.ParticipantID)
		if perr != nil {
			return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid participant ID"})
		}
		thread, created, err = h.Svc.EnsureThread(*req.JobID, participantUUID, userUUID)
	}
	if err != nil {
		return chatError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"created": created,
		"data":    thread,
	})
}

type UserMini struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type ThreadOut struct {
	ID              string    `json:"id"`
	JobID           *uint     `json:"job_id,omitempty"`
	JobTitle        string    `json:"job_title,omitempty"`
	EmployerID      string    `json:"employer_id"`
	WorkerID        string    `json:"worker_id"`
	IsAdminThread   bool      `json:"is_admin_thread"`
	LastMessageText string    `json:"last_message_text"`
	LastMessageAt   time.Time `json:"last_message_at"`
	UnreadCount     int       `json:"unread_count"`

	Counterpart *UserMini `json:"counterpart,omitempty"`
}

// GetThreads returns the caller's threads, most recently active first, each
// annotated with the caller's unread count.
func (h *ChatHandler) GetThreads(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	summaries, err := h.Svc.ListThreads(userUUID)
	if err != nil {
		log.Println("Error fetching threads:", err)
		return c.Status(500).JSON(fiber.Map{"success": false, "message": "Failed to fetch threads"})
	}

	out := make([]ThreadOut, 0, len(summaries))
	for _, s := range summaries {
		t := s.Thread

		// the other side of the conversation, for list rendering
		other := t.Employer
		if t.EmployerID == userUUID {
			other = t.Worker
		}
		var counterpart *UserMini
		if other != nil {
			counterpart = &UserMini{
				ID:   other.ID.String(),
				Name: other.Name,
				Role: string(other.Role),
			}
		}

		o := ThreadOut{
			ID:              t.ID.String(),
			JobID:           t.JobID,
			EmployerID:      t.EmployerID.String(),
			WorkerID:        t.WorkerID.String(),
			IsAdminThread:   t.IsAdminThread,
			LastMessageText: t.LastMessageText,
			LastMessageAt:   t.LastMessageAt,
			UnreadCount:     s.UnreadCount,
			Counterpart:     counterpart,
		}
		if t.Job != nil {
			o.JobTitle = t.Job.Title
		}
		out = append(out, o)
	}

	return c.JSON(fiber.Map{"success": true, "data": out})
}

// GetUnreadTotal returns the total count of unread messages across all threads
func (h *ChatHandler) GetUnreadTotal(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	total, err := h.Svc.UnreadTotal(userUUID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "message": "Failed to count unread messages"})
	}

	return c.JSON(fiber.Map{"success": true, "data": total})
}

// MessageResponse DTO for message payloads
type MessageResponse struct {
	ID        uint      `json:"id"`
	ThreadID  string    `json:"thread_id"`
	SenderID  string    `json:"sender_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func toMessageResponse(m *models.Message) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		ThreadID:  m.ThreadID.String(),
		SenderID:  m.SenderID.String(),
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
	}
}

// GetMessages returns messages for a thread in send order. Supports
// incremental refresh via ?after_id= and page size via ?limit=.
func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	threadUUID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid thread ID"})
	}

	var afterID uint
	if v := c.Query("after_id"); v != "" {
		if x, err := strconv.ParseUint(v, 10, 64); err == nil {
			afterID = uint(x)
		}
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		if x, err := strconv.Atoi(v); err == nil {
			limit = x
		}
	}

	messages, err := h.Svc.FetchMessages(threadUUID, userUUID, afterID, limit)
	if err != nil {
		return chatError(c, err)
	}

	responses := make([]MessageResponse, 0, len(messages))
	for i := range messages {
		responses = append(responses, toMessageResponse(&messages[i]))
	}

	return c.JSON(fiber.Map{"success": true, "data": responses})
}

// MarkAsRead resets the caller's unread counter on the thread.
func (h *ChatHandler) MarkAsRead(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	threadUUID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid thread ID"})
	}

	if err := h.Svc.MarkRead(threadUUID, userUUID); err != nil {
		return chatError(c, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

// SendMessage appends a message to a thread and notifies the other side.
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	threadUUID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid thread ID"})
	}

	var req struct {
		Body string `json:"body"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid request"})
	}

	msg, thread, err := h.Svc.SendMessage(threadUUID, userUUID, req.Body)
	if err != nil {
		return chatError(c, err)
	}

	msgResp := toMessageResponse(msg)

	// Broadcast via WebSocket to both participants
	h.Hub.SendToThread([]uuid.UUID{thread.EmployerID, thread.WorkerID}, fiber.Map{
		"type":    "new_message",
		"message": msgResp,
	})

	// Push notification via Redis for the recipient
	recipientID := thread.EmployerID
	if userUUID == thread.EmployerID {
		recipientID = thread.WorkerID
	}

	if h.RDB != nil {
		notif := map[string]interface{}{
			"type":      "chat_message",
			"thread_id": threadUUID.String(),
			"sender_id": userUUID.String(),
			"body":      msg.Body,
		}
		payload, _ := json.Marshal(notif)
		h.RDB.Publish(context.Background(), "notifications:"+recipientID.String(), payload)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    msgResp,
	})
}

// WebSocketHandler handles WebSocket connections
func (h *ChatHandler) WebSocketHandler(c *websocket.Conn) {
	userID := c.Query("user_id")
	if userID == "" {
		log.Println("WebSocket: user_id parameter missing")
		c.Close()
		return
	}

	userUUID, err := uuid.Parse(userID)
	if err != nil {
		log.Println("WebSocket: invalid user_id:", userID, "error:", err)
		c.Close()
		return
	}

	log.Printf("WebSocket: user %s connected\n", userID)

	client := &realtime.Client{
		ID:     uuid.New().String(),
		UserID: userUUID,
		Conn:   &realtime.WebSocketConn{Conn: c},
		Send:   make(chan []byte, 256),
	}

	h.Hub.RegisterClient(client)
	defer func() {
		h.Hub.UnregisterClient(client)
		log.Printf("WebSocket: user %s disconnected\n", userID)
	}()

	// Pump hub messages down to the client
	go func() {
		for msg := range client.Send {
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Println("WebSocket write error:", err)
				return
			}
		}
	}()

	// Read loop keeps the connection alive
	for {
		var payload map[string]interface{}
		if err := c.ReadJSON(&payload); err != nil {
			log.Printf("WebSocket read error for user %s: %v\n", userID, err)
			break
		}

		if msgType, ok := payload["type"].(string); ok && msgType == "pong" {
			continue
		}
	}
}
