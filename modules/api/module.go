package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/go-monolith/mono"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	domain "github.com/example/chat-server/domain/chat"
	"github.com/example/chat-server/modules/broadcast"
	"github.com/example/chat-server/modules/chat"
)

const defaultHistoryLimit = 50

// Module is the transport shell: the Fiber HTTP server, the WebSocket
// protocol endpoint, and a small read-only REST surface.
type Module struct {
	app    *fiber.App
	chat   *chat.Module
	hub    *broadcast.Hub
	port   string
	logger *slog.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new API module bound to the chat core.
func NewModule(chatModule *chat.Module) *Module {
	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}
	return &Module{
		chat:   chatModule,
		port:   port,
		logger: slog.Default().With("module", "api"),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "api"
}

// SetHub sets the broadcast hub (wired from main).
func (m *Module) SetHub(hub *broadcast.Hub) {
	m.hub = hub
}

// Start initializes the Fiber HTTP server.
func (m *Module) Start(_ context.Context) error {
	if m.chat == nil {
		return fmt.Errorf("chat module dependency not set")
	}
	if m.hub == nil {
		return fmt.Errorf("broadcast hub dependency not set")
	}

	m.app = fiber.New(fiber.Config{
		AppName:               "chat-server",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	m.app.Use(recover.New())

	allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000,http://localhost:8080"
	}
	m.app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowMethods: "GET,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	m.setupRoutes()

	go func() {
		if err := m.app.Listen(":" + m.port); err != nil {
			m.logger.Error("HTTP server error", "error", err)
		}
	}()

	m.logger.Info("HTTP server started", "port", m.port)
	return nil
}

// Stop shuts down the Fiber HTTP server.
func (m *Module) Stop(_ context.Context) error {
	if m.app == nil {
		return nil
	}
	m.logger.Info("Shutting down HTTP server")
	return m.app.Shutdown()
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: map[string]any{
			"port":              m.port,
			"connected_clients": m.hub.ClientCount(),
		},
	}
}

// setupRoutes configures all HTTP routes.
func (m *Module) setupRoutes() {
	m.app.Get("/health", m.healthHandler)

	m.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	m.app.Get("/ws", websocket.New(m.handleWebSocket))

	api := m.app.Group("/api/v1")
	api.Get("/rooms", m.listRooms)
	api.Get("/rooms/:id", m.getRoom)
	api.Get("/rooms/:id/history", m.getRoomHistory)
	api.Get("/history", m.getGlobalHistory)
}

// healthHandler handles GET /health.
func (m *Module) healthHandler(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status: "healthy",
		Details: map[string]any{
			"module":              "api",
			"connected_clients":   m.hub.ClientCount(),
			"identified_sessions": m.chat.Sessions().Count(),
		},
	})
}

// listRooms handles GET /api/v1/rooms.
func (m *Module) listRooms(c *fiber.Ctx) error {
	rooms, err := m.chat.Rooms().List()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "list_failed",
			Message: "operation failed, retry",
		})
	}

	response := RoomListResponse{Rooms: make([]RoomView, 0, len(rooms))}
	for _, room := range rooms {
		response.Rooms = append(response.Rooms, RoomView{
			ID:          room.ID,
			DisplayName: room.DisplayName,
			Owner:       room.Owner,
			CreatedAt:   room.CreatedAt,
			LiveClients: m.hub.RoomClientCount(room.ID),
		})
	}
	return c.JSON(response)
}

// getRoom handles GET /api/v1/rooms/:id.
func (m *Module) getRoom(c *fiber.Ctx) error {
	roomID := c.Params("id")

	room, err := m.chat.Rooms().Get(roomID)
	if err != nil {
		if errors.Is(err, chat.ErrRoomNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Error:   "not_found",
				Message: "room not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "get_failed",
			Message: "operation failed, retry",
		})
	}

	members, err := m.chat.Rooms().Members(roomID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "get_failed",
			Message: "operation failed, retry",
		})
	}

	return c.JSON(RoomView{
		ID:          room.ID,
		DisplayName: room.DisplayName,
		Owner:       room.Owner,
		CreatedAt:   room.CreatedAt,
		Members:     members,
		LiveClients: m.hub.RoomClientCount(room.ID),
	})
}

// getRoomHistory handles GET /api/v1/rooms/:id/history.
func (m *Module) getRoomHistory(c *fiber.Ctx) error {
	roomID := c.Params("id")
	if _, err := m.chat.Rooms().Get(roomID); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "room not found",
		})
	}
	return m.pagedHistory(c, roomID)
}

// getGlobalHistory handles GET /api/v1/history.
func (m *Module) getGlobalHistory(c *fiber.Ctx) error {
	return m.pagedHistory(c, domain.GlobalDestination)
}

func (m *Module) pagedHistory(c *fiber.Ctx, destination string) error {
	offset := queryInt(c, "offset", 0)
	limit := queryInt(c, "limit", defaultHistoryLimit)
	if offset < 0 || limit <= 0 || limit > 1000 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_range",
			Message: "offset must be >= 0 and limit in 1..1000",
		})
	}

	page, err := m.chat.HistoryPage(destination, offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "history_failed",
			Message: "operation failed, retry",
		})
	}

	return c.JSON(HistoryPageResponse{
		Destination: destination,
		Messages:    page.Messages,
		NewOffset:   page.NewOffset,
		HasMore:     page.HasMore,
	})
}

func queryInt(c *fiber.Ctx, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return value
}

// errorHandler handles Fiber errors.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}
