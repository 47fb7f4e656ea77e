package main

import (
	"context"
	"log"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"

	"github.com/example/chat-server/modules/api"
	"github.com/example/chat-server/modules/broadcast"
	"github.com/example/chat-server/modules/chat"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log.Println("=== chat-server ===")

	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(shutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	chatModule := chat.NewModule()
	broadcastModule := broadcast.NewModule()
	apiModule := api.NewModule(chatModule)

	// The hub is handed over directly; it is live connection state, not a
	// service exposed through the container.
	apiModule.SetHub(broadcastModule.GetHub())

	// Order: core first, then the event consumer, then the transport shell.
	app.Register(chatModule)
	app.Register(broadcastModule)
	app.Register(apiModule)

	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%s):", port)
	log.Println("  GET /health                      - Health check")
	log.Println("  GET /api/v1/rooms                - List all rooms")
	log.Println("  GET /api/v1/rooms/:id            - Room details and members")
	log.Println("  GET /api/v1/rooms/:id/history    - Paginated room history")
	log.Println("  GET /api/v1/history              - Paginated lobby history")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost:%s/ws):", port)
	log.Println("  Request types: claim, global_message, create_room, join_room,")
	log.Println("    room_message, leave_room, clear_room_history, delete_room,")
	log.Println("    clear_global_history, history, history_page")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
