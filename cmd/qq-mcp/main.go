package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wechatter/qq-bot-bridge/internal/mcp"
)

const defaultBridgeURL = "http://127.0.0.1:9876"

// qq-mcp serves the bridge tools over stdio. Logs go to stderr since stdout
// carries the protocol.
func main() {
	log.SetOutput(os.Stderr)
	_ = godotenv.Load()

	bridgeURL := os.Getenv("BRIDGE_API_URL")
	if bridgeURL == "" {
		bridgeURL = defaultBridgeURL
	}

	client := mcp.NewClient(bridgeURL)
	if id := os.Getenv("BRIDGE_CLIENT_ID"); id != "" {
		client.SetClientID(id)
	}
	server := mcp.NewServer(client)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("qq-mcp %s serving bridge %s", mcp.Version, bridgeURL)
	if err := server.Run(ctx, &mcpsdk.StdioTransport{}); err != nil && ctx.Err() == nil {
		log.Fatalf("MCP server error: %v", err)
	}
}
