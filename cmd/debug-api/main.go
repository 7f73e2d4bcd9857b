package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/wechatter/qq-bot-bridge/internal/mcp"
)

// debug-api prints the bridge's delivery status, and the stored history of
// a target when one is given:
//
//	debug-api [<kind> <target> [limit]]
func main() {
	bridgeURL := os.Getenv("BRIDGE_API_URL")
	if bridgeURL == "" {
		bridgeURL = "http://127.0.0.1:9876"
	}
	client := mcp.NewClient(bridgeURL)
	client.SetClientID("debug-api")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	status, err := client.Status(ctx)
	if err != nil {
		fmt.Printf("Failed to get status: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("=== Delivery status ===")
	printJSON(status)

	if len(os.Args) < 3 {
		return
	}

	limit := 20
	if len(os.Args) > 3 {
		fmt.Sscanf(os.Args[3], "%d", &limit)
	}

	messages, err := client.ListMessages(ctx, os.Args[1], os.Args[2], limit)
	if err != nil {
		fmt.Printf("Failed to list messages: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n=== Last %d messages of %s:%s ===\n", len(messages), os.Args[1], os.Args[2])
	for i, m := range messages {
		sender := m.SenderName
		if sender == "" {
			sender = m.SenderID
		}
		if m.IsBot {
			sender += " (bot)"
		}
		fmt.Printf("[%d] %s %s: %s\n", i+1, m.CreateTime, sender, m.Content)
	}
}

func printJSON(v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
