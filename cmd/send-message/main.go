package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/wechatter/qq-bot-bridge/internal/mcp"
)

func main() {
	_ = godotenv.Load()

	bridgeURL := flag.String("bridge", envOr("BRIDGE_API_URL", "http://127.0.0.1:9876"), "bridge API base URL")
	replyToken := flag.String("reply", "", "id of the inbound message being answered")
	media := flag.Bool("media", false, "send the message as an image URL")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: send-message [-reply token] [-media] <kind> <target> <message>")
		fmt.Fprintln(os.Stderr, "  kind: direct_message, group_reply or user_reply")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 3 {
		flag.Usage()
		os.Exit(1)
	}

	client := mcp.NewClient(*bridgeURL)
	client.SetClientID("send-message")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	id, err := client.Send(ctx, mcp.SendParams{
		Kind:       flag.Arg(0),
		Target:     flag.Arg(1),
		Content:    flag.Arg(2),
		ReplyToken: *replyToken,
		IsMedia:    *media,
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Message queued: %s\n", id)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
