package data

import (
	"context"
	"testing"

	"github.com/wechatter/qq-bot-bridge/internal/biz/domain"
	"github.com/wechatter/qq-bot-bridge/internal/infra/openai"
)

type mockChatModel struct {
	turns []openai.Turn
}

func (m *mockChatModel) Chat(ctx context.Context, turns []openai.Turn) (string, error) {
	m.turns = turns
	return "answer", nil
}

func TestOpenAIRepo_Complete(t *testing.T) {
	model := &mockChatModel{}
	r := &openaiRepo{client: model}

	history := []domain.Message{
		{ID: "1", SenderID: "u1", SenderName: "alice", Content: "what is go?"},
		{ID: "2", SenderID: "bot-1", Content: "a language"},
		{ID: "3", SenderID: "u2", Content: "https://img.example/x.png", IsMedia: true},
		{ID: "4", IsBot: true, Content: "proactive note"},
	}
	answer, err := r.Complete(context.Background(), history, "bot-1", "and rust?")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if answer != "answer" {
		t.Errorf("Expected answer, got %s", answer)
	}

	want := []openai.Turn{
		{Content: "alice: what is go?"},
		{Assistant: true, Content: "a language"},
		{Assistant: true, Content: "proactive note"},
		{Content: "and rust?"},
	}
	if len(model.turns) != len(want) {
		t.Fatalf("Expected %d turns, got %d: %+v", len(want), len(model.turns), model.turns)
	}
	for i := range want {
		if model.turns[i] != want[i] {
			t.Errorf("Turn %d: expected %+v, got %+v", i, want[i], model.turns[i])
		}
	}
}

func TestNewOpenAIRepo_NilClient(t *testing.T) {
	if r := NewOpenAIRepo(nil); r != nil {
		t.Error("Expected nil repo for nil client")
	}
}
