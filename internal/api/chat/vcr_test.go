package chat

import (
	"context"
	"testing"

	"github.com/josephj/slack-copilot/internal/testutil"
)

func TestStreamAgainstRecordedExchange(t *testing.T) {
	r, cleanup := testutil.NewVCRRecorder(t, "chat_stream")
	defer cleanup()

	client := NewClient("test-key", WithHTTPClient(testutil.VCRHTTPClient(r)))

	stream, err := client.Stream(context.Background(), &CompletionRequest{
		Model:    "llama-3.3-70b-versatile",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	var got string
	for result := range stream {
		if result.Err != nil {
			t.Fatalf("stream error = %v", result.Err)
		}
		for _, choice := range result.Chunk.Choices {
			got += choice.Delta.Content
		}
	}
	if got != "Hello there" {
		t.Fatalf("accumulated text = %q, want %q", got, "Hello there")
	}
}
