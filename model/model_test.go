package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMockModel_CannedResponse(t *testing.T) {
	m := NewMockModel("test-model")
	m.AddResponse("plan the architecture", "use a monolith")

	resp, err := m.Generate(context.Background(), Request{Prompt: "plan the architecture"})
	assert.NoError(t, err)
	assert.Equal(t, "use a monolith", resp.Text)
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestMockModel_EchoFallback(t *testing.T) {
	m := NewMockModel("test-model")

	resp, err := m.Generate(context.Background(), Request{Prompt: "unknown"})
	assert.NoError(t, err)
	assert.Equal(t, "Mock response to: unknown", resp.Text)
}

func TestMockModel_FailWith(t *testing.T) {
	sentinel := errors.New("provider down")

	m := NewMockModel("test-model")
	m.FailWith(sentinel)

	_, err := m.Generate(context.Background(), Request{Prompt: "anything"})
	assert.ErrorIs(t, err, sentinel)
}

func TestMockModel_ContextCancelled(t *testing.T) {
	m := NewMockModel("test-model")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Generate(ctx, Request{Prompt: "anything"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMockModel_Info(t *testing.T) {
	m := NewMockModel("test-model")
	assert.Equal(t, Info{Name: "test-model", Provider: "mock"}, m.Info())
}
