package models_test

import (
	"testing"

	"github.com/MegaGrindStone/chat-relay/internal/models"
)

func TestApplyDelta(t *testing.T) {
	tests := []struct {
		name     string
		messages []models.Message
		delta    string
		want     []models.Message
	}{
		{
			name:     "First delta creates assistant message",
			messages: []models.Message{{Role: models.RoleUser, Content: "Hi"}},
			delta:    "Hel",
			want: []models.Message{
				{Role: models.RoleUser, Content: "Hi"},
				{Role: models.RoleAssistant, Content: "Hel"},
			},
		},
		{
			name: "Next delta grows trailing assistant message",
			messages: []models.Message{
				{Role: models.RoleUser, Content: "Hi"},
				{Role: models.RoleAssistant, Content: "Hel"},
			},
			delta: "lo",
			want: []models.Message{
				{Role: models.RoleUser, Content: "Hi"},
				{Role: models.RoleAssistant, Content: "Hello"},
			},
		},
		{
			name:     "Empty conversation",
			messages: nil,
			delta:    "x",
			want:     []models.Message{{Role: models.RoleAssistant, Content: "x"}},
		},
		{
			name:     "Empty delta is ignored",
			messages: []models.Message{{Role: models.RoleUser, Content: "Hi"}},
			delta:    "",
			want:     []models.Message{{Role: models.RoleUser, Content: "Hi"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := models.ApplyDelta(tt.messages, tt.delta)
			if len(got) != len(tt.want) {
				t.Fatalf("ApplyDelta() len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ApplyDelta()[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestApplyDeltaDoesNotMutateInput(t *testing.T) {
	orig := []models.Message{
		{Role: models.RoleUser, Content: "Hi"},
		{Role: models.RoleAssistant, Content: "Hel"},
	}

	_ = models.ApplyDelta(orig, "lo")

	if orig[1].Content != "Hel" {
		t.Errorf("input was mutated: %q", orig[1].Content)
	}
}

func TestValidateMessages(t *testing.T) {
	valid := []models.Message{
		{Role: models.RoleSystem, Content: "Be brief"},
		{Role: models.RoleUser, Content: "Hi"},
		{Role: models.RoleAssistant, Content: "Hello"},
	}
	if err := models.ValidateMessages(valid); err != nil {
		t.Errorf("ValidateMessages() error = %v", err)
	}

	invalid := []models.Message{{Role: "tool", Content: "{}"}}
	if err := models.ValidateMessages(invalid); err == nil {
		t.Error("ValidateMessages() expected error for unknown role")
	}
}

func TestHasSystemMessage(t *testing.T) {
	if models.HasSystemMessage([]models.Message{{Role: models.RoleUser}}) {
		t.Error("HasSystemMessage() = true, want false")
	}
	if !models.HasSystemMessage([]models.Message{{Role: models.RoleUser}, {Role: models.RoleSystem}}) {
		t.Error("HasSystemMessage() = false, want true")
	}
}
