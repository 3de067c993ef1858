package llm

import (
	"encoding/json"
	"testing"
)

func TestParseProviderType(t *testing.T) {
	cases := []struct {
		input   string
		want    ProviderType
		wantErr bool
	}{
		{"openai", ProviderOpenAI, false},
		{"GPT", ProviderOpenAI, false},
		{"claude", ProviderAnthropic, false},
		{"anthropic", ProviderAnthropic, false},
		{"deepseek", ProviderDeepSeek, false},
		{"google", ProviderGemini, false},
		{"gemini", ProviderGemini, false},
		{"mistral", 0, true},
	}

	for _, tc := range cases {
		got, err := ParseProviderType(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseProviderType(%q): expected error", tc.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseProviderType(%q): %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseProviderType(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestDefaultModels(t *testing.T) {
	for _, p := range []ProviderType{ProviderOpenAI, ProviderAnthropic, ProviderDeepSeek, ProviderGemini} {
		if p.DefaultModel() == "" {
			t.Errorf("provider %v has no default model", p)
		}
		if p.EnvVar() == "" {
			t.Errorf("provider %v has no API key env var", p)
		}
	}
}

func TestConvertToOpenAIMessagesCarriesToolCorrelation(t *testing.T) {
	args := json.RawMessage(`{"q":"weather"}`)
	messages := []ChatMessage{
		SystemMessage("be helpful"),
		UserMessage("what's the weather"),
		{Role: "assistant", ToolCalls: []ToolCall{{ID: "call-1", Name: "search", Arguments: args}}},
		ToolMessage("call-1", "sunny"),
	}

	converted := convertToOpenAIMessages(messages)
	if len(converted) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(converted))
	}

	assistant := converted[2]
	if len(assistant.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call on assistant message, got %d", len(assistant.ToolCalls))
	}
	if assistant.ToolCalls[0].ID != "call-1" {
		t.Errorf("tool call id = %q, want call-1", assistant.ToolCalls[0].ID)
	}
	if assistant.ToolCalls[0].Function.Name != "search" {
		t.Errorf("tool call name = %q, want search", assistant.ToolCalls[0].Function.Name)
	}

	toolMsg := converted[3]
	if toolMsg.ToolCallID != "call-1" {
		t.Errorf("tool result correlation id = %q, want call-1", toolMsg.ToolCallID)
	}
}

func TestConvertToAnthropicMessagesExtractsSystem(t *testing.T) {
	messages := []ChatMessage{
		SystemMessage("be brief"),
		UserMessage("hi"),
		AssistantMessage("hello"),
	}

	converted, system := convertToAnthropicMessages(messages)
	if system != "be brief" {
		t.Errorf("system prompt = %q, want 'be brief'", system)
	}
	if len(converted) != 2 {
		t.Errorf("expected 2 non-system messages, got %d", len(converted))
	}
}
