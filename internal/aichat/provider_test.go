package aichat

import "testing"

func TestResolveOptionsDefaults(t *testing.T) {
	o := resolveOptions(nil)
	if o.Temperature != 0.3 || o.MaxTokens != 1024 {
		t.Fatalf("unexpected defaults: %+v", o)
	}
}

func TestResolveOptionsOverride(t *testing.T) {
	o := resolveOptions([]Option{WithTemperature(0.9), WithMaxTokens(256)})
	if o.Temperature != 0.9 || o.MaxTokens != 256 {
		t.Fatalf("unexpected overrides: %+v", o)
	}
}

func TestToGeminiContentsFoldsSystemIntoFirstUserTurn(t *testing.T) {
	contents := toGeminiContents([]Message{
		{Role: RoleSystem, Content: "be terse"},
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi"},
	})
	if len(contents) != 2 {
		t.Fatalf("expected 2 contents, got %d", len(contents))
	}
	if contents[0].Role != "user" || contents[0].Parts[0].Text != "be terse\nhello" {
		t.Fatalf("unexpected first turn: %+v", contents[0])
	}
	if contents[1].Role != "model" {
		t.Fatalf("expected second turn role model, got %s", contents[1].Role)
	}
}
