package ai

import (
	"encoding/json"
	"testing"
)

func TestExtractJSONObjectPlain(t *testing.T) {
	raw, ok := ExtractJSONObject(`{"a":1,"b":{"c":2}}`)
	if !ok {
		t.Fatal("expected an object")
	}
	if raw != `{"a":1,"b":{"c":2}}` {
		t.Fatalf("unexpected extraction: %s", raw)
	}
}

func TestExtractJSONObjectWithSurroundingProse(t *testing.T) {
	text := "Here is the analysis you asked for:\n{\"health_status\":\"healthy\"}\nLet me know if you need more."
	raw, ok := ExtractJSONObject(text)
	if !ok {
		t.Fatal("expected an object")
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("extracted text does not parse: %v", err)
	}
	if decoded["health_status"] != "healthy" {
		t.Fatalf("unexpected object: %v", decoded)
	}
}

func TestExtractJSONObjectWithCodeFences(t *testing.T) {
	text := "```json\n{\"risk_level\":\"low\"}\n```"
	raw, ok := ExtractJSONObject(text)
	if !ok {
		t.Fatal("expected an object")
	}
	if raw != `{"risk_level":"low"}` {
		t.Fatalf("unexpected extraction: %s", raw)
	}
}

func TestExtractJSONObjectBracesInsideStrings(t *testing.T) {
	text := `{"note":"use {braces} and \"quotes\" carefully"}`
	raw, ok := ExtractJSONObject(text)
	if !ok {
		t.Fatal("expected an object")
	}
	if raw != text {
		t.Fatalf("unexpected extraction: %s", raw)
	}
}

func TestExtractJSONObjectNoObject(t *testing.T) {
	for _, text := range []string{"", "no json here", "[1,2,3]", "{unterminated"} {
		if _, ok := ExtractJSONObject(text); ok {
			t.Fatalf("expected no object for %q", text)
		}
	}
}

func TestStripCodeFences(t *testing.T) {
	cases := map[string]string{
		"```json\n{}\n```": "{}",
		"```\n{}\n```":     "{}",
		"{}":               "{}",
		"  {}  ":           "{}",
	}
	for input, want := range cases {
		if got := StripCodeFences(input); got != want {
			t.Fatalf("StripCodeFences(%q) = %q, want %q", input, got, want)
		}
	}
}
