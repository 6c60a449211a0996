package loader

import (
	"strings"
	"testing"
)

func TestParseMeta(t *testing.T) {
	m, err := ParseMeta(`//tool:meta name:"say_hello" title:"Say hello" tags:"greeting, demo,," exclude:"lang" readonly:"true" openworld:"1" enabled:"false"`)
	if err != nil {
		t.Fatalf("ParseMeta() error = %v", err)
	}
	if m.Name != "say_hello" {
		t.Errorf("Name = %q, want %q", m.Name, "say_hello")
	}
	if m.Title != "Say hello" {
		t.Errorf("Title = %q, want %q", m.Title, "Say hello")
	}
	if got := strings.Join(m.Tags, "|"); got != "greeting|demo" {
		t.Errorf("Tags = %q, want %q", got, "greeting|demo")
	}
	if got := strings.Join(m.Exclude, "|"); got != "lang" {
		t.Errorf("Exclude = %q, want %q", got, "lang")
	}
	if !m.ReadOnly || !m.OpenWorld || m.Destructive || m.Idempotent {
		t.Errorf("hints = %+v", m)
	}
	if m.Enabled == nil || *m.Enabled {
		t.Errorf("Enabled = %v, want false", m.Enabled)
	}
}

func TestParseMeta_Empty(t *testing.T) {
	m, err := ParseMeta(Directive)
	if err != nil {
		t.Fatalf("ParseMeta() error = %v", err)
	}
	if m.Name != "" || m.Enabled != nil || len(m.Tags) != 0 {
		t.Errorf("ParseMeta(bare) = %+v, want zero", m)
	}
}

func TestParseMeta_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"unknown key", `//tool:meta colour:"blue"`},
		{"unquoted value", `//tool:meta name:hello`},
		{"unterminated value", `//tool:meta name:"hello`},
		{"bad bool", `//tool:meta readonly:"maybe"`},
		{"bad enabled", `//tool:meta enabled:"nah"`},
		{"missing colon", `//tool:meta name`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMeta(tt.text); err == nil {
				t.Errorf("ParseMeta(%q) = nil error, want error", tt.text)
			}
		})
	}
}
