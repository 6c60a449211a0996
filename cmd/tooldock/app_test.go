package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/olgasafonova/tooldock-mcp-server/tools"
)

const greetUnit = `package greet

// Greet says hello.
// It is polite.
//
//tool:meta name:"greet" exclude:"lang"
func Greet(name string, lang *string) string { return "hello " + name }
`

const brokenUnit = `package broken

var answer = explode()

func explode() int { panic("boom") }

func Answer() int { return answer }
`

// toolsDir writes the given units into a fresh directory.
func toolsDir(t *testing.T, units map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range units {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("TOOLDOCK_CONFIG", "")
	t.Setenv("TOOLDOCK_TOOLS_DIR", "")
	t.Setenv("TOOLDOCK_LOG_LEVEL", "error")

	var stdout, stderr bytes.Buffer
	app := NewApp().WithOutput(&stdout, &stderr)
	err := app.ExecuteWithArgs(context.Background(), args)
	return stdout.String(), stderr.String(), err
}

func TestApp_Version(t *testing.T) {
	out, _, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out, "tooldock version") {
		t.Errorf("version output missing 'tooldock version', got: %s", out)
	}
}

func TestApp_Help(t *testing.T) {
	out, _, err := execute(t, "--help")
	if err != nil {
		t.Fatalf("help command failed: %v", err)
	}
	for _, want := range []string{"serve", "check", "list", "--tools-dir"} {
		if !strings.Contains(out, want) {
			t.Errorf("help output missing %q, got: %s", want, out)
		}
	}
}

func TestApp_Check(t *testing.T) {
	dir := toolsDir(t, map[string]string{"greet.go": greetUnit, "broken.go": brokenUnit})

	tests := []struct {
		name    string
		args    []string
		wantErr bool
		want    []string
	}{
		{
			name: "text",
			args: []string{"check", "-d", dir},
			want: []string{"Status: partial", "Registered (1):", "  - greet", "Errors (1):", "broken.go [ModuleLoadFailure]"},
		},
		{
			name:    "strict",
			args:    []string{"check", "-d", dir, "--strict"},
			wantErr: true,
			want:    []string{"Errors (1):"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, tt.args...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("check error = %v, wantErr %v", err, tt.wantErr)
			}
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("check output missing %q, got:\n%s", want, out)
				}
			}
		})
	}
}

func TestApp_CheckYAML(t *testing.T) {
	dir := toolsDir(t, map[string]string{"greet.go": greetUnit, "broken.go": brokenUnit})

	out, _, err := execute(t, "check", "-d", dir, "--format", "yaml")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}

	var report checkReport
	if err := yaml.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, out)
	}
	if report.ToolsDir != dir || report.Units != 2 {
		t.Errorf("report = %+v", report)
	}
	if report.Summary.Status != "partial" || report.Summary.Count != 1 || len(report.Summary.Errors) != 1 {
		t.Errorf("summary = %+v", report.Summary)
	}
}

func TestApp_CheckClean(t *testing.T) {
	dir := toolsDir(t, map[string]string{"greet.go": greetUnit})

	out, _, err := execute(t, "check", "-d", dir, "--strict")
	if err != nil {
		t.Fatalf("check --strict on a clean directory failed: %v", err)
	}
	if !strings.Contains(out, "No errors") {
		t.Errorf("check output missing 'No errors', got:\n%s", out)
	}
}

func TestApp_CheckMissingDirectory(t *testing.T) {
	_, _, err := execute(t, "check", "-d", filepath.Join(t.TempDir(), "missing"))
	if err == nil || !strings.Contains(err.Error(), "discovery failed") {
		t.Errorf("check error = %v, want a discovery failure", err)
	}
}

func TestApp_List(t *testing.T) {
	dir := toolsDir(t, map[string]string{"greet.go": greetUnit})

	out, _, err := execute(t, "list", "-d", dir)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	for _, want := range []string{"NAME", "greet", "greet.go", "annotated", "Greet says hello."} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "lang") {
		t.Errorf("list output shows the excluded parameter:\n%s", out)
	}
	if strings.Contains(out, "It is polite.") {
		t.Errorf("list output shows more than the first description line:\n%s", out)
	}
}

func TestApp_ListJSON(t *testing.T) {
	dir := toolsDir(t, map[string]string{"greet.go": greetUnit})

	out, _, err := execute(t, "list", "-d", dir, "-f", "json")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	var inventory []tools.ToolInfo
	if err := json.Unmarshal([]byte(out), &inventory); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(inventory) != 1 || inventory[0].Name != "greet" || inventory[0].Unit != "greet.go" {
		t.Errorf("inventory = %+v", inventory)
	}
}

func TestApp_ListEmpty(t *testing.T) {
	out, _, err := execute(t, "list", "-d", t.TempDir())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out, "No tools registered.") {
		t.Errorf("list output = %q", out)
	}
}

func TestApp_UnknownFormat(t *testing.T) {
	for _, cmd := range []string{"check", "list"} {
		t.Run(cmd, func(t *testing.T) {
			_, _, err := execute(t, cmd, "-d", t.TempDir(), "--format", "xml")
			if err == nil || !strings.Contains(err.Error(), "unknown format") {
				t.Errorf("%s --format xml error = %v", cmd, err)
			}
		})
	}
}

func TestApp_ServeStrictRefusesBrokenUnits(t *testing.T) {
	dir := toolsDir(t, map[string]string{"broken.go": brokenUnit})

	_, _, err := execute(t, "serve", "-d", dir, "--strict")
	if err == nil || !strings.Contains(err.Error(), "strict mode") {
		t.Errorf("serve --strict error = %v, want a strict mode error", err)
	}
}

func TestApp_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("parallelism: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, _, err := execute(t, "check", "--config", path)
	if err == nil || !strings.Contains(err.Error(), "failed to load configuration") {
		t.Errorf("check error = %v, want a configuration error", err)
	}
}
