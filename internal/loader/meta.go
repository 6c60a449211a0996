package loader

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// Directive marks an exported function as a tool:
//
//	//tool:meta name:"say_hello" tags:"greeting,demo" exclude:"lang" readonly:"true"
const Directive = "//tool:meta"

// Meta is the metadata carried by a //tool:meta directive.
type Meta struct {
	Name        string
	Title       string
	Description string
	Tags        []string
	Exclude     []string
	ReadOnly    bool
	Destructive bool
	Idempotent  bool
	OpenWorld   bool
	Enabled     *bool
}

var metaKeys = []string{
	"name", "title", "description", "tags", "exclude",
	"readonly", "destructive", "idempotent", "openworld", "enabled",
}

// ParseMeta parses the text following the directive. The syntax is that of
// a struct tag: space-separated key:"value" pairs.
func ParseMeta(text string) (Meta, error) {
	body := strings.TrimSpace(strings.TrimPrefix(text, Directive))
	if err := checkTagSyntax(body); err != nil {
		return Meta{}, err
	}
	tag := reflect.StructTag(body)

	var m Meta
	m.Name, _ = tag.Lookup("name")
	m.Title, _ = tag.Lookup("title")
	m.Description, _ = tag.Lookup("description")
	if v, ok := tag.Lookup("tags"); ok {
		m.Tags = splitList(v)
	}
	if v, ok := tag.Lookup("exclude"); ok {
		m.Exclude = splitList(v)
	}

	flags := []struct {
		key string
		dst *bool
	}{
		{"readonly", &m.ReadOnly},
		{"destructive", &m.Destructive},
		{"idempotent", &m.Idempotent},
		{"openworld", &m.OpenWorld},
	}
	for _, f := range flags {
		v, ok := tag.Lookup(f.key)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Meta{}, fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = b
	}
	if v, ok := tag.Lookup("enabled"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Meta{}, fmt.Errorf("enabled: %w", err)
		}
		m.Enabled = &b
	}
	return m, nil
}

// checkTagSyntax rejects malformed pairs and unknown keys, which
// reflect.StructTag would silently ignore.
func checkTagSyntax(body string) error {
	for body != "" {
		body = strings.TrimLeft(body, " \t")
		if body == "" {
			break
		}
		colon := strings.IndexByte(body, ':')
		if colon <= 0 || colon+1 >= len(body) || body[colon+1] != '"' {
			return fmt.Errorf("malformed directive near %q", body)
		}
		key := body[:colon]
		if strings.ContainsAny(key, " \t\"") {
			return fmt.Errorf("malformed directive key %q", key)
		}
		if !slices.Contains(metaKeys, key) {
			return fmt.Errorf("unknown directive key %q", key)
		}
		rest := body[colon+1:]
		end := 1
		for end < len(rest) && rest[end] != '"' {
			if rest[end] == '\\' {
				end++
			}
			end++
		}
		if end >= len(rest) {
			return fmt.Errorf("unterminated value for %q", key)
		}
		if _, err := strconv.Unquote(rest[:end+1]); err != nil {
			return fmt.Errorf("value for %q: %w", key, err)
		}
		body = rest[end+1:]
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
