package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/olgasafonova/tooldock-mcp-server/internal/signature"
	"github.com/olgasafonova/tooldock-mcp-server/toolkit"
)

// Parameter is one parameter of a registered tool.
type Parameter struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"`
	Required bool   `json:"required" yaml:"required"`
	Excluded bool   `json:"excluded,omitempty" yaml:"excluded,omitempty"`
}

// Hints are the MCP behaviour annotations of a tool.
type Hints struct {
	// ReadOnly indicates the tool doesn't modify state
	ReadOnly bool `json:"read_only,omitempty" yaml:"read_only,omitempty"`

	// Destructive indicates the tool can delete or overwrite data
	Destructive bool `json:"destructive,omitempty" yaml:"destructive,omitempty"`

	// Idempotent indicates repeated calls have the same effect
	Idempotent bool `json:"idempotent,omitempty" yaml:"idempotent,omitempty"`

	// OpenWorld indicates the tool accesses external resources
	OpenWorld bool `json:"open_world,omitempty" yaml:"open_world,omitempty"`
}

// Descriptor is a validated, immutable tool record.
type Descriptor struct {
	Name        string
	Title       string
	Description string
	Tags        []string // sorted, unique
	Params      []Parameter
	ReturnType  string
	Hints       Hints

	Unit       string // source unit identifier
	Source     string // export pattern that produced the tool
	Generation uint64 // registry generation the descriptor was installed with

	fn     reflect.Value
	sig    signature.Signature
	schema *jsonschema.Schema
}

// NewDescriptor builds a descriptor from a resolved spec and a validated
// signature. fn must have the type sig was derived from.
func NewDescriptor(unit, source string, spec toolkit.Spec, fn reflect.Value, sig signature.Signature) *Descriptor {
	d := &Descriptor{
		Name:        spec.Name,
		Title:       spec.Title,
		Description: strings.TrimSpace(spec.Description),
		Tags:        normalizeTags(spec.Tags),
		ReturnType:  sig.Return,
		Hints: Hints{
			ReadOnly:    spec.ReadOnly,
			Destructive: spec.Destructive,
			Idempotent:  spec.Idempotent,
			OpenWorld:   spec.OpenWorld,
		},
		Unit:   unit,
		Source: source,
		fn:     fn,
		sig:    sig,
	}
	for _, p := range sig.Params {
		d.Params = append(d.Params, Parameter{
			Name:     p.Name,
			Type:     p.Type,
			Required: !p.Optional,
			Excluded: p.Excluded,
		})
	}
	d.schema = buildSchema(sig)
	return d
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// InputSchema returns the JSON schema of the tool's exposed parameters.
// Excluded parameters are not part of it.
func (d *Descriptor) InputSchema() *jsonschema.Schema {
	return d.schema
}

// Exposed returns the parameters clients can pass.
func (d *Descriptor) Exposed() []Parameter {
	out := make([]Parameter, 0, len(d.Params))
	for _, p := range d.Params {
		if !p.Excluded {
			out = append(out, p)
		}
	}
	return out
}

func buildSchema(sig signature.Signature) *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema),
	}
	for _, p := range sig.Params {
		if p.Excluded {
			continue
		}
		ps, err := jsonschema.ForType(p.GoType, &jsonschema.ForOptions{IgnoreInvalidTypes: true})
		if err != nil || ps == nil {
			ps = &jsonschema.Schema{Type: p.Type}
		}
		s.Properties[p.Name] = ps
		if !p.Optional {
			s.Required = append(s.Required, p.Name)
		}
	}
	return s
}

// ArgumentError reports arguments that do not fit the tool's parameters.
type ArgumentError struct {
	Tool     string
	Argument string
	Message  string
}

func (e *ArgumentError) Error() string {
	if e.Argument != "" {
		return fmt.Sprintf("%s: argument %q: %s", e.Tool, e.Argument, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Tool, e.Message)
}

// Call decodes JSON arguments, invokes the tool, and returns its value.
// Keys naming excluded parameters are dropped before decoding.
func (d *Descriptor) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := d.arguments(raw)
	if err != nil {
		return nil, err
	}

	in := make([]reflect.Value, d.fn.Type().NumIn())
	if d.sig.TakesContext {
		in[0] = reflect.ValueOf(&ctx).Elem()
	}

	if d.sig.Struct != nil {
		v, err := d.decodeStruct(args)
		if err != nil {
			return nil, err
		}
		in[len(in)-1] = v
	} else {
		for _, p := range d.sig.Params {
			v, err := d.decodeParam(p, args)
			if err != nil {
				return nil, err
			}
			in[p.Arg] = v
		}
	}

	out := d.fn.Call(in)
	if d.sig.ReturnsError {
		if e := out[len(out)-1]; !e.IsNil() {
			err, _ := e.Interface().(error)
			return nil, err
		}
	}
	return out[0].Interface(), nil
}

func (d *Descriptor) arguments(raw json.RawMessage) (map[string]json.RawMessage, error) {
	args := make(map[string]json.RawMessage)
	trimmed := strings.TrimSpace(string(raw))
	if trimmed != "" && trimmed != "null" {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, &ArgumentError{Tool: d.Name, Message: "arguments must be a JSON object: " + err.Error()}
		}
	}
	for _, p := range d.Params {
		if p.Excluded {
			delete(args, p.Name)
		}
	}
	for _, p := range d.Params {
		if p.Required {
			if _, ok := args[p.Name]; !ok {
				return nil, &ArgumentError{Tool: d.Name, Argument: p.Name, Message: "missing required argument"}
			}
		}
	}
	return args, nil
}

func (d *Descriptor) decodeStruct(args map[string]json.RawMessage) (reflect.Value, error) {
	ptr := reflect.New(d.sig.Struct)
	body, err := json.Marshal(args)
	if err != nil {
		return reflect.Value{}, &ArgumentError{Tool: d.Name, Message: err.Error()}
	}
	if err := json.Unmarshal(body, ptr.Interface()); err != nil {
		return reflect.Value{}, &ArgumentError{Tool: d.Name, Message: err.Error()}
	}
	if d.sig.StructPtr {
		return ptr, nil
	}
	return ptr.Elem(), nil
}

func (d *Descriptor) decodeParam(p signature.Param, args map[string]json.RawMessage) (reflect.Value, error) {
	raw, ok := args[p.Name]
	if !ok {
		return reflect.Zero(p.GoType), nil
	}
	v := reflect.New(p.GoType)
	if err := json.Unmarshal(raw, v.Interface()); err != nil {
		return reflect.Value{}, &ArgumentError{Tool: d.Name, Argument: p.Name, Message: err.Error()}
	}
	return v.Elem(), nil
}
