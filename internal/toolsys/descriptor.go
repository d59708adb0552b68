// Package toolsys implements the tool registry and dispatcher: declarative
// parameter schemas, JSON-schema emission, and the concurrent dispatch
// pipeline that turns a tool_start event into ordered tool results.
package toolsys

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ParamKind is one of the parameter types the spec's ToolDescriptor allows.
type ParamKind string

const (
	ParamString  ParamKind = "string"
	ParamNumber  ParamKind = "number"
	ParamBoolean ParamKind = "boolean"
	ParamArray   ParamKind = "array"
	ParamObject  ParamKind = "object"
	ParamEnum    ParamKind = "enum"
)

// Param describes one ordered parameter of a tool. ExternalName is the name
// surfaced to the model, which may differ from the Go handler's argument
// name; Inject marks parameters the runtime supplies itself (e.g. the
// current agent id) rather than ones the model fills in.
type Param struct {
	ExternalName string
	Kind         ParamKind
	Description  string
	Enum         []string
	Default      any
	Required     bool
	Inject       bool
}

// Handler is the callable a tool descriptor wraps. args is the positional
// argument list built by the dispatcher in declared parameter order, with
// injected values already substituted in.
type Handler func(args []any) (any, error)

// Descriptor is the spec's ToolDescriptor: a name, description, ordered
// parameter schema, and a callable. Params preserve declaration order so
// that both positional argument marshalling and JSON-schema "properties"
// ordering stay deterministic.
type Descriptor struct {
	Name        string
	Description string
	Params      []Param
	Call        Handler
}

// Schema renders the descriptor as the JSON function-schema object the
// model-provider contract requires: {name, description, parameters}.
func (d *Descriptor) Schema() json.RawMessage {
	properties := make(map[string]any, len(d.Params))
	var required []string
	var order []string
	for _, p := range d.Params {
		if p.Inject {
			continue
		}
		prop := map[string]any{"type": jsonType(p.Kind), "description": p.Description}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.ExternalName] = prop
		order = append(order, p.ExternalName)
		if p.Required {
			required = append(required, p.ExternalName)
		}
	}
	schema := map[string]any{
		"name":        d.Name,
		"description": d.Description,
		"parameters": map[string]any{
			"type":          "object",
			"properties":    properties,
			"required":      required,
			"propertyOrder": order,
		},
	}
	raw, _ := json.Marshal(schema)
	return raw
}

// Validate self-validates the descriptor's generated schema against the
// JSON Schema meta-schema, catching malformed parameter declarations at
// registration time rather than at the provider on first use.
func (d *Descriptor) Validate() error {
	params := map[string]any{}
	if err := json.Unmarshal(d.Schema(), &params); err != nil {
		return fmt.Errorf("tool %q: schema is not valid JSON: %w", d.Name, err)
	}
	parameters, ok := params["parameters"]
	if !ok {
		return fmt.Errorf("tool %q: schema missing parameters", d.Name)
	}
	raw, err := json.Marshal(parameters)
	if err != nil {
		return err
	}
	compiled, err := jsonschema.CompileString(d.Name+"-parameters.json", string(raw))
	if err != nil {
		return fmt.Errorf("tool %q: parameter schema does not compile: %w", d.Name, err)
	}
	// A descriptor with no required/malformed fields still compiles; this
	// call simply forces jsonschema to finish validating its own structure.
	_ = compiled
	return nil
}

func jsonType(k ParamKind) string {
	switch k {
	case ParamEnum:
		return "string"
	case ParamNumber, ParamBoolean, ParamArray, ParamObject, ParamString:
		return string(k)
	default:
		return "string"
	}
}
