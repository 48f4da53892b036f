package netlist

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/edp1096/toy-circuit/pkg/device"
)

// Document is the persisted form of a circuit.
type Document struct {
	Meta       DocumentMeta   `json:"meta"`
	Components []ComponentDoc `json:"components" validate:"dive"`
	Wires      []WireDoc      `json:"wires" validate:"dive"`
	Probes     []ProbeDoc     `json:"probes,omitempty" validate:"dive"`
}

type DocumentMeta struct {
	Version int    `json:"version" validate:"gte=1"`
	Name    string `json:"name,omitempty"`
}

type ComponentDoc struct {
	ID                 string               `json:"id" validate:"required"`
	Type               string               `json:"type" validate:"required,componenttype"`
	Label              string               `json:"label,omitempty"`
	X                  float64              `json:"x"`
	Y                  float64              `json:"y"`
	Rotation           float64              `json:"rotation"`
	Properties         map[string]any       `json:"properties"`
	TerminalExtensions map[int]device.Point `json:"terminalExtensions,omitempty"`
}

type EndpointDoc struct {
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	ComponentID   string  `json:"componentId,omitempty"`
	TerminalIndex *int    `json:"terminalIndex,omitempty" validate:"omitempty,gte=0"`
}

type WireDoc struct {
	ID            string         `json:"id" validate:"required"`
	Start         EndpointDoc    `json:"start"`
	End           EndpointDoc    `json:"end"`
	ControlPoints []device.Point `json:"controlPoints,omitempty"`
}

type ProbeDoc struct {
	ID     string `json:"id" validate:"required"`
	Label  string `json:"label,omitempty"`
	Kind   string `json:"kind" validate:"required,oneof=node-voltage wire-current component-current"`
	Target string `json:"target" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("componenttype", func(fl validator.FieldLevel) bool {
		_, err := device.ParseType(fl.Field().String())
		return err == nil
	})
	return v
}

// Decode reads a document. Numbers inside properties are kept as json.Number so
// they are written back exactly as read. Missing ids are generated.
func Decode(r io.Reader) (*Document, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding circuit document: %w", err)
	}
	if doc.Meta.Version == 0 {
		doc.Meta.Version = Version
	}
	if doc.Meta.Version > Version {
		return nil, fmt.Errorf("unsupported circuit document version %d", doc.Meta.Version)
	}

	for i := range doc.Components {
		if doc.Components[i].ID == "" {
			doc.Components[i].ID = uuid.NewString()
		}
	}
	for i := range doc.Wires {
		if doc.Wires[i].ID == "" {
			doc.Wires[i].ID = uuid.NewString()
		}
	}
	for i := range doc.Probes {
		if doc.Probes[i].ID == "" {
			doc.Probes[i].ID = uuid.NewString()
		}
	}

	if err := validate.Struct(&doc); err != nil {
		return nil, fmt.Errorf("invalid circuit document: %w", err)
	}
	return &doc, nil
}

func Encode(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding circuit document: %w", err)
	}
	return nil
}
