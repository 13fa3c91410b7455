package domain

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

// Category is the closed set of product variants the catalog accepts.
type Category string

const (
	CategorySmartphone Category = "smartphone"
	CategoryTelevision Category = "television"
	CategoryComputer   Category = "computer"
)

// ParseCategory accepts the singular or plural spelling, case-insensitively.
func ParseCategory(s string) (Category, error) {
	switch c := Category(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s")); c {
	case CategorySmartphone, CategoryTelevision, CategoryComputer:
		return c, nil
	}
	return "", Validation("valid type is required to add a product, got %q", s)
}

// Variant holds the category-specific attribute set of a product version.
type Variant interface {
	Category() Category
	Validate() error
}

type Smartphone struct {
	ScreenSize float64 `json:"screen_size"`
	OS         string  `json:"os"`
	Storage    int     `json:"storage"`
	Color      string  `json:"color"`
}

func (Smartphone) Category() Category { return CategorySmartphone }

func (s Smartphone) Validate() error {
	if s.ScreenSize <= 0 {
		return Validation("smartphone screen_size must be positive")
	}
	if strings.TrimSpace(s.OS) == "" {
		return Validation("smartphone os is required")
	}
	if s.Storage <= 0 {
		return Validation("smartphone storage must be positive")
	}
	return nil
}

type Television struct {
	ScreenSize float64 `json:"screen_size"`
	ScreenType string  `json:"screen_type"`
	Resolution string  `json:"resolution"`
	Smart      bool    `json:"smart"`
	Efficiency string  `json:"efficiency"`
}

func (Television) Category() Category { return CategoryTelevision }

func (t Television) Validate() error {
	if t.ScreenSize <= 0 {
		return Validation("television screen_size must be positive")
	}
	if strings.TrimSpace(t.Resolution) == "" {
		return Validation("television resolution is required")
	}
	return nil
}

type Computer struct {
	ScreenSize  float64 `json:"screen_size"`
	CPU         string  `json:"cpu"`
	GPU         string  `json:"gpu"`
	Storage     int     `json:"storage"`
	RefreshRate int     `json:"refresh_rate"`
}

func (Computer) Category() Category { return CategoryComputer }

func (c Computer) Validate() error {
	if strings.TrimSpace(c.CPU) == "" {
		return Validation("computer cpu is required")
	}
	if c.Storage <= 0 {
		return Validation("computer storage must be positive")
	}
	if c.RefreshRate < 0 {
		return Validation("computer refresh_rate cannot be negative")
	}
	return nil
}

var variantFields = map[Category][]string{
	CategorySmartphone: {"screen_size", "os", "storage", "color"},
	CategoryTelevision: {"screen_size", "screen_type", "resolution", "smart", "efficiency"},
	CategoryComputer:   {"screen_size", "cpu", "gpu", "storage", "refresh_rate"},
}

// VariantFields lists the attribute keys a category requires.
func VariantFields(c Category) []string {
	return append([]string(nil), variantFields[c]...)
}

func emptyVariant(c Category) (Variant, error) {
	switch c {
	case CategorySmartphone:
		return &Smartphone{}, nil
	case CategoryTelevision:
		return &Television{}, nil
	case CategoryComputer:
		return &Computer{}, nil
	}
	return nil, Validation("unknown product type %q", c)
}

// DecodeVariant builds the variant for category from raw attributes. Every
// field of the category must be present and no other key is accepted.
func DecodeVariant(c Category, attrs map[string]json.RawMessage) (Variant, error) {
	fields, ok := variantFields[c]
	if !ok {
		return nil, Validation("unknown product type %q", c)
	}
	for _, f := range fields {
		if _, ok := attrs[f]; !ok {
			return nil, Validation("%s is required to add a %s", f, c)
		}
	}
	if err := rejectUnknown(c, attrs); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return nil, Validation("invalid %s attributes: %v", c, err)
	}
	return decodeVariantJSON(c, raw)
}

// DecodeVariantJSON decodes a stored variant document.
func DecodeVariantJSON(c Category, raw []byte) (Variant, error) {
	return decodeVariantJSON(c, raw)
}

func decodeVariantJSON(c Category, raw []byte) (Variant, error) {
	v, err := emptyVariant(c)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return nil, Validation("invalid %s attributes: %v", c, err)
	}
	switch t := v.(type) {
	case *Smartphone:
		return *t, nil
	case *Television:
		return *t, nil
	case *Computer:
		return *t, nil
	}
	return nil, Validation("unknown product type %q", c)
}

// EncodeVariant renders a variant as its stored attribute map.
func EncodeVariant(v Variant) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func rejectUnknown(c Category, attrs map[string]json.RawMessage) error {
	known := make(map[string]struct{}, len(variantFields[c]))
	for _, f := range variantFields[c] {
		known[f] = struct{}{}
	}
	var unknown []string
	for k := range attrs {
		if _, ok := known[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Validation("%s is not a valid attribute of a %s", strings.Join(unknown, ","), c)
	}
	return nil
}

// RawAttributes converts loosely typed attribute values (YAML, forms) into
// the raw JSON form DecodeVariant and MergePatch accept.
func RawAttributes(in map[string]any) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(in))
	for k, v := range in {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, Validation("attribute %s: %v", k, err)
		}
		out[k] = raw
	}
	return out, nil
}
