// Package config loads the measurement variable catalog from HCL. Each
// instrument installation describes its controllable quantities in a catalog
// file; the loaded registry drives seeding and validation everywhere else.
package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"sweepcore/pkg/domain"
)

// catalogFile is the top-level structure of a catalog file.
//
//	variable "x-tilt" {
//	  name         = "X Tilt"
//	  unit         = "deg"
//	  min          = -15
//	  max          = 15
//	  default_step = 0.5
//	}
//
// Numeric attributes also accept strings in the variable's format, so a hex
// variable can declare `max = "0x8000"`.
type catalogFile struct {
	Variables []*variableBlock `hcl:"variable,block"`
}

type variableBlock struct {
	ID           string    `hcl:"id,label"`
	Name         string    `hcl:"name"`
	Unit         string    `hcl:"unit,optional"`
	Format       string    `hcl:"format,optional"`
	Min          cty.Value `hcl:"min,optional"`
	Max          cty.Value `hcl:"max,optional"`
	DefaultStart cty.Value `hcl:"default_start,optional"`
	DefaultStep  cty.Value `hcl:"default_step,optional"`
	DefaultEnd   cty.Value `hcl:"default_end,optional"`
}

// LoadCatalog parses the catalog file at path into a variable registry.
func LoadCatalog(path string) (domain.Registry, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return domain.Registry{}, fmt.Errorf("parse catalog %s: %s", path, diags.Error())
	}
	return decodeCatalog(file.Body, path)
}

// ParseCatalog parses catalog source from memory. The filename only labels
// diagnostics.
func ParseCatalog(src []byte, filename string) (domain.Registry, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return domain.Registry{}, fmt.Errorf("parse catalog %s: %s", filename, diags.Error())
	}
	return decodeCatalog(file.Body, filename)
}

func decodeCatalog(body hcl.Body, filename string) (domain.Registry, error) {
	var parsed catalogFile
	if diags := gohcl.DecodeBody(body, nil, &parsed); diags.HasErrors() {
		return domain.Registry{}, fmt.Errorf("decode catalog %s: %s", filename, diags.Error())
	}

	variables := make([]domain.MeasurementVariable, 0, len(parsed.Variables))
	for _, block := range parsed.Variables {
		variable, err := block.toVariable()
		if err != nil {
			return domain.Registry{}, fmt.Errorf("catalog %s: variable %q: %w", filename, block.ID, err)
		}
		variables = append(variables, variable)
	}
	registry, err := domain.NewRegistry(variables)
	if err != nil {
		return domain.Registry{}, fmt.Errorf("catalog %s: %w", filename, err)
	}
	return registry, nil
}

func (b *variableBlock) toVariable() (domain.MeasurementVariable, error) {
	var format domain.Format
	switch b.Format {
	case string(domain.FormatDecimal):
		format = domain.FormatDecimal
	case string(domain.FormatHex):
		format = domain.FormatHex
	default:
		return domain.MeasurementVariable{}, fmt.Errorf("unknown format %q", b.Format)
	}
	if b.Name == "" {
		return domain.MeasurementVariable{}, fmt.Errorf("name is required")
	}

	variable := domain.MeasurementVariable{
		UniqueID: b.ID,
		Name:     b.Name,
		Unit:     b.Unit,
		Format:   format,
	}
	fields := []struct {
		attr  string
		value cty.Value
		dst   **float64
	}{
		{"min", b.Min, &variable.MinValue},
		{"max", b.Max, &variable.MaxValue},
		{"default_start", b.DefaultStart, &variable.DefaultStart},
		{"default_step", b.DefaultStep, &variable.DefaultStep},
		{"default_end", b.DefaultEnd, &variable.DefaultEnd},
	}
	for _, f := range fields {
		num, err := numberAttr(f.value, format)
		if err != nil {
			return domain.MeasurementVariable{}, fmt.Errorf("attribute %s: %w", f.attr, err)
		}
		*f.dst = num
	}
	if variable.MinValue != nil && variable.MaxValue != nil && *variable.MinValue > *variable.MaxValue {
		return domain.MeasurementVariable{}, fmt.Errorf("min %v is greater than max %v", *variable.MinValue, *variable.MaxValue)
	}
	return variable, nil
}

// numberAttr reads an optional numeric attribute. Plain HCL numbers convert
// directly; strings go through the variable's value format so hex catalogs
// can write bounds as 0x literals.
func numberAttr(v cty.Value, format domain.Format) (*float64, error) {
	if v == cty.NilVal || v.IsNull() {
		return nil, nil
	}
	if v.Type() == cty.String {
		parsed, ok := domain.ParseValue(v.AsString(), format)
		if !ok {
			return nil, fmt.Errorf("value %q is not parsable", v.AsString())
		}
		return &parsed, nil
	}
	converted, err := convert.Convert(v, cty.Number)
	if err != nil {
		return nil, fmt.Errorf("value is not a number: %w", err)
	}
	f, _ := converted.AsBigFloat().Float64()
	return &f, nil
}
