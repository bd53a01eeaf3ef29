package core

import "sort"

// Plugin describes an instrument module that contributes measurement
// variables and validation rules for one device family.
type Plugin interface {
	Name() string
	Version() string
	Register(registry *PluginRegistry) error
}

// PluginRegistry accumulates plugin contributions during registration.
type PluginRegistry struct {
	rules     []Rule
	variables []MeasurementVariable
}

// NewPluginRegistry constructs a plugin registry.
func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{}
}

// RegisterRule adds an in-transaction rule contributed by the plugin.
func (r *PluginRegistry) RegisterRule(rule Rule) {
	if rule == nil {
		return
	}
	r.rules = append(r.rules, rule)
}

// RegisterVariable adds a measurement variable contributed by the plugin.
// Variables with an empty id are ignored; duplicate ids are caught when the
// catalog is rebuilt.
func (r *PluginRegistry) RegisterVariable(variable MeasurementVariable) {
	if variable.UniqueID == "" {
		return
	}
	r.variables = append(r.variables, variable)
}

// Rules returns a copy of registered rules.
func (r *PluginRegistry) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Variables returns a copy of registered variables sorted by id.
func (r *PluginRegistry) Variables() []MeasurementVariable {
	out := make([]MeasurementVariable, len(r.variables))
	copy(out, r.variables)
	sort.Slice(out, func(i, j int) bool { return out[i].UniqueID < out[j].UniqueID })
	return out
}

// PluginMetadata stores metadata describing an installed plugin.
type PluginMetadata struct {
	Name      string
	Version   string
	Variables []string
	Rules     []string
}
