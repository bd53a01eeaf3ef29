package domain

import "fmt"

// SeriesNode is one level of a sweep definition. The chain of OnEachPoint
// references reads as "on each point of this sweep, also run the nested
// sweep"; each node has at most one nested child, so a series is a linked
// chain, never a tree.
//
// Start, StepWidth and End keep the user's raw text; they are parsed under
// the referenced variable's format during validation. The JSON field names
// are the persisted series format consumed by the measurement engine and
// must not change.
type SeriesNode struct {
	Variable    string      `json:"variable"`
	Start       string      `json:"start"`
	StepWidth   string      `json:"step-width"`
	End         string      `json:"end"`
	OnEachPoint *SeriesNode `json:"on-each-point,omitempty"`
}

// SeriesLevel is one entry of the flattened, outermost-first view of a
// series chain.
type SeriesLevel struct {
	VariableID string
	Start      string
	StepWidth  string
	End        string
}

// StartValues maps a variable id to the raw text of its fixed start value:
// the value the variable holds whenever it is not being swept, or before its
// sweep begins.
type StartValues map[string]string

// Clone returns an independent copy.
func (s StartValues) Clone() StartValues {
	if s == nil {
		return nil
	}
	out := make(StartValues, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Contains reports whether id appears anywhere along the chain. A nil chain
// contains nothing.
func (n *SeriesNode) Contains(id string) bool {
	for node := n; node != nil; node = node.OnEachPoint {
		if node.Variable == id {
			return true
		}
	}
	return false
}

// Depth returns the number of levels in the chain.
func (n *SeriesNode) Depth() int {
	depth := 0
	for node := n; node != nil; node = node.OnEachPoint {
		depth++
	}
	return depth
}

// Append adds one more nesting level at the innermost position and returns
// the chain root. Appending a variable that already appears anywhere in the
// chain fails: a variable cannot be swept within its own sweep.
func (n *SeriesNode) Append(variableID, start, stepWidth, end string) (*SeriesNode, error) {
	if n.Contains(variableID) {
		return n, fmt.Errorf("variable %q already appears in the series chain", variableID)
	}
	node := &SeriesNode{Variable: variableID, Start: start, StepWidth: stepWidth, End: end}
	if n == nil {
		return node, nil
	}
	last := n
	for last.OnEachPoint != nil {
		last = last.OnEachPoint
	}
	last.OnEachPoint = node
	return n, nil
}

// TruncateAfter drops every level nested below depth (0-indexed) and returns
// the chain root. A negative depth drops the whole chain. This is the
// cascade-invalidation operation used when a prefix selection is cleared.
func (n *SeriesNode) TruncateAfter(depth int) *SeriesNode {
	if n == nil || depth < 0 {
		return nil
	}
	node := n
	for i := 0; i < depth && node.OnEachPoint != nil; i++ {
		node = node.OnEachPoint
	}
	node.OnEachPoint = nil
	return n
}

// ToOrderedList flattens the chain into the outermost-first sequence of
// levels handed to the measurement engine. A nil chain flattens to an empty
// list: no series, only fixed start values.
func (n *SeriesNode) ToOrderedList() []SeriesLevel {
	var out []SeriesLevel
	for node := n; node != nil; node = node.OnEachPoint {
		out = append(out, SeriesLevel{
			VariableID: node.Variable,
			Start:      node.Start,
			StepWidth:  node.StepWidth,
			End:        node.End,
		})
	}
	return out
}

// Clone returns an independent copy of the chain.
func (n *SeriesNode) Clone() *SeriesNode {
	if n == nil {
		return nil
	}
	cp := *n
	cp.OnEachPoint = n.OnEachPoint.Clone()
	return &cp
}

// ChainFromLevels rebuilds a series chain from its flattened form. The same
// duplicate-variable guard as Append applies.
func ChainFromLevels(levels []SeriesLevel) (*SeriesNode, error) {
	var root *SeriesNode
	for _, level := range levels {
		var err error
		root, err = root.Append(level.VariableID, level.Start, level.StepWidth, level.End)
		if err != nil {
			return nil, err
		}
	}
	return root, nil
}
