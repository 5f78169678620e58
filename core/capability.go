package core

import "strings"

// Capability is a bitset describing what a provider or model can do.
type Capability uint32

// CapNone is the empty requirement; every model satisfies it.
const CapNone Capability = 0

const (
	// CapChat is basic conversational completion.
	CapChat Capability = 1 << iota
	// CapStreaming is incremental delta emission.
	CapStreaming
	// CapToolUse is function/tool calling.
	CapToolUse
	// CapSchemaOutput is schema-constrained structured output.
	CapSchemaOutput
)

// Has reports whether c satisfies the required set: trivially true when
// required is CapNone, otherwise every required bit must be present in c.
func (c Capability) Has(required Capability) bool {
	return c&required == required
}

// String returns a pipe-joined list of capability names.
func (c Capability) String() string {
	if c == CapNone {
		return "none"
	}
	var names []string
	for _, e := range []struct {
		bit  Capability
		name string
	}{
		{CapChat, "chat"},
		{CapStreaming, "streaming"},
		{CapToolUse, "tool-use"},
		{CapSchemaOutput, "schema-output"},
	} {
		if c&e.bit != 0 {
			names = append(names, e.name)
		}
	}
	return strings.Join(names, "|")
}
