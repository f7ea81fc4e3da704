package queryclient

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Descriptor identifies a logical request: the operation to run, its
// parameters, and an optional named variant of the operation.
type Descriptor struct {
	Operation string
	Params    map[string]any
	Variant   string
}

// Signature returns the canonical cache/dedup key for d. Two descriptors with
// the same operation, the same parameter key/value pairs (in any insertion
// order) and the same variant produce the identical string: parameters are
// serialized as canonical JSON with lexicographically sorted keys at every
// nesting level.
func Signature(d Descriptor) string {
	var b strings.Builder
	b.WriteString(d.Operation)
	b.WriteByte('#')
	b.WriteString(d.Variant)
	b.WriteByte('#')
	writeCanonical(&b, d.Params)
	return b.String()
}

func writeCanonical(b *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			raw, _ := json.Marshal(k)
			b.Write(raw)
			b.WriteByte(':')
			writeCanonical(b, val[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			// Non-serializable values still need a stable representation.
			raw, _ = json.Marshal(fmt.Sprint(val))
		}
		b.Write(raw)
	}
}
