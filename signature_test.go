package queryclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignatureIgnoresInsertionOrder(t *testing.T) {
	d1 := Descriptor{
		Operation: "keywordSuggestions",
		Params: map[string]any{
			"seed":    "running shoes",
			"country": "us",
			"limit":   50,
		},
	}
	d2 := Descriptor{
		Operation: "keywordSuggestions",
		Params: map[string]any{
			"limit":   50,
			"country": "us",
			"seed":    "running shoes",
		},
	}
	assert.Equal(t, Signature(d1), Signature(d2))
}

func TestSignatureSortsNestedKeys(t *testing.T) {
	d := Descriptor{
		Operation: "keywordSuggestions",
		Params: map[string]any{
			"filter": map[string]any{"minVolume": 100, "device": "mobile"},
			"seed":   "crm",
		},
	}
	assert.Equal(t,
		`keywordSuggestions##{"filter":{"device":"mobile","minVolume":100},"seed":"crm"}`,
		Signature(d))
}

func TestSignatureDistinguishesVariant(t *testing.T) {
	base := Descriptor{Operation: "serp", Params: map[string]any{"q": "x"}}
	mobile := base
	mobile.Variant = "mobile"
	assert.NotEqual(t, Signature(base), Signature(mobile))
}

func TestSignatureDistinguishesOperation(t *testing.T) {
	params := map[string]any{"q": "x"}
	a := Descriptor{Operation: "serp", Params: params}
	b := Descriptor{Operation: "volume", Params: params}
	assert.NotEqual(t, Signature(a), Signature(b))
}

func TestSignatureTreatsNilAndEmptyParamsAlike(t *testing.T) {
	withNil := Descriptor{Operation: "op"}
	withEmpty := Descriptor{Operation: "op", Params: map[string]any{}}
	assert.Equal(t, "op##{}", Signature(withNil))
	assert.Equal(t, Signature(withEmpty), Signature(withNil),
		"absent and empty parameters are the same request")
}

func TestSignatureSerializesArrays(t *testing.T) {
	d := Descriptor{
		Operation: "bulkVolume",
		Params:    map[string]any{"keywords": []any{"a", "b"}},
	}
	assert.Equal(t, `bulkVolume##{"keywords":["a","b"]}`, Signature(d))
}
