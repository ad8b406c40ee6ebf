package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecretKeepsPrefixAndSuffix(t *testing.T) {
	assert.Equal(t, "cs_****1234", MaskSecret("cs_abcdef1234"))
	assert.Equal(t, "****", MaskSecret("abc"))
	assert.Equal(t, "", MaskSecret("  "))
}

func TestMaskDetailsOnlyTouchesSensitiveKeys(t *testing.T) {
	out := MaskDetails(map[string]any{
		"notes":  "patient felt dizzy",
		"amount": int64(1200),
		"nested": map[string]any{"email": "a@b.example"},
		"status": "PAID",
	})

	assert.Equal(t, "****izzy", out["notes"])
	assert.Equal(t, int64(1200), out["amount"])
	assert.Equal(t, "PAID", out["status"])
	assert.Equal(t, "****mple", out["nested"].(map[string]any)["email"])
	assert.Nil(t, MaskDetails(nil))
}
