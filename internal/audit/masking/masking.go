package masking

import "strings"

const maskToken = "****"

// sensitiveKeys hold free text or provider payloads that may carry patient data.
var sensitiveKeys = map[string]struct{}{
	"notes":           {},
	"discharge_notes": {},
	"note":            {},
	"email":           {},
	"checkout_url":    {},
}

// MaskSecret redacts a value while keeping a minimal suffix for auditing.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	prefix, remainder := splitPrefix(trimmed)
	if len(remainder) <= 4 {
		return prefix + maskToken
	}

	return prefix + maskToken + remainder[len(remainder)-4:]
}

// MaskDetails returns a copy of details with sensitive string values masked.
func MaskDetails(details map[string]any) map[string]any {
	if len(details) == 0 {
		return nil
	}

	out := make(map[string]any, len(details))
	for key, value := range details {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, sensitive := sensitiveKeys[key]; sensitive {
			if s, ok := value.(string); ok {
				out[key] = MaskSecret(s)
				continue
			}
		}
		if nested, ok := value.(map[string]any); ok {
			out[key] = MaskDetails(nested)
			continue
		}
		out[key] = value
	}
	return out
}

func splitPrefix(value string) (string, string) {
	lastUnderscore := strings.LastIndex(value, "_")
	if lastUnderscore == -1 || lastUnderscore == len(value)-1 {
		return "", value
	}
	return value[:lastUnderscore+1], value[lastUnderscore+1:]
}
