package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)
	seqAnyRe = regexp.MustCompile(`\{SEQ\d*\}`)
)

const DefaultInvoiceNumberTemplate = "CLINIC-{YYYY}{MM}-{SEQ4}"

// FormatInvoiceNumber renders template for the period containing issuedAt.
// Sequences wider than the pad width are printed in full.
func FormatInvoiceNumber(template string, issuedAt time.Time, seq int64) (string, error) {
	if template == "" {
		return "", fmt.Errorf("invoice number template is empty")
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}

	out := replaceDateTokens(template, issuedAt)
	out = strings.ReplaceAll(out, "{SEQ}", strconv.FormatInt(seq, 10))
	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		match := seqPadRe.FindStringSubmatch(m)
		width, err := strconv.Atoi(match[1])
		if err != nil || width <= 0 {
			return m
		}
		return fmt.Sprintf("%0*d", width, seq)
	})

	if strings.Contains(out, "{") || strings.Contains(out, "}") {
		return "", fmt.Errorf("unresolved token in invoice format: %s", out)
	}
	return out, nil
}

// Prefix returns the part of the rendered number preceding the sequence, which
// is shared by every invoice of the same period.
func Prefix(template string, issuedAt time.Time) (string, error) {
	loc := seqAnyRe.FindStringIndex(template)
	if loc == nil {
		return "", fmt.Errorf("invoice number template has no sequence token: %s", template)
	}
	if loc[1] != len(template) {
		return "", fmt.Errorf("sequence token must end the template: %s", template)
	}
	return replaceDateTokens(template[:loc[0]], issuedAt), nil
}

// ParseSequence extracts the sequence from a number rendered with prefix.
func ParseSequence(prefix, number string) (int64, error) {
	if !strings.HasPrefix(number, prefix) {
		return 0, fmt.Errorf("invoice number %q does not start with %q", number, prefix)
	}
	seq, err := strconv.ParseInt(strings.TrimPrefix(number, prefix), 10, 64)
	if err != nil || seq <= 0 {
		return 0, fmt.Errorf("invalid invoice sequence in %q", number)
	}
	return seq, nil
}

func replaceDateTokens(s string, at time.Time) string {
	s = strings.ReplaceAll(s, "{YYYY}", at.Format("2006"))
	s = strings.ReplaceAll(s, "{YY}", at.Format("06"))
	s = strings.ReplaceAll(s, "{MM}", at.Format("01"))
	return strings.ReplaceAll(s, "{DD}", at.Format("02"))
}
