package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatInvoiceNumber(t *testing.T) {
	at := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)

	got, err := FormatInvoiceNumber(DefaultInvoiceNumberTemplate, at, 7)
	require.NoError(t, err)
	assert.Equal(t, "CLINIC-202403-0007", got)

	got, err = FormatInvoiceNumber(DefaultInvoiceNumberTemplate, at, 12345)
	require.NoError(t, err)
	assert.Equal(t, "CLINIC-202403-12345", got)

	_, err = FormatInvoiceNumber(DefaultInvoiceNumberTemplate, at, 0)
	assert.Error(t, err)

	_, err = FormatInvoiceNumber("INV-{QQ}-{SEQ}", at, 1)
	assert.Error(t, err)
}

func TestPrefixAndParseSequence(t *testing.T) {
	at := time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC)

	prefix, err := Prefix(DefaultInvoiceNumberTemplate, at)
	require.NoError(t, err)
	assert.Equal(t, "CLINIC-202412-", prefix)

	seq, err := ParseSequence(prefix, "CLINIC-202412-0042")
	require.NoError(t, err)
	assert.Equal(t, int64(42), seq)

	_, err = ParseSequence(prefix, "CLINIC-202411-0042")
	assert.Error(t, err)

	_, err = Prefix("{SEQ4}-CLINIC", at)
	assert.Error(t, err)
}
