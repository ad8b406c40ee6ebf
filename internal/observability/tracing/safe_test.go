package tracing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsPatientFields(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/v1/admissions"),
		attribute.String("patient.name", "Jane"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorHidesMessage(t *testing.T) {
	assert.Nil(t, SafeError(nil))
	assert.Equal(t, "request failed", SafeError(errors.New("patient 12 missing")).Error())
}
