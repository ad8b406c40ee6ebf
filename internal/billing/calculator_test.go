package billing

import (
	"testing"
	"time"

	"github.com/smallbiznis/carebill/internal/apperror"
	"github.com/smallbiznis/carebill/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultTariff() Tariff {
	return TariffFromConfig(config.DefaultBillingConfig())
}

func at(day, hour, minute int) time.Time {
	return time.Date(2024, time.January, day, hour, minute, 0, 0, time.UTC)
}

func TestComputeSameDayIsHourly(t *testing.T) {
	s, err := Compute(at(1, 10, 0), at(1, 22, 0), 15000, "STANDARD", defaultTariff())
	require.NoError(t, err)

	assert.True(t, s.SameDay)
	assert.Equal(t, 12.0, s.DurationHours)
	assert.Equal(t, int64(7500), s.BaseCharge)
	assert.Equal(t, int64(0), s.Surcharge)
	assert.Equal(t, int64(637), s.Tax) // 7500 * 0.085 = 637.5
	assert.Equal(t, int64(8137), s.Total)
	assert.Equal(t, "12.0 hours", s.FormattedDuration)
}

func TestComputeExactMultiDay(t *testing.T) {
	s, err := Compute(at(1, 10, 0), at(3, 10, 0), 15000, "STANDARD", defaultTariff())
	require.NoError(t, err)

	assert.False(t, s.SameDay)
	assert.Equal(t, int64(2), s.DurationDays)
	assert.Equal(t, int64(30000), s.BaseCharge)
	assert.Equal(t, int64(2550), s.Tax)
	assert.Equal(t, int64(32550), s.Total)
	assert.Equal(t, "2 days", s.FormattedDuration)
}

func TestComputeMultiDayWithRemainder(t *testing.T) {
	// 2 days and 3.5 hours at 10000/day: 20000 + floor(10000/24*3.5) = 20000 + 1458
	s, err := Compute(at(1, 8, 0), at(3, 11, 30), 10000, "PRIVATE", defaultTariff())
	require.NoError(t, err)

	assert.Equal(t, int64(21458), s.BaseCharge)
	assert.Equal(t, int64(1823), s.Tax) // floor(21458 * 0.085) = floor(1823.93)
	assert.Equal(t, int64(23281), s.Total)
	assert.Equal(t, "2 days and 3.5 hours", s.FormattedDuration)
}

func TestComputeOvernightShortStayCrossesDate(t *testing.T) {
	s, err := Compute(at(1, 22, 0), at(2, 8, 0), 24000, "STANDARD", defaultTariff())
	require.NoError(t, err)

	assert.False(t, s.SameDay)
	assert.Equal(t, int64(0), s.DurationDays)
	assert.Equal(t, int64(10000), s.BaseCharge)
}

func TestComputeICUSurcharge(t *testing.T) {
	s, err := Compute(at(1, 10, 0), at(1, 16, 30), 48000, "ICU", defaultTariff())
	require.NoError(t, err)

	// base: floor(48000/24*6.5) = 13000, surcharge: floor(6.5*5000) = 32500
	assert.Equal(t, int64(13000), s.BaseCharge)
	assert.Equal(t, int64(32500), s.Surcharge)
	assert.Equal(t, int64(3867), s.Tax) // floor(45500 * 0.085) = floor(3867.5)
	assert.Equal(t, int64(49367), s.Total)
	assert.Equal(t, int64(45500), s.Subtotal())
}

func TestComputeTruncatesFractionalCents(t *testing.T) {
	// 10000/24*1 = 416.66.. -> 416
	s, err := Compute(at(1, 10, 0), at(1, 11, 0), 10000, "STANDARD", defaultTariff())
	require.NoError(t, err)
	assert.Equal(t, int64(416), s.BaseCharge)
	assert.Equal(t, int64(35), s.Tax) // 35.36
}

func TestComputeZeroDuration(t *testing.T) {
	s, err := Compute(at(1, 10, 0), at(1, 10, 0), 15000, "ICU", defaultTariff())
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.Total)
}

func TestComputeSameDayUsesTariffLocation(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	tariff := defaultTariff()
	tariff.Location = loc

	// 15:00Z and 18:00Z are 22:00 and 01:00 next day at UTC+7.
	s, err := Compute(at(1, 15, 0), at(1, 18, 0), 24000, "STANDARD", tariff)
	require.NoError(t, err)
	assert.False(t, s.SameDay)
	assert.Equal(t, int64(3000), s.BaseCharge)
}

func TestComputeRejectsInvertedWindow(t *testing.T) {
	_, err := Compute(at(2, 10, 0), at(1, 10, 0), 15000, "STANDARD", defaultTariff())

	var vErr *apperror.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "discharge_time", vErr.Field)
}

func TestComputeRejectsNonPositiveRate(t *testing.T) {
	_, err := Compute(at(1, 10, 0), at(1, 11, 0), 0, "STANDARD", defaultTariff())
	assert.Error(t, err)
}
