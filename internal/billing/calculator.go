// Package billing computes stay charges from an admission window and a room
// tariff. All amounts are integer minor units and every rounding step
// truncates toward zero.
package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/carebill/internal/apperror"
	"github.com/smallbiznis/carebill/internal/config"
)

const (
	secondsPerHour = 3600
	secondsPerDay  = 24 * secondsPerHour

	roomTypeICU = "ICU"
)

// Tariff holds the constants applied on top of a room's daily rate.
type Tariff struct {
	TaxRate                 decimal.Decimal
	ICUHourlySurchargeCents int64
	Location                *time.Location
}

func TariffFromConfig(cfg config.BillingConfig) Tariff {
	return Tariff{
		TaxRate:                 decimal.NewFromFloat(cfg.TaxRate),
		ICUHourlySurchargeCents: cfg.ICUHourlySurchargeCents,
		Location:                cfg.Location(),
	}
}

// Summary is the itemised result of a stay computation.
type Summary struct {
	DurationHours     float64 `json:"duration_hours"`
	DurationDays      int64   `json:"duration_days"`
	SameDay           bool    `json:"same_day"`
	DailyRate         int64   `json:"daily_rate"`
	RoomType          string  `json:"room_type"`
	BaseCharge        int64   `json:"base_charge"`
	Surcharge         int64   `json:"surcharge"`
	Tax               int64   `json:"tax"`
	Total             int64   `json:"total"`
	FormattedDuration string  `json:"formatted_duration"`
}

// Subtotal is the taxable amount.
func (s Summary) Subtotal() int64 {
	return s.BaseCharge + s.Surcharge
}

// Compute bills the stay between start and end. Stays that begin and end on
// the same calendar date (in the tariff location) are billed pro rata by the
// hour; longer stays bill each full 24 hours at the daily rate and the
// remainder pro rata.
func Compute(start, end time.Time, dailyRateCents int64, roomType string, tariff Tariff) (Summary, error) {
	if end.Before(start) {
		return Summary{}, apperror.Validation("discharge_time", "must not be before admission_time")
	}
	if dailyRateCents <= 0 {
		return Summary{}, apperror.Validation("daily_rate", "must be positive")
	}

	loc := tariff.Location
	if loc == nil {
		loc = time.UTC
	}

	seconds := int64(end.Sub(start) / time.Second)
	rate := decimal.NewFromInt(dailyRateCents)
	sameDay := sameDate(start.In(loc), end.In(loc))

	fullDays := seconds / secondsPerDay
	remainder := seconds % secondsPerDay

	var base int64
	if sameDay {
		base = prorate(rate, seconds)
	} else {
		base = fullDays*dailyRateCents + prorate(rate, remainder)
	}

	var surcharge int64
	if strings.EqualFold(roomType, roomTypeICU) {
		surcharge = decimal.NewFromInt(seconds).
			Mul(decimal.NewFromInt(tariff.ICUHourlySurchargeCents)).
			Div(decimal.NewFromInt(secondsPerHour)).
			Truncate(0).
			IntPart()
	}

	tax := decimal.NewFromInt(base + surcharge).Mul(tariff.TaxRate).Truncate(0).IntPart()

	hours := float64(seconds) / secondsPerHour
	return Summary{
		DurationHours:     hours,
		DurationDays:      fullDays,
		SameDay:           sameDay,
		DailyRate:         dailyRateCents,
		RoomType:          strings.ToUpper(roomType),
		BaseCharge:        base,
		Surcharge:         surcharge,
		Tax:               tax,
		Total:             base + surcharge + tax,
		FormattedDuration: formatDuration(sameDay, fullDays, remainder, hours),
	}, nil
}

// prorate returns floor(rate / 24 * seconds / 3600).
func prorate(rate decimal.Decimal, seconds int64) int64 {
	if seconds <= 0 {
		return 0
	}
	return rate.Mul(decimal.NewFromInt(seconds)).
		Div(decimal.NewFromInt(secondsPerDay)).
		Truncate(0).
		IntPart()
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func formatDuration(sameDay bool, fullDays, remainder int64, hours float64) string {
	if sameDay || fullDays == 0 {
		return fmt.Sprintf("%.1f hours", hours)
	}
	days := "days"
	if fullDays == 1 {
		days = "day"
	}
	if remainder == 0 {
		return fmt.Sprintf("%d %s", fullDays, days)
	}
	return fmt.Sprintf("%d %s and %.1f hours", fullDays, days, float64(remainder)/secondsPerHour)
}
