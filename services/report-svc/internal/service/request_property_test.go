// services/report-svc/internal/service/request_property_test.go
package service

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"workshop/pkg/apperror"
)

var propNow = time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)

// genDay дни в пределах нескольких лет до propNow и пары дней после
func genDay() gopter.Gen {
	return gen.IntRange(-3, 5*366).Map(func(n int) time.Time {
		return startOfDay(propNow).AddDate(0, 0, -n)
	})
}

// TestValidateRange_Properties проверяет границы периода на случайных датах.
// Property: принятый период упорядочен, не длиннее двух лет и не уходит в будущее
func TestValidateRange_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("accepted ranges are ordered and bounded", prop.ForAll(
		func(a, b time.Time) bool {
			start, end, err := validateRange(a, b, propNow)
			if err != nil {
				return apperror.Is(err, apperror.CodeInvalidDateRange)
			}
			return !start.After(end) &&
				!start.AddDate(MaxSpanYears, 0, 0).Before(b) &&
				!b.After(propNow.Add(MaxFutureSkew))
		},
		genDay(), genDay(),
	))

	properties.Property("end within the future skew is accepted", prop.ForAll(
		func(d time.Time, back int) bool {
			_, _, err := validateRange(d.AddDate(0, 0, -back), d, propNow)
			if d.After(propNow.Add(MaxFutureSkew)) {
				return apperror.Is(err, apperror.CodeInvalidDateRange)
			}
			return err == nil
		},
		gen.IntRange(-3, 30).Map(func(n int) time.Time {
			return startOfDay(propNow).AddDate(0, 0, -n)
		}),
		gen.IntRange(0, 300),
	))

	properties.Property("start after end is always rejected", prop.ForAll(
		func(a, b time.Time) bool {
			if !a.After(b) {
				a, b = b.AddDate(0, 0, 1), a
			}
			_, _, err := validateRange(a, b, propNow)
			return apperror.Is(err, apperror.CodeInvalidDateRange)
		},
		genDay(), genDay(),
	))

	properties.Property("midnight end covers the whole day", prop.ForAll(
		func(d time.Time, back int) bool {
			start := d.AddDate(0, 0, -back)
			_, end, err := validateRange(start, d, propNow)
			if err != nil {
				return false
			}
			return end.Equal(endOfDay(d))
		},
		gen.IntRange(0, 365).Map(func(n int) time.Time {
			return startOfDay(propNow).AddDate(0, 0, -n)
		}),
		gen.IntRange(0, 300),
	))

	properties.TestingRun(t)
}

// TestResolvePeriod_Properties: любой именованный период не пуст и содержит
// момент внутри себя, а текущие периоды заканчиваются сегодня.
func TestResolvePeriod_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("periods are valid report ranges", prop.ForAll(
		func(offsetMinutes int, idx int) bool {
			now := propNow.Add(-time.Duration(offsetMinutes) * time.Minute)
			p := Periods()[idx]

			start, end, err := ResolvePeriod(string(p), now, time.UTC)
			if err != nil {
				return false
			}
			if !start.Before(end) || start.After(now) {
				return false
			}
			_, _, err = validateRange(start, end, now)
			return err == nil
		},
		gen.IntRange(0, 3*365*24*60),
		gen.IntRange(0, len(Periods())-1),
	))

	properties.TestingRun(t)
}
