// services/report-svc/internal/service/request.go
package service

import (
	"fmt"
	"strings"
	"time"

	"workshop/pkg/apperror"
	"workshop/services/report-svc/internal/catalog"
	"workshop/services/report-svc/internal/generator"
)

const (
	// MaxSpanYears максимальная длина периода отчёта
	MaxSpanYears = 2
	// MaxFutureSkew насколько конец периода может быть в будущем
	MaxFutureSkew = 24 * time.Hour
)

// GenerateRequest запрос на генерацию отчёта
type GenerateRequest struct {
	ReportType string
	Format     string
	StartDate  *time.Time
	EndDate    *time.Time
	Period     string
	Owner      string
}

// resolvedRequest запрос после проверки
type resolvedRequest struct {
	reportType catalog.ReportType
	format     generator.Format
	start      time.Time
	end        time.Time
	owner      string
}

// resolve проверяет запрос и вычисляет фактический период.
// Все ошибки проверки собираются в одну ValidationError.
func resolve(req *GenerateRequest, now time.Time, loc *time.Location) (*resolvedRequest, error) {
	if req == nil {
		return nil, apperror.New(apperror.CodeNilInput, "request is required")
	}

	verrs := apperror.NewValidationErrors()
	out := &resolvedRequest{owner: req.Owner}

	rt, err := catalog.ParseReportType(req.ReportType)
	if err != nil {
		addErr(verrs, err)
	}
	out.reportType = rt

	f, err := generator.ParseFormat(req.Format)
	if err != nil {
		addErr(verrs, err)
	}
	out.format = f

	start, end, err := resolveRange(req, now, loc)
	if err != nil {
		addErr(verrs, err)
	}
	out.start, out.end = start, end

	if err := verrs.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func addErr(verrs *apperror.ValidationErrors, err error) {
	if appErr, ok := apperror.As(err); ok {
		verrs.Add(appErr)
		return
	}
	verrs.Add(apperror.Wrap(err, apperror.CodeValidation, err.Error()))
}

// resolveRange: явные даты, иначе именованный период, иначе последний месяц
func resolveRange(req *GenerateRequest, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	hasStart, hasEnd := req.StartDate != nil, req.EndDate != nil
	period := strings.TrimSpace(req.Period)

	switch {
	case hasStart != hasEnd:
		missing := "endDate"
		if !hasStart {
			missing = "startDate"
		}
		return time.Time{}, time.Time{}, apperror.NewWithField(apperror.CodeValidation,
			"startDate and endDate must be provided together", missing)

	case hasStart && period != "":
		return time.Time{}, time.Time{}, apperror.NewWithField(apperror.CodeValidation,
			"period cannot be combined with explicit dates", "period")

	case hasStart:
		return validateRange(*req.StartDate, *req.EndDate, now)

	case period != "":
		start, end, err := ResolvePeriod(period, now, loc)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		return validateRange(start, end, now)

	default:
		return validateRange(now.AddDate(0, -1, 0), now, now)
	}
}

// validateRange проверяет границы периода. Конец без времени суток
// расширяется до последней наносекунды дня.
func validateRange(start, end, now time.Time) (time.Time, time.Time, error) {
	effectiveEnd := end
	if isMidnight(end) {
		effectiveEnd = endOfDay(end)
	}

	if start.After(effectiveEnd) {
		return time.Time{}, time.Time{}, apperror.NewWithField(apperror.CodeInvalidDateRange,
			"startDate must not be after endDate", "startDate").
			WithDetails("startDate", start.Format(time.RFC3339)).
			WithDetails("endDate", end.Format(time.RFC3339))
	}

	// Допуск в будущее проверяется по заданному концу: завтрашняя дата без времени допустима
	if end.After(now.Add(MaxFutureSkew)) {
		return time.Time{}, time.Time{}, apperror.NewWithField(apperror.CodeInvalidDateRange,
			"endDate must not be more than 1 day in the future", "endDate")
	}

	// Длина периода считается по заданному концу, без расширения до конца дня
	if start.AddDate(MaxSpanYears, 0, 0).Before(end) {
		return time.Time{}, time.Time{}, apperror.NewWithField(apperror.CodeInvalidDateRange,
			fmt.Sprintf("date range must not exceed %d years", MaxSpanYears), "endDate")
	}

	return start, effectiveEnd, nil
}

func isMidnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// ParseDate разбирает дату в формате 2006-01-02 или RFC 3339.
// Дата без времени трактуется как полночь в loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or RFC 3339, got %q", s)
	}
	return t, nil
}
