// services/report-svc/internal/service/period.go
package service

import (
	"fmt"
	"strings"
	"time"

	"workshop/pkg/apperror"
)

// Period именованный период отчёта
type Period string

const (
	PeriodToday       Period = "TODAY"
	PeriodYesterday   Period = "YESTERDAY"
	PeriodThisWeek    Period = "THIS_WEEK"
	PeriodLastWeek    Period = "LAST_WEEK"
	PeriodThisMonth   Period = "THIS_MONTH"
	PeriodLastMonth   Period = "LAST_MONTH"
	PeriodThisQuarter Period = "THIS_QUARTER"
	PeriodThisYear    Period = "THIS_YEAR"
	PeriodLast7Days   Period = "LAST_7_DAYS"
	PeriodLast30Days  Period = "LAST_30_DAYS"
)

// Periods перечисляет поддерживаемые периоды
func Periods() []Period {
	return []Period{
		PeriodToday, PeriodYesterday,
		PeriodThisWeek, PeriodLastWeek,
		PeriodThisMonth, PeriodLastMonth,
		PeriodThisQuarter, PeriodThisYear,
		PeriodLast7Days, PeriodLast30Days,
	}
}

// ResolvePeriod вычисляет границы периода относительно now в часовом поясе loc.
// Текущие периоды заканчиваются концом сегодняшнего дня, прошедшие - концом
// своего последнего дня.
func ResolvePeriod(name string, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	today := startOfDay(now)
	eod := endOfDay(now)

	p := Period(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "-", "_")))
	switch p {
	case PeriodToday:
		return today, eod, nil

	case PeriodYesterday:
		y := today.AddDate(0, 0, -1)
		return y, endOfDay(y), nil

	case PeriodThisWeek:
		return monday(today), eod, nil

	case PeriodLastWeek:
		m := monday(today)
		return m.AddDate(0, 0, -7), m.Add(-time.Nanosecond), nil

	case PeriodThisMonth:
		return firstOfMonth(today), eod, nil

	case PeriodLastMonth:
		first := firstOfMonth(today)
		return first.AddDate(0, -1, 0), first.Add(-time.Nanosecond), nil

	case PeriodThisQuarter:
		qMonth := time.Month((int(today.Month())-1)/3*3 + 1)
		return time.Date(today.Year(), qMonth, 1, 0, 0, 0, 0, loc), eod, nil

	case PeriodThisYear:
		return time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, loc), eod, nil

	case PeriodLast7Days:
		return today.AddDate(0, 0, -6), eod, nil

	case PeriodLast30Days:
		return today.AddDate(0, 0, -29), eod, nil

	default:
		return time.Time{}, time.Time{}, apperror.NewWithField(apperror.CodeInvalidPeriod,
			fmt.Sprintf("unknown period %q", name), "period")
	}
}

// monday неделя начинается с понедельника
func monday(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func firstOfMonth(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
}
