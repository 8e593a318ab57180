package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Стандартные ключи атрибутов
const (
	// Отчёт
	AttrReportType   = "report.type"
	AttrReportFormat = "report.format"
	AttrReportID     = "report.id"
	AttrReportOwner  = "report.owner"
	AttrReportRows   = "report.rows"
	AttrReportBytes  = "report.size_bytes"

	// Период
	AttrPeriodStart = "report.period.start"
	AttrPeriodEnd   = "report.period.end"

	// Reaper
	AttrReaperTrigger   = "reaper.trigger"
	AttrReaperReclaimed = "reaper.reclaimed"
	AttrReaperFailures  = "reaper.failures"
)

// ReportAttributes возвращает атрибуты запроса отчёта
func ReportAttributes(reportType, format, owner string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrReportType, reportType),
		attribute.String(AttrReportFormat, format),
		attribute.String(AttrReportOwner, owner),
	}
}

// ArtifactAttributes возвращает атрибуты созданного артефакта
func ArtifactAttributes(id string, rows int, sizeBytes int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrReportID, id),
		attribute.Int(AttrReportRows, rows),
		attribute.Int64(AttrReportBytes, sizeBytes),
	}
}

// SweepAttributes возвращает атрибуты прохода reaper
func SweepAttributes(trigger string, reclaimed, failures int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrReaperTrigger, trigger),
		attribute.Int(AttrReaperReclaimed, reclaimed),
		attribute.Int(AttrReaperFailures, failures),
	}
}
