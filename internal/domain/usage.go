package domain

import (
	"time"

	"github.com/google/uuid"
)

// Известные типы ресурсов учета использования
const (
	ResourceInvoices = "invoices"
	ResourceStorage  = "storage"
	ResourceOCRScans = "ocr_scans"
)

// UsageRecord счетчик использования ресурса за период.
// Одна строка на (подписка, период, тип ресурса); сброс обнуляет quantity,
// строка не удаляется.
type UsageRecord struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	Period         string    `json:"period"` // YYYY-MM
	ResourceType   string    `json:"resource_type"`
	Quantity       int64     `json:"quantity"` // >= 0
	RecordedAt     time.Time `json:"recorded_at"`
}

// UsageMetrics агрегированные счетчики за период
type UsageMetrics struct {
	SubscriptionID uuid.UUID        `json:"subscription_id"`
	Period         string           `json:"period"`
	Resources      map[string]int64 `json:"resources"`
	LastUpdated    time.Time        `json:"last_updated"`
}

// PeriodOf форматирует период календарного месяца как YYYY-MM
func PeriodOf(t time.Time) string {
	return t.Format("2006-01")
}
