package lifecycle

import (
	"time"

	"github.com/tbourn/go-hiring-backend/internal/domain"
)

// IsQuotationExpired reports whether the hiring's quotation validity window
// has elapsed: now > quotedAt + quotationValidityDays. When either field is
// unset the quotation cannot expire.
//
// A periodic sweep independently moves expired quoted hirings to the expired
// status, so this predicate and the stored status may momentarily disagree.
// All gating logic must consult the predicate, never just the stored status.
func IsQuotationExpired(h *domain.Hiring, now time.Time) bool {
	if h.QuotedAt == nil || h.QuotationValidityDays <= 0 {
		return false
	}
	deadline := h.QuotedAt.AddDate(0, 0, h.QuotationValidityDays)
	return now.After(deadline)
}
