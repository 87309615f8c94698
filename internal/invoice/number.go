package invoice

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewNumber composes a human-readable invoice number from the calendar year
// and a random 8-character uppercase token, e.g. NF-2026-3FA85F64. Uniqueness
// is probabilistic; the storage layer additionally enforces one invoice per
// sale.
func NewNumber(now time.Time) string {
	token := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("NF-%d-%s", now.Year(), token)
}
