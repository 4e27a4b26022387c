package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewOrderNumber builds the globally unique, human-readable order number
// {TIER}-{yyyyMMdd}-{8-char-random}, e.g. DISTRIBUTOR-20260827-9F3A21BC.
func NewOrderNumber(tier string, now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("%s-%s-%s", strings.ToUpper(tier), now.Format("20060102"), suffix)
}
