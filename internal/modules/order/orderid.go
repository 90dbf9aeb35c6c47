// README: Customer-facing order numbers (OD-<timestamp>-<suffix>-<seq>).
package order

import (
	"fmt"
	"strings"
	"time"

	"fuelhaul/internal/types"
)

// NewOrderNumber formats the order number for a customer's next order of the
// day. dailyCount is how many orders the customer already placed today.
func NewOrderNumber(customerID types.ID, now time.Time, dailyCount int) string {
	return fmt.Sprintf("OD-%s-%s-%04d", now.Format("20060102150405"), customerSuffix(customerID), (dailyCount+1)%10000)
}

// customerSuffix keeps the last two characters of the id as digits.
func customerSuffix(id types.ID) string {
	s := string(id)
	if len(s) > 2 {
		s = s[len(s)-2:]
	}
	var b strings.Builder
	for i := 0; i < 2-len(s); i++ {
		b.WriteByte('0')
	}
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
