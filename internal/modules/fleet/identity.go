// README: Vehicle identity codes.
package fleet

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const identityPrefix = "FUELHAUL"

// NewIdentityCode derives a unique code from the plate and registration instant.
func NewIdentityCode(plate string, at time.Time) string {
	ms := at.UnixMilli()
	sum := sha1.Sum([]byte(fmt.Sprintf("%s:%d", strings.ToUpper(plate), ms)))
	return fmt.Sprintf("%s-%d-%s", identityPrefix, ms, strings.ToUpper(hex.EncodeToString(sum[:])[:4]))
}
