package sentinel

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	scanPrefix     = "SCN"
	incidentPrefix = "INC"
)

// newID builds PREFIX_YYYYMMDDHHMMSS_<32 hex>, where the suffix is a random
// UUID without dashes
func newID(prefix string, now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return prefix + "_" + now.Format("20060102150405") + "_" + suffix
}
