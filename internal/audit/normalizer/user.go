package normalizer

import "audittrail/internal/audit"

// User profile lifecycle. Deletions are critical: they are the events a
// data-subject erasure audit starts from.
var userEvents = map[string]eventSpec{
	"user.created": {
		resourceType: "user",
		idKeys:       []string{"userId"},
		severity:     audit.SeverityMedium,
		tags:         []string{"user", "gdpr"},
	},
	"user.updated": {
		resourceType: "user",
		idKeys:       []string{"userId"},
		severity:     audit.SeverityLow,
		tags:         []string{"user", "gdpr"},
	},
	"user.deleted": {
		resourceType: "user",
		idKeys:       []string{"userId"},
		severity:     audit.SeverityCritical,
		tags:         []string{"user", "gdpr", "security"},
		security:     true,
	},
	"user.profile_viewed": {
		resourceType: "user",
		idKeys:       []string{"userId"},
		severity:     audit.SeverityLow,
		tags:         []string{"user"},
	},
}
