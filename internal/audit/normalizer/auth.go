package normalizer

import "audittrail/internal/audit"

// Authentication events. Everything here is security relevant; credential
// changes escalate to critical because they are the primary account-takeover
// vector.
var authEvents = map[string]eventSpec{
	"auth.login": {
		resourceType: "user",
		idKeys:       []string{"userId", "sessionId"},
		severity:     audit.SeverityMedium,
		tags:         []string{"auth", "security"},
		security:     true,
	},
	"auth.logout": {
		resourceType: "user",
		idKeys:       []string{"userId", "sessionId"},
		severity:     audit.SeverityLow,
		tags:         []string{"auth"},
	},
	"auth.register": {
		resourceType: "user",
		idKeys:       []string{"userId"},
		severity:     audit.SeverityMedium,
		tags:         []string{"auth", "gdpr"},
	},
	"auth.password_reset_requested": {
		resourceType: "user",
		idKeys:       []string{"userId", "email"},
		severity:     audit.SeverityHigh,
		tags:         []string{"auth", "security"},
		security:     true,
	},
	"auth.password_reset_completed": {
		resourceType: "user",
		idKeys:       []string{"userId"},
		severity:     audit.SeverityCritical,
		tags:         []string{"auth", "security"},
		security:     true,
	},
	"auth.password_changed": {
		resourceType: "user",
		idKeys:       []string{"userId"},
		severity:     audit.SeverityHigh,
		tags:         []string{"auth", "security"},
		security:     true,
	},
	"auth.token_refreshed": {
		resourceType: "user",
		idKeys:       []string{"userId", "sessionId"},
		severity:     audit.SeverityLow,
		tags:         []string{"auth"},
	},
	"auth.account_locked": {
		resourceType: "user",
		idKeys:       []string{"userId"},
		severity:     audit.SeverityCritical,
		tags:         []string{"auth", "security"},
		security:     true,
	},
}
