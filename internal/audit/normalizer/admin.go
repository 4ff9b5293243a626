package normalizer

import "audittrail/internal/audit"

// Administrative actions. All of them log at the security level and most
// are critical: an admin trail is the part of the audit log regulators ask
// for first.
var adminEvents = map[string]eventSpec{
	"admin.login": {
		resourceType: "admin",
		idKeys:       []string{"adminId", "userId"},
		severity:     audit.SeverityHigh,
		tags:         []string{"admin", "security"},
		security:     true,
	},
	"admin.config_changed": {
		resourceType: "admin",
		idKeys:       []string{"configKey", "adminId"},
		severity:     audit.SeverityCritical,
		tags:         []string{"admin", "security"},
		security:     true,
	},
	"admin.user_suspended": {
		resourceType: "admin",
		idKeys:       []string{"targetUserId", "adminId"},
		severity:     audit.SeverityCritical,
		tags:         []string{"admin", "security"},
		security:     true,
	},
	"admin.data_export": {
		resourceType: "admin",
		idKeys:       []string{"exportId", "adminId"},
		severity:     audit.SeverityCritical,
		tags:         []string{"admin", "security", "gdpr"},
		security:     true,
	},
}
