package normalizer

import "audittrail/internal/audit"

var notificationEvents = map[string]eventSpec{
	"notification.sent": {
		resourceType: "notification",
		idKeys:       []string{"notificationId", "userId"},
		severity:     audit.SeverityLow,
		tags:         []string{"notification"},
	},
	"notification.failed": {
		resourceType: "notification",
		idKeys:       []string{"notificationId", "userId"},
		severity:     audit.SeverityHigh,
		tags:         []string{"notification"},
	},
}
