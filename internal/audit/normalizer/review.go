package normalizer

import "audittrail/internal/audit"

var reviewEvents = map[string]eventSpec{
	"review.created": {
		resourceType: "review",
		idKeys:       []string{"reviewId", "productId"},
		severity:     audit.SeverityLow,
		tags:         []string{"review", "ugc"},
	},
	"review.updated": {
		resourceType: "review",
		idKeys:       []string{"reviewId", "productId"},
		severity:     audit.SeverityLow,
		tags:         []string{"review", "ugc"},
	},
	"review.deleted": {
		resourceType: "review",
		idKeys:       []string{"reviewId", "productId"},
		severity:     audit.SeverityMedium,
		tags:         []string{"review", "ugc"},
	},
	"review.flagged": {
		resourceType: "review",
		idKeys:       []string{"reviewId", "productId"},
		severity:     audit.SeverityHigh,
		tags:         []string{"review", "ugc", "moderation"},
		security:     true,
	},
}
