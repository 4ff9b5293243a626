package normalizer

import "audittrail/internal/audit"

var cartEvents = map[string]eventSpec{
	"cart.item_added": {
		resourceType: "cart",
		idKeys:       []string{"cartId", "userId"},
		severity:     audit.SeverityLow,
		tags:         []string{"cart"},
	},
	"cart.item_removed": {
		resourceType: "cart",
		idKeys:       []string{"cartId", "userId"},
		severity:     audit.SeverityLow,
		tags:         []string{"cart"},
	},
	"cart.cleared": {
		resourceType: "cart",
		idKeys:       []string{"cartId", "userId"},
		severity:     audit.SeverityLow,
		tags:         []string{"cart"},
	},
	"cart.checkout_started": {
		resourceType: "cart",
		idKeys:       []string{"cartId", "userId"},
		severity:     audit.SeverityMedium,
		tags:         []string{"cart", "transaction"},
	},
}
