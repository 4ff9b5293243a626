package normalizer

import "audittrail/internal/audit"

var productEvents = map[string]eventSpec{
	"product.created": {
		resourceType: "product",
		idKeys:       []string{"productId", "sku"},
		severity:     audit.SeverityLow,
		tags:         []string{"product", "catalog"},
	},
	"product.updated": {
		resourceType: "product",
		idKeys:       []string{"productId", "sku"},
		severity:     audit.SeverityLow,
		tags:         []string{"product", "catalog"},
	},
	"product.deleted": {
		resourceType: "product",
		idKeys:       []string{"productId", "sku"},
		severity:     audit.SeverityMedium,
		tags:         []string{"product", "catalog"},
	},
	"product.price_changed": {
		resourceType: "product",
		idKeys:       []string{"productId", "sku"},
		severity:     audit.SeverityMedium,
		tags:         []string{"product", "catalog", "pricing"},
	},
}
