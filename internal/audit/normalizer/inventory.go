package normalizer

import "audittrail/internal/audit"

// Inventory events. Stock alerts are high severity even though nothing
// failed: they are the signals an operator is expected to act on.
var inventoryEvents = map[string]eventSpec{
	"inventory.adjusted": {
		resourceType: "inventory",
		idKeys:       []string{"productId", "sku", "warehouseId"},
		severity:     audit.SeverityLow,
		tags:         []string{"inventory"},
	},
	"inventory.restocked": {
		resourceType: "inventory",
		idKeys:       []string{"productId", "sku", "warehouseId"},
		severity:     audit.SeverityLow,
		tags:         []string{"inventory"},
	},
	"inventory.low_stock": {
		resourceType: "inventory",
		idKeys:       []string{"productId", "sku", "warehouseId"},
		severity:     audit.SeverityHigh,
		tags:         []string{"inventory", "alert"},
	},
	"inventory.out_of_stock": {
		resourceType: "inventory",
		idKeys:       []string{"productId", "sku", "warehouseId"},
		severity:     audit.SeverityHigh,
		tags:         []string{"inventory", "alert"},
	},
}
