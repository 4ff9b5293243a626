package normalizer

import "audittrail/internal/audit"

var orderEvents = map[string]eventSpec{
	"order.placed": {
		resourceType: "order",
		idKeys:       []string{"orderId"},
		severity:     audit.SeverityMedium,
		tags:         []string{"order", "transaction"},
	},
	"order.confirmed": {
		resourceType: "order",
		idKeys:       []string{"orderId"},
		severity:     audit.SeverityLow,
		tags:         []string{"order", "transaction"},
	},
	"order.cancelled": {
		resourceType: "order",
		idKeys:       []string{"orderId"},
		severity:     audit.SeverityHigh,
		tags:         []string{"order", "transaction"},
	},
	"order.shipped": {
		resourceType: "order",
		idKeys:       []string{"orderId", "shipmentId"},
		severity:     audit.SeverityLow,
		tags:         []string{"order"},
	},
	"order.delivered": {
		resourceType: "order",
		idKeys:       []string{"orderId", "shipmentId"},
		severity:     audit.SeverityLow,
		tags:         []string{"order"},
	},
}
