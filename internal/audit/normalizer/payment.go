package normalizer

import "audittrail/internal/audit"

// Payment events carry PCI tags and always log at the security level. A
// failed payment is critical regardless of what the base severity says:
// payment failures are the first signal of both fraud and outage.
var paymentEvents = map[string]eventSpec{
	"payment.initiated": {
		resourceType:    "payment",
		idKeys:          []string{"paymentId", "orderId", "transactionId"},
		severity:        audit.SeverityMedium,
		failureSeverity: audit.SeverityCritical,
		tags:            []string{"payment", "pci", "transaction"},
		security:        true,
	},
	"payment.completed": {
		resourceType:    "payment",
		idKeys:          []string{"paymentId", "orderId", "transactionId"},
		severity:        audit.SeverityMedium,
		failureSeverity: audit.SeverityCritical,
		tags:            []string{"payment", "pci", "transaction"},
		security:        true,
	},
	"payment.failed": {
		resourceType:    "payment",
		idKeys:          []string{"paymentId", "orderId", "transactionId"},
		severity:        audit.SeverityCritical,
		failureSeverity: audit.SeverityCritical,
		tags:            []string{"payment", "pci", "transaction"},
		security:        true,
	},
	"payment.refunded": {
		resourceType:    "payment",
		idKeys:          []string{"paymentId", "orderId", "transactionId"},
		severity:        audit.SeverityHigh,
		failureSeverity: audit.SeverityCritical,
		tags:            []string{"payment", "pci", "transaction"},
		security:        true,
	},
}
