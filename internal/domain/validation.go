package domain

import (
	"path"
	"slices"
	"strings"
)

func ValidateNewWorkOrder(v NewWorkOrder) ValidationResult {
	failed := make([]string, 0)

	if strings.TrimSpace(v.Number) == "" {
		failed = append(failed, "work_order.number_required")
	}
	if strings.TrimSpace(v.Customer) == "" {
		failed = append(failed, "work_order.customer_required")
	}
	if v.Quantity <= 0 {
		failed = append(failed, "work_order.quantity_gt_zero")
	}

	return ValidationResult{FailedRules: failed}
}

func ValidateAttachment(category, kind, filename string) ValidationResult {
	failed := make([]string, 0)

	kinds, ok := attachmentKindsByCategory[category]
	if !ok {
		failed = append(failed, "attachment.category_known")
	} else if !slices.Contains(kinds, kind) {
		failed = append(failed, "attachment.kind_matches_category")
	}
	name := strings.TrimSpace(filename)
	if name == "" || name == "." || path.Base(name) != name {
		failed = append(failed, "attachment.filename_plain")
	}

	return ValidationResult{FailedRules: failed}
}

func ValidationPassed(r ValidationResult) bool {
	return len(r.FailedRules) == 0
}

// ChecklistComplete reports whether every required item is done.
func ChecklistComplete(items []ChecklistItem) bool {
	for _, item := range items {
		if item.Required && !item.Done {
			return false
		}
	}
	return true
}
