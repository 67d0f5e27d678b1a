package persistence

import (
	"sort"

	"github.com/dukex/wayflow/pkg/models"
)

// ApplyListOptions filters, orders newest first and pages records in memory.
// Stores that cannot push the query down share it.
func ApplyListOptions(records []*models.ExecutionRecord, opts ListExecutionsOptions) []*models.ExecutionRecord {
	filtered := make([]*models.ExecutionRecord, 0, len(records))

	for _, record := range records {
		if opts.WorkflowID != "" && record.WorkflowID != opts.WorkflowID {
			continue
		}

		if opts.Status != "" && record.Status != opts.Status {
			continue
		}

		filtered = append(filtered, record)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].StartedAt.Equal(filtered[j].StartedAt) {
			return filtered[i].ID > filtered[j].ID
		}

		return filtered[i].StartedAt.After(filtered[j].StartedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(filtered) {
			return []*models.ExecutionRecord{}
		}

		filtered = filtered[opts.Offset:]
	}

	if opts.Limit > 0 && opts.Limit < len(filtered) {
		filtered = filtered[:opts.Limit]
	}

	return filtered
}
