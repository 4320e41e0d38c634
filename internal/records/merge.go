// Package records reconciles the live lead stream with the persisted,
// paginated lead query into one de-duplicated display sequence.
package records

import "github.com/raphaelgruber/leadwatch/internal/models"

// Merge returns the display sequence for a live set and a persisted page:
// live records whose key is not on the persisted page, in live order,
// followed by the persisted page in server order. A key shown from both
// sources is shown once, with the persisted copy's fields.
//
// Merge does not modify its inputs.
func Merge(live, persisted []models.Lead) []models.Lead {
	seen := make(map[string]struct{}, len(live)+len(persisted))
	for _, l := range persisted {
		if k := l.Key(); k != "" {
			seen[k] = struct{}{}
		}
	}

	out := make([]models.Lead, 0, len(live)+len(persisted))
	for _, l := range live {
		k := l.Key()
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, l)
	}
	return append(out, persisted...)
}
