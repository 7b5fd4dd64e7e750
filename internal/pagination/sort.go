package pagination

import (
	"fmt"
	"strings"

	"messaging-service/internal/apperr"
)

// SortField is one key of a sort specification.
type SortField struct {
	Field string
	Desc  bool
}

// ParseSort reads "field:desc,other:asc". A bare field sorts ascending.
func ParseSort(spec string) ([]SortField, error) {
	var out []SortField
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		field, order, _ := strings.Cut(part, ":")
		field = strings.TrimSpace(field)
		if field == "" {
			return nil, fmt.Errorf("empty sort field in %q: %w", spec, apperr.ErrInvalidArgument)
		}
		sf := SortField{Field: field}
		switch strings.ToLower(strings.TrimSpace(order)) {
		case "", "asc":
		case "desc":
			sf.Desc = true
		default:
			return nil, fmt.Errorf("bad sort order %q: %w", order, apperr.ErrInvalidArgument)
		}
		out = append(out, sf)
	}
	return out, nil
}

// OrderBy renders sort fields as an SQL ORDER BY list using columns to map
// logical field names. Fields missing from columns are rejected.
func OrderBy(sort []SortField, columns map[string]string, tieBreak string) (string, error) {
	parts := make([]string, 0, len(sort)+1)
	for _, s := range sort {
		col, ok := columns[s.Field]
		if !ok {
			return "", fmt.Errorf("cannot sort by %q: %w", s.Field, apperr.ErrInvalidArgument)
		}
		dir := "ASC NULLS LAST"
		if s.Desc {
			dir = "DESC NULLS LAST"
		}
		parts = append(parts, col+" "+dir)
	}
	if tieBreak != "" {
		parts = append(parts, tieBreak)
	}
	return strings.Join(parts, ", "), nil
}
