package patient

import "strings"

// Query filters a patient listing. The zero value matches every patient.
type Query struct {
	// Search is matched as a literal, case-insensitive substring against
	// firstName, lastName and medicalId.
	Search string
	// CriticalOnly restricts the result to patients flagged critical.
	CriticalOnly bool
}

// Term returns the lower-cased search text; empty means "match all". A
// whitespace-only search is empty, anything else is matched as given.
func (q Query) Term() string {
	if strings.TrimSpace(q.Search) == "" {
		return ""
	}
	return strings.ToLower(q.Search)
}

// Matches reports whether p satisfies the query. Backends that cannot push the
// filter down to their query language use this directly.
func (q Query) Matches(p *Patient) bool {
	if q.CriticalOnly && !p.Critical {
		return false
	}
	term := q.Term()
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.FirstName), term) ||
		strings.Contains(strings.ToLower(p.LastName), term) ||
		strings.Contains(strings.ToLower(p.MedicalID), term)
}
