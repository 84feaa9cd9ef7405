package core

import "github.com/volatiletech/null/v8"

type (
	// Scope is a declarative query restriction computed by the access scope
	// resolver and consumed uniformly by every list-fetch.
	//
	// InstitutionID is always required. SedeID and OwnerID narrow by branch
	// affiliation and record ownership when valid. IDs and GroupIDs, when
	// non-nil, are explicit allow-lists (of record IDs and of referenced
	// group IDs); an empty non-nil slice matches nothing. None short-circuits
	// everything: no record is visible.
	Scope struct {
		InstitutionID string
		SedeID        null.String
		OwnerID       null.String
		IDs           []string
		GroupIDs      []string
		None          bool
	}

	// ScopeTarget carries the scope-relevant attributes of a stored record.
	ScopeTarget struct {
		ID            string
		InstitutionID string
		SedeID        null.String
		OwnerID       null.String
		GroupID       string
	}
)

// ScopeNone returns a scope that matches no record at all.
func ScopeNone() Scope {
	return Scope{None: true}
}

// Matches reports whether a record with the given attributes falls within the
// scope. It is the reference semantics for Scope; SQL repositories must build
// WHERE clauses that agree with it.
func (s Scope) Matches(t ScopeTarget) bool {
	if s.None {
		return false
	}
	if t.InstitutionID != s.InstitutionID {
		return false
	}
	if s.SedeID.Valid && (!t.SedeID.Valid || t.SedeID.String != s.SedeID.String) {
		return false
	}
	if s.OwnerID.Valid && (!t.OwnerID.Valid || t.OwnerID.String != s.OwnerID.String) {
		return false
	}
	if s.IDs != nil && !contains(s.IDs, t.ID) {
		return false
	}
	if s.GroupIDs != nil && !contains(s.GroupIDs, t.GroupID) {
		return false
	}
	return true
}

func contains(ids []string, id string) bool {
	for _, allowed := range ids {
		if id == allowed {
			return true
		}
	}
	return false
}
