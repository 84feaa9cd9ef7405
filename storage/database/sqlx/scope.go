package sqlxrepos

import (
	"strings"

	"github.com/dgarmol/academia/core"
)

// scopeColumns names the columns of a table that carry scope-relevant
// attributes. An empty name means the table has no such column and the
// corresponding restriction can never apply to it.
type scopeColumns struct {
	id          string
	institution string
	sede        string
	owner       string
	group       string
}

// scopeClause renders a core.Scope into WHERE fragments ("?" bindvars, expand
// with sqlx.In). The boolean is false when the scope matches nothing and the
// query should be skipped altogether. The produced clauses must agree with
// core.Scope.Matches.
func scopeClause(sc core.Scope, cols scopeColumns) (conds []string, args []interface{}, ok bool) {
	if sc.None {
		return nil, nil, false
	}
	// an empty non-nil allow-list matches nothing
	if sc.IDs != nil && len(sc.IDs) == 0 {
		return nil, nil, false
	}
	if sc.GroupIDs != nil && len(sc.GroupIDs) == 0 {
		return nil, nil, false
	}

	// a restriction on an attribute the table does not carry matches nothing,
	// same as a null attribute under Scope.Matches
	if sc.SedeID.Valid && cols.sede == "" {
		return nil, nil, false
	}
	if sc.OwnerID.Valid && cols.owner == "" {
		return nil, nil, false
	}
	if sc.GroupIDs != nil && cols.group == "" {
		return nil, nil, false
	}

	conds = append(conds, cols.institution+" = ?")
	args = append(args, sc.InstitutionID)

	if sc.SedeID.Valid {
		conds = append(conds, cols.sede+" = ?")
		args = append(args, sc.SedeID.String)
	}
	if sc.OwnerID.Valid {
		conds = append(conds, cols.owner+" = ?")
		args = append(args, sc.OwnerID.String)
	}
	if sc.IDs != nil {
		conds = append(conds, cols.id+" IN (?)")
		args = append(args, sc.IDs)
	}
	if sc.GroupIDs != nil {
		conds = append(conds, cols.group+" IN (?)")
		args = append(args, sc.GroupIDs)
	}
	return conds, args, true
}

// orderBy renders orderings into an ORDER BY clause, keeping only fields
// present in the allowed column map. Returns "" when nothing survives.
func orderBy(ordering []core.DBOrdering, allowed map[string]string) string {
	var parts []string
	for _, ord := range ordering {
		col, ok := allowed[ord.Field]
		if !ok {
			continue
		}
		dir := " ASC"
		if !ord.Ascending {
			dir = " DESC"
		}
		parts = append(parts, col+dir)
	}
	if len(parts) == 0 {
		return ""
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}
