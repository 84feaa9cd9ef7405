// Package scope resolves what records an identity is authorized to see.
//
// Every list-fetch in the app goes through one of the resolver functions
// below; the returned core.Scope is handed to the repositories unchanged.
// Resolution is a pure function of the identity (plus the already-fetched
// group list for membership-derived scopes) and never widens or narrows
// silently: a role whose affiliation is missing gets an error, not an
// all-or-nothing scope.
package scope

import (
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/dgarmol/academia/core"
	"github.com/dgarmol/academia/core/group"
	"github.com/dgarmol/academia/core/user"
)

var (
	// ErrScopeUnavailable means a role requiring a sede affiliation has none.
	// The action must be blocked and the missing assignment surfaced.
	ErrScopeUnavailable = errors.New("account has no sede assigned")

	// ErrMissingInstitution means the identity has no tenant. This is a
	// provisioning error, fatal to the operation; never guess a default.
	ErrMissingInstitution = errors.New("account is not attached to an institution")

	// ErrUnknownRole guards the closed role set: a role outside it resolves
	// to an error, never to a default scope.
	ErrUnknownRole = errors.New("unknown role")
)

func tenant(usr user.User) (string, error) {
	if usr.InstitutionID == "" {
		return "", ErrMissingInstitution
	}
	return usr.InstitutionID, nil
}

func sede(usr user.User) (null.String, error) {
	if !usr.SedeID.Valid {
		return null.String{}, ErrScopeUnavailable
	}
	return usr.SedeID, nil
}

// Groups resolves the group records visible to usr.
// The groups argument is only consulted for students (membership lookups).
func Groups(usr user.User, groups []group.Group) (core.Scope, error) {
	inst, err := tenant(usr)
	if err != nil {
		return core.Scope{}, err
	}

	switch usr.Role {
	case user.RoleAdmin:
		return core.Scope{InstitutionID: inst}, nil
	case user.RoleSupervisor:
		sedeID, err := sede(usr)
		if err != nil {
			return core.Scope{}, err
		}
		return core.Scope{InstitutionID: inst, SedeID: sedeID}, nil
	case user.RoleTeacher:
		return core.Scope{InstitutionID: inst, OwnerID: null.StringFrom(usr.ID)}, nil
	case user.RoleStudent:
		return core.Scope{InstitutionID: inst, IDs: memberGroupIDs(usr.ID, groups)}, nil
	case user.RoleCaja:
		return core.ScopeNone(), nil
	}
	return core.Scope{}, errors.Wrapf(ErrUnknownRole, "%q", usr.Role)
}

// Students resolves the student records visible to usr. Supervisor and
// teacher visibility is derived from the memberships of the given groups.
func Students(usr user.User, groups []group.Group) (core.Scope, error) {
	inst, err := tenant(usr)
	if err != nil {
		return core.Scope{}, err
	}

	switch usr.Role {
	case user.RoleAdmin:
		return core.Scope{InstitutionID: inst}, nil
	case user.RoleSupervisor:
		sedeID, err := sede(usr)
		if err != nil {
			return core.Scope{}, err
		}
		return core.Scope{InstitutionID: inst, IDs: sedeStudentIDs(sedeID.String, groups)}, nil
	case user.RoleTeacher:
		return core.Scope{InstitutionID: inst, IDs: taughtStudentIDs(usr.ID, groups)}, nil
	case user.RoleStudent:
		return core.Scope{InstitutionID: inst, IDs: []string{usr.ID}}, nil
	case user.RoleCaja:
		return core.ScopeNone(), nil
	}
	return core.Scope{}, errors.Wrapf(ErrUnknownRole, "%q", usr.Role)
}

// Staff resolves the staff records (supervisors, teachers, cashiers) visible
// to usr.
func Staff(usr user.User) (core.Scope, error) {
	inst, err := tenant(usr)
	if err != nil {
		return core.Scope{}, err
	}

	switch usr.Role {
	case user.RoleAdmin:
		return core.Scope{InstitutionID: inst}, nil
	case user.RoleSupervisor:
		sedeID, err := sede(usr)
		if err != nil {
			return core.Scope{}, err
		}
		return core.Scope{InstitutionID: inst, SedeID: sedeID}, nil
	case user.RoleTeacher, user.RoleStudent, user.RoleCaja:
		return core.ScopeNone(), nil
	}
	return core.Scope{}, errors.Wrapf(ErrUnknownRole, "%q", usr.Role)
}

// Sessions resolves the attendance sessions visible to usr. Teacher and
// student visibility follows their groups; caja gets institution-wide
// read access for attendance reporting.
func Sessions(usr user.User, groups []group.Group) (core.Scope, error) {
	inst, err := tenant(usr)
	if err != nil {
		return core.Scope{}, err
	}

	switch usr.Role {
	case user.RoleAdmin, user.RoleCaja:
		return core.Scope{InstitutionID: inst}, nil
	case user.RoleSupervisor:
		sedeID, err := sede(usr)
		if err != nil {
			return core.Scope{}, err
		}
		return core.Scope{InstitutionID: inst, SedeID: sedeID}, nil
	case user.RoleTeacher:
		return core.Scope{InstitutionID: inst, GroupIDs: taughtGroupIDs(usr.ID, groups)}, nil
	case user.RoleStudent:
		return core.Scope{InstitutionID: inst, GroupIDs: memberGroupIDs(usr.ID, groups)}, nil
	}
	return core.Scope{}, errors.Wrapf(ErrUnknownRole, "%q", usr.Role)
}

// memberGroupIDs returns the IDs of the groups the student belongs to.
// Always non-nil: no membership means an empty allow-list, not "everything".
func memberGroupIDs(studentID string, groups []group.Group) []string {
	ids := make([]string, 0, len(groups))
	for _, grp := range groups {
		if grp.HasStudent(studentID) {
			ids = append(ids, grp.ID)
		}
	}
	return ids
}

func taughtGroupIDs(teacherID string, groups []group.Group) []string {
	ids := make([]string, 0, len(groups))
	for _, grp := range groups {
		if grp.TeacherID.Valid && grp.TeacherID.String == teacherID {
			ids = append(ids, grp.ID)
		}
	}
	return ids
}

// taughtStudentIDs returns the union of memberships of the teacher's groups.
func taughtStudentIDs(teacherID string, groups []group.Group) []string {
	return studentUnion(groups, func(grp group.Group) bool {
		return grp.TeacherID.Valid && grp.TeacherID.String == teacherID
	})
}

// sedeStudentIDs returns the union of memberships of the sede's groups.
func sedeStudentIDs(sedeID string, groups []group.Group) []string {
	return studentUnion(groups, func(grp group.Group) bool {
		return grp.SedeID.Valid && grp.SedeID.String == sedeID
	})
}

func studentUnion(groups []group.Group, match func(group.Group) bool) []string {
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, grp := range groups {
		if !match(grp) {
			continue
		}
		for _, sid := range grp.StudentIDs {
			if _, ok := seen[sid]; ok {
				continue
			}
			seen[sid] = struct{}{}
			ids = append(ids, sid)
		}
	}
	return ids
}
