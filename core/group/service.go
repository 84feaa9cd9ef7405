package group

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/dgarmol/academia/core"
	"github.com/dgarmol/academia/core/user"
)

var (
	ErrNotFound    = errors.New("group not found")
	ErrNotATeacher = errors.New("user is not a teacher")
	ErrNotAStudent = errors.New("user is not a student")
	ErrWrongTenant = errors.New("record belongs to another institution")
)

type (
	Repository interface {
		CreateGroup(ctx context.Context, grp Group) (Group, error)
		GetGroupByID(ctx context.Context, id string) (Group, error)
		// QueryGroups returns groups within the scope, further narrowed by the
		// optional filter. QueryFilter.Search matches Group.Name, case-insensitive.
		QueryGroups(ctx context.Context, sc core.Scope, filter *QueryFilter, ordering []core.DBOrdering) ([]Group, error)
		UpdateGroup(ctx context.Context, grp Group) (Group, error)
		SetGroupTeacher(ctx context.Context, id string, teacherID null.String) error
		// UnassignTeacherEverywhere clears the teacher reference on all groups
		// taught by any of the given users. Part of the deletion cascade:
		// relations are unassigned, records are not deleted.
		UnassignTeacherEverywhere(ctx context.Context, teacherIDs ...string) error
		AddGroupStudents(ctx context.Context, id string, studentIDs ...string) (Group, error)
		RemoveGroupStudents(ctx context.Context, id string, studentIDs ...string) (Group, error)
		RemoveStudentsEverywhere(ctx context.Context, studentIDs ...string) error
		ClearSedeEverywhere(ctx context.Context, sedeID string) error
		DeleteGroupsByID(ctx context.Context, ids ...string) error
	}

	Service interface {
		Create(ctx context.Context, ng NewGroup) (Group, error)
		GetByID(ctx context.Context, id string) (Group, error)
		Query(ctx context.Context, sc core.Scope, filter *QueryFilter, ordering []core.DBOrdering) ([]Group, error)
		Update(ctx context.Context, id string, ug UpdateGroup) (Group, error)
		AssignTeacher(ctx context.Context, groupID string, teacher user.User) (Group, error)
		UnassignTeacher(ctx context.Context, groupID string) (Group, error)
		UnassignTeacherEverywhere(ctx context.Context, teacherIDs ...string) error
		AddStudents(ctx context.Context, groupID string, students ...user.User) (Group, error)
		RemoveStudents(ctx context.Context, groupID string, studentIDs ...string) (Group, error)
		RemoveStudentsEverywhere(ctx context.Context, studentIDs ...string) error
		ClearSedeEverywhere(ctx context.Context, sedeID string) error
		Delete(ctx context.Context, ids ...string) error
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Create(ctx context.Context, ng NewGroup) (Group, error) {
	now := time.Now().UTC()
	return svc.repo.CreateGroup(ctx, Group{
		InstitutionID: ng.InstitutionID,
		SedeID:        ng.SedeID,
		Name:          ng.Name,
		Level:         ng.Level,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func (svc *service) GetByID(ctx context.Context, id string) (Group, error) {
	return svc.repo.GetGroupByID(ctx, id)
}

func (svc *service) Query(ctx context.Context, sc core.Scope, filter *QueryFilter, ordering []core.DBOrdering) ([]Group, error) {
	return svc.repo.QueryGroups(ctx, sc, filter, ordering)
}

func (svc *service) Update(ctx context.Context, id string, ug UpdateGroup) (Group, error) {
	grp, err := svc.repo.GetGroupByID(ctx, id)
	if err != nil {
		return Group{}, err
	}
	grp.Name = ug.Name
	grp.SedeID = ug.SedeID
	grp.Level = ug.Level
	grp.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateGroup(ctx, grp)
}

// AssignTeacher points the group at the given teacher. A group has zero or
// one teacher; assigning replaces any previous one.
func (svc *service) AssignTeacher(ctx context.Context, groupID string, teacher user.User) (Group, error) {
	grp, err := svc.repo.GetGroupByID(ctx, groupID)
	if err != nil {
		return Group{}, err
	}
	if !teacher.IsTeacher() {
		return Group{}, ErrNotATeacher
	}
	if teacher.InstitutionID != grp.InstitutionID {
		return Group{}, ErrWrongTenant
	}
	if err = svc.repo.SetGroupTeacher(ctx, grp.ID, null.StringFrom(teacher.ID)); err != nil {
		return Group{}, errors.Wrap(err, "setting group teacher")
	}
	return svc.repo.GetGroupByID(ctx, grp.ID)
}

func (svc *service) UnassignTeacher(ctx context.Context, groupID string) (Group, error) {
	if err := svc.repo.SetGroupTeacher(ctx, groupID, null.String{}); err != nil {
		return Group{}, errors.Wrap(err, "clearing group teacher")
	}
	return svc.repo.GetGroupByID(ctx, groupID)
}

func (svc *service) UnassignTeacherEverywhere(ctx context.Context, teacherIDs ...string) error {
	return svc.repo.UnassignTeacherEverywhere(ctx, teacherIDs...)
}

func (svc *service) AddStudents(ctx context.Context, groupID string, students ...user.User) (Group, error) {
	grp, err := svc.repo.GetGroupByID(ctx, groupID)
	if err != nil {
		return Group{}, err
	}

	ids := make([]string, 0, len(students))
	for _, student := range students {
		if !student.IsStudent() {
			return Group{}, ErrNotAStudent
		}
		if student.InstitutionID != grp.InstitutionID {
			return Group{}, ErrWrongTenant
		}
		if !grp.HasStudent(student.ID) {
			ids = append(ids, student.ID)
		}
	}
	if len(ids) == 0 {
		return grp, nil
	}
	return svc.repo.AddGroupStudents(ctx, grp.ID, ids...)
}

func (svc *service) RemoveStudents(ctx context.Context, groupID string, studentIDs ...string) (Group, error) {
	return svc.repo.RemoveGroupStudents(ctx, groupID, studentIDs...)
}

func (svc *service) RemoveStudentsEverywhere(ctx context.Context, studentIDs ...string) error {
	return svc.repo.RemoveStudentsEverywhere(ctx, studentIDs...)
}

func (svc *service) ClearSedeEverywhere(ctx context.Context, sedeID string) error {
	return svc.repo.ClearSedeEverywhere(ctx, sedeID)
}

// Delete removes groups. Membership disappears with the group; student
// records themselves are never deleted.
func (svc *service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteGroupsByID(ctx, ids...)
}
