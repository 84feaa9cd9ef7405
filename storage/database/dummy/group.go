package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/dgarmol/academia/core"
	"github.com/dgarmol/academia/core/group"
)

type groupRepository struct {
	db *groupTable
}

var _ group.Repository = (*groupRepository)(nil)

func NewGroupRepository(db *DB) group.Repository {
	return &groupRepository{db: db.group}
}

func (repo *groupRepository) CreateGroup(_ context.Context, grp group.Group) (group.Group, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	grp.ID = uuid.New().String()
	repo.db.table[grp.ID] = &grp
	return grp, nil
}

func (repo *groupRepository) GetGroupByID(_ context.Context, id string) (group.Group, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if grp, ok := repo.db.table[id]; ok {
		return *grp, nil
	}
	return group.Group{}, group.ErrNotFound
}

func (repo *groupRepository) QueryGroups(_ context.Context, sc core.Scope, filter *group.QueryFilter, ordering []core.DBOrdering) ([]group.Group, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var groups []group.Group
	for _, grp := range repo.db.table {
		target := core.ScopeTarget{
			ID:            grp.ID,
			InstitutionID: grp.InstitutionID,
			SedeID:        grp.SedeID,
			OwnerID:       grp.TeacherID,
		}
		if !sc.Matches(target) {
			continue
		}
		if filter != nil && !matchesGroupFilter(*grp, filter) {
			continue
		}
		groups = append(groups, *grp)
	}
	orderGroups(groups, ordering)
	return groups, nil
}

func matchesGroupFilter(grp group.Group, filter *group.QueryFilter) bool {
	if filter.Search != "" && !strings.Contains(strings.ToLower(grp.Name), strings.ToLower(filter.Search)) {
		return false
	}
	if filter.Level.Valid && (!grp.Level.Valid || grp.Level.String != filter.Level.String) {
		return false
	}
	return true
}

func orderGroups(groups []group.Group, ordering []core.DBOrdering) {
	for i := len(ordering) - 1; i >= 0; i-- {
		ord := ordering[i]
		sort.SliceStable(groups, func(a, b int) bool {
			var less bool
			switch ord.Field {
			case "name":
				less = groups[a].Name < groups[b].Name
			case "created_at":
				less = groups[a].CreatedAt.Before(groups[b].CreatedAt)
			default:
				return false
			}
			if !ord.Ascending {
				return !less
			}
			return less
		})
	}
}

func (repo *groupRepository) UpdateGroup(_ context.Context, grp group.Group) (group.Group, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[grp.ID]
	if !ok {
		return group.Group{}, group.ErrNotFound
	}
	grp.TeacherID = orig.TeacherID
	grp.StudentIDs = orig.StudentIDs
	repo.db.table[grp.ID] = &grp
	return grp, nil
}

func (repo *groupRepository) SetGroupTeacher(_ context.Context, id string, teacherID null.String) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	grp, ok := repo.db.table[id]
	if !ok {
		return group.ErrNotFound
	}
	grp.TeacherID = teacherID
	return nil
}

func (repo *groupRepository) UnassignTeacherEverywhere(_ context.Context, teacherIDs ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, grp := range repo.db.table {
		for _, tid := range teacherIDs {
			if grp.TeacherID.Valid && grp.TeacherID.String == tid {
				grp.TeacherID = null.String{}
				break
			}
		}
	}
	return nil
}

func (repo *groupRepository) AddGroupStudents(_ context.Context, id string, studentIDs ...string) (group.Group, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	grp, ok := repo.db.table[id]
	if !ok {
		return group.Group{}, group.ErrNotFound
	}
	for _, sid := range studentIDs {
		if !grp.HasStudent(sid) {
			grp.StudentIDs = append(grp.StudentIDs, sid)
		}
	}
	return *grp, nil
}

func (repo *groupRepository) RemoveGroupStudents(_ context.Context, id string, studentIDs ...string) (group.Group, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	grp, ok := repo.db.table[id]
	if !ok {
		return group.Group{}, group.ErrNotFound
	}
	grp.StudentIDs = without(grp.StudentIDs, studentIDs)
	return *grp, nil
}

func (repo *groupRepository) RemoveStudentsEverywhere(_ context.Context, studentIDs ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, grp := range repo.db.table {
		grp.StudentIDs = without(grp.StudentIDs, studentIDs)
	}
	return nil
}

func (repo *groupRepository) ClearSedeEverywhere(_ context.Context, sedeID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, grp := range repo.db.table {
		if grp.SedeID.Valid && grp.SedeID.String == sedeID {
			grp.SedeID = null.String{}
		}
	}
	return nil
}

func (repo *groupRepository) DeleteGroupsByID(_ context.Context, ids ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, id := range ids {
		delete(repo.db.table, id)
	}
	return nil
}

func without(ids, toRemove []string) []string {
	kept := ids[:0]
	for _, id := range ids {
		var remove bool
		for _, rid := range toRemove {
			if id == rid {
				remove = true
				break
			}
		}
		if !remove {
			kept = append(kept, id)
		}
	}
	return kept
}
