package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/dgarmol/academia/core"
	"github.com/dgarmol/academia/core/group"
)

type groupRepository struct {
	db *sqlx.DB
}

var _ group.Repository = (*groupRepository)(nil)

func NewGroupRepository(db *sql.DB) group.Repository {
	return &groupRepository{db: sqlx.NewDb(db, "postgres")}
}

type groupRow struct {
	ID            string         `db:"id"`
	InstitutionID string         `db:"institution_id"`
	SedeID        null.String    `db:"sede_id"`
	TeacherID     null.String    `db:"teacher_id"`
	Name          string         `db:"name"`
	Level         null.String    `db:"level"`
	StudentIDs    pq.StringArray `db:"student_ids"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

const groupCols = `id, institution_id, sede_id, teacher_id, name, level, student_ids, created_at, updated_at`

func newGroupRow(grp group.Group) groupRow {
	return groupRow{
		ID:            grp.ID,
		InstitutionID: grp.InstitutionID,
		SedeID:        grp.SedeID,
		TeacherID:     grp.TeacherID,
		Name:          grp.Name,
		Level:         grp.Level,
		StudentIDs:    grp.StudentIDs,
		CreatedAt:     grp.CreatedAt,
		UpdatedAt:     grp.UpdatedAt,
	}
}

func (r groupRow) group() group.Group {
	return group.Group{
		ID:            r.ID,
		InstitutionID: r.InstitutionID,
		SedeID:        r.SedeID,
		TeacherID:     r.TeacherID,
		Name:          r.Name,
		Level:         r.Level,
		StudentIDs:    r.StudentIDs,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func (repo *groupRepository) CreateGroup(ctx context.Context, grp group.Group) (group.Group, error) {
	grp.ID = uuid.New().String()
	if grp.StudentIDs == nil {
		grp.StudentIDs = []string{}
	}
	_, err := repo.db.NamedExecContext(ctx, `
INSERT INTO "group" (`+groupCols+`)
VALUES (:id, :institution_id, :sede_id, :teacher_id, :name, :level, :student_ids, :created_at, :updated_at)`,
		newGroupRow(grp),
	)
	if err != nil {
		return group.Group{}, errors.Wrap(err, "inserting group")
	}
	return repo.GetGroupByID(ctx, grp.ID)
}

func (repo *groupRepository) GetGroupByID(ctx context.Context, id string) (group.Group, error) {
	var row groupRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+groupCols+` FROM "group" WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return group.Group{}, group.ErrNotFound
		}
		return group.Group{}, errors.Wrap(err, "getting group")
	}
	return row.group(), nil
}

func (repo *groupRepository) QueryGroups(ctx context.Context, sc core.Scope, filter *group.QueryFilter, ordering []core.DBOrdering) ([]group.Group, error) {
	conds, args, ok := scopeClause(sc, scopeColumns{
		id:          "id",
		institution: "institution_id",
		sede:        "sede_id",
		owner:       "teacher_id",
	})
	if !ok {
		return nil, nil
	}

	if filter != nil {
		if filter.Search != "" {
			conds = append(conds, "name ILIKE ?")
			args = append(args, "%"+filter.Search+"%")
		}
		if filter.Level.Valid {
			conds = append(conds, "level = ?")
			args = append(args, filter.Level.String)
		}
	}

	q := `SELECT ` + groupCols + ` FROM "group" WHERE ` + strings.Join(conds, " AND ")
	q += orderBy(ordering, map[string]string{
		"name":       "name",
		"created_at": "created_at",
	})

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building groups query")
	}

	var rows []groupRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying groups")
	}
	groups := make([]group.Group, 0, len(rows))
	for _, row := range rows {
		groups = append(groups, row.group())
	}
	return groups, nil
}

func (repo *groupRepository) UpdateGroup(ctx context.Context, grp group.Group) (group.Group, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE "group" SET name = $1, sede_id = $2, level = $3, updated_at = $4 WHERE id = $5`,
		grp.Name, grp.SedeID, grp.Level, grp.UpdatedAt, grp.ID,
	)
	if err != nil {
		return group.Group{}, errors.Wrap(err, "updating group")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return group.Group{}, group.ErrNotFound
	}
	return repo.GetGroupByID(ctx, grp.ID)
}

func (repo *groupRepository) SetGroupTeacher(ctx context.Context, id string, teacherID null.String) error {
	res, err := repo.db.ExecContext(ctx, `UPDATE "group" SET teacher_id = $1 WHERE id = $2`, teacherID, id)
	if err != nil {
		return errors.Wrap(err, "setting group teacher")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return group.ErrNotFound
	}
	return nil
}

func (repo *groupRepository) UnassignTeacherEverywhere(ctx context.Context, teacherIDs ...string) error {
	if len(teacherIDs) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`UPDATE "group" SET teacher_id = NULL WHERE teacher_id IN (?)`, teacherIDs)
	if err != nil {
		return errors.Wrap(err, "building unassign query")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "unassigning teachers")
	}
	return nil
}

func (repo *groupRepository) AddGroupStudents(ctx context.Context, id string, studentIDs ...string) (group.Group, error) {
	res, err := repo.db.ExecContext(ctx, `
UPDATE "group"
SET student_ids = (
    SELECT ARRAY(SELECT DISTINCT unnest(student_ids || $1::text[]))
)
WHERE id = $2`,
		pq.StringArray(studentIDs), id,
	)
	if err != nil {
		return group.Group{}, errors.Wrap(err, "adding group students")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return group.Group{}, group.ErrNotFound
	}
	return repo.GetGroupByID(ctx, id)
}

func (repo *groupRepository) RemoveGroupStudents(ctx context.Context, id string, studentIDs ...string) (group.Group, error) {
	res, err := repo.db.ExecContext(ctx, `
UPDATE "group"
SET student_ids = (
    SELECT COALESCE(ARRAY(SELECT unnest(student_ids) EXCEPT SELECT unnest($1::text[])), '{}')
)
WHERE id = $2`,
		pq.StringArray(studentIDs), id,
	)
	if err != nil {
		return group.Group{}, errors.Wrap(err, "removing group students")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return group.Group{}, group.ErrNotFound
	}
	return repo.GetGroupByID(ctx, id)
}

func (repo *groupRepository) RemoveStudentsEverywhere(ctx context.Context, studentIDs ...string) error {
	if len(studentIDs) == 0 {
		return nil
	}
	_, err := repo.db.ExecContext(ctx, `
UPDATE "group"
SET student_ids = (
    SELECT COALESCE(ARRAY(SELECT unnest(student_ids) EXCEPT SELECT unnest($1::text[])), '{}')
)
WHERE student_ids && $1::text[]`,
		pq.StringArray(studentIDs),
	)
	return errors.Wrap(err, "removing students everywhere")
}

func (repo *groupRepository) ClearSedeEverywhere(ctx context.Context, sedeID string) error {
	_, err := repo.db.ExecContext(ctx, `UPDATE "group" SET sede_id = NULL WHERE sede_id = $1`, sedeID)
	return errors.Wrap(err, "clearing sede everywhere")
}

func (repo *groupRepository) DeleteGroupsByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`DELETE FROM "group" WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "deleting groups")
	}
	return nil
}
