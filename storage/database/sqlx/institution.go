package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/dgarmol/academia/core"
	"github.com/dgarmol/academia/core/institution"
)

type institutionRepository struct {
	db *sqlx.DB
}

var _ institution.Repository = (*institutionRepository)(nil)

func NewInstitutionRepository(db *sql.DB) institution.Repository {
	return &institutionRepository{db: sqlx.NewDb(db, "postgres")}
}

const (
	institutionCols = `id, name, number_of_partials, max_activity_score, max_accumulated_total, max_exam_total, passing_grade, created_at, updated_at`
	sedeCols        = `id, institution_id, name, supervisor_id, created_at, updated_at`
)

func (repo *institutionRepository) CreateInstitution(ctx context.Context, inst institution.Institution) (institution.Institution, error) {
	inst.ID = uuid.New().String()
	_, err := repo.db.NamedExecContext(ctx, `
INSERT INTO institution (`+institutionCols+`)
VALUES (:id, :name, :number_of_partials, :max_activity_score, :max_accumulated_total, :max_exam_total, :passing_grade, :created_at, :updated_at)`,
		institutionRow(inst),
	)
	if err != nil {
		return institution.Institution{}, errors.Wrap(err, "inserting institution")
	}
	return repo.GetInstitutionByID(ctx, inst.ID)
}

type instRow struct {
	ID                  string       `db:"id"`
	Name                string       `db:"name"`
	NumberOfPartials    null.Int     `db:"number_of_partials"`
	MaxActivityScore    null.Float64 `db:"max_activity_score"`
	MaxAccumulatedTotal null.Float64 `db:"max_accumulated_total"`
	MaxExamTotal        null.Float64 `db:"max_exam_total"`
	PassingGrade        null.Float64 `db:"passing_grade"`
	CreatedAt           time.Time    `db:"created_at"`
	UpdatedAt           time.Time    `db:"updated_at"`
}

func institutionRow(inst institution.Institution) instRow {
	return instRow{
		ID:                  inst.ID,
		Name:                inst.Name,
		NumberOfPartials:    inst.NumberOfPartials,
		MaxActivityScore:    inst.MaxActivityScore,
		MaxAccumulatedTotal: inst.MaxAccumulatedTotal,
		MaxExamTotal:        inst.MaxExamTotal,
		PassingGrade:        inst.PassingGrade,
		CreatedAt:           inst.CreatedAt,
		UpdatedAt:           inst.UpdatedAt,
	}
}

func (r instRow) institution() institution.Institution {
	return institution.Institution{
		ID:                  r.ID,
		Name:                r.Name,
		NumberOfPartials:    r.NumberOfPartials,
		MaxActivityScore:    r.MaxActivityScore,
		MaxAccumulatedTotal: r.MaxAccumulatedTotal,
		MaxExamTotal:        r.MaxExamTotal,
		PassingGrade:        r.PassingGrade,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

func (repo *institutionRepository) GetInstitutionByID(ctx context.Context, id string) (institution.Institution, error) {
	var row instRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+institutionCols+` FROM institution WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return institution.Institution{}, institution.ErrNotFound
		}
		return institution.Institution{}, errors.Wrap(err, "getting institution")
	}
	return row.institution(), nil
}

func (repo *institutionRepository) QueryInstitutions(ctx context.Context) ([]institution.Institution, error) {
	var rows []instRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT `+institutionCols+` FROM institution ORDER BY name`); err != nil {
		return nil, errors.Wrap(err, "querying institutions")
	}
	insts := make([]institution.Institution, 0, len(rows))
	for _, row := range rows {
		insts = append(insts, row.institution())
	}
	return insts, nil
}

func (repo *institutionRepository) UpdateInstitution(ctx context.Context, inst institution.Institution) (institution.Institution, error) {
	res, err := repo.db.NamedExecContext(ctx, `
UPDATE institution
SET name = :name, number_of_partials = :number_of_partials, max_activity_score = :max_activity_score,
    max_accumulated_total = :max_accumulated_total, max_exam_total = :max_exam_total,
    passing_grade = :passing_grade, updated_at = :updated_at
WHERE id = :id`,
		institutionRow(inst),
	)
	if err != nil {
		return institution.Institution{}, errors.Wrap(err, "updating institution")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return institution.Institution{}, institution.ErrNotFound
	}
	return repo.GetInstitutionByID(ctx, inst.ID)
}

type sedeRow struct {
	ID            string      `db:"id"`
	InstitutionID string      `db:"institution_id"`
	Name          string      `db:"name"`
	SupervisorID  null.String `db:"supervisor_id"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`
}

func newSedeRow(sede institution.Sede) sedeRow {
	return sedeRow{
		ID:            sede.ID,
		InstitutionID: sede.InstitutionID,
		Name:          sede.Name,
		SupervisorID:  sede.SupervisorID,
		CreatedAt:     sede.CreatedAt,
		UpdatedAt:     sede.UpdatedAt,
	}
}

func (r sedeRow) sede() institution.Sede {
	return institution.Sede{
		ID:            r.ID,
		InstitutionID: r.InstitutionID,
		Name:          r.Name,
		SupervisorID:  r.SupervisorID,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func (repo *institutionRepository) CreateSede(ctx context.Context, sede institution.Sede) (institution.Sede, error) {
	sede.ID = uuid.New().String()
	_, err := repo.db.NamedExecContext(ctx, `
INSERT INTO sede (`+sedeCols+`)
VALUES (:id, :institution_id, :name, :supervisor_id, :created_at, :updated_at)`,
		newSedeRow(sede),
	)
	if err != nil {
		return institution.Sede{}, errors.Wrap(err, "inserting sede")
	}
	return repo.GetSedeByID(ctx, sede.ID)
}

func (repo *institutionRepository) getSedeWhere(ctx context.Context, cond string, args ...interface{}) (institution.Sede, error) {
	var row sedeRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+sedeCols+` FROM sede WHERE `+cond, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return institution.Sede{}, institution.ErrSedeNotFound
		}
		return institution.Sede{}, errors.Wrap(err, "getting sede")
	}
	return row.sede(), nil
}

func (repo *institutionRepository) GetSedeByID(ctx context.Context, id string) (institution.Sede, error) {
	return repo.getSedeWhere(ctx, "id = $1", id)
}

func (repo *institutionRepository) GetSedeBySupervisor(ctx context.Context, supervisorID string) (institution.Sede, error) {
	return repo.getSedeWhere(ctx, "supervisor_id = $1", supervisorID)
}

func (repo *institutionRepository) QuerySedes(ctx context.Context, sc core.Scope) ([]institution.Sede, error) {
	conds, args, ok := scopeClause(sc, scopeColumns{
		id:          "id",
		institution: "institution_id",
		sede:        "id", // a sede's own branch attribute is itself
	})
	if !ok {
		return nil, nil
	}

	q := `SELECT ` + sedeCols + ` FROM sede WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY name`
	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building sedes query")
	}

	var rows []sedeRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying sedes")
	}
	sedes := make([]institution.Sede, 0, len(rows))
	for _, row := range rows {
		sedes = append(sedes, row.sede())
	}
	return sedes, nil
}

func (repo *institutionRepository) UpdateSede(ctx context.Context, sede institution.Sede) (institution.Sede, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE sede SET name = $1, updated_at = $2 WHERE id = $3`,
		sede.Name, sede.UpdatedAt, sede.ID,
	)
	if err != nil {
		return institution.Sede{}, errors.Wrap(err, "updating sede")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return institution.Sede{}, institution.ErrSedeNotFound
	}
	return repo.GetSedeByID(ctx, sede.ID)
}

func (repo *institutionRepository) SetSedeSupervisor(ctx context.Context, sedeID string, supervisorID null.String) error {
	res, err := repo.db.ExecContext(ctx, `UPDATE sede SET supervisor_id = $1 WHERE id = $2`, supervisorID, sedeID)
	if err != nil {
		return errors.Wrap(err, "setting sede supervisor")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return institution.ErrSedeNotFound
	}
	return nil
}

func (repo *institutionRepository) DeleteSedesByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`DELETE FROM sede WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "deleting sedes")
	}
	return nil
}
