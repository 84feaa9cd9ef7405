package sqlxrepos

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/dgarmol/academia/core"
	"github.com/dgarmol/academia/core/attendance"
)

type sessionRepository struct {
	db *sqlx.DB
}

var _ attendance.Repository = (*sessionRepository)(nil)

func NewSessionRepository(db *sql.DB) attendance.Repository {
	return &sessionRepository{db: sqlx.NewDb(db, "postgres")}
}

// checkInsJSON stores Session.CheckIns as a JSONB column.
type checkInsJSON []attendance.CheckIn

func (c checkInsJSON) Value() (driver.Value, error) {
	if c == nil {
		return json.Marshal([]attendance.CheckIn{})
	}
	return json.Marshal(c)
}

func (c *checkInsJSON) Scan(src interface{}) error {
	if src == nil {
		*c = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return errors.Errorf("unsupported check_ins column type %T", src)
	}
	return json.Unmarshal(b, c)
}

type sessionRow struct {
	ID            string       `db:"id"`
	InstitutionID string       `db:"institution_id"`
	GroupID       string       `db:"group_id"`
	SedeID        null.String  `db:"sede_id"`
	Code          string       `db:"code"`
	OpenedBy      string       `db:"opened_by"`
	OpenedAt      time.Time    `db:"opened_at"`
	ClosedAt      null.Time    `db:"closed_at"`
	CheckIns      checkInsJSON `db:"check_ins"`
}

const sessionCols = `id, institution_id, group_id, sede_id, code, opened_by, opened_at, closed_at, check_ins`

func (r sessionRow) session() attendance.Session {
	return attendance.Session{
		ID:            r.ID,
		InstitutionID: r.InstitutionID,
		GroupID:       r.GroupID,
		SedeID:        r.SedeID,
		Code:          r.Code,
		OpenedBy:      r.OpenedBy,
		OpenedAt:      r.OpenedAt,
		ClosedAt:      r.ClosedAt,
		CheckIns:      r.CheckIns,
	}
}

func (repo *sessionRepository) CreateSession(ctx context.Context, s attendance.Session) (attendance.Session, error) {
	s.ID = uuid.New().String()
	row := sessionRow{
		ID:            s.ID,
		InstitutionID: s.InstitutionID,
		GroupID:       s.GroupID,
		SedeID:        s.SedeID,
		Code:          s.Code,
		OpenedBy:      s.OpenedBy,
		OpenedAt:      s.OpenedAt,
		ClosedAt:      s.ClosedAt,
		CheckIns:      s.CheckIns,
	}
	_, err := repo.db.NamedExecContext(ctx, `
INSERT INTO session (`+sessionCols+`)
VALUES (:id, :institution_id, :group_id, :sede_id, :code, :opened_by, :opened_at, :closed_at, :check_ins)`,
		row,
	)
	if err != nil {
		return attendance.Session{}, errors.Wrap(err, "inserting session")
	}
	return repo.GetSessionByID(ctx, s.ID)
}

func (repo *sessionRepository) GetSessionByID(ctx context.Context, id string) (attendance.Session, error) {
	var row sessionRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+sessionCols+` FROM session WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return attendance.Session{}, attendance.ErrNotFound
		}
		return attendance.Session{}, errors.Wrap(err, "getting session")
	}
	return row.session(), nil
}

func (repo *sessionRepository) QuerySessions(ctx context.Context, sc core.Scope) ([]attendance.Session, error) {
	conds, args, ok := scopeClause(sc, scopeColumns{
		id:          "id",
		institution: "institution_id",
		sede:        "sede_id",
		group:       "group_id",
	})
	if !ok {
		return nil, nil
	}

	q := `SELECT ` + sessionCols + ` FROM session WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY opened_at DESC`
	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building sessions query")
	}

	var rows []sessionRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying sessions")
	}
	sessions := make([]attendance.Session, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, row.session())
	}
	return sessions, nil
}

func (repo *sessionRepository) AddCheckIn(ctx context.Context, sessionID string, ci attendance.CheckIn) (attendance.Session, error) {
	entry, err := json.Marshal(ci)
	if err != nil {
		return attendance.Session{}, errors.Wrap(err, "encoding check-in")
	}
	_, err = repo.db.ExecContext(ctx, `
UPDATE session
SET check_ins = check_ins || $1::jsonb
WHERE id = $2
  AND NOT EXISTS (
    SELECT 1 FROM jsonb_array_elements(check_ins) AS ci
    WHERE ci->>'student_id' = $3
  )`,
		entry, sessionID, ci.StudentID,
	)
	if err != nil {
		return attendance.Session{}, errors.Wrap(err, "adding check-in")
	}
	return repo.GetSessionByID(ctx, sessionID)
}

func (repo *sessionRepository) CloseSession(ctx context.Context, sessionID string, at time.Time) (attendance.Session, error) {
	res, err := repo.db.ExecContext(ctx, `UPDATE session SET closed_at = $1 WHERE id = $2`, at, sessionID)
	if err != nil {
		return attendance.Session{}, errors.Wrap(err, "closing session")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return attendance.Session{}, attendance.ErrNotFound
	}
	return repo.GetSessionByID(ctx, sessionID)
}
