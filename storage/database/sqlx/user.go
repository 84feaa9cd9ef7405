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
	"github.com/dgarmol/academia/core/grading"
	"github.com/dgarmol/academia/core/user"
)

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sql.DB) user.Repository {
	return &userRepository{db: sqlx.NewDb(db, "postgres")}
}

// gradesJSON stores User.Grades as a JSONB column.
type gradesJSON map[int]grading.PartialScores

func (g gradesJSON) Value() (driver.Value, error) {
	if g == nil {
		return nil, nil
	}
	return json.Marshal(g)
}

func (g *gradesJSON) Scan(src interface{}) error {
	if src == nil {
		*g = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return errors.Errorf("unsupported grades column type %T", src)
	}
	return json.Unmarshal(b, g)
}

type userRow struct {
	ID            string      `db:"id"`
	Name          string      `db:"name"`
	Username      string      `db:"username"`
	Email         string      `db:"email"`
	Role          string      `db:"role"`
	InstitutionID string      `db:"institution_id"`
	SedeID        null.String `db:"sede_id"`
	Level         null.String `db:"level"`
	IsActive      bool        `db:"is_active"`
	Grades        gradesJSON  `db:"grades"`
	PasswordHash  []byte      `db:"password_hash"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`
	LastLogin     null.Time   `db:"last_login"`
}

const userCols = `id, name, username, email, role, institution_id, sede_id, level, is_active, grades, password_hash, created_at, updated_at, last_login`

func (r userRow) user() user.User {
	usr := user.User{
		ID:            r.ID,
		Name:          r.Name,
		Username:      r.Username,
		Email:         r.Email,
		Role:          user.Role(r.Role),
		InstitutionID: r.InstitutionID,
		SedeID:        r.SedeID,
		Level:         r.Level,
		IsActive:      &r.IsActive,
		Grades:        r.Grades,
		PasswordHash:  r.PasswordHash,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.LastLogin.Valid {
		usr.LastLogin = r.LastLogin.Time
	}
	return usr
}

func newUserRow(usr user.User) userRow {
	row := userRow{
		ID:            usr.ID,
		Name:          usr.Name,
		Username:      usr.Username,
		Email:         usr.Email,
		Role:          string(usr.Role),
		InstitutionID: usr.InstitutionID,
		SedeID:        usr.SedeID,
		Level:         usr.Level,
		IsActive:      usr.IsActive == nil || *usr.IsActive,
		Grades:        usr.Grades,
		PasswordHash:  usr.PasswordHash,
		CreatedAt:     usr.CreatedAt,
		UpdatedAt:     usr.UpdatedAt,
	}
	if !usr.LastLogin.IsZero() {
		row.LastLogin = null.TimeFrom(usr.LastLogin)
	}
	return row
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	conds := []string{"FALSE"}
	var args []interface{}
	if username != "" {
		conds = append(conds, "username = ?")
		args = append(args, username)
	}
	if email != "" {
		conds = append(conds, "email = ?")
		args = append(args, email)
	}

	q := `SELECT username, email FROM "user" WHERE (` + strings.Join(conds, " OR ") + `)`
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, ex := range excludedUsers {
			ids = append(ids, ex.ID)
		}
		q += ` AND id NOT IN (?)`
		args = append(args, ids)
	}

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return errors.Wrap(err, "building uniqueness query")
	}

	var rows []struct {
		Username string `db:"username"`
		Email    string `db:"email"`
	}
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "checking uniqueness")
	}
	for _, row := range rows {
		if username != "" && row.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && row.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	row := newUserRow(usr)
	_, err := repo.db.NamedExecContext(ctx, `
INSERT INTO "user" (`+userCols+`)
VALUES (:id, :name, :username, :email, :role, :institution_id, :sede_id, :level, :is_active, :grades, :password_hash, :created_at, :updated_at, :last_login)`,
		row,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return repo.GetUserByID(ctx, usr.ID)
}

func (repo *userRepository) getUserWhere(ctx context.Context, cond string, args ...interface{}) (user.User, error) {
	var row userRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+userCols+` FROM "user" WHERE `+cond, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return row.user(), nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	return repo.getUserWhere(ctx, "id = $1", id)
}

func (repo *userRepository) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	return repo.getUserWhere(ctx, "username = $1", username)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getUserWhere(ctx, "email = $1", email)
}

func (repo *userRepository) GetUserByUsernameOrEmail(ctx context.Context, username string) (user.User, error) {
	return repo.getUserWhere(ctx, "(username = $1 OR email = $1)", username)
}

func (repo *userRepository) QueryUsers(ctx context.Context, sc core.Scope, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	conds, args, ok := scopeClause(sc, scopeColumns{
		id:          "id",
		institution: "institution_id",
		sede:        "sede_id",
	})
	if !ok {
		return nil, nil
	}

	if filter != nil {
		if filter.Search != "" {
			conds = append(conds, "(name ILIKE ? OR username ILIKE ? OR email ILIKE ?)")
			pat := "%" + filter.Search + "%"
			args = append(args, pat, pat, pat)
		}
		if len(filter.Roles) > 0 {
			roles := make([]string, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				roles = append(roles, string(role))
			}
			conds = append(conds, "role IN (?)")
			args = append(args, roles)
		}
		if filter.Level.Valid {
			conds = append(conds, "level = ?")
			args = append(args, filter.Level.String)
		}
		if filter.IsActive != nil {
			conds = append(conds, "is_active = ?")
			args = append(args, *filter.IsActive)
		}
		if !filter.CreatedFrom.IsZero() {
			conds = append(conds, "created_at >= ?")
			args = append(args, filter.CreatedFrom)
		}
		if !filter.CreatedTo.IsZero() {
			conds = append(conds, "created_at <= ?")
			args = append(args, filter.CreatedTo)
		}
	}

	q := `SELECT ` + userCols + ` FROM "user" WHERE ` + strings.Join(conds, " AND ")
	q += orderBy(ordering, map[string]string{
		"name":       "name",
		"username":   "username",
		"created_at": "created_at",
	})

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building users query")
	}

	var rows []userRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.user())
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	orig, err := repo.GetUserByID(ctx, usr.ID)
	if err != nil {
		return user.User{}, err
	}

	if usr.Name != "" {
		orig.Name = usr.Name
	}
	if usr.Username != "" {
		orig.Username = usr.Username
	}
	if usr.Email != "" {
		orig.Email = usr.Email
	}
	if usr.Role != "" {
		orig.Role = usr.Role
		if !usr.Role.HasSede() {
			orig.SedeID = null.String{}
		}
	}
	if usr.Role.HasSede() && usr.SedeID.Valid {
		orig.SedeID = usr.SedeID
	}
	if usr.Level.Valid {
		orig.Level = usr.Level
	}
	if usr.PasswordHash != nil {
		orig.PasswordHash = usr.PasswordHash
	}
	if isActive != nil {
		orig.IsActive = isActive
	}
	orig.UpdatedAt = usr.UpdatedAt

	row := newUserRow(orig)
	_, err = repo.db.NamedExecContext(ctx, `
UPDATE "user"
SET name = :name, username = :username, email = :email, role = :role, sede_id = :sede_id,
    level = :level, is_active = :is_active, password_hash = :password_hash, updated_at = :updated_at
WHERE id = :id`,
		row,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return repo.GetUserByID(ctx, usr.ID)
}

func (repo *userRepository) SetUserSede(ctx context.Context, id string, sedeID null.String) error {
	res, err := repo.db.ExecContext(ctx, `UPDATE "user" SET sede_id = $1 WHERE id = $2`, sedeID, id)
	if err != nil {
		return errors.Wrap(err, "setting user sede")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (repo *userRepository) SetUserGrades(ctx context.Context, id string, grades map[int]grading.PartialScores) (user.User, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE "user" SET grades = $1, updated_at = $2 WHERE id = $3`,
		gradesJSON(grades), time.Now().UTC(), id,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "setting user grades")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUserByID(ctx, id)
}

func (repo *userRepository) SetLastLogin(ctx context.Context, usr user.User) (user.User, error) {
	_, err := repo.db.ExecContext(ctx, `UPDATE "user" SET last_login = $1 WHERE id = $2`, usr.LastLogin, usr.ID)
	if err != nil {
		return user.User{}, errors.Wrap(err, "setting last login")
	}
	return repo.GetUserByID(ctx, usr.ID)
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`DELETE FROM "user" WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}
