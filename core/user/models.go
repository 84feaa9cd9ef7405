package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/dgarmol/academia/core"
	"github.com/dgarmol/academia/core/grading"
)

// Role is the closed set of account roles. Scope resolution switches over it
// exhaustively; an unknown role never falls back to a default scope.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "supervisor"
	RoleTeacher    Role = "teacher"
	RoleStudent    Role = "student"
	RoleCaja       Role = "caja" // cashier: attendance/report read-only
)

var (
	AllRoles = []Role{RoleAdmin, RoleSupervisor, RoleTeacher, RoleStudent, RoleCaja}

	Roles = []RoleInfo{
		{Name: "Admin", Value: RoleAdmin},
		{Name: "Supervisor", Value: RoleSupervisor},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Student", Value: RoleStudent},
		{Name: "Caja", Value: RoleCaja},
	}
)

type RoleInfo struct {
	Name  string `json:"name"`
	Value Role   `json:"value"`
}

func (r Role) IsValid() bool {
	for _, role := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

// HasSede reports whether a sede affiliation is meaningful for the role.
func (r Role) HasSede() bool {
	return r == RoleAdmin || r == RoleSupervisor || r == RoleTeacher
}

type User struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Username      string      `json:"username"`
	Email         string      `json:"email"`
	Role          Role        `json:"role"`
	InstitutionID string      `json:"institution_id"`
	SedeID        null.String `json:"sede_id"`
	Level         null.String `json:"level"`
	IsActive      *bool       `json:"is_active"`

	// Grades maps a partial number (1-based) to the raw scores recorded for
	// that grading period. Only meaningful for students.
	Grades map[int]grading.PartialScores `json:"grades,omitempty"`

	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool      { return u.Role == RoleAdmin }
func (u *User) IsSupervisor() bool { return u.Role == RoleSupervisor }
func (u *User) IsTeacher() bool    { return u.Role == RoleTeacher }
func (u *User) IsStudent() bool    { return u.Role == RoleStudent }
func (u *User) IsCaja() bool       { return u.Role == RoleCaja }

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string      `json:"name" validate:"required"`
	Username        string      `json:"username" validate:"omitempty,min=6,alphanum_"`
	Email           string      `json:"email" validate:"omitempty,email"`
	Password        string      `json:"password" validate:"required"`
	PasswordConfirm string      `json:"password_confirm" validate:"required,eqfield=Password"`
	Role            Role        `json:"role" validate:"required,role"`
	InstitutionID   string      `json:"institution_id" validate:"required"`
	SedeID          null.String `json:"sede_id"`
	Level           null.String `json:"level"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(nu.Username, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
// Role may only be set by an admin actor; the transport layer enforces that.
type UpdateUser struct {
	Name            string      `json:"name"`
	Username        string      `json:"username" validate:"omitempty,min=6,alphanum_"`
	Email           string      `json:"email" validate:"omitempty,email"`
	IsActive        *bool       `json:"is_active"`
	Role            Role        `json:"role" validate:"omitempty,role"`
	SedeID          null.String `json:"sede_id"`
	Level           null.String `json:"level"`
	Password        string      `json:"password" validate:"omitempty"`
	PasswordConfirm string      `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate, svc Service) error {
	name := core.CleanString(uu.Name)
	if name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}

	uname := core.CleanString(uu.Username, true /* lower */)
	if uname != "" {
		uu.Username = uname
	} else {
		uu.Username = origUsr.Username
	}

	email := core.CleanString(uu.Email, true /* lower */)
	if email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	if uu.Role == "" {
		uu.Role = origUsr.Role
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(uu.Username, uu.Email, origUsr)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type QueryFilter struct {
	Search      string      `query:"search"`
	Roles       []Role      `query:"role"`
	Level       null.String `query:"level"`
	IsActive    *bool       `query:"is_active"`
	CreatedFrom time.Time   `query:"created_from"`
	CreatedTo   time.Time   `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && !qf.Level.Valid && qf.IsActive == nil &&
		qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
