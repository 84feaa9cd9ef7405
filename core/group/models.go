package group

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/dgarmol/academia/core"
)

// Group is a class group within an institution, optionally attached to a sede
// and to one teacher. StudentIDs is membership, not ownership: student records
// are owned by the user entity and survive the group.
type Group struct {
	ID            string      `json:"id"`
	InstitutionID string      `json:"institution_id"`
	SedeID        null.String `json:"sede_id"`
	TeacherID     null.String `json:"teacher_id"`
	Name          string      `json:"name"`
	Level         null.String `json:"level"`
	StudentIDs    []string    `json:"student_ids"`
	CreatedAt     time.Time   `json:"created_at"` // UTC
	UpdatedAt     time.Time   `json:"updated_at"` // UTC
}

func (g *Group) HasStudent(id string) bool {
	for _, sid := range g.StudentIDs {
		if sid == id {
			return true
		}
	}
	return false
}

type NewGroup struct {
	InstitutionID string      `json:"institution_id" validate:"required"`
	SedeID        null.String `json:"sede_id"`
	Name          string      `json:"name" validate:"required"`
	Level         null.String `json:"level"`
}

func (ng *NewGroup) Validate(validate *validator.Validate) error {
	ng.Name = core.CleanString(ng.Name)
	return validate.Struct(ng)
}

type UpdateGroup struct {
	Name   string      `json:"name"`
	SedeID null.String `json:"sede_id"`
	Level  null.String `json:"level"`
}

func (ug *UpdateGroup) Validate(origGrp Group, validate *validator.Validate) error {
	name := core.CleanString(ug.Name)
	if name != "" {
		ug.Name = name
	} else {
		ug.Name = origGrp.Name
	}
	return validate.Struct(ug)
}

type QueryFilter struct {
	Search string      `query:"search"`
	Level  null.String `query:"level"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && !qf.Level.Valid
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
