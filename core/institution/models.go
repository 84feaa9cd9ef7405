package institution

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/dgarmol/academia/core"
	"github.com/dgarmol/academia/core/grading"
)

// Institution is the tenant boundary: every other record references one and
// cross-tenant reads or writes are forbidden.
type Institution struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// grading settings; absent values fall back to grading.DefaultConfig()
	NumberOfPartials    null.Int     `json:"number_of_partials"`
	MaxActivityScore    null.Float64 `json:"max_activity_score"`
	MaxAccumulatedTotal null.Float64 `json:"max_accumulated_total"`
	MaxExamTotal        null.Float64 `json:"max_exam_total"`
	PassingGrade        null.Float64 `json:"passing_grade"`

	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// GradingConfig materializes the institution's grading settings, applying
// defaults for any absent value. Callers load it once per session and treat
// it as immutable for the duration of an aggregation pass.
func (inst Institution) GradingConfig() grading.Config {
	conf := grading.DefaultConfig()
	if inst.NumberOfPartials.Valid {
		conf.NumberOfPartials = inst.NumberOfPartials.Int
	}
	if inst.MaxActivityScore.Valid {
		conf.MaxActivityScore = inst.MaxActivityScore.Float64
	}
	if inst.MaxAccumulatedTotal.Valid {
		conf.MaxAccumulatedTotal = inst.MaxAccumulatedTotal.Float64
	}
	if inst.MaxExamTotal.Valid {
		conf.MaxExamTotal = inst.MaxExamTotal.Float64
	}
	if inst.PassingGrade.Valid {
		conf.PassingGrade = inst.PassingGrade.Float64
	}
	return conf
}

// Sede is a branch of an institution, supervised by at most one staff member.
type Sede struct {
	ID            string      `json:"id"`
	InstitutionID string      `json:"institution_id"`
	Name          string      `json:"name"`
	SupervisorID  null.String `json:"supervisor_id"`
	CreatedAt     time.Time   `json:"created_at"` // UTC
	UpdatedAt     time.Time   `json:"updated_at"` // UTC
}

type NewInstitution struct {
	Name string `json:"name" validate:"required"`
}

func (ni *NewInstitution) Validate(validate *validator.Validate) error {
	ni.Name = core.CleanString(ni.Name)
	return validate.Struct(ni)
}

// UpdateGradingConfig carries new tenant-wide grading settings.
// Absent fields keep their stored value.
type UpdateGradingConfig struct {
	NumberOfPartials    null.Int     `json:"number_of_partials" validate:"omitempty,min=1,max=6"`
	MaxActivityScore    null.Float64 `json:"max_activity_score" validate:"omitempty,gt=0"`
	MaxAccumulatedTotal null.Float64 `json:"max_accumulated_total" validate:"omitempty,gt=0"`
	MaxExamTotal        null.Float64 `json:"max_exam_total" validate:"omitempty,gt=0"`
	PassingGrade        null.Float64 `json:"passing_grade" validate:"omitempty,gt=0"`
}

func (ugc UpdateGradingConfig) Validate(validate *validator.Validate) error {
	return validate.Struct(ugc)
}

type NewSede struct {
	InstitutionID string `json:"institution_id" validate:"required"`
	Name          string `json:"name" validate:"required"`
}

func (ns *NewSede) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	return validate.Struct(ns)
}

type UpdateSede struct {
	Name string `json:"name" validate:"required"`
}

func (us *UpdateSede) Validate(validate *validator.Validate) error {
	us.Name = core.CleanString(us.Name)
	return validate.Struct(us)
}
