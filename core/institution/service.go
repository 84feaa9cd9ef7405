package institution

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/dgarmol/academia/core"
	"github.com/dgarmol/academia/core/grading"
	"github.com/dgarmol/academia/core/user"
)

var (
	ErrNotFound     = errors.New("institution not found")
	ErrSedeNotFound = errors.New("sede not found")
)

type (
	Repository interface {
		CreateInstitution(ctx context.Context, inst Institution) (Institution, error)
		GetInstitutionByID(ctx context.Context, id string) (Institution, error)
		QueryInstitutions(ctx context.Context) ([]Institution, error)
		UpdateInstitution(ctx context.Context, inst Institution) (Institution, error)

		CreateSede(ctx context.Context, sede Sede) (Sede, error)
		GetSedeByID(ctx context.Context, id string) (Sede, error)
		GetSedeBySupervisor(ctx context.Context, supervisorID string) (Sede, error)
		QuerySedes(ctx context.Context, sc core.Scope) ([]Sede, error)
		UpdateSede(ctx context.Context, sede Sede) (Sede, error)
		// SetSedeSupervisor re-points (or clears) a sede's supervisor reference only.
		SetSedeSupervisor(ctx context.Context, sedeID string, supervisorID null.String) error
		DeleteSedesByID(ctx context.Context, ids ...string) error
	}

	Service interface {
		Create(ctx context.Context, ni NewInstitution) (Institution, error)
		GetByID(ctx context.Context, id string) (Institution, error)
		QueryAll(ctx context.Context) ([]Institution, error)
		GradingConfig(ctx context.Context, institutionID string) (grading.Config, error)
		UpdateGradingConfig(ctx context.Context, institutionID string, ugc UpdateGradingConfig) (Institution, error)

		CreateSede(ctx context.Context, ns NewSede) (Sede, error)
		GetSedeByID(ctx context.Context, id string) (Sede, error)
		QuerySedes(ctx context.Context, sc core.Scope) ([]Sede, error)
		UpdateSede(ctx context.Context, id string, us UpdateSede) (Sede, error)
		AssignSupervisor(ctx context.Context, sedeID string, supervisor user.User) (Sede, error)
		ClearSupervisor(ctx context.Context, supervisorID string) error
		DeleteSede(ctx context.Context, id string) error
	}

	service struct {
		repo    Repository
		usrRepo user.Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, usrRepo user.Repository) Service {
	return &service{repo: repo, usrRepo: usrRepo}
}

func (svc *service) Create(ctx context.Context, ni NewInstitution) (Institution, error) {
	now := time.Now().UTC()
	return svc.repo.CreateInstitution(ctx, Institution{
		Name:      ni.Name,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *service) GetByID(ctx context.Context, id string) (Institution, error) {
	return svc.repo.GetInstitutionByID(ctx, id)
}

func (svc *service) QueryAll(ctx context.Context) ([]Institution, error) {
	return svc.repo.QueryInstitutions(ctx)
}

func (svc *service) GradingConfig(ctx context.Context, institutionID string) (grading.Config, error) {
	inst, err := svc.repo.GetInstitutionByID(ctx, institutionID)
	if err != nil {
		return grading.Config{}, err
	}
	return inst.GradingConfig(), nil
}

func (svc *service) UpdateGradingConfig(ctx context.Context, institutionID string, ugc UpdateGradingConfig) (Institution, error) {
	inst, err := svc.repo.GetInstitutionByID(ctx, institutionID)
	if err != nil {
		return Institution{}, err
	}

	if ugc.NumberOfPartials.Valid {
		inst.NumberOfPartials = ugc.NumberOfPartials
	}
	if ugc.MaxActivityScore.Valid {
		inst.MaxActivityScore = ugc.MaxActivityScore
	}
	if ugc.MaxAccumulatedTotal.Valid {
		inst.MaxAccumulatedTotal = ugc.MaxAccumulatedTotal
	}
	if ugc.MaxExamTotal.Valid {
		inst.MaxExamTotal = ugc.MaxExamTotal
	}
	if ugc.PassingGrade.Valid {
		inst.PassingGrade = ugc.PassingGrade
	}
	inst.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateInstitution(ctx, inst)
}

func (svc *service) CreateSede(ctx context.Context, ns NewSede) (Sede, error) {
	if _, err := svc.repo.GetInstitutionByID(ctx, ns.InstitutionID); err != nil {
		return Sede{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateSede(ctx, Sede{
		InstitutionID: ns.InstitutionID,
		Name:          ns.Name,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func (svc *service) GetSedeByID(ctx context.Context, id string) (Sede, error) {
	return svc.repo.GetSedeByID(ctx, id)
}

func (svc *service) QuerySedes(ctx context.Context, sc core.Scope) ([]Sede, error) {
	return svc.repo.QuerySedes(ctx, sc)
}

func (svc *service) UpdateSede(ctx context.Context, id string, us UpdateSede) (Sede, error) {
	sede, err := svc.repo.GetSedeByID(ctx, id)
	if err != nil {
		return Sede{}, err
	}
	sede.Name = us.Name
	sede.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateSede(ctx, sede)
}

// AssignSupervisor makes the given user the sede's single supervisor.
// A sede has at most one supervisor and a supervisor runs at most one sede:
// previous references on both sides are re-pointed to null before assigning.
func (svc *service) AssignSupervisor(ctx context.Context, sedeID string, supervisor user.User) (Sede, error) {
	sede, err := svc.repo.GetSedeByID(ctx, sedeID)
	if err != nil {
		return Sede{}, err
	}
	if sede.InstitutionID != supervisor.InstitutionID {
		return Sede{}, errors.Wrap(ErrSedeNotFound, "sede outside the supervisor's institution")
	}

	// displace the sede's current supervisor
	if sede.SupervisorID.Valid && sede.SupervisorID.String != supervisor.ID {
		if err = svc.usrRepo.SetUserSede(ctx, sede.SupervisorID.String, null.String{}); err != nil {
			return Sede{}, errors.Wrap(err, "clearing previous supervisor's sede")
		}
	}

	// detach the new supervisor from any sede they currently run
	if prev, err := svc.repo.GetSedeBySupervisor(ctx, supervisor.ID); err == nil && prev.ID != sede.ID {
		if err = svc.repo.SetSedeSupervisor(ctx, prev.ID, null.String{}); err != nil {
			return Sede{}, errors.Wrap(err, "detaching supervisor from previous sede")
		}
	} else if err != nil && errors.Cause(err) != ErrSedeNotFound {
		return Sede{}, errors.Wrap(err, "finding supervisor's previous sede")
	}

	if err = svc.repo.SetSedeSupervisor(ctx, sede.ID, null.StringFrom(supervisor.ID)); err != nil {
		return Sede{}, errors.Wrap(err, "assigning supervisor")
	}
	if err = svc.usrRepo.SetUserSede(ctx, supervisor.ID, null.StringFrom(sede.ID)); err != nil {
		return Sede{}, errors.Wrap(err, "re-pointing supervisor's sede")
	}
	return svc.repo.GetSedeByID(ctx, sede.ID)
}

// ClearSupervisor drops the supervisor reference of whichever sede the user
// runs, if any, and the user's own sede affiliation with it. Used when a
// staff account is deleted or demoted.
func (svc *service) ClearSupervisor(ctx context.Context, supervisorID string) error {
	sede, err := svc.repo.GetSedeBySupervisor(ctx, supervisorID)
	if err != nil {
		if errors.Cause(err) == ErrSedeNotFound {
			return nil
		}
		return err
	}
	if err = svc.repo.SetSedeSupervisor(ctx, sede.ID, null.String{}); err != nil {
		return errors.Wrap(err, "clearing sede supervisor")
	}
	if err = svc.usrRepo.SetUserSede(ctx, supervisorID, null.String{}); err != nil && errors.Cause(err) != user.ErrNotFound {
		return errors.Wrap(err, "re-pointing supervisor's sede")
	}
	return nil
}

// DeleteSede removes the sede; dependents are unassigned, never deleted.
func (svc *service) DeleteSede(ctx context.Context, id string) error {
	sede, err := svc.repo.GetSedeByID(ctx, id)
	if err != nil {
		return err
	}
	if sede.SupervisorID.Valid {
		if err = svc.usrRepo.SetUserSede(ctx, sede.SupervisorID.String, null.String{}); err != nil {
			return errors.Wrap(err, "unassigning supervisor")
		}
	}
	return svc.repo.DeleteSedesByID(ctx, id)
}
