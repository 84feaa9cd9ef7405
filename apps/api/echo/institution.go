package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/dgarmol/academia/core/institution"
	"github.com/dgarmol/academia/core/scope"
	"github.com/dgarmol/academia/core/user"
)

type institutionApi struct {
	deps ServerDeps
}

func registerInstitutionAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := institutionApi{deps: deps}

	ig := g.Group("/institutions", jwt)
	ig.POST("", api.create, adminMiddleware())
	ig.GET("/:id", api.retrieve, adminMiddleware())
	ig.GET("/:id/grading-config", api.gradingConfig, staffMiddleware())
	ig.PUT("/:id/grading-config", api.updateGradingConfig, adminMiddleware())

	sg := g.Group("/sedes", jwt)
	sg.POST("", api.createSede, adminMiddleware())
	sg.GET("", api.querySedes)
	sg.GET("/:id", api.retrieveSede)
	sg.PUT("/:id", api.updateSede, adminMiddleware())
	sg.PUT("/:id/supervisor", api.assignSupervisor, adminMiddleware())
	sg.DELETE("/:id/supervisor", api.clearSupervisor, adminMiddleware())
	sg.DELETE("/:id", api.destroySede, adminMiddleware())
}

func (api *institutionApi) create(ctx echo.Context) error {
	var data institution.NewInstitution
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewInstitution")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	inst, err := api.deps.InstitutionSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating institution")
	}
	return ctx.JSON(http.StatusCreated, inst)
}

// getOwnInstitution resolves the :id param against the caller's tenant.
// Records of other institutions do not exist as far as the caller knows.
func (api *institutionApi) getOwnInstitution(ctx echo.Context) (institution.Institution, error) {
	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return institution.Institution{}, errors.Wrap(err, "getting context user")
	}
	if ctx.Param("id") != ctxUsr.InstitutionID {
		return institution.Institution{}, errHttpNotFound
	}

	inst, err := api.deps.InstitutionSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == institution.ErrNotFound {
			return institution.Institution{}, errHttpNotFound
		}
		return institution.Institution{}, errors.Wrap(err, "finding institution by ID")
	}
	return inst, nil
}

func (api *institutionApi) retrieve(ctx echo.Context) error {
	inst, err := api.getOwnInstitution(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, inst)
}

func (api *institutionApi) gradingConfig(ctx echo.Context) error {
	inst, err := api.getOwnInstitution(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, inst.GradingConfig())
}

func (api *institutionApi) updateGradingConfig(ctx echo.Context) error {
	inst, err := api.getOwnInstitution(ctx)
	if err != nil {
		return err
	}

	var data institution.UpdateGradingConfig
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateGradingConfig")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	inst, err = api.deps.InstitutionSvc.UpdateGradingConfig(ctx.Request().Context(), inst.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating grading config")
	}
	return ctx.JSON(http.StatusOK, inst)
}

func (api *institutionApi) createSede(ctx echo.Context) error {
	var data institution.NewSede
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSede")
	}

	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if data.InstitutionID == "" {
		data.InstitutionID = ctxUsr.InstitutionID
	} else if data.InstitutionID != ctxUsr.InstitutionID {
		return errHttpForbidden
	}

	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	sede, err := api.deps.InstitutionSvc.CreateSede(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating sede")
	}
	return ctx.JSON(http.StatusCreated, sede)
}

func (api *institutionApi) querySedes(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	sc, err := scope.Staff(ctxUsr)
	if err != nil {
		return err
	}

	sedes, err := api.deps.InstitutionSvc.QuerySedes(ctx.Request().Context(), sc)
	if err != nil {
		return errors.Wrap(err, "querying sedes")
	}
	if sedes == nil {
		sedes = []institution.Sede{}
	}
	return ctx.JSON(http.StatusOK, sedes)
}

// getOwnSede resolves the :id param within the caller's tenant.
func (api *institutionApi) getOwnSede(ctx echo.Context) (institution.Sede, error) {
	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return institution.Sede{}, errors.Wrap(err, "getting context user")
	}

	sede, err := api.deps.InstitutionSvc.GetSedeByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == institution.ErrSedeNotFound {
			return institution.Sede{}, errHttpNotFound
		}
		return institution.Sede{}, errors.Wrap(err, "finding sede by ID")
	}
	if sede.InstitutionID != ctxUsr.InstitutionID {
		return institution.Sede{}, errHttpNotFound
	}
	return sede, nil
}

func (api *institutionApi) retrieveSede(ctx echo.Context) error {
	sede, err := api.getOwnSede(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sede)
}

func (api *institutionApi) updateSede(ctx echo.Context) error {
	sede, err := api.getOwnSede(ctx)
	if err != nil {
		return err
	}

	var data institution.UpdateSede
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSede")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	sede, err = api.deps.InstitutionSvc.UpdateSede(ctx.Request().Context(), sede.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating sede")
	}
	return ctx.JSON(http.StatusOK, sede)
}

func (api *institutionApi) assignSupervisor(ctx echo.Context) error {
	sede, err := api.getOwnSede(ctx)
	if err != nil {
		return err
	}

	var data AssignSupervisorRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignSupervisorRequest")
	}
	if err := api.deps.Validate.Struct(&data); err != nil {
		return err
	}

	supervisor, err := api.deps.UserSvc.GetByID(ctx.Request().Context(), data.SupervisorID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if !supervisor.IsSupervisor() {
		return echo.NewHTTPError(http.StatusBadRequest, "user is not a supervisor")
	}

	sede, err = api.deps.InstitutionSvc.AssignSupervisor(ctx.Request().Context(), sede.ID, supervisor)
	if err != nil {
		return errors.Wrap(err, "assigning supervisor")
	}
	return ctx.JSON(http.StatusOK, sede)
}

func (api *institutionApi) clearSupervisor(ctx echo.Context) error {
	sede, err := api.getOwnSede(ctx)
	if err != nil {
		return err
	}
	if !sede.SupervisorID.Valid {
		return ctx.NoContent(http.StatusNoContent)
	}

	if err = api.deps.InstitutionSvc.ClearSupervisor(ctx.Request().Context(), sede.SupervisorID.String); err != nil {
		return errors.Wrap(err, "clearing supervisor")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// destroySede deletes the sede; its staff and groups are unassigned, never deleted.
func (api *institutionApi) destroySede(ctx echo.Context) error {
	sede, err := api.getOwnSede(ctx)
	if err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	if err = api.deps.GroupSvc.ClearSedeEverywhere(rctx, sede.ID); err != nil {
		return errors.Wrap(err, "unassigning sede groups")
	}
	if err = api.deps.InstitutionSvc.DeleteSede(rctx, sede.ID); err != nil {
		return errors.Wrap(err, "deleting sede")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type AssignSupervisorRequest struct {
	SupervisorID string `json:"supervisor_id" validate:"required"`
}
