package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/dgarmol/academia/core"
	"github.com/dgarmol/academia/core/attendance"
	"github.com/dgarmol/academia/core/group"
	"github.com/dgarmol/academia/core/scope"
	"github.com/dgarmol/academia/core/user"
)

type sessionApi struct {
	deps ServerDeps
}

func registerSessionAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := sessionApi{deps: deps}

	sg := g.Group("/sessions", jwt)
	sg.POST("", api.open, roleMiddleware(user.RoleAdmin, user.RoleSupervisor, user.RoleTeacher))
	sg.GET("", api.query)
	sg.GET("/:id", api.retrieve)
	sg.POST("/:id/checkin", api.checkIn, roleMiddleware(user.RoleStudent))
	sg.PUT("/:id/close", api.close, roleMiddleware(user.RoleAdmin, user.RoleSupervisor, user.RoleTeacher))
}

// open starts an attendance round for a group the caller runs: the group's
// teacher, the sede's supervisor, or an admin of the institution.
func (api *sessionApi) open(ctx echo.Context) error {
	var data OpenSessionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to OpenSessionRequest")
	}
	if err := api.deps.Validate.Struct(&data); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	groups, err := institutionGroups(ctx, api.deps.GroupSvc, ctxUsr)
	if err != nil {
		return errors.Wrap(err, "fetching institution groups")
	}
	sc, err := scope.Groups(ctxUsr, groups)
	if err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	grp, err := api.deps.GroupSvc.GetByID(rctx, data.GroupID)
	if err != nil {
		if errors.Cause(err) == group.ErrNotFound {
			return core.NewValidationError(err, core.FieldError{Field: "group_id", Error: "unknown group"})
		}
		return errors.Wrap(err, "finding group by ID")
	}
	if !sc.Matches(core.ScopeTarget{
		ID:            grp.ID,
		InstitutionID: grp.InstitutionID,
		SedeID:        grp.SedeID,
		OwnerID:       grp.TeacherID,
	}) {
		return core.NewValidationError(nil, core.FieldError{Field: "group_id", Error: "unknown group"})
	}

	s, err := api.deps.AttendanceSvc.Open(rctx, grp, ctxUsr)
	if err != nil {
		return errors.Wrap(err, "opening session")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *sessionApi) query(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	groups, err := institutionGroups(ctx, api.deps.GroupSvc, ctxUsr)
	if err != nil {
		return errors.Wrap(err, "fetching institution groups")
	}
	sc, err := scope.Sessions(ctxUsr, groups)
	if err != nil {
		return err
	}

	sessions, err := api.deps.AttendanceSvc.Query(ctx.Request().Context(), sc)
	if err != nil {
		return errors.Wrap(err, "querying sessions")
	}
	if sessions == nil {
		sessions = []attendance.Session{}
	}
	return ctx.JSON(http.StatusOK, sessions)
}

// getScopedSession resolves the :id param through the caller's session scope:
// out-of-scope records are indistinguishable from absent ones.
func (api *sessionApi) getScopedSession(ctx echo.Context) (attendance.Session, user.User, error) {
	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return attendance.Session{}, user.User{}, errors.Wrap(err, "getting context user")
	}
	groups, err := institutionGroups(ctx, api.deps.GroupSvc, ctxUsr)
	if err != nil {
		return attendance.Session{}, user.User{}, errors.Wrap(err, "fetching institution groups")
	}
	sc, err := scope.Sessions(ctxUsr, groups)
	if err != nil {
		return attendance.Session{}, user.User{}, err
	}

	s, err := api.deps.AttendanceSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == attendance.ErrNotFound {
			return attendance.Session{}, user.User{}, errHttpNotFound
		}
		return attendance.Session{}, user.User{}, errors.Wrap(err, "finding session by ID")
	}
	if !sc.Matches(core.ScopeTarget{
		ID:            s.ID,
		InstitutionID: s.InstitutionID,
		SedeID:        s.SedeID,
		GroupID:       s.GroupID,
	}) {
		return attendance.Session{}, user.User{}, errHttpNotFound
	}
	return s, ctxUsr, nil
}

func (api *sessionApi) retrieve(ctx echo.Context) error {
	s, _, err := api.getScopedSession(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

// checkIn marks the calling student present. The code is the payload scanned
// off the session's QR; it must match the session's.
func (api *sessionApi) checkIn(ctx echo.Context) error {
	s, ctxUsr, err := api.getScopedSession(ctx)
	if err != nil {
		return err
	}

	var data CheckInRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CheckInRequest")
	}
	if err := api.deps.Validate.Struct(&data); err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	grp, err := api.deps.GroupSvc.GetByID(rctx, s.GroupID)
	if err != nil {
		return errors.Wrap(err, "finding session's group")
	}

	s, err = api.deps.AttendanceSvc.CheckIn(rctx, s.ID, data.Code, ctxUsr, grp)
	if err != nil {
		switch errors.Cause(err) {
		case attendance.ErrInvalidCode, attendance.ErrSessionClosed:
			return core.NewValidationError(err, core.FieldError{Field: "code", Error: err.Error()})
		case attendance.ErrNotAMember:
			return errHttpForbidden
		}
		return errors.Wrap(err, "checking in")
	}
	return ctx.JSON(http.StatusOK, s)
}

// close ends the session; closing an already-closed session is a no-op.
func (api *sessionApi) close(ctx echo.Context) error {
	s, _, err := api.getScopedSession(ctx)
	if err != nil {
		return err
	}
	s, err = api.deps.AttendanceSvc.Close(ctx.Request().Context(), s.ID)
	if err != nil {
		return errors.Wrap(err, "closing session")
	}
	return ctx.JSON(http.StatusOK, s)
}

type (
	OpenSessionRequest struct {
		GroupID string `json:"group_id" validate:"required"`
	}

	CheckInRequest struct {
		Code string `json:"code" validate:"required"`
	}
)
