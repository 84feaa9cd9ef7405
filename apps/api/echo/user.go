package echoapi

import (
	"net/http"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/dgarmol/academia/core"
	"github.com/dgarmol/academia/core/group"
	"github.com/dgarmol/academia/core/scope"
	"github.com/dgarmol/academia/core/user"
)

var (
	errUsrNotFoundInCtx = errors.New("user object not found in echo.Context")
	errNoPermsToSetRole = "not enough rights to set this role"
	errWrongInstitution = "user must belong to your institution"
)

type userApi struct {
	deps ServerDeps
}

func registerUserAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := userApi{deps: deps}

	ug := g.Group("/users")

	// un-authed endpoints
	// TODO: rate limit `/password-reset` & `/password-reset-confirm`
	ug.POST("/login", api.login)
	ug.POST("/password-reset", api.resetPassword)
	ug.POST("/password-reset-confirm", api.confirmPasswordReset)

	// authed endpoints
	ag := ug.Group("", jwt)
	ag.POST("/token-refresh", api.refreshToken)
	ag.POST("/register", api.create, staffMiddleware())
	ag.GET("", api.queryStaff)
	ag.GET("/students", api.queryStudents)
	ag.DELETE("", api.destroyMultiple, adminMiddleware())
	ag.GET("/roles", api.queryRoles, staffMiddleware())

	// detail endpoints
	dg := ag.Group("/:id", userDetailMiddleware(api.deps))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy, adminMiddleware())
}

// Handlers

func (api *userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}

	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	// accounts are always provisioned within the creator's institution
	if data.InstitutionID == "" {
		data.InstitutionID = ctxUsr.InstitutionID
	} else if data.InstitutionID != ctxUsr.InstitutionID {
		return core.NewValidationError(nil, core.FieldError{Field: "institution_id", Error: errWrongInstitution})
	}

	if err := data.Validate(api.deps.Validate, api.deps.UserSvc); err != nil {
		return err
	}

	// a supervisor may only provision teacher/student/caja accounts
	if !ctxUsr.IsAdmin() && (data.Role == user.RoleAdmin || data.Role == user.RoleSupervisor) {
		return core.NewValidationError(nil, core.FieldError{Field: "role", Error: errNoPermsToSetRole})
	}

	usr, err := api.deps.UserSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	claims, err := authenticate(ctx.Request().Context(), data.Username, data.Password, api.deps.UserSvc)
	if err != nil {
		return err
	}
	token, err := GenerateToken(claims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	if err := api.deps.UserSvc.RequestPasswordReset(ctx.Request().Context(), data.Email); !(err == nil || errors.Cause(err) == user.ErrNotFound) {
		// do not return errors to attackers
		ctx.Logger().Errorf("%+v", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *userApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	if err := api.deps.UserSvc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *userApi) queryStaff(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	sc, err := scope.Staff(ctxUsr)
	if err != nil {
		return err
	}
	return api.query(ctx, sc)
}

func (api *userApi) queryStudents(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	groups, err := institutionGroups(ctx, api.deps.GroupSvc, ctxUsr)
	if err != nil {
		return errors.Wrap(err, "fetching institution groups")
	}
	sc, err := scope.Students(ctxUsr, groups)
	if err != nil {
		return err
	}
	return api.query(ctx, sc, user.RoleStudent)
}

// query runs the list-fetch within the resolved scope. The students endpoint
// pins the role filter; the scope alone still admits staff for wide roles.
func (api *userApi) query(ctx echo.Context, sc core.Scope, roles ...user.Role) error {
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}
	filter.Clean()
	if len(roles) > 0 {
		filter.Roles = roles
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	users, err := api.deps.UserSvc.Query(ctx.Request().Context(), sc, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) update(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}

	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	// visibility does not imply write access: only admins and supervisors
	// may write accounts other than their own
	if usr.ID != ctxUsr.ID && !ctxUsr.IsAdmin() && !ctxUsr.IsSupervisor() {
		return errHttpForbidden
	}
	if !ctxUsr.IsAdmin() {
		// `IsActive` and `Role` can only be changed by admin
		// `Username` and `Email` can only be changed by admin for now
		if data.IsActive != nil || data.Role != "" || data.Username != "" || data.Email != "" {
			return errHttpForbidden
		}
	}

	if err := data.Validate(usr, api.deps.Validate, api.deps.UserSvc); err != nil {
		return err
	}

	usr, err = api.deps.UserSvc.Update(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) destroy(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	// Say No to Suicide! ctxUser cannot delete themselves
	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if usr.ID == ctxUsr.ID {
		return errHttpForbidden
	}

	if err := deleteUsers(ctx, api.deps, usr); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}

	// Say No to Suicide! ctxUser cannot delete themselves
	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	sort.Strings(query.IDs)
	if i := sort.SearchStrings(query.IDs, ctxUsr.ID); i < len(query.IDs) && query.IDs[i] == ctxUsr.ID {
		return errHttpForbidden
	}

	users := make([]user.User, 0, len(query.IDs))
	for _, id := range query.IDs {
		usr, err := api.deps.UserSvc.GetByID(ctx.Request().Context(), id)
		if err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				continue
			}
			return errors.Wrap(err, "finding user by ID")
		}
		users = append(users, usr)
	}

	if err := deleteUsers(ctx, api.deps, users...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// deleteUsers removes the accounts and soft-unassigns every relation pointing
// at them: groups lose their teacher or member, sedes lose their supervisor.
// Related records are never deleted.
func deleteUsers(ctx echo.Context, deps ServerDeps, users ...user.User) error {
	if len(users) == 0 {
		return nil
	}
	rctx := ctx.Request().Context()

	var teacherIDs, studentIDs, ids []string
	for _, usr := range users {
		ids = append(ids, usr.ID)
		switch {
		case usr.IsTeacher():
			teacherIDs = append(teacherIDs, usr.ID)
		case usr.IsStudent():
			studentIDs = append(studentIDs, usr.ID)
		case usr.IsSupervisor():
			if err := deps.InstitutionSvc.ClearSupervisor(rctx, usr.ID); err != nil {
				return errors.Wrap(err, "clearing supervisor")
			}
		}
	}
	if len(teacherIDs) > 0 {
		if err := deps.GroupSvc.UnassignTeacherEverywhere(rctx, teacherIDs...); err != nil {
			return errors.Wrap(err, "unassigning teachers")
		}
	}
	if len(studentIDs) > 0 {
		if err := deps.GroupSvc.RemoveStudentsEverywhere(rctx, studentIDs...); err != nil {
			return errors.Wrap(err, "removing students")
		}
	}
	return deps.UserSvc.Delete(rctx, ids...)
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

// userDetailMiddleware resolves :id into the "object" context key. Except for
// the caller's own record, the detail path admits exactly what the staff or
// student list scope admits; anything else reads as not found.
func userDetailMiddleware(deps ServerDeps) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := getContextUser(ctx, deps.UserSvc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}

			usr, err := deps.UserSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == user.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding user by ID")
			}

			if usr.ID != ctxUsr.ID {
				sc, err := userDetailScope(ctx, deps, ctxUsr, usr)
				if err != nil {
					return err
				}
				if !sc.Matches(core.ScopeTarget{ID: usr.ID, InstitutionID: usr.InstitutionID, SedeID: usr.SedeID}) {
					return errHttpNotFound
				}
			}
			ctx.Set("object", usr)
			return next(ctx)
		}
	}
}

// userDetailScope picks the list scope the target would have been fetched
// under: the student scope for student records, the staff scope otherwise.
func userDetailScope(ctx echo.Context, deps ServerDeps, ctxUsr, target user.User) (core.Scope, error) {
	if target.IsStudent() {
		groups, err := institutionGroups(ctx, deps.GroupSvc, ctxUsr)
		if err != nil {
			return core.Scope{}, errors.Wrap(err, "fetching institution groups")
		}
		return scope.Students(ctxUsr, groups)
	}
	return scope.Staff(ctxUsr)
}

// institutionGroups fetches every group of the caller's institution; the
// resolvers derive membership scopes from it.
func institutionGroups(ctx echo.Context, svc group.Service, usr user.User) ([]group.Group, error) {
	if usr.InstitutionID == "" {
		return nil, nil // the resolver rejects the identity
	}
	return svc.Query(ctx.Request().Context(), core.Scope{InstitutionID: usr.InstitutionID}, nil, nil)
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}
