package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/dgarmol/academia/core"
	"github.com/dgarmol/academia/core/grading"
	"github.com/dgarmol/academia/core/group"
	"github.com/dgarmol/academia/core/scope"
	"github.com/dgarmol/academia/core/user"
)

type groupApi struct {
	deps ServerDeps
}

func registerGroupAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := groupApi{deps: deps}

	gg := g.Group("/groups", jwt)
	gg.POST("", api.create, staffMiddleware())
	gg.GET("", api.query)
	gg.GET("/:id", api.retrieve)
	gg.PUT("/:id", api.update, staffMiddleware())
	gg.DELETE("/:id", api.destroy, staffMiddleware())

	gg.PUT("/:id/teacher", api.assignTeacher, staffMiddleware())
	gg.DELETE("/:id/teacher", api.unassignTeacher, staffMiddleware())
	gg.POST("/:id/students", api.addStudents, staffMiddleware())
	gg.DELETE("/:id/students", api.removeStudents, staffMiddleware())

	gg.GET("/:id/students/:sid/grades", api.getGrades)
	gg.PUT("/:id/students/:sid/grades/:partial", api.putGrades)
	gg.GET("/:id/students/:sid/report", api.gradeReport)
}

func (api *groupApi) create(ctx echo.Context) error {
	var data group.NewGroup
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGroup")
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
	// a supervisor creates groups for their own sede only
	if ctxUsr.IsSupervisor() {
		data.SedeID = ctxUsr.SedeID
	}

	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	grp, err := api.deps.GroupSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating group")
	}
	return ctx.JSON(http.StatusCreated, grp)
}

func (api *groupApi) query(ctx echo.Context) error {
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

	filter := new(group.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []group.Group{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	res, err := api.deps.GroupSvc.Query(ctx.Request().Context(), sc, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying groups")
	}
	if res == nil {
		res = []group.Group{}
	}
	return ctx.JSON(http.StatusOK, res)
}

// getScopedGroup resolves the :id param through the caller's group scope:
// out-of-scope records are indistinguishable from absent ones.
func (api *groupApi) getScopedGroup(ctx echo.Context) (group.Group, user.User, error) {
	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return group.Group{}, user.User{}, errors.Wrap(err, "getting context user")
	}
	groups, err := institutionGroups(ctx, api.deps.GroupSvc, ctxUsr)
	if err != nil {
		return group.Group{}, user.User{}, errors.Wrap(err, "fetching institution groups")
	}
	sc, err := scope.Groups(ctxUsr, groups)
	if err != nil {
		return group.Group{}, user.User{}, err
	}

	grp, err := api.deps.GroupSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == group.ErrNotFound {
			return group.Group{}, user.User{}, errHttpNotFound
		}
		return group.Group{}, user.User{}, errors.Wrap(err, "finding group by ID")
	}
	if !sc.Matches(core.ScopeTarget{
		ID:            grp.ID,
		InstitutionID: grp.InstitutionID,
		SedeID:        grp.SedeID,
		OwnerID:       grp.TeacherID,
	}) {
		return group.Group{}, user.User{}, errHttpNotFound
	}
	return grp, ctxUsr, nil
}

func (api *groupApi) retrieve(ctx echo.Context) error {
	grp, _, err := api.getScopedGroup(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, grp)
}

func (api *groupApi) update(ctx echo.Context) error {
	grp, _, err := api.getScopedGroup(ctx)
	if err != nil {
		return err
	}

	var data group.UpdateGroup
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateGroup")
	}
	if err := data.Validate(grp, api.deps.Validate); err != nil {
		return err
	}

	grp, err = api.deps.GroupSvc.Update(ctx.Request().Context(), grp.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating group")
	}
	return ctx.JSON(http.StatusOK, grp)
}

// destroy deletes the group; membership goes with it, student records stay.
func (api *groupApi) destroy(ctx echo.Context) error {
	grp, _, err := api.getScopedGroup(ctx)
	if err != nil {
		return err
	}
	if err := api.deps.GroupSvc.Delete(ctx.Request().Context(), grp.ID); err != nil {
		return errors.Wrap(err, "deleting group")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *groupApi) assignTeacher(ctx echo.Context) error {
	grp, _, err := api.getScopedGroup(ctx)
	if err != nil {
		return err
	}

	var data AssignTeacherRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignTeacherRequest")
	}
	if err := api.deps.Validate.Struct(&data); err != nil {
		return err
	}

	teacher, err := api.deps.UserSvc.GetByID(ctx.Request().Context(), data.TeacherID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding user by ID")
	}

	grp, err = api.deps.GroupSvc.AssignTeacher(ctx.Request().Context(), grp.ID, teacher)
	if err != nil {
		switch errors.Cause(err) {
		case group.ErrNotATeacher, group.ErrWrongTenant:
			return core.NewValidationError(err, core.FieldError{Field: "teacher_id", Error: err.Error()})
		}
		return errors.Wrap(err, "assigning teacher")
	}
	return ctx.JSON(http.StatusOK, grp)
}

func (api *groupApi) unassignTeacher(ctx echo.Context) error {
	grp, _, err := api.getScopedGroup(ctx)
	if err != nil {
		return err
	}
	grp, err = api.deps.GroupSvc.UnassignTeacher(ctx.Request().Context(), grp.ID)
	if err != nil {
		return errors.Wrap(err, "unassigning teacher")
	}
	return ctx.JSON(http.StatusOK, grp)
}

func (api *groupApi) addStudents(ctx echo.Context) error {
	grp, _, err := api.getScopedGroup(ctx)
	if err != nil {
		return err
	}

	var data MembershipRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MembershipRequest")
	}
	if err := api.deps.Validate.Struct(&data); err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	students := make([]user.User, 0, len(data.StudentIDs))
	for _, id := range data.StudentIDs {
		student, err := api.deps.UserSvc.GetByID(rctx, id)
		if err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				return core.NewValidationError(err, core.FieldError{Field: "student_ids", Error: "unknown student " + id})
			}
			return errors.Wrap(err, "finding user by ID")
		}
		students = append(students, student)
	}

	grp, err = api.deps.GroupSvc.AddStudents(rctx, grp.ID, students...)
	if err != nil {
		switch errors.Cause(err) {
		case group.ErrNotAStudent, group.ErrWrongTenant:
			return core.NewValidationError(err, core.FieldError{Field: "student_ids", Error: err.Error()})
		}
		return errors.Wrap(err, "adding students")
	}
	return ctx.JSON(http.StatusOK, grp)
}

func (api *groupApi) removeStudents(ctx echo.Context) error {
	grp, _, err := api.getScopedGroup(ctx)
	if err != nil {
		return err
	}

	var data MembershipRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MembershipRequest")
	}
	if err := api.deps.Validate.Struct(&data); err != nil {
		return err
	}

	grp, err = api.deps.GroupSvc.RemoveStudents(ctx.Request().Context(), grp.ID, data.StudentIDs...)
	if err != nil {
		return errors.Wrap(err, "removing students")
	}
	return ctx.JSON(http.StatusOK, grp)
}

// Grades

// getGradedStudent checks the caller may see the student's grades through the
// group: the group's teacher, the sede's supervisor, an admin of the
// institution, or the student reading their own record.
func (api *groupApi) getGradedStudent(ctx echo.Context) (user.User, group.Group, error) {
	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return user.User{}, group.Group{}, errors.Wrap(err, "getting context user")
	}

	rctx := ctx.Request().Context()
	grp, err := api.deps.GroupSvc.GetByID(rctx, ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == group.ErrNotFound {
			return user.User{}, group.Group{}, errHttpNotFound
		}
		return user.User{}, group.Group{}, errors.Wrap(err, "finding group by ID")
	}
	if grp.InstitutionID != ctxUsr.InstitutionID {
		return user.User{}, group.Group{}, errHttpNotFound
	}

	sid := ctx.Param("sid")
	if !grp.HasStudent(sid) {
		return user.User{}, group.Group{}, errHttpNotFound
	}

	var allowed bool
	switch {
	case ctxUsr.IsAdmin():
		allowed = true
	case ctxUsr.IsSupervisor():
		allowed = ctxUsr.SedeID.Valid && grp.SedeID.Valid && ctxUsr.SedeID.String == grp.SedeID.String
	case ctxUsr.IsTeacher():
		allowed = grp.TeacherID.Valid && grp.TeacherID.String == ctxUsr.ID
	case ctxUsr.IsStudent():
		allowed = ctxUsr.ID == sid && ctx.Request().Method == http.MethodGet
	}
	if !allowed {
		return user.User{}, group.Group{}, errHttpForbidden
	}

	student, err := api.deps.UserSvc.GetByID(rctx, sid)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, group.Group{}, errHttpNotFound
		}
		return user.User{}, group.Group{}, errors.Wrap(err, "finding user by ID")
	}
	return student, grp, nil
}

func (api *groupApi) getGrades(ctx echo.Context) error {
	student, _, err := api.getGradedStudent(ctx)
	if err != nil {
		return err
	}
	grades := student.Grades
	if grades == nil {
		grades = map[int]grading.PartialScores{}
	}
	return ctx.JSON(http.StatusOK, grades)
}

func (api *groupApi) putGrades(ctx echo.Context) error {
	student, grp, err := api.getGradedStudent(ctx)
	if err != nil {
		return err
	}

	conf, err := api.deps.InstitutionSvc.GradingConfig(ctx.Request().Context(), grp.InstitutionID)
	if err != nil {
		return errors.Wrap(err, "loading grading config")
	}

	partial, err := strconv.Atoi(ctx.Param("partial"))
	if err != nil || partial < 1 || partial > conf.NumberOfPartials {
		return core.NewValidationError(nil, core.FieldError{Field: "partial", Error: "unknown grading period"})
	}

	var data grading.PartialScores
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PartialScores")
	}
	if len(data.Activities) > grading.MaxAccumulatedActivities {
		data.Activities = data.Activities[:grading.MaxAccumulatedActivities]
	}

	student, err = api.deps.UserSvc.SetPartialScores(ctx.Request().Context(), student, partial, data)
	if err != nil {
		return errors.Wrap(err, "recording partial scores")
	}
	return ctx.JSON(http.StatusOK, student.Grades)
}

type (
	PartialReport struct {
		Partial          int                   `json:"partial"`
		Scores           grading.PartialScores `json:"scores"`
		AccumulatedTotal null.Float64          `json:"accumulated_total"`
		PartialTotal     null.Float64          `json:"partial_total"`
	}

	GradeReport struct {
		StudentID      string                 `json:"student_id"`
		GroupID        string                 `json:"group_id"`
		Partials       []PartialReport        `json:"partials"`
		FinalGrade     null.Float64           `json:"final_grade"`
		Classification grading.Classification `json:"classification"`
	}

	AssignTeacherRequest struct {
		TeacherID string `json:"teacher_id" validate:"required"`
	}

	MembershipRequest struct {
		StudentIDs []string `json:"student_ids" validate:"required,min=1"`
	}
)

func (api *groupApi) gradeReport(ctx echo.Context) error {
	student, grp, err := api.getGradedStudent(ctx)
	if err != nil {
		return err
	}

	conf, err := api.deps.InstitutionSvc.GradingConfig(ctx.Request().Context(), grp.InstitutionID)
	if err != nil {
		return errors.Wrap(err, "loading grading config")
	}

	report := GradeReport{
		StudentID: student.ID,
		GroupID:   grp.ID,
		Partials:  make([]PartialReport, 0, conf.NumberOfPartials),
	}

	totals := grading.PartialTotals(student.Grades, conf)
	for i, total := range totals {
		partial := i + 1
		ps := student.Grades[partial]
		report.Partials = append(report.Partials, PartialReport{
			Partial:          partial,
			Scores:           ps,
			AccumulatedTotal: grading.AccumulatedTotal(ps.Activities, conf),
			PartialTotal:     total,
		})
	}
	report.FinalGrade = grading.FinalGrade(totals, conf)
	report.Classification = grading.Classify(report.FinalGrade, conf)

	return ctx.JSON(http.StatusOK, report)
}
