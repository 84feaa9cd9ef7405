package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/volatiletech/null/v8"

	"github.com/dgarmol/academia/core/user"
)

func Test_userApi_queryStaff(t *testing.T) {
	env := initTestApp(t)

	inst := env.createInstitution(t, "Colegio Sol")
	other := env.createInstitution(t, "Liceo Luna")
	sedeA := env.createSede(t, inst.ID, "Centro")
	sedeB := env.createSede(t, inst.ID, "Norte")

	admin := env.createUser(t, "Admin", "admin1", "admin@sol.cd", "", user.RoleAdmin, inst.ID, null.String{}, true)
	supA := env.createUser(t, "Sup A", "supa01", "supa@sol.cd", "", user.RoleSupervisor, inst.ID, null.StringFrom(sedeA.ID), true)
	teachA := env.createUser(t, "Teach A", "teacha", "teacha@sol.cd", "", user.RoleTeacher, inst.ID, null.StringFrom(sedeA.ID), true)
	teachB := env.createUser(t, "Teach B", "teachb", "teachb@sol.cd", "", user.RoleTeacher, inst.ID, null.StringFrom(sedeB.ID), true)
	student := env.createUser(t, "Student", "studnt", "studnt@sol.cd", "", user.RoleStudent, inst.ID, null.String{}, true)
	caja := env.createUser(t, "Caja", "cajera", "caja@sol.cd", "", user.RoleCaja, inst.ID, null.String{}, true)
	lostSup := env.createUser(t, "Lost Sup", "lostsup", "lost@sol.cd", "", user.RoleSupervisor, inst.ID, null.String{}, true)
	env.createUser(t, "Outsider", "outsider", "out@luna.cd", "", user.RoleAdmin, other.ID, null.String{}, true)

	empty := marchallList(t)

	tests := []httpTest{
		{name: "anon is rejected", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "admin sees the whole institution", token: getToken(t, admin), wantCode: http.StatusOK,
			wantData: marchallList(t, admin, supA, teachA, teachB, student, caja, lostSup)},
		{name: "supervisor sees their sede only", token: getToken(t, supA), wantCode: http.StatusOK,
			wantData: marchallList(t, supA, teachA)},
		{name: "teacher sees nothing", token: getToken(t, teachA), wantCode: http.StatusOK, wantData: empty},
		{name: "caja sees nothing", token: getToken(t, caja), wantCode: http.StatusOK, wantData: empty},
		{name: "supervisor without sede is blocked", token: getToken(t, lostSup),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errNoSedeResp)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		tt.path = "/v1/users"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_queryStudents(t *testing.T) {
	env := initTestApp(t)

	inst := env.createInstitution(t, "Colegio Sol")
	sedeA := env.createSede(t, inst.ID, "Centro")
	sedeB := env.createSede(t, inst.ID, "Norte")

	admin := env.createUser(t, "Admin", "admin1", "admin@sol.cd", "", user.RoleAdmin, inst.ID, null.String{}, true)
	supA := env.createUser(t, "Sup A", "supa01", "supa@sol.cd", "", user.RoleSupervisor, inst.ID, null.StringFrom(sedeA.ID), true)
	teachA := env.createUser(t, "Teach A", "teacha", "teacha@sol.cd", "", user.RoleTeacher, inst.ID, null.StringFrom(sedeA.ID), true)
	caja := env.createUser(t, "Caja", "cajera", "caja@sol.cd", "", user.RoleCaja, inst.ID, null.String{}, true)
	s1 := env.createUser(t, "Alumno Uno", "alumno1", "a1@sol.cd", "", user.RoleStudent, inst.ID, null.String{}, true)
	s2 := env.createUser(t, "Alumno Dos", "alumno2", "a2@sol.cd", "", user.RoleStudent, inst.ID, null.String{}, true)
	s3 := env.createUser(t, "Alumno Tres", "alumno3", "a3@sol.cd", "", user.RoleStudent, inst.ID, null.String{}, true)

	env.createGroup(t, inst.ID, "Math A", null.StringFrom(sedeA.ID), null.StringFrom(teachA.ID), s1.ID)
	env.createGroup(t, inst.ID, "Math B", null.StringFrom(sedeB.ID), null.String{}, s2.ID)

	tests := []httpTest{
		{name: "admin sees every student", token: getToken(t, admin), wantCode: http.StatusOK,
			wantData: marchallList(t, s1, s2, s3)},
		{name: "supervisor sees their sede's members", token: getToken(t, supA), wantCode: http.StatusOK,
			wantData: marchallList(t, s1)},
		{name: "teacher sees their groups' members", token: getToken(t, teachA), wantCode: http.StatusOK,
			wantData: marchallList(t, s1)},
		{name: "student sees themselves", token: getToken(t, s1), wantCode: http.StatusOK,
			wantData: marchallList(t, s1)},
		{name: "caja sees nothing", token: getToken(t, caja), wantCode: http.StatusOK, wantData: marchallList(t)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		tt.path = "/v1/users/students"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_create(t *testing.T) {
	env := initTestApp(t)

	inst := env.createInstitution(t, "Colegio Sol")
	other := env.createInstitution(t, "Liceo Luna")
	sede := env.createSede(t, inst.ID, "Centro")
	admin := env.createUser(t, "Admin", "admin1", "admin@sol.cd", "", user.RoleAdmin, inst.ID, null.String{}, true)
	sup := env.createUser(t, "Sup", "superv", "sup@sol.cd", "", user.RoleSupervisor, inst.ID, null.StringFrom(sede.ID), true)
	student := env.createUser(t, "Student", "studnt", "studnt@sol.cd", "", user.RoleStudent, inst.ID, null.String{}, true)

	newUserBody := func(name, uname, email string, role user.Role, instID string) []byte {
		return marchallObj(t, user.NewUser{
			Name:            name,
			Username:        uname,
			Email:           email,
			Password:        "LePassword1!",
			PasswordConfirm: "LePassword1!",
			Role:            role,
			InstitutionID:   instID,
		})
	}

	tests := []httpTest{
		{name: "admin creates a teacher", token: getToken(t, admin), wantCode: http.StatusCreated,
			body: newUserBody("New Teacher", "teach9", "t9@sol.cd", user.RoleTeacher, "")},
		{name: "supervisor creates a student", token: getToken(t, sup), wantCode: http.StatusCreated,
			body: newUserBody("New Student", "alumno9", "a9@sol.cd", user.RoleStudent, inst.ID)},
		{name: "supervisor cannot create an admin", token: getToken(t, sup), wantCode: http.StatusBadRequest,
			body:     newUserBody("Evil Admin", "admin9", "evil@sol.cd", user.RoleAdmin, ""),
			wantData: marchallObj(t, map[string]string{"role": errNoPermsToSetRole})},
		{name: "cannot provision for another institution", token: getToken(t, admin), wantCode: http.StatusBadRequest,
			body:     newUserBody("Intruder", "intrud9", "in@luna.cd", user.RoleTeacher, other.ID),
			wantData: marchallObj(t, map[string]string{"institution_id": errWrongInstitution})},
		{name: "duplicate username is rejected", token: getToken(t, admin), wantCode: http.StatusBadRequest,
			body:     newUserBody("Clone", "studnt", "clone@sol.cd", user.RoleStudent, ""),
			wantData: marchallObj(t, map[string]string{"username": user.ErrUsernameExists.Error()})},
		{name: "student cannot register accounts", token: getToken(t, student), wantCode: http.StatusForbidden,
			body:     newUserBody("Nope", "nope01", "no@sol.cd", user.RoleStudent, ""),
			wantData: marchallObj(t, errForbiddenResp)},
		{name: "anon is rejected", wantCode: http.StatusUnauthorized,
			body:     newUserBody("Anon", "anon01", "an@sol.cd", user.RoleStudent, ""),
			wantData: marchallObj(t, errMissingToken)},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/register"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusCreated {
				var usr user.User
				if err := json.Unmarshal(rec.Body.Bytes(), &usr); err != nil {
					t.Fatalf("unmarshalling response failed: %v", err)
				}
				if usr.ID == "" {
					t.Error("created user has no ID")
				}
				if usr.InstitutionID != inst.ID {
					t.Errorf("institution = %v; want %v", usr.InstitutionID, inst.ID)
				}
			}
		})
	}
}

func Test_userApi_login(t *testing.T) {
	env := initTestApp(t)

	inst := env.createInstitution(t, "Colegio Sol")
	env.createUser(t, "Admin", "admin1", "admin@sol.cd", "LePassword1", user.RoleAdmin, inst.ID, null.String{}, true)
	env.createUser(t, "Ghost", "ghost1", "ghost@sol.cd", "LePassword1", user.RoleTeacher, inst.ID, null.String{}, false)

	tests := []httpTest{
		{name: "valid credentials", body: marchallObj(t, LoginRequest{Username: "admin1", Password: "LePassword1"}),
			wantCode: http.StatusOK},
		{name: "login by email", body: marchallObj(t, LoginRequest{Username: "admin@sol.cd", Password: "LePassword1"}),
			wantCode: http.StatusOK},
		{name: "wrong password", body: marchallObj(t, LoginRequest{Username: "admin1", Password: "nope"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"})},
		{name: "unknown user", body: marchallObj(t, LoginRequest{Username: "who", Password: "nope"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"})},
		{name: "deactivated account", body: marchallObj(t, LoginRequest{Username: "ghost1", Password: "LePassword1"}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/login"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				var resp LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatalf("unmarshalling response failed: %v", err)
				}
				if resp.Token == "" {
					t.Error("login returned an empty token")
				}
			}
		})
	}
}

func Test_userApi_retrieve(t *testing.T) {
	env := initTestApp(t)

	inst := env.createInstitution(t, "Colegio Sol")
	other := env.createInstitution(t, "Liceo Luna")
	admin := env.createUser(t, "Admin", "admin1", "admin@sol.cd", "", user.RoleAdmin, inst.ID, null.String{}, true)
	teach := env.createUser(t, "Teach", "teach1", "teach@sol.cd", "", user.RoleTeacher, inst.ID, null.String{}, true)
	student := env.createUser(t, "Student", "studnt", "studnt@sol.cd", "", user.RoleStudent, inst.ID, null.String{}, true)
	outsider := env.createUser(t, "Outsider", "outsider", "out@luna.cd", "", user.RoleTeacher, other.ID, null.String{}, true)

	tests := []httpTest{
		{name: "student reads themselves", path: "/v1/users/" + student.ID, token: getToken(t, student),
			wantCode: http.StatusOK, wantData: marchallObj(t, student)},
		{name: "student cannot read others", path: "/v1/users/" + teach.ID, token: getToken(t, student),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFoundResp)},
		{name: "admin reads anyone in the institution", path: "/v1/users/" + teach.ID, token: getToken(t, admin),
			wantCode: http.StatusOK, wantData: marchallObj(t, teach)},
		{name: "tenant boundary holds for admins too", path: "/v1/users/" + outsider.ID, token: getToken(t, admin),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFoundResp)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_update_permissions(t *testing.T) {
	env := initTestApp(t)

	inst := env.createInstitution(t, "Colegio Sol")
	admin := env.createUser(t, "Admin", "admin1", "admin@sol.cd", "", user.RoleAdmin, inst.ID, null.String{}, true)
	student := env.createUser(t, "Student", "studnt", "studnt@sol.cd", "", user.RoleStudent, inst.ID, null.String{}, true)

	inactive := false
	tests := []httpTest{
		{name: "student renames themselves", path: "/v1/users/" + student.ID, token: getToken(t, student),
			body: marchallObj(t, user.UpdateUser{Name: "Nuevo Nombre"}), wantCode: http.StatusOK},
		{name: "student cannot deactivate themselves", path: "/v1/users/" + student.ID, token: getToken(t, student),
			body:     marchallObj(t, user.UpdateUser{IsActive: &inactive}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbiddenResp)},
		{name: "student cannot change their role", path: "/v1/users/" + student.ID, token: getToken(t, student),
			body:     marchallObj(t, user.UpdateUser{Role: user.RoleAdmin}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbiddenResp)},
		{name: "admin deactivates an account", path: "/v1/users/" + student.ID, token: getToken(t, admin),
			body: marchallObj(t, user.UpdateUser{IsActive: &inactive}), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPut

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_detail_scoped(t *testing.T) {
	env := initTestApp(t)

	inst := env.createInstitution(t, "Colegio Sol")
	sedeA := env.createSede(t, inst.ID, "Centro")
	sedeB := env.createSede(t, inst.ID, "Norte")
	supA := env.createUser(t, "SupA", "superva", "supa@sol.cd", "", user.RoleSupervisor, inst.ID, null.StringFrom(sedeA.ID), true)
	teachA := env.createUser(t, "TeachA", "teacha", "ta@sol.cd", "", user.RoleTeacher, inst.ID, null.StringFrom(sedeA.ID), true)
	teachB := env.createUser(t, "TeachB", "teachb", "tb@sol.cd", "", user.RoleTeacher, inst.ID, null.StringFrom(sedeB.ID), true)
	studentA := env.createUser(t, "AlumnoA", "alumnoa", "aa@sol.cd", "", user.RoleStudent, inst.ID, null.String{}, true)
	studentB := env.createUser(t, "AlumnoB", "alumnob", "ab@sol.cd", "", user.RoleStudent, inst.ID, null.String{}, true)
	env.createGroup(t, inst.ID, "Math A", null.StringFrom(sedeA.ID), null.StringFrom(teachA.ID), studentA.ID)
	env.createGroup(t, inst.ID, "Math B", null.StringFrom(sedeB.ID), null.StringFrom(teachB.ID), studentB.ID)

	rename := marchallObj(t, user.UpdateUser{Name: "Hijacked"})
	newPwd := marchallObj(t, user.UpdateUser{Password: "LePassword1!", PasswordConfirm: "LePassword1!"})

	tests := []httpTest{
		{name: "supervisor reads own-sede staff", method: http.MethodGet, path: "/v1/users/" + teachA.ID,
			token: getToken(t, supA), wantCode: http.StatusOK, wantData: marchallObj(t, teachA)},
		{name: "supervisor reads their sede's students", method: http.MethodGet, path: "/v1/users/" + studentA.ID,
			token: getToken(t, supA), wantCode: http.StatusOK, wantData: marchallObj(t, studentA)},
		{name: "supervisor cannot read cross-sede staff", method: http.MethodGet, path: "/v1/users/" + teachB.ID,
			token: getToken(t, supA), wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFoundResp)},
		{name: "supervisor cannot read cross-sede students", method: http.MethodGet, path: "/v1/users/" + studentB.ID,
			token: getToken(t, supA), wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFoundResp)},
		{name: "supervisor cannot rename cross-sede staff", method: http.MethodPut, path: "/v1/users/" + teachB.ID,
			token: getToken(t, supA), body: rename,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFoundResp)},
		{name: "supervisor cannot overwrite a cross-sede password", method: http.MethodPut, path: "/v1/users/" + teachB.ID,
			token: getToken(t, supA), body: newPwd,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFoundResp)},
		{name: "supervisor renames own-sede staff", method: http.MethodPut, path: "/v1/users/" + teachA.ID,
			token: getToken(t, supA), body: rename, wantCode: http.StatusOK},
		{name: "teacher reads a taught student", method: http.MethodGet, path: "/v1/users/" + studentA.ID,
			token: getToken(t, teachA), wantCode: http.StatusOK, wantData: marchallObj(t, studentA)},
		{name: "teacher cannot read other staff", method: http.MethodGet, path: "/v1/users/" + teachB.ID,
			token: getToken(t, teachA), wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFoundResp)},
		{name: "teacher cannot write a taught student", method: http.MethodPut, path: "/v1/users/" + studentA.ID,
			token: getToken(t, teachA), body: rename,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbiddenResp)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("cross-sede record was left untouched", func(t *testing.T) {
		got, err := env.usrRepo.GetUserByID(context.Background(), teachB.ID)
		if err != nil {
			t.Fatalf("GetUserByID() failed: %v", err)
		}
		if got.Name != teachB.Name {
			t.Errorf("Name = %q; want %q", got.Name, teachB.Name)
		}
		if got.PasswordHash != nil {
			t.Error("password was overwritten")
		}
	})
}

func Test_userApi_destroy_cascades(t *testing.T) {
	env := initTestApp(t)
	ctx := context.Background()

	inst := env.createInstitution(t, "Colegio Sol")
	sede := env.createSede(t, inst.ID, "Centro")
	admin := env.createUser(t, "Admin", "admin1", "admin@sol.cd", "", user.RoleAdmin, inst.ID, null.String{}, true)
	sup := env.createUser(t, "Sup", "superv", "sup@sol.cd", "", user.RoleSupervisor, inst.ID, null.StringFrom(sede.ID), true)
	teach := env.createUser(t, "Teach", "teach1", "teach@sol.cd", "", user.RoleTeacher, inst.ID, null.StringFrom(sede.ID), true)
	s1 := env.createUser(t, "Alumno", "alumno1", "a1@sol.cd", "", user.RoleStudent, inst.ID, null.String{}, true)

	if _, err := env.deps.InstitutionSvc.AssignSupervisor(ctx, sede.ID, sup); err != nil {
		t.Fatalf("assigning supervisor failed: %v", err)
	}
	grp := env.createGroup(t, inst.ID, "Math A", null.StringFrom(sede.ID), null.StringFrom(teach.ID), s1.ID)

	run := func(t *testing.T, tt httpTest) {
		t.Helper()
		req, rec := newAuthRequest(tt.method, tt.path, tt.token)
		env.app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	}

	t.Run("self-deletion is refused", func(t *testing.T) {
		run(t, httpTest{method: http.MethodDelete, path: "/v1/users/" + admin.ID, token: getToken(t, admin),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbiddenResp)})
	})

	t.Run("supervisor cannot delete", func(t *testing.T) {
		run(t, httpTest{method: http.MethodDelete, path: "/v1/users/" + teach.ID, token: getToken(t, sup),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbiddenResp)})
	})

	t.Run("deleting a teacher unassigns their groups", func(t *testing.T) {
		run(t, httpTest{method: http.MethodDelete, path: "/v1/users/" + teach.ID, token: getToken(t, admin),
			wantCode: http.StatusNoContent})

		got, err := env.grpRepo.GetGroupByID(ctx, grp.ID)
		if err != nil {
			t.Fatalf("GetGroupByID() failed: %v", err)
		}
		if got.TeacherID.Valid {
			t.Errorf("group still has a teacher: %v", got.TeacherID.String)
		}
		if _, err = env.usrRepo.GetUserByID(ctx, teach.ID); err != user.ErrNotFound {
			t.Errorf("GetUserByID() error = %v; want %v", err, user.ErrNotFound)
		}
	})

	t.Run("deleting a student removes their memberships", func(t *testing.T) {
		run(t, httpTest{method: http.MethodDelete, path: "/v1/users/" + s1.ID, token: getToken(t, admin),
			wantCode: http.StatusNoContent})

		got, err := env.grpRepo.GetGroupByID(ctx, grp.ID)
		if err != nil {
			t.Fatalf("GetGroupByID() failed: %v", err)
		}
		if got.HasStudent(s1.ID) {
			t.Error("group still lists the deleted student")
		}
	})

	t.Run("deleting a supervisor frees their sede", func(t *testing.T) {
		run(t, httpTest{method: http.MethodDelete, path: "/v1/users/" + sup.ID, token: getToken(t, admin),
			wantCode: http.StatusNoContent})

		got, err := env.instRepo.GetSedeByID(ctx, sede.ID)
		if err != nil {
			t.Fatalf("GetSedeByID() failed: %v", err)
		}
		if got.SupervisorID.Valid {
			t.Errorf("sede still has a supervisor: %v", got.SupervisorID.String)
		}
	})
}

func Test_userApi_queryRoles(t *testing.T) {
	env := initTestApp(t)

	inst := env.createInstitution(t, "Colegio Sol")
	admin := env.createUser(t, "Admin", "admin1", "admin@sol.cd", "", user.RoleAdmin, inst.ID, null.String{}, true)
	student := env.createUser(t, "Student", "studnt", "studnt@sol.cd", "", user.RoleStudent, inst.ID, null.String{}, true)

	tests := []httpTest{
		{name: "staff lists roles", token: getToken(t, admin), wantCode: http.StatusOK,
			wantData: marchallObj(t, user.Roles)},
		{name: "student is refused", token: getToken(t, student), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbiddenResp)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		tt.path = "/v1/users/roles"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
