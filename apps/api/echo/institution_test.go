package echoapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/volatiletech/null/v8"

	"github.com/dgarmol/academia/core/grading"
	"github.com/dgarmol/academia/core/institution"
	"github.com/dgarmol/academia/core/user"
)

func Test_institutionApi_gradingConfig(t *testing.T) {
	env := initTestApp(t)

	inst := env.createInstitution(t, "Colegio Sol")
	other := env.createInstitution(t, "Liceo Luna")
	admin := env.createUser(t, "Admin", "admin1", "admin@sol.cd", "", user.RoleAdmin, inst.ID, null.String{}, true)
	student := env.createUser(t, "Student", "studnt", "studnt@sol.cd", "", user.RoleStudent, inst.ID, null.String{}, true)

	confPath := "/v1/institutions/" + inst.ID + "/grading-config"

	t.Run("defaults apply until configured", func(t *testing.T) {
		tt := httpTest{token: getToken(t, admin), wantCode: http.StatusOK,
			wantData: marchallObj(t, grading.DefaultConfig())}
		req, rec := newAuthRequest(http.MethodGet, confPath, tt.token)
		env.app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("another institution's config reads as absent", func(t *testing.T) {
		tt := httpTest{token: getToken(t, admin), wantCode: http.StatusNotFound,
			wantData: marchallObj(t, errNotFoundResp)}
		req, rec := newAuthRequest(http.MethodGet, "/v1/institutions/"+other.ID+"/grading-config", tt.token)
		env.app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("students cannot read it", func(t *testing.T) {
		tt := httpTest{token: getToken(t, student), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbiddenResp)}
		req, rec := newAuthRequest(http.MethodGet, confPath, tt.token)
		env.app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("admin reconfigures grading", func(t *testing.T) {
		body := marchallObj(t, institution.UpdateGradingConfig{
			NumberOfPartials: null.IntFrom(4),
			PassingGrade:     null.Float64From(60),
		})
		req, rec := newAuthRequest(http.MethodPut, confPath, getToken(t, admin), body)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body = %v", rec.Code, rec.Body.String())
		}

		want := grading.DefaultConfig()
		want.NumberOfPartials = 4
		want.PassingGrade = 60
		tt := httpTest{token: getToken(t, admin), wantCode: http.StatusOK, wantData: marchallObj(t, want)}
		req, rec = newAuthRequest(http.MethodGet, confPath, tt.token)
		env.app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("out-of-range settings are rejected", func(t *testing.T) {
		body := marchallObj(t, institution.UpdateGradingConfig{NumberOfPartials: null.IntFrom(9)})
		req, rec := newAuthRequest(http.MethodPut, confPath, getToken(t, admin), body)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("code = %v; want %v", rec.Code, http.StatusBadRequest)
		}
	})
}

func Test_institutionApi_querySedes(t *testing.T) {
	env := initTestApp(t)

	inst := env.createInstitution(t, "Colegio Sol")
	sedeA := env.createSede(t, inst.ID, "Centro")
	sedeB := env.createSede(t, inst.ID, "Norte")

	admin := env.createUser(t, "Admin", "admin1", "admin@sol.cd", "", user.RoleAdmin, inst.ID, null.String{}, true)
	supA := env.createUser(t, "Sup A", "supa01", "supa@sol.cd", "", user.RoleSupervisor, inst.ID, null.StringFrom(sedeA.ID), true)
	teach := env.createUser(t, "Teach", "teach1", "teach@sol.cd", "", user.RoleTeacher, inst.ID, null.StringFrom(sedeB.ID), true)

	tests := []httpTest{
		{name: "admin sees every sede", token: getToken(t, admin), wantCode: http.StatusOK,
			wantData: marchallList(t, sedeA, sedeB)},
		{name: "supervisor sees their own", token: getToken(t, supA), wantCode: http.StatusOK,
			wantData: marchallList(t, sedeA)},
		{name: "teacher sees nothing", token: getToken(t, teach), wantCode: http.StatusOK,
			wantData: marchallList(t)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		tt.path = "/v1/sedes"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_institutionApi_supervisorAssignment(t *testing.T) {
	env := initTestApp(t)
	ctx := context.Background()

	inst := env.createInstitution(t, "Colegio Sol")
	sedeA := env.createSede(t, inst.ID, "Centro")
	sedeB := env.createSede(t, inst.ID, "Norte")

	admin := env.createUser(t, "Admin", "admin1", "admin@sol.cd", "", user.RoleAdmin, inst.ID, null.String{}, true)
	sup := env.createUser(t, "Sup", "superv", "sup@sol.cd", "", user.RoleSupervisor, inst.ID, null.String{}, true)
	teach := env.createUser(t, "Teach", "teach1", "teach@sol.cd", "", user.RoleTeacher, inst.ID, null.String{}, true)

	token := getToken(t, admin)
	assign := func(t *testing.T, sedeID, supervisorID string) *http.Response {
		t.Helper()
		body := marchallObj(t, AssignSupervisorRequest{SupervisorID: supervisorID})
		req, rec := newAuthRequest(http.MethodPut, "/v1/sedes/"+sedeID+"/supervisor", token, body)
		env.app.ServeHTTP(rec, req)
		return rec.Result()
	}

	t.Run("assigns a supervisor", func(t *testing.T) {
		resp := assign(t, sedeA.ID, sup.ID)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("code = %v; want %v", resp.StatusCode, http.StatusOK)
		}

		got, err := env.instRepo.GetSedeByID(ctx, sedeA.ID)
		if err != nil {
			t.Fatalf("GetSedeByID() failed: %v", err)
		}
		if !got.SupervisorID.Valid || got.SupervisorID.String != sup.ID {
			t.Errorf("supervisor = %v; want %v", got.SupervisorID, sup.ID)
		}
		usr, err := env.usrRepo.GetUserByID(ctx, sup.ID)
		if err != nil {
			t.Fatalf("GetUserByID() failed: %v", err)
		}
		if !usr.SedeID.Valid || usr.SedeID.String != sedeA.ID {
			t.Errorf("supervisor's sede = %v; want %v", usr.SedeID, sedeA.ID)
		}
	})

	t.Run("re-assigning moves the supervisor", func(t *testing.T) {
		resp := assign(t, sedeB.ID, sup.ID)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("code = %v; want %v", resp.StatusCode, http.StatusOK)
		}

		freed, err := env.instRepo.GetSedeByID(ctx, sedeA.ID)
		if err != nil {
			t.Fatalf("GetSedeByID() failed: %v", err)
		}
		if freed.SupervisorID.Valid {
			t.Errorf("previous sede still has a supervisor: %v", freed.SupervisorID.String)
		}
		usr, err := env.usrRepo.GetUserByID(ctx, sup.ID)
		if err != nil {
			t.Fatalf("GetUserByID() failed: %v", err)
		}
		if !usr.SedeID.Valid || usr.SedeID.String != sedeB.ID {
			t.Errorf("supervisor's sede = %v; want %v", usr.SedeID, sedeB.ID)
		}
	})

	t.Run("only supervisors can be assigned", func(t *testing.T) {
		resp := assign(t, sedeA.ID, teach.ID)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("code = %v; want %v", resp.StatusCode, http.StatusBadRequest)
		}
	})

	t.Run("clearing frees both sides", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/sedes/"+sedeB.ID+"/supervisor", token)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("code = %v; want %v", rec.Code, http.StatusNoContent)
		}

		got, err := env.instRepo.GetSedeByID(ctx, sedeB.ID)
		if err != nil {
			t.Fatalf("GetSedeByID() failed: %v", err)
		}
		if got.SupervisorID.Valid {
			t.Errorf("sede still has a supervisor: %v", got.SupervisorID.String)
		}
		usr, err := env.usrRepo.GetUserByID(ctx, sup.ID)
		if err != nil {
			t.Fatalf("GetUserByID() failed: %v", err)
		}
		if usr.SedeID.Valid {
			t.Errorf("supervisor still points at a sede: %v", usr.SedeID.String)
		}
	})
}

func Test_institutionApi_destroySede(t *testing.T) {
	env := initTestApp(t)
	ctx := context.Background()

	inst := env.createInstitution(t, "Colegio Sol")
	sede := env.createSede(t, inst.ID, "Centro")
	admin := env.createUser(t, "Admin", "admin1", "admin@sol.cd", "", user.RoleAdmin, inst.ID, null.String{}, true)
	sup := env.createUser(t, "Sup", "superv", "sup@sol.cd", "", user.RoleSupervisor, inst.ID, null.String{}, true)

	if _, err := env.deps.InstitutionSvc.AssignSupervisor(ctx, sede.ID, sup); err != nil {
		t.Fatalf("assigning supervisor failed: %v", err)
	}
	grp := env.createGroup(t, inst.ID, "Math A", null.StringFrom(sede.ID), null.String{})

	req, rec := newAuthRequest(http.MethodDelete, "/v1/sedes/"+sede.ID, getToken(t, admin))
	env.app.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("code = %v; body = %v", rec.Code, rec.Body.String())
	}

	if _, err := env.instRepo.GetSedeByID(ctx, sede.ID); err != institution.ErrSedeNotFound {
		t.Errorf("GetSedeByID() error = %v; want %v", err, institution.ErrSedeNotFound)
	}
	got, err := env.grpRepo.GetGroupByID(ctx, grp.ID)
	if err != nil {
		t.Fatalf("GetGroupByID() failed: %v", err)
	}
	if got.SedeID.Valid {
		t.Errorf("group still points at the sede: %v", got.SedeID.String)
	}
	usr, err := env.usrRepo.GetUserByID(ctx, sup.ID)
	if err != nil {
		t.Fatalf("GetUserByID() failed: %v", err)
	}
	if usr.SedeID.Valid {
		t.Errorf("supervisor still points at the sede: %v", usr.SedeID.String)
	}
}

func Test_institutionApi_retrieve(t *testing.T) {
	env := initTestApp(t)

	inst := env.createInstitution(t, "Colegio Sol")
	other := env.createInstitution(t, "Liceo Luna")
	admin := env.createUser(t, "Admin", "admin1", "admin@sol.cd", "", user.RoleAdmin, inst.ID, null.String{}, true)
	sup := env.createUser(t, "Sup", "superv", "sup@sol.cd", "", user.RoleSupervisor, inst.ID, null.String{}, true)

	tests := []httpTest{
		{name: "admin reads their institution", path: "/v1/institutions/" + inst.ID, token: getToken(t, admin),
			wantCode: http.StatusOK, wantData: marchallObj(t, inst)},
		{name: "other institutions read as absent", path: "/v1/institutions/" + other.ID, token: getToken(t, admin),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFoundResp)},
		{name: "supervisors cannot read it", path: "/v1/institutions/" + inst.ID, token: getToken(t, sup),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbiddenResp)},
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
