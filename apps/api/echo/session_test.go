package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/volatiletech/null/v8"

	"github.com/dgarmol/academia/core/attendance"
	"github.com/dgarmol/academia/core/user"
)

func Test_sessionApi_open(t *testing.T) {
	env := initTestApp(t)

	inst := env.createInstitution(t, "Colegio Sol")
	sedeA := env.createSede(t, inst.ID, "Centro")
	sedeB := env.createSede(t, inst.ID, "Norte")

	supA := env.createUser(t, "Sup A", "supa01", "supa@sol.cd", "", user.RoleSupervisor, inst.ID, null.StringFrom(sedeA.ID), true)
	teachA := env.createUser(t, "Teach A", "teacha", "teacha@sol.cd", "", user.RoleTeacher, inst.ID, null.StringFrom(sedeA.ID), true)
	s1 := env.createUser(t, "Alumno Uno", "alumno1", "a1@sol.cd", "", user.RoleStudent, inst.ID, null.String{}, true)

	grpA := env.createGroup(t, inst.ID, "Math A", null.StringFrom(sedeA.ID), null.StringFrom(teachA.ID), s1.ID)
	grpB := env.createGroup(t, inst.ID, "Math B", null.StringFrom(sedeB.ID), null.String{})

	unknownGroup := marchallObj(t, map[string]string{"group_id": "unknown group"})

	tests := []httpTest{
		{name: "the teacher opens their group's session", token: getToken(t, teachA), wantCode: http.StatusCreated,
			body: marchallObj(t, OpenSessionRequest{GroupID: grpA.ID})},
		{name: "the sede's supervisor can too", token: getToken(t, supA), wantCode: http.StatusCreated,
			body: marchallObj(t, OpenSessionRequest{GroupID: grpA.ID})},
		{name: "a teacher cannot open another group", token: getToken(t, teachA), wantCode: http.StatusBadRequest,
			body: marchallObj(t, OpenSessionRequest{GroupID: grpB.ID}), wantData: unknownGroup},
		{name: "unknown group", token: getToken(t, teachA), wantCode: http.StatusBadRequest,
			body: marchallObj(t, OpenSessionRequest{GroupID: "nope"}), wantData: unknownGroup},
		{name: "students cannot open sessions", token: getToken(t, s1), wantCode: http.StatusForbidden,
			body: marchallObj(t, OpenSessionRequest{GroupID: grpA.ID}), wantData: marchallObj(t, errForbiddenResp)},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/sessions"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusCreated {
				var s attendance.Session
				if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
					t.Fatalf("unmarshalling response failed: %v", err)
				}
				if s.GroupID != grpA.ID {
					t.Errorf("group = %v; want %v", s.GroupID, grpA.ID)
				}
				if s.Code == "" {
					t.Error("session has no code")
				}
				if s.IsClosed() {
					t.Error("session opened closed")
				}
			}
		})
	}
}

func Test_sessionApi_query(t *testing.T) {
	env := initTestApp(t)
	ctx := context.Background()

	inst := env.createInstitution(t, "Colegio Sol")
	sedeA := env.createSede(t, inst.ID, "Centro")
	sedeB := env.createSede(t, inst.ID, "Norte")

	admin := env.createUser(t, "Admin", "admin1", "admin@sol.cd", "", user.RoleAdmin, inst.ID, null.String{}, true)
	supA := env.createUser(t, "Sup A", "supa01", "supa@sol.cd", "", user.RoleSupervisor, inst.ID, null.StringFrom(sedeA.ID), true)
	teachA := env.createUser(t, "Teach A", "teacha", "teacha@sol.cd", "", user.RoleTeacher, inst.ID, null.StringFrom(sedeA.ID), true)
	caja := env.createUser(t, "Caja", "cajera", "caja@sol.cd", "", user.RoleCaja, inst.ID, null.String{}, true)
	s1 := env.createUser(t, "Alumno Uno", "alumno1", "a1@sol.cd", "", user.RoleStudent, inst.ID, null.String{}, true)

	grpA := env.createGroup(t, inst.ID, "Math A", null.StringFrom(sedeA.ID), null.StringFrom(teachA.ID), s1.ID)
	grpB := env.createGroup(t, inst.ID, "Math B", null.StringFrom(sedeB.ID), null.String{})

	sessA, err := env.deps.AttendanceSvc.Open(ctx, grpA, teachA)
	if err != nil {
		t.Fatalf("opening session failed: %v", err)
	}
	sessB, err := env.deps.AttendanceSvc.Open(ctx, grpB, admin)
	if err != nil {
		t.Fatalf("opening session failed: %v", err)
	}

	tests := []httpTest{
		{name: "admin sees every session", token: getToken(t, admin), wantCode: http.StatusOK,
			wantData: marchallList(t, sessA, sessB)},
		{name: "caja reads institution-wide", token: getToken(t, caja), wantCode: http.StatusOK,
			wantData: marchallList(t, sessA, sessB)},
		{name: "supervisor sees their sede", token: getToken(t, supA), wantCode: http.StatusOK,
			wantData: marchallList(t, sessA)},
		{name: "teacher sees their groups' sessions", token: getToken(t, teachA), wantCode: http.StatusOK,
			wantData: marchallList(t, sessA)},
		{name: "student sees their groups' sessions", token: getToken(t, s1), wantCode: http.StatusOK,
			wantData: marchallList(t, sessA)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		tt.path = "/v1/sessions"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_sessionApi_checkIn(t *testing.T) {
	env := initTestApp(t)
	ctx := context.Background()

	inst := env.createInstitution(t, "Colegio Sol")
	teachA := env.createUser(t, "Teach A", "teacha", "teacha@sol.cd", "", user.RoleTeacher, inst.ID, null.String{}, true)
	s1 := env.createUser(t, "Alumno Uno", "alumno1", "a1@sol.cd", "", user.RoleStudent, inst.ID, null.String{}, true)
	s2 := env.createUser(t, "Alumno Dos", "alumno2", "a2@sol.cd", "", user.RoleStudent, inst.ID, null.String{}, true)

	grpA := env.createGroup(t, inst.ID, "Math A", null.String{}, null.StringFrom(teachA.ID), s1.ID)

	sess, err := env.deps.AttendanceSvc.Open(ctx, grpA, teachA)
	if err != nil {
		t.Fatalf("opening session failed: %v", err)
	}
	path := "/v1/sessions/" + sess.ID + "/checkin"

	checkIn := func(t *testing.T, tt httpTest) attendance.Session {
		t.Helper()
		req, rec := newAuthRequest(http.MethodPost, path, tt.token, tt.body)
		env.app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)

		var s attendance.Session
		if rec.Code == http.StatusOK {
			if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
				t.Fatalf("unmarshalling response failed: %v", err)
			}
		}
		return s
	}

	t.Run("a member checks in with the scanned code", func(t *testing.T) {
		s := checkIn(t, httpTest{token: getToken(t, s1),
			body: marchallObj(t, CheckInRequest{Code: sess.Code}), wantCode: http.StatusOK})
		if len(s.CheckIns) != 1 || s.CheckIns[0].StudentID != s1.ID {
			t.Errorf("check_ins = %v; want one entry for %v", s.CheckIns, s1.ID)
		}
	})

	t.Run("checking in again is idempotent", func(t *testing.T) {
		s := checkIn(t, httpTest{token: getToken(t, s1),
			body: marchallObj(t, CheckInRequest{Code: sess.Code}), wantCode: http.StatusOK})
		if len(s.CheckIns) != 1 {
			t.Errorf("check_ins = %v; want a single entry", s.CheckIns)
		}
	})

	t.Run("a wrong code is rejected", func(t *testing.T) {
		checkIn(t, httpTest{token: getToken(t, s1),
			body:     marchallObj(t, CheckInRequest{Code: "nope"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"code": attendance.ErrInvalidCode.Error()})})
	})

	t.Run("non-members cannot see the session", func(t *testing.T) {
		checkIn(t, httpTest{token: getToken(t, s2),
			body:     marchallObj(t, CheckInRequest{Code: sess.Code}),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFoundResp)})
	})

	t.Run("teachers do not check in", func(t *testing.T) {
		checkIn(t, httpTest{token: getToken(t, teachA),
			body:     marchallObj(t, CheckInRequest{Code: sess.Code}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbiddenResp)})
	})

	t.Run("a closed session refuses check-ins", func(t *testing.T) {
		if _, err := env.deps.AttendanceSvc.Close(ctx, sess.ID); err != nil {
			t.Fatalf("closing session failed: %v", err)
		}
		checkIn(t, httpTest{token: getToken(t, s1),
			body:     marchallObj(t, CheckInRequest{Code: sess.Code}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"code": attendance.ErrSessionClosed.Error()})})
	})
}

func Test_sessionApi_close(t *testing.T) {
	env := initTestApp(t)
	ctx := context.Background()

	inst := env.createInstitution(t, "Colegio Sol")
	teachA := env.createUser(t, "Teach A", "teacha", "teacha@sol.cd", "", user.RoleTeacher, inst.ID, null.String{}, true)
	teachB := env.createUser(t, "Teach B", "teachb", "teachb@sol.cd", "", user.RoleTeacher, inst.ID, null.String{}, true)
	s1 := env.createUser(t, "Alumno Uno", "alumno1", "a1@sol.cd", "", user.RoleStudent, inst.ID, null.String{}, true)

	grpA := env.createGroup(t, inst.ID, "Math A", null.String{}, null.StringFrom(teachA.ID), s1.ID)
	sess, err := env.deps.AttendanceSvc.Open(ctx, grpA, teachA)
	if err != nil {
		t.Fatalf("opening session failed: %v", err)
	}
	path := "/v1/sessions/" + sess.ID + "/close"

	t.Run("another teacher cannot reach the session", func(t *testing.T) {
		tt := httpTest{token: getToken(t, teachB), wantCode: http.StatusNotFound,
			wantData: marchallObj(t, errNotFoundResp)}
		req, rec := newAuthRequest(http.MethodPut, path, tt.token)
		env.app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("members cannot close", func(t *testing.T) {
		tt := httpTest{token: getToken(t, s1), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbiddenResp)}
		req, rec := newAuthRequest(http.MethodPut, path, tt.token)
		env.app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("the group's teacher closes it", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, path, getToken(t, teachA))
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body = %v", rec.Code, rec.Body.String())
		}
		var s attendance.Session
		if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
			t.Fatalf("unmarshalling response failed: %v", err)
		}
		if !s.IsClosed() {
			t.Error("session is still open")
		}
	})

	t.Run("closing twice is a no-op", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, path, getToken(t, teachA))
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("code = %v; want %v", rec.Code, http.StatusOK)
		}
	})
}
