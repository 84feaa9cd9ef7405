package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/volatiletech/null/v8"

	"github.com/dgarmol/academia/core"
	"github.com/dgarmol/academia/core/attendance"
	"github.com/dgarmol/academia/core/group"
	"github.com/dgarmol/academia/core/institution"
	"github.com/dgarmol/academia/core/user"
	emailsvc "github.com/dgarmol/academia/services/email"
	logsvc "github.com/dgarmol/academia/services/logger"
	dummydb "github.com/dgarmol/academia/storage/database/dummy"
)

var (
	testConf = &core.Config{
		TestMode:                  true,
		Env:                       "TEST",
		AppName:                   "Academia",
		SecretKey:                 "secret",
		FrontendBaseURL:           "http://localhost:3000",
		DefaultFromEmail:          mail.Address{Name: "Academia", Address: "noreply@localhost"},
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		Server: core.ServerConfig{
			Addr:                      ":0",
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
	}

	errMissingToken     = httpErr{Error: "missing or malformed jwt"}
	errForbiddenResp    = httpErr{Error: "permission denied"}
	errNotFoundResp     = httpErr{Error: "not found"}
	errNoSedeResp       = httpErr{Error: "account has no sede assigned"}
	errUnauthorizedResp = httpErr{Error: "user not authenticated"}
)

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

type testEnv struct {
	app  Server
	deps ServerDeps

	usrRepo  user.Repository
	instRepo institution.Repository
	grpRepo  group.Repository
	sessRepo attendance.Repository
}

func initTestApp(t *testing.T) *testEnv {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("initTestApp() failed: %v", err)
	}
	usrRepo := dummydb.NewUserRepository(db)
	instRepo := dummydb.NewInstitutionRepository(db)
	grpRepo := dummydb.NewGroupRepository(db)
	sessRepo := dummydb.NewSessionRepository(db)

	mailSvc := emailsvc.NewConsoleServiceMock(testConf)

	validate := validator.New()
	enLocale := en.New()
	translator, _ := ut.New(enLocale, enLocale).GetTranslator("en")
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "TEST : ", log.LstdFlags), testConf)
	logger.Enable(false)

	deps := ServerDeps{
		Conf:           testConf,
		Logger:         logger,
		UserSvc:        user.NewService(usrRepo, mailSvc, testConf),
		InstitutionSvc: institution.NewService(instRepo, usrRepo),
		GroupSvc:       group.NewService(grpRepo),
		AttendanceSvc:  attendance.NewService(sessRepo),
		Validate:       validate,
		Translator:     translator,
	}
	return &testEnv{
		app:      NewServer(deps),
		deps:     deps,
		usrRepo:  usrRepo,
		instRepo: instRepo,
		grpRepo:  grpRepo,
		sessRepo: sessRepo,
	}
}

func (env *testEnv) createInstitution(t *testing.T, name string) institution.Institution {
	t.Helper()
	now := time.Now().UTC()
	inst, err := env.instRepo.CreateInstitution(context.Background(), institution.Institution{
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("createInstitution() failed: %v", err)
	}
	return inst
}

func (env *testEnv) createSede(t *testing.T, instID, name string) institution.Sede {
	t.Helper()
	now := time.Now().UTC()
	sede, err := env.instRepo.CreateSede(context.Background(), institution.Sede{
		InstitutionID: instID,
		Name:          name,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		t.Fatalf("createSede() failed: %v", err)
	}
	return sede
}

func (env *testEnv) createUser(
	t *testing.T,
	name, uname, email, pwd string,
	role user.Role,
	instID string,
	sedeID null.String,
	isActive bool,
) user.User {
	t.Helper()
	now := time.Now().UTC()
	usr := user.User{
		Name:          name,
		Username:      uname,
		Email:         email,
		Role:          role,
		InstitutionID: instID,
		SedeID:        sedeID,
		IsActive:      &isActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := env.usrRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func (env *testEnv) createGroup(
	t *testing.T,
	instID, name string,
	sedeID, teacherID null.String,
	studentIDs ...string,
) group.Group {
	t.Helper()
	now := time.Now().UTC()
	grp, err := env.grpRepo.CreateGroup(context.Background(), group.Group{
		InstitutionID: instID,
		SedeID:        sedeID,
		TeacherID:     teacherID,
		Name:          name,
		StudentIDs:    studentIDs,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		t.Fatalf("createGroup() failed: %v", err)
	}
	return grp
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := GenerateToken(GetUserClaims(usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
