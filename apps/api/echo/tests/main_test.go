package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	echoapi "github.com/masomo/lms/apps/api/echo"
	"github.com/masomo/lms/core"
	"github.com/masomo/lms/core/department"
	"github.com/masomo/lms/core/report"
	"github.com/masomo/lms/core/user"
	emailsvc "github.com/masomo/lms/services/email"
	logsvc "github.com/masomo/lms/services/logger"
	inmemdb "github.com/masomo/lms/storage/database/inmem"
	testutil "github.com/masomo/lms/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testApp struct {
	conf      *core.Config
	server    *echoapi.Server
	usrRepo   user.Repository
	usrSvc    user.Service
	deptRepo  department.Repository
	reportSvc report.Service
	queue     *fakeEnqueuer
	mailSvc   *emailsvc.ConsoleServiceMock
	redis     *miniredis.Miniredis
}

func setup(t *testing.T) *testApp {
	t.Helper()
	conf := core.NewTestConfig()
	conf.Server.DisableReqLogs = true
	logger := logsvc.NopLogger{}
	validate, translator := testutil.NewValidator()

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	deptRepo := inmemdb.NewDepartmentRepository(db)

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	usrSvc := user.NewService(conf, logger, usrRepo, mailSvc)
	deptSvc := department.NewService(conf, logger, deptRepo)
	queue := new(fakeEnqueuer)
	reportSvc := report.NewService(
		conf, logger, inmemdb.NewReportJobRepository(db), queue,
		report.NewCSVGenerator(conf, deptSvc, usrSvc), deptSvc, usrSvc, mailSvc,
	)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	// set up server
	server := echoapi.NewServer(&echoapi.Deps{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		DB:         db,
		Redis:      rdb,
		UserSvc:    usrSvc,
		DeptSvc:    deptSvc,
		ReportSvc:  reportSvc,
	})

	return &testApp{
		conf:      conf,
		server:    server,
		usrRepo:   usrRepo,
		usrSvc:    usrSvc,
		deptRepo:  deptRepo,
		reportSvc: reportSvc,
		queue:     queue,
		mailSvc:   mailSvc,
		redis:     mr,
	}
}

type fakeEnqueuer struct {
	mu        sync.Mutex
	enqueued  []report.Job
	cancelled []report.Job
}

func (q *fakeEnqueuer) Enqueue(_ context.Context, job report.Job) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, job)
	return "task-" + job.ID, nil
}

func (q *fakeEnqueuer) Cancel(_ context.Context, job report.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled = append(q.cancelled, job)
	return nil
}

type httpErr struct {
	Error string `json:"error"`
}

type forbiddenErr struct {
	Error         string   `json:"error"`
	RequiredRoles []string `json:"required_roles"`
}

type page struct {
	Results    interface{}     `json:"results"`
	Pagination core.Pagination `json:"pagination"`
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

func (app *testApp) serve(tt httpTest) *httptest.ResponseRecorder {
	method := tt.method
	if method == "" {
		method = http.MethodGet
	}
	req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
	app.server.ServeHTTP(rec, req)
	return rec
}

func (app *testApp) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, app.serve(tt))
		})
	}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func (app *testApp) getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(app.conf, echoapi.GetUserClaims(app.conf, usr))
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func marchallPage(t *testing.T, total, pg, perPage int, objs interface{}) []byte {
	t.Helper()
	return marchallObj(t, page{Results: objs, Pagination: core.NewPagination(pg, perPage, total)})
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	wantCode := tt.wantCode
	if wantCode == 0 {
		wantCode = http.StatusOK
	}
	if rec.Code != wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
