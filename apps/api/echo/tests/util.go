package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/bursar/apps/api/echo"
	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/fees"
	"github.com/trezcool/bursar/tests"
)

const secretKey = "secret"

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}

	bursar    = core.Caller{ID: "usr-0001", Username: "bursar", Email: "bursar@school.test"}
	principal = core.Caller{ID: "usr-0002", Username: "principal", Email: "principal@school.test"}
	teacher   = core.Caller{ID: "usr-0003", Username: "teacher", Email: "teacher@school.test"}
)

// setup returns a server backed by in-memory repositories holding the fixtures students
// and the 2025 Term 2 fee schedules.
func setup(t *testing.T) (*Server, *testutil.Env) {
	env := testutil.NewInMemEnv(t)
	for _, std := range []fees.Student{testutil.BennyBosha, testutil.AminaJuma, testutil.KofiMensah} {
		env.Students.AddStudent(std)
	}
	testutil.SetFee(t, env.Schedules, "Secondary", "2025", "Term 2", "100")
	testutil.SetFee(t, env.Schedules, "Primary", "2025", "Term 2", "50")

	env.Conf.TestMode = true
	env.Conf.SecretKey = secretKey
	env.Conf.Server.JWTAudience = "Bursary"
	env.Conf.Server.JWTIssuer = "Bursar"

	server := NewServer(ServerDeps{
		Conf:       env.Conf,
		Logger:     env.Logger,
		FeeSvc:     env.Svc,
		Validate:   env.Validate,
		Translator: env.Translator,
	})
	return server, env
}

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
	extra    interface{}
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

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, conf *core.Config, caller core.Caller, roles ...string) string {
	token, err := GenerateToken(NewClaims(conf, caller, time.Hour, roles...), secretKey)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
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
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
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
