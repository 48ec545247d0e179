package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/educonnect/backend/apps/api/echo"
	"github.com/educonnect/backend/core"
	"github.com/educonnect/backend/core/donation"
	"github.com/educonnect/backend/core/notif"
	"github.com/educonnect/backend/core/payment"
	"github.com/educonnect/backend/core/request"
	"github.com/educonnect/backend/core/user"
	emailsvc "github.com/educonnect/backend/services/email"
	inmemdb "github.com/educonnect/backend/storage/database/inmem"
)

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}

	testCtx = context.Background()
)

type testApp struct {
	app Server

	usrSvc user.Service
	donSvc donation.Service
	reqSvc request.Service
	pmtSvc payment.Service
	broker *notif.Broker
}

func setup(t *testing.T) *testApp {
	t.Helper()

	// error bodies must keep their production shape
	core.Conf.Debug = false
	core.Conf.TestMode = true

	db, err := inmemdb.Open()
	require.NoError(t, err)

	mailSvc := emailsvc.NewConsoleServiceMock()
	broker := notif.NewBroker()
	usrSvc := user.NewServiceMock(inmemdb.NewUserRepository(db), mailSvc)
	reqSvc := request.NewService(inmemdb.NewRequestRepository(db), broker)
	pmtSvc := payment.NewService(inmemdb.NewPaymentRepository(db), usrSvc, broker, mailSvc)
	donSvc := donation.NewService(inmemdb.NewDonationRepository(db), reqSvc, usrSvc, broker, mailSvc)

	app := NewServer(
		&Options{
			DisableReqLogs: true,
			Logger:         quietLogger{},
			UserSvc:        usrSvc,
			DonationSvc:    donSvc,
			RequestSvc:     reqSvc,
			PaymentSvc:     pmtSvc,
			Broker:         broker,
		},
		make(chan os.Signal, 1),
	)

	return &testApp{
		app:    app,
		usrSvc: usrSvc,
		donSvc: donSvc,
		reqSvc: reqSvc,
		pmtSvc: pmtSvc,
		broker: broker,
	}
}

// quietLogger satisfies core.Logger without polluting test output.
type quietLogger struct{}

func (quietLogger) Enable(bool)                  {}
func (quietLogger) Debug(string, ...interface{}) {}
func (quietLogger) Info(string, ...interface{})  {}
func (quietLogger) Warn(string, ...interface{})  {}
func (quietLogger) Error(string, ...interface{}) {}
func (quietLogger) Fatal(string, ...interface{}) {}

func createUser(t *testing.T, svc user.Service, name, uname, email string, roles []string) user.User {
	t.Helper()
	usr, err := svc.Create(user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           email,
		Password:        "Sup3rS3cret",
		PasswordConfirm: "Sup3rS3cret",
		Roles:           roles,
	})
	require.NoError(t, err)
	return usr
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

func getToken(t *testing.T, usr user.User) string {
	claims := GetUserClaims(usr)
	token, err := GenerateToken(claims)
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

func marchallList(t *testing.T, objs ...interface{}) []byte {
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
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ObjectsAreEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
