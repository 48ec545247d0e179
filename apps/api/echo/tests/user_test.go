package tests

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/educonnect/backend/apps/api/echo"
	"github.com/educonnect/backend/core/user"
	emailsvc "github.com/educonnect/backend/services/email"
)

func Test_userApi_login(t *testing.T) {
	ta := setup(t)

	usr := createUser(t, ta.usrSvc, "Kim", "kim", "kim@test.cd", []string{user.RoleStudent})

	inactive := createUser(t, ta.usrSvc, "Gone", "gone", "gone@test.cd", []string{user.RoleStudent})
	no := false
	_, err := ta.usrSvc.Update(inactive.ID, user.UpdateUser{IsActive: &no})
	require.NoError(t, err)

	tests := []httpTest{
		{
			name: "Credentials required", method: http.MethodPost, path: "/v1/users/login",
			body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"username": "this field is required",
				"password": "this field is required",
			}),
		},
		{
			name: "Unknown user", method: http.MethodPost, path: "/v1/users/login",
			body:     marchallObj(t, echoapi.LoginRequest{Username: "nobody", Password: "Sup3rS3cret"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "Wrong password", method: http.MethodPost, path: "/v1/users/login",
			body:     marchallObj(t, echoapi.LoginRequest{Username: usr.Username, Password: "nope"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "Deactivated account", method: http.MethodPost, path: "/v1/users/login",
			body:     marchallObj(t, echoapi.LoginRequest{Username: inactive.Username, Password: "Sup3rS3cret"}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			ta.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("Login with username or email", func(t *testing.T) {
		for _, uname := range []string{usr.Username, usr.Email} {
			body := marchallObj(t, echoapi.LoginRequest{Username: uname, Password: "Sup3rS3cret"})
			req, rec := newRequest(http.MethodPost, "/v1/users/login", body)
			ta.app.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var res echoapi.LoginResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
			assert.NotEmpty(t, res.Token)

			// the token is accepted by authed endpoints
			req, rec = newAuthRequest(http.MethodGet, "/v1/users/"+usr.ID, res.Token)
			ta.app.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		}
	})
}

func Test_userApi_query(t *testing.T) {
	ta := setup(t)

	admin := createUser(t, ta.usrSvc, "Admin", "admin1", "admin@test.cd", []string{user.RoleAdmin})
	createUser(t, ta.usrSvc, "Kim Blue", "kim", "kim@test.cd", []string{user.RoleStudent})
	createUser(t, ta.usrSvc, "Don Or", "don", "don@test.cd", []string{user.RoleDonor})

	adminToken := getToken(t, admin)

	fetch := func(t *testing.T, path, token string) []user.User {
		t.Helper()
		req, rec := newAuthRequest(http.MethodGet, path, token)
		ta.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var users []user.User
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
		return users
	}

	t.Run("Admin required", func(t *testing.T) {
		usr, err := ta.usrSvc.GetByUsername("kim")
		require.NoError(t, err)
		req, rec := newAuthRequest(http.MethodGet, "/v1/users", getToken(t, usr))
		ta.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	})

	t.Run("All users", func(t *testing.T) {
		assert.Len(t, fetch(t, "/v1/users", adminToken), 3)
	})

	t.Run("Search", func(t *testing.T) {
		users := fetch(t, "/v1/users?search=kim", adminToken)
		require.Len(t, users, 1)
		assert.Equal(t, "kim", users[0].Username)
	})

	t.Run("By role", func(t *testing.T) {
		users := fetch(t, "/v1/users?role=donor", adminToken)
		require.Len(t, users, 1)
		assert.Equal(t, "don", users[0].Username)
	})
}

func Test_userApi_retrieve(t *testing.T) {
	ta := setup(t)

	admin := createUser(t, ta.usrSvc, "Admin", "admin1", "admin@test.cd", []string{user.RoleAdmin})
	usr := createUser(t, ta.usrSvc, "Kim", "kim", "kim@test.cd", []string{user.RoleStudent})
	other := createUser(t, ta.usrSvc, "Other", "other", "other@test.cd", []string{user.RoleStudent})

	tests := []httpTest{
		{
			name: "Self", method: http.MethodGet, path: "/v1/users/" + usr.ID, token: getToken(t, usr),
			wantCode: http.StatusOK, wantData: marchallObj(t, usr),
		},
		{
			name: "Someone else is hidden", method: http.MethodGet, path: "/v1/users/" + other.ID, token: getToken(t, usr),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "Admin sees anyone", method: http.MethodGet, path: "/v1/users/" + other.ID, token: getToken(t, admin),
			wantCode: http.StatusOK, wantData: marchallObj(t, other),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			ta.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_passwordReset(t *testing.T) {
	ta := setup(t)

	usr := createUser(t, ta.usrSvc, "Kim", "kim", "kim@test.cd", []string{user.RoleStudent})

	t.Run("Request sends a reset mail", func(t *testing.T) {
		sent := len(emailsvc.SentMessages)

		body := marchallObj(t, echoapi.PasswordResetRequest{Email: usr.Email})
		req, rec := newRequest(http.MethodPost, "/v1/users/password-reset", body)
		ta.app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Len(t, emailsvc.SentMessages, sent+1)
		msg := emailsvc.SentMessages[len(emailsvc.SentMessages)-1]
		assert.Equal(t, usr.Email, msg.To[0].Address)
		assert.True(t, strings.Contains(msg.BodyStr, "uid="))
	})

	t.Run("Unknown email gets the same answer", func(t *testing.T) {
		sent := len(emailsvc.SentMessages)

		body := marchallObj(t, echoapi.PasswordResetRequest{Email: "ghost@test.cd"})
		req, rec := newRequest(http.MethodPost, "/v1/users/password-reset", body)
		ta.app.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Len(t, emailsvc.SentMessages, sent)
	})

	t.Run("Confirm sets the new password", func(t *testing.T) {
		body := marchallObj(t, user.ResetUserPassword{
			UID:             user.EncodeUID(usr),
			Token:           user.MakeToken(usr),
			Password:        "N3wS3cret!",
			PasswordConfirm: "N3wS3cret!",
		})
		req, rec := newRequest(http.MethodPost, "/v1/users/password-reset-confirm", body)
		ta.app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		refreshed, err := ta.usrSvc.GetByID(usr.ID)
		require.NoError(t, err)
		assert.NoError(t, refreshed.CheckPassword("N3wS3cret!"))
	})

	t.Run("A used token is rejected", func(t *testing.T) {
		body := marchallObj(t, user.ResetUserPassword{
			UID:             user.EncodeUID(usr),
			Token:           user.MakeToken(usr),
			Password:        "An0therPwd!",
			PasswordConfirm: "An0therPwd!",
		})
		req, rec := newRequest(http.MethodPost, "/v1/users/password-reset-confirm", body)
		ta.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	})
}
