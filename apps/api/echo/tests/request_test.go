package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/educonnect/backend/core/request"
	"github.com/educonnect/backend/core/user"
)

func Test_requestApi_create(t *testing.T) {
	ta := setup(t)

	student := createUser(t, ta.usrSvc, "Student", "student1", "student@test.cd", []string{user.RoleStudent})
	donor := createUser(t, ta.usrSvc, "Donor", "donor1", "donor@test.cd", []string{user.RoleDonor})

	studentToken := getToken(t, student)

	tests := []httpTest{
		{
			name: "Auth required", method: http.MethodPost, path: "/v1/requests",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "Student required", method: http.MethodPost, path: "/v1/requests", token: getToken(t, donor),
			body:     marchallObj(t, request.NewRequest{Kind: "books", Description: "Biology books", Urgency: request.UrgencyLow}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Unknown kind rejected", method: http.MethodPost, path: "/v1/requests", token: studentToken,
			body:     marchallObj(t, request.NewRequest{Kind: "spaceship", Description: "To the moon", Urgency: request.UrgencyLow}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"kind": "kind must be one of [laptop books fees bag shoes notes money other]",
			}),
		},
		{
			name: "Unknown urgency rejected", method: http.MethodPost, path: "/v1/requests", token: studentToken,
			body:     marchallObj(t, request.NewRequest{Kind: "books", Description: "Biology books", Urgency: "now"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"urgency": "urgency must be one of [low medium high critical]",
			}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			ta.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("Student creates a pending request", func(t *testing.T) {
		body := marchallObj(t, request.NewRequest{Kind: "fees", Description: "Term fees", Urgency: request.UrgencyHigh, Amount: 150})
		req, rec := newAuthRequest(http.MethodPost, "/v1/requests", studentToken, body)
		ta.app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var created request.Request
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
		assert.Equal(t, student.ID, created.OwnerID)
		assert.Equal(t, request.StatusPending, created.Status)
	})
}

func Test_requestApi_querySorting(t *testing.T) {
	ta := setup(t)

	student := createUser(t, ta.usrSvc, "Student", "student1", "student@test.cd", []string{user.RoleStudent})
	token := getToken(t, student)

	// creation order fixes the tie-break key
	newReq := func(kind, urgency string, amount int64) request.Request {
		req, err := ta.reqSvc.Create(testCtx, student.ID, request.NewRequest{
			Kind: kind, Description: kind + " needed", Urgency: urgency, Amount: amount,
		})
		require.NoError(t, err)
		return req
	}
	high := newReq("books", request.UrgencyHigh, 5)
	critical := newReq("fees", request.UrgencyCritical, 10)
	low1 := newReq("bag", request.UrgencyLow, 30)
	low2 := newReq("shoes", request.UrgencyLow, 30)

	fetch := func(t *testing.T, path string) []string {
		t.Helper()
		req, rec := newAuthRequest(http.MethodGet, path, token)
		ta.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var requests []request.Request
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &requests))
		ids := make([]string, 0, len(requests))
		for _, r := range requests {
			ids = append(ids, r.ID)
		}
		return ids
	}

	t.Run("Default order is oldest first", func(t *testing.T) {
		assert.Equal(t, []string{high.ID, critical.ID, low1.ID, low2.ID}, fetch(t, "/v1/requests"))
	})
	t.Run("Urgency outranks amount and age", func(t *testing.T) {
		assert.Equal(t, []string{critical.ID, high.ID, low1.ID, low2.ID}, fetch(t, "/v1/requests?sort=urgency"))
	})
	t.Run("Amount ties break on creation time", func(t *testing.T) {
		assert.Equal(t, []string{low1.ID, low2.ID, critical.ID, high.ID}, fetch(t, "/v1/requests?sort=amount"))
	})
	t.Run("Query is a pure read", func(t *testing.T) {
		first := fetch(t, "/v1/requests?sort=urgency")
		assert.Equal(t, first, fetch(t, "/v1/requests?sort=urgency"))
	})
}

func Test_requestApi_lifecycle(t *testing.T) {
	ta := setup(t)

	student := createUser(t, ta.usrSvc, "Student", "student1", "student@test.cd", []string{user.RoleStudent})
	other := createUser(t, ta.usrSvc, "Other", "student2", "other@test.cd", []string{user.RoleStudent})
	donor := createUser(t, ta.usrSvc, "Donor", "donor1", "donor@test.cd", []string{user.RoleDonor})

	req1, err := ta.reqSvc.Create(testCtx, student.ID, request.NewRequest{
		Kind: "laptop", Description: "Any working laptop", Urgency: request.UrgencyMedium,
	})
	require.NoError(t, err)

	donorToken := getToken(t, donor)

	t.Run("Donor starts a pending request", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/requests/"+req1.ID+"/start", donorToken)
		ta.app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var started request.Request
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
		assert.Equal(t, request.StatusInProgress, started.Status)
	})

	t.Run("Cancel only applies to pending", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/requests/"+req1.ID+"/cancel", getToken(t, student))
		ta.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	})

	t.Run("Donor fulfills an in-progress request", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/requests/"+req1.ID+"/fulfill", donorToken)
		ta.app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var fulfilled request.Request
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fulfilled))
		assert.Equal(t, request.StatusFulfilled, fulfilled.Status)
		assert.Equal(t, donor.ID, fulfilled.FulfillerID)
	})

	req2, err := ta.reqSvc.Create(testCtx, student.ID, request.NewRequest{
		Kind: "notes", Description: "Chemistry notes", Urgency: request.UrgencyLow,
	})
	require.NoError(t, err)

	t.Run("Only the owner may cancel", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/requests/"+req2.ID+"/cancel", getToken(t, other))
		ta.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	})

	t.Run("Owner cancels a pending request", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/requests/"+req2.ID+"/cancel", getToken(t, student))
		ta.app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var cancelled request.Request
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cancelled))
		assert.Equal(t, request.StatusCancelled, cancelled.Status)
	})
}
