package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/educonnect/backend/core/donation"
	"github.com/educonnect/backend/core/user"
)

func Test_donationApi_create(t *testing.T) {
	ta := setup(t)

	donor := createUser(t, ta.usrSvc, "Donor", "donor1", "donor@test.cd", []string{user.RoleDonor})
	student := createUser(t, ta.usrSvc, "Student", "student1", "student@test.cd", []string{user.RoleStudent})

	donorToken := getToken(t, donor)

	tests := []httpTest{
		{
			name: "Auth required", method: http.MethodPost, path: "/v1/donations",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "Donor required", method: http.MethodPost, path: "/v1/donations", token: getToken(t, student),
			body:     marchallObj(t, donation.NewDonation{Kind: donation.KindLaptop, Description: "Dell XPS"}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Kind and description required", method: http.MethodPost, path: "/v1/donations", token: donorToken,
			body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"kind":        "this field is required",
				"description": "this field is required",
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

	t.Run("Donor creates an available donation", func(t *testing.T) {
		body := marchallObj(t, donation.NewDonation{Kind: donation.KindLaptop, Description: "Dell XPS 13", Amount: 0})
		req, rec := newAuthRequest(http.MethodPost, "/v1/donations", donorToken, body)
		ta.app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var don donation.Donation
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &don))
		assert.NotEmpty(t, don.ID)
		assert.Equal(t, donor.ID, don.OwnerID)
		assert.Equal(t, donation.StatusAvailable, don.Status)
		assert.True(t, don.ExpiresAt.After(don.CreatedAt))
	})
}

func Test_donationApi_claim(t *testing.T) {
	ta := setup(t)

	donor := createUser(t, ta.usrSvc, "Donor", "donor1", "donor@test.cd", []string{user.RoleDonor})
	student := createUser(t, ta.usrSvc, "Student", "student1", "student@test.cd", []string{user.RoleStudent})
	rival := createUser(t, ta.usrSvc, "Rival", "student2", "rival@test.cd", []string{user.RoleStudent})

	don, err := ta.donSvc.Create(testCtx, donor.ID, donation.NewDonation{Kind: donation.KindBooks, Description: "Algebra set"}, "")
	require.NoError(t, err)

	studentToken := getToken(t, student)

	t.Run("Donor cannot claim", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/donations/"+don.ID+"/claim", getToken(t, donor))
		ta.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	})

	t.Run("First claim wins", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/donations/"+don.ID+"/claim", studentToken)
		ta.app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var claimed donation.Donation
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &claimed))
		assert.Equal(t, donation.StatusReserved, claimed.Status)
		assert.Equal(t, student.ID, claimed.ClaimantID)
	})

	t.Run("Second claim conflicts", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/donations/"+don.ID+"/claim", getToken(t, rival))
		ta.app.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
		// the reservation is untouched
		refetched, err := ta.donSvc.GetByID(testCtx, don.ID)
		require.NoError(t, err)
		assert.Equal(t, student.ID, refetched.ClaimantID)
	})

	t.Run("Claim on unknown donation", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/donations/nope/claim", studentToken)
		ta.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	})
}

func Test_donationApi_finalize(t *testing.T) {
	ta := setup(t)

	donor := createUser(t, ta.usrSvc, "Donor", "donor1", "donor@test.cd", []string{user.RoleDonor})
	other := createUser(t, ta.usrSvc, "Other", "donor2", "other@test.cd", []string{user.RoleDonor})
	student := createUser(t, ta.usrSvc, "Student", "student1", "student@test.cd", []string{user.RoleStudent})

	don, err := ta.donSvc.Create(testCtx, donor.ID, donation.NewDonation{Kind: donation.KindBag, Description: "School bag"}, "")
	require.NoError(t, err)

	t.Run("Cannot finalize an available donation", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/donations/"+don.ID+"/finalize", getToken(t, donor))
		ta.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	})

	_, err = ta.donSvc.Claim(testCtx, don.ID, student.ID)
	require.NoError(t, err)

	t.Run("Only the owner may finalize", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/donations/"+don.ID+"/finalize", getToken(t, other))
		ta.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	})

	t.Run("Owner finalizes the handover", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/donations/"+don.ID+"/finalize", getToken(t, donor))
		ta.app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var finalized donation.Donation
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &finalized))
		assert.Equal(t, donation.StatusFinalized, finalized.Status)
		assert.False(t, finalized.FinalizedAt.IsZero())
	})

	t.Run("Finalize is not replayable", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/donations/"+don.ID+"/finalize", getToken(t, donor))
		ta.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	})
}

func Test_donationApi_query(t *testing.T) {
	ta := setup(t)

	donor := createUser(t, ta.usrSvc, "Donor", "donor1", "donor@test.cd", []string{user.RoleDonor})
	student := createUser(t, ta.usrSvc, "Student", "student1", "student@test.cd", []string{user.RoleStudent})

	laptop, err := ta.donSvc.Create(testCtx, donor.ID, donation.NewDonation{Kind: donation.KindLaptop, Description: "Dell"}, "")
	require.NoError(t, err)
	books, err := ta.donSvc.Create(testCtx, donor.ID, donation.NewDonation{Kind: donation.KindBooks, Description: "Physics"}, "")
	require.NoError(t, err)
	_, err = ta.donSvc.Claim(testCtx, books.ID, student.ID)
	require.NoError(t, err)

	token := getToken(t, student)

	fetch := func(t *testing.T, path string) []donation.Donation {
		t.Helper()
		req, rec := newAuthRequest(http.MethodGet, path, token)
		ta.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var donations []donation.Donation
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &donations))
		return donations
	}

	t.Run("All donations", func(t *testing.T) {
		assert.Len(t, fetch(t, "/v1/donations"), 2)
	})
	t.Run("By status", func(t *testing.T) {
		donations := fetch(t, "/v1/donations?status=available")
		require.Len(t, donations, 1)
		assert.Equal(t, laptop.ID, donations[0].ID)
	})
	t.Run("By claimant", func(t *testing.T) {
		donations := fetch(t, "/v1/donations?claimant="+student.ID)
		require.Len(t, donations, 1)
		assert.Equal(t, books.ID, donations[0].ID)
	})
}
