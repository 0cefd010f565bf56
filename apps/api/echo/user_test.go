package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/classdrive/apps/api/echo"
	"github.com/trezcool/classdrive/core"
	"github.com/trezcool/classdrive/core/user"
)

func Test_userApi_login(t *testing.T) {
	f := setup(t)
	path := "/v1/auth/login"

	tests := []httpTest{
		{
			name: "missing fields", method: http.MethodPost, path: path, body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"username": "this field is required", "password": "this field is required"}),
		},
		{
			name: "wrong password", method: http.MethodPost, path: path, wantCode: http.StatusBadRequest,
			body:     marshalObj(t, echoapi.LoginRequest{Username: "amy", Password: "wrong"}),
			wantData: marshalObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "unknown user", method: http.MethodPost, path: path, wantCode: http.StatusBadRequest,
			body:     marshalObj(t, echoapi.LoginRequest{Username: "clara", Password: studentPwd}),
			wantData: marshalObj(t, httpErr{Error: "authentication failed"}),
		},
		{name: "malformed body", method: http.MethodPost, path: path, body: []byte(`{`), wantCode: http.StatusBadRequest},
	}
	runHTTPTests(t, f, tests)

	t.Run("success", func(t *testing.T) {
		rec := f.serve(newRequest(http.MethodPost, path, marshalObj(t, echoapi.LoginRequest{Username: " teacher ", Password: teacherPwd})))
		require.Equal(t, http.StatusOK, rec.Code)
		var resp echoapi.LoginResponse
		decode(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, core.Identity{Username: "teacher", Role: core.RoleTeacher, FullName: "Administrator"}, resp.Identity)
	})
}

func Test_userApi_session(t *testing.T) {
	f := setup(t)
	token := f.login(t, "amy", studentPwd)
	me := marshalObj(t, echoapi.MeResponse{Identity: core.Identity{Username: "amy", Role: core.RoleStudent, FullName: "Amy Pond"}})

	runHTTPTests(t, f, []httpTest{
		{name: "no token", path: "/v1/auth/me", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "unknown token", path: "/v1/auth/me", token: "nope", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "bearer token", path: "/v1/auth/me", token: token, wantCode: http.StatusOK, wantData: me},
		{name: "query token", path: "/v1/auth/me?token=" + token, wantCode: http.StatusOK, wantData: me},
	})

	t.Run("a new login closes the previous session", func(t *testing.T) {
		newToken := f.login(t, "amy", studentPwd)
		rec := f.serve(newAuthRequest(http.MethodGet, "/v1/auth/me", token))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		token = newToken
	})

	t.Run("logout", func(t *testing.T) {
		rec := f.serve(newAuthRequest(http.MethodPost, "/v1/auth/logout", token))
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = f.serve(newAuthRequest(http.MethodGet, "/v1/auth/me", token))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func Test_userApi_register(t *testing.T) {
	f := setup(t)
	path := "/v1/auth/register"
	newAccount := func(username, pwd string) []byte {
		return marshalObj(t, user.NewAccount{Username: username, FullName: "Clara Oswald", Password: pwd, PasswordConfirm: pwd})
	}

	runHTTPTests(t, f, []httpTest{
		{
			name: "created", method: http.MethodPost, path: path, body: newAccount("clara", studentPwd), wantCode: http.StatusCreated,
			wantData: marshalObj(t, core.Identity{Username: "clara", Role: core.RoleStudent, FullName: "Clara Oswald"}),
		},
		{
			name: "duplicate", method: http.MethodPost, path: path, body: newAccount("clara", studentPwd), wantCode: http.StatusConflict,
			wantData: marshalObj(t, httpErr{Error: core.ErrDuplicateName.Error()}),
		},
		{
			name: "teacher name taken", method: http.MethodPost, path: path, body: newAccount("teacher", studentPwd), wantCode: http.StatusConflict,
		},
		{
			name: "weak password", method: http.MethodPost, path: path, body: newAccount("oswin", "short1"), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"password": "password must contain at least 8 characters"}),
		},
	})

	f.login(t, "clara", studentPwd)
}

func Test_userApi_changePassword(t *testing.T) {
	f := setup(t)
	token := f.login(t, "amy", studentPwd)
	newPwd := "n3wSecret!"

	rec := f.serve(newAuthRequest(http.MethodPut, "/v1/auth/password", token, marshalObj(t, user.PasswordChange{Password: "x", PasswordConfirm: "y"})))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.serve(newAuthRequest(http.MethodPut, "/v1/auth/password", token, marshalObj(t, user.PasswordChange{Password: newPwd, PasswordConfirm: newPwd})))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.serve(newAuthRequest(http.MethodGet, "/v1/auth/me", token))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "session closed after a password change")
	f.login(t, "amy", newPwd)
}

func Test_userApi_resetPassword(t *testing.T) {
	f := setup(t)
	path := "/v1/auth/password-reset"

	runHTTPTests(t, f, []httpTest{
		{
			name: "full name mismatch", method: http.MethodPost, path: path, wantCode: http.StatusNotFound,
			body: marshalObj(t, user.DefaultPasswordReset{Username: "amy", FullName: "Rory Williams"}),
		},
		{
			name: "teachers cannot be reset", method: http.MethodPost, path: path, wantCode: http.StatusNotFound,
			body: marshalObj(t, user.DefaultPasswordReset{Username: "teacher", FullName: "Administrator"}),
		},
		{
			name: "full name case differs", method: http.MethodPost, path: path, wantCode: http.StatusNotFound,
			body: marshalObj(t, user.DefaultPasswordReset{Username: "amy", FullName: "amy pond"}),
		},
		{
			name: "reset", method: http.MethodPost, path: path, wantCode: http.StatusOK,
			body: marshalObj(t, user.DefaultPasswordReset{Username: "amy", FullName: " Amy Pond"}),
		},
	})

	token := f.login(t, "amy", defaultPwd)
	rec := f.serve(newAuthRequest(http.MethodGet, "/v1/auth/me", token))
	require.Equal(t, http.StatusOK, rec.Code)
	var me echoapi.MeResponse
	decode(t, rec, &me)
	assert.True(t, me.UsesDefaultPassword)
}

func Test_userApi_resetToken(t *testing.T) {
	f := setup(t)
	teacherToken := f.login(t, "teacher", teacherPwd)
	amyToken := f.login(t, "amy", studentPwd)

	runHTTPTests(t, f, []httpTest{
		{
			name: "teacher only", method: http.MethodPost, path: "/v1/accounts/rory/reset-token", token: amyToken,
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "unknown account", method: http.MethodPost, path: "/v1/accounts/clara/reset-token", token: teacherToken, wantCode: http.StatusNotFound},
	})

	rec := f.serve(newAuthRequest(http.MethodPost, "/v1/accounts/amy/reset-token", teacherToken))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp echoapi.ResetTokenResponse
	decode(t, rec, &resp)
	require.NotEmpty(t, resp.Token)

	newPwd := "r3setSecret"
	confirm := func(token string) int {
		body := marshalObj(t, user.ResetPassword{Username: "amy", Token: token, Password: newPwd, PasswordConfirm: newPwd})
		return f.serve(newRequest(http.MethodPost, "/v1/auth/password-reset-confirm", body)).Code
	}
	assert.Equal(t, http.StatusBadRequest, confirm("bogus-token"))
	assert.Equal(t, http.StatusOK, confirm(resp.Token))
	assert.Equal(t, http.StatusBadRequest, confirm(resp.Token), "tokens are single use")

	assert.Equal(t, http.StatusUnauthorized, f.serve(newAuthRequest(http.MethodGet, "/v1/auth/me", amyToken)).Code)
	f.login(t, "amy", newPwd)
}
