package regulator_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ssn-filing/regulator"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("test"))
	require.NoError(t, err)
	return tok
}

type fakeAPI struct {
	logins   atomic.Int32
	calls    atomic.Int32
	token    func() string
	resource http.HandlerFunc
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/login" {
		f.logins.Add(1)
		var creds map[string]string
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"bad credentials"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": f.token()})
		return
	}
	f.calls.Add(1)
	f.resource(w, r)
}

func newClient(t *testing.T, api *fakeAPI, password string) *regulator.Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	c, err := regulator.New(regulator.Config{
		BaseURL:    srv.URL,
		Username:   "user",
		Password:   password,
		Company:    "0744",
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	}, logger)
	require.NoError(t, err)
	return c
}

func TestClient_GetSendsTokenAndQuery(t *testing.T) {
	// GIVEN: a regulator issuing a token valid for an hour
	token := signedToken(t, time.Now().Add(time.Hour))
	api := &fakeAPI{token: func() string { return token }}
	api.resource = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, token, r.Header.Get("Token"))
		assert.Equal(t, "/inv/entregaSemanal", r.URL.Path)
		assert.Equal(t, "2025-10", r.URL.Query().Get("cronograma"))
		_, _ = w.Write([]byte(`{"estado":"CARGADO"}`))
	}
	c := newClient(t, api, "secret")

	// WHEN: two calls are made
	params := url.Values{"codigoCompania": {"0744"}, "cronograma": {"2025-10"}}
	resp := c.Get(context.Background(), "entregaSemanal", params)
	_ = c.Get(context.Background(), "entregaSemanal", params)

	// THEN: the body is decoded and the token is reused
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "CARGADO", resp.String("estado"))
	assert.EqualValues(t, 1, api.logins.Load())
}

func TestClient_RefreshesTokenCloseToExpiry(t *testing.T) {
	// GIVEN: tokens that expire inside the refresh margin
	api := &fakeAPI{token: func() string { return signedToken(t, time.Now().Add(time.Minute)) }}
	api.resource = func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{}`)) }
	c := newClient(t, api, "secret")

	// WHEN
	c.Get(context.Background(), "x", nil)
	c.Get(context.Background(), "x", nil)

	// THEN: every call logs in again
	assert.EqualValues(t, 2, api.logins.Load())
}

func TestClient_ReplaysOnceAfter401(t *testing.T) {
	// GIVEN: the first resource call is rejected
	token := signedToken(t, time.Now().Add(time.Hour))
	api := &fakeAPI{token: func() string { return token }}
	api.resource = func(w http.ResponseWriter, r *http.Request) {
		if api.calls.Load() == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}
	c := newClient(t, api, "secret")

	// WHEN
	resp := c.Post(context.Background(), "entregaSemanal", map[string]string{"a": "b"})

	// THEN: one re-login and one replay
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.EqualValues(t, 2, api.logins.Load())
	assert.EqualValues(t, 2, api.calls.Load())
}

func TestClient_Persistent401IsReturned(t *testing.T) {
	token := signedToken(t, time.Now().Add(time.Hour))
	api := &fakeAPI{token: func() string { return token }}
	api.resource = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"token inválido"}`))
	}
	c := newClient(t, api, "secret")

	resp := c.Get(context.Background(), "x", nil)

	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.Equal(t, "token inválido", resp.String("error"))
	assert.EqualValues(t, 2, api.calls.Load())
}

func TestClient_LoginFailureIsAuthError(t *testing.T) {
	api := &fakeAPI{token: func() string { return "unused" }}
	api.resource = func(w http.ResponseWriter, r *http.Request) { t.Error("resource must not be called") }
	c := newClient(t, api, "wrong")

	resp := c.Get(context.Background(), "x", nil)

	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.Equal(t, "Error de autenticación", resp.String("error"))
}

func TestClient_HTTPErrorsAreNotRetried(t *testing.T) {
	token := signedToken(t, time.Now().Add(time.Hour))
	api := &fakeAPI{token: func() string { return token }}
	api.resource = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("<html>boom</html>"))
	}
	c := newClient(t, api, "secret")

	resp := c.Get(context.Background(), "x", nil)

	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.True(t, resp.IsError())
	assert.Equal(t, "<html>boom</html>", resp.String("error"))
	assert.EqualValues(t, 1, api.calls.Load())
}

func TestClient_EmptyBody(t *testing.T) {
	token := signedToken(t, time.Now().Add(time.Hour))
	api := &fakeAPI{token: func() string { return token }}
	api.resource = func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }
	c := newClient(t, api, "secret")

	resp := c.Put(context.Background(), "rectificarEntregaSemanal", map[string]string{})

	assert.Equal(t, http.StatusNoContent, resp.Status)
	assert.Equal(t, "Sin contenido", resp.String("error"))
}

func TestClient_TransportFailuresExhaustRetries(t *testing.T) {
	// GIVEN: the resource endpoint drops every connection
	token := signedToken(t, time.Now().Add(time.Hour))
	api := &fakeAPI{token: func() string { return token }}
	api.resource = func(w http.ResponseWriter, r *http.Request) {
		conn, _, err := w.(http.Hijacker).Hijack()
		require.NoError(t, err)
		_ = conn.Close()
	}
	c := newClient(t, api, "secret")

	// WHEN
	resp := c.Post(context.Background(), "entregaSemanal", map[string]string{})

	// THEN: a synthetic 503 after MaxRetries attempts
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
	assert.Contains(t, resp.String("error"), "Se agotaron los 3 reintentos")
	assert.EqualValues(t, 3, api.calls.Load())
}
