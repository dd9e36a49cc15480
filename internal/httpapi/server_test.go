package httpapi

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todoService/internal/auth"
	"todoService/internal/testutil"
	"todoService/internal/todo"
	"todoService/models"
	"todoService/repository"
)

type testAPI struct {
	t       *testing.T
	db      *sql.DB
	handler http.Handler
	metrics *Metrics
}

func newTestAPI(t *testing.T, name string, ownerScoped bool) *testAPI {
	t.Helper()
	d := testutil.OpenInMemoryDB(t, name)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	tokens := auth.NewTokenService([]byte("http-secret"), 0)
	svc := todo.NewService(repository.NewUserRepository(d), repository.NewItemRepository(d), tokens,
		todo.Options{OwnerScopedMutations: ownerScoped, Logger: logger})
	metrics := NewMetrics(prometheus.NewRegistry())
	return &testAPI{t: t, db: d, handler: NewServer(svc, tokens, logger, metrics), metrics: metrics}
}

func (a *testAPI) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

// signup registers and logs in a user, returning its token.
func (a *testAPI) signup(username string) string {
	a.t.Helper()
	creds := map[string]string{"username": username, "passwordHash": "hash-" + username}
	rec := a.do(http.MethodPost, "/register", creds, "")
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
	rec = a.do(http.MethodPost, "/login", creds, "")
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
	var resp loginResponse
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(a.t, resp.Token)
	return resp.Token
}

func (a *testAPI) listItems(token string) []models.Item {
	a.t.Helper()
	rec := a.do(http.MethodGet, "/items", nil, token)
	require.Equal(a.t, http.StatusOK, rec.Code)
	var items []models.Item
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &items))
	return items
}

func (a *testAPI) createItem(token, name string) models.Item {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/items", map[string]any{"name": name, "completed": false}, token)
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	var it models.Item
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &it))
	return it
}

func TestRegister(t *testing.T) {
	api := newTestAPI(t, "httpregister", false)

	rec := api.do(http.MethodPost, "/register", map[string]string{"username": "alice", "passwordHash": "h"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodPost, "/register", map[string]string{"username": "alice", "passwordHash": "h2"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `"User already exists"`, rec.Body.String())

	rec = api.do(http.MethodPost, "/register", map[string]string{"username": "bob", "passwordHash": "h"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodPost, "/register", map[string]string{"username": "", "passwordHash": "h"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewBufferString("{not json"))
	rw := httptest.NewRecorder()
	api.handler.ServeHTTP(rw, req)
	assert.Equal(t, http.StatusBadRequest, rw.Code)
}

func TestLogin(t *testing.T) {
	api := newTestAPI(t, "httplogin", false)
	api.signup("carol")

	rec := api.do(http.MethodPost, "/login", map[string]string{"username": "carol", "passwordHash": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = api.do(http.MethodPost, "/login", map[string]string{"username": "nobody", "passwordHash": "x"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api := newTestAPI(t, "httpprotected", false)

	cases := []struct{ method, path string }{
		{http.MethodGet, "/items"},
		{http.MethodPost, "/items"},
		{http.MethodPut, "/items/1"},
		{http.MethodDelete, "/items/1"},
		{http.MethodGet, "/"},
		{http.MethodGet, "/items/1/anything"},
		{http.MethodGet, "/does-not-exist"},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := api.do(tc.method, tc.path, nil, "")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Empty(t, rec.Body.String())
		})
	}

	rec := api.do(http.MethodGet, "/items", nil, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Body.String())

	assert.Equal(t, float64(len(cases)), promtest.ToFloat64(api.metrics.AuthFailures.WithLabelValues(auth.ReasonMissing)))
	assert.Equal(t, float64(1), promtest.ToFloat64(api.metrics.AuthFailures.WithLabelValues(auth.ReasonInvalid)))
}

func TestRoot(t *testing.T) {
	api := newTestAPI(t, "httproot", false)
	tok := api.signup("root")
	rec := api.do(http.MethodGet, "/", nil, tok)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ToDo API is running.", rec.Body.String())
}

func TestCreateThenList_RoundTrip(t *testing.T) {
	api := newTestAPI(t, "httproundtrip", false)
	tok := api.signup("dave")

	rec := api.do(http.MethodPost, "/items", map[string]any{"name": "x", "completed": false, "ownerId": 999}, tok)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "/items/"+strconv.FormatInt(created.ID, 10), rec.Header().Get("Location"))

	items := api.listItems(tok)
	require.Len(t, items, 1)
	assert.Equal(t, "x", items[0].Name)
	assert.False(t, items[0].Completed)
	assert.Equal(t, created.OwnerID, items[0].OwnerID)
	assert.NotEqual(t, int64(999), items[0].OwnerID)

	// The owner id matches the identity carried by the token.
	claims, err := auth.NewTokenService([]byte("http-secret"), 0).Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, claims.UserID, items[0].OwnerID)
}

func TestListIsScopedToOwner(t *testing.T) {
	api := newTestAPI(t, "httpscope", false)
	a := api.signup("a")
	b := api.signup("b")

	api.createItem(a, "a's item")
	assert.Len(t, api.listItems(a), 1)
	assert.Empty(t, api.listItems(b))
}

// Update and delete are addressed by id only; any authenticated user can
// mutate another user's item unless owner scoping is enabled.
func TestUpdateDeleteNotOwnerScopedByDefault(t *testing.T) {
	api := newTestAPI(t, "httpunscoped", false)
	a := api.signup("a")
	b := api.signup("b")
	it := api.createItem(a, "a's item")
	path := "/items/" + strconv.FormatInt(it.ID, 10)

	rec := api.do(http.MethodPut, path, map[string]any{"name": "changed by b", "completed": true}, b)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated models.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "changed by b", updated.Name)
	assert.True(t, updated.Completed)
	assert.Equal(t, it.OwnerID, updated.OwnerID)

	rec = api.do(http.MethodDelete, path, nil, b)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, api.listItems(a))
}

// PUT replaces the whole item: a field left out of the body is reset.
func TestUpdateReplacesBothFields(t *testing.T) {
	api := newTestAPI(t, "httpreplace", false)
	tok := api.signup("dana")
	it := api.createItem(tok, "original")
	path := "/items/" + strconv.FormatInt(it.ID, 10)

	rec := api.do(http.MethodPut, path, map[string]any{"completed": true}, tok)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated models.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "", updated.Name)
	assert.True(t, updated.Completed)

	rec = api.do(http.MethodPut, path, map[string]any{"name": "renamed"}, tok)
	require.Equal(t, http.StatusOK, rec.Code)
	items := api.listItems(tok)
	require.Len(t, items, 1)
	assert.Equal(t, "renamed", items[0].Name)
	assert.False(t, items[0].Completed)
}

func TestUpdateDeleteOwnerScoped(t *testing.T) {
	api := newTestAPI(t, "httpownerscoped", true)
	a := api.signup("a")
	b := api.signup("b")
	it := api.createItem(a, "a's item")
	path := "/items/" + strconv.FormatInt(it.ID, 10)

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodPut, path, map[string]any{"name": "nope"}, b).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodDelete, path, nil, b).Code)
	items := api.listItems(a)
	require.Len(t, items, 1)
	assert.Equal(t, "a's item", items[0].Name)

	assert.Equal(t, http.StatusOK, api.do(http.MethodPut, path, map[string]any{"completed": true}, a).Code)
	assert.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, path, nil, a).Code)
}

func TestUpdateAndDeleteUnknownID(t *testing.T) {
	api := newTestAPI(t, "httpunknown", false)
	tok := api.signup("erin")
	api.createItem(tok, "keep me")

	rec := api.do(http.MethodPut, "/items/4242", map[string]any{"name": "x"}, tok)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = api.do(http.MethodDelete, "/items/4242", nil, tok)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Body.String())

	items := api.listItems(tok)
	require.Len(t, items, 1)
	assert.Equal(t, "keep me", items[0].Name)

	// Ids that overflow int64 name no item.
	rec = api.do(http.MethodDelete, "/items/99999999999999999999", nil, tok)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStoreFailureIsGenericServerError(t *testing.T) {
	api := newTestAPI(t, "httpstorefail", false)
	tok := api.signup("frank")
	require.NoError(t, api.db.Close())

	rec := api.do(http.MethodGet, "/items", nil, tok)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestCORSPreflightBypassesAuth(t *testing.T) {
	api := newTestAPI(t, "httpcors", false)
	req := httptest.NewRequest(http.MethodOptions, "/items", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Authorization, Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestRequestIDAndMetrics(t *testing.T) {
	api := newTestAPI(t, "httpreqid", false)
	tok := api.signup("gina")

	rec := api.do(http.MethodGet, "/items", nil, tok)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set(requestIDHeader, "3f1c2b7e-8a4d-4c52-9d6e-0b1a2c3d4e5f")
	rw := httptest.NewRecorder()
	api.handler.ServeHTTP(rw, req)
	assert.Equal(t, "3f1c2b7e-8a4d-4c52-9d6e-0b1a2c3d4e5f", rw.Header().Get(requestIDHeader))

	assert.Equal(t, float64(2), promtest.ToFloat64(api.metrics.RequestsTotal.WithLabelValues(http.MethodGet, "/items", "200")))
	assert.Equal(t, float64(1), promtest.ToFloat64(api.metrics.RequestsTotal.WithLabelValues(http.MethodPost, "/login", "200")))
}
