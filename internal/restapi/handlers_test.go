package restapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	manager := NewManager(nil)
	t.Cleanup(manager.CloseAll)
	return NewRouter(manager, nil)
}

func doForm(t *testing.T, r *gin.Engine, method, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestRequestIDIsAssignedAndEchoed(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDReusesCallerSuppliedHeader(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "caller-id-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "caller-id-123", rec.Header().Get("X-Request-ID"))
}

func TestIndex(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "STORE REST API")
}

func TestCreateGetNotFoundBeforeCreate(t *testing.T) {
	r := newTestRouter(t)
	rec := doForm(t, r, http.MethodGet, "/get/S1/a/x", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	env := decode(t, rec)
	assert.False(t, env.Result)
}

func TestCreatePutGetRoundTrip(t *testing.T) {
	r := newTestRouter(t)

	rec := doForm(t, r, http.MethodPost, "/create/S1", url.Values{
		"root": {"/r"}, "home": {"/r/a"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	assert.True(t, env.Result)
	assert.Equal(t, "S1", env.StoreID)

	rec = doForm(t, r, http.MethodPut, "/put/S1/r/a/x", url.Values{"value": {"hello"}})
	require.Equal(t, http.StatusOK, rec.Code)
	env = decode(t, rec)
	require.True(t, env.Result)
	require.Len(t, env.Data, 1)
	assert.Equal(t, "hello", env.Data[0].Value)
	require.NotNil(t, env.Data[0].Version)
	assert.Equal(t, int64(0), *env.Data[0].Version)

	rec = doForm(t, r, http.MethodGet, "/get/S1/r/a/x", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	env = decode(t, rec)
	require.True(t, env.Result)
	require.Len(t, env.Data, 1)
	assert.Equal(t, "hello", env.Data[0].Value)
}

func TestRemoveThenGetFails(t *testing.T) {
	r := newTestRouter(t)
	doForm(t, r, http.MethodPost, "/create/S1", url.Values{"root": {"/r"}, "home": {"/r/a"}})
	doForm(t, r, http.MethodPut, "/put/S1/r/a/x", url.Values{"value": {"hello"}})

	rec := doForm(t, r, http.MethodDelete, "/remove/S1/r/a/x", nil)
	env := decode(t, rec)
	assert.True(t, env.Result)

	rec = doForm(t, r, http.MethodGet, "/get/S1/r/a/x", nil)
	env = decode(t, rec)
	assert.False(t, env.Result)
}

func TestWildcardGetRoutesToResolveAll(t *testing.T) {
	r := newTestRouter(t)
	doForm(t, r, http.MethodPost, "/create/S1", url.Values{"root": {"/r"}, "home": {"/r/a"}})
	doForm(t, r, http.MethodPut, "/put/S1/r/a/x", url.Values{"value": {"1"}})
	doForm(t, r, http.MethodPut, "/put/S1/r/a/y", url.Values{"value": {"2"}})

	rec := doForm(t, r, http.MethodGet, "/get/S1/r/a/*", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	require.True(t, env.Result)
	assert.Len(t, env.Data, 2)
}

func TestDPutInlineSuffixMerge(t *testing.T) {
	r := newTestRouter(t)
	doForm(t, r, http.MethodPost, "/create/S1", url.Values{"root": {"/r"}, "home": {"/r/a"}})

	rec := doForm(t, r, http.MethodPatch, "/dput/S1/r/a/doc", url.Values{"value": {"field1=one&field2=two"}})
	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	require.True(t, env.Result)

	rec = doForm(t, r, http.MethodGet, "/get/S1/r/a/doc", nil)
	env = decode(t, rec)
	require.True(t, env.Result)
	assert.Contains(t, env.Data[0].Value, "field1")
	assert.Contains(t, env.Data[0].Value, "one")
}

func TestDPutJSONPatch(t *testing.T) {
	r := newTestRouter(t)
	doForm(t, r, http.MethodPost, "/create/S1", url.Values{"root": {"/r"}, "home": {"/r/a"}})

	rec := doForm(t, r, http.MethodPatch, "/dput/S1/r/a/doc", url.Values{"value": {`{"field3":"newvalue"}`}})
	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	require.True(t, env.Result)

	rec = doForm(t, r, http.MethodGet, "/get/S1/r/a/doc", nil)
	env = decode(t, rec)
	assert.Contains(t, env.Data[0].Value, "newvalue")
}

func TestDestroyRemovesStore(t *testing.T) {
	r := newTestRouter(t)
	doForm(t, r, http.MethodPost, "/create/S1", url.Values{"root": {"/r"}, "home": {"/r/a"}})

	rec := doForm(t, r, http.MethodDelete, "/destroy/S1", nil)
	env := decode(t, rec)
	assert.True(t, env.Result)

	rec = doForm(t, r, http.MethodGet, "/get/S1/r/a/x", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateDuplicateStoreIDFails(t *testing.T) {
	r := newTestRouter(t)
	doForm(t, r, http.MethodPost, "/create/S1", url.Values{"root": {"/r"}, "home": {"/r/a"}})

	rec := doForm(t, r, http.MethodPost, "/create/S1", url.Values{"root": {"/r"}, "home": {"/r/b"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode(t, rec)
	assert.False(t, env.Result)
}
