package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"protodesk/internal/app"
	"protodesk/internal/domain"
)

const testSecret = "test-secret"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testServer struct {
	URL    string
	App    *app.Context
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	a, err := app.Open(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	handler, err := New(Config{
		Engine:   a.Engine,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: testSecret, AllowLegacyActorHeader: true},
	})
	require.NoError(t, err)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	done := make(chan struct{})
	go func() {
		srv.Serve(ln)
		close(done)
	}()
	transport := &http.Transport{DisableKeepAlives: true}
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		App:    a,
		client: &http.Client{Transport: transport},
		close: func() {
			srv.Shutdown(context.Background())
			<-done
			transport.CloseIdleConnections()
			a.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

var actor7 = map[string]string{"X-Actor-Id": "7"}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

type fixture struct {
	customer domain.Customer
	broker   domain.Personnel
}

func seed(t *testing.T, srv *testServer) fixture {
	t.Helper()
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/customers", map[string]any{
		"first_name": "Ana", "last_name": "Silva", "email": "ana@example.com",
	}, actor7)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var f fixture
	require.NoError(t, json.Unmarshal(data, &f.customer))
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/personnel", map[string]any{
		"first_name": "Rui", "last_name": "Costa", "email": "rui@example.com",
	}, actor7)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &f.broker))
	return f
}

func createProtocol(t *testing.T, srv *testServer, f fixture) domain.Protocol {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/protocols", map[string]any{
		"title":       "Water leak",
		"description": "Kitchen sink",
		"customer_id": f.customer.ID,
		"assigned_to": f.broker.ID,
		"priority":    "High",
	}, actor7)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var p domain.Protocol
	require.NoError(t, json.Unmarshal(data, &p))
	return p
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env.Error.Code
}

func TestHealthIsPublic(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/statuses", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "unauthorized", errorCode(t, data))
}

func TestProtocolLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	f := seed(t, srv)
	p := createProtocol(t, srv, f)
	base := srv.URL + "/v1/protocols/" + strconv.FormatInt(p.ID, 10)

	res, data := doJSON(t, client, http.MethodPost, base+"/comments", map[string]any{"content": "called customer"}, actor7)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPost, base+"/status", map[string]any{"status_id": 2}, actor7)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPost, base+"/status", map[string]any{"status_id": 2}, actor7)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "invalid_transition", errorCode(t, data))

	res, data = doJSON(t, client, http.MethodGet, base+"/timeline", nil, actor7)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var tl TimelineResponse
	require.NoError(t, json.Unmarshal(data, &tl))
	require.Len(t, tl.Items, 3)
	ids := map[string]bool{}
	for _, item := range tl.Items {
		ids[item.ID] = true
	}
	assert.True(t, ids["comment-1"])
	assert.True(t, ids["status-1"])
	assert.True(t, ids["status-2"])

	res, data = doJSON(t, client, http.MethodGet, base+"/events", nil, actor7)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var evts []EventResponse
	require.NoError(t, json.Unmarshal(data, &evts))
	require.Len(t, evts, 3)
	assert.Equal(t, domain.KindStatusChange, evts[0].Kind)
	assert.Equal(t, domain.KindComment, evts[1].Kind)
	assert.Equal(t, int64(7), evts[1].ActorID)
}

func TestErrorMapping(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	f := seed(t, srv)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/protocols", map[string]any{
		"title": "x", "description": "y", "customer_id": f.customer.ID, "assigned_to": f.broker.ID, "priority": "Urgent",
	}, actor7)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "validation_failed", errorCode(t, data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/protocols/999", nil, actor7)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "not_found", errorCode(t, data))

	p := createProtocol(t, srv, f)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/protocols/"+strconv.FormatInt(p.ID, 10)+"/comments", map[string]any{"content": "   "}, actor7)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "validation_failed", errorCode(t, data))

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/statuses", nil, map[string]string{"X-Actor-Id": "abc"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestJWTAndAPIKeyIdentifyActor(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	f := seed(t, srv)

	token, err := SignToken(testSecret, f.broker.ID, 0)
	require.NoError(t, err)
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var who WhoAmIResponse
	require.NoError(t, json.Unmarshal(data, &who))
	assert.Equal(t, f.broker.ID, who.ActorID)
	assert.Equal(t, "jwt", who.Source)

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/api-keys", map[string]any{"name": "ci"}, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var key APIKeyResponse
	require.NoError(t, json.Unmarshal(data, &key))
	require.NotEmpty(t, key.Key)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"X-Api-Key": key.Key})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &who))
	assert.Equal(t, "api_key", who.Source)
	assert.Equal(t, f.broker.ID, who.ActorID)
}

func TestUploadAndDownloadAttachment(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	f := seed(t, srv)
	p := createProtocol(t, srv, f)
	base := srv.URL + "/v1/protocols/" + strconv.FormatInt(p.ID, 10)

	req, err := http.NewRequest(http.MethodPost, base+"/attachments/upload", bytes.NewReader([]byte("%PDF-1.4")))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/pdf")
	req.Header.Set("X-File-Name", "quote.pdf")
	req.Header.Set("X-Actor-Id", "7")
	res, err := client.Do(req)
	require.NoError(t, err)
	data, _ := io.ReadAll(res.Body)
	res.Body.Close()
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var evt EventResponse
	require.NoError(t, json.Unmarshal(data, &evt))
	assert.Equal(t, domain.KindAttachment, evt.Kind)
	assert.EqualValues(t, 8, evt.FileSize)

	res, data = doJSON(t, client, http.MethodGet, base+"/attachments/"+strconv.FormatInt(evt.ID, 10)+"/content", nil, actor7)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "%PDF-1.4", string(data))
	assert.Equal(t, "application/pdf", res.Header.Get("Content-Type"))
	assert.EqualValues(t, 8, res.ContentLength)

	res, data = doJSON(t, client, http.MethodPost, base+"/attachments", map[string]any{"file_name": "x.bin", "file_size": -5, "locator": "x"}, actor7)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
}

func TestAddAttachmentRejectsForeignLocators(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	f := seed(t, srv)
	owner := createProtocol(t, srv, f)
	other := createProtocol(t, srv, f)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/protocols/"+strconv.FormatInt(owner.ID, 10)+"/attachments/upload", bytes.NewReader([]byte("secret")))
	require.NoError(t, err)
	req.Header.Set("X-File-Name", "secret.txt")
	req.Header.Set("X-Actor-Id", "7")
	res, err := client.Do(req)
	require.NoError(t, err)
	data, _ := io.ReadAll(res.Body)
	res.Body.Close()
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var evt EventResponse
	require.NoError(t, json.Unmarshal(data, &evt))
	require.NotEmpty(t, evt.Locator)

	base := srv.URL + "/v1/protocols/" + strconv.FormatInt(other.ID, 10)
	res, data = doJSON(t, client, http.MethodPost, base+"/attachments", map[string]any{"file_name": "copy.txt", "file_size": 1 << 30, "locator": evt.Locator}, actor7)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	res, data = doJSON(t, client, http.MethodPost, base+"/attachments", map[string]any{"file_name": "ghost.txt", "file_size": 3, "locator": "ghost.txt"}, actor7)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	assert.Contains(t, string(data), "locator")
}

func TestListProtocolsPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	f := seed(t, srv)
	for i := 0; i < 3; i++ {
		createProtocol(t, srv, f)
	}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/protocols?limit=2", nil, actor7)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var page paginatedProtocols
	require.NoError(t, json.Unmarshal(data, &page))
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/protocols?limit=2&cursor="+page.NextCursor, nil, actor7)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var rest paginatedProtocols
	require.NoError(t, json.Unmarshal(data, &rest))
	assert.Len(t, rest.Items, 1)
	assert.Empty(t, rest.NextCursor)
}
