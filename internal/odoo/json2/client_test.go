package json2

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/pantalytics/odoo-mcp-pro/internal/odoo"
)

// testBackend is a minimal JSON/2 endpoint: it records every request and
// answers from a canned route table keyed by "model/method".
type testBackend struct {
	t        *testing.T
	routes   map[string]func(w http.ResponseWriter, r *http.Request)
	requests atomic.Int64
}

func newTestBackend(t *testing.T) *testBackend {
	return &testBackend{t: t, routes: make(map[string]func(w http.ResponseWriter, r *http.Request))}
}

func (b *testBackend) handle(model, method string, fn func(w http.ResponseWriter, r *http.Request)) {
	b.routes[model+"/"+method] = fn
}

func (b *testBackend) respond(model, method string, body string) {
	b.handle(model, method, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, body)
	})
}

func (b *testBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.requests.Add(1)
	if r.URL.Path == "/web/version" {
		fmt.Fprint(w, `{"server_version":"19.0","server_serie":"19.0","protocol_version":1}`)
		return
	}

	// Path is /json/2/{model}/{method}.
	const prefix = "/json/2/"
	var model, method string
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	if i := strings.LastIndex(rest, "/"); i >= 0 {
		model, method = rest[:i], rest[i+1:]
	}

	fn, ok := b.routes[model+"/"+method]
	if !ok {
		b.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		http.NotFound(w, r)
		return
	}
	fn(w, r)
}

func newTestClient(t *testing.T, backend *testBackend) *Client {
	t.Helper()

	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	client := New(odoo.Config{
		URL:      srv.URL,
		Database: "production",
		APIKey:   "test-key",
		Dialect:  odoo.DialectJSON2,
	}, nil)

	if err := client.Connect(t.Context()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { client.Disconnect() })
	return client
}

func TestClient_ConnectFetchesVersion(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, newTestBackend(t))

	if !client.IsConnected() {
		t.Error("IsConnected = false after Connect")
	}
	v := client.ServerVersion()
	if v == nil || v.ServerVersion != "19.0" {
		t.Errorf("ServerVersion = %+v, want 19.0", v)
	}
}

func TestClient_AuthenticateResolvesUID(t *testing.T) {
	t.Parallel()

	backend := newTestBackend(t)
	backend.handle("res.users", "context_get", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("X-Odoo-Database"); got != "production" {
			t.Errorf("X-Odoo-Database = %q", got)
		}
		fmt.Fprint(w, `{"uid":7,"lang":"en_US"}`)
	})
	client := newTestClient(t, backend)

	if err := client.Authenticate(t.Context()); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if client.UID() != 7 {
		t.Errorf("UID = %d, want 7", client.UID())
	}
	if !client.IsAuthenticated() {
		t.Error("IsAuthenticated = false")
	}
}

func TestClient_AuthenticateWithoutKeyFails(t *testing.T) {
	t.Parallel()

	backend := newTestBackend(t)
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	client := New(odoo.Config{
		URL:      srv.URL,
		Username: "admin",
		Password: "pw",
	}, nil)
	if err := client.Connect(t.Context()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	err := client.Authenticate(t.Context())
	if !errors.Is(err, odoo.ErrAuthentication) {
		t.Errorf("err = %v, want ErrAuthentication", err)
	}
}

func TestClient_SearchReadSendsNamedArgs(t *testing.T) {
	t.Parallel()

	backend := newTestBackend(t)
	backend.handle("res.partner", "search_read", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["limit"] != float64(5) {
			t.Errorf("limit = %v, want 5", body["limit"])
		}
		domain, ok := body["domain"].([]any)
		if !ok || len(domain) != 2 {
			t.Fatalf("domain = %v", body["domain"])
		}
		fmt.Fprint(w, `[{"id":1,"name":"Delta Works BV","city":"Amsterdam"}]`)
	})
	client := newTestClient(t, backend)

	domain := odoo.Domain{
		odoo.Cond("is_company", "=", true),
		odoo.Cond("city", "ilike", "amsterdam"),
	}
	records, err := client.SearchRead(t.Context(), "res.partner", domain, []string{"name", "city"}, odoo.SearchOptions{Limit: 5})
	if err != nil {
		t.Fatalf("SearchRead: %v", err)
	}
	if len(records) != 1 || records[0]["name"] != "Delta Works BV" {
		t.Errorf("records = %v", records)
	}
}

func TestClient_ReadPreservesOrderAndReportsMissing(t *testing.T) {
	t.Parallel()

	backend := newTestBackend(t)
	backend.respond("res.partner", "read", `[{"id":2,"name":"b"},{"id":1,"name":"a"}]`)
	client := newTestClient(t, backend)

	records, err := client.Read(t.Context(), "res.partner", []int64{1, 2}, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if records[0]["name"] != "a" || records[1]["name"] != "b" {
		t.Errorf("records out of order: %v", records)
	}

	_, err = client.Read(t.Context(), "res.partner", []int64{1, 2, 99}, nil)
	if !errors.Is(err, odoo.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestClient_CreateSendsValsListAndUnwrapsID(t *testing.T) {
	t.Parallel()

	backend := newTestBackend(t)
	backend.handle("res.partner", "create", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ValsList []map[string]any `json:"vals_list"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if len(body.ValsList) != 1 || body.ValsList[0]["name"] != "New Partner" {
			t.Errorf("vals_list = %v", body.ValsList)
		}
		fmt.Fprint(w, `[42]`)
	})
	client := newTestClient(t, backend)

	id, err := client.Create(t.Context(), "res.partner", map[string]any{"name": "New Partner"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id != 42 {
		t.Errorf("id = %d, want 42", id)
	}
}

func TestClient_FieldsGetCachesFullRequests(t *testing.T) {
	t.Parallel()

	backend := newTestBackend(t)
	var hits atomic.Int64
	backend.handle("res.partner", "fields_get", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, _ := io.ReadAll(r.Body)
		var args map[string]any
		_ = json.Unmarshal(body, &args)
		if _, filtered := args["attributes"]; filtered {
			fmt.Fprint(w, `{"name":{"type":"char","string":"Name"}}`)
			return
		}
		fmt.Fprint(w, `{"name":{"type":"char","string":"Name","required":true},"email":{"type":"char","string":"Email"}}`)
	})
	client := newTestClient(t, backend)

	for range 3 {
		fields, err := client.FieldsGet(t.Context(), "res.partner", nil)
		if err != nil {
			t.Fatalf("FieldsGet: %v", err)
		}
		if len(fields) != 2 || !fields["name"].Required {
			t.Errorf("fields = %v", fields)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("backend hits = %d, want 1 (cached)", hits.Load())
	}

	// Attribute-filtered requests bypass the cache.
	if _, err := client.FieldsGet(t.Context(), "res.partner", []string{"type", "string"}); err != nil {
		t.Fatalf("FieldsGet filtered: %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("backend hits = %d, want 2", hits.Load())
	}
}

func TestClient_CreateInvalidatesFieldsCache(t *testing.T) {
	t.Parallel()

	backend := newTestBackend(t)
	var hits atomic.Int64
	backend.handle("res.partner", "fields_get", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{"name":{"type":"char","string":"Name"}}`)
	})
	backend.respond("res.partner", "create", `[10]`)
	client := newTestClient(t, backend)

	if _, err := client.FieldsGet(t.Context(), "res.partner", nil); err != nil {
		t.Fatalf("FieldsGet: %v", err)
	}
	if _, err := client.Create(t.Context(), "res.partner", map[string]any{"name": "x"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := client.FieldsGet(t.Context(), "res.partner", nil); err != nil {
		t.Fatalf("FieldsGet: %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("backend hits = %d, want 2 (cache invalidated by create)", hits.Load())
	}
}

func TestClient_StatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, odoo.ErrAuthentication},
		{http.StatusForbidden, odoo.ErrAccessDenied},
		{http.StatusNotFound, odoo.ErrNotFound},
		{http.StatusUnprocessableEntity, odoo.ErrRemoteOperation},
		{http.StatusBadGateway, odoo.ErrUnavailable},
		{http.StatusTeapot, odoo.ErrRemoteOperation},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("http %d", tt.status), func(t *testing.T) {
			t.Parallel()

			backend := newTestBackend(t)
			backend.handle("res.partner", "search", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"name":"odoo.exceptions.Error","message":"rejected"}`)
			})
			client := newTestClient(t, backend)

			_, err := client.Search(t.Context(), "res.partner", nil, odoo.SearchOptions{})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestClient_ServerErrorRetriedOnce(t *testing.T) {
	t.Parallel()

	backend := newTestBackend(t)
	var hits atomic.Int64
	backend.handle("res.partner", "search_count", func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `3`)
	})
	client := newTestClient(t, backend)

	count, err := client.SearchCount(t.Context(), "res.partner", nil)
	if err != nil {
		t.Fatalf("SearchCount: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
	if hits.Load() != 2 {
		t.Errorf("hits = %d, want 2", hits.Load())
	}
}

func TestClient_NilArgsFiltered(t *testing.T) {
	t.Parallel()

	backend := newTestBackend(t)
	backend.handle("res.partner", "read", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if _, present := body["fields"]; present {
			t.Error("nil fields argument was sent on the wire")
		}
		fmt.Fprint(w, `[{"id":1}]`)
	})
	client := newTestClient(t, backend)

	if _, err := client.Read(t.Context(), "res.partner", []int64{1}, nil); err != nil {
		t.Fatalf("Read: %v", err)
	}
}

func TestClient_CallBeforeConnect(t *testing.T) {
	t.Parallel()

	client := New(odoo.Config{URL: "http://odoo.invalid", APIKey: "k", Dialect: odoo.DialectJSON2}, nil)

	_, err := client.Search(t.Context(), "res.partner", nil, odoo.SearchOptions{})
	if !errors.Is(err, odoo.ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}
