package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/docugate/docugate/internal/callback"
	"github.com/docugate/docugate/internal/config"
	"github.com/docugate/docugate/internal/document"
	"github.com/docugate/docugate/internal/document/repository"
	"github.com/docugate/docugate/internal/oidc"
	"github.com/docugate/docugate/internal/sessions"
	"github.com/docugate/docugate/internal/storage"
	"github.com/docugate/docugate/internal/tokens"
	"github.com/docugate/docugate/internal/users"
	"github.com/docugate/docugate/internal/versions"
	"github.com/docugate/docugate/pkg/middleware"
)

const gatewaySecret = "gateway-test-secret-32-bytes-xxx"

type gatewayFixture struct {
	g       *gin.Engine
	docs    *repository.MemoryRepo
	blobs   *storage.MemoryStorage
	manager *sessions.Manager
	store   *versions.Store
	codec   *tokens.Codec

	docID string
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	cfg := &config.Config{}
	cfg.Server.PublicBaseURL = "http://gateway.local"
	cfg.JWT.Secret = gatewaySecret
	cfg.JWT.EditorTokenTTL = time.Hour

	codec := tokens.NewCodec(cfg.JWT.Secret)
	docs := repository.NewMemoryRepo()
	blobs := storage.NewMemoryStorage()
	resolver := document.NewResolver(docs, blobs)
	manager := sessions.NewManager(sessions.NewMemoryRepository(), 30*time.Minute)
	store := versions.NewStore(versions.NewMemoryMetadataRepo(), blobs)
	machine := callback.NewMachine(codec, manager, store, docs, callback.NewHTTPFetcher(5*time.Second, 1<<20))
	usersSvc := users.NewService(users.NewMemoryUserRepository())

	docID, err := docs.Create(ctx, &document.Document{
		TenantID:   "tenant-1",
		Title:      "contract.docx",
		StorageKey: "documents/tenant-1/contract",
		MimeType:   "text/plain",
	})
	require.NoError(t, err)
	require.NoError(t, blobs.Put(ctx, "documents/tenant-1/contract", strings.NewReader("original contract"), -1, "text/plain"))

	g := gin.New()
	h := NewGatewayHandler(cfg, codec, resolver, docs, manager, machine, store, usersSvc)
	h.Register(g, middleware.AuthMiddleware(oidc.NewInsecureVerifier()))

	return &gatewayFixture{g: g, docs: docs, blobs: blobs, manager: manager, store: store, codec: codec, docID: docID}
}

// platformToken builds an unsigned JWT the insecure verifier accepts.
func platformToken(t *testing.T, sub, tenant string) string {
	t.Helper()
	enc := func(v interface{}) string {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		return base64.RawURLEncoding.EncodeToString(b)
	}
	header := enc(map[string]string{"alg": "none", "typ": "JWT"})
	payload := enc(map[string]interface{}{
		"sub":       sub,
		"email":     sub + "@example.com",
		"name":      "Test User",
		"tenant_id": tenant,
	})
	return header + "." + payload + ".sig"
}

func (f *gatewayFixture) do(t *testing.T, method, path, bearer, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *strings.Reader
	if body != "" {
		rd = strings.NewReader(body)
	} else {
		rd = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	f.g.ServeHTTP(w, req)
	return w
}

func (f *gatewayFixture) issueToken(t *testing.T, sub, tenant string) map[string]interface{} {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/edit/token", platformToken(t, sub, tenant),
		`{"documentId":"`+f.docID+`"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func payloadServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGateway_FullEditCycle(t *testing.T) {
	f := newGatewayFixture(t)

	resp := f.issueToken(t, "alice", "tenant-1")
	token, _ := resp["token"].(string)
	require.NotEmpty(t, token)
	require.Equal(t, "http://gateway.local/api/edit/files/"+f.docID, resp["documentUrl"])
	require.Equal(t, "http://gateway.local/api/edit/callback", resp["callbackUrl"])

	// Document Server fetches the authoritative bytes with the editor token
	w := f.do(t, http.MethodGet, "/api/edit/files/"+f.docID, token, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "original contract", w.Body.String())
	require.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	require.Equal(t, "17", w.Header().Get("Content-Length"))

	// editor saves and closes
	srv := payloadServer(t, "edited contract bytes")
	sessionKey, _ := resp["sessionKey"].(string)
	w = f.do(t, http.MethodPost, "/api/edit/callback", token,
		`{"status":2,"key":"`+sessionKey+`","url":"`+srv.URL+`"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.JSONEq(t, `{"error":0}`, w.Body.String())

	// pointer advanced to the new version
	d, err := f.docs.Get(context.Background(), f.docID)
	require.NoError(t, err)
	require.Equal(t, 1, d.CurrentVersion)

	// a fresh token now serves the committed bytes
	resp = f.issueToken(t, "alice", "tenant-1")
	token, _ = resp["token"].(string)
	w = f.do(t, http.MethodGet, "/api/edit/files/"+f.docID, token, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "edited contract bytes", w.Body.String())
}

func TestGateway_SecondEditorDowngradedToReadOnly(t *testing.T) {
	f := newGatewayFixture(t)

	first := f.issueToken(t, "alice", "tenant-1")
	perms := first["permissions"].(map[string]interface{})
	require.True(t, perms["edit"].(bool))

	second := f.issueToken(t, "bob", "tenant-1")
	perms = second["permissions"].(map[string]interface{})
	require.False(t, perms["edit"].(bool))
	require.True(t, perms["download"].(bool))
}

func TestGateway_IssueToken_UnknownDocument(t *testing.T) {
	f := newGatewayFixture(t)
	w := f.do(t, http.MethodPost, "/api/edit/token", platformToken(t, "alice", "tenant-1"),
		`{"documentId":"missing"}`)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestGateway_IssueToken_CrossTenantDenied(t *testing.T) {
	f := newGatewayFixture(t)
	w := f.do(t, http.MethodPost, "/api/edit/token", platformToken(t, "eve", "tenant-2"),
		`{"documentId":"`+f.docID+`"}`)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestGateway_IssueToken_RequiresPlatformAuth(t *testing.T) {
	f := newGatewayFixture(t)
	w := f.do(t, http.MethodPost, "/api/edit/token", "", `{"documentId":"`+f.docID+`"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGateway_ServeDocument_RejectsBadToken(t *testing.T) {
	f := newGatewayFixture(t)

	w := f.do(t, http.MethodGet, "/api/edit/files/"+f.docID, "", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodGet, "/api/edit/files/"+f.docID, "not-a-jwt", "")
	require.Equal(t, http.StatusForbidden, w.Code)

	// token bound to a different document is refused
	other := tokens.NewCodec(gatewaySecret)
	raw, err := other.Issue(tokens.EditorClaims{
		DocumentID: "another-doc",
		TenantID:   "tenant-1",
		UserID:     "alice",
		SessionKey: "sess",
	}, time.Hour)
	require.NoError(t, err)
	w = f.do(t, http.MethodGet, "/api/edit/files/"+f.docID, raw, "")
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestGateway_Callback_BadToken(t *testing.T) {
	f := newGatewayFixture(t)

	forged := tokens.NewCodec("another-secret-entirely-32-bytes")
	raw, err := forged.Issue(tokens.EditorClaims{
		DocumentID: f.docID,
		TenantID:   "tenant-1",
		UserID:     "mallory",
		SessionKey: "sess",
	}, time.Hour)
	require.NoError(t, err)

	w := f.do(t, http.MethodPost, "/api/edit/callback", raw, `{"status":2,"key":"sess","url":"http://unused"}`)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, w.Body.String(), `"error":1`)
}

func TestGateway_Callback_UpstreamSaveErrorAcked(t *testing.T) {
	f := newGatewayFixture(t)
	resp := f.issueToken(t, "alice", "tenant-1")
	token := resp["token"].(string)
	sessionKey := resp["sessionKey"].(string)

	w := f.do(t, http.MethodPost, "/api/edit/callback", token,
		`{"status":3,"key":"`+sessionKey+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"error":1`)

	// session survives so the editor can retry
	s, err := f.manager.Get(context.Background(), sessionKey)
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestGateway_Callback_UnreachableURLRetryable(t *testing.T) {
	f := newGatewayFixture(t)
	resp := f.issueToken(t, "alice", "tenant-1")
	token := resp["token"].(string)
	sessionKey := resp["sessionKey"].(string)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	w := f.do(t, http.MethodPost, "/api/edit/callback", token,
		`{"status":2,"key":"`+sessionKey+`","url":"`+srv.URL+`"}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), `"error":1`)

	d, err := f.docs.Get(context.Background(), f.docID)
	require.NoError(t, err)
	require.Equal(t, 0, d.CurrentVersion)
}

func TestGateway_Callback_UnknownStatus(t *testing.T) {
	f := newGatewayFixture(t)
	resp := f.issueToken(t, "alice", "tenant-1")
	token := resp["token"].(string)
	sessionKey := resp["sessionKey"].(string)

	w := f.do(t, http.MethodPost, "/api/edit/callback", token,
		`{"status":42,"key":"`+sessionKey+`"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), `"error":1`)
}

func TestGateway_Callback_TokenInBody(t *testing.T) {
	f := newGatewayFixture(t)
	resp := f.issueToken(t, "alice", "tenant-1")
	token := resp["token"].(string)
	sessionKey := resp["sessionKey"].(string)

	w := f.do(t, http.MethodPost, "/api/edit/callback", "",
		`{"status":1,"key":"`+sessionKey+`","token":"`+token+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"error":0}`, w.Body.String())
}

func TestGateway_HistoryAndRestore(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()

	resp := f.issueToken(t, "alice", "tenant-1")
	token := resp["token"].(string)
	sessionKey := resp["sessionKey"].(string)

	// commit two versions via force-save, the session stays open in between
	for _, body := range []string{"first revision", "second revision"} {
		srv := payloadServer(t, body)
		w := f.do(t, http.MethodPost, "/api/edit/callback", token,
			`{"status":6,"key":"`+sessionKey+`","url":"`+srv.URL+`"}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.JSONEq(t, `{"error":0}`, w.Body.String())
	}

	platform := platformToken(t, "alice", "tenant-1")
	w := f.do(t, http.MethodGet, "/api/edit/files/"+f.docID+"/history", platform, "")
	require.Equal(t, http.StatusOK, w.Code)
	var hist struct {
		Versions []map[string]interface{} `json:"versions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hist))
	require.Len(t, hist.Versions, 2)

	// roll back to version 1
	w = f.do(t, http.MethodPost, "/api/edit/files/"+f.docID+"/restore", platform, `{"version":1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	d, err := f.docs.Get(ctx, f.docID)
	require.NoError(t, err)
	require.Equal(t, 1, d.CurrentVersion)

	// a fresh token now serves the restored bytes
	resp = f.issueToken(t, "bob", "tenant-1")
	w = f.do(t, http.MethodGet, "/api/edit/files/"+f.docID, resp["token"].(string), "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "first revision", w.Body.String())
}

func TestGateway_Restore_UnknownVersion(t *testing.T) {
	f := newGatewayFixture(t)
	w := f.do(t, http.MethodPost, "/api/edit/files/"+f.docID+"/restore",
		platformToken(t, "alice", "tenant-1"), `{"version":9}`)
	require.Equal(t, http.StatusNotFound, w.Code)
}
