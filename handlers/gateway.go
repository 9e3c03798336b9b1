package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/docugate/docugate/internal/callback"
	"github.com/docugate/docugate/internal/config"
	"github.com/docugate/docugate/internal/document"
	"github.com/docugate/docugate/internal/sessions"
	"github.com/docugate/docugate/internal/tokens"
	"github.com/docugate/docugate/internal/users"
	"github.com/docugate/docugate/internal/versions"
	"github.com/docugate/docugate/pkg/logger"
)

// Protocol acknowledgment codes returned to the Document Server on the
// callback endpoint. Zero means accepted; anything else tells the caller to
// retry or surface a failure.
const (
	ackOK    = 0
	ackError = 1
)

// GatewayHandler exposes the three editing operations: issue an edit token,
// serve document bytes to the Document Server, and accept save callbacks.
type GatewayHandler struct {
	cfg      *config.Config
	codec    *tokens.Codec
	resolver *document.Resolver
	docs     document.Repository
	manager  *sessions.Manager
	machine  *callback.Machine
	store    *versions.Store
	usersSvc *users.Service
}

func NewGatewayHandler(
	cfg *config.Config,
	codec *tokens.Codec,
	resolver *document.Resolver,
	docs document.Repository,
	manager *sessions.Manager,
	machine *callback.Machine,
	store *versions.Store,
	usersSvc *users.Service,
) *GatewayHandler {
	return &GatewayHandler{
		cfg: cfg, codec: codec, resolver: resolver, docs: docs,
		manager: manager, machine: machine, store: store, usersSvc: usersSvc,
	}
}

// Register wires the gateway routes. Token issuance, history and restore
// require a platform identity (verified by the auth middleware); file serving
// and the callback authenticate with the gateway's own editor tokens.
func (h *GatewayHandler) Register(r gin.IRouter, platformAuth gin.HandlerFunc) {
	r.POST("/api/edit/token", platformAuth, h.IssueEditToken)
	r.GET("/api/edit/files/:id", h.ServeDocument)
	r.POST("/api/edit/callback", h.HandleCallback)
	r.GET("/api/edit/files/:id/history", platformAuth, h.History)
	r.POST("/api/edit/files/:id/restore", platformAuth, h.Restore)
}

// platformUser resolves the authenticated platform user from the OIDC claims
// placed in the request context by the auth middleware.
func (h *GatewayHandler) platformUser(c *gin.Context) (userClaims map[string]interface{}, ok bool) {
	v, ok := c.Get("claims")
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]interface{})
	return m, ok
}

type issueTokenRequest struct {
	DocumentID string `json:"documentId" binding:"required"`
	Mode       string `json:"mode"` // "edit" (default) | "view"
}

// IssueEditToken opens an editing session for the requesting user and returns
// the signed token plus the URLs the Document Server needs. When another
// session already holds the document's lock, the token carries read-only
// permissions instead of failing the request.
func (h *GatewayHandler) IssueEditToken(c *gin.Context) {
	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, ok := h.platformUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}
	u, err := h.usersSvc.UpsertFromClaims(c.Request.Context(), claims)
	if err != nil || u == nil {
		logger.Errorf("user upsert failed: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "identity could not be resolved"})
		return
	}

	ref, err := h.resolver.Resolve(c.Request.Context(), req.DocumentID, u)
	if err != nil {
		h.writeResolveError(c, err)
		return
	}

	perms := tokens.Permissions{Edit: true, Download: true, Print: true, Review: true}
	if req.Mode == "view" {
		perms = perms.ReadOnly()
	}
	sess, err := h.manager.OpenSession(c.Request.Context(), ref.DocumentID, u.Sub, perms)
	if err != nil {
		logger.Errorf("open session for %s: %v", ref.DocumentID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open editing session"})
		return
	}

	raw, err := h.codec.Issue(tokens.EditorClaims{
		DocumentID:  ref.DocumentID,
		TenantID:    ref.TenantID,
		UserID:      u.Sub,
		SessionKey:  sess.Key,
		Permissions: sess.Permissions,
	}, h.cfg.JWT.EditorTokenTTL)
	if err != nil {
		logger.Errorf("issue token for %s: %v", ref.DocumentID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	base := strings.TrimRight(h.cfg.Server.PublicBaseURL, "/")
	c.JSON(http.StatusOK, gin.H{
		"token":       raw,
		"documentUrl": base + "/api/edit/files/" + ref.DocumentID,
		"callbackUrl": base + "/api/edit/callback",
		"permissions": sess.Permissions,
		"sessionKey":  sess.Key,
	})
}

// bearerToken extracts the editor token from the Authorization header.
func bearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if auth == "" {
		return ""
	}
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return auth
}

// ServeDocument streams the authoritative file bytes to the Document Server.
// The caller proves authorization with the editor token issued for this
// document; no platform session cookie crosses the network boundary.
func (h *GatewayHandler) ServeDocument(c *gin.Context) {
	raw := bearerToken(c)
	if raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	claims, err := h.codec.Verify(raw)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid token"})
		return
	}

	ref, err := h.resolver.ResolveForToken(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		h.writeResolveError(c, err)
		return
	}
	rc, size, err := h.resolver.OpenReader(c.Request.Context(), ref)
	if err != nil {
		h.writeResolveError(c, err)
		return
	}
	defer rc.Close()

	// serving counts as session activity
	_ = h.manager.Touch(c.Request.Context(), claims.SessionKey)

	c.Header("Content-Length", strconv.FormatInt(size, 10))
	c.Header("Content-Type", ref.MimeType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		logger.Warnf("serving %s aborted: %v", ref.DocumentID, err)
	}
}

type callbackRequest struct {
	Status int      `json:"status"`
	Key    string   `json:"key"`
	URL    string   `json:"url,omitempty"`
	Users  []string `json:"users,omitempty"`
	Token  string   `json:"token,omitempty"`
}

// HandleCallback accepts the Document Server's save notification and answers
// with the protocol acknowledgment it expects. The token may arrive in the
// Authorization header or embedded in the body, depending on the Document
// Server's configuration.
func (h *GatewayHandler) HandleCallback(c *gin.Context) {
	var req callbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": ackError, "message": "malformed callback body"})
		return
	}
	raw := bearerToken(c)
	if raw == "" {
		raw = req.Token
	}
	if raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": ackError, "message": "missing token"})
		return
	}

	res, err := h.machine.Process(c.Request.Context(), &callback.Event{
		Token:  raw,
		Status: req.Status,
		Key:    req.Key,
		URL:    req.URL,
		Users:  req.Users,
	})
	if err != nil {
		h.writeCallbackError(c, err)
		return
	}
	logger.Debugf("callback status %d handled: %s", req.Status, res.Outcome)
	c.JSON(http.StatusOK, gin.H{"error": ackOK})
}

// History lists the document's version records, oldest first.
func (h *GatewayHandler) History(c *gin.Context) {
	claims, ok := h.platformUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}
	u, err := h.usersSvc.UpsertFromClaims(c.Request.Context(), claims)
	if err != nil || u == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "identity could not be resolved"})
		return
	}
	ref, err := h.resolver.Resolve(c.Request.Context(), c.Param("id"), u)
	if err != nil {
		h.writeResolveError(c, err)
		return
	}
	recs, err := h.store.ListVersions(c.Request.Context(), ref.DocumentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list versions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"documentId": ref.DocumentID, "versions": recs})
}

type restoreRequest struct {
	Version int `json:"version" binding:"required"`
}

// Restore rolls the document's current-version pointer back to an earlier
// committed record. No bytes move; the pointer flips inside the document's
// critical section so a concurrent commit cannot interleave.
func (h *GatewayHandler) Restore(c *gin.Context) {
	var req restoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims, ok := h.platformUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}
	u, err := h.usersSvc.UpsertFromClaims(c.Request.Context(), claims)
	if err != nil || u == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "identity could not be resolved"})
		return
	}
	ref, err := h.resolver.Resolve(c.Request.Context(), c.Param("id"), u)
	if err != nil {
		h.writeResolveError(c, err)
		return
	}

	err = h.manager.WithDocumentLock(ref.DocumentID, func() error {
		rec, err := h.store.GetVersion(c.Request.Context(), ref.DocumentID, req.Version)
		if err != nil {
			return err
		}
		d, err := h.docs.Get(c.Request.Context(), ref.DocumentID)
		if err != nil {
			return err
		}
		return h.docs.AdvanceVersion(c.Request.Context(), d.ID, d.CurrentVersion, rec.Number, rec.StorageKey)
	})
	if err != nil {
		if errors.Is(err, versions.ErrNoVersions) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no such version"})
			return
		}
		logger.Errorf("restore %s to v%d: %v", ref.DocumentID, req.Version, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "restore failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"documentId": ref.DocumentID, "currentVersion": req.Version})
}

func (h *GatewayHandler) writeResolveError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, document.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
	case errors.Is(err, document.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
	case errors.Is(err, document.ErrStorageUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// writeCallbackError maps machine errors onto the protocol acknowledgment.
// Auth and protocol failures are final; transient fetch/storage failures get
// a retryable non-zero ack and leave state untouched.
func (h *GatewayHandler) writeCallbackError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, tokens.ErrInvalidSignature),
		errors.Is(err, tokens.ErrTokenExpired),
		errors.Is(err, tokens.ErrMalformedToken),
		errors.Is(err, tokens.ErrMissingClaims):
		c.JSON(http.StatusForbidden, gin.H{"error": ackError, "message": "authorization failed"})
	case errors.Is(err, callback.ErrProtocol):
		c.JSON(http.StatusBadRequest, gin.H{"error": ackError, "message": "malformed callback"})
	case errors.Is(err, callback.ErrCorruptPayload):
		c.JSON(http.StatusOK, gin.H{"error": ackError, "message": "payload rejected"})
	case errors.Is(err, callback.ErrUpstreamSave):
		c.JSON(http.StatusOK, gin.H{"error": ackError, "message": "save failure acknowledged"})
	default:
		// fetch/storage errors: the Document Server retries
		c.JSON(http.StatusInternalServerError, gin.H{"error": ackError, "message": "temporary failure, retry"})
	}
}
