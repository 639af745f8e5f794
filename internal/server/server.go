// Package server exposes the HTTP API: gallery and admin login, image
// upload/reject/restore/delete, downloads and ZIP export, gallery
// administration, and orphan reconciliation.
package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"imagestore/internal/archive"
	"imagestore/internal/assets"
	"imagestore/internal/gallery"
	"imagestore/internal/ratelimit"
	"imagestore/internal/reconcile"
	"imagestore/internal/registry"
	"imagestore/internal/session"
	"imagestore/internal/util"
	"imagestore/pkg/auth"
	"imagestore/pkg/domain"
)

const sessionCookieName = "imagestore_session"

// Config wires required dependencies for the HTTP server.
type Config struct {
	Galleries               *gallery.Manager
	Assets                  *assets.Store
	Archives                *archive.Builder
	Reconciler              *reconcile.Reconciler
	Sessions                session.Store
	AdminPassword           string
	SessionTTL              time.Duration
	MaxUploadBytes          int64
	RedisAddr               string
	RedisPassword           string
	LoginRateLimitPerMinute int
	TrustedProxies          []string
}

// Server exposes HTTP endpoints for the image store.
type Server struct {
	galleries      *gallery.Manager
	assets         *assets.Store
	archives       *archive.Builder
	reconciler     *reconcile.Reconciler
	sessions       session.Store
	adminPassword  string
	sessionTTL     time.Duration
	maxUploadBytes int64
	loginLimiter   *ratelimit.FixedWindowLimiter
	trustedProxies *util.TrustedProxies
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.Galleries == nil || cfg.Assets == nil || cfg.Sessions == nil {
		return nil, errors.New("server requires galleries, assets and sessions")
	}
	if strings.TrimSpace(cfg.AdminPassword) == "" {
		return nil, errors.New("admin password is required")
	}
	loginLimit := cfg.LoginRateLimitPerMinute
	if loginLimit <= 0 {
		loginLimit = 10
	}
	var (
		loginLimiter *ratelimit.FixedWindowLimiter
		err          error
	)
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		loginLimiter, err = ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "imagestore:ratelimit:login", loginLimit, time.Minute)
	} else {
		loginLimiter, err = ratelimit.NewMemoryFixedWindowLimiter(loginLimit, time.Minute)
	}
	if err != nil {
		return nil, fmt.Errorf("init login limiter: %w", err)
	}
	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	s := &Server{
		galleries:      cfg.Galleries,
		assets:         cfg.Assets,
		archives:       cfg.Archives,
		reconciler:     cfg.Reconciler,
		sessions:       cfg.Sessions,
		adminPassword:  cfg.AdminPassword,
		sessionTTL:     ttl,
		maxUploadBytes: normalizeMaxBytes(cfg.MaxUploadBytes),
		loginLimiter:   loginLimiter,
		trustedProxies: trustedProxies,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	handler := util.WithRequestLog("imagestore", s.mux)
	handler = util.WithRequestID(handler)
	return util.WithSecurityHeaders(util.WithCORS(handler))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// session
	s.mux.HandleFunc("/api/login", s.handleLogin)
	s.mux.HandleFunc("/api/admin/login", s.handleAdminLogin)
	s.mux.HandleFunc("/api/logout", s.handleLogout)
	s.mux.HandleFunc("/api/admin/logout", s.handleLogout)

	// gallery-scoped asset operations
	s.mux.Handle("/api/images", s.galleryOnly(s.handleImages))
	s.mux.Handle("/api/upload", s.galleryOnly(s.handleUpload))
	s.mux.Handle("/api/reject", s.galleryOnly(s.handleReject))
	s.mux.Handle("/api/restore", s.galleryOnly(s.handleRestore))
	s.mux.Handle("/api/delete", s.galleryOnly(s.handleDelete))
	s.mux.Handle("/api/download", s.galleryOnly(s.handleDownload))
	s.mux.Handle("/api/export", s.galleryOnly(s.handleExport))

	// admin
	s.mux.Handle("/api/admin/galleries", s.adminOnly(s.handleAdminGalleries))
	s.mux.Handle("/api/admin/galleries/", s.adminOnly(s.handleAdminGalleryByID))
	s.mux.Handle("/api/admin/orphans", s.adminOnly(s.handleAdminOrphans))
	s.mux.Handle("/api/admin/orphans/purge", s.adminOnly(s.handleAdminOrphansPurge))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// identity wrappers

type identityHandler func(http.ResponseWriter, *http.Request, domain.Identity)

func (s *Server) galleryOnly(next identityHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := s.identify(r)
		if identity.Kind != domain.IdentityGallery {
			s.audit(r, "session.authorize", "fail")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, identity)
	})
}

func (s *Server) adminOnly(next identityHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := s.identify(r)
		if identity.Kind == domain.IdentityAnonymous {
			s.audit(r, "admin.authorize", "fail", "reason", "no_session")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !identity.IsAdmin() {
			s.audit(r, "admin.authorize", "fail", "reason", "forbidden", "gallery_id", identity.GalleryID)
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r, identity)
	})
}

// identify resolves the session cookie to an identity. Missing or invalid
// sessions yield the anonymous identity, never an error.
func (s *Server) identify(r *http.Request) domain.Identity {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return domain.Identity{Kind: domain.IdentityAnonymous}
	}
	identity, err := s.sessions.Get(cookie.Value)
	if err != nil {
		return domain.Identity{Kind: domain.IdentityAnonymous}
	}
	return identity
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// session handlers

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, "too many login attempts") {
		s.audit(r, "gallery.login", "rate_limited")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.audit(r, "gallery.login", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	g, err := s.galleries.VerifyCredentials(req.Username, req.Password)
	if err != nil {
		s.audit(r, "gallery.login", "fail", "username", req.Username)
		s.writeDomainError(w, r, err)
		return
	}
	token, err := s.sessions.New(domain.Identity{
		Kind:      domain.IdentityGallery,
		GalleryID: g.ID,
		Username:  g.Username,
	}, s.sessionTTL)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.setSessionCookie(w, token)
	s.audit(r, "gallery.login", "success", "gallery_id", g.ID)
	writeJSON(w, http.StatusOK, map[string]any{"gallery": g})
}

type adminLoginRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, "too many login attempts") {
		s.audit(r, "admin.login", "rate_limited")
		return
	}
	var req adminLoginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.audit(r, "admin.login", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !s.checkAdminPassword(req.Password) {
		s.audit(r, "admin.login", "fail")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := s.sessions.New(domain.Identity{Kind: domain.IdentityAdmin}, s.sessionTTL)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.setSessionCookie(w, token)
	s.audit(r, "admin.login", "success")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// checkAdminPassword accepts either a bcrypt hash or a plain value in the
// configuration and compares accordingly.
func (s *Server) checkAdminPassword(candidate string) bool {
	if strings.HasPrefix(s.adminPassword, "$2") {
		return auth.CheckPassword(candidate, s.adminPassword)
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(s.adminPassword)) == 1
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		if err := s.sessions.Delete(cookie.Value); err != nil {
			slog.Warn("session delete failed", "error", err)
		}
	}
	clearSessionCookie(w)
	s.audit(r, "session.logout", "success")
	w.WriteHeader(http.StatusNoContent)
}

// gallery asset handlers

func (s *Server) handleImages(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	g, err := s.galleries.Get(identity.GalleryID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	active, rejected, err := s.assets.List(identity.GalleryID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"gallery":  g,
		"files":    active,
		"rejected": rejected,
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	batchBudget := s.maxUploadBytes*int64(s.assets.MaxBatchFiles()) + (1 << 20)
	r.Body = http.MaxBytesReader(w, r.Body, batchBudget)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	files := r.MultipartForm.File["images[]"]
	if len(files) == 0 {
		files = r.MultipartForm.File["images"]
	}
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "at least one file is required (field: images[])")
		return
	}
	items := make([]assets.BatchItem, 0, len(files))
	for _, header := range files {
		header := header
		items = append(items, assets.BatchItem{
			Name: header.Filename,
			MIME: header.Header.Get("Content-Type"),
			Open: func() (io.ReadCloser, error) { return header.Open() },
		})
	}
	result, err := s.assets.IngestBatch(identity.GalleryID, items)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.audit(r, "asset.upload", "success",
		"gallery_id", identity.GalleryID, "uploaded", len(result.Uploaded), "failed", len(result.Errors))
	writeJSON(w, http.StatusOK, result)
}

type fileRequest struct {
	File string `json:"file"`
}

func decodeFileRequest(r *http.Request) (string, error) {
	var req fileRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		return "", errors.New("invalid JSON body")
	}
	if strings.TrimSpace(req.File) == "" {
		return "", errors.New("file is required")
	}
	return req.File, nil
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	file, err := decodeFileRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	storedName, err := s.assets.Reject(identity.GalleryID, file)
	if err != nil {
		s.audit(r, "asset.reject", "fail", "gallery_id", identity.GalleryID, "file", file)
		s.writeDomainError(w, r, err)
		return
	}
	s.audit(r, "asset.reject", "success", "gallery_id", identity.GalleryID, "file", storedName)
	writeJSON(w, http.StatusOK, map[string]string{"file": storedName})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	file, err := decodeFileRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	storedName, err := s.assets.Restore(identity.GalleryID, file)
	if err != nil {
		s.audit(r, "asset.restore", "fail", "gallery_id", identity.GalleryID, "file", file)
		s.writeDomainError(w, r, err)
		return
	}
	s.audit(r, "asset.restore", "success", "gallery_id", identity.GalleryID, "file", storedName)
	writeJSON(w, http.StatusOK, map[string]string{"file": storedName})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	file, err := decodeFileRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.assets.Delete(identity.GalleryID, file); err != nil {
		s.audit(r, "asset.delete", "fail", "gallery_id", identity.GalleryID, "file", file)
		s.writeDomainError(w, r, err)
		return
	}
	s.audit(r, "asset.delete", "success", "gallery_id", identity.GalleryID, "file", file)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	g, err := s.galleries.Get(identity.GalleryID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if !g.AllowDownloads {
		s.writeDomainError(w, r, assets.ErrDownloadsDisabled)
		return
	}
	file := r.URL.Query().Get("file")
	if strings.TrimSpace(file) == "" {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	path, err := s.assets.Resolve(identity.GalleryID, file)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}

type exportRequest struct {
	Files []string `json:"files"`
}

// handleExport accepts the selection either as repeated "files" query
// parameters (GET, for direct browser links) or as a JSON body (POST).
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	var files []string
	switch r.Method {
	case http.MethodGet:
		files = r.URL.Query()["files"]
	case http.MethodPost:
		var req exportRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		files = req.Files
	default:
		methodNotAllowed(w)
		return
	}
	g, err := s.galleries.Get(identity.GalleryID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if !g.AllowDownloads {
		s.writeDomainError(w, r, assets.ErrDownloadsDisabled)
		return
	}
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "files is required")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+archive.FileName()+"\"")
	added, skipped, err := s.archives.Write(w, identity.GalleryID, files)
	if err != nil {
		if errors.Is(err, archive.ErrNoFiles) {
			// ErrNoFiles surfaces before any archive bytes reach the client.
			w.Header().Del("Content-Disposition")
			writeError(w, http.StatusNotFound, "no valid files to archive")
			return
		}
		util.LoggerFromContext(r.Context()).Error("archive stream failed", "gallery_id", identity.GalleryID, "error", err)
		return
	}
	s.audit(r, "asset.export", "success",
		"gallery_id", identity.GalleryID, "added", added, "skipped", len(skipped))
}

// admin handlers

type createGalleryRequest struct {
	Username       string `json:"username"`
	Password       string `json:"password"`
	Name           string `json:"name"`
	AllowUploads   *bool  `json:"allowUploads"`
	AllowDownloads *bool  `json:"allowDownloads"`
}

func (s *Server) handleAdminGalleries(w http.ResponseWriter, r *http.Request, _ domain.Identity) {
	switch r.Method {
	case http.MethodGet:
		galleries, err := s.galleries.List()
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"galleries": galleries})
	case http.MethodPost:
		var req createGalleryRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		allowUploads, allowDownloads := true, true
		if req.AllowUploads != nil {
			allowUploads = *req.AllowUploads
		}
		if req.AllowDownloads != nil {
			allowDownloads = *req.AllowDownloads
		}
		g, err := s.galleries.Create(req.Username, req.Password, req.Name, allowUploads, allowDownloads)
		if err != nil {
			s.audit(r, "gallery.create", "fail", "username", req.Username)
			s.writeDomainError(w, r, err)
			return
		}
		s.audit(r, "gallery.create", "success", "gallery_id", g.ID)
		writeJSON(w, http.StatusCreated, g)
	default:
		methodNotAllowed(w)
	}
}

type updateGalleryRequest struct {
	Name           *string `json:"name"`
	AllowUploads   *bool   `json:"allowUploads"`
	AllowDownloads *bool   `json:"allowDownloads"`
}

type updatePasswordRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleAdminGalleryByID(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/admin/galleries/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch sub {
	case "":
		s.handleAdminGallery(w, r, id)
	case "password":
		s.handleAdminGalleryPassword(w, r, id)
	case "images":
		s.handleAdminGalleryImages(w, r, id)
	case "upload":
		s.handleAdminGalleryUpload(w, r, id, identity)
	case "delete":
		s.handleAdminGalleryFileDelete(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleAdminGallery(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		g, err := s.galleries.Get(id)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	case http.MethodPatch, http.MethodPut:
		var req updateGalleryRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		err := s.galleries.Update(id, gallery.UpdateParams{
			Name:           req.Name,
			AllowUploads:   req.AllowUploads,
			AllowDownloads: req.AllowDownloads,
		})
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		g, err := s.galleries.Get(id)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		s.audit(r, "gallery.update", "success", "gallery_id", id)
		writeJSON(w, http.StatusOK, g)
	case http.MethodDelete:
		outcome, err := s.galleries.Delete(id)
		if err != nil {
			s.audit(r, "gallery.delete", "fail", "gallery_id", id)
			s.writeDomainError(w, r, err)
			return
		}
		s.audit(r, "gallery.delete", "success", "gallery_id", id, "status", string(outcome.Status))
		writeJSON(w, http.StatusOK, outcome)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAdminGalleryPassword(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req updatePasswordRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Password) == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}
	if err := s.galleries.UpdatePassword(id, req.Password); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.audit(r, "gallery.password", "success", "gallery_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAdminGalleryImages(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	active, rejected, err := s.assets.List(id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": active, "rejected": rejected})
}

// handleAdminGalleryUpload lets the admin ingest files into any gallery
// through the same batch pipeline. The gallery's upload toggle still applies.
func (s *Server) handleAdminGalleryUpload(w http.ResponseWriter, r *http.Request, id string, _ domain.Identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s.handleUpload(w, r, domain.Identity{Kind: domain.IdentityGallery, GalleryID: id})
}

// handleAdminGalleryFileDelete removes a single file from any gallery; the
// locator may carry a rejects/ prefix.
func (s *Server) handleAdminGalleryFileDelete(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	file, err := decodeFileRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.assets.Delete(id, file); err != nil {
		s.audit(r, "admin.asset.delete", "fail", "gallery_id", id, "file", file)
		s.writeDomainError(w, r, err)
		return
	}
	s.audit(r, "admin.asset.delete", "success", "gallery_id", id, "file", file)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleAdminOrphans(w http.ResponseWriter, r *http.Request, _ domain.Identity) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	orphans, err := s.reconciler.Scan()
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if orphans == nil {
		orphans = []domain.OrphanFolder{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orphans": orphans})
}

type purgeRequest struct {
	Confirm bool `json:"confirm"`
}

func (s *Server) handleAdminOrphansPurge(w http.ResponseWriter, r *http.Request, _ domain.Identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req purgeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := s.reconciler.Purge(req.Confirm)
	if err != nil {
		s.audit(r, "orphans.purge", "fail")
		s.writeDomainError(w, r, err)
		return
	}
	s.audit(r, "orphans.purge", "success", "deleted", result.Deleted, "failed", result.Failed)
	writeJSON(w, http.StatusOK, result)
}

// helpers

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, gallery.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, gallery.ErrNotFound), errors.Is(err, assets.ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, assets.ErrAccessDenied),
		errors.Is(err, assets.ErrUploadsDisabled),
		errors.Is(err, assets.ErrDownloadsDisabled):
		return http.StatusForbidden
	case errors.Is(err, gallery.ErrUsernameTaken):
		return http.StatusConflict
	case errors.Is(err, assets.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, gallery.ErrInvalidUsername),
		errors.Is(err, assets.ErrInvalidType),
		errors.Is(err, assets.ErrInvalidImage),
		errors.Is(err, assets.ErrBatchTooLarge),
		errors.Is(err, reconcile.ErrNotConfirmed):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 50 * 1024 * 1024
	}
	return value
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trustedProxies),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		slog.Info("security_event", logAttrs...)
		return
	}
	slog.Warn("security_event", logAttrs...)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, msg string) bool {
	key := r.URL.Path + "|" + util.ClientIP(r, s.trustedProxies)
	if s.loginLimiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}
