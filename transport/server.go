// Package transport implements the Git Smart HTTP v1 surface:
// GET /info/refs and the upload-pack/receive-pack POST endpoints, wired to
// the object store, ref store, branch protection, hook, and CDC layers.
package transport

import (
	"context"
	"net/http"
	"strings"

	"githost.dev/githost/cdc"
	"githost.dev/githost/hooks"
	"githost.dev/githost/log"
	"githost.dev/githost/objectstore"
	"githost.dev/githost/policy"
	"githost.dev/githost/refstore"
	"githost.dev/githost/security"
)

// Service names the Git service a request is for.
type Service string

const (
	ServiceUploadPack  Service = "git-upload-pack"
	ServiceReceivePack Service = "git-receive-pack"
)

// AuthOracle authenticates the request's credentials into an actor identity.
// Implementations typically wrap a token or basic-auth verifier; the
// built-in server never inspects credentials itself.
type AuthOracle interface {
	Authenticate(r *http.Request) (actor string, ok bool)
}

// PermissionOracle authorizes an already-authenticated actor for a service
// against a repository.
type PermissionOracle interface {
	Authorize(ctx context.Context, actor, repository string, svc Service) bool
}

// AllowAllOracle is a permissive PermissionOracle/AuthOracle pair for local
// development and tests: every request is anonymous and every action is
// authorized.
type AllowAllOracle struct{}

func (AllowAllOracle) Authenticate(r *http.Request) (string, bool) { return "anonymous", true }
func (AllowAllOracle) Authorize(context.Context, string, string, Service) bool { return true }

// RepositoryContext groups together the per-repository backends a single
// request needs. In a multi-tenant deployment these come from a registry
// keyed by repository id; in the in-process fixture they're constructed
// once and reused.
type RepositoryContext struct {
	ID        string
	Objects   objectstore.Store
	Refs      refstore.Store
	Evaluator *policy.Evaluator
	Hooks     *hooks.Executor
	CDC       *cdc.Pipeline
	Sequence  *cdc.SequenceGenerator
}

// RepositoryResolver locates a RepositoryContext by the identifier parsed
// out of the request path.
type RepositoryResolver interface {
	Resolve(ctx context.Context, repositoryID string) (*RepositoryContext, error)
}

// Server is the net/http.Handler implementing the Smart HTTP surface.
type Server struct {
	Repos RepositoryResolver
	Auth  AuthOracle
	Perm  PermissionOracle
	Log   log.Logger

	mux *http.ServeMux
}

// NewServer wires a Server and registers its routes.
func NewServer(repos RepositoryResolver, auth AuthOracle, perm PermissionOracle, logger log.Logger) *Server {
	if logger == nil {
		logger = log.Noop()
	}
	s := &Server{Repos: repos, Auth: auth, Perm: perm, Log: logger, mux: http.NewServeMux()}
	s.mux.HandleFunc("/", s.routeRequest)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routeRequest(w http.ResponseWriter, r *http.Request) {
	repoID, suffix, err := parseRepoPath(r.URL.Path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	repoID, err = security.ValidateRepositoryID(repoID)
	if err != nil {
		http.Error(w, "invalid repository identifier", http.StatusBadRequest)
		return
	}

	switch {
	case suffix == "/info/refs":
		s.handleInfoRefs(w, r, repoID)
	case suffix == "/git-upload-pack":
		s.handleService(w, r, repoID, ServiceUploadPack)
	case suffix == "/git-receive-pack":
		s.handleService(w, r, repoID, ServiceReceivePack)
	default:
		http.NotFound(w, r)
	}
}

// parseRepoPath splits "/<repo>/info/refs" (or /git-upload-pack,
// /git-receive-pack) into the repository id and the recognised suffix.
func parseRepoPath(path string) (repoID, suffix string, err error) {
	for _, candidate := range []string{"/info/refs", "/git-upload-pack", "/git-receive-pack"} {
		if idx := lastIndex(path, candidate); idx >= 0 && idx+len(candidate) == len(path) {
			return strings.TrimPrefix(path[:idx], "/"), candidate, nil
		}
	}
	return "", "", errUnrecognisedPath
}

func lastIndex(s, sub string) int {
	for i := len(s) - len(sub); i >= 0; i-- {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request, repoID string, svc Service) (string, bool) {
	actor, ok := s.Auth.Authenticate(r)
	if !ok {
		w.Header().Set("WWW-Authenticate", `Basic realm="githost"`)
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return "", false
	}
	if !s.Perm.Authorize(r.Context(), actor, repoID, svc) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return "", false
	}
	return actor, true
}
