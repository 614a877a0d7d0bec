package profiles

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dspops/portal/internal/rbac"
	"github.com/dspops/portal/internal/roles"
	"github.com/dspops/portal/internal/shared"
)

type stubIdempotency struct {
	seen    map[string]bool
	deleted []string
}

func (s *stubIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if s.seen[key] {
		return shared.ErrIdempotencyConflict
	}
	s.seen[key] = true
	return nil
}

func (s *stubIdempotency) Delete(ctx context.Context, key string) error {
	delete(s.seen, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func newTestRouter(t *testing.T, store *stubStore, actor uuid.UUID, idem Idempotency) http.Handler {
	t.Helper()
	svc := NewService(store, nil, nil, nil)
	h := NewHandler(nil, svc, rbac.Middleware{Roles: svc}, idem)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithIdentity(req.Context(), &shared.Identity{UserID: actor})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/me", h.MountMe)
	r.Route("/admin/users", h.MountAdmin)
	return r
}

func newPromoteRequest(target uuid.UUID, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/admin/users/"+target.String()+"/promote", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestMe(t *testing.T) {
	store := newStubStore()
	actor := uuid.New()
	store.profiles[actor] = Profile{UserID: actor, FirstName: "Grace", LastName: "Hopper", Role: roles.Investor, CompanyName: "Navy"}
	router := newTestRouter(t, store, actor, nil)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusOK, res.Code)

	var body profileResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "Grace Hopper", body.FullName)
	assert.Equal(t, "investor", body.Role)
}

func TestPromoteRequiresAdmin(t *testing.T) {
	store := newStubStore()
	actor := uuid.New()
	store.profiles[actor] = Profile{UserID: actor, Role: roles.Investor}
	router := newTestRouter(t, store, actor, nil)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, newPromoteRequest(uuid.New(), `{"role":"admin"}`))
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Empty(t, store.promoted)
}

func TestPromoteValidationAndOutcomes(t *testing.T) {
	store := newStubStore()
	actor := uuid.New()
	target := uuid.New()
	store.profiles[actor] = Profile{UserID: actor, Role: roles.Admin}
	store.profiles[target] = Profile{UserID: target, Role: roles.PortalMember}
	idem := &stubIdempotency{seen: map[string]bool{}}
	router := newTestRouter(t, store, actor, idem)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, newPromoteRequest(target, `{"role":""}`))
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = httptest.NewRecorder()
	router.ServeHTTP(res, newPromoteRequest(target, `{"role":"owner"}`))
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Empty(t, store.promoted)

	store.promoteRes = PromoteResult{Success: false, Message: "target is suspended"}
	req := newPromoteRequest(target, `{"role":"investor"}`)
	req.Header.Set("Idempotency-Key", "k1")
	res = httptest.NewRecorder()
	router.ServeHTTP(res, req)
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
	assert.Contains(t, res.Body.String(), "target is suspended")
	assert.Equal(t, []string{"k1"}, idem.deleted)

	store.promoteRes = PromoteResult{Success: true}
	req = newPromoteRequest(target, `{"role":"investor"}`)
	req.Header.Set("Idempotency-Key", "k1")
	res = httptest.NewRecorder()
	router.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "User role updated.")

	req = newPromoteRequest(target, `{"role":"investor"}`)
	req.Header.Set("Idempotency-Key", "k1")
	res = httptest.NewRecorder()
	router.ServeHTTP(res, req)
	assert.Equal(t, http.StatusConflict, res.Code)
}

func TestListUsers(t *testing.T) {
	store := newStubStore()
	actor := uuid.New()
	other := uuid.New()
	store.profiles[actor] = Profile{UserID: actor, FirstName: "Ada", LastName: "Lovelace", Role: roles.Admin}
	store.profiles[other] = Profile{UserID: other, FirstName: "Grace", LastName: "Hopper", Role: roles.Investor}
	router := newTestRouter(t, store, actor, nil)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/admin/users?role=investor&limit=5", nil))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "Grace Hopper")
	assert.NotContains(t, res.Body.String(), "Ada Lovelace")
	assert.Equal(t, 5, store.lastList.Limit)

	res = httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/admin/users?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/admin/users?role=owner", nil))
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestListUsersRequiresCapability(t *testing.T) {
	store := newStubStore()
	actor := uuid.New()
	store.profiles[actor] = Profile{UserID: actor, FirstName: "Grace", LastName: "Hopper", Role: roles.PortalMember}
	router := newTestRouter(t, store, actor, nil)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/admin/users", nil))
	assert.Equal(t, http.StatusForbidden, res.Code)
}
