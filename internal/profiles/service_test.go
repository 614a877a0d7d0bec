package profiles

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dspops/portal/internal/roles"
	"github.com/dspops/portal/internal/shared"
)

type stubStore struct {
	profiles   map[uuid.UUID]Profile
	getCalls   int
	getErr     error
	promoteRes PromoteResult
	promoteErr error
	promoted   []roles.Role
	lastList   ListFilter
	onGet      func(userID uuid.UUID)
}

func newStubStore() *stubStore {
	return &stubStore{profiles: make(map[uuid.UUID]Profile)}
}

func (s *stubStore) Get(ctx context.Context, userID uuid.UUID) (Profile, error) {
	s.getCalls++
	if s.getErr != nil {
		return Profile{}, s.getErr
	}
	p, ok := s.profiles[userID]
	if hook := s.onGet; hook != nil {
		s.onGet = nil
		hook(userID)
	}
	if !ok {
		return Profile{}, shared.ErrNotFound
	}
	return p, nil
}

func (s *stubStore) List(ctx context.Context, f ListFilter) ([]Profile, error) {
	s.lastList = f
	var out []Profile
	for _, p := range s.profiles {
		if f.Role == "" || p.Role == f.Role {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName() < out[j].FullName() })
	return out, nil
}

func (s *stubStore) Promote(ctx context.Context, target uuid.UUID, role roles.Role) (PromoteResult, error) {
	s.promoted = append(s.promoted, role)
	if s.promoteErr == nil && s.promoteRes.Success {
		p := s.profiles[target]
		p.Role = role
		s.profiles[target] = p
	}
	return s.promoteRes, s.promoteErr
}

type stubAuditor struct {
	logs []shared.AuditLog
}

func (a *stubAuditor) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type hitCounter struct {
	hits, misses int
}

func (h *hitCounter) RoleCacheLookup(hit bool) {
	if hit {
		h.hits++
		return
	}
	h.misses++
}

func newRedisCache(t *testing.T) *RedisRoleCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRoleCache(client, time.Minute)
}

func TestFullName(t *testing.T) {
	p := Profile{FirstName: "Ada", LastName: "Lovelace"}
	assert.Equal(t, "Ada Lovelace", p.FullName())
}

func TestRolesReadThrough(t *testing.T) {
	for name, cache := range map[string]RoleCache{
		"redis":  newRedisCache(t),
		"memory": NewMemoryRoleCache(16, time.Minute),
	} {
		t.Run(name, func(t *testing.T) {
			store := newStubStore()
			userID := uuid.New()
			store.profiles[userID] = Profile{UserID: userID, Role: "Investor"}
			counter := &hitCounter{}
			svc := NewService(store, cache, nil, nil).WithObserver(counter)
			ctx := context.Background()

			held, err := svc.Roles(ctx, userID, false)
			require.NoError(t, err)
			assert.Equal(t, []roles.Role{roles.Investor}, held)

			_, err = svc.Roles(ctx, userID, false)
			require.NoError(t, err)
			assert.Equal(t, 1, store.getCalls)

			_, err = svc.Roles(ctx, userID, true)
			require.NoError(t, err)
			assert.Equal(t, 2, store.getCalls)

			require.NoError(t, svc.InvalidateRoles(ctx, userID))
			_, err = svc.Roles(ctx, userID, false)
			require.NoError(t, err)
			assert.Equal(t, 3, store.getCalls)
			assert.Equal(t, 1, counter.hits)
			assert.Equal(t, 2, counter.misses)
		})
	}
}

func TestRolesFetchFailureIsNotCached(t *testing.T) {
	store := newStubStore()
	store.getErr = errors.New("db down")
	cache := NewMemoryRoleCache(4, time.Minute)
	svc := NewService(store, cache, nil, nil)
	userID := uuid.New()

	_, err := svc.Roles(context.Background(), userID, false)
	require.Error(t, err)
	_, _, hit, _ := cache.Get(context.Background(), userID)
	assert.False(t, hit)
}

func TestRolesInvalidatedDuringReadAreNotCached(t *testing.T) {
	for name, cache := range map[string]RoleCache{
		"redis":  newRedisCache(t),
		"memory": NewMemoryRoleCache(16, time.Minute),
	} {
		t.Run(name, func(t *testing.T) {
			store := newStubStore()
			userID := uuid.New()
			store.profiles[userID] = Profile{UserID: userID, Role: roles.PortalMember}
			svc := NewService(store, cache, nil, nil)
			ctx := context.Background()

			// A promotion commits and invalidates after the first read
			// loaded the row but before its result reaches the cache.
			store.onGet = func(id uuid.UUID) {
				p := store.profiles[id]
				p.Role = roles.Admin
				store.profiles[id] = p
				require.NoError(t, svc.InvalidateRoles(ctx, id))
			}
			held, err := svc.Roles(ctx, userID, false)
			require.NoError(t, err)
			assert.Equal(t, []roles.Role{roles.PortalMember}, held)

			held, err = svc.Roles(ctx, userID, false)
			require.NoError(t, err)
			assert.Equal(t, []roles.Role{roles.Admin}, held)
			assert.Equal(t, 2, store.getCalls)
		})
	}
}

func TestRedisCacheGenerations(t *testing.T) {
	cache := newRedisCache(t)
	ctx := context.Background()
	userID := uuid.New()

	_, gen, hit, err := cache.Get(ctx, userID)
	require.NoError(t, err)
	require.False(t, hit)
	require.NoError(t, cache.Set(ctx, userID, gen, []roles.Role{roles.Admin}))
	held, _, hit, err := cache.Get(ctx, userID)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, []roles.Role{roles.Admin}, held)

	require.NoError(t, cache.Invalidate(ctx, userID))
	_, _, hit, err = cache.Get(ctx, userID)
	require.NoError(t, err)
	assert.False(t, hit)

	// A write for the superseded generation stays invisible.
	require.NoError(t, cache.Set(ctx, userID, gen, []roles.Role{roles.PortalMember}))
	_, _, hit, err = cache.Get(ctx, userID)
	require.NoError(t, err)
	assert.False(t, hit)

	other := uuid.New()
	_, _, hit, err = cache.Get(ctx, other)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestPromote(t *testing.T) {
	store := newStubStore()
	target := uuid.New()
	store.profiles[target] = Profile{UserID: target, Role: roles.PortalMember}
	store.promoteRes = PromoteResult{Success: true, Message: "ok"}
	audit := &stubAuditor{}
	cache := NewMemoryRoleCache(4, time.Minute)
	svc := NewService(store, cache, audit, nil)
	ctx := context.Background()
	actor := uuid.New()

	_, err := svc.Roles(ctx, target, false)
	require.NoError(t, err)

	res, err := svc.Promote(ctx, actor, target, roles.Investor)
	require.NoError(t, err)
	assert.True(t, res.Success)

	held, err := svc.Roles(ctx, target, false)
	require.NoError(t, err)
	assert.Equal(t, []roles.Role{roles.Investor}, held)

	require.Len(t, audit.logs, 1)
	assert.Equal(t, actor, audit.logs[0].ActorID)
	assert.Equal(t, target.String(), audit.logs[0].EntityID)
}

func TestPromoteRejected(t *testing.T) {
	store := newStubStore()
	store.promoteRes = PromoteResult{Success: false, Message: "cannot demote the last super admin"}
	audit := &stubAuditor{}
	svc := NewService(store, nil, audit, nil)

	_, err := svc.Promote(context.Background(), uuid.New(), uuid.New(), roles.Admin)
	require.ErrorIs(t, err, ErrPromoteRejected)
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "cannot demote the last super admin", rejected.UserMessage())
	assert.Empty(t, audit.logs)

	_, err = svc.Promote(context.Background(), uuid.New(), uuid.New(), "owner")
	assert.ErrorIs(t, err, roles.ErrUnknownRole)
	assert.Len(t, store.promoted, 1)
}

func TestListClampsPaging(t *testing.T) {
	store := newStubStore()
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.List(ctx, ListFilter{Limit: 10000, Offset: -3})
	require.NoError(t, err)
	assert.Equal(t, maxListLimit, store.lastList.Limit)
	assert.Zero(t, store.lastList.Offset)

	_, err = svc.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, defaultListLimit, store.lastList.Limit)

	_, err = svc.List(ctx, ListFilter{Role: "owner"})
	assert.ErrorIs(t, err, roles.ErrUnknownRole)
}
