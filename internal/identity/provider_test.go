package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dspops/portal/internal/shared"
	_ "github.com/dspops/portal/testing"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier("test-secret", "authenticated")
	require.NoError(t, err)
	return v
}

func TestVerifyRoundTrip(t *testing.T) {
	v := newVerifier(t)
	userID := uuid.New()

	raw, err := v.Sign(userID, "ada@example.com", time.Hour)
	require.NoError(t, err)

	id, err := v.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, userID, id.UserID)
	assert.Equal(t, "ada@example.com", id.Email)
	assert.NotEmpty(t, id.TokenID)
}

func TestVerifyRejects(t *testing.T) {
	v := newVerifier(t)
	other, err := NewVerifier("other-secret", "authenticated")
	require.NoError(t, err)

	foreign, err := other.Sign(uuid.New(), "", time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(foreign)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)

	expired, err := v.Sign(uuid.New(), "", -time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)

	wrongAudience, err := NewVerifier("test-secret", "service_role")
	require.NoError(t, err)
	token, err := wrongAudience.Sign(uuid.New(), "", time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(token)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)

	_, err = v.Verify("not-a-jwt")
	assert.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	_, err := NewVerifier("", "")
	assert.Error(t, err)
}

func TestMiddlewareAttachesIdentity(t *testing.T) {
	v := newVerifier(t)
	provider := NewProvider(v, NewRedisRevocations(newRedis(t)), nil, nil)
	userID := uuid.New()
	raw, err := v.Sign(userID, "", time.Hour)
	require.NoError(t, err)

	var seen *shared.Identity
	h := provider.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.IdentityFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, seen)
	assert.Equal(t, userID, seen.UserID)

	seen = nil
	anon := httptest.NewRequest(http.MethodGet, "/", nil)
	anon.Header.Set("Authorization", "Basic abc")
	h.ServeHTTP(httptest.NewRecorder(), anon)
	assert.Nil(t, seen)
}

func TestSignOutRevokesAndBroadcasts(t *testing.T) {
	client := newRedis(t)
	v := newVerifier(t)
	events := NewEvents(client, nil)
	provider := NewProvider(v, NewRedisRevocations(client), events, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	received := make(chan Event, 1)
	require.NoError(t, events.Listen(ctx, func(_ context.Context, ev Event) { received <- ev }))

	userID := uuid.New()
	raw, err := v.Sign(userID, "", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/auth/sign-out", nil)
	req.Header.Set("Authorization", "Bearer "+raw)

	id, err := provider.CurrentUser(req)
	require.NoError(t, err)
	require.NoError(t, provider.SignOut(ctx, id))

	_, err = provider.CurrentUser(req)
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)

	select {
	case ev := <-received:
		assert.Equal(t, EventSignedOut, ev.Kind)
		assert.Equal(t, userID, ev.UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("sign-out event not received")
	}
}

func TestTokenWithoutIDIsRejected(t *testing.T) {
	client := newRedis(t)
	v := newVerifier(t)
	provider := NewProvider(v, NewRedisRevocations(client), nil, nil)

	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		Audience:  jwt.ClaimStrings{"authenticated"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = v.Verify(raw)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	_, err = provider.CurrentUser(req)
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)

	err = provider.SignOut(context.Background(), &shared.Identity{UserID: uuid.New(), ExpiresAt: time.Now().Add(time.Hour)})
	assert.ErrorIs(t, err, ErrNoTokenID)

	revoked, err := NewRedisRevocations(client).IsRevoked(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestFirstUseBroadcastsSignIn(t *testing.T) {
	client := newRedis(t)
	v := newVerifier(t)
	events := NewEvents(client, nil)
	provider := NewProvider(v, NewRedisRevocations(client), events, nil).WithSightings(NewRedisSightings(client))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	received := make(chan Event, 4)
	require.NoError(t, events.Listen(ctx, func(_ context.Context, ev Event) { received <- ev }))

	userID := uuid.New()
	raw, err := v.Sign(userID, "", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+raw)

	for i := 0; i < 3; i++ {
		_, err := provider.CurrentUser(req)
		require.NoError(t, err)
	}

	select {
	case ev := <-received:
		assert.Equal(t, EventSignedIn, ev.Kind)
		assert.Equal(t, userID, ev.UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("sign-in event not received")
	}
	select {
	case ev := <-received:
		t.Fatalf("unexpected second event %s", ev.Kind)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSignOutHandler(t *testing.T) {
	v := newVerifier(t)
	provider := NewProvider(v, NewRedisRevocations(newRedis(t)), nil, nil)
	handler := NewHandler(nil, provider)

	res := httptest.NewRecorder()
	handler.signOut(res, httptest.NewRequest(http.MethodPost, "/auth/sign-out", nil))
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	id := &shared.Identity{UserID: uuid.New(), TokenID: "jti-1", ExpiresAt: time.Now().Add(time.Hour)}
	req := httptest.NewRequest(http.MethodPost, "/auth/sign-out", nil)
	req = req.WithContext(shared.ContextWithIdentity(req.Context(), id))
	res = httptest.NewRecorder()
	handler.signOut(res, req)
	assert.Equal(t, http.StatusNoContent, res.Code)
}
