package legal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dspops/portal/internal/agreements"
)

func TestLoadRendersEveryDocument(t *testing.T) {
	lib, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{MembershipAgreement, NDA, PrivacyPolicy, TermsOfUse}, lib.Names())

	doc, err := lib.Get(NDA)
	require.NoError(t, err)
	assert.Equal(t, "Mutual Non-Disclosure Agreement", doc.Title)
	assert.Equal(t, agreements.NDAVersion, doc.Version)
	assert.Contains(t, doc.HTML, "<h1>Mutual Non-Disclosure Agreement</h1>")
	assert.Contains(t, doc.HTML, "<strong>Confidential Information</strong>")

	_, err = lib.Get("cookie-policy")
	assert.ErrorIs(t, err, ErrUnknownDocument)
}

func TestForAgreement(t *testing.T) {
	lib, err := Load()
	require.NoError(t, err)

	doc, err := lib.ForAgreement(agreements.KindMembership)
	require.NoError(t, err)
	assert.Equal(t, agreements.MembershipVersion, doc.Version)
}

func TestHandler(t *testing.T) {
	lib, err := Load()
	require.NoError(t, err)
	r := chi.NewRouter()
	r.Route("/legal", NewHandler(lib).MountRoutes)

	res := httptest.NewRecorder()
	r.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/legal/terms-of-use", nil))
	require.Equal(t, http.StatusOK, res.Code)
	var doc Document
	require.NoError(t, json.NewDecoder(res.Body).Decode(&doc))
	assert.Equal(t, "Terms of Use", doc.Title)

	res = httptest.NewRecorder()
	r.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/legal/unknown", nil))
	assert.Equal(t, http.StatusNotFound, res.Code)
}
