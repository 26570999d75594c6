package authgin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/vpnkit/core"
	"github.com/open-rails/vpnkit/entitlements"
	memorystore "github.com/open-rails/vpnkit/storage/memory"
	authtest "github.com/open-rails/vpnkit/testing"
)

func newTestRouter(t *testing.T) (*gin.Engine, *authtest.TestIssuer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	free := entitlements.PackageTemplate{
		ID: uuid.New(), Name: "Free Daily", Kind: entitlements.KindFreeDaily, DurationDays: 1,
	}
	catalog := memorystore.NewCatalog(free)
	ep := entitlements.Endpoint{ID: uuid.New(), Address: "tunnel.example.net", Port: 443}

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	svc := core.New(
		memorystore.NewStore(catalog),
		catalog,
		memorystore.NewDirectory(ep),
		memorystore.NewProfiles(),
		core.WithLogger(log),
	)

	issuer := authtest.NewTestIssuer("vpnkit-test")
	t.Cleanup(issuer.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	v, err := NewVerifier(ctx, issuer.URL(), issuer.Audience(), issuer.JWKSURL())
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	r := gin.New()
	Mount(r, svc, v, nil)
	return r, issuer
}

func TestFreeDailyClaimRoundTrip(t *testing.T) {
	r, issuer := newTestRouter(t)
	user := uuid.New().String()
	token := issuer.CreateToken(user)

	do := func() (*httptest.ResponseRecorder, map[string]json.RawMessage) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/packages/free-daily", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		r.ServeHTTP(w, req)
		var body map[string]json.RawMessage
		_ = json.Unmarshal(w.Body.Bytes(), &body)
		return w, body
	}

	w, body := do()
	if w.Code != http.StatusOK {
		t.Fatalf("first claim: status = %d, body = %s", w.Code, w.Body.String())
	}
	var link string
	if err := json.Unmarshal(body["link"], &link); err != nil || link == "" {
		t.Fatalf("missing link in response: %s", w.Body.String())
	}

	// Idempotent while active: the same link comes back.
	w2, body2 := do()
	if w2.Code != http.StatusOK {
		t.Fatalf("second claim: status = %d", w2.Code)
	}
	var link2 string
	_ = json.Unmarshal(body2["link"], &link2)
	if link2 != link {
		t.Errorf("repeat claim returned a different link:\n%s\n%s", link, link2)
	}
}

func TestAuthRequired(t *testing.T) {
	r, issuer := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/packages/mine", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/packages/mine", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/packages/mine", nil)
	req.Header.Set("Authorization", "Bearer "+issuer.CreateToken(uuid.New().String()))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
}
