package server

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	ctrlclient "sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"tregate/internal/authz"
	"tregate/internal/config"
	"tregate/internal/desktop"
	"tregate/internal/graph"
	"tregate/internal/headersig"
	"tregate/internal/idp"
	"tregate/internal/session"
	"tregate/internal/token"
	"tregate/pkg/logging"

	desktopv1alpha1 "tregate/pkg/apis/desktop/v1alpha1"
	identityv1alpha1 "tregate/pkg/apis/identity/v1alpha1"
	researchv1alpha1 "tregate/pkg/apis/research/v1alpha1"
)

func init() {
	logging.InitForTests()
}

const (
	fixtureIssuer   = "https://idp.example.org/realms/research"
	fixtureAudience = "tregate"
	fixtureKeyID    = "fixture-key"
	fixtureSecret   = "signing-secret"
)

// fixture wires a complete server against in-memory fakes: a JWKS endpoint
// with a throwaway RSA key, a fake resource graph, miniredis sessions and a
// stub identity provider.
type fixture struct {
	srv      *httptest.Server
	private  *rsa.PrivateKey
	store    session.Store
	registry *session.Registry
	cfg      config.Config

	// refreshed is the token the stub token endpoint hands out.
	refreshed string
}

func newFixture(t *testing.T, objs ...ctrlclient.Object) *fixture {
	t.Helper()

	f := &fixture{}

	// Identity provider: JWKS plus a refresh-grant token endpoint.
	private, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	f.private = private

	pub, err := jwk.FromRaw(private.Public())
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, fixtureKeyID))
	require.NoError(t, pub.Set(jwk.AlgorithmKey, "RS256"))
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))
	jwksBody, err := json.Marshal(set)
	require.NoError(t, err)

	idpMux := http.NewServeMux()
	idpMux.HandleFunc("/realms/research/protocol/openid-connect/certs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(jwksBody)
	})
	idpMux.HandleFunc("/realms/research/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		if f.refreshed == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"access_token":%q,"refresh_token":"rotated","token_type":"Bearer","expires_in":3600}`, f.refreshed)
	})
	idpMux.HandleFunc("/realms/research/protocol/openid-connect/revoke", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	idpMux.HandleFunc("/realms/research/protocol/openid-connect/userinfo", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"preferred_username":"alice","email":"alice@userinfo.example.org"}`))
	})
	idpSrv := httptest.NewServer(idpMux)
	t.Cleanup(idpSrv.Close)

	cfg := config.GetDefaultConfig()
	cfg.IdentityProvider.ExternalURL = "https://idp.example.org"
	cfg.IdentityProvider.InternalURL = idpSrv.URL
	cfg.IdentityProvider.Realm = "research"
	cfg.IdentityProvider.ClientID = fixtureAudience
	cfg.IdentityProvider.ClientSecret = "s3cret"
	cfg.Signing.Secret = fixtureSecret
	f.cfg = cfg

	// Sessions in miniredis.
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	f.store = session.NewRedisStore(rdb, cfg.Session.TTL())
	f.registry = session.NewRegistry()

	// Resource graph and desktops share one fake cluster.
	k8s := fake.NewClientBuilder().
		WithScheme(graph.NewScheme()).
		WithObjects(objs...).
		Build()
	g := graph.NewClientFor(k8s, cfg.Kubernetes.Namespace)

	validator, err := token.NewValidator(context.Background(), cfg.IdentityProvider.JWKSURL(), fixtureIssuer, fixtureAudience)
	require.NoError(t, err)

	idpClient := idp.NewClient(cfg.IdentityProvider)
	allowlist, err := config.NewAllowlist(cfg.Static)
	require.NoError(t, err)

	s := New(Deps{
		Config:     cfg,
		Allowlist:  allowlist,
		Validator:  validator,
		Lifecycle:  token.NewLifecycle(idpClient, f.store),
		Authorizer: authz.New(g),
		Graph:      g,
		Guard:      desktop.NewGuard(k8s, cfg.Kubernetes.DesktopNamespace),
		IdP:        idpClient,
		Store:      f.store,
		Registry:   f.registry,
	})
	f.srv = httptest.NewServer(s.Handler())
	t.Cleanup(f.srv.Close)

	return f
}

// mint signs a token for username with the fixture issuer's key.
func (f *fixture) mint(t *testing.T, username string, ttl time.Duration) string {
	t.Helper()
	return f.mintClaims(t, jwt.MapClaims{
		"iss":                fixtureIssuer,
		"aud":                fixtureAudience,
		"exp":                time.Now().Add(ttl).Unix(),
		"preferred_username": username,
		"email":              username + "@example.org",
		"groups":             []string{"geophysics-team"},
	})
}

func (f *fixture) mintClaims(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = fixtureKeyID
	raw, err := tok.SignedString(f.private)
	require.NoError(t, err)
	return raw
}

// validate performs a forward-auth subrequest for the given original URL.
func (f *fixture) validate(t *testing.T, original string, mutate ...func(*http.Request)) *http.Response {
	t.Helper()
	req, err := http.NewRequest("GET", f.srv.URL+"/auth/validate", nil)
	require.NoError(t, err)
	req.Header.Set("X-Original-URL", original)
	for _, m := range mutate {
		m(req)
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func graphUser(name string, groups ...string) *identityv1alpha1.User {
	return &identityv1alpha1.User{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "default"},
		Spec:       identityv1alpha1.UserSpec{Groups: groups},
	}
}

func graphGroup(name string, projects ...string) *identityv1alpha1.Group {
	return &identityv1alpha1.Group{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "default"},
		Spec:       identityv1alpha1.GroupSpec{Projects: projects},
	}
}

func graphProject(name, description string) *researchv1alpha1.Project {
	return &researchv1alpha1.Project{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "default"},
		Spec: researchv1alpha1.ProjectSpec{
			Description: description,
			Profiles: []researchv1alpha1.SpawnProfile{
				{Name: "small", DisplayName: "Small", Image: "lab:small"},
			},
		},
	}
}

func standardGraph() []ctrlclient.Object {
	return []ctrlclient.Object{
		graphUser("alice", "geophysics-team"),
		graphGroup("geophysics-team", "asthma"),
		graphProject("asthma", "Asthma cohort study"),
	}
}

func TestValidateNoCredentialOnProtectedPath(t *testing.T) {
	f := newFixture(t, standardGraph()...)

	resp := f.validate(t, "https://apps.example.org/user/alice/lab")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestValidateAuthorizedWithVerifiableAssertion(t *testing.T) {
	f := newFixture(t, standardGraph()...)
	tok := f.mint(t, "alice", time.Hour)

	resp := f.validate(t, "https://apps.example.org/user/alice/lab?token="+tok+"&project=asthma")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "alice", resp.Header.Get("X-Auth-User"))
	assert.Equal(t, "asthma", resp.Header.Get("X-Auth-Project"))
	assert.Equal(t, "Bearer "+tok, resp.Header.Get("Authorization"))
	assert.Contains(t, resp.Header.Get("Cache-Control"), "no-store")

	// The downstream verifier accepts the emitted assertion on its own.
	stamp, err := strconv.ParseInt(resp.Header.Get("X-Auth-Stamp"), 10, 64)
	require.NoError(t, err)
	verifier := headersig.NewSigner(fixtureSecret, "jupyterhub", 60*time.Second)
	assert.NoError(t, verifier.Verify(headersig.Assertion{
		Username:  resp.Header.Get("X-Auth-User"),
		Project:   resp.Header.Get("X-Auth-Project"),
		Audience:  resp.Header.Get("X-Auth-Audience"),
		Timestamp: stamp,
		Signature: resp.Header.Get("X-Auth-Signature"),
	}))
}

func TestValidateUnauthorizedProject(t *testing.T) {
	f := newFixture(t, standardGraph()...)
	tok := f.mint(t, "alice", time.Hour)

	resp := f.validate(t, "https://apps.example.org/user/alice/lab?token="+tok+"&project=diabetes")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestValidateInvalidCredential(t *testing.T) {
	f := newFixture(t, standardGraph()...)
	expired := f.mint(t, "alice", -time.Minute)

	resp := f.validate(t, "https://apps.example.org/user/alice/lab?token="+expired+"&project=asthma")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestValidateStaticAsset(t *testing.T) {
	f := newFixture(t, standardGraph()...)

	resp := f.validate(t, "https://apps.example.org/hub/static/css/style.min.css")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("X-Auth-User"))
}

func TestValidateAnonymousUnprotectedPath(t *testing.T) {
	f := newFixture(t, standardGraph()...)

	resp := f.validate(t, "https://apps.example.org/docs/index.html")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("X-Auth-User"))
}

func TestValidateRefreshesExpiringSessionCredential(t *testing.T) {
	f := newFixture(t, standardGraph()...)

	// The session holds a credential inside the refresh threshold; the stub
	// token endpoint hands out a fresh one.
	staleTok := f.mint(t, "alice", time.Minute)
	f.refreshed = f.mint(t, "alice", time.Hour)

	sess := session.New()
	sess.Username = "alice"
	sess.CurrentProject = "asthma"
	sess.SetCredential("asthma", staleTok, "refresh-1")
	require.NoError(t, f.store.Save(context.Background(), sess))

	resp := f.validate(t, "https://apps.example.org/user/alice/lab?project=asthma",
		func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: f.cfg.Session.CookieName, Value: sess.ID})
		})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bearer "+f.refreshed, resp.Header.Get("Authorization"))

	// The rotated pair was persisted.
	saved, err := f.store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, f.refreshed, saved.CredentialFor("asthma"))
	assert.Equal(t, "rotated", saved.RefreshCredentialFor("asthma"))
}

func TestValidateDesktopPinnedSessionDeniesOtherProject(t *testing.T) {
	objs := append(standardGraph(),
		graphGroup("ml-lab", "diabetes"),
		graphProject("diabetes", "Diabetes study"),
	)
	f := newFixture(t, objs...)
	tok := f.mint(t, "alice", time.Hour)

	sess := session.New()
	sess.Username = "alice"
	sess.PinDesktop("asthma")
	require.NoError(t, f.store.Save(context.Background(), sess))

	withSession := func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: f.cfg.Session.CookieName, Value: sess.ID})
	}

	resp := f.validate(t, "https://apps.example.org/user/alice/lab?token="+tok+"&project=diabetes", withSession)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// The pinned project itself stays reachable.
	resp = f.validate(t, "https://apps.example.org/user/alice/lab?token="+tok+"&project=asthma", withSession)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Launching a new desktop from inside one is refused.
	resp = f.validate(t, "https://apps.example.org/desktop/new?token="+tok+"&project=asthma", withSession)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestValidateUndescribableSubrequest(t *testing.T) {
	f := newFixture(t, standardGraph()...)

	req, err := http.NewRequest("GET", f.srv.URL+"/auth/validate", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestContextEndpoint(t *testing.T) {
	f := newFixture(t, standardGraph()...)
	tok := f.mint(t, "alice", time.Hour)

	req, err := http.NewRequest("GET", f.srv.URL+"/api/context", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body contextResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "alice", body.User)
	assert.Equal(t, []string{"geophysics-team"}, body.Groups)
	require.Len(t, body.Projects, 1)
	assert.Equal(t, "asthma", body.Projects[0].Name)
	assert.Equal(t, "Asthma cohort study", body.Projects[0].Description)
}

func TestContextOnlyListsGrantedProjects(t *testing.T) {
	objs := append(standardGraph(),
		graphProject("diabetes", "Diabetes study"),
	)
	f := newFixture(t, objs...)
	tok := f.mint(t, "alice", time.Hour)

	req, err := http.NewRequest("GET", f.srv.URL+"/api/context", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// diabetes exists in the graph but no group grants it to alice.
	var body contextResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Projects, 1)
	assert.Equal(t, "asthma", body.Projects[0].Name)
}

func TestContextUserMismatch(t *testing.T) {
	f := newFixture(t, standardGraph()...)
	tok := f.mint(t, "alice", time.Hour)

	req, err := http.NewRequest("GET", f.srv.URL+"/api/context?user=bob", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestProfilesEndpoint(t *testing.T) {
	f := newFixture(t, standardGraph()...)

	resp, err := http.Get(f.srv.URL + "/internal/projects/asthma/profiles")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string][]researchv1alpha1.SpawnProfile
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body["profiles"], 1)
	assert.Equal(t, "small", body["profiles"][0].Name)

	resp, err = http.Get(f.srv.URL + "/internal/projects/nonexistent/profiles")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSSOSetsCookiesAndRedirects(t *testing.T) {
	f := newFixture(t, standardGraph()...)
	tok := f.mint(t, "alice", time.Hour)

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(f.srv.URL + "/auth/sso?token=" + url.QueryEscape(tok) + "&project=asthma")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/hub", resp.Header.Get("Location"))

	byName := map[string]*http.Cookie{}
	for _, c := range resp.Cookies() {
		byName[c.Name] = c
	}
	require.Contains(t, byName, "tregate-project")
	assert.Equal(t, "asthma", byName["tregate-project"].Value)
	require.Contains(t, byName, "tregate-auth-token-asthma")
	assert.True(t, byName["tregate-auth-token-asthma"].HttpOnly)
	assert.Equal(t, 3600, byName["tregate-auth-token-asthma"].MaxAge)
	require.Contains(t, byName, f.cfg.Session.CookieName)

	// The session landed in the store with the credential scoped to the
	// project, and the registry knows it for cleanup.
	sess, err := f.store.Get(context.Background(), byName[f.cfg.Session.CookieName].Value)
	require.NoError(t, err)
	assert.Equal(t, tok, sess.CredentialFor("asthma"))
	assert.Equal(t, 1, f.registry.Sessions())
}

func TestSSOFillsEmailFromUserinfo(t *testing.T) {
	f := newFixture(t, standardGraph()...)

	// No email claim on the token; the userinfo endpoint supplies it.
	tok := f.mintClaims(t, jwt.MapClaims{
		"iss":                fixtureIssuer,
		"aud":                fixtureAudience,
		"exp":                time.Now().Add(time.Hour).Unix(),
		"preferred_username": "alice",
		"groups":             []string{"geophysics-team"},
	})

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(f.srv.URL + "/auth/sso?token=" + url.QueryEscape(tok) + "&project=asthma")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	var sessionID string
	for _, c := range resp.Cookies() {
		if c.Name == f.cfg.Session.CookieName {
			sessionID = c.Value
		}
	}
	require.NotEmpty(t, sessionID)

	sess, err := f.store.Get(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, "alice@userinfo.example.org", sess.Email)
}

func TestSSODeniedProject(t *testing.T) {
	f := newFixture(t, standardGraph()...)
	tok := f.mint(t, "alice", time.Hour)

	resp, err := http.Get(f.srv.URL + "/auth/sso?token=" + url.QueryEscape(tok) + "&project=diabetes")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSSOFromDesktopPinsSession(t *testing.T) {
	objs := append(standardGraph(),
		&desktopv1alpha1.DesktopInstance{
			ObjectMeta: metav1.ObjectMeta{Name: "alice-asthma-0", Namespace: "desktops"},
			Spec:       desktopv1alpha1.DesktopInstanceSpec{User: "alice", Project: "asthma"},
			Status:     desktopv1alpha1.DesktopInstanceStatus{Phase: desktopv1alpha1.PhaseRunning, PodIP: "10.42.0.9"},
		},
	)
	f := newFixture(t, objs...)
	tok := f.mint(t, "alice", time.Hour)

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	req, err := http.NewRequest("GET", f.srv.URL+"/auth/sso?token="+url.QueryEscape(tok)+"&project=asthma", nil)
	require.NoError(t, err)
	req.Header.Set("X-Forwarded-For", "10.42.0.9")
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	var sessionID string
	for _, c := range resp.Cookies() {
		if c.Name == f.cfg.Session.CookieName {
			sessionID = c.Value
		}
	}
	require.NotEmpty(t, sessionID)

	sess, err := f.store.Get(context.Background(), sessionID)
	require.NoError(t, err)
	assert.True(t, sess.DesktopContext)
	assert.Equal(t, "asthma", sess.DesktopProject)
}

func TestCleanupSessionRevokesAndDrops(t *testing.T) {
	f := newFixture(t, standardGraph()...)

	sess := session.New()
	sess.Username = "alice"
	require.NoError(t, f.store.Save(context.Background(), sess))
	f.registry.Put(session.RegistryEntry{
		SessionID: sess.ID,
		Username:  "alice",
		Access:    "tok",
		Refresh:   "refresh",
	})

	req, err := http.NewRequest("POST", f.srv.URL+"/api/cleanup-session", nil)
	require.NoError(t, err)
	req.Header.Set("X-Auth-User", "alice")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "cleaned", body["status"])

	assert.Equal(t, 0, f.registry.Sessions())
	_, err = f.store.Get(context.Background(), sess.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, standardGraph()...)

	resp, err := http.Get(f.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
