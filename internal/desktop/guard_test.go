package desktop

import (
	"context"
	"net/http/httptest"
	"testing"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"tregate/internal/graph"
	"tregate/pkg/logging"

	desktopv1alpha1 "tregate/pkg/apis/desktop/v1alpha1"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logging.InitForTests()
}

func instance(name, user, project, podIP, phase string) *desktopv1alpha1.DesktopInstance {
	return &desktopv1alpha1.DesktopInstance{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "desktops"},
		Spec: desktopv1alpha1.DesktopInstanceSpec{
			User:    user,
			Project: project,
		},
		Status: desktopv1alpha1.DesktopInstanceStatus{
			Phase:     phase,
			PodIP:     podIP,
			LinuxUser: "desktop",
		},
	}
}

func testGuard(t *testing.T, objs ...client.Object) *Guard {
	t.Helper()
	c := fake.NewClientBuilder().
		WithScheme(graph.NewScheme()).
		WithObjects(objs...).
		Build()
	return NewGuard(c, "desktops")
}

func TestClientIPPrecedence(t *testing.T) {
	r := httptest.NewRequest("GET", "/auth/validate", nil)
	r.RemoteAddr = "10.0.0.1:43210"
	assert.Equal(t, "10.0.0.1", ClientIP(r))

	r.Header.Set("X-Real-IP", "10.1.2.3")
	assert.Equal(t, "10.1.2.3", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "10.42.0.7, 10.0.0.1")
	assert.Equal(t, "10.42.0.7", ClientIP(r))
}

func TestDetectMatchesRunningDesktop(t *testing.T) {
	g := testGuard(t,
		instance("ada-geo-0", "ada", "geophysics", "10.42.0.7", desktopv1alpha1.PhaseRunning),
		instance("bob-ml-0", "bob", "climate-ml", "10.42.0.8", desktopv1alpha1.PhaseRunning),
	)

	r := httptest.NewRequest("GET", "/auth/validate", nil)
	r.Header.Set("X-Forwarded-For", "10.42.0.7")

	dctx, ok := g.Detect(context.Background(), r, "ada")
	require.True(t, ok)
	assert.Equal(t, "geophysics", dctx.Project)
	assert.Equal(t, "ada-geo-0", dctx.Instance)
}

func TestDetectIgnoresOtherUsersPods(t *testing.T) {
	g := testGuard(t,
		instance("bob-ml-0", "bob", "climate-ml", "10.42.0.7", desktopv1alpha1.PhaseRunning),
	)

	r := httptest.NewRequest("GET", "/auth/validate", nil)
	r.Header.Set("X-Forwarded-For", "10.42.0.7")

	_, ok := g.Detect(context.Background(), r, "ada")
	assert.False(t, ok)
}

func TestDetectIgnoresStoppedDesktops(t *testing.T) {
	g := testGuard(t,
		instance("ada-geo-0", "ada", "geophysics", "10.42.0.7", desktopv1alpha1.PhasePending),
	)

	r := httptest.NewRequest("GET", "/auth/validate", nil)
	r.Header.Set("X-Forwarded-For", "10.42.0.7")

	_, ok := g.Detect(context.Background(), r, "ada")
	assert.False(t, ok)
}

func TestDetectNoMatchFromOrdinaryBrowser(t *testing.T) {
	g := testGuard(t,
		instance("ada-geo-0", "ada", "geophysics", "10.42.0.7", desktopv1alpha1.PhaseRunning),
	)

	r := httptest.NewRequest("GET", "/auth/validate", nil)
	r.Header.Set("X-Forwarded-For", "192.168.1.50")

	_, ok := g.Detect(context.Background(), r, "ada")
	assert.False(t, ok)
}
