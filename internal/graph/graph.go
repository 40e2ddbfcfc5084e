// Package graph reads the authorization resource graph: User, Group and
// Project records stored as Kubernetes custom resources. The graph is the
// single source of truth for who may enter which project.
package graph

import (
	"context"
	"errors"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"sigs.k8s.io/controller-runtime/pkg/client"

	desktopv1alpha1 "tregate/pkg/apis/desktop/v1alpha1"
	identityv1alpha1 "tregate/pkg/apis/identity/v1alpha1"
	researchv1alpha1 "tregate/pkg/apis/research/v1alpha1"
)

// ErrNotFound is returned when a graph record does not exist. Any other
// error is a transient API failure and must be treated as fail-closed by
// authorization callers.
var ErrNotFound = errors.New("resource not found")

// Client reads graph records from the cluster.
type Client struct {
	client.Client
	namespace string
}

// NewScheme builds the runtime scheme covering the standard Kubernetes types
// and every resource group the gateway reads.
func NewScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(identityv1alpha1.AddToScheme(scheme))
	utilruntime.Must(researchv1alpha1.AddToScheme(scheme))
	utilruntime.Must(desktopv1alpha1.AddToScheme(scheme))
	return scheme
}

// NewClient creates a graph client reading records from the given namespace.
func NewClient(config *rest.Config, namespace string) (*Client, error) {
	k8sClient, err := client.New(config, client.Options{
		Scheme: NewScheme(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}

	return NewClientFor(k8sClient, namespace), nil
}

// NewClientFor wraps an existing controller-runtime client. Used by tests
// with a fake client.
func NewClientFor(c client.Client, namespace string) *Client {
	return &Client{Client: c, namespace: namespace}
}

// GetUser retrieves a User record by name.
func (c *Client) GetUser(ctx context.Context, name string) (*identityv1alpha1.User, error) {
	user := &identityv1alpha1.User{}
	key := client.ObjectKey{Name: name, Namespace: c.namespace}

	if err := c.Get(ctx, key, user); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, fmt.Errorf("%w: user %q", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to get user %q: %w", name, err)
	}
	return user, nil
}

// GetGroup retrieves a Group record by name.
func (c *Client) GetGroup(ctx context.Context, name string) (*identityv1alpha1.Group, error) {
	group := &identityv1alpha1.Group{}
	key := client.ObjectKey{Name: name, Namespace: c.namespace}

	if err := c.Get(ctx, key, group); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, fmt.Errorf("%w: group %q", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to get group %q: %w", name, err)
	}
	return group, nil
}

// GetProject retrieves a Project record by name.
func (c *Client) GetProject(ctx context.Context, name string) (*researchv1alpha1.Project, error) {
	project := &researchv1alpha1.Project{}
	key := client.ObjectKey{Name: name, Namespace: c.namespace}

	if err := c.Get(ctx, key, project); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, fmt.Errorf("%w: project %q", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to get project %q: %w", name, err)
	}
	return project, nil
}

// ListProjects lists every Project record in the graph namespace.
func (c *Client) ListProjects(ctx context.Context) ([]researchv1alpha1.Project, error) {
	projectList := &researchv1alpha1.ProjectList{}
	if err := c.List(ctx, projectList, client.InNamespace(c.namespace)); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projectList.Items, nil
}
