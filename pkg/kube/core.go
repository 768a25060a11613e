package kube

import (
	"context"

	"github.com/pkg/errors"
	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	storagev1 "k8s.io/api/storage/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/microsoft/arcdata-cli/pkg/retry"
)

// NamespaceExists reports whether the namespace exists.
func (c *Client) NamespaceExists(ctx context.Context, name string) (bool, error) {
	r := retry.Fetch(ctx, c.Executor, c.Policy.WithName("get namespace"), func(ctx context.Context) (*corev1.Namespace, error) {
		ns := &corev1.Namespace{}
		err := c.Client.Get(ctx, client.ObjectKey{Name: name}, ns)
		return ns, err
	})
	if r.Presence == retry.Failed {
		return false, errors.Wrapf(r.Err, "get namespace %s", name)
	}
	return r.Found(), nil
}

// EnsureNamespace creates a namespace if it does not exist.
func (c *Client) EnsureNamespace(ctx context.Context, name string) error {
	exists, err := c.NamespaceExists(ctx, name)
	if err != nil || exists {
		return err
	}
	ns := &corev1.Namespace{}
	ns.Name = name
	return c.create(ctx, "namespace", ns)
}

// SecretExists reports whether the secret exists.
func (c *Client) SecretExists(ctx context.Context, namespace, name string) (bool, error) {
	r := retry.Fetch(ctx, c.Executor, c.Policy.WithName("get secret"), func(ctx context.Context) (*corev1.Secret, error) {
		s := &corev1.Secret{}
		err := c.Client.Get(ctx, client.ObjectKey{Namespace: namespace, Name: name}, s)
		return s, err
	})
	if r.Presence == retry.Failed {
		return false, errors.Wrapf(r.Err, "get secret %s/%s", namespace, name)
	}
	return r.Found(), nil
}

// EnsureSecret creates an opaque secret unless one with the same name exists.
// It reports whether the secret was created.
func (c *Client) EnsureSecret(ctx context.Context, namespace, name string, data map[string][]byte) (bool, error) {
	exists, err := c.SecretExists(ctx, namespace, name)
	if err != nil || exists {
		return false, err
	}
	s := &corev1.Secret{Type: corev1.SecretTypeOpaque, Data: data}
	s.Namespace = namespace
	s.Name = name
	if err := c.create(ctx, "secret", s); err != nil {
		return false, err
	}
	return true, nil
}

// EnsureServiceAccount creates a service account if it does not exist.
func (c *Client) EnsureServiceAccount(ctx context.Context, namespace, name string) error {
	sa := &corev1.ServiceAccount{}
	sa.Namespace = namespace
	sa.Name = name
	return c.createIfMissing(ctx, "service account", sa)
}

// EnsureClusterRole creates a cluster role if it does not exist.
func (c *Client) EnsureClusterRole(ctx context.Context, role *rbacv1.ClusterRole) error {
	return c.createIfMissing(ctx, "cluster role", role)
}

// EnsureClusterRoleBinding binds role to a namespaced service account.
func (c *Client) EnsureClusterRoleBinding(ctx context.Context, name, role, namespace, serviceAccount string) error {
	b := &rbacv1.ClusterRoleBinding{
		RoleRef: rbacv1.RoleRef{APIGroup: rbacv1.GroupName, Kind: "ClusterRole", Name: role},
		Subjects: []rbacv1.Subject{{
			Kind:      rbacv1.ServiceAccountKind,
			Name:      serviceAccount,
			Namespace: namespace,
		}},
	}
	b.Name = name
	return c.createIfMissing(ctx, "cluster role binding", b)
}

// StorageClassExists returns nil when the class exists and an error matching
// retry.ErrNotFound when it does not.
func (c *Client) StorageClassExists(ctx context.Context, name string) error {
	sc := &storagev1.StorageClass{}
	if err := c.Client.Get(ctx, client.ObjectKey{Name: name}, sc); err != nil {
		return notFound(errors.Wrapf(err, "get storage class %s", name))
	}
	return nil
}

func (c *Client) create(ctx context.Context, what string, obj client.Object) error {
	err := c.run(ctx, "create "+what, func(ctx context.Context) error {
		return c.Client.Create(ctx, obj)
	})
	return errors.Wrapf(err, "create %s %s", what, obj.GetName())
}

func (c *Client) createIfMissing(ctx context.Context, what string, obj client.Object) error {
	err := c.run(ctx, "create "+what, func(ctx context.Context) error {
		err := c.Client.Create(ctx, obj)
		if apierrors.IsAlreadyExists(err) {
			return nil
		}
		return err
	})
	return errors.Wrapf(err, "create %s %s", what, obj.GetName())
}
