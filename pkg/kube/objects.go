package kube

import (
	"context"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/microsoft/arcdata-cli/pkg/retry"
)

// GetObject reads one custom object. A missing object is a NotFound result.
func (c *Client) GetObject(ctx context.Context, gvk schema.GroupVersionKind, namespace, name string) retry.Result[*unstructured.Unstructured] {
	return retry.Fetch(ctx, c.Executor, c.Policy.WithName("get "+gvk.Kind), func(ctx context.Context) (*unstructured.Unstructured, error) {
		return c.ReadObject(ctx, gvk, namespace, name)
	})
}

// ReadObject is a single read without retries, for callers that run their own
// loop such as a poller. A missing object yields retry.ErrNotFound.
func (c *Client) ReadObject(ctx context.Context, gvk schema.GroupVersionKind, namespace, name string) (*unstructured.Unstructured, error) {
	obj := &unstructured.Unstructured{}
	obj.SetGroupVersionKind(gvk)
	if err := c.Client.Get(ctx, client.ObjectKey{Namespace: namespace, Name: name}, obj); err != nil {
		return nil, notFound(errors.Wrapf(err, "get %s %s/%s", gvk.Kind, namespace, name))
	}
	return obj, nil
}

// ListObjects lists the custom objects of gvk in namespace.
func (c *Client) ListObjects(ctx context.Context, gvk schema.GroupVersionKind, namespace string) ([]unstructured.Unstructured, error) {
	list := &unstructured.UnstructuredList{}
	list.SetGroupVersionKind(gvk.GroupVersion().WithKind(gvk.Kind + "List"))
	err := c.run(ctx, "list "+gvk.Kind, func(ctx context.Context) error {
		return c.Client.List(ctx, list, client.InNamespace(namespace))
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list %s in %s", gvk.Kind, namespace)
	}
	return list.Items, nil
}

// CreateObject submits a new custom object.
func (c *Client) CreateObject(ctx context.Context, obj *unstructured.Unstructured) error {
	err := c.run(ctx, "create "+obj.GetKind(), func(ctx context.Context) error {
		return c.Client.Create(ctx, obj.DeepCopy())
	})
	return errors.Wrapf(err, "create %s %s/%s", obj.GetKind(), obj.GetNamespace(), obj.GetName())
}

// UpdateObject replaces a custom object. obj must carry the resourceVersion it was
// read at.
func (c *Client) UpdateObject(ctx context.Context, obj *unstructured.Unstructured) error {
	err := c.run(ctx, "update "+obj.GetKind(), func(ctx context.Context) error {
		return c.Client.Update(ctx, obj.DeepCopy())
	})
	return errors.Wrapf(err, "update %s %s/%s", obj.GetKind(), obj.GetNamespace(), obj.GetName())
}

// MergePatchObject applies a JSON merge patch to a custom object.
func (c *Client) MergePatchObject(ctx context.Context, gvk schema.GroupVersionKind, namespace, name string, patch []byte) error {
	obj := &unstructured.Unstructured{}
	obj.SetGroupVersionKind(gvk)
	obj.SetNamespace(namespace)
	obj.SetName(name)
	err := c.run(ctx, "patch "+gvk.Kind, func(ctx context.Context) error {
		return c.Client.Patch(ctx, obj, client.RawPatch(types.MergePatchType, patch))
	})
	return errors.Wrapf(err, "patch %s %s/%s", gvk.Kind, namespace, name)
}

// DeleteObject deletes a custom object. Deleting a missing object returns an error
// matching retry.ErrNotFound.
func (c *Client) DeleteObject(ctx context.Context, gvk schema.GroupVersionKind, namespace, name string) error {
	obj := &unstructured.Unstructured{}
	obj.SetGroupVersionKind(gvk)
	obj.SetNamespace(namespace)
	obj.SetName(name)
	err := c.run(ctx, "delete "+gvk.Kind, func(ctx context.Context) error {
		return c.Client.Delete(ctx, obj)
	})
	if err != nil {
		return notFound(errors.Wrapf(err, "delete %s %s/%s", gvk.Kind, namespace, name))
	}
	return nil
}
