package kube

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/yaml"

	"github.com/microsoft/arcdata-cli/pkg/retry"
)

// GetCRD reads the named custom resource definition.
func (c *Client) GetCRD(ctx context.Context, name string) retry.Result[*apiextensionsv1.CustomResourceDefinition] {
	return retry.Fetch(ctx, c.Executor, c.Policy.WithName("get crd"), func(ctx context.Context) (*apiextensionsv1.CustomResourceDefinition, error) {
		crd := &apiextensionsv1.CustomResourceDefinition{}
		err := c.Client.Get(ctx, client.ObjectKey{Name: name}, crd)
		return crd, err
	})
}

// CRDExists reports whether the named custom resource definition is installed.
func (c *Client) CRDExists(ctx context.Context, name string) (bool, error) {
	r := c.GetCRD(ctx, name)
	if r.Presence == retry.Failed {
		return false, errors.Wrapf(r.Err, "get crd %s", name)
	}
	return r.Found(), nil
}

// EnsureCRDs creates every definition that is not installed yet and returns the
// names it created.
func (c *Client) EnsureCRDs(ctx context.Context, crds []*apiextensionsv1.CustomResourceDefinition) ([]string, error) {
	var created []string
	for _, crd := range crds {
		exists, err := c.CRDExists(ctx, crd.Name)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}
		if err := c.createIfMissing(ctx, "crd", crd); err != nil {
			return created, err
		}
		created = append(created, crd.Name)
	}
	return created, nil
}

// LoadCRDs reads every .yaml, .yml and .json file of dir as one custom resource
// definition, in file name order.
func LoadCRDs(dir string) ([]*apiextensionsv1.CustomResourceDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read crd directory %s", dir)
	}
	var names []string
	for _, e := range entries {
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
			if !e.IsDir() {
				names = append(names, e.Name())
			}
		}
	}
	sort.Strings(names)

	out := make([]*apiextensionsv1.CustomResourceDefinition, 0, len(names))
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", name)
		}
		crd := &apiextensionsv1.CustomResourceDefinition{}
		if err := yaml.UnmarshalStrict(raw, crd); err != nil {
			return nil, errors.Wrapf(err, "parse %s", name)
		}
		if crd.Kind != "CustomResourceDefinition" || crd.Name == "" {
			return nil, errors.Errorf("%s is not a named CustomResourceDefinition", name)
		}
		out = append(out, crd)
	}
	return out, nil
}
