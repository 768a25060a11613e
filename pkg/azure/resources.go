package azure

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/microsoft/arcdata-cli/api/v1beta1"
	"github.com/microsoft/arcdata-cli/pkg/retry"
)

// ResourceID is the ARM path of a shadow resource, without host and query.
func ResourceID(subscription, resourceGroup, resourceType, name string) string {
	return fmt.Sprintf("/subscriptions/%s/resourcegroups/%s/providers/%s/%s/%s",
		url.PathEscape(subscription), url.PathEscape(resourceGroup), Provider, resourceType, url.PathEscape(name))
}

func (c *Client) resourceURL(id string) string {
	return c.endpoint + id + "?api-version=" + APIVersion
}

// PutDataController creates or updates the data controller shadow resource.
func (c *Client) PutDataController(ctx context.Context, dc DataControllerRecord) error {
	body := map[string]interface{}{
		"location": dc.Location,
		"properties": map[string]interface{}{
			"onPremiseProperty": map[string]interface{}{
				"id":               dc.UID(),
				"publicSigningKey": dc.PublicKey,
			},
			"k8sRaw":         dc.K8sRaw,
			"infrastructure": dc.Infrastructure,
		},
	}
	id := ResourceID(dc.SubscriptionID, dc.ResourceGroupName, TypeDataControllers, dc.InstanceName)
	if err := c.put(ctx, "put data controller resource", id, body); err != nil {
		return errors.Wrapf(err, "upload data controller %s", dc.InstanceName)
	}
	c.logger.Info("data controller uploaded to azure", zap.String("resource", id))
	return nil
}

// PutInstance creates or updates the shadow resource of an instance managed by dc.
func (c *Client) PutInstance(ctx context.Context, dc DataControllerRecord, inst InstanceRecord) error {
	rtype, err := ResourceType(inst.Kind)
	if err != nil {
		return retry.Mark(retry.KindValidation, err)
	}
	properties := map[string]interface{}{
		"dataControllerId": dc.InstanceName,
		"k8sRaw":           inst.K8sRaw,
	}
	body := map[string]interface{}{
		"location":   dc.Location,
		"properties": properties,
	}
	if rtype == TypeSQLManagedInstances {
		tier, _, _ := unstructured.NestedString(inst.K8sRaw, "spec", "tier")
		license, _, _ := unstructured.NestedString(inst.K8sRaw, "spec", "licenseType")
		body["sku"] = map[string]interface{}{
			"name": SKUNameVCore,
			"tier": v1beta1.CanonicalTier(tier),
		}
		properties["licenseType"] = v1beta1.CanonicalLicenseType(license)
	}
	id := ResourceID(dc.SubscriptionID, dc.ResourceGroupName, rtype, inst.InstanceName)
	if err := c.put(ctx, "put instance resource", id, body); err != nil {
		return errors.Wrapf(err, "upload %s", inst.InstanceName)
	}
	c.logger.Info("instance uploaded to azure", zap.String("resource", id))
	return nil
}

// DeleteInstance removes the shadow resource of kind/name. It reports false when the
// resource did not exist.
func (c *Client) DeleteInstance(ctx context.Context, dc DataControllerRecord, kind, name string) (bool, error) {
	rtype, err := ResourceType(kind)
	if err != nil {
		return false, retry.Mark(retry.KindValidation, err)
	}
	id := ResourceID(dc.SubscriptionID, dc.ResourceGroupName, rtype, name)
	status, err := retry.Do(ctx, c.executor, c.policy.WithName("delete azure resource"), func(ctx context.Context) (int, error) {
		req, err := runtime.NewRequest(ctx, http.MethodDelete, c.resourceURL(id))
		if err != nil {
			return 0, err
		}
		resp, err := c.arm.Do(req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()
		if !runtime.HasStatusCode(resp, http.StatusOK, http.StatusAccepted, http.StatusNoContent) {
			return 0, runtime.NewResponseError(resp)
		}
		return resp.StatusCode, nil
	})
	if err != nil {
		return false, errors.Wrapf(err, "delete %s", id)
	}
	if status == http.StatusNoContent {
		return false, nil
	}
	c.logger.Info("resource deleted from azure", zap.String("resource", id))
	return true, nil
}

// GetResource reads a shadow resource. A missing resource is reported as NotFound.
func (c *Client) GetResource(ctx context.Context, subscription, resourceGroup, resourceType, name string) retry.Result[map[string]interface{}] {
	id := ResourceID(subscription, resourceGroup, resourceType, name)
	return retry.Fetch(ctx, c.executor, c.policy.WithName("get azure resource"), func(ctx context.Context) (map[string]interface{}, error) {
		req, err := runtime.NewRequest(ctx, http.MethodGet, c.resourceURL(id))
		if err != nil {
			return nil, err
		}
		resp, err := c.arm.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, errors.Wrapf(retry.ErrNotFound, "%s", id)
		}
		if !runtime.HasStatusCode(resp, http.StatusOK) {
			return nil, runtime.NewResponseError(resp)
		}
		out := map[string]interface{}{}
		if err := runtime.UnmarshalAsJSON(resp, &out); err != nil {
			return nil, err
		}
		return out, nil
	})
}

func (c *Client) put(ctx context.Context, op, id string, body interface{}) error {
	return c.executor.Run(ctx, c.policy.WithName(op), func(ctx context.Context) error {
		req, err := runtime.NewRequest(ctx, http.MethodPut, c.resourceURL(id))
		if err != nil {
			return err
		}
		if err := runtime.MarshalAsJSON(req, body); err != nil {
			return err
		}
		resp, err := c.arm.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if !runtime.HasStatusCode(resp, http.StatusOK, http.StatusCreated) {
			return runtime.NewResponseError(resp)
		}
		return nil
	})
}
