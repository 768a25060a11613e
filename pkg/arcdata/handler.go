// Package arcdata implements the arcdata commands: data controller lifecycle,
// Postgres server groups, SQL managed instances, backups, and export and upload
// of usage, metrics and logs.
package arcdata

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/microsoft/arcdata-cli/pkg/azure"
	"github.com/microsoft/arcdata-cli/pkg/config"
	"github.com/microsoft/arcdata-cli/pkg/controllersvc"
	"github.com/microsoft/arcdata-cli/pkg/kube"
	"github.com/microsoft/arcdata-cli/pkg/objectstore"
	"github.com/microsoft/arcdata-cli/pkg/poll"
	"github.com/microsoft/arcdata-cli/pkg/retry"
	"github.com/microsoft/arcdata-cli/pkg/validation"
)

// ErrNoDataController is returned when the namespace has no usable data controller.
var ErrNoDataController = errors.New("no data controller exists in the namespace")

// Handler runs commands against one namespace.
type Handler struct {
	Config    *config.Config
	Kube      *kube.Client
	Executor  *retry.Executor
	Validator *validation.Validator
	Logger    *zap.Logger
	Observer  poll.Observer
	// Out receives the command output meant for the user.
	Out io.Writer

	// Controller is used instead of a client for the data controller's endpoint.
	Controller *controllersvc.Client
	// Azure is used instead of a client built from Config.Azure.
	Azure *azure.Client
	// ObjectStore opens the destination of export archives.
	ObjectStore func(ctx context.Context, cfg config.ObjectStoreConfig) (objectstore.Provider, error)

	Now      func() time.Time
	NewTimer func() backoff.Timer
}

// New builds a Handler. Storage class lookups of the validator go through kc.
func New(cfg *config.Config, kc *kube.Client, exec *retry.Executor, logger *zap.Logger, observer poll.Observer) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Config:   cfg,
		Kube:     kc,
		Executor: exec,
		Validator: &validation.Validator{
			StorageClasses: kc,
			Executor:       exec,
			Policy:         cfg.RetryPolicy("get storage class", retry.Network),
		},
		Logger:      logger,
		Observer:    observer,
		Out:         os.Stdout,
		ObjectStore: objectstore.NewProvider,
		Now:         time.Now,
	}
}

func (h *Handler) printf(format string, args ...interface{}) {
	if h.Out == nil {
		return
	}
	fmt.Fprintf(h.Out, format, args...)
}

func (h *Handler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

func (h *Handler) namespace() string { return h.Config.Namespace }

// poller builds a readiness poller that prints a progress line every
// Config.ProgressInterval.
func (h *Handler) poller(resource string) *poll.Poller {
	p := h.Config.Poller(resource, h.Executor, h.Logger, h.Observer)
	p.NewTimer = h.NewTimer
	p.OnProgress = func(elapsed time.Duration, s poll.State) {
		h.printf("%s is not ready yet after %s (state %q)\n", resource, elapsed.Round(time.Second), s.State)
	}
	return p
}

// objectState reads the poll state of a custom object. A missing object yields
// retry.ErrNotFound.
func (h *Handler) objectState(gvk schema.GroupVersionKind, name string) poll.Fetch {
	return func(ctx context.Context) (poll.State, error) {
		obj, err := h.Kube.ReadObject(ctx, gvk, h.namespace(), name)
		if err != nil {
			return poll.State{}, err
		}
		return stateOf(obj), nil
	}
}

func stateOf(obj *unstructured.Unstructured) poll.State {
	observed, _, _ := unstructured.NestedInt64(obj.Object, "status", "observedGeneration")
	state, _, _ := unstructured.NestedString(obj.Object, "status", "state")
	return poll.State{
		DesiredGeneration:  obj.GetGeneration(),
		ObservedGeneration: observed,
		State:              state,
	}
}

// waitReady blocks until the object reports ready.
func (h *Handler) waitReady(ctx context.Context, gvk schema.GroupVersionKind, label, name string) error {
	resource := label + " " + name
	h.Logger.Info("waiting for resource", zap.String("resource", resource))
	if _, err := h.poller(resource).UntilReady(ctx, h.objectState(gvk, name)); err != nil {
		return errors.Wrapf(err, "wait for %s", resource)
	}
	h.printf("%s is Ready\n", resource)
	return nil
}

// stateDeleted is reported by waitDeleted once the object is gone.
const stateDeleted = "deleted"

// waitDeleted blocks until the object no longer exists.
func (h *Handler) waitDeleted(ctx context.Context, gvk schema.GroupVersionKind, label, name string) error {
	fetch := func(ctx context.Context) (poll.State, error) {
		s, err := h.objectState(gvk, name)(ctx)
		if errors.Is(err, retry.ErrNotFound) {
			return poll.State{State: stateDeleted}, nil
		}
		return s, err
	}
	_, err := h.poller(label+" "+name).UntilCondition(ctx, fetch, poll.StateIs(stateDeleted))
	return errors.Wrapf(err, "wait for %s %s to be deleted", label, name)
}

// getObject reads a custom object and turns absence into an error naming it.
func (h *Handler) getObject(ctx context.Context, gvk schema.GroupVersionKind, label, name string) (*unstructured.Unstructured, error) {
	res := h.Kube.GetObject(ctx, gvk, h.namespace(), name)
	switch {
	case res.NotFound():
		return nil, errors.Wrapf(retry.ErrNotFound, "%s %s not found in namespace %s", label, name, h.namespace())
	case res.Err != nil:
		return nil, res.Err
	}
	return res.Value, nil
}

// ensureAbsent fails when the object already exists.
func (h *Handler) ensureAbsent(ctx context.Context, gvk schema.GroupVersionKind, label, name string) error {
	res := h.Kube.GetObject(ctx, gvk, h.namespace(), name)
	switch {
	case res.Found():
		return retry.Mark(retry.KindValidation, errors.Errorf("%s %s already exists in namespace %s", label, name, h.namespace()))
	case res.NotFound():
		return nil
	}
	return res.Err
}

// DataController returns the first data controller of the namespace that is not
// flagged as a duplicate.
func (h *Handler) DataController(ctx context.Context) (*unstructured.Unstructured, error) {
	items, err := h.Kube.ListObjects(ctx, kube.DataControllerGVK, h.namespace())
	if err != nil {
		return nil, err
	}
	for i := range items {
		state, _, _ := unstructured.NestedString(items[i].Object, "status", "state")
		if strings.EqualFold(state, poll.StateDuplicateError) {
			continue
		}
		return &items[i], nil
	}
	return nil, errors.Wrapf(retry.Mark(retry.KindNotFound, ErrNoDataController), "namespace %s", h.namespace())
}

// controller returns the REST client of the data controller, built from the
// configured endpoint or the controller's external endpoint.
func (h *Handler) controller(ctx context.Context) (*controllersvc.Client, error) {
	if h.Controller != nil {
		return h.Controller, nil
	}
	endpoint := h.Config.ControllerEndpoint
	if endpoint == "" {
		dc, err := h.DataController(ctx)
		if err != nil {
			return nil, err
		}
		endpoint, _, _ = unstructured.NestedString(dc.Object, "status", "externalEndpoint")
	}
	c, err := controllersvc.NewClient(controllersvc.Options{
		Endpoint: endpoint,
		Username: h.Config.Username,
		Password: h.Config.Password,
		Insecure: h.Config.ControllerInsecure,
		Executor: h.Executor,
		Policy:   h.Config.RetryPolicy("controller", retry.Network),
		Logger:   h.Logger,
	})
	if err != nil {
		return nil, err
	}
	h.Controller = c
	return c, nil
}

func (h *Handler) azureClient() (*azure.Client, error) {
	if h.Azure != nil {
		return h.Azure, nil
	}
	c, err := azure.NewClient(azure.Options{
		Azure:    h.Config.Azure,
		Executor: h.Executor,
		Policy:   h.Config.RetryPolicy("azure", retry.Network),
		Logger:   h.Logger,
	})
	if err != nil {
		return nil, err
	}
	h.Azure = c
	return c, nil
}
