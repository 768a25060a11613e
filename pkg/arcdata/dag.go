package arcdata

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/microsoft/arcdata-cli/api/v1beta1"
	"github.com/microsoft/arcdata-cli/pkg/kube"
	"github.com/microsoft/arcdata-cli/pkg/poll"
	"github.com/microsoft/arcdata-cli/pkg/retry"
)

const dagLabel = "Distributed availability group"

// DagCreate holds the arguments of sql mi dag create.
type DagCreate struct {
	Name         string
	DagName      string
	LocalName    string
	LocalPrimary bool
	RemoteName   string
	RemoteURL    string
	// RemoteCertFile holds the remote mirroring endpoint certificate in PEM form.
	RemoteCertFile string
	// Path is a custom resource file used instead of the flags above.
	Path string
}

type flagValue struct{ flag, value string }

func (o DagCreate) check() error {
	required := []flagValue{{"remote-cert-file", o.RemoteCertFile}}
	if o.Path == "" {
		required = append(required, []flagValue{
			{"name", o.Name},
			{"dag-name", o.DagName},
			{"local-name", o.LocalName},
			{"remote-name", o.RemoteName},
			{"remote-url", o.RemoteURL},
		}...)
	}
	var missing []string
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, "--"+f.flag)
		}
	}
	if len(missing) > 0 {
		return retry.Mark(retry.KindValidation, errors.Errorf("missing %s", strings.Join(missing, ", ")))
	}
	return nil
}

// DagCreate creates a distributed availability group and waits until the
// controller reports it succeeded or failed.
func (h *Handler) DagCreate(ctx context.Context, opts DagCreate) (*v1beta1.Dag, error) {
	if err := opts.check(); err != nil {
		return nil, err
	}
	if err := h.requireIndirect(ctx, "distributed availability groups"); err != nil {
		return nil, err
	}
	var dag *v1beta1.Dag
	if opts.Path != "" {
		doc, err := readDocument(opts.Path, opts.Name)
		if err != nil {
			return nil, err
		}
		if dag, err = v1beta1.DagFromMap(doc); err != nil {
			return nil, err
		}
	} else {
		dag = v1beta1.NewDag(opts.Name, v1beta1.DagInput{
			DagName:        opts.DagName,
			LocalName:      opts.LocalName,
			RemoteName:     opts.RemoteName,
			RemoteEndpoint: opts.RemoteURL,
			IsLocalPrimary: opts.LocalPrimary,
		})
	}
	dag.APIVersion = v1beta1.SQLGroupVersion.String()
	dag.Kind = v1beta1.DagKind
	dag.Namespace = h.namespace()

	cert, err := os.ReadFile(opts.RemoteCertFile)
	if err != nil {
		return nil, retry.Mark(retry.KindValidation, errors.Wrap(err, "read remote certificate"))
	}
	dag.Spec.Input.RemotePublicCert = string(cert)

	if err := h.ensureAbsent(ctx, kube.DagGVK, dagLabel, dag.Name); err != nil {
		return nil, err
	}
	obj, err := dag.ToUnstructured()
	if err != nil {
		return nil, err
	}
	if err := h.Kube.CreateObject(ctx, obj); err != nil {
		return nil, err
	}
	h.Logger.Info("created distributed availability group",
		zap.String("name", dag.Name), zap.String("local", dag.Spec.Input.LocalName), zap.String("remote", dag.Spec.Input.RemoteName))

	status, err := h.waitDag(ctx, dag.Name)
	dag.Status = status
	if err != nil {
		return dag, err
	}
	h.printf("%s %s is Ready\n", dagLabel, dag.Name)
	return dag, nil
}

// waitDag polls until the group reaches a terminal state. A failed group is
// reported with the controller's results.
func (h *Handler) waitDag(ctx context.Context, name string) (*v1beta1.DagStatus, error) {
	status := &v1beta1.DagStatus{}
	fetch := func(ctx context.Context) (poll.State, error) {
		obj, err := h.Kube.ReadObject(ctx, kube.DagGVK, h.namespace(), name)
		if err != nil {
			return poll.State{}, err
		}
		state, _, _ := unstructured.NestedString(obj.Object, "status", "state")
		status.State = strings.ToLower(state)
		status.Results, _, _ = unstructured.NestedString(obj.Object, "status", "results")
		return poll.State{State: status.State}, nil
	}
	resource := dagLabel + " " + name
	if _, err := h.poller(resource).UntilCondition(ctx, fetch, poll.Reaches(v1beta1.DagSucceededState)); err != nil {
		if errors.Is(err, poll.ErrFailed) {
			return status, errors.Wrapf(err, "create %s: results %q", resource, status.Results)
		}
		return status, errors.Wrapf(err, "wait for %s", resource)
	}
	return status, nil
}

// DagDelete deletes a distributed availability group.
func (h *Handler) DagDelete(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return retry.Mark(retry.KindValidation, errors.New("name cannot be empty"))
	}
	if err := h.requireIndirect(ctx, "distributed availability groups"); err != nil {
		return err
	}
	if err := h.Kube.DeleteObject(ctx, kube.DagGVK, h.namespace(), name); err != nil {
		if errors.Is(err, retry.ErrNotFound) {
			return errors.Wrapf(retry.ErrNotFound, "%s %s not found in namespace %s", dagLabel, name, h.namespace())
		}
		return err
	}
	h.printf("Deleted dag %s from namespace %s\n", name, h.namespace())
	return nil
}

// DagGet prints the input and status of a distributed availability group.
func (h *Handler) DagGet(ctx context.Context, name string) (*v1beta1.Dag, error) {
	if err := h.requireIndirect(ctx, "distributed availability groups"); err != nil {
		return nil, err
	}
	obj, err := h.getObject(ctx, kube.DagGVK, dagLabel, name)
	if err != nil {
		return nil, err
	}
	dag, err := v1beta1.DagFromMap(obj.Object)
	if err != nil {
		return nil, err
	}
	status := dag.Status
	if status == nil {
		status = &v1beta1.DagStatus{}
	}
	for _, part := range []struct {
		label string
		value interface{}
	}{{"input", dag.Spec.Input}, {"status", status}} {
		raw, err := json.MarshalIndent(part.value, "", "    ")
		if err != nil {
			return nil, errors.Wrapf(err, "encode %s", part.label)
		}
		h.printf("%s: %s\n", part.label, raw)
	}
	return dag, nil
}

// requireIndirect fails unless the namespace's data controller runs in indirect
// connectivity mode.
func (h *Handler) requireIndirect(ctx context.Context, what string) error {
	obj, err := h.DataController(ctx)
	if err != nil {
		return err
	}
	dc, err := v1beta1.DataControllerFromMap(obj.Object)
	if err != nil {
		return err
	}
	if dc.IsDirect() {
		return retry.Mark(retry.KindValidation, errors.Errorf("%s are not supported in direct connectivity mode", what))
	}
	return nil
}
