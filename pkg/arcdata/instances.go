package arcdata

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-password/password"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/microsoft/arcdata-cli/api/v1beta1"
	"github.com/microsoft/arcdata-cli/pkg/patch"
	"github.com/microsoft/arcdata-cli/pkg/retry"
	"github.com/microsoft/arcdata-cli/pkg/validation"
)

// instanceKind is a kind of database instance managed by the data controller.
type instanceKind struct {
	gvk   schema.GroupVersionKind
	label string
	// listKind renders the kind column of a list row.
	listKind func(obj *unstructured.Unstructured) string
}

// Summary is one row of an instance list.
type Summary struct {
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	State     string `json:"state"`
	ReadyPods string `json:"readyPods,omitempty"`
	Endpoint  string `json:"externalEndpoint,omitempty"`
}

// Endpoint is one connection endpoint of an instance.
type Endpoint struct {
	Description string `json:"description"`
	Endpoint    string `json:"endpoint"`
	Name        string `json:"name,omitempty"`
	Protocol    string `json:"protocol,omitempty"`
}

func loginSecretName(instance string) string { return instance + "-login-secret" }

// show prints the stored document of an instance, or writes it to path.
func (h *Handler) show(ctx context.Context, k instanceKind, name, path string) (patch.Document, error) {
	obj, err := h.getObject(ctx, k.gvk, k.label, name)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := patch.WriteFile(path, obj.Object); err != nil {
			return nil, err
		}
		h.printf("%s %s written to %s\n", k.label, name, path)
		return obj.Object, nil
	}
	raw, err := patch.Marshal(obj.Object)
	if err != nil {
		return nil, err
	}
	h.printf("%s", raw)
	return obj.Object, nil
}

// list prints every instance of k sorted by kind then name. A cluster without the
// custom resource definition has no instances.
func (h *Handler) list(ctx context.Context, k instanceKind) ([]Summary, error) {
	items, err := h.Kube.ListObjects(ctx, k.gvk, h.namespace())
	if err != nil && retry.Classify(err) != retry.KindNotFound {
		return nil, err
	}
	rows := make([]Summary, 0, len(items))
	for i := range items {
		obj := &items[i]
		state, _, _ := unstructured.NestedString(obj.Object, "status", "state")
		pods, _, _ := unstructured.NestedString(obj.Object, "status", "readyPods")
		endpoint, _, _ := unstructured.NestedString(obj.Object, "status", "externalEndpoint")
		rows = append(rows, Summary{Kind: k.listKind(obj), Name: obj.GetName(), State: state, ReadyPods: pods, Endpoint: endpoint})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Kind != rows[j].Kind {
			return rows[i].Kind < rows[j].Kind
		}
		return rows[i].Name < rows[j].Name
	})

	if h.Out != nil {
		w := tabwriter.NewWriter(h.Out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tNAME\tSTATE\tREADY PODS\tEXTERNAL ENDPOINT")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Kind, r.Name, r.State, r.ReadyPods, r.Endpoint)
		}
		if err := w.Flush(); err != nil {
			return rows, err
		}
	}
	return rows, nil
}

// deleteInstance deletes an instance. Instances of a data controller in direct
// connectivity mode are deleted through Azure instead.
func (h *Handler) deleteInstance(ctx context.Context, k instanceKind, name string) error {
	obj, err := h.DataController(ctx)
	if err != nil {
		return err
	}
	dc, err := v1beta1.DataControllerFromMap(obj.Object)
	if err != nil {
		return err
	}
	if dc.IsDirect() {
		return retry.Mark(retry.KindValidation,
			errors.Errorf("%s %s belongs to a data controller in direct connectivity mode; delete it from Azure", k.label, name))
	}
	if err := h.Kube.DeleteObject(ctx, k.gvk, h.namespace(), name); err != nil {
		if errors.Is(err, retry.ErrNotFound) {
			return errors.Wrapf(retry.ErrNotFound, "%s %s not found in namespace %s", k.label, name, h.namespace())
		}
		return err
	}
	h.printf("Deleted %s %s from namespace %s\n", k.label, name, h.namespace())
	return nil
}

// submit writes the spec, labels and annotations of desired over current. Nothing
// is sent when they are unchanged; the result reports whether an update was made.
func (h *Handler) submit(ctx context.Context, k instanceKind, current *unstructured.Unstructured, before, desired map[string]interface{}) (bool, error) {
	diff := cmp.Diff(editable(before), editable(desired))
	if diff == "" {
		h.printf("%s %s is unchanged\n", k.label, current.GetName())
		return false, nil
	}
	h.Logger.Debug("submitting changes", zap.String("resource", k.label+" "+current.GetName()), zap.String("diff", diff))

	updated := current.DeepCopy()
	updated.Object["spec"] = desired["spec"]
	labels, _, _ := unstructured.NestedStringMap(desired, "metadata", "labels")
	updated.SetLabels(labels)
	annotations, _, _ := unstructured.NestedStringMap(desired, "metadata", "annotations")
	updated.SetAnnotations(annotations)
	if err := h.Kube.UpdateObject(ctx, updated); err != nil {
		return false, err
	}
	return true, nil
}

func editable(doc map[string]interface{}) map[string]interface{} {
	labels, _, _ := unstructured.NestedFieldNoCopy(doc, "metadata", "labels")
	annotations, _, _ := unstructured.NestedFieldNoCopy(doc, "metadata", "annotations")
	return map[string]interface{}{
		"spec":        doc["spec"],
		"labels":      labels,
		"annotations": annotations,
	}
}

// copyServiceType makes the primary service of a new instance use the same
// service type as the data controller's controller service.
func (h *Handler) copyServiceType(ctx context.Context, services **v1beta1.Services) error {
	obj, err := h.DataController(ctx)
	if err != nil {
		return err
	}
	dc, err := v1beta1.DataControllerFromMap(obj.Object)
	if err != nil {
		return err
	}
	svc := dc.ControllerService()
	if svc == nil || svc.ServiceType == "" {
		return nil
	}
	if *services == nil {
		*services = &v1beta1.Services{}
	}
	if (*services).Primary == nil {
		(*services).Primary = &v1beta1.ServiceSpec{}
	}
	if (*services).Primary.ServiceType == "" {
		(*services).Primary.ServiceType = svc.ServiceType
	}
	return nil
}

// passwordSymbols leaves out quotes and backslashes so generated passwords can be
// pasted into a shell.
const passwordSymbols = "!#$%&*+-=?@^_"

const maxPasswordAttempts = 100

// loginPassword returns the configured password, or a generated one when allowed.
// Generated passwords always satisfy the SQL Server password policy.
func (h *Handler) loginPassword(username string, generate bool) (string, bool, error) {
	if h.Config.Password != "" {
		return h.Config.Password, false, nil
	}
	if !generate {
		return "", false, retry.Mark(retry.KindValidation,
			errors.New("no login password; set AZDATA_PASSWORD or pass --generate-password"))
	}
	gen, err := password.NewGenerator(&password.GeneratorInput{Symbols: passwordSymbols})
	if err != nil {
		return "", false, errors.Wrap(err, "create password generator")
	}
	for i := 0; i < maxPasswordAttempts; i++ {
		pw, err := gen.Generate(16, 3, 2, false, true)
		if err != nil {
			return "", false, errors.Wrap(err, "generate password")
		}
		if validation.Password(username, pw) == nil {
			return pw, true, nil
		}
	}
	return "", false, errors.Errorf("could not generate a password that does not contain the username %q", username)
}

// ensureLoginSecret stores the instance's login unless the secret already exists.
func (h *Handler) ensureLoginSecret(ctx context.Context, instance, username, pw string) error {
	name := loginSecretName(instance)
	created, err := h.Kube.EnsureSecret(ctx, h.namespace(), name, map[string][]byte{
		"username": []byte(username),
		"password": []byte(pw),
	})
	if err != nil {
		return err
	}
	if created {
		h.Logger.Info("created login secret", zap.String("secret", name), zap.String("username", username))
	} else {
		h.Logger.Info("login secret already exists", zap.String("secret", name))
	}
	return nil
}

// externalEndpoint returns status.externalEndpoint of an instance.
func (h *Handler) externalEndpoint(ctx context.Context, k instanceKind, name string) (string, error) {
	obj, err := h.getObject(ctx, k.gvk, k.label, name)
	if err != nil {
		return "", err
	}
	endpoint, _, _ := unstructured.NestedString(obj.Object, "status", "externalEndpoint")
	if strings.TrimSpace(endpoint) == "" {
		return "", errors.Errorf("%s %s has no external endpoint yet", k.label, name)
	}
	return endpoint, nil
}

func (h *Handler) printEndpoints(endpoints []Endpoint) {
	if h.Out == nil {
		return
	}
	w := tabwriter.NewWriter(h.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DESCRIPTION\tENDPOINT")
	for _, e := range endpoints {
		fmt.Fprintf(w, "%s\t%s\n", e.Description, e.Endpoint)
	}
	_ = w.Flush()
}

// readDocument loads a custom resource file and forces its name when one is given.
func readDocument(path, name string) (patch.Document, error) {
	doc, err := patch.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if name != "" {
		if err := unstructured.SetNestedField(doc, name, "metadata", "name"); err != nil {
			return nil, errors.Wrapf(err, "set name in %s", path)
		}
	}
	if err := validation.Document(doc); err != nil {
		return nil, err
	}
	return doc, nil
}
