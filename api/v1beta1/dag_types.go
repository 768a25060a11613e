package v1beta1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// DagSucceededState is reported once both sides of the availability group are
// joined. States are compared lowercased.
const DagSucceededState = "succeeded"

// Dag asks the controller to create a distributed availability group between a
// local managed instance and a remote one.
type Dag struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   DagSpec    `json:"spec"`
	Status *DagStatus `json:"status,omitempty"`
}

type DagSpec struct {
	Input DagInput `json:"input"`
}

// DagInput names the two instances and carries the remote mirroring endpoint
// and its certificate.
type DagInput struct {
	DagName          string `json:"dagName"`
	LocalName        string `json:"localName"`
	RemoteName       string `json:"remoteName"`
	RemoteEndpoint   string `json:"remoteEndpoint"`
	RemotePublicCert string `json:"remotePublicCert"`
	IsLocalPrimary   bool   `json:"isLocalPrimary"`
}

type DagStatus struct {
	State   string `json:"state,omitempty"`
	Results string `json:"results,omitempty"`
}

// NewDag returns a distributed availability group resource for input.
func NewDag(name string, input DagInput) *Dag {
	return &Dag{
		TypeMeta:   metav1.TypeMeta{APIVersion: SQLGroupVersion.String(), Kind: DagKind},
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Spec:       DagSpec{Input: input},
	}
}

// DagFromMap hydrates a distributed availability group from a document.
func DagFromMap(m map[string]interface{}) (*Dag, error) {
	d := &Dag{}
	if err := fromMap(m, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dag) ToUnstructured() (*unstructured.Unstructured, error) { return toUnstructured(d) }
