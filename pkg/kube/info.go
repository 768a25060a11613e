package kube

import (
	"context"

	"github.com/pkg/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// ClusterInfo captures high-level cluster metadata.
type ClusterInfo struct {
	KubernetesVersion string
	NodeOSImage       string
	ContainerRuntime  string
}

// GetClusterInfo returns cluster metadata. It needs a REST config, so clients
// built with Wrap return an empty result.
func (c *Client) GetClusterInfo(ctx context.Context) (ClusterInfo, error) {
	if c.RestConfig == nil {
		return ClusterInfo{}, nil
	}
	clientset, err := kubernetes.NewForConfig(c.RestConfig)
	if err != nil {
		return ClusterInfo{}, errors.Wrap(err, "create clientset")
	}

	info := ClusterInfo{}
	version, err := clientset.Discovery().ServerVersion()
	if err != nil {
		return info, errors.Wrap(err, "get server version")
	}
	info.KubernetesVersion = version.GitVersion

	nodes, err := clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{Limit: 1})
	if err == nil && len(nodes.Items) > 0 {
		node := nodes.Items[0]
		info.NodeOSImage = node.Status.NodeInfo.OSImage
		info.ContainerRuntime = node.Status.NodeInfo.ContainerRuntimeVersion
	}
	return info, nil
}
