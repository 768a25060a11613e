package azure

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/klauspost/compress/flate"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/microsoft/arcdata-cli/pkg/retry"
)

// UsageSchema is the $schema of a usage upload request.
const UsageSchema = "https://microsoft.azuredata.com/azurearc/pipeline/usagerecordsrequest.06-2021.schema.json"

// UsageRecord is one signed usage batch of a usage export.
type UsageRecord struct {
	// Usages is base64 encoded raw DEFLATE of the JSON usage rows.
	Usages    string `json:"usages"`
	Signature string `json:"signature"`
}

// Decode returns the usage rows of r.
func (r UsageRecord) Decode() (interface{}, error) {
	compressed, err := base64.StdEncoding.DecodeString(r.Usages)
	if err != nil {
		return nil, errors.Wrap(err, "decode usages")
	}
	zr := flate.NewReader(bytes.NewReader(compressed))
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrap(err, "decompress usages")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var rows interface{}
	if err := dec.Decode(&rows); err != nil {
		return nil, errors.Wrap(err, "parse usages")
	}
	return rows, nil
}

// EncodeUsages compresses rows into the form carried by UsageRecord.Usages.
func EncodeUsages(rows interface{}) (string, error) {
	raw, err := json.Marshal(rows)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	zw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return "", err
	}
	if _, err := zw.Write(raw); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// signedData renders rows the way they were signed: sorted keys with every space
// removed.
func signedData(rows interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rows); err != nil {
		return "", err
	}
	return strings.ReplaceAll(strings.TrimRight(buf.String(), "\n"), " ", ""), nil
}

type usageBlob struct {
	RequestType      string        `json:"requestType"`
	ClusterID        string        `json:"clusterId"`
	Name             string        `json:"name"`
	SubscriptionID   string        `json:"subscriptionId"`
	ResourceGroup    string        `json:"resourceGroup"`
	Location         string        `json:"location"`
	ConnectivityMode string        `json:"connectivityMode"`
	Infrastructure   string        `json:"infrastructure"`
	UploadRequest    uploadRequest `json:"uploadRequest"`
}

type uploadRequest struct {
	ExportType    string `json:"exportType"`
	DataTimestamp string `json:"dataTimestamp"`
	Data          string `json:"data"`
	Signature     string `json:"signature"`
}

// UsageRequestBody builds the request body for one usage record.
func UsageRequestBody(dc DataControllerRecord, record UsageRecord, timestamp string) ([]byte, error) {
	rows, err := record.Decode()
	if err != nil {
		return nil, err
	}
	data, err := signedData(rows)
	if err != nil {
		return nil, err
	}
	blob, err := json.Marshal(usageBlob{
		RequestType:      "usageUpload",
		ClusterID:        dc.UID(),
		Name:             dc.InstanceName,
		SubscriptionID:   dc.SubscriptionID,
		ResourceGroup:    dc.ResourceGroupName,
		Location:         dc.Location,
		ConnectivityMode: dc.ConnectionMode,
		Infrastructure:   dc.Infrastructure,
		UploadRequest: uploadRequest{
			ExportType:    "usages",
			DataTimestamp: timestamp,
			Data:          data,
			Signature:     record.Signature,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode usage blob")
	}
	return json.Marshal(struct {
		Schema string `json:"$schema"`
		Blob   string `json:"blob"`
	}{Schema: UsageSchema, Blob: base64.StdEncoding.EncodeToString(blob)})
}

func (c *Client) usageURL(dc DataControllerRecord) string {
	host := c.usageEndpoint
	if host == "" {
		host = fmt.Sprintf("https://san-af-%s-prod.azurewebsites.net", dc.Location)
	}
	return fmt.Sprintf("%s/api%s?api-version=%s", host,
		ResourceID(dc.SubscriptionID, dc.ResourceGroupName, TypeDataControllers, dc.InstanceName),
		UsageAPIVersion)
}

// UploadUsage posts one usage record. Records of the same upload share
// correlationVector.
func (c *Client) UploadUsage(ctx context.Context, dc DataControllerRecord, record UsageRecord, timestamp, correlationVector string) error {
	body, err := UsageRequestBody(dc, record, timestamp)
	if err != nil {
		return retry.Mark(retry.KindValidation, err)
	}
	target := c.usageURL(dc)
	err = c.executor.Run(ctx, c.policy.WithName("upload usage"), func(ctx context.Context) error {
		req, err := runtime.NewRequest(ctx, http.MethodPost, target)
		if err != nil {
			return err
		}
		req.Raw().Header.Set(headerCorrelationVector, correlationVector)
		if err := req.SetBody(streaming.NopCloser(bytes.NewReader(body)), "application/json"); err != nil {
			return err
		}
		resp, err := c.usage.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if !runtime.HasStatusCode(resp, http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent) {
			return runtime.NewResponseError(resp)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "upload usage")
	}
	c.logger.Info("usage uploaded", zap.String("url", target), zap.String("correlationVector", correlationVector))
	return nil
}
