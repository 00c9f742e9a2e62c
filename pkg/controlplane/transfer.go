package controlplane

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cloudctl/cloudctl/pkg/core"
)

const (
	transferJobsPath = "/20171001/transferJobs"

	LifecycleStatePreparing = "PREPARING"
)

type TransferAppliance struct {
	Label              string `json:"label"`
	LifecycleState     string `json:"lifecycleState"`
	SerialNumber       string `json:"serialNumber"`
	UploadStatusLogURI string `json:"uploadStatusLogUri"`
}

type TransferJob struct {
	ID               string `json:"id"`
	DisplayName      string `json:"displayName"`
	LifecycleState   string `json:"lifecycleState"`
	UploadBucketName string `json:"uploadBucketName"`
}

type encryptionPassphrase struct {
	EncryptionPassphrase string `json:"encryptionPassphrase"`
}

func appliancePath(jobID, label string, elem ...string) string {
	parts := []string{transferJobsPath, url.PathEscape(jobID), "transferAppliances", url.PathEscape(label)}
	return strings.Join(append(parts, elem...), "/")
}

func requireIDs(op, jobID, label string) error {
	if strings.TrimSpace(jobID) == "" {
		return core.Validation(op, "transfer job id is empty")
	}
	if strings.TrimSpace(label) == "" {
		return core.Validation(op, "appliance label is empty")
	}
	return nil
}

func (c *Client) GetTransferAppliance(ctx context.Context, jobID, label string) (*TransferAppliance, error) {
	const op = "GetTransferAppliance"
	if err := requireIDs(op, jobID, label); err != nil {
		return nil, err
	}

	ta := &TransferAppliance{}
	if _, err := c.do(ctx, request{op: op, method: http.MethodGet, path: appliancePath(jobID, label)}, ta); err != nil {
		return nil, err
	}
	return ta, nil
}

func (c *Client) UpdateTransferApplianceState(ctx context.Context, jobID, label, state string) error {
	const op = "UpdateTransferAppliance"
	if err := requireIDs(op, jobID, label); err != nil {
		return err
	}

	body := map[string]string{"lifecycleState": state}
	_, err := c.do(ctx, request{op: op, method: http.MethodPut, path: appliancePath(jobID, label), body: body}, nil)
	return err
}

func (c *Client) GetEncryptionPassphrase(ctx context.Context, jobID, label string) (string, error) {
	const op = "GetTransferApplianceEncryptionPassphrase"
	if err := requireIDs(op, jobID, label); err != nil {
		return "", err
	}

	p := &encryptionPassphrase{}
	if _, err := c.do(ctx, request{op: op, method: http.MethodGet, path: appliancePath(jobID, label, "encryptionPassphrase")}, p); err != nil {
		return "", err
	}
	if p.EncryptionPassphrase == "" {
		return "", core.Other(op, fmt.Errorf("no encryption passphrase returned for appliance %s", label))
	}
	return p.EncryptionPassphrase, nil
}

func (c *Client) GetTransferJob(ctx context.Context, jobID string) (*TransferJob, error) {
	const op = "GetTransferJob"
	if strings.TrimSpace(jobID) == "" {
		return nil, core.Validation(op, "transfer job id is empty")
	}

	job := &TransferJob{}
	if _, err := c.do(ctx, request{op: op, method: http.MethodGet, path: transferJobsPath + "/" + url.PathEscape(jobID)}, job); err != nil {
		return nil, err
	}
	return job, nil
}
