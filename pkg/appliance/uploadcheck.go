package appliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloudctl/cloudctl/pkg/core"
	"github.com/cloudctl/cloudctl/pkg/objectstore"
)

const (
	ProbeObjectName = "BulkDataTransferTestObject"
	probeContent    = "Bulk Data Transfer Test"
)

// ObjectStore is the object storage access a single identity has.
type ObjectStore interface {
	Namespace(ctx context.Context) (string, error)
	HeadObject(ctx context.Context, namespace, bucket, object string) (*objectstore.ObjectInfo, error)
	PutObject(ctx context.Context, namespace, bucket, object string, body []byte) error
	DeleteObject(ctx context.Context, namespace, bucket, object string) error
	GetBucketMetadata(ctx context.Context, namespace, bucket string) (map[string]string, error)
}

// Identity pairs a user name with the object storage it can reach.
type Identity struct {
	Name  string
	Store ObjectStore
}

// PrecheckError is returned when the admin user cannot remove a stale probe object.
type PrecheckError struct {
	AdminIdentity string
	Object        string
	Cause         error
}

func (e *PrecheckError) Error() string {
	return fmt.Sprintf("admin user %s failed to delete the test object %s: %v", e.AdminIdentity, e.Object, e.Cause)
}

func (e *PrecheckError) Unwrap() error { return e.Cause }

// CheckError is returned when the upload user lacks a permission it needs.
type CheckError struct {
	Operation string
	Bucket    string
	Namespace string
	Cause     error
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("failed to %s in namespace %s as upload user: %v", e.Operation, e.Namespace, e.Cause)
}

func (e *CheckError) Unwrap() error { return e.Cause }

// CleanupError is returned when the admin user cannot delete the probe object afterwards.
type CleanupError struct {
	AdminIdentity string
	Object        string
	Cause         error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("failed to delete test object %s as admin user %s: %v", e.Object, e.AdminIdentity, e.Cause)
}

func (e *CleanupError) Unwrap() error { return e.Cause }

// UploadCredentialCheck verifies that the upload user can create, overwrite and inspect
// objects in the upload bucket and read its metadata. The upload user cannot delete
// objects, so the admin user removes the probe object before and after.
type UploadCredentialCheck struct {
	Admin       Identity
	Upload      Identity
	Bucket      string
	ProbeObject string
	// Namespace is resolved through the admin identity when empty.
	Namespace string

	logger *slog.Logger
}

func NewUploadCredentialCheck(admin, upload Identity, bucket string) *UploadCredentialCheck {
	return &UploadCredentialCheck{
		Admin:       admin,
		Upload:      upload,
		Bucket:      bucket,
		ProbeObject: ProbeObjectName,
		logger:      slog.Default(),
	}
}

func (c *UploadCredentialCheck) Run(ctx context.Context) (err error) {
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.ProbeObject == "" {
		c.ProbeObject = ProbeObjectName
	}
	if c.Bucket == "" {
		return core.Validation("CheckUploadUser", "upload bucket is empty")
	}

	if c.Namespace == "" {
		ns, err := c.Admin.Store.Namespace(ctx)
		if err != nil {
			return fmt.Errorf("admin user %s failed to resolve the object storage namespace: %w", c.Admin.Name, err)
		}
		c.Namespace = ns
	}

	if err := c.removeStaleProbe(ctx); err != nil {
		return err
	}

	created := false
	defer func() {
		if !created {
			return
		}
		if cleanupErr := c.cleanup(context.WithoutCancel(ctx)); cleanupErr != nil {
			if err != nil {
				err = errors.Join(err, cleanupErr)
				return
			}
			err = cleanupErr
		}
	}()

	body := []byte(probeContent)

	operation := fmt.Sprintf("create object %s in bucket %s", c.ProbeObject, c.Bucket)
	if err := c.Upload.Store.PutObject(ctx, c.Namespace, c.Bucket, c.ProbeObject, body); err != nil {
		return c.checkError(operation, err)
	}
	created = true
	c.logger.Info(operation + " using upload user")

	operation = fmt.Sprintf("overwrite object %s in bucket %s", c.ProbeObject, c.Bucket)
	if err := c.Upload.Store.PutObject(ctx, c.Namespace, c.Bucket, c.ProbeObject, body); err != nil {
		return c.checkError(operation, err)
	}
	c.logger.Info(operation + " using upload user")

	operation = fmt.Sprintf("inspect object %s in bucket %s", c.ProbeObject, c.Bucket)
	if _, err := c.Upload.Store.HeadObject(ctx, c.Namespace, c.Bucket, c.ProbeObject); err != nil {
		return c.checkError(operation, err)
	}
	c.logger.Info(operation + " using upload user")

	operation = fmt.Sprintf("read bucket metadata %s", c.Bucket)
	if _, err := c.Upload.Store.GetBucketMetadata(ctx, c.Namespace, c.Bucket); err != nil {
		return c.checkError(operation, err)
	}
	c.logger.Info(operation + " using upload user")

	return nil
}

func (c *UploadCredentialCheck) removeStaleProbe(ctx context.Context) error {
	_, err := c.Admin.Store.HeadObject(ctx, c.Namespace, c.Bucket, c.ProbeObject)
	if core.IsNotFound(err) {
		return nil
	}
	if err == nil {
		c.logger.Info("found test object in bucket, deleting it", slog.String("object", c.ProbeObject), slog.String("bucket", c.Bucket))
		err = c.Admin.Store.DeleteObject(ctx, c.Namespace, c.Bucket, c.ProbeObject)
		if err == nil || core.IsNotFound(err) {
			return nil
		}
	}
	return &PrecheckError{AdminIdentity: c.Admin.Name, Object: c.ProbeObject, Cause: err}
}

func (c *UploadCredentialCheck) cleanup(ctx context.Context) error {
	err := c.Admin.Store.DeleteObject(ctx, c.Namespace, c.Bucket, c.ProbeObject)
	if err == nil || core.IsNotFound(err) {
		return nil
	}
	return &CleanupError{AdminIdentity: c.Admin.Name, Object: c.ProbeObject, Cause: err}
}

func (c *UploadCredentialCheck) checkError(operation string, cause error) error {
	return &CheckError{Operation: operation, Bucket: c.Bucket, Namespace: c.Namespace, Cause: cause}
}
