package appliance

import (
	"context"
	"log/slog"
	"time"

	"github.com/cloudctl/cloudctl/pkg/controlplane"
)

// Middleware is a ControlPlane middleware.
type Middleware func(ControlPlane) ControlPlane

type loggingMiddleware struct {
	next ControlPlane
}

// LoggingMiddleware logs every control plane call at debug level and failures as errors.
func LoggingMiddleware() Middleware {
	return func(next ControlPlane) ControlPlane {
		return &loggingMiddleware{
			next: next,
		}
	}
}

func logCall(op string, begin time.Time, err error, attrs ...any) {
	logger := slog.Default().With(slog.String("op", op), slog.Group("appliance", attrs...))
	if err != nil {
		logger.Error("control plane call failed", slog.String("err", err.Error()))
		return
	}
	logger.Debug("control plane call", slog.String("took", time.Since(begin).String()))
}

func (mw loggingMiddleware) GetTransferAppliance(ctx context.Context, jobID, label string) (ta *controlplane.TransferAppliance, err error) {
	defer func(begin time.Time) {
		logCall("GetTransferAppliance", begin, err, slog.String("job", jobID), slog.String("label", label))
	}(time.Now())

	return mw.next.GetTransferAppliance(ctx, jobID, label)
}

func (mw loggingMiddleware) UpdateTransferApplianceState(ctx context.Context, jobID, label, state string) (err error) {
	defer func(begin time.Time) {
		logCall("UpdateTransferApplianceState", begin, err, slog.String("job", jobID), slog.String("label", label), slog.String("state", state))
	}(time.Now())

	return mw.next.UpdateTransferApplianceState(ctx, jobID, label, state)
}

func (mw loggingMiddleware) GetEncryptionPassphrase(ctx context.Context, jobID, label string) (passphrase string, err error) {
	defer func(begin time.Time) {
		logCall("GetEncryptionPassphrase", begin, err, slog.String("job", jobID), slog.String("label", label))
	}(time.Now())

	return mw.next.GetEncryptionPassphrase(ctx, jobID, label)
}

func (mw loggingMiddleware) GetTransferJob(ctx context.Context, jobID string) (job *controlplane.TransferJob, err error) {
	defer func(begin time.Time) {
		logCall("GetTransferJob", begin, err, slog.String("job", jobID))
	}(time.Now())

	return mw.next.GetTransferJob(ctx, jobID)
}
