package cloudrun

import (
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/clawster/clawster/pkg/provision"
)

// classifyGCPError maps provider errors onto the provisioning taxonomy.
// Compute REST calls surface *googleapi.Error; Cloud Run and Secret
// Manager speak gRPC status codes. 404/NotFound becomes not-found
// (triggers creation), 409/AlreadyExists becomes conflict, everything
// else is a provider error.
func classifyGCPError(op, resource string, err error) error {
	if err == nil {
		return nil
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusNotFound:
			return provision.NewNotFound(resource, err)
		case http.StatusConflict:
			return provision.NewConflict(resource, err)
		}
		return provision.NewProviderError(op, resource, err)
	}

	switch status.Code(err) {
	case codes.NotFound:
		return provision.NewNotFound(resource, err)
	case codes.AlreadyExists:
		return provision.NewConflict(resource, err)
	}
	return provision.NewProviderError(op, resource, err)
}
