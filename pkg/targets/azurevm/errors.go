package azurevm

import (
	"errors"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"github.com/clawster/clawster/pkg/provision"
)

// classifyAzureError maps ARM response errors onto the provisioning error
// taxonomy: 404 becomes not-found (triggers creation), 409 becomes
// conflict (assignment already satisfied), everything else is a provider
// error.
func classifyAzureError(op, resource string, err error) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return provision.NewNotFound(resource, err)
		case http.StatusConflict:
			return provision.NewConflict(resource, err)
		}
	}
	return provision.NewProviderError(op, resource, err)
}
