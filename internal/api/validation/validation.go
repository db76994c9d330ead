package validation

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apierrors "github.com/nkkko/lista/internal/api/errors"
)

// maxBodySize bounds request bodies
const maxBodySize = 1 << 20

// Validator defines the interface for request validation
type Validator interface {
	Validate() error
}

// ParseAndValidate parses a JSON request body and validates it.
// Field errors come back as validation API errors.
func ParseAndValidate(r *http.Request, v Validator) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apierrors.ValidationError("empty_request_body", "Request body is empty")
		}
		return apierrors.ValidationError("invalid_json", "Invalid JSON format: "+err.Error())
	}

	if err := v.Validate(); err != nil {
		return apierrors.FromError(err)
	}

	return nil
}
