package ollama

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/kirillkom/grounded-archive/internal/core/domain"
	"github.com/kirillkom/grounded-archive/internal/infrastructure/resilience"
)

// StatusError is a non-2xx reply from Ollama.
type StatusError struct {
	Operation  string
	Model      string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("ollama %s (model %s): %s", e.Operation, e.Model, e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// missingModel reports Ollama's 404 for a model that was never pulled.
func (e *StatusError) missingModel() bool {
	return e.StatusCode == http.StatusNotFound
}

func classifyOllamaError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.missingModel() {
			return resilience.Permanent
		}
		return resilience.ClassifyHTTPStatus(statusErr.StatusCode)
	}
	return resilience.Permanent
}

// mapOllamaError turns a failed call into a domain error kind.
func mapOllamaError(operation string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.missingModel() {
		return domain.WrapError(domain.ErrConfiguration, operation, err)
	}
	if classifyOllamaError(err).Temporary {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
