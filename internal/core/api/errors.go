package api

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/qengine/internal/core/store"
	"github.com/solatis/qengine/internal/types"
)

// toStatus maps engine errors onto gRPC codes:
//
//	unknown stored query  NOT_FOUND
//	ValidationError       INVALID_ARGUMENT
//	ConfigurationError    UNAVAILABLE
//	EvaluationError       FAILED_PRECONDITION
//	context deadline      DEADLINE_EXCEEDED
//
// ConfigurationError is checked before EvaluationError because evaluation
// wraps collaborator failures.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	code := codes.Internal
	switch {
	case errors.Is(err, store.ErrNotFound):
		code = codes.NotFound
	case types.IsValidation(err):
		code = codes.InvalidArgument
	case types.IsConfiguration(err):
		code = codes.Unavailable
	case types.IsEvaluation(err):
		code = codes.FailedPrecondition
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	}
	return status.Error(code, err.Error())
}
