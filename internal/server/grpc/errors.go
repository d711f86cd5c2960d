package grpc

import (
	"errors"

	"github.com/dmitrijs2005/worldkeeper/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// statusFromError maps service errors onto gRPC status codes. Anything
// unrecognized is reported as a bare Internal so internals do not leak
// onto the wire.
func statusFromError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrInvalidCredentials),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, common.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, common.ErrUserNotFound),
		errors.Is(err, common.ErrInstanceNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, common.ErrDuplicateUsername),
		errors.Is(err, common.ErrDuplicateName):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, common.ErrAmbiguousOutcome):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, common.ErrProvisionerUnavailable),
		errors.Is(err, common.ErrStoreUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
