package mapping

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/eslsoft/dictsync/internal/entity"
	"github.com/eslsoft/dictsync/internal/usecase"
)

// ToStatus maps domain errors onto gRPC status codes.
func ToStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, entity.ErrInvalidDictType), errors.Is(err, entity.ErrInvalidDictValue),
		errors.Is(err, entity.ErrInvalidFilter), errors.Is(err, entity.ErrUnknownSource):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, entity.ErrDictTypeNotFound), errors.Is(err, entity.ErrDictValueNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, usecase.ErrBusClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
