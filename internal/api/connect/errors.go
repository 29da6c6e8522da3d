package connect

import (
	"context"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/sacraltrack/playcore/internal/app/apperr"
	"github.com/sacraltrack/playcore/internal/app/playback"
	"github.com/sacraltrack/playcore/internal/domain/track"
	"github.com/sacraltrack/playcore/internal/infra/spotify"
)

var (
	errNoCatalog    = errors.New("no track catalog configured")
	errStreamClosed = errors.New("notification stream closed")
)

// toConnectError maps domain errors to RPC status codes.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}

	var code connect.Code
	switch {
	case errors.Is(err, apperr.ErrNotAuthenticated):
		code = connect.CodeUnauthenticated
	case errors.Is(err, apperr.ErrUpdateInProgress):
		code = connect.CodeAborted
	case errors.Is(err, playback.ErrUnknownScope), errors.Is(err, playback.ErrUnknownSession):
		code = connect.CodeNotFound
	case errors.Is(err, track.ErrEmptyID):
		code = connect.CodeInvalidArgument
	case errors.Is(err, spotify.ErrNoPreview), errors.Is(err, errNoCatalog):
		code = connect.CodeFailedPrecondition
	case apperr.IsRemote(err):
		code = connect.CodeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	default:
		zlog.Error().Msgf("api: internal error: %v", err)
		code = connect.CodeInternal
	}
	return connect.NewError(code, err)
}
