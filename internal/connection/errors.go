package connection

import (
	"errors"
	"io"
	"net"
	"os"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
)

func IsNetClosedError(err error) bool {
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var opErr *net.OpError
	ok := errors.As(err, &opErr)
	return ok && opErr.Timeout()
}

func HandleReadError(connID int64, err error) {
	switch {
	case errors.Is(err, io.EOF), IsNetClosedError(err) && !os.IsTimeout(err):
		logger.InfoF("[%d] Client close connection", connID)
	case os.IsTimeout(err):
		logger.WarnF("[%d] Reading timeout", connID)
	case errors.Is(err, io.ErrUnexpectedEOF):
		logger.WarnF("[%d] Connection closed in the middle of a frame", connID)
	default:
		logger.ErrorF("[%d] Error occured while reading frame, details: %v", connID, err)
	}
}
