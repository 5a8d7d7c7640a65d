package ethclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	// ErrTransientNetwork marks failures that are expected to disappear on their own:
	// timeouts, dropped connections, overloaded or rate limited endpoints.
	ErrTransientNetwork = errors.New("transient network error")
	// ErrRPCProtocol marks JSON-RPC error objects and malformed responses.
	ErrRPCProtocol = errors.New("rpc protocol error")
)

// ClassifyError wraps err with ErrTransientNetwork or ErrRPCProtocol, keeping
// the original error in the chain. ethereum.NotFound is returned as is.
func ClassifyError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ethereum.NotFound),
		errors.Is(err, ErrTransientNetwork),
		errors.Is(err, ErrRPCProtocol),
		errors.Is(err, context.Canceled):
		return err
	case isTransient(err):
		return fmt.Errorf("%w: %w", ErrTransientNetwork, err)
	default:
		return fmt.Errorf("%w: %w", ErrRPCProtocol, err)
	}
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientNetwork)
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= http.StatusInternalServerError || httpErr.StatusCode == http.StatusTooManyRequests
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return false
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection reset", "i/o timeout", "no such host", "too many requests", "bad gateway", "service unavailable"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
