package ethclient_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"syscall"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	"github.com/omni/bridge-relayer/ethclient"
)

type jsonRPCError struct {
	code int
	msg  string
}

func (e *jsonRPCError) Error() string  { return e.msg }
func (e *jsonRPCError) ErrorCode() int { return e.code }

func TestClassifyError(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		Name          string
		Input         error
		ExpectedError error
	}{
		{
			Name:          "deadline",
			Input:         fmt.Errorf("call: %w", context.DeadlineExceeded),
			ExpectedError: ethclient.ErrTransientNetwork,
		},
		{
			Name:          "connection refused",
			Input:         fmt.Errorf("dial: %w", syscall.ECONNREFUSED),
			ExpectedError: ethclient.ErrTransientNetwork,
		},
		{
			Name:          "unexpected eof",
			Input:         io.ErrUnexpectedEOF,
			ExpectedError: ethclient.ErrTransientNetwork,
		},
		{
			Name:          "http 503",
			Input:         rpc.HTTPError{StatusCode: http.StatusServiceUnavailable, Status: "503 Service Unavailable"},
			ExpectedError: ethclient.ErrTransientNetwork,
		},
		{
			Name:          "http 429",
			Input:         rpc.HTTPError{StatusCode: http.StatusTooManyRequests, Status: "429 Too Many Requests"},
			ExpectedError: ethclient.ErrTransientNetwork,
		},
		{
			Name:          "http 400",
			Input:         rpc.HTTPError{StatusCode: http.StatusBadRequest, Status: "400 Bad Request"},
			ExpectedError: ethclient.ErrRPCProtocol,
		},
		{
			Name:          "json-rpc error object",
			Input:         &jsonRPCError{code: -32602, msg: "invalid argument 0"},
			ExpectedError: ethclient.ErrRPCProtocol,
		},
		{
			Name:          "unknown error",
			Input:         errors.New("something odd"),
			ExpectedError: ethclient.ErrRPCProtocol,
		},
		{
			Name:          "not found",
			Input:         ethereum.NotFound,
			ExpectedError: ethereum.NotFound,
		},
	} {
		test := test
		t.Run(test.Name, func(t *testing.T) {
			t.Parallel()
			t.Logf("Running sub-test %q", test.Name)
			err := ethclient.ClassifyError(test.Input)
			require.ErrorIs(t, err, test.ExpectedError)
			require.Contains(t, err.Error(), test.Input.Error())
		})
	}
}

func TestClassifyError_KeepsClassification(t *testing.T) {
	t.Parallel()

	require.NoError(t, ethclient.ClassifyError(nil))

	err := ethclient.ClassifyError(context.DeadlineExceeded)
	require.True(t, ethclient.IsTransient(err))
	require.Equal(t, err, ethclient.ClassifyError(err))
	require.False(t, errors.Is(err, ethclient.ErrRPCProtocol))
}
