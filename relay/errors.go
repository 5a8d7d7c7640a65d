package relay

import (
	"errors"
	"fmt"
	"strings"

	"github.com/omni/bridge-relayer/ethclient"
)

var (
	ErrSourceDropped        = errors.New("source tx not found")
	ErrPermanentRevert      = errors.New("permanent revert")
	ErrAlreadyProcessed     = errors.New("already processed")
	ErrTransientRevert      = errors.New("transient revert")
	ErrRetryBudgetExhausted = errors.New("retry budget exhausted")
	ErrTxReverted           = errors.New("transaction mined with failed status")
)

var (
	alreadyProcessedReasons = []string{"already processed"}
	transientRevertReasons  = []string{
		"nonce too low",
		"nonce too high",
		"replacement transaction underpriced",
		"transaction underpriced",
		"intrinsic gas too low",
		"out of gas",
		"gas required exceeds allowance",
		"insufficient funds",
		"max fee per gas less than block base fee",
	}
	nonceReasons           = []string{"nonce too low", "nonce too high", "replacement transaction underpriced"}
	alreadyKnownReasons    = []string{"already known", "known transaction"}
	permanentRevertReasons = []string{"execution reverted", "revert"}
)

// ClassifySubmitError maps a destination submission failure to one of
// ErrAlreadyProcessed, ErrPermanentRevert, ErrTransientRevert,
// ethclient.ErrTransientNetwork or ethclient.ErrRPCProtocol.
// Revert reasons take precedence over the transport classification.
func ClassifySubmitError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrAlreadyProcessed) ||
		errors.Is(err, ErrPermanentRevert) ||
		errors.Is(err, ErrTransientRevert) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, alreadyProcessedReasons):
		return fmt.Errorf("%w: %w", ErrAlreadyProcessed, err)
	case containsAny(msg, transientRevertReasons):
		return fmt.Errorf("%w: %w", ErrTransientRevert, err)
	case containsAny(msg, permanentRevertReasons):
		return fmt.Errorf("%w: %w", ErrPermanentRevert, err)
	case errors.Is(err, ethclient.ErrTransientNetwork), errors.Is(err, ethclient.ErrRPCProtocol):
		return err
	default:
		return fmt.Errorf("%w: %w", ethclient.ErrTransientNetwork, err)
	}
}

func isNonceError(err error) bool {
	return err != nil && containsAny(strings.ToLower(err.Error()), nonceReasons)
}

// isAlreadyKnown reports a node rejecting a transaction it already holds in its pool.
func isAlreadyKnown(err error) bool {
	return err != nil && containsAny(strings.ToLower(err.Error()), alreadyKnownReasons)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
