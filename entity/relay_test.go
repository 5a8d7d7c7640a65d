package entity_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/omni/bridge-relayer/entity"
)

var allStates = []entity.State{entity.StateSent, entity.StateConfirmed, entity.StateExecuted, entity.StateFailed}

func TestState_CanTransitionTo(t *testing.T) {
	t.Parallel()

	allowed := map[[2]entity.State]bool{
		{entity.StateSent, entity.StateConfirmed}:      true,
		{entity.StateSent, entity.StateFailed}:         true,
		{entity.StateConfirmed, entity.StateConfirmed}: true,
		{entity.StateConfirmed, entity.StateExecuted}:  true,
		{entity.StateConfirmed, entity.StateFailed}:    true,
	}
	for _, from := range allStates {
		for _, to := range allStates {
			require.Equal(t, allowed[[2]entity.State{from, to}], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestState_IsTerminal(t *testing.T) {
	t.Parallel()

	require.False(t, entity.StateSent.IsTerminal())
	require.False(t, entity.StateConfirmed.IsTerminal())
	require.True(t, entity.StateExecuted.IsTerminal())
	require.True(t, entity.StateFailed.IsTerminal())
	require.False(t, entity.State("UNKNOWN").IsValid())
}

func TestMutation_Validate(t *testing.T) {
	t.Parallel()

	destTx := common.HexToHash("0x01")
	retries := uint(1)
	for _, test := range []struct {
		Name          string
		Expected      entity.State
		Mutation      *entity.Mutation
		ExpectedError error
	}{
		{
			Name:     "confirm with proof",
			Expected: entity.StateSent,
			Mutation: &entity.Mutation{State: entity.StateConfirmed, Proof: []byte{1}},
		},
		{
			Name:          "confirm without proof",
			Expected:      entity.StateSent,
			Mutation:      &entity.Mutation{State: entity.StateConfirmed},
			ExpectedError: entity.ErrInvalidMutation,
		},
		{
			Name:     "execute with destination tx",
			Expected: entity.StateConfirmed,
			Mutation: &entity.Mutation{State: entity.StateExecuted, DestTxHash: &destTx},
		},
		{
			Name:          "execute without destination tx",
			Expected:      entity.StateConfirmed,
			Mutation:      &entity.Mutation{State: entity.StateExecuted},
			ExpectedError: entity.ErrInvalidMutation,
		},
		{
			Name:          "destination tx on failed record",
			Expected:      entity.StateConfirmed,
			Mutation:      &entity.Mutation{State: entity.StateFailed, DestTxHash: &destTx},
			ExpectedError: entity.ErrInvalidMutation,
		},
		{
			Name:     "retry while confirmed",
			Expected: entity.StateConfirmed,
			Mutation: &entity.Mutation{State: entity.StateConfirmed, RetryCount: &retries},
		},
		{
			Name:          "retry while sent",
			Expected:      entity.StateSent,
			Mutation:      &entity.Mutation{State: entity.StateFailed, RetryCount: &retries},
			ExpectedError: entity.ErrInvalidMutation,
		},
		{
			Name:          "leave executed",
			Expected:      entity.StateExecuted,
			Mutation:      &entity.Mutation{State: entity.StateFailed},
			ExpectedError: entity.ErrInvalidTransition,
		},
		{
			Name:          "skip confirmation",
			Expected:      entity.StateSent,
			Mutation:      &entity.Mutation{State: entity.StateExecuted, DestTxHash: &destTx},
			ExpectedError: entity.ErrInvalidTransition,
		},
	} {
		test := test
		t.Run(test.Name, func(t *testing.T) {
			t.Parallel()
			t.Logf("Running sub-test %q", test.Name)
			err := test.Mutation.Validate(test.Expected)
			if test.ExpectedError == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, test.ExpectedError)
			}
		})
	}
}

func TestMutation_Apply(t *testing.T) {
	t.Parallel()

	now := time.Now()
	destTx := common.HexToHash("0x02")
	r := &entity.Relay{State: entity.StateConfirmed, Proof: []byte{1}}
	(&entity.Mutation{State: entity.StateExecuted, DestTxHash: &destTx, ExecutedAt: &now}).Apply(r, now)

	require.Equal(t, entity.StateExecuted, r.State)
	require.Equal(t, destTx, *r.DestTxHash)
	require.Equal(t, now, *r.ExecutedAt)
	require.Equal(t, []byte{1}, r.Proof)
	require.Equal(t, now, *r.UpdatedAt)
}

func TestRelay_IsDue(t *testing.T) {
	t.Parallel()

	now := time.Now()
	later := now.Add(time.Minute)
	require.True(t, (&entity.Relay{}).IsDue(now))
	require.True(t, (&entity.Relay{NextAttemptAt: &now}).IsDue(now))
	require.False(t, (&entity.Relay{NextAttemptAt: &later}).IsDue(now))
	require.True(t, (&entity.Relay{NextAttemptAt: &later}).IsDue(later.Add(time.Second)))
}

func TestRequeueState(t *testing.T) {
	t.Parallel()

	require.Equal(t, entity.StateSent, entity.RequeueState(&entity.Relay{}))
	require.Equal(t, entity.StateConfirmed, entity.RequeueState(&entity.Relay{Proof: []byte{1}}))
}

func TestTokenTransfer_AmountInt(t *testing.T) {
	t.Parallel()

	amount, ok := (&entity.TokenTransfer{Amount: "500"}).AmountInt()
	require.True(t, ok)
	require.Equal(t, int64(500), amount.Int64())

	_, ok = (&entity.TokenTransfer{Amount: "0"}).AmountInt()
	require.False(t, ok)
	_, ok = (&entity.TokenTransfer{Amount: "abc"}).AmountInt()
	require.False(t, ok)
}
