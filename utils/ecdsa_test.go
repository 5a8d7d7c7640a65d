package utils_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/omni/bridge-relayer/utils"
)

const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestSignText(t *testing.T) {
	t.Parallel()

	key, err := utils.ParsePrivateKey(testKey)
	require.NoError(t, err)
	data := []byte("relay me")

	sig, err := utils.SignText(key, data)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	require.GreaterOrEqual(t, sig[64], byte(27))

	signer, err := utils.RestoreSignerAddress(data, sig)
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer)
	require.GreaterOrEqual(t, sig[64], byte(27))

	other, err := utils.RestoreSignerAddress([]byte("something else"), sig)
	require.NoError(t, err)
	require.NotEqual(t, signer, other)
}

func TestParsePrivateKey(t *testing.T) {
	t.Parallel()

	_, err := utils.ParsePrivateKey("not a key")
	require.Error(t, err)

	_, err = utils.RestoreSignerAddress([]byte("data"), []byte{1, 2, 3})
	require.Error(t, err)
}
