package zero_test

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
	"github.com/zcoldwallet/zcoldwallet/frost"
	"github.com/zcoldwallet/zcoldwallet/internal/zero"
)

func makeOneBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = 1
	}
	return b
}

func TestBytes(t *testing.T) {
	t.Parallel()

	sizes := []int{0, 31, 32, 33, 127, 128, 129, 255, 256, 257, 511,
		512, 513}

	for _, n := range sizes {
		b := makeOneBytes(n)
		zero.Bytes(b)
		require.Equal(t, make([]byte, n), b, "n=%d", n)
	}
}

func TestBytea32(t *testing.T) {
	t.Parallel()

	var b [32]byte
	copy(b[:], makeOneBytes(32))
	zero.Bytea32(&b)
	require.Equal(t, [32]byte{}, b)
}

func TestScalars(t *testing.T) {
	t.Parallel()

	a := new(btcec.ModNScalar).SetInt(7)
	b := new(btcec.ModNScalar).SetInt(9)
	zero.Scalars(a, nil, b)
	require.True(t, a.IsZero())
	require.True(t, b.IsZero())
}

func TestSecretShares(t *testing.T) {
	t.Parallel()

	s := &frost.SecretShare{Index: 1}
	s.Value.SetInt(42)
	zero.SecretShares([]*frost.SecretShare{s, nil})
	require.True(t, s.Value.IsZero())
}
