package unit

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

// TestToZatoshis checks exact decimal conversion for every unit.
func TestToZatoshis(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		unit     Unit
		amount   string
		expected btcutil.Amount
		err      error
	}{
		{
			name:     "one zec",
			unit:     Zec,
			amount:   "1",
			expected: 100_000_000,
		},
		{
			name:     "smallest zec fraction",
			unit:     Zec,
			amount:   "0.00000001",
			expected: 1,
		},
		{
			name:     "milli zec",
			unit:     MilliZec,
			amount:   "2.5",
			expected: 250_000,
		},
		{
			name:     "zatoshis",
			unit:     Zat,
			amount:   "12345",
			expected: 12345,
		},
		{
			name:   "fractional zatoshi",
			unit:   Zat,
			amount: "1.5",
			err:    ErrFractionalZatoshi,
		},
		{
			name:   "too many decimals",
			unit:   Zec,
			amount: "0.000000001",
			err:    ErrFractionalZatoshi,
		},
		{
			name:   "negative",
			unit:   Zec,
			amount: "-1",
			err:    ErrInvalidAmount,
		},
		{
			name:   "garbage",
			unit:   Zec,
			amount: "one",
			err:    ErrInvalidAmount,
		},
		{
			name:   "ratio syntax",
			unit:   Zec,
			amount: "1/3",
			err:    ErrInvalidAmount,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			amt, err := tc.unit.ToZatoshis(tc.amount)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, amt)
		})
	}
}

// TestFromZatoshis checks that formatting trims trailing zeros.
func TestFromZatoshis(t *testing.T) {
	t.Parallel()

	require.Equal(t, "1", Zec.FromZatoshis(100_000_000))
	require.Equal(t, "0.0001", Zec.FromZatoshis(10_000))
	require.Equal(t, "0.1", MilliZec.FromZatoshis(10_000))
	require.Equal(t, "10000", Zat.FromZatoshis(10_000))
	require.Equal(t, "0", Zec.FromZatoshis(0))
	require.Equal(t, "1.5 ZEC", Zec.Format(150_000_000))
}

// TestParseUnit checks the accepted unit names and their round trip.
func TestParseUnit(t *testing.T) {
	t.Parallel()

	for _, u := range []Unit{Zat, MilliZec, Zec} {
		parsed, err := ParseUnit(u.Name())
		require.NoError(t, err)
		require.Equal(t, u, parsed)
	}

	_, err := ParseUnit("BTC")
	require.ErrorIs(t, err, ErrUnknownUnit)

	var u Unit
	require.NoError(t, u.UnmarshalFlag("MilliZec"))
	require.Equal(t, MilliZec, u)
}
