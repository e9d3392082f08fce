package wallet

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"
	"github.com/zcoldwallet/zcoldwallet/frost"
	"github.com/zcoldwallet/zcoldwallet/netparams"
)

// requireStableEncoding checks that decoding and re-encoding an artifact
// gives back the same bytes.
func requireStableEncoding[T any](t *testing.T, v *T) {
	t.Helper()

	first, err := EncodeArtifact(v)
	require.NoError(t, err)

	var decoded T
	require.NoError(t, ParseArtifact("artifact", first, &decoded))

	second, err := EncodeArtifact(&decoded)
	require.NoError(t, err)
	require.Equal(t, string(first), string(second),
		"decoded artifact: %v", spew.Sdump(decoded))
}

func TestArtifactEncoding(t *testing.T) {
	t.Parallel()

	h := newGroupHarness(t)
	tx := h.proposal()
	requireStableEncoding(t, tx)

	c1, _, err := MakeCommitments(h.cfg, h.share(1), tx)
	require.NoError(t, err)
	c2, _, err := MakeCommitments(h.cfg, h.share(2), tx)
	require.NoError(t, err)
	merged, err := MergeCommitments(c1, c2)
	require.NoError(t, err)
	requireStableEncoding(t, merged)
	requireStableEncoding(t, &merged.Inputs[0].Multisigs[0].Commitment)

	bin, err := PreMultiSign(h.cfg, merged)
	require.NoError(t, err)
	requireStableEncoding(t, bin)

	// The commitments survive with their randomizer contributions, so a
	// reloaded proposal proves against the same keys.
	data, err := EncodeArtifact(merged)
	require.NoError(t, err)
	var reloaded Tx
	require.NoError(t, ParseArtifact("transaction", data, &reloaded))
	require.Equal(t, merged.Session, reloaded.Session)
	require.Equal(t, *merged.Output, *reloaded.Output)
	for i := range merged.Inputs {
		want, err := frost.Randomizer(merged.Inputs[i].commitments())
		require.NoError(t, err)
		got, err := frost.Randomizer(reloaded.Inputs[i].commitments())
		require.NoError(t, err)
		require.True(t, want.Equals(got))
	}

	// A bare proposal has an empty commitment list, never null.
	require.Contains(t, string(mustEncode(t, tx)), `"multisigs":[]`)
}

func mustEncode(t *testing.T, v any) []byte {
	t.Helper()

	b, err := EncodeArtifact(v)
	require.NoError(t, err)
	return b
}

func TestCheckpointEncoding(t *testing.T) {
	t.Parallel()

	cp := &netparams.Checkpoint{
		Height:      419200,
		Hash:        []byte{0x01, 0x02, 0x03, 0x04},
		Time:        1540779337,
		SaplingTree: "000000",
	}

	encoded := NewCheckpoint(cp)
	require.Equal(t, "04030201", encoded.Hash)
	requireStableEncoding(t, encoded)

	back, err := encoded.Checkpoint()
	require.NoError(t, err)
	require.Equal(t, cp, back)

	_, err = (&Checkpoint{Hash: "xyz"}).Checkpoint()
	requireKind(t, err, KindDecode)
}

func TestParseArtifact(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{"not json", "garbage"},
		{"bad session", `{"session": "nope"}`},
		{"bad commitment", `{"inputs": [{"multisigs": [{"index": 1, ` +
			`"commitment": {"hiding": "00"}}]}]}`},
		{"truncated", `{"height": 5, "inputs": [`},
	}
	for _, test := range tests {
		var tx Tx
		err := ParseArtifact("transaction", []byte(test.data), &tx)
		requireKind(t, err, KindTxParse)
		require.Contains(t, err.Error(), "transaction", test.name)
	}
}
