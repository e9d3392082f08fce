package shielded

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"

	"github.com/zcoldwallet/zcoldwallet/netparams"
)

var testSeed = bytes.Repeat([]byte{0x42}, 32)

func testAccountKey(t *testing.T) *ExtendedSpendingKey {
	t.Helper()

	master, err := NewMaster(testSeed)
	require.NoError(t, err)
	xsk, err := master.DerivePath(AccountPath(1, 0))
	require.NoError(t, err)
	return xsk
}

func testProver() *LocalTxProver {
	return NewTxProver([]byte("spend"), []byte("output"))
}

func TestKeyDerivation(t *testing.T) {
	t.Parallel()

	a := testAccountKey(t)
	b := testAccountKey(t)
	require.Equal(t, a.Serialize(), b.Serialize())
	require.Equal(t, uint8(3), a.Depth)
	require.Equal(t, HardenedKeyStart, a.ChildIndex)

	master, err := NewMaster(testSeed)
	require.NoError(t, err)
	_, err = master.Derive(1)
	require.ErrorIs(t, err, ErrNonHardened)

	other, err := master.DerivePath(AccountPath(1, 1))
	require.NoError(t, err)
	require.NotEqual(t, a.Serialize(), other.Serialize())

	_, err = NewMaster([]byte("short"))
	require.Error(t, err)
}

func TestKeyEncoding(t *testing.T) {
	t.Parallel()

	params := &netparams.TestNetParams
	xsk := testAccountKey(t)

	s, err := EncodeExtendedSpendingKey(
		params.HRPSaplingExtendedSpendingKey, xsk,
	)
	require.NoError(t, err)
	decoded, err := DecodeExtendedSpendingKey(
		params.HRPSaplingExtendedSpendingKey, s,
	)
	require.NoError(t, err)
	require.Equal(t, xsk.Serialize(), decoded.Serialize())

	// Wrong network prefix.
	_, err = DecodeExtendedSpendingKey(
		netparams.MainNetParams.HRPSaplingExtendedSpendingKey, s,
	)
	require.Error(t, err)

	efvk := xsk.ToExtendedFullViewingKey()
	s, err = EncodeExtendedFullViewingKey(
		params.HRPSaplingExtendedFullViewingKey, efvk,
	)
	require.NoError(t, err)
	dfvk, err := DecodeExtendedFullViewingKey(
		params.HRPSaplingExtendedFullViewingKey, s,
	)
	require.NoError(t, err)
	require.True(t, efvk.Fvk.Equal(&dfvk.Fvk))
	require.Equal(t, efvk.Dk, dfvk.Dk)

	addr := efvk.DefaultAddress()
	s, err = EncodePaymentAddress(params.HRPSaplingPaymentAddress, &addr)
	require.NoError(t, err)
	daddr, err := DecodePaymentAddress(params.HRPSaplingPaymentAddress, s)
	require.NoError(t, err)
	require.True(t, addr.Equal(daddr))

	_, err = DecodePaymentAddress(params.HRPSaplingPaymentAddress, s[:len(s)-1])
	require.Error(t, err)
}

func TestNoteEncryption(t *testing.T) {
	t.Parallel()

	params := &netparams.SimNetParams
	efvk := testAccountKey(t).ToExtendedFullViewingKey()
	addr := efvk.Address(efvk.Diversifier(7))

	var rseed Rseed
	rseed.AfterZIP212 = true
	_, err := rand.Read(rseed.Bytes[:])
	require.NoError(t, err)
	note := NewNote(&addr, 12345, rseed)

	esk, _ := rseed.Esk()
	cv := []byte("cv")
	enc, err := encryptNote(note, &esk, &EmptyMemo, efvk.Fvk.Ovk, cv)
	require.NoError(t, err)
	require.Len(t, enc.encCiphertext, EncCiphertextLen)
	require.Len(t, enc.outCiphertext, OutCiphertextLen)

	ivk := efvk.Fvk.IVK()
	got, ok := TryCompactNoteDecryption(
		params, 10, &ivk, enc.epk, note.Cmu(),
		enc.encCiphertext[:CompactCiphertextLen],
	)
	require.True(t, ok)
	require.Equal(t, note.Value, got.Value)
	require.Equal(t, note.Cmu(), got.Cmu())

	full, memo, ok := TryNoteDecryption(
		params, 10, &ivk, enc.epk, note.Cmu(), enc.encCiphertext,
	)
	require.True(t, ok)
	require.Equal(t, note.Rseed, full.Rseed)
	require.Equal(t, EmptyMemo, *memo)

	// Another key does not detect the note.
	master, err := NewMaster(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	otherIvk := master.ToExtendedFullViewingKey().Fvk.IVK()
	_, ok = TryCompactNoteDecryption(
		params, 10, &otherIvk, enc.epk, note.Cmu(),
		enc.encCiphertext[:CompactCiphertextLen],
	)
	require.False(t, ok)

	// Recovery with the outgoing viewing key.
	out := &OutputDescription{
		Cv:            cv,
		Cmu:           note.Cmu(),
		Epk:           enc.epk.SerializeCompressed(),
		EncCiphertext: enc.encCiphertext,
		OutCiphertext: enc.outCiphertext,
	}
	recovered, _, ok := RecoverOutput(params, 10, efvk.Fvk.Ovk, out)
	require.True(t, ok)
	require.Equal(t, note.Value, recovered.Value)
}

// fundedTree returns a tree holding notes paying each value to addr, with a
// witness per note.
func fundedTree(t *testing.T, addr PaymentAddress,
	values ...uint64) ([]*Note, []*IncrementalWitness) {

	t.Helper()

	tree := NewCommitmentTree()
	require.NoError(t, tree.Append(leaf(99)))

	var notes []*Note
	var witnesses []*IncrementalWitness
	for _, v := range values {
		rseed := Rseed{AfterZIP212: true}
		_, err := rand.Read(rseed.Bytes[:])
		require.NoError(t, err)
		n := NewNote(&addr, v, rseed)

		require.NoError(t, tree.Append(n.Cmu()))
		for _, w := range witnesses {
			require.NoError(t, w.Append(n.Cmu()))
		}
		notes = append(notes, n)
		witnesses = append(witnesses, NewIncrementalWitness(tree))
	}
	return notes, witnesses
}

func TestBuildAndVerify(t *testing.T) {
	t.Parallel()

	params := &netparams.SimNetParams
	xsk := testAccountKey(t)
	efvk := xsk.ToExtendedFullViewingKey()
	addr := efvk.DefaultAddress()
	notes, witnesses := fundedTree(t, addr, 50000, 70000)

	b := NewBuilder(params, 100, rand.Reader)
	for i, n := range notes {
		path, err := witnesses[i].Path()
		require.NoError(t, err)
		require.NoError(t, b.AddSaplingSpend(xsk, n.Diversifier, n, path))
	}

	dest := efvk.Address(efvk.Diversifier(3))
	require.NoError(t, b.AddSaplingOutput(
		efvk.Fvk.Ovk, &dest, btcutil.Amount(100000), nil,
	))

	prover := testProver()
	tx, err := b.Build(prover)
	require.NoError(t, err)
	require.Len(t, tx.Spends, 2)
	require.Len(t, tx.Outputs, 2)
	require.Equal(t, int64(DefaultFee), tx.ValueBalance)
	require.NoError(t, prover.Verify(tx))

	raw, err := tx.Bytes()
	require.NoError(t, err)
	parsed, err := ParseTransaction(raw)
	require.NoError(t, err)
	require.NoError(t, prover.Verify(parsed))

	// A different prover rejects the proofs.
	other := NewTxProver([]byte("x"), []byte("y"))
	require.ErrorIs(t, other.Verify(parsed), ErrInvalidProof)

	// Tampering with the value balance breaks the binding signature.
	parsed.ValueBalance++
	require.Error(t, prover.Verify(parsed))

	// Every output is visible to the wallet's ivk.
	ivk := efvk.Fvk.IVK()
	var total uint64
	for _, o := range tx.Outputs {
		epk, err := btcec.ParsePubKey(o.Epk)
		require.NoError(t, err)
		n, ok := TryCompactNoteDecryption(
			params, 100, &ivk, epk, o.Cmu,
			o.EncCiphertext[:CompactCiphertextLen],
		)
		require.True(t, ok)
		total += n.Value
	}
	require.Equal(t, uint64(110000), total)
}

func TestBuildInsufficient(t *testing.T) {
	t.Parallel()

	xsk := testAccountKey(t)
	addr := xsk.ToExtendedFullViewingKey().DefaultAddress()
	notes, witnesses := fundedTree(t, addr, 1000)

	b := NewBuilder(&netparams.SimNetParams, 10, rand.Reader)
	path, err := witnesses[0].Path()
	require.NoError(t, err)
	require.NoError(t, b.AddSaplingSpend(xsk, notes[0].Diversifier, notes[0], path))
	require.NoError(t, b.AddSaplingOutput(
		OutgoingViewingKey{}, &addr, btcutil.Amount(1000), nil,
	))

	_, err = b.Build(testProver())
	require.ErrorIs(t, err, ErrChangeIsNegative)
}

// TestPrepareMultiSign signs a multi-sign transaction with the rerandomized
// key directly and checks the index mapping.
func TestPrepareMultiSign(t *testing.T) {
	t.Parallel()

	params := &netparams.SimNetParams
	xsk := testAccountKey(t)
	efvk := xsk.ToExtendedFullViewingKey()
	addr := efvk.DefaultAddress()
	notes, witnesses := fundedTree(t, addr, 30000, 40000, 50000)

	b := NewBuilder(params, 100, rand.Reader)
	alphas := make([]*btcec.ModNScalar, len(notes))
	for i, n := range notes {
		alpha, err := randScalar(rand.Reader)
		require.NoError(t, err)
		alphas[i] = alpha
		path, err := witnesses[i].Path()
		require.NoError(t, err)
		require.NoError(t, b.AddSaplingSpendMulti(
			efvk, alpha, n.Diversifier, n, path,
		))
	}
	require.NoError(t, b.AddSaplingOutput(
		efvk.Fvk.Ovk, &addr, btcutil.Amount(100000), nil,
	))

	// Single signer spends cannot be mixed in.
	path, err := witnesses[0].Path()
	require.NoError(t, err)
	err = b.AddSaplingSpend(xsk, notes[0].Diversifier, notes[0], path)
	require.ErrorIs(t, err, ErrMixedModes)

	prover := testProver()
	res, err := b.PrepareMultiSign(prover)
	require.NoError(t, err)
	require.Len(t, res.SpendIndices, 3)
	require.Len(t, res.OutputIndices, 2)

	sighash, err := res.Tx.SigHash()
	require.NoError(t, err)
	require.Equal(t, sighash, res.SigHash)
	require.ErrorIs(t, prover.Verify(res.Tx), ErrInvalidSpendAuthSig)

	for i, alpha := range alphas {
		key := new(btcec.ModNScalar).Set(&xsk.Expsk.Ask)
		key.Add(alpha)
		kb := key.Bytes()
		priv, _ := btcec.PrivKeyFromBytes(kb[:])

		pos := res.SpendIndices[i]
		rk, err := btcec.ParsePubKey(res.Tx.Spends[pos].Rk)
		require.NoError(t, err)
		require.True(t, rk.IsEqual(priv.PubKey()))

		sig, err := schnorr.Sign(priv, res.SigHash[:])
		require.NoError(t, err)
		res.Tx.Spends[pos].SpendAuthSig = sig.Serialize()
	}
	require.NoError(t, prover.Verify(res.Tx))
}

func TestLocalTxProverParams(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := NewLocalTxProver(dir)
	require.ErrorIs(t, err, ErrParamsNotFound)

	require.NoError(t, os.WriteFile(
		filepath.Join(dir, SpendParamsFile), []byte("spend"), 0600,
	))
	_, err = NewLocalTxProver(dir)
	require.ErrorIs(t, err, ErrParamsNotFound)

	require.NoError(t, os.WriteFile(
		filepath.Join(dir, OutputParamsFile), []byte("output"), 0600,
	))
	p, err := NewLocalTxProver(dir)
	require.NoError(t, err)
	require.Equal(t, testProver(), p)
}
