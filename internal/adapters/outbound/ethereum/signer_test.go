package ethereum

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keymesh/socialproof/internal/domain/entity"
)

func TestKeySigner_SignAndVerify(t *testing.T) {
	signer, err := GenerateKeySigner()
	require.NoError(t, err)

	claim, err := entity.NewClaim(signer.Address(), signer.PublicKey())
	require.NoError(t, err)
	payload, err := claim.Payload()
	require.NoError(t, err)

	sig, err := signer.Sign(context.Background(), payload)
	require.NoError(t, err)

	ok, err := Verifier{}.Verify(payload, sig, signer.PublicKey())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verifier{}.Verify([]byte("tampered"), sig, signer.PublicKey())
	require.NoError(t, err)
	assert.False(t, ok)

	other, err := GenerateKeySigner()
	require.NoError(t, err)
	ok, err = Verifier{}.Verify(payload, sig, other.PublicKey())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewKeySigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := hexutil.Encode(crypto.FromECDSA(key))

	signer, err := NewKeySigner(hexKey)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), signer.Address())

	_, err = NewKeySigner("zz")
	assert.ErrorIs(t, err, entity.ErrInvalidInput)
}

func TestVerifier_MalformedInput(t *testing.T) {
	_, err := Verifier{}.Verify([]byte("x"), "nothex", "0x02")
	assert.ErrorIs(t, err, entity.ErrInvalidInput)

	_, err = Verifier{}.Verify([]byte("x"), "0x0102", "0x02")
	assert.ErrorIs(t, err, entity.ErrInvalidInput)
}

func TestKeySigner_HonoursCancelledContext(t *testing.T) {
	signer, err := GenerateKeySigner()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = signer.Sign(ctx, []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
