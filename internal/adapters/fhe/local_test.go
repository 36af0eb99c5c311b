package fhe_test

import (
	"context"
	"testing"

	"github.com/alejandrodnm/ilguard/internal/adapters/fhe"
	"github.com/alejandrodnm/ilguard/internal/domain"
	"github.com/alejandrodnm/ilguard/internal/ports"
	"github.com/alejandrodnm/ilguard/internal/verifier"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	controllerAddr = common.HexToAddress("0x11c0")
	alice          = common.HexToAddress("0xa11ce")
	mallory        = common.HexToAddress("0xbad")
)

func TestLocalService_IngestChecksProof(t *testing.T) {
	s := fhe.NewLocalService(controllerAddr, 0, 0)
	ctx := context.Background()

	payload := s.EncryptInput(500, alice)
	require.Len(t, payload, 64)

	ct, err := s.Ingest(ctx, payload, alice)
	require.NoError(t, err)
	assert.False(t, ct.IsZero())

	_, err = s.Ingest(ctx, payload, mallory)
	assert.ErrorIs(t, err, fhe.ErrInvalidProof)

	_, err = s.Ingest(ctx, payload[:40], alice)
	assert.ErrorIs(t, err, domain.ErrInvalidCiphertext)
}

func TestLocalService_IngestGrantsNothing(t *testing.T) {
	s := fhe.NewLocalService(controllerAddr, 0, 0)
	ctx := context.Background()

	ct, err := s.Ingest(ctx, s.EncryptInput(500, alice), alice)
	require.NoError(t, err)
	assert.False(t, s.IsAllowed(ct, controllerAddr))
	assert.False(t, s.IsAllowed(ct, alice))

	current, err := s.Encrypt(ctx, 600)
	require.NoError(t, err)

	// sin grant el controller no puede comparar contra el umbral
	err = s.RequireGreaterOrEqual(ctx, current, ct)
	assert.ErrorIs(t, err, fhe.ErrAccessDenied)
}

func TestLocalService_Comparisons(t *testing.T) {
	s := fhe.NewLocalService(controllerAddr, 0, 0)
	ctx := context.Background()

	threshold, err := s.Ingest(ctx, s.EncryptInput(500, alice), alice)
	require.NoError(t, err)
	require.NoError(t, s.GrantAccess(ctx, threshold, controllerAddr))

	at, _ := s.Encrypt(ctx, 500)
	below, _ := s.Encrypt(ctx, 499)

	assert.NoError(t, s.RequireGreaterOrEqual(ctx, at, threshold))
	assert.ErrorIs(t, s.RequireGreaterOrEqual(ctx, below, threshold), ports.ErrConditionUnmet)

	bit, err := s.CompareGreaterOrEqual(ctx, at, threshold)
	require.NoError(t, err)
	ge, err := s.DecryptBit(ctx, bit)
	require.NoError(t, err)
	assert.True(t, ge)

	bit, err = s.CompareGreaterOrEqual(ctx, below, threshold)
	require.NoError(t, err)
	ge, err = s.DecryptBit(ctx, bit)
	require.NoError(t, err)
	assert.False(t, ge)
}

func TestLocalService_RevealOnlyForAllowed(t *testing.T) {
	s := fhe.NewLocalService(controllerAddr, 0, 0)
	ctx := context.Background()

	ct, err := s.Ingest(ctx, s.EncryptInput(750, alice), alice)
	require.NoError(t, err)
	require.NoError(t, s.GrantAccess(ctx, ct, alice))

	v, err := s.Reveal(ctx, ct, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(750), v)

	_, err = s.Reveal(ctx, ct, mallory)
	assert.ErrorIs(t, err, fhe.ErrAccessDenied)
}

func TestLocalService_GrantErrors(t *testing.T) {
	s := fhe.NewLocalService(controllerAddr, 0, 0)
	ctx := context.Background()

	err := s.GrantAccess(ctx, domain.NewCiphertext(common.HexToHash("0x01")), alice)
	assert.ErrorIs(t, err, fhe.ErrUnknownHandle)

	ct, _ := s.Encrypt(ctx, 1)
	err = s.GrantAccess(ctx, ct, common.Address{})
	assert.ErrorIs(t, err, domain.ErrZeroAddress)
}

func TestLocalService_RateLimited(t *testing.T) {
	s := fhe.NewLocalService(controllerAddr, 0.001, 2)
	ctx := context.Background()

	_, err := s.Encrypt(ctx, 1)
	require.NoError(t, err)
	_, err = s.Encrypt(ctx, 2)
	require.NoError(t, err)
	_, err = s.Encrypt(ctx, 3)
	assert.ErrorIs(t, err, fhe.ErrRateLimited)
}

func TestLocalService_WithVerifier(t *testing.T) {
	s := fhe.NewLocalService(controllerAddr, 0, 0)
	ctx := context.Background()

	for _, strategy := range []verifier.Strategy{verifier.StrategyEnforce, verifier.StrategyDecryptBit} {
		t.Run(string(strategy), func(t *testing.T) {
			v, err := verifier.New(s, strategy, controllerAddr)
			require.NoError(t, err)

			threshold, err := v.Seal(ctx, s.EncryptInput(300, alice), alice)
			require.NoError(t, err)
			assert.True(t, s.IsAllowed(threshold, controllerAddr))
			assert.True(t, s.IsAllowed(threshold, alice))

			session := v.NewSession()
			assert.Equal(t, verifier.Breached, session.Check(ctx, domain.Q96, 300, threshold).Kind)
			assert.Equal(t, verifier.NotBreached, v.NewSession().Check(ctx, domain.Q96, 299, threshold).Kind)
		})
	}
}
