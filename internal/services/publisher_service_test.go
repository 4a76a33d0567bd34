package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keygate-io/keygate/internal/store"
	apperrors "github.com/keygate-io/keygate/pkg/errors"
	"github.com/keygate-io/keygate/pkg/metrics"
)

func TestPublishSuccess(t *testing.T) {
	env := newTestEnv(t, 100)
	ctx := context.Background()

	expiresAt := time.Now().Add(time.Hour)
	result, err := env.publisher.Publish(ctx, PublishInput{
		ItemKey:     "app://users/u1",
		Permissions: []string{"read", "write"},
		ExpiresAt:   expiresAt,
		MaxUses:     5,
	})
	require.NoError(t, err)

	require.Len(t, result.Secret, 43)
	require.Equal(t, "app://users/u1", result.ItemKey)
	require.Equal(t, []string{"read", "write"}, result.Permissions)
	require.EqualValues(t, 5, result.MaxUses)
	require.WithinDuration(t, expiresAt, result.ExpiresAt, time.Second)

	// The persisted record carries the fingerprint and verifier, never the secret.
	records, _, err := env.records.List(ctx, store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotContains(t, records[0].Verifier, result.Secret)
	require.Len(t, records[0].Fingerprint, 16)
	require.EqualValues(t, 0, records[0].UsedCount)
}

func TestPublishValidationErrors(t *testing.T) {
	env := newTestEnv(t, 100)
	ctx := context.Background()

	valid := PublishInput{
		ItemKey:     "app://users/u1",
		Permissions: []string{"read"},
		ExpiresAt:   time.Now().Add(time.Hour),
		MaxUses:     1,
	}

	cases := []struct {
		name   string
		mutate func(*PublishInput)
		field  string
	}{
		{"missing item key", func(in *PublishInput) { in.ItemKey = "" }, "item_key"},
		{"item key without scheme", func(in *PublishInput) { in.ItemKey = "users/u1" }, "item_key"},
		{"item key without host", func(in *PublishInput) { in.ItemKey = "app://" }, "item_key"},
		{"empty permissions", func(in *PublishInput) { in.Permissions = nil }, "permissions"},
		{"blank permission entry", func(in *PublishInput) { in.Permissions = []string{"read", " "} }, "permissions"},
		{"zero expiry", func(in *PublishInput) { in.ExpiresAt = time.Time{} }, "expires_at"},
		{"past expiry", func(in *PublishInput) { in.ExpiresAt = time.Now().Add(-time.Minute) }, "expires_at"},
		{"zero max uses", func(in *PublishInput) { in.MaxUses = 0 }, "max_uses"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := valid
			tc.mutate(&input)

			_, err := env.publisher.Publish(ctx, input)
			require.Error(t, err)

			appErr := apperrors.FromError(err)
			require.Equal(t, "VALIDATION_FAILED", appErr.Code)
			require.Contains(t, appErr.Message, tc.field)
		})
	}

	// Nothing was persisted by the rejected inputs.
	_, total, err := env.records.List(ctx, store.ListOptions{})
	require.NoError(t, err)
	require.Zero(t, total)
}

// collidingStore forces the verifier-exists check to report a collision.
type collidingStore struct {
	store.RecordStore
}

func (s collidingStore) ExistsVerifier(ctx context.Context, verifier string) (bool, error) {
	return true, nil
}

func TestPublishVerifierCollision(t *testing.T) {
	env := newTestEnv(t, 100)

	publisher, err := NewPublisherService(collidingStore{env.records}, fastArgon(), env.sink)
	require.NoError(t, err)

	_, err = publisher.Publish(context.Background(), PublishInput{
		ItemKey:     "app://users/u1",
		Permissions: []string{"read"},
		ExpiresAt:   time.Now().Add(time.Hour),
		MaxUses:     1,
	})
	require.ErrorIs(t, err, apperrors.ErrDuplicateKey)

	// Collision means no record was created.
	_, total, err := env.records.List(context.Background(), store.ListOptions{})
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestPublishEmitsMetrics(t *testing.T) {
	env := newTestEnv(t, 100)

	env.mustPublish(t, 1, time.Hour)
	_, err := env.publisher.Publish(context.Background(), PublishInput{})
	require.Error(t, err)

	env.sink.mu.Lock()
	defer env.sink.mu.Unlock()
	require.Equal(t, 1, env.sink.publishes[metrics.ResultSuccess])
	require.Equal(t, 1, env.sink.publishes[metrics.ResultFailure])
}

func TestPublishSecretsAreUnique(t *testing.T) {
	env := newTestEnv(t, 100)

	first := env.mustPublish(t, 1, time.Hour)
	second := env.mustPublish(t, 1, time.Hour)
	require.NotEqual(t, first, second)
}

func TestNewPublisherServiceValidation(t *testing.T) {
	env := newTestEnv(t, 100)

	_, err := NewPublisherService(nil, fastArgon(), env.sink)
	require.Error(t, err)

	bad := fastArgon()
	bad.Time = 0
	_, err = NewPublisherService(env.records, bad, env.sink)
	require.Error(t, err)
}
