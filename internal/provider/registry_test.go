package provider

import (
	"context"
	"errors"
	"testing"

	pb "github.com/picklr-io/craftstack/pkg/provider"
	"github.com/picklr-io/craftstack/providers/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_LoadMock(t *testing.T) {
	r := NewRegistry(Settings{})

	b, err := r.Load(context.Background(), "mock")
	require.NoError(t, err)
	assert.IsType(t, &mock.Provider{}, b)

	again, err := r.Load(context.Background(), "mock")
	require.NoError(t, err)
	assert.Same(t, b, again, "backends are initialized once")

	got, err := r.Get("mock")
	require.NoError(t, err)
	assert.Same(t, b, got)
}

func TestRegistry_Unknown(t *testing.T) {
	r := NewRegistry(Settings{})

	_, err := r.Load(context.Background(), "gcp")
	assert.EqualError(t, err, "unknown backend: gcp")

	_, err = r.Get("aws")
	assert.EqualError(t, err, "backend not loaded: aws")
}

func TestRegistry_FactoryError(t *testing.T) {
	r := NewRegistry(Settings{Region: "eu-central-1", Profile: "games"})

	var seen Settings
	r.Register("aws", func(_ context.Context, s Settings) (pb.Backend, error) {
		seen = s
		return nil, errors.New("no credentials")
	})

	_, err := r.Load(context.Background(), "aws")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load backend aws")
	assert.Equal(t, Settings{Region: "eu-central-1", Profile: "games"}, seen)

	_, err = r.Get("aws")
	assert.Error(t, err, "failed loads are not cached")
}

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry(Settings{})
	assert.Equal(t, []string{"aws", "mock"}, r.Names())
}
