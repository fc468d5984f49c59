package tests

import (
	"context"
	"testing"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ContributorContractTest is a reusable test suite that verifies if an adapter
// complies with ports.Contributor and the optional capabilities it advertises.
func ContributorContractTest(t *testing.T, c ports.Contributor) {
	t.Helper()
	ctx := context.Background()
	caps := ports.CapabilitiesOf(c)

	t.Run("Name", func(t *testing.T) {
		assert.NotEmpty(t, c.Name(), "contributor name identifies its events")
	})

	services, err := c.Services(ctx)
	require.NoError(t, err, "Services should not fail on a healthy contributor")

	t.Run("Unique IDs", func(t *testing.T) {
		seen := make(map[string]bool, len(services))
		for _, v := range services {
			require.NotNil(t, v)
			assert.False(t, seen[v.ID()], "duplicate service id %q", v.ID())
			seen[v.ID()] = true
		}
	})

	t.Run("Service Descriptors", func(t *testing.T) {
		for _, v := range services {
			_, err := c.ServiceDescriptor(v)
			assert.NoError(t, err, "descriptor for %q", v.ID())
		}
	})

	if caps.Grouping() {
		t.Run("Group Descriptors", func(t *testing.T) {
			for _, v := range services {
				path, err := caps.Groups(v)
				require.NoError(t, err)
				for _, key := range path {
					_, err := caps.GroupDescriptor(key)
					assert.NoError(t, err, "group descriptor for %q", key.ID())
				}
			}
		})
	}

	if caps.Ordered() {
		t.Run("Compare Antisymmetric", func(t *testing.T) {
			for _, a := range services {
				for _, b := range services {
					ab, ba := caps.Compare(a, b), caps.Compare(b, a)
					assert.Equal(t, sign(ab), -sign(ba), "compare(%s,%s)", a.ID(), b.ID())
				}
			}
		})
	}

	if caps.Resolve != nil {
		t.Run("Resolve Round Trip", func(t *testing.T) {
			for _, v := range services {
				got, ok := caps.Resolve(v.ID())
				require.True(t, ok, "resolve %q", v.ID())
				assert.True(t, domain.SameValue(v, got))
			}
			_, ok := caps.Resolve("non-existent-service")
			assert.False(t, ok)
		})
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}
