package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/harrissondutra/fitOS-sub014/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName_Convention(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"abc-123", "tenant_abc_123"},
		{"t1", "tenant_t1"},
		{"clx9f0d2k0000qz8h3n6b1v2c", "tenant_clx9f0d2k0000qz8h3n6b1v2c"},
		{"6f1e1c1a-8d6b-4f7e-9b2a-0e4c5d6f7a8b", "tenant_6f1e1c1a_8d6b_4f7e_9b2a_0e4c5d6f7a8b"},
	}

	for _, tc := range tests {
		got, err := Name(tc.id)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
		assert.NoError(t, ValidateName(got))
	}
}

func TestName_EmptyID(t *testing.T) {
	_, err := Name("")
	assert.ErrorIs(t, err, common.ErrInvalidIdentifier)
}

func TestName_Deterministic(t *testing.T) {
	for i := 0; i < 50; i++ {
		id := uuid.NewString()
		a, err := Name(id)
		require.NoError(t, err)
		b, err := Name(id)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestName_NoCollisions(t *testing.T) {
	seen := map[string]string{}
	ids := []string{"abc-123", "abc_123", "ABC-123", "abc.123", "abc 123", "abc-1234", "a_b", "a-b-648fa9b3"}
	for i := 0; i < 2000; i++ {
		ids = append(ids, uuid.NewString(), fmt.Sprintf("tenant-%d", i))
	}

	for _, id := range ids {
		name, err := Name(id)
		require.NoError(t, err)
		if prev, dup := seen[name]; dup {
			t.Fatalf("ids %q and %q both map to %q", prev, id, name)
		}
		seen[name] = id
	}
}

func TestName_LossyIDsGetHashSuffix(t *testing.T) {
	name, err := Name("Acme_Gym")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "tenant_acme_gym_"))
	assert.Len(t, name, len("tenant_acme_gym_")+hashSuffixLength)
	assert.NoError(t, ValidateName(name))
}

func TestName_PlainIDCannotReproduceHashSuffix(t *testing.T) {
	lossy, err := Name("a_b")
	require.NoError(t, err)

	sum := sha256.Sum256([]byte("a_b"))
	crafted := "a-b-" + hex.EncodeToString(sum[:])[:hashSuffixLength]
	plain, err := Name(crafted)
	require.NoError(t, err)

	assert.NotEqual(t, lossy, plain)
	assert.True(t, strings.HasPrefix(plain, Prefix+"a_b_"+hex.EncodeToString(sum[:])[:hashSuffixLength]+"_"))
	assert.NoError(t, ValidateName(plain))
}

func TestName_HashShapedTailGetsSuffix(t *testing.T) {
	name, err := Name("gym-deadbeef")
	require.NoError(t, err)
	assert.NotEqual(t, "tenant_gym_deadbeef", name)
	assert.Len(t, name, len("tenant_gym_deadbeef_")+hashSuffixLength)

	// Not hex, or not eight digits: stays plain.
	for id, want := range map[string]string{
		"gym-deadbeeg":  "tenant_gym_deadbeeg",
		"gym-deadbee":   "tenant_gym_deadbee",
		"gym-deadbeef0": "tenant_gym_deadbeef0",
	} {
		got, err := Name(id)
		require.NoError(t, err)
		assert.Equal(t, want, got, id)
	}
}

func TestName_LengthBoundary(t *testing.T) {
	exact := strings.Repeat("a", MaxIdentifierLength-len(Prefix))
	name, err := Name(exact)
	require.NoError(t, err)
	assert.Equal(t, Prefix+exact, name)
	assert.Len(t, name, MaxIdentifierLength)

	over := exact + "b"
	name, err = Name(over)
	require.NoError(t, err)
	assert.Len(t, name, MaxIdentifierLength)
	assert.NoError(t, ValidateName(name))

	other, err := Name(exact + "c")
	require.NoError(t, err)
	assert.NotEqual(t, name, other, "truncated names stay distinct")

	long, err := Name(strings.Repeat("x-", 200))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(long), MaxIdentifierLength)
}

func TestValidateName(t *testing.T) {
	bad := []string{
		"",
		"public",
		"pg_catalog",
		"information_schema",
		"tenant_",
		`tenant_a"; DROP SCHEMA public; --`,
		"tenant_ABC",
		"tenant_" + strings.Repeat("a", MaxIdentifierLength),
	}
	for _, name := range bad {
		assert.ErrorIs(t, ValidateName(name), common.ErrInvalidIdentifier, name)
	}
	assert.NoError(t, ValidateName("tenant_t1"))
}
