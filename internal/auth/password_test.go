package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashSecretRoundTrip(t *testing.T) {
	hash, err := HashSecret("correct horse battery staple")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$argon2id$"))

	assert.True(t, VerifySecret(hash, "correct horse battery staple"))
	assert.False(t, VerifySecret(hash, "correct horse battery stable"))
	assert.False(t, VerifySecret(hash, ""))
}

func TestHashSecretSaltsDiffer(t *testing.T) {
	first, err := HashSecret("same input")
	require.NoError(t, err)
	second, err := HashSecret("same input")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, VerifySecret(first, "same input"))
	assert.True(t, VerifySecret(second, "same input"))
}

func TestVerifySecretRejectsMalformedHash(t *testing.T) {
	cases := []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$a2V5",
		"$argon2id$v=18$m=65536,t=1,p=4$c2FsdA$a2V5",
		"$argon2id$v=19$m=65536,t=1,p=4$!!!$a2V5",
		"$argon2id$v=19$m=65536,t=1,p=4$c2FsdA",
	}
	for _, encoded := range cases {
		assert.False(t, VerifySecret(encoded, "anything"), "hash %q", encoded)
	}
}

func TestVerifySecretTamperedKey(t *testing.T) {
	hash, err := HashSecret("secret")
	require.NoError(t, err)

	parts := strings.Split(hash, "$")
	require.Len(t, parts, 6)
	key := []byte(parts[5])
	if key[0] == 'A' {
		key[0] = 'B'
	} else {
		key[0] = 'A'
	}
	parts[5] = string(key)

	assert.False(t, VerifySecret(strings.Join(parts, "$"), "secret"))
}
