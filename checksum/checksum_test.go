package checksum

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_KnownVectors(t *testing.T) {
	vectors := []string{
		"0x52908400098527886E0F7030069857D2E4169EE7",
		"0x8617E340B3D01FA5F11F306F4090FD50E238070D",
		"0xde709f2102306220921060314715629080e2fb77",
		"0x27b1fdb04752bbc536007a920d24acb045561c26",
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
		"0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb",
	}

	for _, want := range vectors {
		t.Run(want, func(t *testing.T) {
			for _, input := range []string{want, strings.ToLower(want), "0x" + strings.ToUpper(want[2:]), want[2:]} {
				got, err := Normalize(input)
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"0x52908400098527886E0F7030069857D2E4169EE7",
		"  0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed\n",
		"0XFB6916095CA1DF60BB79CE92CE3EA74C37C5D359",
	}

	for _, input := range inputs {
		once, err := Normalize(input)
		require.NoError(t, err)
		twice, err := Normalize(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice)
		assert.True(t, IsValid(once))
		assert.NoError(t, Verify(once))
	}
}

func TestNormalize_CasePatternFollowsHash(t *testing.T) {
	original := "0x52908400098527886e0f7030069857d2e4169ee7"
	flipped := "0x52908400098527886e0f7030069857d2e4169ee8"

	a, err := Normalize(original)
	require.NoError(t, err)
	b, err := Normalize(flipped)
	require.NoError(t, err)

	assert.NotEqual(t, strings.ToLower(a), strings.ToLower(b))
	assert.Equal(t, expectedChecksum(t, flipped), b)
	assert.Equal(t, expectedChecksum(t, original), a)

	again, err := Normalize(flipped)
	require.NoError(t, err)
	assert.Equal(t, b, again, "case must be deterministic")
}

func TestNormalize_Invalid(t *testing.T) {
	for _, input := range []string{
		"0xzzz",
		"",
		"0x",
		"0x52908400098527886E0F7030069857D2E4169EE",
		"0x52908400098527886E0F7030069857D2E4169EE77",
		"0x52908400098527886E0F7030069857D2E4169EEG",
	} {
		_, err := Normalize(input)
		assert.ErrorIs(t, err, ErrInvalidAddress, "input %q", input)
		assert.False(t, IsValid(input))
	}
}

func TestVerify(t *testing.T) {
	assert.NoError(t, Verify("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"))
	assert.NoError(t, Verify("0x5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED"))
	assert.NoError(t, Verify("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"))

	err := Verify("0x5AAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	assert.ErrorIs(t, Verify("0xzzz"), ErrInvalidAddress)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"))
	assert.False(t, Equal("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "0xde709f2102306220921060314715629080e2fb77"))
	assert.False(t, Equal("0xzzz", "0xzzz"))
}

// expectedChecksum applies EIP-55 directly: a hex letter is upper-cased when
// the matching nibble of keccak256(lowercase hex) is 8 or more.
func expectedChecksum(t *testing.T, address string) string {
	t.Helper()

	digits := strings.ToLower(strings.TrimPrefix(address, "0x"))
	hash := hex.EncodeToString(crypto.Keccak256([]byte(digits)))

	var b strings.Builder
	b.WriteString("0x")
	for i, c := range digits {
		if c >= 'a' && c <= 'f' && hash[i] >= '8' {
			b.WriteRune(c - 'a' + 'A')
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}
