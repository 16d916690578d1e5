package password

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashIsDeterministic(t *testing.T) {
	assert.Equal(t, Hash("1234"), Hash("1234"), "same input must always yield the same digest")
	assert.NotEqual(t, Hash("1234"), Hash("1235"))
	assert.Len(t, Hash("1234"), 64, "digest should be hex-encoded sha256")
}

func TestVerifyRoundTrip(t *testing.T) {
	for _, pwd := range []string{"0000", "1234", "9999", "0042"} {
		t.Run(pwd, func(t *testing.T) {
			digest := Hash(pwd)
			assert.True(t, Verify(pwd, digest), "password must verify against its own digest")
		})
	}
}

func TestVerifyRejectsWrongPassword(t *testing.T) {
	digest := Hash("1234")
	for _, pwd := range []string{"9999", "123", "12345", "", "1234 "} {
		assert.Falsef(t, Verify(pwd, digest), "%q must not verify against digest of 1234", pwd)
	}
}

func TestVerifyRejectsEmptyDigest(t *testing.T) {
	// a bundle without a digest requires no password; Verify must never
	// succeed against an empty one
	assert.False(t, Verify("", ""))
	assert.False(t, Verify("1234", ""))
}

func TestVerifyFullDigitSpaceSample(t *testing.T) {
	for i := 0; i < 10000; i += 1111 {
		pwd := fmt.Sprintf("%04d", i)
		assert.Truef(t, Verify(pwd, Hash(pwd)), "round trip failed for %q", pwd)
	}
}
