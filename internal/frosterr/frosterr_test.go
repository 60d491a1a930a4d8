package frosterr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfFindsTaggedError(t *testing.T) {
	err := New(Transport, "rendezvous unreachable")
	assert.Equal(t, Transport, KindOf(err))
}

func TestKindOfWalksWrappedChain(t *testing.T) {
	tagged := New(Cryptographic, "signature verification failed")
	wrapped := fmt.Errorf("round2: %w", tagged)
	assert.Equal(t, Cryptographic, KindOf(wrapped))
}

func TestKindOfDefaultsToConfiguration(t *testing.T) {
	assert.Equal(t, Configuration, KindOf(errors.New("plain error")))
}

func TestWrapPreservesCauseAndKind(t *testing.T) {
	cause := errors.New("file not found")
	err := Wrap(IO, cause, "read registry file")
	assert.Equal(t, IO, KindOf(err))
	assert.Contains(t, err.Error(), "read registry file")
	assert.NotNil(t, err.Cause())
	assert.Same(t, err.Cause(), err.Unwrap())
}

func TestExitCodeIsUniquePerKind(t *testing.T) {
	kinds := []Kind{Configuration, Protocol, RemoteRejection, Timeout, Transport, Cryptographic, IO}
	seen := make(map[int]Kind)
	for _, k := range kinds {
		code := ExitCode(k)
		assert.NotZero(t, code)
		if other, ok := seen[code]; ok {
			t.Fatalf("exit code %d reused by both %s and %s", code, other, k)
		}
		seen[code] = k
	}
}

func TestNewfFormatsReason(t *testing.T) {
	err := Newf(Configuration, "unknown backend %q", "carrier-pigeon")
	assert.Contains(t, err.Error(), `unknown backend "carrier-pigeon"`)
}
