package hpserr

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrorsIsMatchesKind(t *testing.T) {
	err := New(NotConnected, "no active session")
	assert.True(t, errors.Is(err, NotConnected))
	assert.False(t, errors.Is(err, Banned))
}

func TestBannedCarriesUntil(t *testing.T) {
	until := time.Now().Add(time.Hour)
	err := NewBanned(until, "too many failed attempts")
	assert.True(t, errors.Is(err, Banned))
	assert.Equal(t, until, err.Until)
}

func TestErrorMessageFormatting(t *testing.T) {
	err := New(InvalidArgument, "domain %q is not valid", "bad_domain")
	assert.Contains(t, err.Error(), "bad_domain")
	assert.Contains(t, err.Error(), string(InvalidArgument))
}
