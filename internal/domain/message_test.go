package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 10))
	assert.Equal(t, "hel", Truncate("hello", 3))
	assert.Equal(t, "", Truncate("", 5))

	// Multi-byte runes are counted as characters, not bytes.
	assert.Equal(t, "héllö", Truncate("héllö wörld", 5))
	assert.Equal(t, "日本語", Truncate("日本語のテキスト", 3))
}
