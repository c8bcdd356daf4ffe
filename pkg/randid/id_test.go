package randid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate(t *testing.T) {
	id := Generate(12)
	assert.Len(t, id, 12)
	assert.Regexp(t, `^[a-z0-9]{12}$`, id)
	assert.Empty(t, Generate(0))
	assert.NotEqual(t, Generate(16), Generate(16))
}

func TestName(t *testing.T) {
	assert.Regexp(t, `^parley_test_[a-z0-9]{8}$`, Name("parley_test", "_", 8))
	assert.Regexp(t, `^parley_test:[a-z0-9]{8}$`, Name("parley_test", ":", 8))
}
