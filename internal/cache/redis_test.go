package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "dodo:idem:POST:/lullabies:abc", Key("idem", "POST", "/lullabies", "abc"))
	assert.Equal(t, "dodo:", Key())
}
