package build

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersion(t *testing.T) {
	Version = "1.0.0"
	assert.Equal(t, "v"+Version, GetVersion())

	Commit = "123"
	assert.Equal(t, "v"+Version+"-"+Commit, GetVersion())
}
