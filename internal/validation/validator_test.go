package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathwatch/pathwatch/internal/errors"
)

type sample struct {
	Paths []string `yaml:"paths" validate:"min=1"`
	Level string   `yaml:"level" validate:"oneof=debug info warn error"`
	Limit int      `yaml:"limit" validate:"gte=0"`
}

func TestValidateOK(t *testing.T) {
	v := New()
	err := v.Validate(&sample{Paths: []string{"/tmp"}, Level: "info"})
	assert.NoError(t, err)
}

func TestValidateReportsYamlNames(t *testing.T) {
	v := New()
	err := v.Validate(&sample{Level: "loud", Limit: -1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, &errors.Error{Code: errors.CodeInvalidArgument}))

	msg := err.Error()
	assert.Contains(t, msg, "paths must have at least 1 entries")
	assert.Contains(t, msg, "level must be one of: debug info warn error")
	assert.Contains(t, msg, "limit must be greater than or equal to 0")
}
