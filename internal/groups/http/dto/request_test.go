package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyGroupRequest_Validate(t *testing.T) {
	fpr := "0123456789ABCDEF0123456789ABCDEF01234567"

	t.Run("valid", func(t *testing.T) {
		req := KeyGroupRequest{Name: "ops", Fingerprints: []string{fpr}}
		assert.NoError(t, req.Validate())
	})

	t.Run("missing fingerprints", func(t *testing.T) {
		req := KeyGroupRequest{Name: "ops"}
		err := req.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "fingerprints")
	})

	t.Run("invalid fingerprint", func(t *testing.T) {
		req := KeyGroupRequest{Name: "ops", Fingerprints: []string{"not-hex"}}
		assert.Error(t, req.Validate())
	})

	t.Run("blank name", func(t *testing.T) {
		req := KeyGroupRequest{Name: " ", Fingerprints: []string{fpr}}
		assert.Error(t, req.Validate())
	})
}

func TestKeyGroupRequest_ToDomain(t *testing.T) {
	req := KeyGroupRequest{Name: "Ops", Description: "d", Fingerprints: []string{"a"}}
	input := req.ToDomain()
	assert.Equal(t, "Ops", input.Name)
	assert.Equal(t, "d", input.Description)
	assert.Equal(t, []string{"a"}, input.Fingerprints)
}
