package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeParamsRedactsSensitiveKeys(t *testing.T) {
	params := map[string]interface{}{
		"username":     "alice",
		"password":     "hunter2",
		"totpCode":     "123456",
		"clientSecret": "s3cr3t",
		"authToken":    "tok_abc",
		"credentialId": "cred_1",
		"buttonText":   "Sign in",
	}

	clean := SanitizeParams(params)

	assert.Equal(t, "alice", clean["username"])
	assert.Equal(t, "Sign in", clean["buttonText"])
	for _, key := range []string{"password", "totpCode", "clientSecret", "authToken", "credentialId"} {
		assert.Equal(t, Redacted, clean[key], "key %s must be redacted", key)
	}
}

func TestSanitizeParamsMatchesCaseInsensitiveSubstrings(t *testing.T) {
	clean := SanitizeParams(map[string]interface{}{
		"PASSWORD":      "x",
		"NewPassword":   "x",
		"backup_code":   "x",
		"TOTP":          "x",
		"ApiToken":      "x",
		"sharedSECRETs": "x",
	})
	for key, value := range clean {
		assert.Equal(t, Redacted, value, "key %s must be redacted", key)
	}
}

func TestSanitizeParamsRecursesNestedMaps(t *testing.T) {
	params := map[string]interface{}{
		"form": map[string]interface{}{
			"fields": map[string]interface{}{
				"password": "deep-secret",
				"email":    "a@b.com",
			},
		},
	}

	clean := SanitizeParams(params)

	form, ok := clean["form"].(map[string]interface{})
	require.True(t, ok)
	fields, ok := form["fields"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, Redacted, fields["password"])
	assert.Equal(t, "a@b.com", fields["email"])
}

func TestSanitizeParamsDoesNotMutateInput(t *testing.T) {
	params := map[string]interface{}{"password": "orig"}
	_ = SanitizeParams(params)
	assert.Equal(t, "orig", params["password"])
}

func TestSanitizeParamsNil(t *testing.T) {
	assert.Nil(t, SanitizeParams(nil))
}
