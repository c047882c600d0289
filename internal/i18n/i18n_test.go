package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslations(t *testing.T) {
	require.NoError(t, Initialize())

	assert.Equal(t, "Invalid request", T("en", KeyValidationInvalid, "request"))
	assert.Equal(t, "簽章無效", T("zh_TW", KeyAuthInvalidSignature))
	assert.Equal(t, "Authentication required", T("fr", KeyAuthRequired))
	assert.Equal(t, "missing.key", T("en", "missing.key"))
	assert.ElementsMatch(t, []string{"en", "zh_TW"}, GetSupportedLanguages())
}
