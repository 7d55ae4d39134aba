package validation

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

func TestValidateClientContentType(t *testing.T) {
	assert.NoError(t, ValidateClientContentType("text/csv"))
	assert.NoError(t, ValidateClientContentType("text/csv; charset=Shift_JIS"))
	assert.NoError(t, ValidateClientContentType(""))
	assert.Error(t, ValidateClientContentType("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"))
	assert.Error(t, ValidateClientContentType("image/png"))
}

func TestValidateFileContentByMagicBytes(t *testing.T) {
	t.Run("accepts Shift_JIS text and rewinds", func(t *testing.T) {
		raw, _, err := transform.Bytes(japanese.ShiftJIS.NewEncoder(), []byte("約定日,銘柄コード\r\n2024/01/05,7203\r\n"))
		require.NoError(t, err)
		r := bytes.NewReader(raw)

		ct, err := ValidateFileContentByMagicBytes(r)
		require.NoError(t, err)
		assert.Equal(t, "text/plain", ct)

		all, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, raw, all)
	})

	t.Run("rejects binary content", func(t *testing.T) {
		_, err := ValidateFileContentByMagicBytes(bytes.NewReader([]byte{0x50, 0x4B, 0x03, 0x04, 0x00}))
		assert.Error(t, err)
	})

	t.Run("rejects empty files", func(t *testing.T) {
		_, err := ValidateFileContentByMagicBytes(bytes.NewReader(nil))
		assert.Error(t, err)
	})

	t.Run("rejects html", func(t *testing.T) {
		_, err := ValidateFileContentByMagicBytes(strings.NewReader("<html><body>hi</body></html>"))
		assert.Error(t, err)
	})
}

func TestSanitizers(t *testing.T) {
	assert.Equal(t, "トヨタ自動車", SanitizeDisplayName(" <b>トヨタ自動車</b>\x07"))
	assert.Equal(t, "AT&T", SanitizeDisplayName("AT&T"))
	assert.Equal(t, "'=SUM(A1)", SanitizeForFormulaInjection("=SUM(A1)"))
	assert.Equal(t, "'-2000", SanitizeForFormulaInjection("-2000"))
	assert.Equal(t, "7203.T", SanitizeForFormulaInjection("7203.T"))
}

func TestFieldValidators(t *testing.T) {
	assert.NoError(t, ValidateInstrumentID("7203.T"))
	assert.NoError(t, ValidateInstrumentID("^N225"))
	assert.ErrorIs(t, ValidateInstrumentID(""), ErrValidationFailed)
	assert.ErrorIs(t, ValidateInstrumentID("72 03"), ErrValidationFailed)
	assert.ErrorIs(t, ValidateInstrumentID("../etc"), ErrValidationFailed)

	assert.NoError(t, ValidateAnalysisID("1b4e28ba-2fa1-11d2-883f-0016d3cca427"))
	assert.ErrorIs(t, ValidateAnalysisID("nope"), ErrValidationFailed)

	n, err := ParseLimit("", 50)
	require.NoError(t, err)
	assert.Equal(t, 50, n)
	n, err = ParseLimit("10000", 50)
	require.NoError(t, err)
	assert.Equal(t, MaxListLimit, n)
	_, err = ParseLimit("-1", 50)
	assert.Error(t, err)
}
