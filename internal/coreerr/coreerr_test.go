package coreerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewHasNoCause(t *testing.T) {
	err := New(CodeNotFound, "missing session")
	assert.Equal(t, "not_found: missing session", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestWrapNilCauseReturnsTrueNil(t *testing.T) {
	err := Wrap(CodeIO, nil, "checkpoint")
	assert.Nil(t, err)
	assert.True(t, err == nil, "Wrap(code, nil, msg) must be a true nil error, not a typed nil *Error")
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(CodeIO, cause, "write batch")
	if assert.NotNil(t, err) {
		assert.Contains(t, err.Error(), "io_error")
		assert.Contains(t, err.Error(), "write batch")
		assert.Contains(t, err.Error(), "disk full")
	}
}

func TestCodeOfFindsWrappedCode(t *testing.T) {
	err := Wrap(CodeParse, errors.New("bad token"), "parse")
	code, ok := CodeOf(err)
	assert.True(t, ok)
	assert.Equal(t, CodeParse, code)
}

func TestCodeOfMissOnPlainError(t *testing.T) {
	_, ok := CodeOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestWithDiagnosisCarriesPartialMatches(t *testing.T) {
	d := Diagnosis{
		Suggestion: "looks like a WeChat export missing 'contacts'",
		PartialMatches: []PartialMatch{
			{FormatName: "wechat", MissingFields: []string{"contacts"}},
		},
	}
	err := WithDiagnosis("could not recognize format", d)
	assert.Equal(t, CodeUnrecognizedFormat, err.Code)
	if assert.NotNil(t, err.Diagnosis) {
		assert.Equal(t, "wechat", err.Diagnosis.PartialMatches[0].FormatName)
	}
}
