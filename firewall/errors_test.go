package firewall

import (
	"io"
	"testing"

	"emperror.dev/errors"
	"github.com/stretchr/testify/assert"
)

func TestFormatCode(t *testing.T) {
	assert.Equal(t, "0x80070005", FormatCode(CodeAccessDenied))
	assert.Equal(t, "0x00000001", FormatCode(1))
}

func TestStatusErrorKinds(t *testing.T) {
	err := errors.Wrap(Rejected(OpAdd, CodeFail, io.ErrUnexpectedEOF), "submitting rule")

	assert.ErrorIs(t, err, ErrMutationFailed)
	assert.NotErrorIs(t, err, ErrServiceUnavailable)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Contains(t, err.Error(), "Rules.Add failed: 0x80004005")

	op, code := StatusOf(err)
	assert.Equal(t, OpAdd, op)
	assert.Equal(t, CodeFail, code)

	assert.ErrorIs(t, NotFound(OpItem, CodeFileNotFound), ErrNotFound)
	assert.ErrorIs(t, Unavailable(OpOpen, CodeFail, nil), ErrServiceUnavailable)
}

func TestStatusOfPlainError(t *testing.T) {
	op, code := StatusOf(errors.New("boom"))
	assert.Empty(t, op)
	assert.Equal(t, CodeFail, code)
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "old_rule_checked", StageOldRuleChecked.String())
	assert.Equal(t, "failed", StageFailed.String())
	assert.Equal(t, "unknown", Stage(42).String())
	assert.Equal(t, "allow", ActionAllow.String())
	assert.Equal(t, "inbound", DirectionInbound.String())
}
