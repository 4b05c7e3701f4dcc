package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageTypeStringKnownValue(t *testing.T) {
	assert.Equal(t, "red_packet", MessageRedPacket.String())
	assert.Equal(t, "recall", MessageRecall.String())
}

func TestMessageTypeStringUnknownFallsBackToOther(t *testing.T) {
	assert.Equal(t, "other", MessageType(42).String())
}

func TestIsKnown(t *testing.T) {
	assert.True(t, IsKnown(MessageText))
	assert.True(t, IsKnown(MessageContact))
	assert.False(t, IsKnown(MessageType(6)))  // gap left by MessageLink=7
	assert.False(t, IsKnown(MessageType(-1)))
}

func TestNormalizeMapsUnknownToOther(t *testing.T) {
	assert.Equal(t, MessageOther, Normalize(6))
	assert.Equal(t, MessageImage, Normalize(1))
}

func TestTypeFromContentHeuristics(t *testing.T) {
	assert.Equal(t, MessageImage, TypeFromContent("[图片]"))
	assert.Equal(t, MessageRedPacket, TypeFromContent("恭喜发财，领个红包吧"))
	assert.Equal(t, MessagePoke, TypeFromContent("拍了拍你"))
	assert.Equal(t, MessageText, TypeFromContent("just a normal message"))
}
