package stomp

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFrameSplitsOnTerminator(t *testing.T) {
	input := "CONNECT\nlogin:a\n\n\x00SEND\ndestination:/a\n\nhi\x00"
	fr := NewFrameReader(strings.NewReader(input), 0)

	first, err := fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "CONNECT\nlogin:a\n\n", first)

	second, err := fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "SEND\ndestination:/a\n\nhi", second)

	_, err = fr.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrameHeartBeatBeforeEOF(t *testing.T) {
	fr := NewFrameReader(strings.NewReader("RECEIPT\n\n\x00\n\n"), 0)

	_, err := fr.ReadFrame()
	require.NoError(t, err)

	_, err = fr.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrameUnexpectedEOF(t *testing.T) {
	fr := NewFrameReader(strings.NewReader("SEND\ndestination:/a\n\nhal"), 0)

	_, err := fr.ReadFrame()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadFrameTooLarge(t *testing.T) {
	body := strings.Repeat("x", 8192)
	fr := NewFrameReader(strings.NewReader("SEND\n\n"+body+"\x00"), 1024)

	_, err := fr.ReadFrame()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadFrameLargerThanBuffer(t *testing.T) {
	body := strings.Repeat("y", 10000)
	fr := NewFrameReader(strings.NewReader("SEND\n\n"+body+"\x00"), 0)

	raw, err := fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, body, Parse(raw).Body)
}
