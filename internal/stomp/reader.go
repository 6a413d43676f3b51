package stomp

import (
	"bufio"
	"errors"
	"io"
)

// DefaultMaxFrameSize 默认单帧上限
const DefaultMaxFrameSize = 1 << 20

var ErrFrameTooLarge = errors.New("frame exceeds the maximum frame size")

// FrameReader 从字节流中按 NUL 切分原始帧
type FrameReader struct {
	r       *bufio.Reader
	maxSize int
	buf     []byte
}

func NewFrameReader(r io.Reader, maxSize int) *FrameReader {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &FrameReader{r: bufio.NewReader(r), maxSize: maxSize}
}

// ReadFrame 读取下一个完整的原始帧（不含结束符）。
// 连接在帧中途关闭时返回 io.ErrUnexpectedEOF
func (fr *FrameReader) ReadFrame() (string, error) {
	fr.buf = fr.buf[:0]
	for {
		chunk, err := fr.r.ReadSlice(Terminator)
		if len(fr.buf)+len(chunk) > fr.maxSize+1 {
			return "", ErrFrameTooLarge
		}
		fr.buf = append(fr.buf, chunk...)

		switch {
		case err == nil:
			return string(fr.buf[:len(fr.buf)-1]), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(trimEOL(fr.buf)) > 0:
			return "", io.ErrUnexpectedEOF
		default:
			return "", err
		}
	}
}

func trimEOL(b []byte) []byte {
	for len(b) > 0 && (b[0] == '\n' || b[0] == '\r') {
		b = b[1:]
	}
	return b
}
