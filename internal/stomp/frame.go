// Package stomp 实现了STOMP文本帧的编解码以及客户端命令的头部约束
package stomp

import (
	"strings"
)

// Terminator 帧结束符
const Terminator byte = 0x00

// 服务端生成的帧命令
const (
	CONNECTED = "CONNECTED"
	MESSAGE   = "MESSAGE"
	RECEIPT   = "RECEIPT"
	ERROR     = "ERROR"
)

// 常用头部名称
const (
	HeaderAcceptVersion = "accept-version"
	HeaderHost          = "host"
	HeaderLogin         = "login"
	HeaderPasscode      = "passcode"
	HeaderDestination   = "destination"
	HeaderID            = "id"
	HeaderReceipt       = "receipt"
	HeaderReceiptID     = "receipt-id"
	HeaderVersion       = "version"
	HeaderMessage       = "message"
	HeaderMessageID     = "message-id"
	HeaderSubscription  = "subscription"
)

// Header 单个头部，HasValue 为 false 表示该行没有冒号
type Header struct {
	Key      string
	Value    string
	HasValue bool
}

// Frame 一个完整的STOMP帧，构造后不再修改
type Frame struct {
	Command string
	Headers []Header
	Body    string
}

// NewFrame 按给定顺序构造帧，kv 依次为 key, value
func NewFrame(command string, body string, kv ...string) *Frame {
	f := &Frame{Command: command, Body: body}
	for i := 0; i+1 < len(kv); i += 2 {
		f.Headers = append(f.Headers, Header{Key: kv[i], Value: kv[i+1], HasValue: true})
	}
	return f
}

// Get 返回头部的值，头部不存在或没有值时 ok 为 false
func (f *Frame) Get(key string) (string, bool) {
	for _, h := range f.Headers {
		if h.Key == key {
			return h.Value, h.HasValue
		}
	}
	return "", false
}

// Value 返回头部的值，不存在时返回空字符串
func (f *Frame) Value(key string) string {
	v, _ := f.Get(key)
	return v
}

// Has 判断头部是否出现过（无论是否有值）
func (f *Frame) Has(key string) bool {
	for _, h := range f.Headers {
		if h.Key == key {
			return true
		}
	}
	return false
}

// With 返回追加（或替换）了一个头部的副本，原帧保持不变
func (f *Frame) With(key, value string) *Frame {
	headers := make([]Header, 0, len(f.Headers)+1)
	replaced := false
	for _, h := range f.Headers {
		if h.Key == key {
			if !replaced {
				headers = append(headers, Header{Key: key, Value: value, HasValue: true})
				replaced = true
			}
			continue
		}
		headers = append(headers, h)
	}
	if !replaced {
		headers = append(headers, Header{Key: key, Value: value, HasValue: true})
	}
	return &Frame{Command: f.Command, Headers: headers, Body: f.Body}
}

// String 序列化为线上格式，包含结尾的 NUL
func (f *Frame) String() string {
	var b strings.Builder
	size := len(f.Command) + len(f.Body) + 3
	for _, h := range f.Headers {
		size += len(h.Key) + len(h.Value) + 2
	}
	b.Grow(size)

	b.WriteString(f.Command)
	b.WriteByte('\n')
	for _, h := range f.Headers {
		b.WriteString(h.Key)
		if h.HasValue {
			b.WriteByte(':')
			b.WriteString(h.Value)
		}
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	if f.Body != "" {
		b.WriteString(f.Body)
	}
	b.WriteByte(Terminator)
	return b.String()
}

// Bytes 同 String，便于直接写入连接
func (f *Frame) Bytes() []byte {
	return []byte(f.String())
}

// Parse 解析一个原始帧。解析永远不会失败，无法识别的命令原样保留，由上层拒绝
func Parse(raw string) *Frame {
	if i := strings.IndexByte(raw, Terminator); i >= 0 {
		raw = raw[:i]
	}
	// 帧之间的空行是心跳
	raw = strings.TrimLeft(raw, "\r\n")

	command, rest := cutLine(raw)
	f := &Frame{Command: command}
	seen := make(map[string]struct{})

	for rest != "" {
		var line string
		line, rest = cutLine(rest)
		if line == "" {
			break
		}
		key, value, found := strings.Cut(line, ":")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		f.Headers = append(f.Headers, Header{Key: key, Value: value, HasValue: found})
	}

	if strings.HasSuffix(rest, "\r\n") {
		rest = rest[:len(rest)-2]
	} else {
		rest = strings.TrimSuffix(rest, "\n")
	}
	f.Body = rest
	return f
}

func cutLine(s string) (line string, rest string) {
	line, rest, found := strings.Cut(s, "\n")
	if !found {
		rest = ""
	}
	return strings.TrimSuffix(line, "\r"), rest
}
