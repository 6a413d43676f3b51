package stomp

import "strings"

// Command 客户端命令类型
type Command byte

const (
	UNKNOWN Command = iota
	CONNECT
	SEND
	SUBSCRIBE
	UNSUBSCRIBE
	DISCONNECT
)

// commandNames 命令到其线上名称的映射
var commandNames = map[Command]string{
	UNKNOWN:     "UNKNOWN",
	CONNECT:     "CONNECT",
	SEND:        "SEND",
	SUBSCRIBE:   "SUBSCRIBE",
	UNSUBSCRIBE: "UNSUBSCRIBE",
	DISCONNECT:  "DISCONNECT",
}

// requiredHeaders 每种命令必须携带的头部，按检查顺序排列
var requiredHeaders = map[Command][]string{
	UNKNOWN:     {},
	CONNECT:     {HeaderAcceptVersion, HeaderHost, HeaderLogin, HeaderPasscode},
	SEND:        {HeaderDestination},
	SUBSCRIBE:   {HeaderDestination, HeaderID},
	UNSUBSCRIBE: {HeaderID},
	DISCONNECT:  {HeaderReceipt},
}

var supported = []Command{CONNECT, SEND, SUBSCRIBE, UNSUBSCRIBE, DISCONNECT}

// String 返回命令的字符串表示
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return commandNames[UNKNOWN]
}

// Classify 将命令字符串映射为 Command，未知命令返回 UNKNOWN
func Classify(token string) Command {
	for _, c := range supported {
		if commandNames[c] == token {
			return c
		}
	}
	return UNKNOWN
}

// RequiredHeaders 返回必需头部列表的副本
func (c Command) RequiredHeaders() []string {
	headers := requiredHeaders[c]
	result := make([]string, len(headers))
	copy(result, headers)
	return result
}

// MissingHeader 返回第一个缺失的必需头部
func (c Command) MissingHeader(f *Frame) (string, bool) {
	for _, header := range requiredHeaders[c] {
		if !f.Has(header) {
			return header, true
		}
	}
	return "", false
}

// Validate 当且仅当所有必需头部都存在时返回 true
func (c Command) Validate(f *Frame) bool {
	_, missing := c.MissingHeader(f)
	return !missing
}

// SupportedCommands 返回服务端接受的客户端命令，用于错误提示
func SupportedCommands() string {
	names := make([]string, len(supported))
	for i, c := range supported {
		names[i] = c.String()
	}
	return strings.Join(names, ", ")
}
