// Package protocol 实现了单个连接上的STOMP协议状态机
package protocol

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/database"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/stomp"
)

const SupportedVersion = "1.2"

// 错误帧的 message 头
const (
	MsgInternalFailure      = "Could not process request"
	MsgMissingHeader        = "Missing mandatory header"
	MsgUnknownCommand       = "Unknown STOMP command provided"
	MsgIncorrectVersion     = "Incorrect STOMP version"
	MsgWrongPassword        = "Wrong password"
	MsgInvalidLogin         = "Invalid login"
	MsgUserLoggedIn         = "User already logged in"
	MsgClientConnected      = "Client already connected"
	MsgNotSubscribed        = "Not subscribed to topic"
	MsgEmptyMessage         = "Empty message"
	MsgFrameTooLarge        = "Frame too large"
	MsgUnexpectedLoginState = "Unexpected login outcome"
)

// Registry 引擎使用的注册表操作
type Registry interface {
	Send(id int64, frame *stomp.Frame) bool
	Publish(channel string, frame *stomp.Frame) int
	Subscribe(channel string, id int64, subscriptionID string) bool
	Unsubscribe(subscriptionID string, id int64) bool
	IsSubscribed(id int64, channel string) bool
	Disconnect(id int64) bool
}

// Credentials 凭据存储，Logout 对每个连接只会调用一次
type Credentials interface {
	Login(connID int64, username, password string) (database.LoginOutcome, error)
	Logout(connID int64)
}

type Option func(*Engine)

func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// Engine 每个连接一个实例，同一时刻只能被一个 goroutine 调用 Handle
type Engine struct {
	id          int64
	registry    Registry
	credentials Credentials
	log         *slog.Logger

	username   string
	sequence   uint64
	terminated atomic.Bool
	terminate  sync.Once
}

func New(connID int64, registry Registry, credentials Credentials, opts ...Option) *Engine {
	e := &Engine{
		id:          connID,
		registry:    registry,
		credentials: credentials,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = slog.Default().With("conn", connID)
	}
	return e
}

func (e *Engine) ID() int64 {
	return e.id
}

func (e *Engine) Username() string {
	return e.username
}

func (e *Engine) Terminated() bool {
	return e.terminated.Load()
}

// Handle 处理一个原始帧。任何失败都会转换为 ERROR 帧并终止连接，不会向调用方传播
func (e *Engine) Handle(raw string) {
	if e.terminated.Load() {
		return
	}
	var frame *stomp.Frame
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Panic while handling frame", "panic", r)
			e.reject(frame, MsgInternalFailure, "The server failed to process the frame")
		}
	}()

	frame = stomp.Parse(raw)
	if err := e.dispatch(frame); err != nil {
		e.log.Error("Failed to handle frame", "command", frame.Command, "error", err)
		e.reject(frame, MsgInternalFailure, "The server failed to process the frame")
	}
}

func (e *Engine) dispatch(frame *stomp.Frame) error {
	command := stomp.Classify(frame.Command)
	e.log.Debug("Handling frame", "command", frame.Command)

	if header, missing := command.MissingHeader(frame); missing {
		e.reject(frame, MsgMissingHeader, fmt.Sprintf("Did not contain a %s header, which is required for %s", header, command))
		return nil
	}

	switch command {
	case stomp.CONNECT:
		return e.handleConnect(frame)
	case stomp.SEND:
		e.handleSend(frame)
	case stomp.SUBSCRIBE:
		e.registry.Subscribe(frame.Value(stomp.HeaderDestination), e.id, frame.Value(stomp.HeaderID))
		e.receipt(frame)
	case stomp.UNSUBSCRIBE:
		e.registry.Unsubscribe(frame.Value(stomp.HeaderID), e.id)
		e.receipt(frame)
	case stomp.DISCONNECT:
		e.receipt(frame)
		e.Terminate()
	default:
		e.reject(frame, MsgUnknownCommand,
			fmt.Sprintf("Unknown command %q, supported commands are: %s", frame.Command, stomp.SupportedCommands()))
	}
	return nil
}

func (e *Engine) handleConnect(frame *stomp.Frame) error {
	if version := strings.TrimSpace(frame.Value(stomp.HeaderAcceptVersion)); version != SupportedVersion {
		e.reject(frame, MsgIncorrectVersion, "Supported protocol versions are "+SupportedVersion)
		return nil
	}

	login := frame.Value(stomp.HeaderLogin)
	outcome, err := e.credentials.Login(e.id, login, frame.Value(stomp.HeaderPasscode))
	if err != nil {
		return fmt.Errorf("login %q: %w", login, err)
	}

	switch outcome {
	case database.CreatedNewUser, database.LoggedIn:
		e.username = login
		e.log.Info("Client connected", "username", login, "outcome", outcome)
		e.reply(frame, stomp.NewFrame(stomp.CONNECTED, "", stomp.HeaderVersion, SupportedVersion))
	case database.WrongPassword:
		e.reject(frame, MsgWrongPassword, "Password does not match the stored credentials")
	case database.InvalidUsername:
		e.reject(frame, MsgInvalidLogin, "The login header must not be empty")
	case database.AlreadyLoggedIn:
		e.reject(frame, MsgUserLoggedIn, fmt.Sprintf("User %s is active on another connection", login))
	case database.ClientAlreadyConnected:
		e.reject(frame, MsgClientConnected, "This connection is already bound to a user")
	default:
		return errors.New(MsgUnexpectedLoginState + ": " + outcome.String())
	}
	return nil
}

func (e *Engine) handleSend(frame *stomp.Frame) {
	destination := frame.Value(stomp.HeaderDestination)
	if !e.registry.IsSubscribed(e.id, destination) {
		e.reject(frame, MsgNotSubscribed, fmt.Sprintf("Subscribe to %s before sending to it", destination))
		return
	}
	if frame.Body == "" {
		e.reject(frame, MsgEmptyMessage, "SEND frames must carry a body")
		return
	}

	e.sequence++
	message := stomp.NewFrame(stomp.MESSAGE, frame.Body,
		stomp.HeaderDestination, destination,
		stomp.HeaderMessageID, strconv.FormatUint(e.sequence, 10),
	)
	if receipt, ok := receiptOf(frame); ok {
		message = message.With(stomp.HeaderReceiptID, receipt)
	}
	delivered := e.registry.Publish(destination, message)
	e.log.Debug("Message published", "destination", destination, "message-id", e.sequence, "delivered", delivered)
	e.receipt(frame)
}

// reply 发送对某个客户端帧的回复，请求带有 receipt 时回显为 receipt-id
func (e *Engine) reply(request, response *stomp.Frame) {
	if request != nil {
		if receipt, ok := receiptOf(request); ok {
			response = response.With(stomp.HeaderReceiptID, receipt)
		}
	}
	if !e.registry.Send(e.id, response) {
		e.log.Debug("Reply dropped", "command", response.Command)
	}
}

// receiptOf 只要出现 receipt 头就需要回执，没有冒号的头按空值回显
func receiptOf(request *stomp.Frame) (string, bool) {
	if !request.Has(stomp.HeaderReceipt) {
		return "", false
	}
	return request.Value(stomp.HeaderReceipt), true
}

// receipt 仅在请求带有 receipt 头时发送 RECEIPT
func (e *Engine) receipt(request *stomp.Frame) {
	if receipt, ok := receiptOf(request); ok {
		e.registry.Send(e.id, stomp.NewFrame(stomp.RECEIPT, "", stomp.HeaderReceiptID, receipt))
	}
}

func (e *Engine) reject(request *stomp.Frame, message, detail string) {
	e.log.Warn("Rejecting frame", "message", message, "detail", detail)
	e.reply(request, stomp.NewFrame(stomp.ERROR, detail, stomp.HeaderMessage, message))
	e.Terminate()
}

// Fail 由传输层报告协议违规（例如帧过大），同样发送 ERROR 并终止
func (e *Engine) Fail(message, detail string) {
	if e.terminated.Load() {
		return
	}
	e.reject(nil, message, detail)
}

// Terminate 断开注册表中的连接并登出，可重复调用
func (e *Engine) Terminate() {
	e.terminate.Do(func() {
		e.terminated.Store(true)
		e.registry.Disconnect(e.id)
		e.credentials.Logout(e.id)
		e.log.Debug("Connection terminated", "username", e.username)
	})
}
