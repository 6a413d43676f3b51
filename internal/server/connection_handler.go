package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/connection"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/protocol"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/stomp"
)

// ConnectionHandler 一个已接受连接的读端、写端与协议引擎
type ConnectionHandler struct {
	connID       int64
	conn         net.Conn
	client       *connection.Client
	engine       *protocol.Engine
	reader       *stomp.FrameReader
	readTimeout  time.Duration
	maxFrameSize int
}

func (s *Server) newConnectionHandler(connID int64, conn net.Conn) *ConnectionHandler {
	client := connection.NewClient(conn, connID, s.opts.OutboxSize, s.opts.WriteTimeout)
	s.registry.AddConnection(connID, client)
	log := slog.Default().With("conn", connID, "remote", conn.RemoteAddr().String())
	return &ConnectionHandler{
		connID:       connID,
		conn:         conn,
		client:       client,
		engine:       protocol.New(connID, s.registry, s.credentials, protocol.WithLogger(log)),
		reader:       stomp.NewFrameReader(conn, s.opts.MaxFrameSize),
		readTimeout:  s.opts.ReadTimeout,
		maxFrameSize: s.opts.MaxFrameSize,
	}
}

// readFrame 读取下一个原始帧，设置了读超时则每帧重置一次期限
func (c *ConnectionHandler) readFrame() (string, error) {
	if c.readTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	return c.reader.ReadFrame()
}

// handleFrame 交给协议引擎处理，返回连接是否仍然存活
func (c *ConnectionHandler) handleFrame(raw string) bool {
	logger.DebugF("[%d] Receive frame, %d bytes", c.connID, len(raw))
	c.engine.Handle(raw)
	return !c.engine.Terminated()
}

// handleReadError 读端结束：帧过大时回复 ERROR，其余情况直接终止会话
func (c *ConnectionHandler) handleReadError(err error) {
	if errors.Is(err, stomp.ErrFrameTooLarge) {
		logger.WarnF("[%d] Frame exceeds %d bytes", c.connID, c.maxFrameSize)
		c.engine.Fail(protocol.MsgFrameTooLarge, fmt.Sprintf("Frames must not exceed %d bytes", c.maxFrameSize))
		return
	}
	if !c.engine.Terminated() {
		connection.HandleReadError(c.connID, err)
	}
	c.engine.Terminate()
}

// wait 等待写端写完并关闭底层连接
func (c *ConnectionHandler) wait() {
	<-c.client.Done()
	logger.DebugF("[%d] Connection closed", c.connID)
}
