package connection

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/stomp"
)

var (
	ErrConnectionClosed = errors.New("connection is closed")
	ErrOutboxFull       = errors.New("connection outbox is full")
)

const DefaultOutboxSize = 256

// Client 基于 net.Conn 的连接句柄。发送只入队不阻塞，由独立的写协程按序写出；
// 关闭后写协程先写完已入队的帧再关闭底层连接
type Client struct {
	conn         net.Conn
	connID       int64
	writeTimeout time.Duration

	mu     sync.RWMutex
	outbox chan []byte
	closed bool
	done   chan struct{}
}

// NewClient 创建连接句柄并启动写协程
func NewClient(conn net.Conn, connID int64, outboxSize int, writeTimeout time.Duration) *Client {
	if outboxSize <= 0 {
		outboxSize = DefaultOutboxSize
	}
	c := &Client{
		conn:         conn,
		connID:       connID,
		writeTimeout: writeTimeout,
		outbox:       make(chan []byte, outboxSize),
		done:         make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// Send 将帧放入发送队列
func (c *Client) Send(frame *stomp.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.outbox <- frame.Bytes():
		return nil
	default:
		return ErrOutboxFull
	}
}

// Close 停止接收新帧，底层连接在队列写完后关闭。可重复调用
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.outbox)
	return nil
}

// Done 在底层连接关闭后关闭
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) writeLoop() {
	defer close(c.done)
	defer func() {
		if err := c.conn.Close(); err != nil && !IsNetClosedError(err) {
			logger.WarnF("[%d] Error occured while closing connection, details: %v", c.connID, err)
		}
	}()

	failed := false
	for data := range c.outbox {
		if failed {
			continue
		}
		if c.writeTimeout > 0 {
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		}
		if err := Write(c.conn, data, c.connID); err != nil {
			// 写失败后丢弃剩余帧，读协程会随之收到错误并终止会话
			failed = true
			_ = c.conn.Close()
		}
	}
}

// Write 将数据完整写入连接
func Write(conn net.Conn, data []byte, connID int64) error {
	total := 0
	for total < len(data) {
		n, err := conn.Write(data[total:])
		if err != nil {
			if !IsNetClosedError(err) {
				logger.ErrorF("[%d] Fail to send data, details: %v", connID, err)
			}
			return err
		}
		total += n
	}
	logger.DebugF("[%d] Send %d bytes to client", connID, total)
	return nil
}
