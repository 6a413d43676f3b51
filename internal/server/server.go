// Package server 接受TCP连接并按所选策略把帧交给协议引擎
package server

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/connection"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/protocol"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/stomp"
	"golang.org/x/sync/errgroup"
)

var errServerStopped = errors.New("server stopped")

type Options struct {
	MaxConnections int
	MaxFrameSize   int
	OutboxSize     int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxConnections <= 0 {
		o.MaxConnections = 10000
	}
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = stomp.DefaultMaxFrameSize
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = connection.DefaultOutboxSize
	}
	return o
}

type Server struct {
	opts        Options
	strategy    Strategy
	registry    *connection.Registry
	credentials protocol.Credentials

	sem      chan struct{}
	nextID   atomic.Int64
	conns    sync.Map // connID -> net.Conn
	handlers sync.WaitGroup
	addr     atomic.Value
	ready    chan struct{}
}

func New(strategy Strategy, registry *connection.Registry, credentials protocol.Credentials, opts Options) *Server {
	opts = opts.withDefaults()
	return &Server{
		opts:        opts,
		strategy:    strategy,
		registry:    registry,
		credentials: credentials,
		sem:         make(chan struct{}, opts.MaxConnections),
		ready:       make(chan struct{}),
	}
}

// ListenAndServe 监听端口并阻塞到 ctx 结束
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve 在给定的监听器上接受连接。ctx 结束后关闭监听器与所有连接，
// 等待所有连接处理完毕后返回
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.addr.Store(ln.Addr())
	close(s.ready)
	logger.InfoF("STOMP Server (%s) Listen On %s", s.strategy.Name(), ln.Addr().String())

	s.strategy.Start()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		if err := ln.Close(); err != nil && !connection.IsNetClosedError(err) {
			logger.ErrorF("Server close error: %v", err)
		}
		s.closeConnections()
		return nil
	})
	g.Go(func() error {
		return s.acceptLoop(gctx, ln)
	})

	err := g.Wait()
	s.handlers.Wait()
	s.strategy.Stop()
	logger.Info("STOMP Server stopped")
	if errors.Is(err, errServerStopped) {
		return nil
	}
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return errServerStopped
		}

		conn, err := ln.Accept()
		if err != nil {
			<-s.sem
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return errServerStopped
			}
			logger.ErrorF("Accept connection error: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		logger.DebugF("Accepted new connection from %s", conn.RemoteAddr().String())
		s.handlers.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer func() {
		<-s.sem
		s.handlers.Done()
	}()

	connID := s.nextID.Add(1)
	s.conns.Store(connID, conn)
	defer s.conns.Delete(connID)
	if ctx.Err() != nil {
		_ = conn.Close()
	}

	handler := s.newConnectionHandler(connID, conn)
	s.strategy.Serve(handler)
	handler.wait()
}

func (s *Server) closeConnections() {
	s.conns.Range(func(key, value any) bool {
		if err := value.(net.Conn).Close(); err != nil && !connection.IsNetClosedError(err) {
			logger.WarnF("[%d] Error occured while closing connection, details: %v", key.(int64), err)
		}
		return true
	})
}

// Addr 返回监听地址，Serve 调用前阻塞
func (s *Server) Addr() net.Addr {
	<-s.ready
	return s.addr.Load().(net.Addr)
}

func (s *Server) Connections() int {
	return s.registry.Len()
}
