package server

import (
	"fmt"
	"runtime"
)

const (
	ModeThreadPerClient = "tpc"
	ModeReactor         = "reactor"
)

// Strategy 决定连接上的帧由谁、以何种方式交给协议引擎。
// 无论哪种策略，同一连接的帧都按到达顺序串行处理
type Strategy interface {
	Name() string
	Start()
	// Serve 在连接自己的 goroutine 中调用，连接结束后返回
	Serve(handler *ConnectionHandler)
	Stop()
}

// NewStrategy 根据模式名创建调度策略
func NewStrategy(mode string, workers, mailboxSize int) (Strategy, error) {
	switch mode {
	case ModeThreadPerClient:
		return threadPerClient{}, nil
	case ModeReactor:
		if workers <= 0 {
			workers = runtime.NumCPU()
		}
		return newReactor(workers, mailboxSize), nil
	default:
		return nil, fmt.Errorf("unknown server mode %q, expected %s or %s", mode, ModeReactor, ModeThreadPerClient)
	}
}

// threadPerClient 每个连接一个 goroutine，读取与处理都在其中完成
type threadPerClient struct{}

func (threadPerClient) Name() string {
	return ModeThreadPerClient
}

func (threadPerClient) Start() {}

func (threadPerClient) Serve(handler *ConnectionHandler) {
	for {
		raw, err := handler.readFrame()
		if err != nil {
			handler.handleReadError(err)
			return
		}
		if !handler.handleFrame(raw) {
			return
		}
	}
}

func (threadPerClient) Stop() {}
