package server

import (
	"sync"
	"sync/atomic"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
)

const DefaultMailboxSize = 64

// inbound 读端投递给工作协程的事件，err 不为空表示读端已结束
type inbound struct {
	raw string
	err error
}

// mailbox 单个连接的待处理帧。scheduled 保证同一时刻最多一个工作协程持有该连接
type mailbox struct {
	handler   *ConnectionHandler
	events    chan inbound
	scheduled atomic.Bool
	finished  chan struct{}
}

// reactor 读端只负责切帧，帧的处理由固定数量的工作协程完成
type reactor struct {
	workers     int
	mailboxSize int

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*mailbox
	stopped bool
	wg      sync.WaitGroup
}

func newReactor(workers, mailboxSize int) *reactor {
	if mailboxSize <= 0 {
		mailboxSize = DefaultMailboxSize
	}
	r := &reactor{workers: workers, mailboxSize: mailboxSize}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *reactor) Name() string {
	return ModeReactor
}

func (r *reactor) Start() {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.work(i)
	}
	logger.InfoF("Reactor started with %d workers", r.workers)
}

// Serve 读取连接上的帧并投递到邮箱，读端结束后等待工作协程处理完最后一个事件
func (r *reactor) Serve(handler *ConnectionHandler) {
	box := &mailbox{
		handler:  handler,
		events:   make(chan inbound, r.mailboxSize),
		finished: make(chan struct{}),
	}
	for {
		raw, err := handler.readFrame()
		if err != nil {
			r.post(box, inbound{err: err})
			break
		}
		r.post(box, inbound{raw: raw})
	}
	<-box.finished
}

// Stop 在所有连接结束后调用，等待工作协程退出
func (r *reactor) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.cond.Broadcast()
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *reactor) post(box *mailbox, event inbound) {
	box.events <- event
	r.schedule(box)
}

func (r *reactor) schedule(box *mailbox) {
	if !box.scheduled.CompareAndSwap(false, true) {
		return
	}
	r.mu.Lock()
	r.queue = append(r.queue, box)
	r.cond.Signal()
	r.mu.Unlock()
}

func (r *reactor) next() *mailbox {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.queue) == 0 {
		if r.stopped {
			return nil
		}
		r.cond.Wait()
	}
	box := r.queue[0]
	r.queue[0] = nil
	r.queue = r.queue[1:]
	return box
}

func (r *reactor) requeue(box *mailbox) {
	r.mu.Lock()
	r.queue = append(r.queue, box)
	r.cond.Signal()
	r.mu.Unlock()
}

func (r *reactor) work(index int) {
	defer r.wg.Done()
	for {
		box := r.next()
		if box == nil {
			logger.DebugF("Reactor worker #%d stopped", index)
			return
		}

		// 每次只处理一个事件，让其它连接有机会被调度
		select {
		case event := <-box.events:
			r.process(box, event)
		default:
		}

		if len(box.events) > 0 {
			r.requeue(box)
			continue
		}
		box.scheduled.Store(false)
		// 读端可能在 Store 之前投递了事件却因 CAS 失败没有入队
		if len(box.events) > 0 && box.scheduled.CompareAndSwap(false, true) {
			r.requeue(box)
		}
	}
}

func (r *reactor) process(box *mailbox, event inbound) {
	if event.err != nil {
		box.handler.handleReadError(event.err)
		close(box.finished)
		return
	}
	box.handler.handleFrame(event.raw)
}
