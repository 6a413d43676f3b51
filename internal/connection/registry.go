// Package connection 实现了连接句柄与频道订阅的注册表，是连接之间唯一共享的可变状态
package connection

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/stomp"
)

const shardCount = 32

// Handle 可发送、可关闭的连接句柄
type Handle interface {
	Send(frame *stomp.Frame) error
	Close() error
}

// subscriber 频道内的一个订阅者，直接持有句柄，保证发布时不会看到无句柄的连接
type subscriber struct {
	subscriptionID string
	handle         Handle
}

// member 单个连接的订阅簿记
type member struct {
	mu        sync.Mutex
	handle    Handle
	bySub     map[string]string // 订阅ID -> 频道
	byChannel map[string]string // 频道 -> 订阅ID
	gone      bool
}

type connShard struct {
	mu      sync.RWMutex
	members map[int64]*member
}

type channelShard struct {
	mu       sync.RWMutex
	channels map[string]map[int64]subscriber
}

// Registry 连接注册表。锁按分片划分，不同频道之间互不阻塞。
// 锁顺序：member.mu -> channelShard.mu
type Registry struct {
	conns    [shardCount]connShard
	channels [shardCount]channelShard
}

// NewRegistry 创建空的注册表
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.conns {
		r.conns[i].members = make(map[int64]*member)
	}
	for i := range r.channels {
		r.channels[i].channels = make(map[string]map[int64]subscriber)
	}
	return r
}

func (r *Registry) connShardFor(id int64) *connShard {
	return &r.conns[uint64(id)%shardCount]
}

func (r *Registry) channelShardFor(channel string) *channelShard {
	return &r.channels[xxhash.Sum64String(channel)%shardCount]
}

func (r *Registry) member(id int64) *member {
	shard := r.connShardFor(id)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	return shard.members[id]
}

// AddConnection 注册连接句柄并初始化空的订阅簿记
func (r *Registry) AddConnection(id int64, handle Handle) {
	shard := r.connShardFor(id)
	shard.mu.Lock()
	shard.members[id] = &member{
		handle:    handle,
		bySub:     make(map[string]string),
		byChannel: make(map[string]string),
	}
	shard.mu.Unlock()
	logger.DebugF("[%d] Connection registered", id)
}

// Send 向单个连接发送帧，连接未知、已断开或发送失败时返回 false
func (r *Registry) Send(id int64, frame *stomp.Frame) bool {
	m := r.member(id)
	if m == nil {
		return false
	}
	if err := m.handle.Send(frame); err != nil {
		logger.DebugF("[%d] Fail to deliver %s frame, details: %v", id, frame.Command, err)
		return false
	}
	return true
}

// Publish 向频道的所有订阅者扇出帧，每个副本带有接收者自己的 subscription 头部。
// 扇出期间持有频道分片读锁，断开操作要么看到完整的扇出前集合，要么看到扇出后集合
func (r *Registry) Publish(channel string, frame *stomp.Frame) int {
	shard := r.channelShardFor(channel)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	delivered := 0
	for id, sub := range shard.channels[channel] {
		if err := sub.handle.Send(frame.With(stomp.HeaderSubscription, sub.subscriptionID)); err != nil {
			logger.DebugF("[%d] Fail to deliver message on %s, details: %v", id, channel, err)
			continue
		}
		delivered++
	}
	return delivered
}

// Subscribe 将连接以 subscriptionID 订阅到频道。
// 同一连接对同一频道的重复订阅会替换旧的订阅ID；同一订阅ID重用于其它频道时旧的绑定被移除
func (r *Registry) Subscribe(channel string, id int64, subscriptionID string) bool {
	m := r.member(id)
	if m == nil {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gone {
		return false
	}

	if oldSub, ok := m.byChannel[channel]; ok {
		delete(m.bySub, oldSub)
	}
	if oldChannel, ok := m.bySub[subscriptionID]; ok && oldChannel != channel {
		delete(m.byChannel, oldChannel)
		r.removeFromChannel(oldChannel, id)
	}
	m.bySub[subscriptionID] = channel
	m.byChannel[channel] = subscriptionID

	shard := r.channelShardFor(channel)
	shard.mu.Lock()
	subscribers, ok := shard.channels[channel]
	if !ok {
		subscribers = make(map[int64]subscriber)
		shard.channels[channel] = subscribers
	}
	subscribers[id] = subscriber{subscriptionID: subscriptionID, handle: m.handle}
	shard.mu.Unlock()

	logger.DebugF("[%d] Subscribed to %s with id %s", id, channel, subscriptionID)
	return true
}

// Unsubscribe 移除该连接在 subscriptionID 下的订阅，不存在时什么都不做
func (r *Registry) Unsubscribe(subscriptionID string, id int64) bool {
	m := r.member(id)
	if m == nil {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	channel, ok := m.bySub[subscriptionID]
	if !ok {
		return false
	}
	delete(m.bySub, subscriptionID)
	delete(m.byChannel, channel)
	r.removeFromChannel(channel, id)

	logger.DebugF("[%d] Unsubscribed from %s (id %s)", id, channel, subscriptionID)
	return true
}

// IsSubscribed 判断连接是否订阅了频道
func (r *Registry) IsSubscribed(id int64, channel string) bool {
	m := r.member(id)
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byChannel[channel]
	return ok
}

// Disconnect 移除连接的所有订阅与句柄并关闭句柄。连接未知时返回 false
func (r *Registry) Disconnect(id int64) bool {
	m := r.member(id)
	if m == nil {
		return false
	}

	m.mu.Lock()
	if m.gone {
		m.mu.Unlock()
		return false
	}
	m.gone = true
	for channel := range m.byChannel {
		r.removeFromChannel(channel, id)
	}
	clear(m.byChannel)
	clear(m.bySub)
	m.mu.Unlock()

	shard := r.connShardFor(id)
	shard.mu.Lock()
	if shard.members[id] == m {
		delete(shard.members, id)
	}
	shard.mu.Unlock()

	if err := m.handle.Close(); err != nil && !IsNetClosedError(err) {
		logger.WarnF("[%d] Error occured while closing connection, details: %v", id, err)
	}
	logger.DebugF("[%d] Connection unregistered", id)
	return true
}

// Len 返回已注册的连接数
func (r *Registry) Len() int {
	total := 0
	for i := range r.conns {
		r.conns[i].mu.RLock()
		total += len(r.conns[i].members)
		r.conns[i].mu.RUnlock()
	}
	return total
}

// Subscribers 返回频道当前的订阅者数量
func (r *Registry) Subscribers(channel string) int {
	shard := r.channelShardFor(channel)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	return len(shard.channels[channel])
}

func (r *Registry) removeFromChannel(channel string, id int64) {
	shard := r.channelShardFor(channel)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	subscribers, ok := shard.channels[channel]
	if !ok {
		return
	}
	delete(subscribers, id)
	if len(subscribers) == 0 {
		delete(shard.channels, channel)
	}
}
