package gateway

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	logger "github.com/Gopher0727/PropChat/middleware/log"
)

// Hub 广播路由: 维护房间订阅关系，由单个协程把事件推送给订阅者。
// 推送对每个会话都是非阻塞的，发送缓冲区满的会话只丢失这一条事件
type Hub struct {
	// 房间 -> 会话集合
	rooms map[Room]map[*Session]struct{}

	// 会话 -> 已订阅房间，断开时据此清理
	subs map[*Session]map[Room]struct{}

	// 互斥锁，保护两个 map 的并发读写
	mu sync.RWMutex

	// 广播请求通道
	broadcast chan *delivery

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	logger *logger.Logger
}

type delivery struct {
	room   Room
	event  Event
	except *Session
}

func NewHub(buffer int, l *logger.Logger) *Hub {
	if l == nil {
		l = logger.NewNop()
	}
	return &Hub{
		rooms:     make(map[Room]map[*Session]struct{}),
		subs:      make(map[*Session]map[Room]struct{}),
		broadcast: make(chan *delivery, buffer),
		done:      make(chan struct{}),
		logger:    l.Named("hub"),
	}
}

// Start 启动分发协程
func (h *Hub) Start() {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.run()
	}()
}

// Stop 停止分发协程，未分发的事件被丢弃。可重复调用
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
	h.wg.Wait()
}

func (h *Hub) run() {
	for {
		select {
		case d := <-h.broadcast:
			h.fanout(d)
		case <-h.done:
			return
		}
	}
}

// Publish 把事件排入分发队列后立即返回。except 不为 nil 时跳过该会话
func (h *Hub) Publish(room Room, event Event, except *Session) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.broadcast <- &delivery{room: room, event: event, except: except}:
		return true
	default:
		h.logger.Warn("broadcast queue full, dropping event",
			zap.String("room", string(room)),
			zap.String("type", event.Type),
		)
		return false
	}
}

func (h *Hub) fanout(d *delivery) {
	payload, err := json.Marshal(d.event)
	if err != nil {
		h.logger.Error("encode event failed", zap.String("type", d.event.Type), zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*Session, 0, len(h.rooms[d.room]))
	for s := range h.rooms[d.room] {
		if s != d.except {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if !s.enqueue(payload) {
			h.logger.Warn("session send buffer full, dropping event",
				zap.String("session_id", s.ID),
				zap.String("room", string(d.room)),
				zap.String("type", d.event.Type),
			)
		}
	}
}

// Subscribe 返回会话此前是否未在房间中
func (h *Hub) Subscribe(s *Session, room Room) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[room][s]; ok {
		return false
	}
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*Session]struct{})
	}
	h.rooms[room][s] = struct{}{}
	if _, ok := h.subs[s]; !ok {
		h.subs[s] = make(map[Room]struct{})
	}
	h.subs[s][room] = struct{}{}
	return true
}

// Unsubscribe 返回会话此前是否在房间中
func (h *Hub) Unsubscribe(s *Session, room Room) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.unsubscribeLocked(s, room)
}

func (h *Hub) unsubscribeLocked(s *Session, room Room) bool {
	members, ok := h.rooms[room]
	if !ok {
		return false
	}
	if _, ok := members[s]; !ok {
		return false
	}
	delete(members, s)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	if rooms, ok := h.subs[s]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(h.subs, s)
		}
	}
	return true
}

// RemoveSession 从所有房间移除会话，返回它之前所在的房间
func (h *Hub) RemoveSession(s *Session) []Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	rooms := make([]Room, 0, len(h.subs[s]))
	for room := range h.subs[s] {
		rooms = append(rooms, room)
	}
	for _, room := range rooms {
		h.unsubscribeLocked(s, room)
	}
	return rooms
}

func (h *Hub) IsSubscribed(s *Session, room Room) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][s]
	return ok
}

// RoomSize 房间内的会话数
func (h *Hub) RoomSize(room Room) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
