package domain

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

//go:generate go tool mockgen -destination=./mocks/subscriber_mock.go -package=mocks . Subscriber

var (
	ErrStaleSnapshot     = errors.New("hub: snapshot is older than the last delivered one")
	ErrAlreadyRegistered = errors.New("hub: subscriber already registered")
)

// Subscriber はブロードキャストの配信先です。Send はブロックしてはいけません。
type Subscriber interface {
	ID() SessionID
	Send(data []byte) error
	Close(status CloseStatus)
}

type member struct {
	sub     Subscriber
	lastSeq uint64
}

// Hub は接続中のセッション集合を保持し、同じペイロードを全員へ配信します。
// 配信の失敗は該当セッションのみを集合から外し、他のセッションへの配信は続けます。
type Hub struct {
	mu      sync.Mutex
	members map[SessionID]*member
	order   []SessionID

	dropLog rate.Sometimes
}

func NewHub() *Hub {
	return &Hub{
		members: make(map[SessionID]*member),
		dropLog: rate.Sometimes{Interval: 5 * time.Second},
	}
}

// Register はセッションを登録します。initial が空でなければ登録と同時に送信され、
// 以後は seq より新しいスナップショットだけが届きます。
func (h *Hub) Register(ctx context.Context, sub Subscriber, seq uint64, initial []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := sub.ID()
	if _, exists := h.members[id]; exists {
		return ErrAlreadyRegistered
	}
	if len(initial) > 0 {
		if err := sub.Send(initial); err != nil {
			return err
		}
	}
	h.members[id] = &member{sub: sub, lastSeq: seq}
	h.order = append(h.order, id)
	slog.DebugContext(ctx, "hub: registered", "sessionID", id, "seq", seq, "members", len(h.members))
	return nil
}

// Unregister はセッションを集合から外します。存在しなければ false を返します。
func (h *Hub) Unregister(ctx context.Context, id SessionID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.removeLocked(ctx, id)
}

// Broadcast は seq のスナップショットを全セッションへ配信し、配信できた数を返します。
// 各セッションは自分が受け取った最後の seq より新しいものだけを受け取ります。
func (h *Hub) Broadcast(ctx context.Context, seq uint64, data []byte) (int, error) {
	var failed []Subscriber

	h.mu.Lock()
	delivered, stale := 0, 0
	for _, id := range h.order {
		m := h.members[id]
		if seq <= m.lastSeq {
			stale++
			continue
		}
		if err := m.sub.Send(data); err != nil {
			h.dropLog.Do(func() {
				slog.WarnContext(ctx, "hub: dropping session after failed send", "sessionID", id, "err", err)
			})
			failed = append(failed, m.sub)
			continue
		}
		m.lastSeq = seq
		delivered++
	}
	for _, sub := range failed {
		h.removeLocked(ctx, sub.ID())
	}
	h.mu.Unlock()

	// Close は接続を閉じるため、ロックの外で行います。
	for _, sub := range failed {
		sub.Close(CloseOverflow)
	}

	if delivered == 0 && stale > 0 {
		return 0, ErrStaleSnapshot
	}
	return delivered, nil
}

// Len は登録中のセッション数を返します。
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.members)
}

// CloseAll は全セッションを status で閉じて集合を空にします。
func (h *Hub) CloseAll(ctx context.Context, status CloseStatus) {
	h.mu.Lock()
	subs := make([]Subscriber, 0, len(h.members))
	for _, id := range h.order {
		subs = append(subs, h.members[id].sub)
	}
	h.members = make(map[SessionID]*member)
	h.order = nil
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Close(status)
	}
	slog.DebugContext(ctx, "hub: closed all sessions", "count", len(subs))
}

func (h *Hub) removeLocked(ctx context.Context, id SessionID) bool {
	if _, ok := h.members[id]; !ok {
		return false
	}
	delete(h.members, id)
	for i, sid := range h.order {
		if sid == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	slog.DebugContext(ctx, "hub: unregistered", "sessionID", id, "members", len(h.members))
	return true
}
