package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/zoeyai/autotap/internal/logger"
	"github.com/zoeyai/autotap/pkg/loop"
)

// 事件类型
const (
	EventTypeStatus = "status"
	EventTypeTick   = "tick"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
	// sendBuffer 每个连接缓存的事件数，写不过来时丢弃
	sendBuffer = 64
)

// Event WebSocket 推送的事件
type Event struct {
	Type string `json:"type"`
	// Message 状态的文字描述
	Message string       `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`
	Status  *loop.Status `json:"status,omitempty"`
	Report  *loop.Report `json:"report,omitempty"`
}

func statusEvent(s loop.Status) Event {
	ev := Event{Type: EventTypeStatus, Message: s.String(), Status: &s}
	if s.Err != nil {
		ev.Error = s.Err.Error()
	}
	return ev
}

func tickEvent(r loop.Report) Event {
	ev := Event{Type: EventTypeTick, Message: r.Decision.String(), Report: &r}
	if r.Err != nil {
		ev.Error = r.Err.Error()
	}
	return ev
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// hub 管理事件连接
type hub struct {
	svc Service

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

func newHub(svc Service) *hub {
	return &hub{svc: svc, conns: make(map[*websocket.Conn]struct{})}
}

func (h *hub) add(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[conn] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	h.wg.Done()
}

// close 关闭所有连接并等待处理结束
func (h *hub) close() {
	h.mu.Lock()
	h.closed = true
	for conn := range h.conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}
	h.mu.Unlock()
	h.wg.Wait()
}

// serve GET /api/v1/events
//
// 连接建立后先推送一次当前状态，之后推送状态变化和每次检测的结果，
// 加上 ?ticks=false 只推送状态变化。
func (h *hub) serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 升级失败，不要再写 JSON
		return
	}
	if !h.add(conn) {
		_ = conn.Close()
		return
	}
	defer h.remove(conn)
	defer conn.Close()

	withTicks := c.Query("ticks") != "false"
	send := make(chan Event, sendBuffer)
	push := func(ev Event) {
		select {
		case send <- ev:
		default:
			logger.Debug("事件连接 %s 写入过慢，丢弃事件", conn.RemoteAddr())
		}
	}
	listener := loop.ListenerFuncs{OnStatus: func(s loop.Status) { push(statusEvent(s)) }}
	if withTicks {
		listener.OnTick = func(r loop.Report) { push(tickEvent(r)) }
	}

	view := h.svc.Status()
	push(Event{Type: EventTypeStatus, Message: view.Text})
	cancel := h.svc.Subscribe(listener)
	defer cancel()

	// 读循环只用于发现连接关闭
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			return
		case ev := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

// buildWsURL 根据控制接口地址构建事件 URL
//
//	127.0.0.1:8765        → ws://127.0.0.1:8765/api/v1/events
//	http://host:8765      → ws://host:8765/api/v1/events
//	https://example.com   → wss://example.com/api/v1/events
func buildWsURL(base string) (string, error) {
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("无效的地址 %q: %w", base, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("不支持的协议 %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/v1/events"
	return u.String(), nil
}

// Watch 连接事件流并对每个事件调用 fn，直到 ctx 结束、连接断开或 fn 返回 false
func Watch(ctx context.Context, base string, withTicks bool, fn func(Event) bool) error {
	wsURL, err := buildWsURL(base)
	if err != nil {
		return err
	}
	if !withTicks {
		wsURL += "?ticks=false"
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("连接事件流失败: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("读取事件失败: %w", err)
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			logger.Warn("解析事件失败: %v", err)
			continue
		}
		if !fn(ev) {
			return nil
		}
	}
}
