package services

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"storefront-client/pkg/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// ErrNotConnected はリアルタイムチャネルが未接続のときに返されます。
// 呼び出し側はHTTPのチャットAPIにフォールバックします。
var ErrNotConnected = errors.New("realtime channel is not connected")

const (
	eventChat    = "chat"
	eventMessage = "message"
)

// outboundFrame は送信フレーム。chatイベントの封筒に加えて
// /ws/chat が直接読むフィールドも同梱する
type outboundFrame struct {
	Event      string             `json:"event"`
	Data       models.ChatRequest `json:"data"`
	Message    string             `json:"message"`
	SessionID  string             `json:"session_id,omitempty"`
	CustomerID string             `json:"customer_id,omitempty"`
}

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ReplyHandler は受信したエージェント応答を受け取ります。
type ReplyHandler func(resp *models.ChatResponse)

// DropHandler は切断またはタイムアウトで応答が得られなかった送信を受け取ります。
type DropHandler func(reqs []models.ChatRequest)

const defaultReplyTimeout = 60 * time.Second

// pendingTurn 応答待ちの送信
type pendingTurn struct {
	req   models.ChatRequest
	timer *time.Timer
}

// RealtimeService はバックエンドとのWebSocketチャットチャネルです。
type RealtimeService struct {
	url        string
	maxRetries int
	interval   time.Duration
	dialer     ws.Dialer

	mu      sync.Mutex
	conn    net.Conn
	writeMu sync.Mutex

	connected atomic.Bool
	onReply   atomic.Value // ReplyHandler
	onDrop    atomic.Value // DropHandler

	replyTimeout time.Duration
	pendingMu    sync.Mutex
	pending      []*pendingTurn

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRealtimeService は新しいRealtimeServiceを生成します。
// 再接続は interval 間隔で最大 maxRetries 回まで試行します。
func NewRealtimeService(url string, maxRetries int, interval time.Duration) *RealtimeService {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &RealtimeService{
		url:        url,
		maxRetries: maxRetries,
		interval:   interval,
		dialer:     ws.Dialer{Timeout: 10 * time.Second},

		replyTimeout: defaultReplyTimeout,
	}
}

// SetReplyTimeout は1回の送信に対して応答を待つ時間を設定します。Start前に呼び出してください。
func (s *RealtimeService) SetReplyTimeout(d time.Duration) {
	if d > 0 {
		s.replyTimeout = d
	}
}

// OnDrop は応答が得られなかった送信の通知先を登録します。
func (s *RealtimeService) OnDrop(fn DropHandler) {
	s.onDrop.Store(fn)
}

// OnReply は受信ハンドラを登録します。Start前に呼び出してください。
func (s *RealtimeService) OnReply(fn ReplyHandler) {
	s.onReply.Store(fn)
}

// Connected は現在接続中かどうかを返します。
func (s *RealtimeService) Connected() bool {
	return s.connected.Load()
}

// Start はバックグラウンドで接続と受信ループを開始します。
func (s *RealtimeService) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx)
}

// Close は接続を閉じ、受信ループの終了を待ちます。
func (s *RealtimeService) Close() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	var err error
	s.mu.Lock()
	if s.conn != nil {
		err = s.conn.Close()
	}
	s.mu.Unlock()
	<-s.done
	return err
}

// Send はchatイベントを送信します。未接続なら ErrNotConnected を返します。
func (s *RealtimeService) Send(ctx context.Context, req models.ChatRequest) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil || !s.connected.Load() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(outboundFrame{
		Event:      eventChat,
		Data:       req,
		Message:    req.Message,
		SessionID:  req.SessionID,
		CustomerID: req.CustomerID,
	})
	if err != nil {
		return fmt.Errorf("チャットフレームのJSON化に失敗: %w", err)
	}

	// 応答が書き込み直後に届いても取りこぼさないよう、送信前に登録する
	turn := s.track(req)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		defer conn.SetWriteDeadline(time.Time{})
	}
	if err := wsutil.WriteClientText(conn, payload); err != nil {
		s.untrack(turn)
		return fmt.Errorf("チャットフレームの送信に失敗: %w", err)
	}
	return nil
}

// Pending は応答待ちの送信数を返します。
func (s *RealtimeService) Pending() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return len(s.pending)
}

func (s *RealtimeService) track(req models.ChatRequest) *pendingTurn {
	turn := &pendingTurn{req: req}
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	turn.timer = time.AfterFunc(s.replyTimeout, func() {
		if s.untrack(turn) {
			log.Printf("⏱️ リアルタイム応答がタイムアウトしました (%v)", s.replyTimeout)
			s.drop([]models.ChatRequest{turn.req})
		}
	})
	s.pending = append(s.pending, turn)
	return turn
}

// untrack は登録を取り消します。既に解決済みなら false。
func (s *RealtimeService) untrack(turn *pendingTurn) bool {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	for i, p := range s.pending {
		if p == turn {
			p.timer.Stop()
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return true
		}
	}
	return false
}

// resolveOldest は応答の受信で最も古い送信を解決します。
func (s *RealtimeService) resolveOldest() {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if len(s.pending) == 0 {
		return
	}
	s.pending[0].timer.Stop()
	s.pending = s.pending[1:]
}

func (s *RealtimeService) drainPending() []models.ChatRequest {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	reqs := make([]models.ChatRequest, 0, len(s.pending))
	for _, p := range s.pending {
		p.timer.Stop()
		reqs = append(reqs, p.req)
	}
	s.pending = nil
	return reqs
}

func (s *RealtimeService) drop(reqs []models.ChatRequest) {
	if len(reqs) == 0 {
		return
	}
	if fn, _ := s.onDrop.Load().(DropHandler); fn != nil {
		fn(reqs)
	}
}

func (s *RealtimeService) run(ctx context.Context) {
	defer close(s.done)
	for {
		conn, src, err := s.connect(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("⚠️ リアルタイム接続を断念しました (%d回試行): %v", s.maxRetries+1, err)
			}
			return
		}
		log.Printf("✅ リアルタイムチャネルに接続: %s", s.url)

		s.readLoop(conn, src)

		s.connected.Store(false)
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()

		if lost := s.drainPending(); len(lost) > 0 {
			log.Printf("⚠️ 応答待ちの送信 %d件 が切断で失われました", len(lost))
			s.drop(lost)
		}

		if ctx.Err() != nil {
			return
		}
		log.Printf("🔌 リアルタイムチャネルが切断されました。再接続します")
	}
}

// connect は固定間隔・回数上限付きで接続を試みます。
func (s *RealtimeService) connect(ctx context.Context) (net.Conn, io.Reader, error) {
	var conn net.Conn
	var src io.Reader

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.interval), uint64(s.maxRetries)),
		ctx,
	)
	operation := func() error {
		c, br, _, err := s.dialer.Dial(ctx, s.url)
		if err != nil {
			return err
		}
		conn = c
		src = c
		if br != nil {
			// ハンドシェイク直後に届いたフレームを先に読む
			src = io.MultiReader(br, c)
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Printf("リアルタイム接続に失敗、%v後に再試行: %v", wait, err)
	}
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.connected.Store(true)
	return conn, src, nil
}

func (s *RealtimeService) readLoop(conn net.Conn, src io.Reader) {
	rw := struct {
		io.Reader
		io.Writer
	}{bufio.NewReader(src), &lockedWriter{mu: &s.writeMu, w: conn}}

	for {
		data, err := wsutil.ReadServerText(rw)
		if err != nil {
			var closed wsutil.ClosedError
			if !errors.As(err, &closed) && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.EOF) {
				log.Printf("リアルタイム受信エラー: %v", err)
			}
			return
		}

		resp, ok := decodeInbound(data)
		if !ok {
			continue
		}
		s.resolveOldest()
		if fn, _ := s.onReply.Load().(ReplyHandler); fn != nil {
			fn(resp)
		}
	}
}

// decodeInbound は message イベントの封筒と、封筒なしのChatResponseの両方を受け付けます。
func decodeInbound(data []byte) (*models.ChatResponse, bool) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		log.Printf("リアルタイムフレームの解析に失敗: %v", err)
		return nil, false
	}

	body := data
	if frame.Event != "" {
		if frame.Event != eventMessage {
			return nil, false
		}
		body = frame.Data
	}

	var resp models.ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		log.Printf("エージェント応答の解析に失敗: %v", err)
		return nil, false
	}
	return &resp, true
}

// lockedWriter は制御フレーム(pong/close)の書き込みを送信と直列化します。
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
