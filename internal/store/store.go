// Package store はクライアント側のセッション・カート状態を一元管理します。
// すべての画面はStoreのスナップショットを参照し、状態変更は必ずStoreの操作を通します。
package store

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"storefront-client/pkg/format"
	"storefront-client/pkg/models"
)

// ErrInvalidArgument 構造的に不正な引数。状態は変更されません。
var ErrInvalidArgument = errors.New("invalid argument")

// State はStoreが保持する状態のスナップショットです。
// 購読者に渡されるスナップショットは読み取り専用として扱ってください。
type State struct {
	SessionID       string              `json:"session_id"`
	CustomerID      string              `json:"customer_id"`
	Messages        []models.Message    `json:"messages"`
	IsTyping        bool                `json:"is_typing"`
	Products        []models.Product    `json:"products"`
	SelectedProduct *models.Product     `json:"selected_product,omitempty"`
	Cart            models.Cart         `json:"cart"`
	LoyaltyInfo     *models.LoyaltyInfo `json:"loyalty_info,omitempty"`
	IsChatOpen      bool                `json:"is_chat_open"`
	IsCartOpen      bool                `json:"is_cart_open"`
}

// Subscriber は状態変更のたびに同期的に呼び出されます。
// Subscriber内からStoreの変更操作を呼ぶとデッドロックします。
type Subscriber func(State)

type subscription struct {
	id int
	fn Subscriber
}

// Store はプロセス内で唯一の状態コンテナです。
type Store struct {
	mu       sync.RWMutex
	notifyMu sync.Mutex // 変更と通知をコミット順に直列化する

	state       State
	subscribers []subscription
	nextSubID   int

	newSessionID func() string
	now          func() time.Time
}

// Option Storeの生成オプション
type Option func(*Store)

// WithSessionIDGenerator はセッションID生成関数を差し替えます。
func WithSessionIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newSessionID = fn }
}

// WithClock は時刻取得関数を差し替えます。
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New は永続化された顧客IDから新しいStoreを生成します。
func New(customerID string, opts ...Option) (*Store, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer id is empty", ErrInvalidArgument)
	}
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.newSessionID == nil {
		s.newSessionID = func() string { return format.NewSessionID(s.now()) }
	}
	sessionID := s.newSessionID()
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id generator returned empty id", ErrInvalidArgument)
	}
	s.state = State{
		SessionID:  sessionID,
		CustomerID: customerID,
		Messages:   []models.Message{},
		Products:   []models.Product{},
		Cart:       models.Cart{Items: []models.CartItem{}},
	}
	return s, nil
}

// Snapshot は現在の状態のコピーを返します。
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// SessionID 現在のセッションID
func (s *Store) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.SessionID
}

// CustomerID 永続的な顧客ID
func (s *Store) CustomerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.CustomerID
}

// Subscribe は購読者を登録し、解除関数を返します。
func (s *Store) Subscribe(fn Subscriber) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers = append(s.subscribers, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.subscribers = slices.DeleteFunc(s.subscribers, func(sub subscription) bool {
				return sub.id == id
			})
		})
	}
}

// AppendMessage は会話の末尾にメッセージを追加します。
func (s *Store) AppendMessage(msg models.Message) error {
	if !msg.Role.Valid() {
		return fmt.Errorf("%w: unknown message role %q", ErrInvalidArgument, msg.Role)
	}
	if msg.Timestamp == "" {
		msg.Timestamp = s.now().UTC().Format(time.RFC3339)
	}
	msg.Products = slices.Clone(msg.Products)
	s.commit(func(st *State) {
		st.Messages = append(st.Messages, msg)
	})
	return nil
}

// SetTyping はエージェント入力中インジケータを設定します。
func (s *Store) SetTyping(flag bool) {
	s.commit(func(st *State) { st.IsTyping = flag })
}

// ReplaceProducts は商品リストを丸ごと置き換えます。
func (s *Store) ReplaceProducts(products []models.Product) {
	next := slices.Clone(products)
	if next == nil {
		next = []models.Product{}
	}
	s.commit(func(st *State) { st.Products = next })
}

// SelectProduct は詳細表示中の商品を設定します。nilで解除。
func (s *Store) SelectProduct(p *models.Product) {
	var selected *models.Product
	if p != nil {
		cp := *p
		selected = &cp
	}
	s.commit(func(st *State) { st.SelectedProduct = selected })
}

// AddToCart はカートに商品を追加します。同じProductIDがあれば数量のみ加算します。
// サイズ・色はキーに含まれません（既存の挙動を維持）。
// TODO: サイズ・色違いを別行として扱うかは商品要件が決まってから見直す。
func (s *Store) AddToCart(item models.CartItem) error {
	if err := validateCartItem(item); err != nil {
		return err
	}
	s.commit(func(st *State) {
		items := slices.Clone(st.Cart.Items)
		if i := slices.IndexFunc(items, func(c models.CartItem) bool { return c.ProductID == item.ProductID }); i >= 0 {
			items[i].Quantity += item.Quantity
		} else {
			items = append(items, item)
		}
		st.Cart = newCart(items)
	})
	return nil
}

// RemoveFromCart はProductIDの行を削除します。存在しない場合は何もしません。
func (s *Store) RemoveFromCart(productID string) {
	s.commit(func(st *State) {
		items := slices.DeleteFunc(slices.Clone(st.Cart.Items), func(c models.CartItem) bool {
			return c.ProductID == productID
		})
		st.Cart = newCart(items)
	})
}

// SetCart はバックエンドと突き合わせたカートで置き換えます。小計は再計算されます。
func (s *Store) SetCart(cart models.Cart) error {
	for _, item := range cart.Items {
		if err := validateCartItem(item); err != nil {
			return err
		}
	}
	items := slices.Clone(cart.Items)
	s.commit(func(st *State) { st.Cart = newCart(items) })
	return nil
}

// SubtractFromCart は注文済みの数量だけカートから差し引き、0以下になった行を削除します。
// 注文後に追加された商品や数量はカートに残ります。
func (s *Store) SubtractFromCart(ordered []models.CartItem) {
	s.commit(func(st *State) {
		items := slices.Clone(st.Cart.Items)
		for _, o := range ordered {
			if i := slices.IndexFunc(items, func(c models.CartItem) bool { return c.ProductID == o.ProductID }); i >= 0 {
				items[i].Quantity -= o.Quantity
			}
		}
		items = slices.DeleteFunc(items, func(c models.CartItem) bool { return c.Quantity < 1 })
		st.Cart = newCart(items)
	})
}

// ClearCart はカートを空にします。
func (s *Store) ClearCart() {
	s.commit(func(st *State) { st.Cart = newCart(nil) })
}

// SetLoyaltyInfo はロイヤルティ情報を丸ごと置き換えます。
func (s *Store) SetLoyaltyInfo(info models.LoyaltyInfo) {
	info.AvailableCoupons = slices.Clone(info.AvailableCoupons)
	s.commit(func(st *State) { st.LoyaltyInfo = &info })
}

// ToggleChatPanel チャットパネルの開閉
func (s *Store) ToggleChatPanel() {
	s.commit(func(st *State) { st.IsChatOpen = !st.IsChatOpen })
}

// ToggleCartPanel カートパネルの開閉
func (s *Store) ToggleCartPanel() {
	s.commit(func(st *State) { st.IsCartOpen = !st.IsCartOpen })
}

// ResetSession は新しいセッションを開始します。顧客IDは維持されます。
func (s *Store) ResetSession() {
	sessionID := s.newSessionID()
	s.commit(func(st *State) {
		st.SessionID = sessionID
		st.Messages = []models.Message{}
		st.Products = []models.Product{}
		st.SelectedProduct = nil
		st.Cart = newCart(nil)
	})
}

// commit は変更を適用し、ロック解放後にコミット順で購読者へ通知します。
func (s *Store) commit(mutate func(st *State)) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	mutate(&s.state)
	snap := s.snapshotLocked()
	subs := slices.Clone(s.subscribers)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(snap)
	}
}

func (s *Store) snapshotLocked() State {
	snap := s.state
	snap.Messages = slices.Clone(s.state.Messages)
	snap.Products = slices.Clone(s.state.Products)
	snap.Cart = models.Cart{
		Items:    slices.Clone(s.state.Cart.Items),
		Subtotal: s.state.Cart.Subtotal,
	}
	if s.state.SelectedProduct != nil {
		p := *s.state.SelectedProduct
		snap.SelectedProduct = &p
	}
	if s.state.LoyaltyInfo != nil {
		info := *s.state.LoyaltyInfo
		info.AvailableCoupons = slices.Clone(info.AvailableCoupons)
		snap.LoyaltyInfo = &info
	}
	return snap
}

func validateCartItem(item models.CartItem) error {
	switch {
	case item.ProductID == "":
		return fmt.Errorf("%w: cart item has empty product id", ErrInvalidArgument)
	case item.Quantity < 1:
		return fmt.Errorf("%w: quantity must be >= 1, got %d", ErrInvalidArgument, item.Quantity)
	case item.Price < 0:
		return fmt.Errorf("%w: price must be >= 0, got %v", ErrInvalidArgument, item.Price)
	}
	return nil
}

// newCart は小計をItemsから導出したCartを作ります。小計を直接書き込む経路はありません。
func newCart(items []models.CartItem) models.Cart {
	if items == nil {
		items = []models.CartItem{}
	}
	var subtotal float64
	for _, item := range items {
		subtotal += item.LineTotal()
	}
	return models.Cart{Items: items, Subtotal: subtotal}
}
