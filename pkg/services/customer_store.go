package services

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"storefront-client/pkg/format"

	"gopkg.in/yaml.v3"
)

// localState はクライアントローカルに永続化する唯一の状態です。
type localState struct {
	CustomerID string `yaml:"customer_id"`
}

// CustomerStore は顧客IDをローカルファイルに保存します。
// 一度生成したIDはプロセスを再起動しても再利用されます。
type CustomerStore struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// NewCustomerStore は新しいCustomerStoreを生成します。
func NewCustomerStore(path string) *CustomerStore {
	return &CustomerStore{path: path, now: time.Now}
}

// Path 保存先ファイル
func (s *CustomerStore) Path() string {
	return s.path
}

// LoadOrCreateCustomerID は保存済みの顧客IDを返し、無ければ生成して保存します。
func (s *CustomerStore) LoadOrCreateCustomerID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		var st localState
		if err := yaml.Unmarshal(data, &st); err != nil {
			return "", fmt.Errorf("ローカル状態ファイルの解析に失敗 (%s): %w", s.path, err)
		}
		if st.CustomerID != "" {
			return st.CustomerID, nil
		}
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("ローカル状態ファイルの読み込みに失敗: %w", err)
	}

	id := format.NewCustomerID(s.now())
	if err := s.write(localState{CustomerID: id}); err != nil {
		return "", err
	}
	return id, nil
}

func (s *CustomerStore) write(st localState) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("ローカル状態のYAML化に失敗: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("ローカル状態ディレクトリの作成に失敗: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*.yaml")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("ローカル状態の書き込みに失敗: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("ローカル状態の書き込みに失敗: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("ローカル状態の保存に失敗: %w", err)
	}
	return nil
}
