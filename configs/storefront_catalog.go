package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// StorefrontCatalog はstorefront.yamlの構造を定義
// 画面に出すカテゴリ・クイックフィルタ・店舗・受け取り方法・決済方法の一覧です。
type StorefrontCatalog struct {
	Categories []struct {
		Name  string `yaml:"name" json:"name"`
		Icon  string `yaml:"icon" json:"icon"`
		Query string `yaml:"query" json:"query"`
	} `yaml:"categories" json:"categories"`

	QuickFilters []struct {
		Label string `yaml:"label" json:"label"`
		Query string `yaml:"query" json:"query"`
	} `yaml:"quick_filters" json:"quick_filters"`

	StoreLocations []struct {
		Code string `yaml:"code" json:"code"`
		Name string `yaml:"name" json:"name"`
	} `yaml:"store_locations" json:"store_locations"`

	FulfillmentOptions []struct {
		Value string `yaml:"value" json:"value"`
		Time  string `yaml:"time" json:"time"`
		Cost  string `yaml:"cost" json:"cost"`
	} `yaml:"fulfillment_options" json:"fulfillment_options"`

	PaymentMethods  []string `yaml:"payment_methods" json:"payment_methods"`
	WalletProviders []string `yaml:"wallet_providers" json:"wallet_providers"`

	Messages struct {
		TrendingQuery string `yaml:"trending_query" json:"trending_query"`
		ChatError     string `yaml:"chat_error" json:"chat_error"`
		AddedToCart   string `yaml:"added_to_cart" json:"added_to_cart"`
	} `yaml:"messages" json:"messages"`
}

const defaultCatalogYAML = `
categories:
  - {name: Jackets, icon: "🧥", query: "Show me jackets"}
  - {name: Shoes, icon: "👟", query: "Show me shoes"}
  - {name: Accessories, icon: "👜", query: "Show me accessories"}
  - {name: Dresses, icon: "👗", query: "Show me dresses"}
quick_filters:
  - {label: "Under ₹2000", query: "Show me products under 2000"}
  - {label: "Trending", query: "Show me trending products"}
  - {label: "Bestsellers", query: "Show me bestsellers"}
store_locations:
  - {code: Mumbai, name: "Phoenix Mills, Mumbai"}
  - {code: Delhi, name: "Select Citywalk, Delhi"}
  - {code: Bangalore, name: "UB City, Bangalore"}
fulfillment_options:
  - {value: "Ship to Home", time: "2-3 days", cost: Free}
  - {value: "Click & Collect", time: "Same day", cost: Free}
  - {value: "In-Store Try-on", time: "Visit anytime", cost: Free}
payment_methods: [UPI, Card, Wallet]
wallet_providers: [Paytm, PhonePe, Amazon Pay]
messages:
  trending_query: "Show me trending products"
  chat_error: "Sorry, I encountered an error. Please try again."
  added_to_cart: "Great choice! I've added %s to your cart. 🎉 Check out the recommendations below!"
`

// DefaultStorefrontCatalog は組み込みのカタログを返します。
func DefaultStorefrontCatalog() *StorefrontCatalog {
	var catalog StorefrontCatalog
	if err := yaml.Unmarshal([]byte(defaultCatalogYAML), &catalog); err != nil {
		panic(fmt.Sprintf("組み込みカタログのパースに失敗: %v", err))
	}
	return &catalog
}

// LoadStorefrontCatalog はYAMLファイルからカタログを読み込む
// ファイルが存在しない場合は組み込みのカタログを返します。
// ファイルで指定されなかった項目は組み込みの値で補完されます。
func LoadStorefrontCatalog(path string) (*StorefrontCatalog, error) {
	catalog := DefaultStorefrontCatalog()
	if path == "" {
		return catalog, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return catalog, nil
	}
	if err != nil {
		return nil, fmt.Errorf("カタログ設定ファイルの読み込みに失敗: %w", err)
	}

	var override StorefrontCatalog
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("YAMLのパースに失敗: %w", err)
	}
	catalog.merge(&override)
	return catalog, nil
}

func (c *StorefrontCatalog) merge(o *StorefrontCatalog) {
	if len(o.Categories) > 0 {
		c.Categories = o.Categories
	}
	if len(o.QuickFilters) > 0 {
		c.QuickFilters = o.QuickFilters
	}
	if len(o.StoreLocations) > 0 {
		c.StoreLocations = o.StoreLocations
	}
	if len(o.FulfillmentOptions) > 0 {
		c.FulfillmentOptions = o.FulfillmentOptions
	}
	if len(o.PaymentMethods) > 0 {
		c.PaymentMethods = o.PaymentMethods
	}
	if len(o.WalletProviders) > 0 {
		c.WalletProviders = o.WalletProviders
	}
	if o.Messages.TrendingQuery != "" {
		c.Messages.TrendingQuery = o.Messages.TrendingQuery
	}
	if o.Messages.ChatError != "" {
		c.Messages.ChatError = o.Messages.ChatError
	}
	if o.Messages.AddedToCart != "" {
		c.Messages.AddedToCart = o.Messages.AddedToCart
	}
}

// HasStoreLocation は店舗コードが登録済みかを返します。
func (c *StorefrontCatalog) HasStoreLocation(code string) bool {
	for _, loc := range c.StoreLocations {
		if strings.EqualFold(loc.Code, code) {
			return true
		}
	}
	return false
}

// HasFulfillmentOption は受け取り方法が登録済みかを返します。
func (c *StorefrontCatalog) HasFulfillmentOption(value string) bool {
	for _, opt := range c.FulfillmentOptions {
		if opt.Value == value {
			return true
		}
	}
	return false
}

// HasPaymentMethod は決済方法が登録済みかを返します。
func (c *StorefrontCatalog) HasPaymentMethod(method string) bool {
	for _, m := range c.PaymentMethods {
		if m == method {
			return true
		}
	}
	return false
}
