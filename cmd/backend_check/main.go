package main

import (
	"context"
	"log"
	"time"

	config "storefront-client/configs"
	"storefront-client/pkg/backend"
	"storefront-client/pkg/format"
	"storefront-client/pkg/models"
	"storefront-client/pkg/services"

	"github.com/joho/godotenv"
)

// backend_check はストアフロントのバックエンドへの疎通を確認するツールです。
func main() {
	// .envファイルを読み込み
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}
	cfg := config.LoadConfig()

	client, err := backend.NewClient(cfg.BackendURL, cfg.HTTPTimeout, cfg.NodeID)
	if err != nil {
		log.Fatalf("FATAL: バックエンドクライアントの作成に失敗: %v", err)
	}
	log.Println("INFO: 接続先:", client.BaseURL())

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// 1. ヘルスチェック
	if err := client.Health(ctx); err != nil {
		log.Fatalf("FATAL: /health に失敗: %v", err)
	}
	log.Println("INFO: /health OK")

	// 2. 商品一覧
	products, err := client.ListProducts(ctx, models.ProductFilter{Limit: 5})
	if err != nil {
		log.Printf("ERROR: 商品一覧の取得に失敗: %v", err)
	} else {
		log.Printf("INFO: 商品 %d件", products.Count)
		for _, p := range products.Products {
			log.Printf("  - %s %s %s", p.ID, format.TruncateText(p.Name, 40), format.FormatPrice(p.Price))
		}
	}

	// 3. ロイヤルティ（保存済みの顧客IDを使う）
	customerID, err := services.NewCustomerStore(cfg.StateFile).LoadOrCreateCustomerID()
	if err != nil {
		log.Fatalf("FATAL: 顧客IDの読み込みに失敗: %v", err)
	}
	loyalty, err := client.GetLoyalty(ctx, customerID)
	if err != nil {
		log.Printf("ERROR: ロイヤルティ情報の取得に失敗: %v", err)
	} else {
		log.Printf("INFO: %s %s %dpt", customerID, format.TierBadge(string(loyalty.Loyalty.Tier)), loyalty.Loyalty.Points)
	}

	log.Println("SUCCESS: バックエンドは応答しています。")
}
