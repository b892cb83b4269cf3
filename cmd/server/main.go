package main

import (
	"context"
	"fmt"
	"log"
	"time"

	config "storefront-client/configs"
	"storefront-client/internal/store"
	"storefront-client/pkg/backend"
	"storefront-client/pkg/handlers"
	"storefront-client/pkg/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

// application は起動に必要な依存をまとめたものです。
type application struct {
	router   *gin.Engine
	shop     *services.ShopService
	realtime *services.RealtimeService
}

func main() {
	// .envファイルを読み込み
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	// 設定の読み込み
	cfg := config.LoadConfig()

	app, err := newApplication(cfg)
	if err != nil {
		log.Fatalf("FATAL: 初期化に失敗しました: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if app.realtime != nil {
		app.realtime.Start(ctx)
		defer app.realtime.Close()
	}

	// 起動直後の画面用データはバックグラウンドで取得する
	go warmUp(ctx, app.shop, cfg.TrendingOnStartup)

	log.Printf("🚀 storefront client を起動します (port: %s, backend: %s)", cfg.Port, cfg.BackendURL)
	if err := app.router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("FATAL: サーバーの起動に失敗しました: %v", err)
	}
}

// newApplication は設定からサービスとルーターを組み立てます。
func newApplication(cfg *config.Config) (*application, error) {
	catalog, err := config.LoadStorefrontCatalog(cfg.CatalogFile)
	if err != nil {
		return nil, err
	}

	customerID, err := services.NewCustomerStore(cfg.StateFile).LoadOrCreateCustomerID()
	if err != nil {
		return nil, fmt.Errorf("顧客IDの読み込みに失敗: %w", err)
	}
	st, err := store.New(customerID)
	if err != nil {
		return nil, err
	}

	// サービスの初期化
	monitoringService := services.NewMonitoringService()
	client, err := backend.NewClient(cfg.BackendURL, cfg.HTTPTimeout, cfg.NodeID)
	if err != nil {
		return nil, err
	}
	client.SetObserver(monitoringService)

	var realtime *services.RealtimeService
	if cfg.UseRealtime {
		realtime = services.NewRealtimeService(cfg.RealtimeURL, cfg.RealtimeMaxRetries, cfg.RealtimeBackoff)
		realtime.SetReplyTimeout(cfg.RealtimeReplyTimeout)
	}

	shop := services.NewShopService(st, client, realtime, catalog, cfg)
	checkout := services.NewCheckoutService(shop, client)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	// ミドルウェアの登録
	r.Use(monitoringService.LoggingMiddleware())
	r.Use(corsMiddleware(cfg.AllowedOrigins))

	handlers.RegisterRoutes(r, handlers.Services{
		Shop:       shop,
		Checkout:   checkout,
		Receipt:    services.NewReceiptService(),
		Monitoring: monitoringService,
		Client:     client,
		Realtime:   realtime,
	}, cfg.APIKey)

	log.Printf("👤 customer=%s session=%s", st.CustomerID(), st.SessionID())
	return &application{router: r, shop: shop, realtime: realtime}, nil
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		return cors.Default()
	}
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = origins
	corsConfig.AddAllowHeaders("X-API-KEY")
	return cors.New(corsConfig)
}

// warmUp はロイヤルティ情報とトレンド商品を取得します。失敗しても起動は続けます。
func warmUp(ctx context.Context, shop *services.ShopService, trending bool) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, _, err := shop.LoadLoyalty(ctx); err != nil {
		log.Printf("⚠️ ロイヤルティ情報の取得に失敗: %v", err)
	}
	if trending {
		if err := shop.LoadTrending(ctx); err != nil {
			log.Printf("⚠️ トレンド商品の取得に失敗: %v", err)
		}
	}
}
