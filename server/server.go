package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"soundscape/cache"
	"soundscape/config"
	"soundscape/core/audio"
	"soundscape/core/catalog"
	"soundscape/core/compose"
	"soundscape/core/ledger"
	"soundscape/core/render"

	"soundscape/core/entitle"
	"soundscape/db"
	"soundscape/logger"
	"soundscape/model"
	"soundscape/repository"
	"soundscape/storage"
)

const catalogRefreshInterval = 5 * time.Minute

// Start wires every dependency and runs the HTTP server until SIGINT/SIGTERM.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
	})

	if err := storage.InitMinio(cfg); err != nil {
		logger.Fatal("failed to initialize MinIO", logger.ErrorField(err))
	}

	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("failed to connect to database", logger.ErrorField(err))
	}
	defer db.DB.Close()

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("failed to connect GORM", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := db.ConnectRedis(cfg); err != nil {
		logger.Fatal("failed to connect to Redis", logger.ErrorField(err))
	}
	defer db.CloseRedis()

	if err := db.InitDB(); err != nil {
		logger.Fatal("failed to initialize schema", logger.ErrorField(err))
	}
	if err := db.AutoMigrateModels(&model.Purchase{}, &model.Claim{}); err != nil {
		logger.Fatal("failed to migrate purchase models", logger.ErrorField(err))
	}

	decoder := audio.NewFFmpegDecoder(cfg.FFmpegPath)

	// Assets come from the local mirror when configured, from the bucket
	// otherwise.
	var loader audio.Loader
	var prober catalog.Prober
	assetStore := storage.NewAssetStore(storage.GetMinioClient(), cfg.AssetBucket,
		assetCacheDir(cfg), decoder, render.DefaultSampleRate)
	if cfg.AssetDir != "" {
		loader = audio.DirLoader{Root: cfg.AssetDir, Decoder: decoder, SampleRate: render.DefaultSampleRate}
		prober = catalog.DirProber{Root: cfg.AssetDir}
	} else {
		loader = assetStore
		prober = assetStore
	}

	cat := catalog.New(catalog.DefaultLibrary(), prober)
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()
	cat.Refresh(rootCtx)
	go refreshCatalogLoop(rootCtx, cat)
	if cfg.AssetDir != "" {
		go func() {
			if err := cat.Watch(rootCtx, cfg.AssetDir); err != nil {
				logger.Warn("asset watcher stopped", logger.ErrorField(err))
			}
		}()
	}

	composer := compose.New(cat)
	bufferCache := audio.NewCache(loader)
	renderer := render.New(bufferCache)

	go func() {
		var paths []string
		for _, e := range cat.Entries() {
			for _, a := range e.Assets {
				if cat.Available(e.Kind, e.ID, a.ID) {
					paths = append(paths, catalog.ObjectPath(e.Kind, e.ID, a.ID, a.Ext))
				}
			}
		}
		audio.NewPreheater(bufferCache, 4).Warm(rootCtx, paths)
	}()

	ledgerSvc := ledger.NewService(repository.NewMySQLLedgerRepository())
	entitleSvc := entitle.NewService(repository.NewGormEntitleRepository())
	exports := storage.NewExportStore(storage.GetMinioClient(), cfg.ExportBucket)
	progress := cache.NewProgressCache(db.RedisClient)
	balances := cache.NewBalanceCache(db.RedisClient)

	apiHandler := NewAPIHandler(cfg, cat, composer, renderer, ledgerSvc, entitleSvc, exports, progress, balances)

	router := mux.NewRouter()
	router.Use(corsMiddleware)
	router.Use(DeviceMiddleware)

	router.HandleFunc("/api/health", apiHandler.HealthHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/library", apiHandler.LibraryHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/moods", apiHandler.MoodsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/compose", apiHandler.ComposeHandler).Methods(http.MethodPost)

	router.HandleFunc("/api/credits/balance", apiHandler.BalanceHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/credits/claim", apiHandler.ClaimHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/checkout", apiHandler.CheckoutHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/stripe/webhook", apiHandler.StripeWebhookHandler).Methods(http.MethodPost)

	router.HandleFunc("/api/export", apiHandler.StartExportHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/export/{id}", apiHandler.ExportStatusHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/export/{id}/complete", apiHandler.CompleteExportHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/export/{id}/cancel", apiHandler.CancelExportHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/export/{id}/download", apiHandler.ExportDownloadHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/export/{id}/progress/ws", apiHandler.ExportProgressWSHandler).Methods(http.MethodGet)

	router.PathPrefix("/assets/").HandlerFunc(apiHandler.AssetHandler).Methods(http.MethodGet)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // long-lived websocket and asset streams
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("shutting down server")
	rootCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", logger.ErrorField(err))
	}
	logger.Info("server stopped")
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func refreshCatalogLoop(ctx context.Context, cat *catalog.Catalog) {
	ticker := time.NewTicker(catalogRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cat.Refresh(ctx)
		}
	}
}

func assetCacheDir(cfg *config.Config) string {
	dir := cfg.AssetDir
	if dir == "" {
		dir = "asset-cache"
	}
	return dir
}
