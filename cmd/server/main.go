package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/frictionlens/frictionlens/internal/api"
	"github.com/frictionlens/frictionlens/internal/db"
	"github.com/frictionlens/frictionlens/internal/middleware"
	"github.com/frictionlens/frictionlens/internal/services"
	"github.com/frictionlens/frictionlens/internal/utils"
)

func main() {
	// Local development convenience; a missing .env is not an error.
	if err := godotenv.Load(); err == nil {
		log.Printf("loaded environment from .env")
	}

	addr := utils.SafeEnv("FRICTIONLENS_ADDR", ":8080")
	commit := os.Getenv("FRICTIONLENS_COMMIT")
	buildTime := os.Getenv("FRICTIONLENS_BUILD_TIME")

	cfg, err := services.LoadEngineConfig(os.Getenv("FRICTIONLENS_CONFIG"))
	if err != nil {
		log.Fatalf("engine config: %v", err)
	}

	var store api.Store
	if path := os.Getenv("FRICTIONLENS_DB"); path != "" {
		sqlStore, err := db.Open(path, os.Getenv("FRICTIONLENS_MIGRATIONS_DIR"))
		if err != nil {
			log.Fatalf("open sqlite store %s: %v", path, err)
		}
		defer sqlStore.Close()
		store = sqlStore
		log.Printf("using sqlite store at %s", path)
	} else {
		store = api.NewMemoryStore()
		log.Printf("FRICTIONLENS_DB not set, using in-memory store")
	}

	rt := api.NewRouter(store, cfg)
	if err := rt.SeedDefaults(); err != nil {
		log.Fatalf("seed default question bank: %v", err)
	}

	mux := http.NewServeMux()
	rt.Register(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		locale := middleware.LocaleFromContext(r.Context())
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":         true,
			"name":       "FrictionLens API",
			"locale":     locale,
			"msg":        utils.T(locale, "health.ok"),
			"commit":     commit,
			"build_time": buildTime,
		})
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"commit":     commit,
			"build_time": buildTime,
		})
	})

	handler := middleware.CORS(
		middleware.SecureHeaders(
			middleware.NoStore(
				middleware.LocaleMiddleware(
					middleware.WithAuth(mux)))))

	log.Printf("FrictionLens server listening on %s", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
