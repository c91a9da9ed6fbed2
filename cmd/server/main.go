// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/drkhunter/exquisite-corpse/internal/handlers"
	"github.com/drkhunter/exquisite-corpse/internal/middleware"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	}

	srv := handlers.NewRoomServer(logger)
	if ms := os.Getenv("GRACE_WINDOW_MS"); ms != "" {
		if n, err := strconv.Atoi(ms); err == nil && n >= 0 {
			srv.Rooms.GraceWindow = time.Duration(n) * time.Millisecond
		} else {
			logger.Warnf("ignoring invalid GRACE_WINDOW_MS=%q", ms)
		}
	}

	r := mux.NewRouter()
	r.Use(middleware.CORS(os.Getenv("CORS_ORIGIN")))
	r.Use(middleware.LogMiddleware(logger))

	r.HandleFunc("/health", handlers.HealthHandler)
	r.HandleFunc("/rooms/{code}/export.zip", handlers.ExportHandler(logger, srv))
	r.HandleFunc("/ws", handlers.WSHandler(logger, srv))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
