// cmd/storefront/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"solare/internal/adapters/in/http/middleware"
	"solare/internal/infra/config"
	"solare/internal/platform/di"
)

// atomicHandler allows swapping the underlying handler at runtime safely.
type atomicHandler struct {
	v atomic.Value // stores http.Handler
}

func newAtomicHandler(initial http.Handler) *atomicHandler {
	ah := &atomicHandler{}
	if initial == nil {
		initial = http.NotFoundHandler()
	}
	ah.v.Store(initial)
	return ah
}

func (h *atomicHandler) Store(next http.Handler) {
	if next == nil {
		return
	}
	h.v.Store(next)
}

func (h *atomicHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cur := h.v.Load()
	if cur == nil {
		http.NotFound(w, r)
		return
	}
	cur.(http.Handler).ServeHTTP(w, r)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[boot] config: %v", err)
	}

	// healthz only until DI finishes
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	switcher := newAtomicHandler(middleware.CORS(cfg.AllowedOrigin)(healthMux))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      switcher,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var infraHolder atomic.Pointer[di.Infra]
	var containerHolder atomic.Pointer[di.Container]

	// appCtx bounds the state manager's background reloads.
	appCtx, cancelApp := context.WithCancel(context.Background())
	defer cancelApp()

	shuttingDown := make(chan struct{})
	idleConnsClosed := make(chan struct{})
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		sig := <-c

		close(shuttingDown)
		log.Printf("[boot] received signal: %v; shutting down...", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[boot] server shutdown error: %v", err)
		}

		// container first: it flushes queued favorites writes through infra
		if cont := containerHolder.Swap(nil); cont != nil {
			log.Printf("[boot] closing container resources...")
			if err := cont.Close(); err != nil {
				log.Printf("[boot] container close error: %v", err)
			}
		}
		cancelApp()

		if inf := infraHolder.Swap(nil); inf != nil {
			log.Printf("[boot] closing infra resources...")
			if err := inf.Close(); err != nil {
				log.Printf("[boot] infra close error: %v", err)
			}
		}

		close(idleConnsClosed)
	}()

	go func() {
		log.Printf("[boot] listening on :%s (storefront backend=%s)", cfg.Port, cfg.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[boot] server error: %v", err)
		}
	}()

	go func() {
		initCtx, cancel := context.WithTimeout(appCtx, 2*time.Minute)
		defer cancel()

		inf, err := di.NewInfra(initCtx, cfg)
		if err != nil {
			log.Printf("[boot] WARN: infra init failed: %v (serving /healthz only)", err)
			return
		}
		infraHolder.Store(inf)

		// the manager outlives initCtx
		cont, err := di.NewContainer(appCtx, inf)
		if err != nil {
			_ = inf.Close()
			infraHolder.Store(nil)
			log.Printf("[boot] WARN: di init failed: %v (serving /healthz only)", err)
			return
		}
		containerHolder.Store(cont)

		select {
		case <-shuttingDown:
			if c := containerHolder.Swap(nil); c != nil {
				_ = c.Close()
			}
			if i := infraHolder.Swap(nil); i != nil {
				_ = i.Close()
			}
			return
		default:
		}

		switcher.Store(cont.Handler())
		log.Printf("[boot] handler switched to storefront router")
	}()

	<-idleConnsClosed
	log.Printf("[boot] server stopped")
}
