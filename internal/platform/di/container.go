// internal/platform/di/container.go
package di

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"solare/internal/adapters/in/compat"
	"solare/internal/adapters/in/http/handler"
	"solare/internal/adapters/in/http/middleware"
	outdb "solare/internal/adapters/out/db"
	outfb "solare/internal/adapters/out/firebase"
	outfs "solare/internal/adapters/out/firestore"
	"solare/internal/adapters/out/gcs"
	"solare/internal/adapters/out/memory"
	"solare/internal/application/state"
	"solare/internal/domain/identity"
	"solare/internal/domain/product"
	appcfg "solare/internal/infra/config"
	"solare/internal/infra/localstore"
)

// sessionSource is what the container needs from either session implementation.
type sessionSource interface {
	identity.SessionSource
	handler.SessionController
}

// Container is the storefront composition root: one state manager plus its adapters.
type Container struct {
	Infra   *Infra
	Local   *localstore.FileStore
	Manager *state.Manager
	Legacy  *compat.Facade

	sessions sessionSource
	catalog  product.Repository
	images   handler.ImageResolver
}

func NewContainer(ctx context.Context, inf *Infra) (*Container, error) {
	if inf == nil || inf.Config == nil {
		return nil, errors.New("di.container: infra is nil")
	}
	cfg := inf.Config

	local, err := localstore.NewFileStore(cfg.LocalStoreDir)
	if err != nil {
		return nil, fmt.Errorf("di.container: local store: %w", err)
	}

	c := &Container{Infra: inf, Local: local}
	c.sessions = newSessionSource(inf, local)

	backend, catalog, err := newBackend(inf, c.sessions)
	if err != nil {
		_ = local.Close()
		return nil, err
	}
	c.catalog = catalog

	if bucket := strings.TrimSpace(cfg.ImageBucket); bucket != "" {
		c.images = gcs.NewImageURLResolver(bucket, cfg.ImageSignerEmail, cfg.ImageURLTTL)
		log.Printf("[di.container] image URLs from bucket=%s signed=%t", bucket, cfg.ImageSignerEmail != "")
	}

	c.Manager = state.NewManager(ctx, backend, local, state.Options{
		ReadyTimeout:          cfg.ReadyTimeout,
		SessionLookupAttempts: cfg.SessionLookupAttempts,
		SessionLookupInterval: cfg.SessionLookupInterval,
	})
	c.Legacy = compat.New(c.Manager)

	if err := c.Manager.Start(ctx); err != nil {
		// degraded but usable
		log.Printf("[di.container] WARN: state manager started degraded: %v", err)
	}

	log.Printf("[di.container] ready backend=%s localDir=%s", cfg.Backend, local.Dir())
	return c, nil
}

func newSessionSource(inf *Infra, local *localstore.FileStore) sessionSource {
	if inf.FirebaseAuth != nil {
		return outfb.NewSessionSource(inf.FirebaseAuth, local)
	}
	log.Printf("[di.container] WARN: Firebase Auth unavailable; using in-process sessions (tokens are \"uid[:email]\")")
	return memory.NewSessionSource()
}

func newBackend(inf *Infra, sessions sessionSource) (state.Backend, product.Repository, error) {
	b := state.Backend{Sessions: sessions}

	switch inf.Config.Backend {
	case appcfg.BackendFirestore:
		if inf.Firestore == nil || inf.Firestore.Client == nil {
			return b, nil, errors.New("di.container: firestore client is nil")
		}
		client := inf.Firestore.Client
		b.Carts = outfs.NewCartRepositoryFS(client)
		b.Favorites = outfs.NewFavoriteRepositoryFS(client)
		return b, outfs.NewProductRepositoryFS(client), nil

	case appcfg.BackendPostgres:
		if inf.DB == nil || inf.DB.Client == nil {
			return b, nil, errors.New("di.container: database is nil")
		}
		db := inf.DB.Client
		b.Carts = outdb.NewCartRepositoryPG(db)
		b.Favorites = outdb.NewFavoriteRepositoryPG(db)
		return b, outdb.NewProductRepositoryPG(db), nil

	default:
		store := memory.NewStore()
		b.Carts = store
		b.Favorites = store.Favorites()
		return b, store, nil
	}
}

// Handler is the full application mux behind CORS and panic recovery.
func (c *Container) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	handler.Register(mux, handler.NewStateHandler(handler.Deps{
		Manager:  c.Manager,
		Legacy:   c.Legacy,
		Sessions: c.sessions,
		Catalog:  c.catalog,
		Images:   c.images,
	}))

	return middleware.CORS(c.Infra.Config.AllowedOrigin)(middleware.Recover(mux))
}

// Close releases the container; Infra is closed separately by its owner.
func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	if c.Legacy != nil {
		c.Legacy.Close()
	}
	if c.Manager != nil {
		c.Manager.Close()
	}
	if fb, ok := c.sessions.(*outfb.SessionSource); ok {
		fb.Close()
	}
	if c.Local != nil {
		return c.Local.Close()
	}
	return nil
}
