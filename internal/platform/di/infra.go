// internal/platform/di/infra.go
package di

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	outdb "solare/internal/adapters/out/db"
	appcfg "solare/internal/infra/config"
	"solare/internal/infra/database"
	firestoreinfra "solare/internal/infra/firestore"
)

// Infra owns the external clients for the configured backend.
// The remote store is strict (error); Firebase Auth and Secret Manager are best-effort.
type Infra struct {
	Config *appcfg.Config

	Firestore     *firestoreinfra.ClientWrapper
	DB            *database.DB
	FirebaseAuth  *firebaseauth.Client
	SecretManager *secretmanager.Client
}

func NewInfra(ctx context.Context, cfg *appcfg.Config) (*Infra, error) {
	if cfg == nil {
		return nil, errors.New("di.infra: config is nil")
	}
	inf := &Infra{Config: cfg}

	var clientOpts []option.ClientOption
	if credFile := strings.TrimSpace(cfg.FirestoreCredentialsFile); credFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(credFile))
		log.Printf("[di.infra] Using credentials file for GCP clients: %s", redactPath(credFile))
	} else if cfg.Backend != appcfg.BackendMemory {
		log.Printf("[di.infra] Using Application Default Credentials (no credentials file configured)")
	}

	switch cfg.Backend {
	case appcfg.BackendFirestore:
		fs, err := firestoreinfra.NewClient(ctx, cfg.GetFirestoreProjectID(), clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("di.infra: %w", err)
		}
		inf.Firestore = fs

	case appcfg.BackendPostgres:
		password, err := inf.resolveDBPassword(ctx, clientOpts)
		if err != nil {
			_ = inf.Close()
			return nil, err
		}
		db, err := database.NewConnection(ctx, cfg.DatabaseURL, password)
		if err != nil {
			_ = inf.Close()
			return nil, fmt.Errorf("di.infra: %w", err)
		}
		inf.DB = db
		if err := outdb.Migrate(ctx, db.Client); err != nil {
			_ = inf.Close()
			return nil, fmt.Errorf("di.infra: migrate: %w", err)
		}

	case appcfg.BackendMemory:
		log.Printf("[di.infra] backend=memory: remote store lives in process (dev mode)")
	}

	if projectID := cfg.GetFirebaseProjectID(); projectID != "" {
		app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, clientOpts...)
		if err != nil {
			log.Printf("[di.infra] WARN: firebase app init failed: %v", err)
		} else if authClient, err := app.Auth(ctx); err != nil {
			log.Printf("[di.infra] WARN: firebase auth init failed: %v", err)
		} else {
			inf.FirebaseAuth = authClient
			log.Printf("[di.infra] Firebase Auth initialized project=%s", projectID)
		}
	} else {
		log.Printf("[di.infra] Firebase project not configured; sessions use the in-process source")
	}

	return inf, nil
}

// resolveDBPassword prefers DB_PASSWORD, then the Secret Manager secret, then the URL as-is.
func (inf *Infra) resolveDBPassword(ctx context.Context, opts []option.ClientOption) (string, error) {
	cfg := inf.Config
	if cfg.DatabasePassword != "" {
		return cfg.DatabasePassword, nil
	}
	secretID := strings.TrimSpace(cfg.DatabasePasswordSecret)
	if secretID == "" {
		return "", nil
	}

	sm, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("di.infra: secretmanager.NewClient failed: %w", err)
	}
	inf.SecretManager = sm

	pw, err := NewSecretProviderSM(sm, cfg.GCPProjectID).Get(ctx, secretID)
	if err != nil {
		return "", fmt.Errorf("di.infra: database password: %w", err)
	}
	log.Printf("[di.infra] database password loaded from Secret Manager secret=%s", secretID)
	return pw, nil
}

func (inf *Infra) Close() error {
	if inf == nil {
		return nil
	}
	var errs []error
	if inf.Firestore != nil {
		if err := inf.Firestore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("firestore close: %w", err))
		}
		inf.Firestore = nil
	}
	if inf.DB != nil {
		if err := inf.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("db close: %w", err))
		}
		inf.DB = nil
	}
	if inf.SecretManager != nil {
		if err := inf.SecretManager.Close(); err != nil {
			errs = append(errs, fmt.Errorf("secretmanager close: %w", err))
		}
		inf.SecretManager = nil
	}
	return errors.Join(errs...)
}

func redactPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	return ".../" + filepath.Base(p)
}
