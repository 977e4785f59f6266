// internal/infra/firestore/client.go
package firestoreinfra

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
)

// EmulatorEnv is honoured by the Firestore SDK itself.
const EmulatorEnv = "FIRESTORE_EMULATOR_HOST"

var ErrNoProject = errors.New("firestore: project id is empty (set FIRESTORE_PROJECT_ID or GCP_PROJECT_ID)")

// ClientWrapper owns the Firestore client backing the cart and favorites stores.
type ClientWrapper struct {
	Client    *firestore.Client
	ProjectID string
	// Emulator is host:port when the client talks to a local emulator.
	Emulator string
}

// EmulatorHost returns the configured emulator address, or "".
func EmulatorHost() string {
	return strings.TrimSpace(os.Getenv(EmulatorEnv))
}

// NewClient connects to projectID. Credential options are dropped against the
// emulator since it accepts unauthenticated traffic only.
func NewClient(ctx context.Context, projectID string, opts ...option.ClientOption) (*ClientWrapper, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, ErrNoProject
	}

	emu := EmulatorHost()
	if emu != "" && len(opts) > 0 {
		log.Printf("[firestore] emulator=%s: ignoring %d client option(s)", emu, len(opts))
		opts = nil
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: new client project=%s: %w", projectID, err)
	}

	if emu != "" {
		log.Printf("[firestore] connected project=%s emulator=%s", projectID, emu)
	} else {
		log.Printf("[firestore] connected project=%s", projectID)
	}
	return &ClientWrapper{Client: client, ProjectID: projectID, Emulator: emu}, nil
}

func (cw *ClientWrapper) Close() error {
	if cw == nil || cw.Client == nil {
		return nil
	}
	err := cw.Client.Close()
	cw.Client = nil
	return err
}
