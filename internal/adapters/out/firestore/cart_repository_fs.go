// internal/adapters/out/firestore/cart_repository_fs.go
package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	cartdom "solare/internal/domain/cart"
	"solare/internal/domain/identity"
)

// CartRepositoryFS implements cart.Repository using Firestore.
//
// Collection design:
// - carts: docId = owner key ("user:<uid>" / "anonymous:<sessionId>"), one doc per identity
// - cart_line_items: auto docId (= line id), fields cartId, productId, qty, createdAt, updatedAt
// - products: read-only join source for display fields
type CartRepositoryFS struct {
	Client *firestore.Client
	now    func() time.Time
}

func NewCartRepositoryFS(client *firestore.Client) *CartRepositoryFS {
	return &CartRepositoryFS{Client: client, now: time.Now}
}

func (r *CartRepositoryFS) carts() *firestore.CollectionRef {
	return r.Client.Collection(colCarts)
}

func (r *CartRepositoryFS) lines() *firestore.CollectionRef {
	return r.Client.Collection(colLineItems)
}

// Ready performs a cheap read so startup can wait for the connection.
func (r *CartRepositoryFS) Ready(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errNilClient
	}
	it := r.carts().Limit(1).Documents(ctx)
	defer it.Stop()
	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return fmt.Errorf("cart_repository_fs: ready: %w", err)
	}
	return nil
}

// FindCart returns (nil, nil) if the identity has no cart yet.
func (r *CartRepositoryFS) FindCart(ctx context.Context, owner identity.Context) (*cartdom.Cart, error) {
	if r == nil || r.Client == nil {
		return nil, errNilClient
	}
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	snap, err := r.carts().Doc(owner.Key()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, err
	}

	raw := snap.Data()
	return &cartdom.Cart{
		ID:        snap.Ref.ID,
		Owner:     owner,
		CreatedAt: asTime(raw["createdAt"]),
	}, nil
}

// CreateCart creates the identity's cart. A concurrent create by another tab is not an error:
// the existing doc is returned.
func (r *CartRepositoryFS) CreateCart(ctx context.Context, owner identity.Context) (*cartdom.Cart, error) {
	if r == nil || r.Client == nil {
		return nil, errNilClient
	}
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	data := map[string]any{
		"ownerKind": string(owner.Kind),
		"createdAt": now,
		"updatedAt": now,
	}
	if owner.IsUser() {
		data["userId"] = owner.ID
	} else {
		data["sessionId"] = owner.SessionID
	}

	ref := r.carts().Doc(owner.Key())
	if _, err := ref.Create(ctx, data); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return r.FindCart(ctx, owner)
		}
		return nil, err
	}

	return &cartdom.Cart{ID: ref.ID, Owner: owner, CreatedAt: now}, nil
}

type lineDoc struct {
	id        string
	productID string
	qty       int
	createdAt time.Time
}

func (r *CartRepositoryFS) ListLines(ctx context.Context, cartID string) ([]cartdom.LineItem, error) {
	if r == nil || r.Client == nil {
		return nil, errNilClient
	}
	cid := strings.TrimSpace(cartID)
	if cid == "" {
		return nil, cartdom.ErrCartNotFound
	}

	it := r.lines().Where("cartId", "==", cid).Documents(ctx)
	defer it.Stop()

	var docs []lineDoc
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		raw := snap.Data()
		qty := asInt(raw["qty"])
		if qty <= 0 {
			continue
		}
		docs = append(docs, lineDoc{
			id:        snap.Ref.ID,
			productID: strings.TrimSpace(asString(raw["productId"])),
			qty:       qty,
			createdAt: asTime(raw["createdAt"]),
		})
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].createdAt.Before(docs[j].createdAt) })

	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.productID)
	}
	products, err := fetchProducts(ctx, r.Client, ids)
	if err != nil {
		return nil, err
	}

	out := make([]cartdom.LineItem, 0, len(docs))
	for _, d := range docs {
		p := products[d.productID]
		out = append(out, cartdom.LineItem{
			ProductID: d.productID,
			LineID:    d.id,
			Name:      p.Name,
			Price:     p.Price,
			Image:     p.Image,
			Category:  p.Category,
			Quantity:  d.qty,
		})
	}
	return out, nil
}

func (r *CartRepositoryFS) InsertLine(ctx context.Context, cartID, productID string, qty int) (cartdom.LineItem, error) {
	if r == nil || r.Client == nil {
		return cartdom.LineItem{}, errNilClient
	}
	cid := strings.TrimSpace(cartID)
	pid := strings.TrimSpace(productID)
	if cid == "" || pid == "" || qty <= 0 {
		return cartdom.LineItem{}, cartdom.ErrInvalidCart
	}

	now := r.now().UTC()
	ref, _, err := r.lines().Add(ctx, map[string]any{
		"cartId":    cid,
		"productId": pid,
		"qty":       qty,
		"createdAt": now,
		"updatedAt": now,
	})
	if err != nil {
		return cartdom.LineItem{}, err
	}

	return cartdom.LineItem{ProductID: pid, LineID: ref.ID, Quantity: qty}, nil
}

func (r *CartRepositoryFS) UpdateLine(ctx context.Context, lineID string, qty int) error {
	if r == nil || r.Client == nil {
		return errNilClient
	}
	lid := strings.TrimSpace(lineID)
	if lid == "" {
		return cartdom.ErrLineNotFound
	}

	_, err := r.lines().Doc(lid).Update(ctx, []firestore.Update{
		{Path: "qty", Value: qty},
		{Path: "updatedAt", Value: r.now().UTC()},
	})
	if status.Code(err) == codes.NotFound {
		return cartdom.ErrLineNotFound
	}
	return err
}

func (r *CartRepositoryFS) DeleteLine(ctx context.Context, lineID string) error {
	if r == nil || r.Client == nil {
		return errNilClient
	}
	lid := strings.TrimSpace(lineID)
	if lid == "" {
		return nil
	}
	_, err := r.lines().Doc(lid).Delete(ctx)
	return err
}

// DeleteAllLines removes every line of the cart in one transaction.
func (r *CartRepositoryFS) DeleteAllLines(ctx context.Context, cartID string) error {
	if r == nil || r.Client == nil {
		return errNilClient
	}
	cid := strings.TrimSpace(cartID)
	if cid == "" {
		return nil
	}

	q := r.lines().Where("cartId", "==", cid)
	return r.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snaps, err := tx.Documents(q).GetAll()
		if err != nil {
			return err
		}
		for _, s := range snaps {
			if err := tx.Delete(s.Ref); err != nil {
				return err
			}
		}
		return nil
	})
}

var _ cartdom.Repository = (*CartRepositoryFS)(nil)
