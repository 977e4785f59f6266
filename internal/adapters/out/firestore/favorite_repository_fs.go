// internal/adapters/out/firestore/favorite_repository_fs.go
package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	favdom "solare/internal/domain/favorite"
)

// FavoriteRepositoryFS implements favorite.Repository using Firestore.
//
// - favorites: docId = userId + "__" + productId, fields userId, productId, addedAt
// - display fields are joined from products on read
type FavoriteRepositoryFS struct {
	Client *firestore.Client
	now    func() time.Time
}

func NewFavoriteRepositoryFS(client *firestore.Client) *FavoriteRepositoryFS {
	return &FavoriteRepositoryFS{Client: client, now: time.Now}
}

func (r *FavoriteRepositoryFS) col() *firestore.CollectionRef {
	return r.Client.Collection(colFavorites)
}

func favoriteDocID(userID, productID string) string {
	return strings.TrimSpace(userID) + "__" + strings.TrimSpace(productID)
}

func (r *FavoriteRepositoryFS) List(ctx context.Context, userID string) ([]favdom.Entry, error) {
	if r == nil || r.Client == nil {
		return nil, errNilClient
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return []favdom.Entry{}, nil
	}

	it := r.col().Where("userId", "==", uid).Documents(ctx)
	defer it.Stop()

	var rows []favdom.Entry
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		raw := snap.Data()
		pid := strings.TrimSpace(asString(raw["productId"]))
		if pid == "" {
			continue
		}
		rows = append(rows, favdom.Entry{ProductID: pid, AddedAt: asTime(raw["addedAt"])})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].AddedAt.Before(rows[j].AddedAt) })

	ids := make([]string, 0, len(rows))
	for _, e := range rows {
		ids = append(ids, e.ProductID)
	}
	products, err := fetchProducts(ctx, r.Client, ids)
	if err != nil {
		return nil, err
	}

	out := make([]favdom.Entry, 0, len(rows))
	for _, e := range rows {
		p := products[e.ProductID]
		e.Name = p.Name
		e.Price = p.Price
		e.Image = p.Image
		e.Category = p.Category
		out = append(out, e)
	}
	return out, nil
}

// Insert is idempotent: an existing (user, product) doc is left untouched.
func (r *FavoriteRepositoryFS) Insert(ctx context.Context, userID, productID string) error {
	if r == nil || r.Client == nil {
		return errNilClient
	}
	uid, pid := strings.TrimSpace(userID), strings.TrimSpace(productID)
	if uid == "" || pid == "" {
		return favdom.ErrInvalidEntry
	}

	_, err := r.col().Doc(favoriteDocID(uid, pid)).Create(ctx, map[string]any{
		"userId":    uid,
		"productId": pid,
		"addedAt":   r.now().UTC(),
	})
	if status.Code(err) == codes.AlreadyExists {
		return nil
	}
	return err
}

func (r *FavoriteRepositoryFS) Delete(ctx context.Context, userID, productID string) error {
	if r == nil || r.Client == nil {
		return errNilClient
	}
	uid, pid := strings.TrimSpace(userID), strings.TrimSpace(productID)
	if uid == "" || pid == "" {
		return nil
	}
	_, err := r.col().Doc(favoriteDocID(uid, pid)).Delete(ctx)
	return err
}

var _ favdom.Repository = (*FavoriteRepositoryFS)(nil)
