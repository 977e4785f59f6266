// internal/adapters/out/memory/store.go
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"solare/internal/domain/cart"
	"solare/internal/domain/favorite"
	"solare/internal/domain/identity"
	"solare/internal/domain/product"
)

// Operation names recorded in the call log and accepted by Fail/Heal.
const (
	OpFindCart       = "FindCart"
	OpCreateCart     = "CreateCart"
	OpListLines      = "ListLines"
	OpInsertLine     = "InsertLine"
	OpUpdateLine     = "UpdateLine"
	OpDeleteLine     = "DeleteLine"
	OpDeleteAllLines = "DeleteAllLines"
	OpListFavorites  = "ListFavorites"
	OpInsertFavorite = "InsertFavorite"
	OpDeleteFavorite = "DeleteFavorite"
)

var ErrInjected = errors.New("memory: injected failure")

// Call is one recorded repository invocation.
type Call struct {
	Op   string
	Args []string
}

type lineRow struct {
	id        string
	cartID    string
	productID string
	qty       int
	seq       uint64
}

type favoriteRow struct {
	productID string
	addedAt   time.Time
	seq       uint64
}

// Store is an in-process remote store (carts, line items, favorites, products).
// It backs dev mode and tests; every call is logged and any operation can be made to fail.
type Store struct {
	mu  sync.Mutex
	seq uint64
	now func() time.Time

	products    map[string]product.Product
	carts       map[string]cart.Cart // cartID -> cart
	cartByOwner map[string]string    // owner key -> cartID
	lines       map[string]lineRow   // lineID -> row
	favorites   map[string]map[string]favoriteRow

	calls  []Call
	faults map[string]error
}

func NewStore() *Store {
	return &Store{
		now:         time.Now,
		products:    map[string]product.Product{},
		carts:       map[string]cart.Cart{},
		cartByOwner: map[string]string{},
		lines:       map[string]lineRow{},
		favorites:   map[string]map[string]favoriteRow{},
		faults:      map[string]error{},
	}
}

// ============================================================
// Test / dev helpers
// ============================================================

// PutProduct adds or replaces a catalog product used by the joins.
func (s *Store) PutProduct(p product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[strings.TrimSpace(p.ID)] = p
}

// Fail makes op return err (ErrInjected when err is nil) until Heal.
func (s *Store) Fail(op string, err error) {
	if err == nil {
		err = ErrInjected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

func (s *Store) Heal(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.faults, op)
}

// Calls returns a copy of the call log.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallsOf filters the call log by operation.
func (s *Store) CallsOf(op string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (s *Store) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// record must be called with s.mu held.
func (s *Store) record(op string, args ...string) error {
	s.calls = append(s.calls, Call{Op: op, Args: args})
	if err, ok := s.faults[op]; ok {
		return err
	}
	return nil
}

func (s *Store) nextSeq() uint64 {
	s.seq++
	return s.seq
}

// ============================================================
// cart.Repository
// ============================================================

func (s *Store) FindCart(ctx context.Context, owner identity.Context) (*cart.Cart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record(OpFindCart, owner.Key()); err != nil {
		return nil, err
	}
	id, ok := s.cartByOwner[owner.Key()]
	if !ok {
		return nil, nil
	}
	c := s.carts[id]
	return &c, nil
}

func (s *Store) CreateCart(ctx context.Context, owner identity.Context) (*cart.Cart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record(OpCreateCart, owner.Key()); err != nil {
		return nil, err
	}
	// at most one cart per identity
	if id, ok := s.cartByOwner[owner.Key()]; ok {
		c := s.carts[id]
		return &c, nil
	}

	c := cart.Cart{ID: uuid.NewString(), Owner: owner, CreatedAt: s.now().UTC()}
	s.carts[c.ID] = c
	s.cartByOwner[owner.Key()] = c.ID
	return &c, nil
}

func (s *Store) ListLines(ctx context.Context, cartID string) ([]cart.LineItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record(OpListLines, cartID); err != nil {
		return nil, err
	}

	rows := make([]lineRow, 0)
	for _, r := range s.lines {
		if r.cartID == cartID {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	out := make([]cart.LineItem, 0, len(rows))
	for _, r := range rows {
		out = append(out, s.lineItem(r))
	}
	return out, nil
}

func (s *Store) InsertLine(ctx context.Context, cartID, productID string, qty int) (cart.LineItem, error) {
	if err := ctx.Err(); err != nil {
		return cart.LineItem{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record(OpInsertLine, cartID, productID); err != nil {
		return cart.LineItem{}, err
	}
	if _, ok := s.carts[cartID]; !ok {
		return cart.LineItem{}, cart.ErrCartNotFound
	}

	r := lineRow{
		id:        uuid.NewString(),
		cartID:    cartID,
		productID: strings.TrimSpace(productID),
		qty:       qty,
		seq:       s.nextSeq(),
	}
	s.lines[r.id] = r
	return s.lineItem(r), nil
}

func (s *Store) UpdateLine(ctx context.Context, lineID string, qty int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record(OpUpdateLine, lineID); err != nil {
		return err
	}
	r, ok := s.lines[lineID]
	if !ok {
		return cart.ErrLineNotFound
	}
	r.qty = qty
	s.lines[lineID] = r
	return nil
}

func (s *Store) DeleteLine(ctx context.Context, lineID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record(OpDeleteLine, lineID); err != nil {
		return err
	}
	delete(s.lines, lineID)
	return nil
}

func (s *Store) DeleteAllLines(ctx context.Context, cartID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record(OpDeleteAllLines, cartID); err != nil {
		return err
	}
	for id, r := range s.lines {
		if r.cartID == cartID {
			delete(s.lines, id)
		}
	}
	return nil
}

// lineItem joins a row with the catalog; must be called with s.mu held.
func (s *Store) lineItem(r lineRow) cart.LineItem {
	p := s.products[r.productID]
	return cart.LineItem{
		ProductID: r.productID,
		LineID:    r.id,
		Name:      p.Name,
		Price:     p.Price,
		Image:     p.Image,
		Category:  p.Category,
		Quantity:  r.qty,
	}
}

// ============================================================
// favorite.Repository (exposed through Favorites())
// ============================================================

// Favorites returns the favorite.Repository view of the store.
// Cart and favorites share the call log and fault table.
func (s *Store) Favorites() *FavoriteRepository {
	return &FavoriteRepository{s: s}
}

type FavoriteRepository struct {
	s *Store
}

func (r *FavoriteRepository) List(ctx context.Context, userID string) ([]favorite.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record(OpListFavorites, userID); err != nil {
		return nil, err
	}

	rows := make([]favoriteRow, 0, len(s.favorites[userID]))
	for _, row := range s.favorites[userID] {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	out := make([]favorite.Entry, 0, len(rows))
	for _, row := range rows {
		p := s.products[row.productID]
		out = append(out, favorite.Entry{
			ProductID: row.productID,
			Name:      p.Name,
			Price:     p.Price,
			Image:     p.Image,
			Category:  p.Category,
			AddedAt:   row.addedAt,
		})
	}
	return out, nil
}

func (r *FavoriteRepository) Insert(ctx context.Context, userID, productID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record(OpInsertFavorite, userID, productID); err != nil {
		return err
	}
	set := s.favorites[userID]
	if set == nil {
		set = map[string]favoriteRow{}
		s.favorites[userID] = set
	}
	pid := strings.TrimSpace(productID)
	if _, ok := set[pid]; ok {
		return nil
	}
	set[pid] = favoriteRow{productID: pid, addedAt: s.now().UTC(), seq: s.nextSeq()}
	return nil
}

func (r *FavoriteRepository) Delete(ctx context.Context, userID, productID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record(OpDeleteFavorite, userID, productID); err != nil {
		return err
	}
	delete(s.favorites[userID], strings.TrimSpace(productID))
	return nil
}

// FavoriteIDs is a test helper listing a user's remote favorites without logging a call.
func (s *Store) FavoriteIDs(userID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]favoriteRow, 0, len(s.favorites[userID]))
	for _, row := range s.favorites[userID] {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.productID)
	}
	return out
}

// GetByIDs serves the catalog for the HTTP layer. Not logged.
func (s *Store) GetByIDs(ctx context.Context, ids []string) (map[string]product.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]product.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[strings.TrimSpace(id)]; ok {
			out[p.ID] = p
		}
	}
	return out, nil
}

var (
	_ product.Repository  = (*Store)(nil)
	_ cart.Repository     = (*Store)(nil)
	_ favorite.Repository = (*FavoriteRepository)(nil)
)
