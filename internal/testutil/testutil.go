// Package testutil holds in-memory stand-ins for the Mongo stores and the
// Redis cache, plus helpers for minting tokens in tests.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/avvvet/viand-services/internal/cardsvc/models"
	"github.com/avvvet/viand-services/internal/cardsvc/store"
	"github.com/avvvet/viand-services/internal/comm"
	jwt "github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GenerateJWTHS256 signs a token the way a foreign issuer would, with
// golang-jwt rather than the service's own signer.
func GenerateJWTHS256(t *testing.T, secret, userID string, ttl time.Duration) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

var ErrStoreDown = errors.New("store unavailable")

// CardStore is an in-memory card store enforcing the unique name index.
type CardStore struct {
	mu    sync.Mutex
	cards map[primitive.ObjectID]models.Card
	Fail  bool // every call returns ErrStoreDown
	Calls int
}

func NewCardStore() *CardStore {
	return &CardStore{cards: map[primitive.ObjectID]models.Card{}}
}

func (s *CardStore) ListByOwner(_ context.Context, owner primitive.ObjectID) ([]models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.Fail {
		return nil, ErrStoreDown
	}

	out := []models.Card{}
	for _, c := range s.cards {
		if c.User != owner {
			continue
		}
		cp, err := clone(c)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (s *CardStore) GetByID(_ context.Context, id primitive.ObjectID) (*models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.Fail {
		return nil, ErrStoreDown
	}

	c, ok := s.cards[id]
	if !ok {
		return nil, nil
	}
	c, err := clone(c)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *CardStore) ExistsByName(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.Fail {
		return false, ErrStoreDown
	}
	return s.nameTaken(name, primitive.NilObjectID), nil
}

func (s *CardStore) Create(_ context.Context, card *models.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.Fail {
		return ErrStoreDown
	}
	if s.nameTaken(card.Name, primitive.NilObjectID) {
		return store.ErrDuplicateKey
	}
	if card.ID.IsZero() {
		card.ID = primitive.NewObjectID()
	}
	c, err := clone(*card)
	if err != nil {
		return err
	}
	s.cards[card.ID] = c
	return nil
}

func (s *CardStore) Update(_ context.Context, id primitive.ObjectID, u models.CardUpdate) (*models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.Fail {
		return nil, ErrStoreDown
	}

	c, ok := s.cards[id]
	if !ok {
		return nil, nil
	}
	if u.Name != nil && s.nameTaken(*u.Name, id) {
		return nil, store.ErrDuplicateKey
	}
	u.Apply(&c)
	stored, err := clone(c)
	if err != nil {
		return nil, err
	}
	s.cards[id] = stored
	return &c, nil
}

func (s *CardStore) Delete(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.Fail {
		return ErrStoreDown
	}
	delete(s.cards, id)
	return nil
}

// Put stores card directly, bypassing the index check.
func (s *CardStore) Put(card models.Card) error {
	c, err := clone(card)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[card.ID] = c
	return nil
}

// PutRaw stores card as is, skipping the JSON copy, so tests can plant
// values that would not survive encoding.
func (s *CardStore) PutRaw(card models.Card) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[card.ID] = card
}

func (s *CardStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cards)
}

func (s *CardStore) nameTaken(name string, except primitive.ObjectID) bool {
	for id, c := range s.cards {
		if c.Name == name && id != except {
			return true
		}
	}
	return false
}

// clone deep-copies through JSON so callers never share slices with the store.
func clone(c models.Card) (models.Card, error) {
	var out models.Card
	b, err := json.Marshal(c)
	if err != nil {
		return out, fmt.Errorf("clone card %s: %w", c.ID.Hex(), err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("clone card %s: %w", c.ID.Hex(), err)
	}
	return out, nil
}

// UserStore is an in-memory user store with a unique email index.
type UserStore struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]models.User
	Fail  bool
}

func NewUserStore() *UserStore {
	return &UserStore{users: map[primitive.ObjectID]models.User{}}
}

func (s *UserStore) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return ErrStoreDown
	}
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return store.ErrDuplicateKey
		}
	}
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	s.users[u.ID] = *u
	return nil
}

func (s *UserStore) GetByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return nil, ErrStoreDown
	}
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return nil, ErrStoreDown
	}
	for _, u := range s.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

// Cache is an in-memory JSON cache; ttl is ignored.
type Cache struct {
	mu    sync.Mutex
	items map[string][]byte
	Hits  int
}

func NewCache() *Cache {
	return &Cache{items: map[string][]byte{}}
}

func (c *Cache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.items[key]
	if !ok {
		return false, nil
	}
	c.Hits++
	return true, json.Unmarshal(b, dest)
}

func (c *Cache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = b
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

// Events records published card events.
type Events struct {
	mu     sync.Mutex
	events []comm.CardEvent
}

func (e *Events) PublishCardEvent(ev comm.CardEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *Events) All() []comm.CardEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]comm.CardEvent(nil), e.events...)
}
