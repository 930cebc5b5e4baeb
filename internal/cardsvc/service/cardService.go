package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avvvet/viand-services/internal/cardsvc/models"
	"github.com/avvvet/viand-services/internal/cardsvc/store"
	"github.com/avvvet/viand-services/internal/comm"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CardStore interface {
	ListByOwner(ctx context.Context, owner primitive.ObjectID) ([]models.Card, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Card, error)
	ExistsByName(ctx context.Context, name string) (bool, error)
	Create(ctx context.Context, card *models.Card) error
	Update(ctx context.Context, id primitive.ObjectID, u models.CardUpdate) (*models.Card, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type Publisher interface {
	PublishCardEvent(ev comm.CardEvent)
}

// NewCard is the body of a create request.
type NewCard struct {
	Name      string            `json:"name" validate:"notblank"`
	Zomato    string            `json:"zomato" validate:"required,http_url"`
	Menu      []models.MenuItem `json:"menu" validate:"dive"`
	Rating    string            `json:"rating"`
	Date      json.RawMessage   `json:"date"`
	Review    *string           `json:"review"`
	BeenThere bool              `json:"beenThere"`
	Thumb     *string           `json:"thumb"`
	Location  *string           `json:"location"`
	Photos    []interface{}     `json:"photos"`
}

// CardPatch is the body of an update request. Absent and null fields are
// left alone; present fields are written even when empty.
type CardPatch struct {
	Name      *string            `json:"name"`
	Rating    *string            `json:"rating"`
	Menu      *[]models.MenuItem `json:"menu"`
	Date      json.RawMessage    `json:"date"`
	Review    *string            `json:"review"`
	Zomato    *string            `json:"zomato"`
	BeenThere *bool              `json:"beenThere"`
}

type CardService struct {
	store      CardStore
	cache      Cache
	cacheTTL   time.Duration
	events     Publisher
	scopedRead bool
	validate   *validator.Validate
	now        func() time.Time

	// generations counts mutations per owner so a List that raced a
	// mutation does not put its stale result back into the cache.
	generations sync.Map // owner hex -> *atomic.Uint64
}

type CardOption func(*CardService)

// WithCache caches owner listings in c for ttl.
func WithCache(c Cache, ttl time.Duration) CardOption {
	return func(s *CardService) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

func WithPublisher(p Publisher) CardOption {
	return func(s *CardService) {
		s.events = p
	}
}

// WithScopedRead makes Get reject callers that do not own the card.
func WithScopedRead(on bool) CardOption {
	return func(s *CardService) {
		s.scopedRead = on
	}
}

func WithClock(now func() time.Time) CardOption {
	return func(s *CardService) {
		s.now = now
	}
}

func NewCardService(store CardStore, opts ...CardOption) *CardService {
	s := &CardService{
		store:    store,
		validate: newValidator(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the caller's cards, newest date first.
func (s *CardService) List(ctx context.Context, owner primitive.ObjectID) ([]models.Card, error) {
	key := listKey(owner)
	gen := s.generation(owner).Load()

	if s.cache != nil {
		var cached []models.Card
		hit, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			log.Warnf("card cache get %s: %s", key, err)
		} else if hit {
			return cached, nil
		}
	}

	cards, err := s.store.ListByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	if cards == nil {
		cards = []models.Card{}
	}

	if s.cache != nil && s.generation(owner).Load() == gen {
		if err := s.cache.Set(ctx, key, cards, s.cacheTTL); err != nil {
			log.Warnf("card cache set %s: %s", key, err)
		}
	}
	return cards, nil
}

// Create stores a new card owned by owner. The name must not be used by
// any card, whoever owns it.
func (s *CardService) Create(ctx context.Context, owner primitive.ObjectID, in NewCard) (*models.Card, error) {
	if err := firstViolation(s.validate.Struct(in)); err != nil {
		return nil, err
	}

	date, ok, err := parseDate(in.Date)
	if err != nil {
		return nil, err
	}
	if !ok {
		date = normalizeDate(s.now())
	}

	exists, err := s.store.ExistsByName(ctx, in.Name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrCardExists
	}

	zomato := in.Zomato
	card := &models.Card{
		User:      owner,
		Name:      in.Name,
		Rating:    in.Rating,
		Menu:      withItemIDs(in.Menu),
		Review:    in.Review,
		Zomato:    &zomato,
		BeenThere: in.BeenThere,
		Date:      date,
		Thumb:     in.Thumb,
		Location:  in.Location,
		Photos:    in.Photos,
	}

	if err := s.store.Create(ctx, card); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, ErrCardExists
		}
		return nil, err
	}

	s.changed(ctx, comm.CardCreated, owner, card.ID, card)
	return card, nil
}

// Get returns the card with id. Ownership is only checked when scoped
// reads are enabled.
func (s *CardService) Get(ctx context.Context, caller, id primitive.ObjectID) (*models.Card, error) {
	if s.scopedRead {
		return s.guard(ctx, caller, id)
	}

	card, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, ErrCardNotFound
	}
	return card, nil
}

// Update applies patch to a card the caller owns. Ownership is settled
// before the patch is validated.
func (s *CardService) Update(ctx context.Context, caller, id primitive.ObjectID, patch CardPatch) (*models.Card, error) {
	card, err := s.guard(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	u, err := s.toUpdate(patch)
	if err != nil {
		return nil, err
	}
	if u.IsEmpty() {
		return card, nil
	}

	if u.Name != nil && *u.Name != card.Name {
		exists, err := s.store.ExistsByName(ctx, *u.Name)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrCardExists
		}
	}

	updated, err := s.store.Update(ctx, id, u)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, ErrCardExists
		}
		return nil, err
	}
	if updated == nil {
		return nil, ErrCardNotFound
	}

	s.changed(ctx, comm.CardUpdated, caller, id, updated)
	return updated, nil
}

// Delete removes a card the caller owns.
func (s *CardService) Delete(ctx context.Context, caller, id primitive.ObjectID) error {
	if _, err := s.guard(ctx, caller, id); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.changed(ctx, comm.CardDeleted, caller, id, nil)
	return nil
}

// guard loads the card and checks that caller owns it.
func (s *CardService) guard(ctx context.Context, caller, id primitive.ObjectID) (*models.Card, error) {
	card, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, ErrCardNotFound
	}
	if !card.OwnedBy(caller) {
		return nil, ErrForbidden
	}
	return card, nil
}

func (s *CardService) toUpdate(p CardPatch) (models.CardUpdate, error) {
	u := models.CardUpdate{
		Name:      p.Name,
		Rating:    p.Rating,
		Review:    p.Review,
		Zomato:    p.Zomato,
		BeenThere: p.BeenThere,
	}

	if u.Name != nil {
		if err := s.validate.Var(*u.Name, "notblank"); err != nil {
			return u, invalid(messages["Name.notblank"])
		}
	}
	if u.Zomato != nil {
		if err := s.validate.Var(*u.Zomato, "required,http_url"); err != nil {
			return u, invalid(messages["Zomato.http_url"])
		}
	}
	if p.Menu != nil {
		for _, item := range *p.Menu {
			if err := firstViolation(s.validate.Struct(item)); err != nil {
				return u, err
			}
		}
		menu := withItemIDs(*p.Menu)
		u.Menu = &menu
	}

	date, ok, err := parseDate(p.Date)
	if err != nil {
		return u, err
	}
	if ok {
		u.Date = &date
	}
	return u, nil
}

// changed drops the owner's cached listing and announces the mutation.
func (s *CardService) changed(ctx context.Context, kind string, owner, id primitive.ObjectID, card *models.Card) {
	s.generation(owner).Add(1)

	if s.cache != nil {
		if err := s.cache.Delete(ctx, listKey(owner)); err != nil {
			log.Warnf("card cache invalidate %s: %s", owner.Hex(), err)
		}
	}

	if s.events != nil {
		s.events.PublishCardEvent(comm.CardEvent{
			Type:      kind,
			Owner:     owner.Hex(),
			CardId:    id.Hex(),
			Card:      card,
			Timestamp: s.now().UTC(),
		})
	}
}

func (s *CardService) generation(owner primitive.ObjectID) *atomic.Uint64 {
	v, _ := s.generations.LoadOrStore(owner.Hex(), new(atomic.Uint64))
	return v.(*atomic.Uint64)
}

func listKey(owner primitive.ObjectID) string {
	return "cards:owner:" + owner.Hex()
}

// withItemIDs gives every menu item an id, as embedded documents have in Mongo.
func withItemIDs(menu []models.MenuItem) []models.MenuItem {
	out := make([]models.MenuItem, len(menu))
	for i, item := range menu {
		if item.ID.IsZero() {
			item.ID = primitive.NewObjectID()
		}
		out[i] = item
	}
	return out
}
