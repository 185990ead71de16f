package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"plateful/internal/apperr"
	"plateful/internal/domain"
	"plateful/internal/store"
	"plateful/internal/validation"
)

// MenuService manages a restaurant's menu items. Items live in their own
// collection keyed by item id, with restaurantId as the ownership field.
type MenuService struct {
	store store.Store
	log   zerolog.Logger
}

func NewMenuService(st store.Store, log zerolog.Logger) *MenuService {
	return &MenuService{store: st, log: log}
}

func (s *MenuService) CreateItem(ctx context.Context, restaurantID string, it *domain.MenuItem) (*domain.MenuItem, error) {
	if restaurantID == "" {
		return nil, apperr.Validation(map[string]string{"restaurantId": "restaurant id is required"})
	}
	if errs := validation.ValidateMenuItem(it); errs.Any() {
		return nil, apperr.Validation(errs)
	}
	if _, err := s.store.Get(ctx, colRestaurants, restaurantID); err != nil {
		return nil, apperr.Classify(err)
	}

	now := time.Now().UTC()
	it.ID = uuid.NewString()
	it.RestaurantID = restaurantID
	it.CreatedAt = now
	it.UpdatedAt = now

	data, err := store.Encode(it)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeUnknown, "could not encode menu item", err)
	}
	if err := s.store.Set(ctx, colMenuItems, it.ID, data); err != nil {
		return nil, apperr.Classify(err)
	}
	return it, nil
}

func (s *MenuService) UpdateItem(ctx context.Context, restaurantID, itemID string, it *domain.MenuItem) (*domain.MenuItem, error) {
	if restaurantID == "" || itemID == "" {
		return nil, apperr.Validation(map[string]string{"id": "restaurant id and item id are required"})
	}
	if errs := validation.ValidateMenuItem(it); errs.Any() {
		return nil, apperr.Validation(errs)
	}

	var updated domain.MenuItem
	err := s.store.RunTransaction(ctx, func(tx store.Tx) error {
		doc, err := tx.Get(colMenuItems, itemID)
		if err != nil {
			return err
		}
		var existing domain.MenuItem
		if err := store.Decode(doc.Data, &existing); err != nil {
			return apperr.Wrap(apperr.CodeUnknown, "corrupt menu item record", err)
		}
		if existing.RestaurantID != restaurantID {
			return apperr.New(apperr.CodePermissionDenied, "menu item belongs to another restaurant")
		}
		fields := map[string]any{
			"name":        it.Name,
			"description": it.Description,
			"price":       it.Price,
			"category":    it.Category,
			"available":   it.Available,
			"updatedAt":   time.Now().UTC(),
		}
		if it.ImageURL != "" {
			fields["imageUrl"] = it.ImageURL
		}
		if err := tx.Update(colMenuItems, itemID, fields); err != nil {
			return err
		}
		return store.Decode(applyTo(doc.Data, fields), &updated)
	})
	if err != nil {
		return nil, apperr.Classify(err)
	}
	return &updated, nil
}

func (s *MenuService) DeleteItem(ctx context.Context, restaurantID, itemID string) error {
	if restaurantID == "" || itemID == "" {
		return apperr.Validation(map[string]string{"id": "restaurant id and item id are required"})
	}
	err := s.store.RunTransaction(ctx, func(tx store.Tx) error {
		doc, err := tx.Get(colMenuItems, itemID)
		if err != nil {
			return err
		}
		var existing domain.MenuItem
		if err := store.Decode(doc.Data, &existing); err != nil {
			return apperr.Wrap(apperr.CodeUnknown, "corrupt menu item record", err)
		}
		if existing.RestaurantID != restaurantID {
			return apperr.New(apperr.CodePermissionDenied, "menu item belongs to another restaurant")
		}
		return tx.Delete(colMenuItems, itemID)
	})
	if err != nil {
		return apperr.Classify(err)
	}
	return nil
}

// UpdateAvailability is a lightweight partial update; toggling a sold-out
// flag doesn't need the full transactional edit path.
func (s *MenuService) UpdateAvailability(ctx context.Context, restaurantID, itemID string, available bool) error {
	if restaurantID == "" || itemID == "" {
		return apperr.Validation(map[string]string{"id": "restaurant id and item id are required"})
	}
	doc, err := s.store.Get(ctx, colMenuItems, itemID)
	if err != nil {
		return apperr.Classify(err)
	}
	var existing domain.MenuItem
	if err := store.Decode(doc.Data, &existing); err != nil {
		return apperr.Wrap(apperr.CodeUnknown, "corrupt menu item record", err)
	}
	if existing.RestaurantID != restaurantID {
		return apperr.New(apperr.CodePermissionDenied, "menu item belongs to another restaurant")
	}
	err = s.store.Update(ctx, colMenuItems, itemID, map[string]any{
		"available": available,
		"updatedAt": time.Now().UTC(),
	})
	if err != nil {
		return apperr.Classify(err)
	}
	return nil
}

func (s *MenuService) ListItems(ctx context.Context, restaurantID string) ([]domain.MenuItem, error) {
	if restaurantID == "" {
		return nil, apperr.Validation(map[string]string{"restaurantId": "restaurant id is required"})
	}
	docs, err := s.store.Query(ctx, colMenuItems, store.Where("restaurantId", restaurantID))
	if err != nil {
		return nil, apperr.Classify(err)
	}
	return s.decodeItems(docs), nil
}

func (s *MenuService) ListenItems(ctx context.Context, restaurantID string, fn func([]domain.MenuItem, error)) (*store.Subscription, error) {
	if restaurantID == "" {
		return nil, apperr.Validation(map[string]string{"restaurantId": "restaurant id is required"})
	}
	sub, err := s.store.Listen(ctx, colMenuItems, []store.Filter{store.Where("restaurantId", restaurantID)}, func(snap store.Snapshot, err error) {
		if err != nil {
			fn(nil, listenerError(err))
			return
		}
		fn(s.decodeItems(snap.Docs), nil)
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeSetup, "could not attach menu listener", err)
	}
	return sub, nil
}

func (s *MenuService) decodeItems(docs []store.Document) []domain.MenuItem {
	items := make([]domain.MenuItem, 0, len(docs))
	for _, doc := range docs {
		var it domain.MenuItem
		if err := store.Decode(doc.Data, &it); err != nil || it.ID == "" {
			s.log.Warn().Str("doc_id", doc.ID).Msg("dropping malformed menu item document")
			continue
		}
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items
}
