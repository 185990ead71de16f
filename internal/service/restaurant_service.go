package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"plateful/internal/apperr"
	"plateful/internal/domain"
	"plateful/internal/store"
	"plateful/internal/validation"
)

// RestaurantService owns the restaurant profile: onboarding in draft
// state, validated edits, the one-shot publish, and the owner's live view.
type RestaurantService struct {
	store store.Store
	log   zerolog.Logger
}

func NewRestaurantService(st store.Store, log zerolog.Logger) *RestaurantService {
	return &RestaurantService{store: st, log: log}
}

// GetByOwner resolves the single restaurant an owner may have.
func (s *RestaurantService) GetByOwner(ctx context.Context, ownerID string) (*domain.Restaurant, error) {
	if ownerID == "" {
		return nil, apperr.Validation(map[string]string{"ownerId": "owner id is required"})
	}
	docs, err := s.store.Query(ctx, colRestaurants, store.Where("ownerId", ownerID))
	if err != nil {
		return nil, apperr.Classify(err)
	}
	if len(docs) == 0 {
		return nil, apperr.New(apperr.CodeNotFound, "no restaurant for this owner")
	}
	if len(docs) > 1 {
		// One restaurant per owner is an invariant; more than one means
		// the unique index was bypassed somewhere.
		s.log.Error().Str("owner_id", ownerID).Int("count", len(docs)).Msg("multiple restaurants for owner")
	}
	var r domain.Restaurant
	if err := store.Decode(docs[0].Data, &r); err != nil {
		return nil, apperr.Wrap(apperr.CodeUnknown, "corrupt restaurant record", err)
	}
	return &r, nil
}

// Create inserts a draft restaurant. The one-restaurant-per-owner
// invariant is checked inside the transaction that inserts, so two
// concurrent creates cannot both slip through.
func (s *RestaurantService) Create(ctx context.Context, ownerID string, r *domain.Restaurant) (*domain.Restaurant, error) {
	if ownerID == "" {
		return nil, apperr.Validation(map[string]string{"ownerId": "owner id is required"})
	}
	if errs := validation.ValidateRestaurant(r); errs.Any() {
		return nil, apperr.Validation(errs)
	}

	r.ID = uuid.NewString()
	r.OwnerID = ownerID
	r.Status = domain.RestaurantDraft
	r.PublishedAt = nil

	err := s.store.RunTransaction(ctx, func(tx store.Tx) error {
		existing, err := tx.Query(colRestaurants, store.Where("ownerId", ownerID))
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return apperr.Validation(map[string]string{"ownerId": "this owner already has a restaurant"})
		}
		data, err := store.Encode(r)
		if err != nil {
			return apperr.Wrap(apperr.CodeUnknown, "could not encode restaurant", err)
		}
		return tx.Set(colRestaurants, r.ID, data)
	})
	if err != nil {
		return nil, apperr.Classify(err)
	}
	return r, nil
}

// Update rewrites the mutable profile fields after validation. The
// existence check and the write share a transaction: a document that
// vanishes between them is a real race, reported NOT_FOUND; a transaction
// abort is a concurrent edit, reported CONFLICT_ERROR for the caller to
// retry.
func (s *RestaurantService) Update(ctx context.Context, id string, r *domain.Restaurant) (*domain.Restaurant, error) {
	if id == "" {
		return nil, apperr.Validation(map[string]string{"id": "restaurant id is required"})
	}
	if errs := validation.ValidateRestaurant(r); errs.Any() {
		return nil, apperr.Validation(errs)
	}

	var updated domain.Restaurant
	err := s.store.RunTransaction(ctx, func(tx store.Tx) error {
		doc, err := tx.Get(colRestaurants, id)
		if err != nil {
			return err
		}
		// ownerId and status are immutable here; publish owns status.
		fields := map[string]any{
			"name":        r.Name,
			"description": r.Description,
			"categories":  r.Categories,
			"address":     r.Address,
			"phone":       r.Phone,
		}
		if r.Location != nil {
			fields["location"] = r.Location
		}
		if r.Hours != nil {
			fields["hours"] = r.Hours
		}
		if r.LogoURL != "" {
			fields["logoUrl"] = r.LogoURL
		}
		if r.BannerURL != "" {
			fields["bannerUrl"] = r.BannerURL
		}
		if err := tx.Update(colRestaurants, id, fields); err != nil {
			return err
		}
		merged := applyTo(doc.Data, fields)
		return store.Decode(merged, &updated)
	})
	if err != nil {
		return nil, apperr.Classify(err)
	}
	return &updated, nil
}

func applyTo(base map[string]any, fields map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(fields))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// Publish flips the restaurant active and marks the owner's onboarding
// complete in one unconditional batch. Both writes are idempotent and
// order-independent, which is why this is a batch and not a transaction:
// re-running publish is always safe.
func (s *RestaurantService) Publish(ctx context.Context, id, ownerID string) error {
	if id == "" || ownerID == "" {
		return apperr.Validation(map[string]string{"id": "restaurant id and owner id are required"})
	}
	doc, err := s.store.Get(ctx, colRestaurants, id)
	if err != nil {
		return apperr.Classify(err)
	}
	var r domain.Restaurant
	if err := store.Decode(doc.Data, &r); err != nil {
		return apperr.Wrap(apperr.CodeUnknown, "corrupt restaurant record", err)
	}
	if r.OwnerID != ownerID {
		return apperr.New(apperr.CodePermissionDenied, "restaurant belongs to another owner")
	}

	restaurantFields := map[string]any{
		"status": string(domain.RestaurantActive),
	}
	// The first publish stamps publishedAt; re-running keeps it.
	if r.PublishedAt == nil {
		restaurantFields["publishedAt"] = time.Now().UTC()
	}

	err = s.store.ApplyBatch(ctx, []store.Write{
		{
			Collection: colRestaurants,
			ID:         id,
			Fields:     restaurantFields,
		},
		{
			Collection: colUsers,
			ID:         ownerID,
			Fields: map[string]any{
				"onboardingCompleted": true,
			},
		},
	})
	if err != nil {
		return apperr.Classify(err)
	}
	return nil
}

// ListenByOwner streams the owner's restaurant document.
func (s *RestaurantService) ListenByOwner(ctx context.Context, ownerID string, fn func(*domain.Restaurant, error)) (*store.Subscription, error) {
	if ownerID == "" {
		return nil, apperr.Validation(map[string]string{"ownerId": "owner id is required"})
	}
	sub, err := s.store.Listen(ctx, colRestaurants, []store.Filter{store.Where("ownerId", ownerID)}, func(snap store.Snapshot, err error) {
		if err != nil {
			fn(nil, listenerError(err))
			return
		}
		if len(snap.Docs) == 0 {
			fn(nil, nil)
			return
		}
		var r domain.Restaurant
		if err := store.Decode(snap.Docs[0].Data, &r); err != nil {
			fn(nil, apperr.Wrap(apperr.CodeUnknown, "corrupt restaurant record", err))
			return
		}
		fn(&r, nil)
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeSetup, "could not attach restaurant listener", err)
	}
	return sub, nil
}
