package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"plateful/internal/apperr"
	"plateful/internal/domain"
	"plateful/internal/store"
)

// UserService covers the supporting user-document surface: favorites,
// per-user app settings, and push token registration.
type UserService struct {
	store store.Store
	log   zerolog.Logger
}

func NewUserService(st store.Store, log zerolog.Logger) *UserService {
	return &UserService{store: st, log: log}
}

func (s *UserService) Get(ctx context.Context, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, apperr.Validation(map[string]string{"userId": "user id is required"})
	}
	doc, err := s.store.Get(ctx, colUsers, userID)
	if err != nil {
		return nil, apperr.Classify(err)
	}
	var u domain.User
	if err := store.Decode(doc.Data, &u); err != nil {
		return nil, apperr.Wrap(apperr.CodeUnknown, "corrupt user record", err)
	}
	return &u, nil
}

func (s *UserService) AddFavorite(ctx context.Context, userID, restaurantID string) error {
	if userID == "" || restaurantID == "" {
		return apperr.Validation(map[string]string{"id": "user id and restaurant id are required"})
	}
	err := s.store.Update(ctx, colUsers, userID, map[string]any{
		"favoriteRestaurants": store.ArrayUnion(restaurantID),
	})
	if err != nil {
		return apperr.Classify(err)
	}
	return nil
}

func (s *UserService) RemoveFavorite(ctx context.Context, userID, restaurantID string) error {
	if userID == "" || restaurantID == "" {
		return apperr.Validation(map[string]string{"id": "user id and restaurant id are required"})
	}
	err := s.store.Update(ctx, colUsers, userID, map[string]any{
		"favoriteRestaurants": store.ArrayRemove(restaurantID),
	})
	if err != nil {
		return apperr.Classify(err)
	}
	return nil
}

func (s *UserService) ListenFavorites(ctx context.Context, userID string, fn func([]string, error)) (*store.Subscription, error) {
	if userID == "" {
		return nil, apperr.Validation(map[string]string{"userId": "user id is required"})
	}
	sub, err := s.store.Listen(ctx, colUsers, []store.Filter{store.Where("id", userID)}, func(snap store.Snapshot, err error) {
		if err != nil {
			fn(nil, listenerError(err))
			return
		}
		if len(snap.Docs) == 0 {
			fn(nil, nil)
			return
		}
		var u domain.User
		if err := store.Decode(snap.Docs[0].Data, &u); err != nil {
			fn(nil, apperr.Wrap(apperr.CodeUnknown, "corrupt user record", err))
			return
		}
		fn(u.FavoriteRestaurants, nil)
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeSetup, "could not attach favorites listener", err)
	}
	return sub, nil
}

func (s *UserService) GetSettings(ctx context.Context, userID string) (*domain.AppSettings, error) {
	if userID == "" {
		return nil, apperr.Validation(map[string]string{"userId": "user id is required"})
	}
	doc, err := s.store.Get(ctx, colSettings, userID)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeNotFound {
			// Settings are lazily created; absence means defaults.
			return &domain.AppSettings{UserID: userID, Notifications: true}, nil
		}
		return nil, apperr.Classify(err)
	}
	var settings domain.AppSettings
	if err := store.Decode(doc.Data, &settings); err != nil {
		return nil, apperr.Wrap(apperr.CodeUnknown, "corrupt settings record", err)
	}
	return &settings, nil
}

func (s *UserService) UpdateSettings(ctx context.Context, settings *domain.AppSettings) (*domain.AppSettings, error) {
	if settings.UserID == "" {
		return nil, apperr.Validation(map[string]string{"userId": "user id is required"})
	}
	settings.UpdatedAt = time.Now().UTC()
	data, err := store.Encode(settings)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeUnknown, "could not encode settings", err)
	}
	if err := s.store.Set(ctx, colSettings, settings.UserID, data); err != nil {
		return nil, apperr.Classify(err)
	}
	return settings, nil
}

func (s *UserService) ListenSettings(ctx context.Context, userID string, fn func(*domain.AppSettings, error)) (*store.Subscription, error) {
	if userID == "" {
		return nil, apperr.Validation(map[string]string{"userId": "user id is required"})
	}
	sub, err := s.store.Listen(ctx, colSettings, []store.Filter{store.Where("userId", userID)}, func(snap store.Snapshot, err error) {
		if err != nil {
			fn(nil, listenerError(err))
			return
		}
		if len(snap.Docs) == 0 {
			fn(&domain.AppSettings{UserID: userID, Notifications: true}, nil)
			return
		}
		var settings domain.AppSettings
		if err := store.Decode(snap.Docs[0].Data, &settings); err != nil {
			fn(nil, apperr.Wrap(apperr.CodeUnknown, "corrupt settings record", err))
			return
		}
		fn(&settings, nil)
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeSetup, "could not attach settings listener", err)
	}
	return sub, nil
}

// SavePushToken registers a device token for a user. A token identifies a
// device, not an account: the same token is first stripped from every
// other user document that holds it, so a reinstalled or shared device
// never notifies the previous account.
func (s *UserService) SavePushToken(ctx context.Context, userID, token string) error {
	if userID == "" || token == "" {
		return apperr.Validation(map[string]string{"pushToken": "user id and token are required"})
	}
	err := s.store.RunTransaction(ctx, func(tx store.Tx) error {
		if _, err := tx.Get(colUsers, userID); err != nil {
			return err
		}
		holders, err := tx.Query(colUsers, store.Where("pushToken", token))
		if err != nil {
			return err
		}
		for _, doc := range holders {
			if doc.ID == userID {
				continue
			}
			if err := tx.Update(colUsers, doc.ID, map[string]any{"pushToken": store.FieldDelete}); err != nil {
				return err
			}
		}
		return tx.Update(colUsers, userID, map[string]any{"pushToken": token})
	})
	if err != nil {
		return apperr.Classify(err)
	}
	return nil
}
