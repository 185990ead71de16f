// Package auth implements email/password accounts with JWT sessions.
// Sign-out revokes the token's jti in a denylist until its natural expiry.
package auth

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"plateful/internal/apperr"
	"plateful/internal/domain"
	"plateful/internal/store"
)

const colUsers = "users"

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const minPasswordLen = 8

// StateFunc observes sign-in/sign-out transitions. userID is empty on
// sign-out.
type StateFunc func(userID string)

type Service struct {
	store    store.Store
	denylist Denylist
	secret   []byte
	ttl      time.Duration
	log      zerolog.Logger

	mu        sync.Mutex
	watchers  map[int64]StateFunc
	nextWatch int64
}

func NewService(st store.Store, denylist Denylist, secret []byte, ttl time.Duration, log zerolog.Logger) *Service {
	return &Service{
		store:    st,
		denylist: denylist,
		secret:   secret,
		ttl:      ttl,
		log:      log,
		watchers: make(map[int64]StateFunc),
	}
}

// SignUp creates the user document and returns a signed session token.
func (s *Service) SignUp(ctx context.Context, email, password string, role domain.Role) (*domain.User, string, error) {
	if !emailPattern.MatchString(email) {
		return nil, "", apperr.New(apperr.CodeInvalidEmail, "")
	}
	if len(password) < minPasswordLen {
		return nil, "", apperr.New(apperr.CodeWeakPassword, fmt.Sprintf("Password must be at least %d characters", minPasswordLen))
	}
	if role != domain.RoleUser && role != domain.RoleRestaurant {
		return nil, "", apperr.Validation(map[string]string{"role": "role must be user or restaurant"})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.CodeUnknown, "could not hash password", err)
	}

	u := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	}
	data, err := store.Encode(u)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.CodeUnknown, "could not encode user", err)
	}

	// The duplicate probe and the insert share a transaction so two
	// concurrent sign-ups for the same email cannot both slip past the
	// check; the unique index on email backstops it at the storage layer.
	err = s.store.RunTransaction(ctx, func(tx store.Tx) error {
		existing, err := tx.Query(colUsers, store.Where("email", email))
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return apperr.New(apperr.CodeEmailInUse, "")
		}
		return tx.Set(colUsers, u.ID, data)
	})
	if err != nil {
		classified := apperr.Classify(err)
		if classified.Code == apperr.CodeConflict {
			// A racing sign-up committed first and tripped the index.
			return nil, "", apperr.New(apperr.CodeEmailInUse, "")
		}
		return nil, "", classified
	}

	token, err := s.issueToken(u)
	if err != nil {
		return nil, "", err
	}
	s.notifyState(u.ID)
	return u, token, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (*domain.User, string, error) {
	if !emailPattern.MatchString(email) {
		return nil, "", apperr.New(apperr.CodeInvalidEmail, "")
	}
	docs, err := s.store.Query(ctx, colUsers, store.Where("email", email))
	if err != nil {
		return nil, "", apperr.Classify(err)
	}
	if len(docs) == 0 {
		return nil, "", apperr.New(apperr.CodeUserNotFound, "")
	}
	var u domain.User
	if err := store.Decode(docs[0].Data, &u); err != nil {
		return nil, "", apperr.Wrap(apperr.CodeUnknown, "corrupt user record", err)
	}
	if u.Disabled {
		return nil, "", apperr.New(apperr.CodeUserDisabled, "")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, "", apperr.New(apperr.CodeWrongPassword, "")
	}

	token, err := s.issueToken(&u)
	if err != nil {
		return nil, "", err
	}
	s.notifyState(u.ID)
	return &u, token, nil
}

// SignOut revokes the token until its expiry; an already-invalid token is
// a successful no-op.
func (s *Service) SignOut(ctx context.Context, tokenString string) error {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil
	}
	jti, _ := claims["jti"].(string)
	exp, _ := claims["exp"].(float64)
	if jti != "" {
		ttl := time.Until(time.Unix(int64(exp), 0))
		if ttl > 0 {
			if err := s.denylist.Revoke(ctx, jti, ttl); err != nil {
				return apperr.Classify(err)
			}
		}
	}
	s.notifyState("")
	return nil
}

// CurrentUser resolves the account behind a session token.
func (s *Service) CurrentUser(ctx context.Context, tokenString string) (*domain.User, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, apperr.New(apperr.CodePermissionDenied, "invalid or expired session")
	}
	jti, _ := claims["jti"].(string)
	if jti != "" {
		revoked, err := s.denylist.Revoked(ctx, jti)
		if err != nil {
			return nil, apperr.Classify(err)
		}
		if revoked {
			return nil, apperr.New(apperr.CodePermissionDenied, "session has been signed out")
		}
	}
	userID, _ := claims["sub"].(string)
	if userID == "" {
		return nil, apperr.New(apperr.CodePermissionDenied, "invalid session")
	}
	doc, err := s.store.Get(ctx, colUsers, userID)
	if err != nil {
		return nil, apperr.Classify(err)
	}
	var u domain.User
	if err := store.Decode(doc.Data, &u); err != nil {
		return nil, apperr.Wrap(apperr.CodeUnknown, "corrupt user record", err)
	}
	if u.Disabled {
		return nil, apperr.New(apperr.CodeUserDisabled, "")
	}
	return &u, nil
}

// OnAuthStateChanged registers a watcher and returns its unregister func.
func (s *Service) OnAuthStateChanged(fn StateFunc) func() {
	s.mu.Lock()
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

func (s *Service) notifyState(userID string) {
	s.mu.Lock()
	fns := make([]StateFunc, 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(userID)
	}
}

func (s *Service) issueToken(u *domain.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  u.ID,
		"role": string(u.Role),
		"jti":  uuid.NewString(),
		"iat":  now.Unix(),
		"exp":  now.Add(s.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeUnknown, "could not sign session token", err)
	}
	return signed, nil
}

func (s *Service) parse(tokenString string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		if err == nil {
			err = fmt.Errorf("invalid token")
		}
		return nil, err
	}
	return claims, nil
}
