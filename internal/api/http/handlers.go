package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"plateful/internal/apperr"
	"plateful/internal/auth"
	"plateful/internal/domain"
	"plateful/internal/retry"
	"plateful/internal/service"
)

// Handler bundles the services behind the public API.
type Handler struct {
	Auth        *auth.Service
	Orders      *service.OrderService
	Restaurants *service.RestaurantService
	Menu        *service.MenuService
	Users       *service.UserService
	Log         zerolog.Logger
}

func NewHandler(a *auth.Service, orders *service.OrderService, restaurants *service.RestaurantService, menu *service.MenuService, users *service.UserService, log zerolog.Logger) *Handler {
	return &Handler{Auth: a, Orders: orders, Restaurants: restaurants, Menu: menu, Users: users, Log: log}
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation(map[string]string{"body": "request body is not valid JSON"})
	}
	return nil
}

// --- auth ---

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

type sessionResponse struct {
	User  domain.User `json:"user"`
	Token string      `json:"token"`
}

func (h *Handler) signUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	user, token, err := h.Auth.SignUp(r.Context(), req.Email, req.Password, domain.Role(req.Role))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeCreated(w, sessionResponse{User: user.Public(), Token: token})
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	user, token, err := h.Auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, sessionResponse{User: user.Public(), Token: token})
}

func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if err := h.Auth.SignOut(r.Context(), token); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, nil)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	writeOK(w, currentUser(r).Public())
}

// --- restaurants ---

func (h *Handler) myRestaurant(w http.ResponseWriter, r *http.Request) {
	rest, err := h.Restaurants.GetByOwner(r.Context(), currentUser(r).ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, rest)
}

func (h *Handler) createRestaurant(w http.ResponseWriter, r *http.Request) {
	var rest domain.Restaurant
	if err := decodeBody(r, &rest); err != nil {
		writeErr(w, err)
		return
	}
	created, err := h.Restaurants.Create(r.Context(), currentUser(r).ID, &rest)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeCreated(w, created)
}

// ownRestaurant resolves the path restaurant and verifies it belongs to
// the caller.
func (h *Handler) ownRestaurant(r *http.Request) (string, error) {
	id := mux.Vars(r)["id"]
	rest, err := h.Restaurants.GetByOwner(r.Context(), currentUser(r).ID)
	if err != nil {
		return "", err
	}
	if rest.ID != id {
		return "", apperr.New(apperr.CodePermissionDenied, "restaurant belongs to another owner")
	}
	return id, nil
}

func (h *Handler) updateRestaurant(w http.ResponseWriter, r *http.Request) {
	id, err := h.ownRestaurant(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var rest domain.Restaurant
	if err := decodeBody(r, &rest); err != nil {
		writeErr(w, err)
		return
	}
	updated, err := h.Restaurants.Update(r.Context(), id, &rest)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, updated)
}

func (h *Handler) publishRestaurant(w http.ResponseWriter, r *http.Request) {
	if err := h.Restaurants.Publish(r.Context(), mux.Vars(r)["id"], currentUser(r).ID); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, nil)
}

// --- menu ---

func (h *Handler) listMenu(w http.ResponseWriter, r *http.Request) {
	items, err := h.Menu.ListItems(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, items)
}

func (h *Handler) createMenuItem(w http.ResponseWriter, r *http.Request) {
	id, err := h.ownRestaurant(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var item domain.MenuItem
	if err := decodeBody(r, &item); err != nil {
		writeErr(w, err)
		return
	}
	created, err := h.Menu.CreateItem(r.Context(), id, &item)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeCreated(w, created)
}

func (h *Handler) updateMenuItem(w http.ResponseWriter, r *http.Request) {
	id, err := h.ownRestaurant(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var item domain.MenuItem
	if err := decodeBody(r, &item); err != nil {
		writeErr(w, err)
		return
	}
	updated, err := h.Menu.UpdateItem(r.Context(), id, mux.Vars(r)["itemId"], &item)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, updated)
}

func (h *Handler) deleteMenuItem(w http.ResponseWriter, r *http.Request) {
	id, err := h.ownRestaurant(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := h.Menu.DeleteItem(r.Context(), id, mux.Vars(r)["itemId"]); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, nil)
}

func (h *Handler) updateAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := h.ownRestaurant(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var req struct {
		Available bool `json:"available"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := h.Menu.UpdateAvailability(r.Context(), id, mux.Vars(r)["itemId"], req.Available); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, nil)
}

// --- orders ---

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var order domain.Order
	if err := decodeBody(r, &order); err != nil {
		writeErr(w, err)
		return
	}
	user := currentUser(r)
	order.CustomerID = user.ID
	if order.CustomerName == "" {
		order.CustomerName = user.Email
	}
	created, err := h.Orders.Create(r.Context(), &order)
	if err != nil {
		writeErr(w, err)
		return
	}
	ordersCreated.Inc()
	writeCreated(w, created)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.Orders.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	user := currentUser(r)
	if order.CustomerID != user.ID {
		rest, err := h.Restaurants.GetByOwner(r.Context(), user.ID)
		if err != nil || rest.ID != order.RestaurantID {
			writeErr(w, apperr.New(apperr.CodePermissionDenied, "order belongs to another account"))
			return
		}
	}
	writeOK(w, order)
}

// updateOrderStatus applies one state-machine step. Retryable failures
// (transaction conflicts, transient storage trouble) are retried here at
// the boundary; terminal codes pass straight through.
func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	rest, err := h.Restaurants.GetByOwner(r.Context(), currentUser(r).ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	orderID := mux.Vars(r)["id"]
	next := domain.OrderStatus(req.Status)

	order, err := retry.Do(r.Context(), func(ctx context.Context) (*domain.Order, error) {
		return h.Orders.UpdateStatus(ctx, orderID, next, rest.ID)
	}, retry.Options{})
	if err != nil {
		writeErr(w, err)
		return
	}
	statusChanges.WithLabelValues(string(order.Status)).Inc()
	writeOK(w, order)
}

func (h *Handler) orderQR(w http.ResponseWriter, r *http.Request) {
	order, err := h.Orders.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	if order.CustomerID != currentUser(r).ID {
		writeErr(w, apperr.New(apperr.CodePermissionDenied, "order belongs to another account"))
		return
	}
	if len(order.PickupQR) == 0 {
		writeErr(w, apperr.New(apperr.CodeNotFound, "no pickup code for this order yet"))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(order.PickupQR)
}

// --- user surface ---

func (h *Handler) addFavorite(w http.ResponseWriter, r *http.Request) {
	if err := h.Users.AddFavorite(r.Context(), currentUser(r).ID, mux.Vars(r)["restaurantId"]); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, nil)
}

func (h *Handler) removeFavorite(w http.ResponseWriter, r *http.Request) {
	if err := h.Users.RemoveFavorite(r.Context(), currentUser(r).ID, mux.Vars(r)["restaurantId"]); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, nil)
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Users.GetSettings(r.Context(), currentUser(r).ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, settings)
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	var settings domain.AppSettings
	if err := decodeBody(r, &settings); err != nil {
		writeErr(w, err)
		return
	}
	settings.UserID = currentUser(r).ID
	updated, err := h.Users.UpdateSettings(r.Context(), &settings)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, updated)
}

func (h *Handler) savePushToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := h.Users.SavePushToken(r.Context(), currentUser(r).ID, req.Token); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, nil)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, map[string]string{"status": "ok"})
}
