package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// NewRouter wires every endpoint. Writes and anything user-scoped sit
// behind bearer auth; restaurant menus are readable anonymously so the
// customer app can browse before sign-in.
func NewRouter(h *Handler) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/signup", h.signUp).Methods(http.MethodPost)
	api.HandleFunc("/auth/signin", h.signIn).Methods(http.MethodPost)
	api.HandleFunc("/auth/signout", h.signOut).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", h.requireAuth(h.me)).Methods(http.MethodGet)

	api.HandleFunc("/restaurants", h.requireAuth(h.createRestaurant)).Methods(http.MethodPost)
	api.HandleFunc("/restaurants/mine", h.requireAuth(h.myRestaurant)).Methods(http.MethodGet)
	api.HandleFunc("/restaurants/{id}", h.requireAuth(h.updateRestaurant)).Methods(http.MethodPut)
	api.HandleFunc("/restaurants/{id}/publish", h.requireAuth(h.publishRestaurant)).Methods(http.MethodPost)

	api.HandleFunc("/restaurants/{id}/menu", h.listMenu).Methods(http.MethodGet)
	api.HandleFunc("/restaurants/{id}/menu", h.requireAuth(h.createMenuItem)).Methods(http.MethodPost)
	api.HandleFunc("/restaurants/{id}/menu/{itemId}", h.requireAuth(h.updateMenuItem)).Methods(http.MethodPut)
	api.HandleFunc("/restaurants/{id}/menu/{itemId}", h.requireAuth(h.deleteMenuItem)).Methods(http.MethodDelete)
	api.HandleFunc("/restaurants/{id}/menu/{itemId}/availability", h.requireAuth(h.updateAvailability)).Methods(http.MethodPatch)

	api.HandleFunc("/orders", h.requireAuth(h.createOrder)).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}", h.requireAuth(h.getOrder)).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/status", h.requireAuth(h.updateOrderStatus)).Methods(http.MethodPatch)
	api.HandleFunc("/orders/{id}/qrcode", h.requireAuth(h.orderQR)).Methods(http.MethodGet)

	api.HandleFunc("/restaurants/{id}/orders/ws", h.ordersFeed).Methods(http.MethodGet)
	api.HandleFunc("/restaurants/{id}/menu/ws", h.menuFeed).Methods(http.MethodGet)

	api.HandleFunc("/users/me/favorites/{restaurantId}", h.requireAuth(h.addFavorite)).Methods(http.MethodPost)
	api.HandleFunc("/users/me/favorites/{restaurantId}", h.requireAuth(h.removeFavorite)).Methods(http.MethodDelete)
	api.HandleFunc("/users/me/settings", h.requireAuth(h.getSettings)).Methods(http.MethodGet)
	api.HandleFunc("/users/me/settings", h.requireAuth(h.updateSettings)).Methods(http.MethodPut)
	api.HandleFunc("/users/me/push-token", h.requireAuth(h.savePushToken)).Methods(http.MethodPut)

	var handler http.Handler = r
	handler = metricsMiddleware(handler)
	handler = loggingMiddleware(h.Log)(handler)
	handler = recoverMiddleware(h.Log)(handler)
	return cors.Default().Handler(handler)
}
