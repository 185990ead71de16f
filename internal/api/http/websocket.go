package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"plateful/internal/apperr"
	"plateful/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// CORS is enforced on the REST surface; the feed carries no writes.
	CheckOrigin: func(*http.Request) bool { return true },
}

type feedFrame struct {
	Orders []domain.Order    `json:"orders,omitempty"`
	Items  []domain.MenuItem `json:"items,omitempty"`
	Error  string            `json:"error,omitempty"`
	Code   apperr.Code       `json:"errorCode,omitempty"`
}

// ordersFeed streams the restaurant's order list over a websocket. Every
// change to the underlying collection pushes a fresh frame; listener
// errors are forwarded as frames and keep the socket open, matching the
// retryable semantics of the listener itself.
//
// Browsers cannot set Authorization headers on websocket dials, so the
// session token rides in the query string.
func (h *Handler) ordersFeed(w http.ResponseWriter, r *http.Request) {
	user, err := h.Auth.CurrentUser(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		writeErr(w, err)
		return
	}
	restaurantID := mux.Vars(r)["id"]
	rest, err := h.Restaurants.GetByOwner(r.Context(), user.ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if rest.ID != restaurantID {
		writeErr(w, apperr.New(apperr.CodePermissionDenied, "restaurant belongs to another owner"))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn().Err(err).Msg("websocket upgrade")
		return
	}

	var writeMu sync.Mutex
	send := func(frame feedFrame) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(frame); err != nil {
			h.Log.Debug().Err(err).Msg("websocket write")
		}
	}

	sub, err := h.Orders.ListenByRestaurant(r.Context(), restaurantID, func(orders []domain.Order, err error) {
		if err != nil {
			e := apperr.Classify(err)
			send(feedFrame{Error: e.Message, Code: e.Code})
			return
		}
		send(feedFrame{Orders: orders})
	})
	if err != nil {
		e := apperr.Classify(err)
		send(feedFrame{Error: e.Message, Code: e.Code})
		_ = conn.Close()
		return
	}

	// Drain the read side until the client goes away, then detach.
	go func() {
		defer sub.Cancel()
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// menuFeed streams a restaurant's menu. Like the REST menu listing it
// needs no session, so customer apps can keep a storefront current.
func (h *Handler) menuFeed(w http.ResponseWriter, r *http.Request) {
	restaurantID := mux.Vars(r)["id"]

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn().Err(err).Msg("websocket upgrade")
		return
	}

	var writeMu sync.Mutex
	send := func(frame feedFrame) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(frame); err != nil {
			h.Log.Debug().Err(err).Msg("websocket write")
		}
	}

	sub, err := h.Menu.ListenItems(r.Context(), restaurantID, func(items []domain.MenuItem, err error) {
		if err != nil {
			e := apperr.Classify(err)
			send(feedFrame{Error: e.Message, Code: e.Code})
			return
		}
		if items == nil {
			items = []domain.MenuItem{}
		}
		send(feedFrame{Items: items})
	})
	if err != nil {
		e := apperr.Classify(err)
		send(feedFrame{Error: e.Message, Code: e.Code})
		_ = conn.Close()
		return
	}

	go func() {
		defer sub.Cancel()
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
