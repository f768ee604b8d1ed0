package stream

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Misakaka10086/IoT-Platform/common/httputil"
	"github.com/Misakaka10086/IoT-Platform/common/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboards are served from other origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Handler upgrades requests to stream connections. A nil verifier accepts
// every client; otherwise a valid token is required in the token query
// parameter.
func Handler(h *Hub, v *Verifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject := "anonymous"
		if v != nil {
			claims, err := v.Verify(r.URL.Query().Get("token"))
			if err != nil {
				httputil.WriteError(w, http.StatusUnauthorized, "valid token query parameter is required")
				return
			}
			subject = claims.Subject
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.WarnContext(r.Context(), "websocket upgrade failed", logging.Error(err))
			return
		}

		c := newClient(h, conn, subject)
		h.register(c)

		// The request context ends with the handler; the pumps outlive it.
		ctx := context.WithoutCancel(r.Context())
		go c.writePump()
		go c.readPump(ctx)
	}
}
