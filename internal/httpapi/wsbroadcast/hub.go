// SPDX-License-Identifier: AGPL-3.0-or-later
// accessbroker - subscription entitlement lifecycle engine
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// Package wsbroadcast streams admin events to connected operators over a
// websocket, fed by internal/pubsub so it works the same whether Redis is
// enabled or not.
package wsbroadcast

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sbs-poc/accessbroker/internal/pubsub"
)

// Topic is the single pubsub channel every admin event is published to.
const Topic = "accessbroker:admin:events"

const (
	upgradeBufferSize = 1024
	pingMessage       = "PING"
	pongMessage       = "PONG"
)

// Event is a JSON-serialized notice pushed to every connected operator, e.g.
// a completed reset or a forgiven membership.
type Event struct {
	Kind string    `json:"kind"`
	TGID int64     `json:"tg_id"`
	At   time.Time `json:"at"`
}

// Hub upgrades /ws/events connections and relays every Event published to
// Topic to each connection until it disconnects.
type Hub struct {
	pubsub   pubsub.PubSub
	upgrader websocket.Upgrader
}

// NewHub builds a Hub backed by ps. Origin checking is left to the caller's
// CORS middleware, since the admin surface has no browser cookie session to
// protect.
func NewHub(ps pubsub.PubSub) *Hub {
	return &Hub{
		pubsub: ps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  upgradeBufferSize,
			WriteBufferSize: upgradeBufferSize,
			CheckOrigin:     func(_ *http.Request) bool { return true },
		},
	}
}

// Publish marshals event and publishes it to Topic for every connected
// Handler to relay onward.
func (h *Hub) Publish(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return h.pubsub.Publish(Topic, data)
}

// Handler upgrades the request to a websocket and streams Topic's messages
// to it until the client disconnects or the request context ends. It also
// answers client PING frames with PONG.
func (h *Hub) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("wsbroadcast: upgrade failed", "error", err)
			return
		}
		defer func() {
			if err := conn.Close(); err != nil {
				slog.Error("wsbroadcast: closing connection", "error", err)
			}
		}()

		sub := h.pubsub.Subscribe(Topic)
		defer func() {
			if err := sub.Close(); err != nil {
				slog.Error("wsbroadcast: closing subscription", "error", err)
			}
		}()

		readFailed := make(chan struct{})
		go func() {
			defer close(readFailed)
			for {
				_, msg, err := conn.ReadMessage()
				if err != nil {
					return
				}
				if string(msg) == pingMessage {
					if err := conn.WriteMessage(websocket.TextMessage, []byte(pongMessage)); err != nil {
						return
					}
				}
			}
		}()

		ctx := c.Request.Context()
		channel := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-readFailed:
				return
			case msg, ok := <-channel:
				if !ok {
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}
	}
}
