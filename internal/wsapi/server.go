// Package wsapi is the WebSocket front-end of spec.md §6: a line-oriented
// command protocol (create/close/gkeys/put/dput/get/aget/resolve/aresolve/
// remove/observe) carried one command per text frame, grounded on
// original_source/dstore/web_store.py's WebStore.handle_command dispatch
// table and built on gorilla/websocket the way Eggwite-Tether's
// src/websocket/server.go upgrades, registers, and tears down connections.
package wsapi

import (
	"net/http"
	"strconv"
	"strings"
	"sync"

	"dstore/internal/dstore"
	"dstore/internal/restapi"
	"dstore/internal/wire"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Server upgrades HTTP connections to WebSocket and dispatches the
// command protocol against a shared Manager of dstore.Store instances —
// the same Manager type the REST front-end uses, since both front-ends
// address the same multi-store-per-process model.
type Server struct {
	manager  *restapi.Manager
	upgrader websocket.Upgrader
	log      *logrus.Entry
}

// NewServer builds a Server bound to manager.
func NewServer(manager *restapi.Manager, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	return &Server{
		manager: manager,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log.WithField("component", "wsapi"),
	}
}

// conn bundles a websocket.Conn with the write mutex every handler and
// every observer dispatch must hold, mirroring connState.writeMu in
// Eggwite-Tether's websocket server.
type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *conn) send(line string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.WriteMessage(websocket.TextMessage, []byte(line))
}

// ServeHTTP upgrades the connection and runs the command read loop until
// the client disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	c := &conn{ws: ws}
	defer ws.Close()

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return
		}
		s.handle(c, string(msg))
	}
}

func (s *Server) handle(c *conn, line string) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		s.log.WithField("line", line).Debug("ignoring malformed command")
		return
	}
	cid, sid, args := fields[0], fields[1], fields[2:]

	switch cid {
	case "create":
		s.handleCreate(c, sid, args)
	case "close":
		s.handleClose(c, sid)
	default:
		store, ok := s.manager.Get(sid)
		if !ok {
			c.send("NOK " + cid + " " + sid)
			return
		}
		s.handleStoreCommand(c, store, cid, sid, args)
	}
}

func (s *Server) handleCreate(c *conn, sid string, args []string) {
	if _, exists := s.manager.Get(sid); exists {
		c.send("OK create " + sid)
		return
	}
	if len(args) < 3 {
		c.send("NOK create " + sid)
		return
	}
	size, err := strconv.Atoi(args[2])
	if err != nil {
		c.send("NOK create " + sid)
		return
	}
	if err := s.manager.Create(sid, args[0], args[1], size); err != nil {
		c.send("NOK create " + sid)
		return
	}
	c.send("OK create " + sid)
}

func (s *Server) handleClose(c *conn, sid string) {
	s.manager.Destroy(sid)
	c.send("OK close " + sid)
}

func (s *Server) handleStoreCommand(c *conn, store *dstore.Store, cid, sid string, args []string) {
	switch cid {
	case "put":
		if len(args) < 2 {
			c.send("NOK put " + sid)
			return
		}
		store.Put(args[0], strings.Join(args[1:], " "))
		c.send("OK put " + sid + " " + args[0])

	case "dput":
		if len(args) < 1 {
			c.send("NOK dput " + sid)
			return
		}
		uri := args[0]
		var jsonPatch []byte
		var inline string
		if len(args) > 1 {
			body := strings.Join(args[1:], " ")
			if strings.HasPrefix(strings.TrimSpace(body), "{") {
				jsonPatch = []byte(body)
			} else {
				inline = body
			}
		}
		if _, err := store.DPut(uri, jsonPatch, inline); err != nil {
			c.send("NOK dput " + sid)
			return
		}
		c.send("OK dput " + sid + " " + uri)

	case "remove":
		if len(args) < 1 {
			c.send("NOK remove " + sid)
			return
		}
		store.Remove(args[0])
		c.send("OK remove " + sid + " " + args[0])

	case "get":
		if len(args) < 1 {
			c.send("NOK get " + sid)
			return
		}
		value, _ := store.Get(args[0])
		c.send("value " + sid + " " + args[0] + " " + value)

	case "resolve":
		if len(args) < 1 {
			c.send("NOK resolve " + sid)
			return
		}
		value, _ := store.Resolve(args[0])
		c.send("value " + sid + " " + args[0] + " " + value)

	case "aget":
		if len(args) < 1 {
			c.send("NOK aget " + sid)
			return
		}
		entries := store.GetAll(args[0])
		c.send("values " + sid + " " + args[0] + " " + joinEntries(entries))

	case "aresolve":
		if len(args) < 1 {
			c.send("NOK aresolve " + sid)
			return
		}
		entries := store.ResolveAll(args[0])
		c.send("values " + sid + " " + args[0] + " " + joinEntries(entries))

	case "gkeys":
		keys := store.Keys()
		c.send("keys " + sid + " " + strings.Join(keys, "|"))

	case "observe":
		if len(args) < 2 {
			c.send("NOK observe " + sid)
			return
		}
		uri, cookie := args[0], args[1]
		store.Observe(uri, func(key string, value *string, version *int64) {
			v := ""
			if value != nil {
				v = *value
			}
			c.send(cookie + " " + key + " " + v)
		})
		c.send("OK observe " + sid + " " + uri + " " + cookie)

	default:
		c.send("NOK " + cid + " " + sid)
	}
}

func joinEntries(entries []wire.KV) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, e.Key+"@"+e.Value)
	}
	return strings.Join(parts, "|")
}
