package echoapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/educonnect/backend/core"
	"github.com/educonnect/backend/core/notif"
	"github.com/educonnect/backend/core/user"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// auth is JWT based; the frontend may live on another origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

type streamApi struct {
	broker *notif.Broker
	usrSvc user.Service
	logger core.Logger
}

func registerStreamAPI(g *echo.Group, jwt echo.MiddlewareFunc, broker *notif.Broker, usrSvc user.Service, logger core.Logger) {
	api := streamApi{broker: broker, usrSvc: usrSvc, logger: logger}
	g.GET("/stream", api.connect, jwt)
}

// subscribeCommand is what a connected client may send to adjust its channels.
type subscribeCommand struct {
	Action  string `json:"action"` // "join" | "leave"
	Channel string `json:"channel"`
}

// connect upgrades to a websocket, joins the user's channel set and streams
// events until the peer goes away.
func (api *streamApi) connect(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return errors.Wrap(err, "upgrading to websocket")
	}

	channels := notif.ChannelsForUser(ctxUsr)
	allowed := make(map[string]bool, len(channels))
	for _, ch := range channels {
		allowed[ch] = true
	}

	sess := api.broker.Connect(uuid.New().String(), ctxUsr.ID)
	api.broker.Join(sess.ID, channels...)

	go api.readPump(conn, sess, allowed)
	api.writePump(conn, sess)
	return nil
}

// readPump consumes subscribe commands until the connection errors out, at
// which point the session is torn down and writePump unblocks.
func (api *streamApi) readPump(conn *websocket.Conn, sess *notif.Session, allowed map[string]bool) {
	defer api.broker.Disconnect(sess.ID)

	for {
		var cmd subscribeCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				api.logger.Debug("websocket closed unexpectedly", err)
			}
			return
		}
		if !allowed[cmd.Channel] {
			continue
		}
		switch cmd.Action {
		case "join":
			api.broker.Join(sess.ID, cmd.Channel)
		case "leave":
			api.broker.Leave(sess.ID, cmd.Channel)
		}
	}
}

// writePump forwards broker events to the peer until the session closes.
func (api *streamApi) writePump(conn *websocket.Conn, sess *notif.Session) {
	defer func(conn *websocket.Conn) { _ = conn.Close() }(conn)

	for event := range sess.Events() {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(event); err != nil {
			api.broker.Disconnect(sess.ID)
			// drain remaining events so Disconnect's close completes
			for range sess.Events() {
			}
			return
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
}
