package operator

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/antialize/simple-admin-sub001/internal/auth"
	"github.com/antialize/simple-admin-sub001/internal/deploy"
	"github.com/antialize/simple-admin-sub001/internal/frame"
	"github.com/antialize/simple-admin-sub001/internal/hostsession"
	"github.com/antialize/simple-admin-sub001/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Deployer starts a deployment job for an already-authorized operator
// action (spec component G).
type Deployer interface {
	StartDeploy(host, project, ref string) (string, error)
	StartDeployRequest(req deploy.Request) (string, error)
}

// Handler serves the operator WebSocket endpoint (spec §4.E), gating
// every action but Login behind an authenticated session.
type Handler struct {
	Hub      *Hub
	Auth     *auth.Service
	Store    *store.Store
	Deployer Deployer
	Hosts    *hostsession.Registry
	Log      *slog.Logger
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn("operator: upgrade failed", "err", err)
		return
	}
	ch := frame.NewWS(conn)
	client := h.Hub.register(ch, r.RemoteAddr)
	defer func() {
		h.Hub.unregister(client)
		client.Close()
	}()

	for {
		var act Action
		if err := ch.Recv(&act); err != nil {
			if !errors.Is(err, frame.ErrTransportClosed) {
				h.Log.Warn("operator: recv error", "err", err)
			}
			return
		}
		h.dispatch(client, act)
	}
}

func (h *Handler) dispatch(c *Client, act Action) {
	if !c.isAuthenticated() && act.Type != "Login" {
		c.enqueue(Reply{MsgID: act.MsgID, Type: "Error", Error: "login required"})
		return
	}

	switch act.Type {
	case "Login":
		h.handleLogin(c, act)
	case "Logout":
		h.handleLogout(c, act)
	case "RequestInitialState":
		h.handleRequestInitialState(c, act)
	case "FetchObject":
		h.handleFetchObject(c, act)
	case "SaveObject":
		h.handleSaveObject(c, act)
	case "DeleteObject":
		h.handleDeleteObject(c, act)
	case "ResetServerState":
		h.handleResetServerState(c, act)
	case "DockerDeployStart":
		h.handleDockerDeployStart(c, act)
	case "ServiceDeployStart":
		h.handleServiceDeployStart(c, act)
	case "DockerListImageTags":
		h.handleDockerListImageTags(c, act)
	case "DockerListImageTagsByHash":
		h.handleDockerListImageTagsByHash(c, act)
	case "DockerListDeployments":
		h.handleDockerListDeployments(c, act)
	case "RunScript":
		h.handleRunScript(c, act)
	case "RunInstant":
		h.handleRunInstant(c, act)
	case "SocketConnect":
		h.handleSocketConnect(c, act)
	case "SocketSend":
		h.handleSocketSend(c, act)
	case "SocketClose":
		h.handleSocketClose(c, act)
	case "DismissMessage":
		h.handleDismissMessage(c, act)
	case "FetchMessageText":
		h.handleFetchMessageText(c, act)
	default:
		c.enqueue(Reply{MsgID: act.MsgID, Type: "Error", Error: fmt.Sprintf("unknown action %q", act.Type)})
	}
}
