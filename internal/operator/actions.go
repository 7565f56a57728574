package operator

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/antialize/simple-admin-sub001/internal/apperr"
	"github.com/antialize/simple-admin-sub001/internal/auth"
	"github.com/antialize/simple-admin-sub001/internal/deploy"
	"github.com/antialize/simple-admin-sub001/internal/hostsession"
	"github.com/antialize/simple-admin-sub001/internal/metrics"
	"github.com/antialize/simple-admin-sub001/internal/proxy"
	"github.com/antialize/simple-admin-sub001/internal/store"
)

// replyErr sends a classified Error reply so a richer operator client can
// branch on kind (e.g. "not_found" vs "conflict") instead of matching on
// the message string (spec §7).
func (h *Handler) replyErr(c *Client, act Action, kind apperr.Kind, err error) {
	c.enqueue(Reply{MsgID: act.MsgID, Type: "Error", Error: err.Error(), ErrorKind: kind.String()})
}

func (h *Handler) handleLogin(c *Client, act Action) {
	var req auth.LoginRequest
	if len(act.Data) > 0 {
		if err := json.Unmarshal(act.Data, &req); err != nil {
			c.enqueue(Reply{MsgID: act.MsgID, Type: "Error", Error: "bad login payload"})
			return
		}
	}

	reply, newAuth, err := h.Auth.HandleLogin(c.currentSID(), c.host, req)
	if err != nil && !errors.Is(err, auth.ErrInternalAuth) {
		c.enqueue(Reply{MsgID: act.MsgID, Type: "Error", Error: err.Error()})
		return
	}
	if newAuth.Session != "" {
		c.setStatus(newAuth)
	}
	c.enqueue(Reply{MsgID: act.MsgID, Type: "AuthStatus", Data: reply})
}

func (h *Handler) handleLogout(c *Client, act Action) {
	var req struct {
		ForgetPwd bool `json:"forget_pwd"`
		ForgetOtp bool `json:"forget_otp"`
	}
	if len(act.Data) > 0 {
		json.Unmarshal(act.Data, &req)
	}
	sid := c.currentSID()
	if sid != "" {
		if err := h.Auth.Logout(sid, req.ForgetPwd, req.ForgetOtp); err != nil {
			c.enqueue(Reply{MsgID: act.MsgID, Type: "Error", Error: err.Error()})
			return
		}
	}
	c.clearStatus()
	c.enqueue(Reply{MsgID: act.MsgID, Type: "AuthStatus", Data: auth.AuthStatus{}})
}

// initialState is the index handed back by RequestInitialState: a
// summary per tracked object type plus the recent message log (spec
// §4.E / §12 supplemented feature).
type initialState struct {
	Users    []store.ObjectSummary `json:"users"`
	Hosts    []store.ObjectSummary `json:"hosts"`
	Messages []store.Message       `json:"messages"`
}

func (h *Handler) handleRequestInitialState(c *Client, act Action) {
	users, err := h.Store.ListObjects(store.ObjectTypeUser)
	if err != nil {
		c.enqueue(Reply{MsgID: act.MsgID, Type: "Error", Error: err.Error()})
		return
	}
	hosts, err := h.Store.ListObjects(store.ObjectTypeHost)
	if err != nil {
		c.enqueue(Reply{MsgID: act.MsgID, Type: "Error", Error: err.Error()})
		return
	}
	messages, err := h.Store.ListRecentMessages()
	if err != nil {
		c.enqueue(Reply{MsgID: act.MsgID, Type: "Error", Error: err.Error()})
		return
	}
	c.enqueue(Reply{MsgID: act.MsgID, Type: "InitialState", Data: initialState{Users: users, Hosts: hosts, Messages: messages}})
}

func (h *Handler) handleFetchObject(c *Client, act Action) {
	var req objectPayload
	if err := json.Unmarshal(act.Data, &req); err != nil {
		c.enqueue(Reply{MsgID: act.MsgID, Type: "Error", Error: "bad fetch payload"})
		return
	}
	obj, err := h.Store.GetObject(req.ID)
	if err != nil {
		h.replyErr(c, act, apperr.KindInternal, err)
		return
	}
	if obj == nil {
		h.replyErr(c, act, apperr.KindNotFound, apperr.New(apperr.KindNotFound, "fetch_object", apperr.ErrNotFound))
		return
	}
	c.enqueue(Reply{MsgID: act.MsgID, Type: "Object", Data: obj})
}

// requireAdmin replies with an Error and returns false if the client's
// current status isn't admin — object mutation and ResetServerState are
// admin-gated (spec §4.E).
func (h *Handler) requireAdmin(c *Client, act Action) bool {
	c.mu.Lock()
	isAdmin := c.status.Admin
	c.mu.Unlock()
	if !isAdmin {
		h.replyErr(c, act, apperr.KindAuth, errors.New("admin required"))
		return false
	}
	return true
}

func (h *Handler) handleSaveObject(c *Client, act Action) {
	if !h.requireAdmin(c, act) {
		return
	}
	var req objectPayload
	if err := json.Unmarshal(act.Data, &req); err != nil {
		c.enqueue(Reply{MsgID: act.MsgID, Type: "Error", Error: "bad save payload"})
		return
	}

	c.mu.Lock()
	author := c.status.User
	c.mu.Unlock()

	id, version, err := h.Store.ChangeObject(store.Object{
		ID:       req.ID,
		Type:     req.Type,
		Name:     req.Name,
		Category: req.Category,
		Comment:  req.Comment,
		Content:  req.Content,
	}, author)
	if err != nil {
		h.replyErr(c, act, apperr.KindConflict, err)
		return
	}
	c.enqueue(Reply{MsgID: act.MsgID, Type: "ObjectSaved", Data: store.ObjectSummary{ID: id, Type: req.Type, Name: req.Name}, Error: ""})
	_ = version
}

func (h *Handler) handleDeleteObject(c *Client, act Action) {
	if !h.requireAdmin(c, act) {
		return
	}
	var req objectPayload
	if err := json.Unmarshal(act.Data, &req); err != nil {
		c.enqueue(Reply{MsgID: act.MsgID, Type: "Error", Error: "bad delete payload"})
		return
	}

	c.mu.Lock()
	author := c.status.User
	c.mu.Unlock()

	if err := h.Store.DeleteObject(req.ID, author); err != nil {
		h.replyErr(c, act, apperr.KindInternal, err)
		return
	}
	c.enqueue(Reply{MsgID: act.MsgID, Type: "ObjectDeleted", Data: req.ID})
}

// handleResetServerState re-publishes the full initial state to just the
// requesting client, used by the operator UI to recover from local state
// drift without reconnecting (admin-gated per spec §4.E).
func (h *Handler) handleResetServerState(c *Client, act Action) {
	if !h.requireAdmin(c, act) {
		return
	}
	h.handleRequestInitialState(c, act)
}

func (h *Handler) handleDockerDeployStart(c *Client, act Action) {
	c.mu.Lock()
	canDeploy := c.status.DockerDeploy
	c.mu.Unlock()
	if !canDeploy {
		h.replyErr(c, act, apperr.KindAuth, errors.New("docker_deploy capability required"))
		return
	}
	if h.Deployer == nil {
		c.enqueue(Reply{MsgID: act.MsgID, Type: "Error", Error: "deployment orchestrator unavailable"})
		return
	}

	var req struct {
		Host             string            `json:"host"`
		Project          string            `json:"project"`
		Ref              string            `json:"ref"`
		Container        string            `json:"container,omitempty"`
		RestoreOnFailure bool              `json:"restore_on_failure"`
		Description      string            `json:"description,omitempty"`
		DockerAuth       string            `json:"docker_auth,omitempty"`
		ExtraEnv         map[string]string `json:"extra_env,omitempty"`
		User             string            `json:"user,omitempty"`
	}
	if err := json.Unmarshal(act.Data, &req); err != nil {
		c.enqueue(Reply{MsgID: act.MsgID, Type: "Error", Error: "bad deploy payload"})
		return
	}

	deployID, err := h.Deployer.StartDeployRequest(deploy.Request{
		Host:             req.Host,
		Project:          req.Project,
		Container:        req.Container,
		Image:            req.Ref,
		RestoreOnFailure: req.RestoreOnFailure,
		Description:      req.Description,
		DockerAuth:       req.DockerAuth,
		ExtraEnv:         req.ExtraEnv,
		User:             req.User,
	})
	if err != nil {
		h.replyErr(c, act, apperr.KindConflict, err)
		return
	}
	c.enqueue(Reply{MsgID: act.MsgID, Type: "DockerDeployStarted", Data: deployID})
}

// handleServiceDeployStart is DockerDeployStart's sibling
// (original_source/src/bin/sadmin/service_deploy.rs): the operator
// supplies a full service description (a YAML document, possibly with
// "{{{key}}}" template placeholders resolved client-side before this
// call) instead of a bare image ref, and it's carried as-is into the
// deploy_service job's required Description field.
func (h *Handler) handleServiceDeployStart(c *Client, act Action) {
	c.mu.Lock()
	canDeploy := c.status.DockerDeploy
	c.mu.Unlock()
	if !canDeploy {
		h.replyErr(c, act, apperr.KindAuth, errors.New("docker_deploy capability required"))
		return
	}
	if h.Deployer == nil {
		c.enqueue(Reply{MsgID: act.MsgID, Type: "Error", Error: "deployment orchestrator unavailable"})
		return
	}

	var req struct {
		Host        string `json:"host"`
		Project     string `json:"project"`
		Image       string `json:"image,omitempty"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(act.Data, &req); err != nil {
		c.enqueue(Reply{MsgID: act.MsgID, Type: "Error", Error: "bad service deploy payload"})
		return
	}

	deployID, err := h.Deployer.StartDeployRequest(deploy.Request{
		Host:             req.Host,
		Project:          req.Project,
		Image:            req.Image,
		Description:      req.Description,
		RestoreOnFailure: true,
	})
	if err != nil {
		h.replyErr(c, act, apperr.KindConflict, err)
		return
	}
	c.enqueue(Reply{MsgID: act.MsgID, Type: "DockerDeployStarted", Data: deployID})
}

// handleDockerListImageTags returns every tracked pushed image/tag (spec
// §4.E Docker action group; original_source/src/bin/sadmin/
// list_images.rs's DockerListImageTags).
func (h *Handler) handleDockerListImageTags(c *Client, act Action) {
	tags, err := h.Store.ListImageTags()
	if err != nil {
		h.replyErr(c, act, apperr.KindInternal, err)
		return
	}
	c.enqueue(Reply{MsgID: act.MsgID, Type: "DockerListImageTagsRes", Data: tags})
}

// handleDockerListImageTagsByHash is DockerListImageTags scoped to a
// specific set of content hashes (list_images.rs's `--hash` mode).
func (h *Handler) handleDockerListImageTagsByHash(c *Client, act Action) {
	var req struct {
		Hash []string `json:"hash"`
	}
	if err := json.Unmarshal(act.Data, &req); err != nil {
		c.enqueue(Reply{MsgID: act.MsgID, Type: "Error", Error: "bad image tag lookup payload"})
		return
	}
	tags, err := h.Store.ListImageTagsByHash(req.Hash)
	if err != nil {
		h.replyErr(c, act, apperr.KindInternal, err)
		return
	}
	c.enqueue(Reply{MsgID: act.MsgID, Type: "DockerListImageByHashRes", Data: tags})
}

// handleDockerListDeployments returns deployment history for a host
// (spec §4.E Docker action group, backed by the deployments table
// Component G already writes).
func (h *Handler) handleDockerListDeployments(c *Client, act Action) {
	var req struct {
		Host string `json:"host"`
	}
	if err := json.Unmarshal(act.Data, &req); err != nil {
		c.enqueue(Reply{MsgID: act.MsgID, Type: "Error", Error: "bad list deployments payload"})
		return
	}
	deployments, err := h.Store.ListDeployments(req.Host)
	if err != nil {
		h.replyErr(c, act, apperr.KindInternal, err)
		return
	}
	c.enqueue(Reply{MsgID: act.MsgID, Type: "DockerListDeploymentsRes", Data: deployments})
}

// runScriptPayload is the operator-facing request for RunScript/
// RunInstant (spec §1/§2/§6's "ad hoc script execution" responsibility),
// mirroring the agent wire protocol's RunScriptMessage/RunInstantMessage
// fields closely enough that handleRunScript/handleRunInstant can copy
// them straight into the job envelope.
type runScriptPayload struct {
	Host        string          `json:"host"`
	Name        string          `json:"name"`
	Interpreter string          `json:"interperter"`
	Content     string          `json:"content"`
	Args        []string        `json:"args,omitempty"`
	InputJSON   json.RawMessage `json:"input_json,omitempty"`
	OutputType  string          `json:"output_type,omitempty"`
	StdinType   string          `json:"stdin_type,omitempty"`
	StdoutType  string          `json:"stdout_type,omitempty"`
	StderrType  string          `json:"stderr_type,omitempty"`
}

// handleRunScript starts a RunScript job on a connected agent and streams
// its Data/Success/Failure envelopes back to the requesting operator as
// they arrive, admin-gated the same way terminal/socket proxying is.
func (h *Handler) handleRunScript(c *Client, act Action) {
	if !h.requireAdmin(c, act) {
		return
	}
	var req runScriptPayload
	if err := json.Unmarshal(act.Data, &req); err != nil {
		c.enqueue(Reply{MsgID: act.MsgID, Type: "Error", Error: "bad run_script payload"})
		return
	}
	client, ok := h.hostForScript(c, act, req.Host)
	if !ok {
		return
	}

	job, err := client.StartJob(hostsession.Envelope{
		Type:        hostsession.MessageRunScript,
		Name:        req.Name,
		Interpreter: req.Interpreter,
		Content:     req.Content,
		Args:        req.Args,
		InputJSON:   req.InputJSON,
		StdinType:   hostsession.RunScriptStdinType(req.StdinType),
		StdoutType:  hostsession.RunScriptOutType(req.StdoutType),
		StderrType:  hostsession.RunScriptOutType(req.StderrType),
	})
	if err != nil {
		h.replyErr(c, act, apperr.KindTransport, err)
		return
	}
	metrics.JobsStarted.WithLabelValues("run_script").Inc()
	go h.pumpScriptJob(c, act.MsgID, job)
}

// handleRunInstant is RunScript's no-stdin, single-shot sibling
// (client_message.rs's RunInstantMessage): no stdin_type beyond "none",
// and output_type selects how the result's data is encoded.
func (h *Handler) handleRunInstant(c *Client, act Action) {
	if !h.requireAdmin(c, act) {
		return
	}
	var req runScriptPayload
	if err := json.Unmarshal(act.Data, &req); err != nil {
		c.enqueue(Reply{MsgID: act.MsgID, Type: "Error", Error: "bad run_instant payload"})
		return
	}
	client, ok := h.hostForScript(c, act, req.Host)
	if !ok {
		return
	}

	job, err := client.StartJob(hostsession.Envelope{
		Type:        hostsession.MessageRunInstant,
		Name:        req.Name,
		Interpreter: req.Interpreter,
		Content:     req.Content,
		Args:        req.Args,
		OutputType:  hostsession.RunInstantOutputType(req.OutputType),
		StdinType:   hostsession.RunScriptStdinType(hostsession.RunInstantStdinNone),
	})
	if err != nil {
		h.replyErr(c, act, apperr.KindTransport, err)
		return
	}
	metrics.JobsStarted.WithLabelValues("run_instant").Inc()
	go h.pumpScriptJob(c, act.MsgID, job)
}

// hostForScript resolves the named, connected agent for a RunScript/
// RunInstant request, replying with a classified Error if it can't.
func (h *Handler) hostForScript(c *Client, act Action, host string) (*hostsession.HostClient, bool) {
	if h.Hosts == nil {
		h.replyErr(c, act, apperr.KindInternal, errors.New("host registry unavailable"))
		return nil, false
	}
	client := h.Hosts.Get(host)
	if client == nil {
		h.replyErr(c, act, apperr.KindNotFound, apperr.New(apperr.KindNotFound, "run_script", apperr.ErrNotFound))
		return nil, false
	}
	return client, true
}

// pumpScriptJob relays a RunScript/RunInstant job's envelopes back to the
// requesting operator until it reaches a terminal Success/Failure or the
// agent connection is lost, then releases the job.
func (h *Handler) pumpScriptJob(c *Client, msgID string, job *hostsession.JobHandle) {
	defer job.Close()
	for {
		env, ok := job.Recv()
		if !ok {
			c.enqueue(Reply{MsgID: msgID, Type: "RunScriptFailure", Error: "agent connection lost"})
			return
		}
		switch env.Type {
		case hostsession.MessageData:
			c.enqueue(Reply{MsgID: msgID, Type: "RunScriptData", Data: env})
		case hostsession.MessageSuccess:
			c.enqueue(Reply{MsgID: msgID, Type: "RunScriptSuccess", Data: env})
			return
		case hostsession.MessageFailure:
			c.enqueue(Reply{MsgID: msgID, Type: "RunScriptFailure", Data: env})
			return
		}
	}
}

// handleDismissMessage marks a host message dismissed (spec §12
// supplemented "dismissible host messages" feature).
func (h *Handler) handleDismissMessage(c *Client, act Action) {
	var req struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(act.Data, &req); err != nil {
		c.enqueue(Reply{MsgID: act.MsgID, Type: "Error", Error: "bad dismiss message payload"})
		return
	}
	if err := h.Store.DismissMessage(req.ID); err != nil {
		h.replyErr(c, act, apperr.KindInternal, err)
		return
	}
	c.enqueue(Reply{MsgID: act.MsgID, Type: "MessageDismissed", Data: req.ID})
}

// handleFetchMessageText returns the untruncated body of a message that
// was shortened in ListRecentMessages/AddMessage's broadcast payload.
func (h *Handler) handleFetchMessageText(c *Client, act Action) {
	var req struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(act.Data, &req); err != nil {
		c.enqueue(Reply{MsgID: act.MsgID, Type: "Error", Error: "bad fetch message payload"})
		return
	}
	text, err := h.Store.GetMessageFullText(req.ID)
	if err != nil {
		h.replyErr(c, act, apperr.KindNotFound, err)
		return
	}
	c.enqueue(Reply{MsgID: act.MsgID, Type: "MessageText", Data: text})
}

// socketPayload covers SocketConnect (host+addr)/SocketSend/SocketClose
// (socket_id[+data]) — the TCP-proxy half of component F (spec §4.F).
type socketPayload struct {
	Host     string `json:"host,omitempty"`
	Addr     string `json:"addr,omitempty"`
	SocketID string `json:"socket_id,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

func (h *Handler) handleSocketConnect(c *Client, act Action) {
	if !h.requireAdmin(c, act) {
		return
	}
	var req socketPayload
	if err := json.Unmarshal(act.Data, &req); err != nil {
		c.enqueue(Reply{MsgID: act.MsgID, Type: "Error", Error: "bad socket connect payload"})
		return
	}
	if h.Hosts == nil {
		h.replyErr(c, act, apperr.KindInternal, errors.New("host registry unavailable"))
		return
	}
	host := h.Hosts.Get(req.Host)
	if host == nil {
		h.replyErr(c, act, apperr.KindNotFound, apperr.New(apperr.KindNotFound, "socket_connect", apperr.ErrNotFound))
		return
	}
	sess, err := proxy.StartSocket(host, req.Addr)
	if err != nil {
		h.replyErr(c, act, apperr.KindTransport, err)
		return
	}

	socketID := uuid.NewString()
	c.addSocket(socketID, sess)
	go h.pumpSocket(c, socketID, sess)

	c.enqueue(Reply{MsgID: act.MsgID, Type: "SocketConnected", Data: socketPayload{SocketID: socketID}})
}

// pumpSocket relays data read from a proxied connection back to the
// operator as SocketData pushes until the job ends, then reports
// SocketClosed.
func (h *Handler) pumpSocket(c *Client, socketID string, sess *proxy.SocketSession) {
	for {
		data, ok := sess.Recv()
		if !ok {
			c.removeSocket(socketID)
			c.enqueue(Reply{Type: "SocketClosed", Data: socketPayload{SocketID: socketID}})
			return
		}
		c.enqueue(Reply{Type: "SocketData", Data: socketPayload{SocketID: socketID, Data: data}})
	}
}

func (h *Handler) handleSocketSend(c *Client, act Action) {
	var req socketPayload
	if err := json.Unmarshal(act.Data, &req); err != nil {
		c.enqueue(Reply{MsgID: act.MsgID, Type: "Error", Error: "bad socket send payload"})
		return
	}
	sess := c.getSocket(req.SocketID)
	if sess == nil {
		h.replyErr(c, act, apperr.KindNotFound, apperr.New(apperr.KindNotFound, "socket_send", apperr.ErrNotFound))
		return
	}
	if err := sess.Send(req.Data); err != nil {
		h.replyErr(c, act, apperr.KindTransport, err)
	}
}

func (h *Handler) handleSocketClose(c *Client, act Action) {
	var req socketPayload
	if err := json.Unmarshal(act.Data, &req); err != nil {
		c.enqueue(Reply{MsgID: act.MsgID, Type: "Error", Error: "bad socket close payload"})
		return
	}
	if sess := c.removeSocket(req.SocketID); sess != nil {
		sess.Close()
	}
}
