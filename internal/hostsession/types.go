// Package hostsession is the Host Session Layer (spec component D): it
// accepts agent TLS connections, authenticates them against the host
// store, and demultiplexes the framed duplex channel into per-job queues
// so Components F and G can drive individual jobs without seeing each
// other's traffic.
package hostsession

import "encoding/json"

// ControlJobID is the reserved job id for agent-originated control
// traffic that isn't tied to a server-started job (e.g. unsolicited
// status messages).
const ControlJobID uint64 = 0

// ServerJobIDBase is the first id the server allocates for jobs it
// starts on a host, partitioning the job-id space away from
// ControlJobID and any future agent-originated id range below it
// (original_source/server-rs/src/hostclient.rs uses the same 2^41 base).
const ServerJobIDBase uint64 = 1 << 41

// MessageType is the wire discriminant of the tagged union exchanged
// with an agent once authenticated (spec §6). It mirrors the internally
// tagged enum in original_source/src/bin/sadmin/client_message.rs:
// one flat JSON object per message, "type" naming the variant and all
// of that variant's fields inlined alongside it.
type MessageType string

const (
	MessageRunInstant    MessageType = "run_instant"
	MessageRunScript     MessageType = "run_script"
	MessagePing          MessageType = "ping"
	MessagePong          MessageType = "pong"
	MessageFailure       MessageType = "failure"
	MessageSuccess       MessageType = "success"
	MessageKill          MessageType = "kill"
	MessageData          MessageType = "data"
	MessageDeployService MessageType = "deploy_service"
)

// DataSource marks which stream a Data message carries, when it isn't
// implied by context (stdin messages from the server generally omit it).
type DataSource string

const (
	DataStdin  DataSource = "stdin"
	DataStdout DataSource = "stdout"
	DataStderr DataSource = "stderr"
)

// FailureType classifies a Failure message.
type FailureType string

const (
	FailureScript      FailureType = "script"
	FailureUnknownTask FailureType = "unknown_task"
	FailureException   FailureType = "exception"
)

// RunInstantOutputType selects how a RunInstant job's output is encoded.
type RunInstantOutputType string

const (
	RunInstantOutputText   RunInstantOutputType = "text"
	RunInstantOutputBase64 RunInstantOutputType = "base64"
	RunInstantOutputJSON   RunInstantOutputType = "json"
	RunInstantOutputUTF8   RunInstantOutputType = "utf-8"
)

// RunInstantStdinType is always "none": RunInstant jobs never take stdin.
type RunInstantStdinType string

const RunInstantStdinNone RunInstantStdinType = "none"

// RunScriptStdinType selects how a RunScript job's stdin is fed.
type RunScriptStdinType string

const (
	RunScriptStdinNone      RunScriptStdinType = "none"
	RunScriptStdinBinary    RunScriptStdinType = "binary"
	RunScriptStdinGivenJSON RunScriptStdinType = "given_json"
)

// RunScriptOutType selects how a RunScript job's stdout/stderr is
// returned.
type RunScriptOutType string

const (
	RunScriptOutNone        RunScriptOutType = "none"
	RunScriptOutBinary      RunScriptOutType = "binary"
	RunScriptOutText        RunScriptOutType = "text"
	RunScriptOutBlockedJSON RunScriptOutType = "blocked_json"
)

// Envelope is every message exchanged on the job-multiplexed connection
// to an agent, flattened into one struct the way the Rust side's
// internally tagged enum serializes to one flat JSON object. Only the
// fields relevant to Type are populated; the rest are omitted from the
// wire form via omitempty.
//
// Auth is handled separately by AuthRequest/AuthResponse before this
// envelope's framing begins, matching how the agent treats the initial
// handshake outside the job-addressed message loop.
type Envelope struct {
	Type MessageType `json:"type"`
	ID   uint64      `json:"id"`

	// RunInstant / RunScript
	Name        string          `json:"name,omitempty"`
	Interpreter string          `json:"interperter,omitempty"`
	Content     string          `json:"content,omitempty"`
	Args        []string        `json:"args,omitempty"`
	InputJSON   json.RawMessage `json:"input_json,omitempty"`

	// RunInstant only
	OutputType RunInstantOutputType `json:"output_type,omitempty"`
	StdinType  RunScriptStdinType   `json:"stdin_type,omitempty"`

	// RunScript only (overlaps StdinType with RunInstant above)
	StdoutType RunScriptOutType `json:"stdout_type,omitempty"`
	StderrType RunScriptOutType `json:"stderr_type,omitempty"`

	// Data
	Source DataSource      `json:"source,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	EOF    *bool           `json:"eof,omitempty"`

	// Failure
	FailureType FailureType `json:"failure_type,omitempty"`
	Stdout      string      `json:"stdout,omitempty"`
	Stderr      string      `json:"stderr,omitempty"`
	Message     string      `json:"message,omitempty"`

	// Success (Code is shared with Failure)
	Code *int `json:"code,omitempty"`

	// DeployService
	Image       string            `json:"image,omitempty"`
	Description string            `json:"description,omitempty"`
	DockerAuth  string            `json:"docker_auth,omitempty"`
	ExtraEnv    map[string]string `json:"extra_env,omitempty"`
	User        string            `json:"user,omitempty"`
}

// JobID reports the job id a message is addressed to, or false for the
// connection-level types (Ping/Pong) that original_source/server-rs's
// job_id() also excludes from job-sink routing.
func (e Envelope) JobID() (uint64, bool) {
	switch e.Type {
	case MessagePing, MessagePong:
		return 0, false
	default:
		return e.ID, true
	}
}

// AuthRequest is the mandatory first frame an agent must send after
// connecting (spec §4.D).
type AuthRequest struct {
	Hostname string `json:"hostname"`
	Password string `json:"password"`
}

// AuthResponse replies to AuthRequest.
type AuthResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}
