// Package deploy is the Deployment Orchestrator (spec component G): a
// per-host serialised state machine that drives a DeployService job on a
// connected agent, streams its log back to operators, and rolls back to
// the previous image on failure.
package deploy

import "time"

// State is a point in the per-host deployment FSM (spec §4.G):
// Idle -> Building -> Running -> {Ok, Failed, RolledBack}.
type State string

const (
	StateIdle       State = "Idle"
	StateBuilding   State = "Building"
	StateRunning    State = "Running"
	StateOk         State = "Ok"
	StateFailed     State = "Failed"
	StateRolledBack State = "RolledBack"
)

// Request describes an operator-initiated deployment.
type Request struct {
	Host             string
	Project          string
	Container        string
	Image            string
	RestoreOnFailure bool

	// Description, DockerAuth, ExtraEnv and User are threaded straight
	// through to the agent's deploy_service job (spec §6). Description
	// is required upstream; if the operator request leaves it blank,
	// Start falls back to Container so the job always carries one.
	Description string
	DockerAuth  string
	ExtraEnv    map[string]string
	User        string
}

// Status is the current FSM state for one host's deployment, published
// alongside DockerDeployLog/DockerDeployEnd events.
type Status struct {
	Host      string    `json:"host"`
	Container string    `json:"container"`
	Image     string    `json:"image"`
	State     State     `json:"state"`
	Message   string    `json:"message,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// deployServicePayload mirrors the agent wire protocol's DeployService
// message exactly (original_source/src/bin/sadmin/client_message.rs's
// DeployServiceMessage): Image/DockerAuth/User stay optional the way the
// Rust struct wraps them in Option<_>, Description is always sent.
type deployServicePayload struct {
	Image       string            `json:"image,omitempty"`
	Description string            `json:"description"`
	DockerAuth  string            `json:"docker_auth,omitempty"`
	ExtraEnv    map[string]string `json:"extra_env,omitempty"`
	User        string            `json:"user,omitempty"`
}
