// Package auth implements password + TOTP authentication, session lifecycle,
// and capability derivation for operators and the docker_client pseudo-user.
package auth

// User is a persisted account, stored as an Object of type USER in the
// object store (see internal/store).
type User struct {
	Name         string   `json:"name"`
	PasswordHash string   `json:"password_hash"`
	OTPSecret    string   `json:"otp_secret"` // base32, empty if TOTP not enrolled
	Admin        bool     `json:"admin"`
	DockerPull   bool     `json:"docker_pull"`
	DockerPush   bool     `json:"docker_push"`
	DockerDeploy bool     `json:"docker_deploy"`
	AuthDays     *int     `json:"auth_days,omitempty"` // password TTL in days; nil = default 0.5 day
	SSLName      string   `json:"ssl_name,omitempty"`
	Sessions     []string `json:"sessions,omitempty"` // bearer-style "user:token" session ids
}

// ConfigUser is a statically configured admin credential from config.json.
// A name match here shadows any store-backed User of the same name and
// unconditionally grants admin + all docker capabilities (see DESIGN.md,
// "static capability check").
type ConfigUser struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// Session is a login session tracked by sid. PwdTS and OtpTS are unix
// second timestamps of the last successful password/OTP verification,
// zero meaning "never verified in this session". They age independently.
type Session struct {
	SID   string `json:"sid"`
	User  string `json:"user"`
	Host  string `json:"host"`
	PwdTS int64  `json:"pwd_ts"`
	OtpTS int64  `json:"otp_ts"`
}

// AuthStatus is the derived, point-in-time capability record for a session.
type AuthStatus struct {
	Message      string `json:"message,omitempty"`
	Auth         bool   `json:"auth"`
	User         string `json:"user,omitempty"`
	Pwd          bool   `json:"pwd"`
	Otp          bool   `json:"otp"`
	Admin        bool   `json:"admin"`
	DockerPull   bool   `json:"docker_pull"`
	DockerPush   bool   `json:"docker_push"`
	DockerDeploy bool   `json:"docker_deploy"`
	Session      string `json:"session,omitempty"`
	SSLName      string `json:"sslname,omitempty"`
	AuthDays     *int   `json:"auth_days,omitempty"`
}

// dockerClientUser is the pseudo-user name agents authenticate as when
// pulling/pushing images with a short-lived, narrowly scoped session.
const dockerClientUser = "docker_client"

// Store is the subset of the object/session store that authentication
// needs. internal/store.Store satisfies this.
type Store interface {
	GetUser(name string) (*User, error)
	GetSession(sid string) (*Session, error)
	PutSession(sess *Session) error
	DeleteSession(sid string) error
}
