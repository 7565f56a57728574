package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/antialize/simple-admin-sub001/internal/clock"
	"github.com/antialize/simple-admin-sub001/internal/metrics"
)

const (
	defaultPwdTTL   = 12 * time.Hour
	dockerClientTTL = time.Hour
	otpTTL          = 64 * 24 * time.Hour
	loginDelay      = time.Second
	sidRandomBytes  = 64
)

// ErrInternalAuth is returned by HandleLogin when the session minted on a
// successful login is, surprisingly, rejected by GetAuth immediately after.
var ErrInternalAuth = errors.New("internal auth error")

// Service implements get_auth/handle_login against a Store, a clock
// (for testable TTL arithmetic), and the static admin list from config.json.
type Service struct {
	store       Store
	staticUsers []ConfigUser
	clock       clock.Clock
	log         *slog.Logger
}

// NewService constructs an auth Service. staticUsers is the config.json
// users list; its entries shadow store users of the same name (see
// DESIGN.md "static capability check").
func NewService(store Store, staticUsers []ConfigUser, clk clock.Clock, log *slog.Logger) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Service{store: store, staticUsers: staticUsers, clock: clk, log: log}
}

func (s *Service) findStaticUser(name string) (ConfigUser, bool) {
	for _, u := range s.staticUsers {
		if u.Name == name {
			return u, true
		}
	}
	return ConfigUser{}, false
}

// GetAuth resolves the capability record for the given (host, sid) pair.
// host is the client IP/hostname the request was observed on; sid is the
// session cookie value, which may be a random-hex server session id or a
// "user:token" bearer session recorded on the User record.
func (s *Service) GetAuth(host, sid string) (AuthStatus, error) {
	if sid == "" {
		return AuthStatus{}, nil
	}

	if user, token, ok := splitBearerSID(sid); ok {
		content, err := s.store.GetUser(user)
		if err != nil {
			return AuthStatus{}, fmt.Errorf("get user for bearer session: %w", err)
		}
		if content == nil {
			return AuthStatus{}, nil
		}
		for _, tok := range content.Sessions {
			if tok == token {
				return AuthStatus{
					Auth:       true,
					User:       user,
					Pwd:        true,
					Otp:        true,
					DockerPull: content.DockerPull,
					DockerPush: content.DockerPush,
					Session:    sid,
				}, nil
			}
		}
		return AuthStatus{}, nil
	}

	if host == "" {
		return AuthStatus{}, nil
	}

	row, err := s.store.GetSession(sid)
	if err != nil {
		return AuthStatus{}, fmt.Errorf("get session: %w", err)
	}
	if row == nil {
		return AuthStatus{}, nil
	}

	now := s.clock.Now().Unix()

	if row.User == dockerClientUser {
		pwdOK := row.PwdTS+int64(dockerClientTTL.Seconds()) > now
		otpOK := row.OtpTS+int64(dockerClientTTL.Seconds()) > now
		return AuthStatus{
			DockerPull: pwdOK && otpOK,
			DockerPush: pwdOK && otpOK,
			Auth:       pwdOK && otpOK,
			Pwd:        pwdOK,
			Otp:        otpOK,
			Session:    sid,
		}, nil
	}

	if _, ok := s.findStaticUser(row.User); ok {
		pwdOK := row.PwdTS+int64(defaultPwdTTL.Seconds()) > now
		otpOK := row.OtpTS+int64(defaultPwdTTL.Seconds()) > now
		return AuthStatus{
			DockerPull:   true,
			DockerPush:   true,
			DockerDeploy: true,
			Admin:        true,
			Auth:         true,
			Pwd:          pwdOK,
			Otp:          otpOK,
			User:         row.User,
			Session:      sid,
		}, nil
	}

	content, err := s.store.GetUser(row.User)
	if err != nil {
		return AuthStatus{}, fmt.Errorf("get user: %w", err)
	}
	if content == nil {
		return AuthStatus{}, nil
	}

	pwdTTL := defaultPwdTTL
	if content.AuthDays != nil && *content.AuthDays > 0 {
		pwdTTL = time.Duration(*content.AuthDays) * 24 * time.Hour
	}
	effectiveOtpTTL := otpTTL
	if pwdTTL > effectiveOtpTTL {
		effectiveOtpTTL = pwdTTL
	}

	pwdOK := row.PwdTS+int64(pwdTTL.Seconds()) > now
	otpOK := row.OtpTS+int64(effectiveOtpTTL.Seconds()) > now

	status := AuthStatus{
		Auth:         pwdOK && otpOK,
		User:         row.User,
		Pwd:          pwdOK,
		Otp:          otpOK,
		Admin:        content.Admin && pwdOK && otpOK,
		DockerPull:   pwdOK && otpOK && (content.Admin || content.DockerDeploy || content.DockerPull),
		DockerPush:   pwdOK && otpOK && (content.Admin || content.DockerDeploy || content.DockerPush),
		DockerDeploy: pwdOK && otpOK && (content.Admin || content.DockerDeploy),
		Session:      sid,
		AuthDays:     content.AuthDays,
	}
	if pwdOK && otpOK {
		status.SSLName = content.SSLName
	}
	return status, nil
}

// splitBearerSID splits a "user:token" sid into its parts. Random-hex
// session ids never contain a colon, so the presence of one unambiguously
// selects the bearer path.
func splitBearerSID(sid string) (user, token string, ok bool) {
	i := strings.IndexByte(sid, ':')
	if i < 0 {
		return "", "", false
	}
	return sid[:i], sid[i+1:], true
}

// LoginRequest is the user-supplied portion of a Login action.
type LoginRequest struct {
	User string
	Pwd  string
	OTP  string // empty if not supplied
}

// HandleLogin implements the five-step login algorithm of spec §4.B. It
// returns the reply to send back to the caller and the AuthStatus the
// session now carries (used by callers to refresh their connection-local
// cache); both may be zero-valued AuthStatus on failure.
func (s *Service) HandleLogin(session, host string, req LoginRequest) (reply AuthStatus, newAuth AuthStatus, err error) {
	var auth AuthStatus
	if session != "" {
		auth, err = s.GetAuth(host, session)
		if err != nil {
			return AuthStatus{}, AuthStatus{}, err
		}
	}

	found := false
	newOTP := false
	otpOK := auth.Otp
	pwdOK := auth.Pwd

	if su, ok := s.findStaticUser(req.User); ok {
		found = true
		if su.Password == req.Pwd {
			otpOK = true
			pwdOK = true
			newOTP = true
		}
	}

	if !found {
		content, gerr := s.store.GetUser(req.User)
		if gerr != nil {
			return AuthStatus{}, AuthStatus{}, gerr
		}
		if content != nil {
			found = true
			// Timing mitigation: always sleep before verifying a store-backed
			// password. The source only does this on the "user found" branch;
			// preserved as-is per spec §9 (a likely user-enumeration oracle,
			// noted rather than silently fixed).
			s.sleepLoginDelay()
			pwdOK = VerifyPassword(content.PasswordHash, req.Pwd)
			if req.OTP != "" {
				otpOK = ValidateTOTPCode(content.OTPSecret, req.OTP)
				newOTP = true
			}
		}
	}

	now := s.clock.Now().Unix()

	if !found {
		metrics.LoginAttempts.WithLabelValues("bad_user").Inc()
		return AuthStatus{
			Session: session,
			User:    req.User,
			Message: "Invalid user name",
		}, AuthStatus{}, nil
	}

	if !pwdOK || !otpOK {
		metrics.LoginAttempts.WithLabelValues("bad_credentials").Inc()
		if otpOK && newOTP {
			if session != "" {
				if err := s.updateSessionOTP(session, now); err != nil {
					return AuthStatus{}, AuthStatus{}, err
				}
			} else {
				sid, err := s.createSession(req.User, host, 0, now)
				if err != nil {
					return AuthStatus{}, AuthStatus{}, err
				}
				session = sid
			}
		}
		return AuthStatus{
				Session: session,
				User:    req.User,
				Otp:     otpOK,
				Message: "Invalid password or one time password",
			}, AuthStatus{
				Session: session,
				Otp:     otpOK,
			}, nil
	}

	if session != "" {
		if newOTP {
			if err := s.updateSessionPwdOtp(session, now, now); err != nil {
				return AuthStatus{}, AuthStatus{}, err
			}
		} else {
			if err := s.updateSessionPwd(session, now); err != nil {
				return AuthStatus{}, AuthStatus{}, err
			}
		}
	} else {
		sid, err := s.createSession(req.User, host, now, now)
		if err != nil {
			return AuthStatus{}, AuthStatus{}, err
		}
		session = sid
	}

	final, err := s.GetAuth(host, session)
	if err != nil {
		return AuthStatus{}, AuthStatus{}, err
	}
	if !final.Auth {
		return AuthStatus{}, AuthStatus{}, ErrInternalAuth
	}
	metrics.LoginAttempts.WithLabelValues("ok").Inc()
	return final, final, nil
}

func (s *Service) sleepLoginDelay() {
	<-s.clock.After(loginDelay)
}

func newSID() (string, error) {
	buf := make([]byte, sidRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (s *Service) createSession(user, host string, pwdTS, otpTS int64) (string, error) {
	sid, err := newSID()
	if err != nil {
		return "", err
	}
	if err := s.store.PutSession(&Session{SID: sid, User: user, Host: host, PwdTS: pwdTS, OtpTS: otpTS}); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return sid, nil
}

func (s *Service) updateSessionOTP(sid string, otpTS int64) error {
	row, err := s.store.GetSession(sid)
	if err != nil {
		return err
	}
	if row == nil {
		return fmt.Errorf("update session otp: no such session")
	}
	row.OtpTS = otpTS
	return s.store.PutSession(row)
}

func (s *Service) updateSessionPwd(sid string, pwdTS int64) error {
	row, err := s.store.GetSession(sid)
	if err != nil {
		return err
	}
	if row == nil {
		return fmt.Errorf("update session pwd: no such session")
	}
	row.PwdTS = pwdTS
	return s.store.PutSession(row)
}

func (s *Service) updateSessionPwdOtp(sid string, pwdTS, otpTS int64) error {
	row, err := s.store.GetSession(sid)
	if err != nil {
		return err
	}
	if row == nil {
		return fmt.Errorf("update session pwd+otp: no such session")
	}
	row.PwdTS = pwdTS
	row.OtpTS = otpTS
	return s.store.PutSession(row)
}

// Logout clears whichever of the password/OTP components the operator
// asked to forget (the LogOut action's forget_pwd/forget_otp flags), and
// deletes the session outright once both components are forgotten.
func (s *Service) Logout(sid string, forgetPwd, forgetOtp bool) error {
	row, err := s.store.GetSession(sid)
	if err != nil {
		return err
	}
	if row == nil {
		return nil
	}
	if forgetPwd {
		row.PwdTS = 0
	}
	if forgetOtp {
		row.OtpTS = 0
	}
	if row.PwdTS == 0 && row.OtpTS == 0 {
		return s.store.DeleteSession(sid)
	}
	return s.store.PutSession(row)
}
