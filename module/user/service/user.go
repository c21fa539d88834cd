package service

import (
	"context"
	"strings"
	"time"

	"PPClient/module/user"
	"PPClient/tools/errs"
	jwtlib "PPClient/tools/security"

	"go.uber.org/zap"
)

// LoginParams 登录入参：用于生成会话身份
type LoginParams struct {
	Token  string    // bearer token issued by the server
	UserID int64     // optional; taken from the token subject when zero
	Now    time.Time // 零值时用 time.Now()
}

// Credentials is what the connection needs to authenticate.
type Credentials struct {
	ClientID string
	UserID   int64
	Token    string
	ExpireAt time.Time // zero when the token carries no expiry
}

// Login resolves the user and client identity for a connection. A client id
// that could not be persisted is still used; the error is only logged.
func Login(ctx context.Context, ids *user.IdentityStore, in LoginParams, log *zap.Logger) (Credentials, error) {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	token := strings.TrimSpace(in.Token)
	if token == "" {
		return Credentials{}, errs.ErrArgs.WrapMsg("token is empty")
	}

	cred := Credentials{Token: token, UserID: in.UserID}
	if sess, err := jwtlib.ParseSession(token); err == nil {
		if sess.Expired(now) {
			return Credentials{}, errs.ErrArgs.WrapMsg("token expired", "expireAt", sess.ExpireAt)
		}
		if cred.UserID == 0 {
			cred.UserID = sess.UserID
		} else if cred.UserID != sess.UserID {
			return Credentials{}, errs.ErrArgs.WrapMsg("user id does not match token", "userId", cred.UserID, "subject", sess.UserID)
		}
		cred.ExpireAt = sess.ExpireAt
	} else if cred.UserID == 0 {
		return Credentials{}, errs.ErrArgs.WrapMsg("user id missing and token is not a readable jwt", "err", err)
	}

	id, err := ids.ClientID(ctx)
	if id == "" {
		return Credentials{}, err
	}
	if err != nil && log != nil {
		log.Warn("client id not persisted; using it for this process only", zap.Error(err))
	}
	cred.ClientID = id
	return cred, nil
}
