package service

import (
	"context"
	"testing"
	"time"

	"PPClient/module/user"
	"PPClient/service/storage"
	jwtlib "PPClient/tools/security"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLoginFromToken(t *testing.T) {
	opts := jwtlib.DefaultOptions([]byte("secret"))
	tok, exp, err := jwtlib.Generate(opts, "42", nil)
	require.NoError(t, err)

	ids := user.NewIdentityStore(storage.NewMemory(), "", zaptest.NewLogger(t))
	cred, err := Login(context.Background(), ids, LoginParams{Token: tok}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, int64(42), cred.UserID)
	assert.True(t, user.Valid(cred.ClientID))
	assert.WithinDuration(t, exp, cred.ExpireAt, time.Second)

	_, err = Login(context.Background(), ids, LoginParams{Token: tok, UserID: 7}, nil)
	assert.Error(t, err)

	_, err = Login(context.Background(), ids, LoginParams{Token: tok, Now: exp.Add(time.Minute)}, nil)
	assert.Error(t, err)
}

func TestLoginOpaqueToken(t *testing.T) {
	ids := user.NewIdentityStore(storage.NewMemory(), "", zaptest.NewLogger(t))
	cred, err := Login(context.Background(), ids, LoginParams{Token: "opaque", UserID: 9}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(9), cred.UserID)

	_, err = Login(context.Background(), ids, LoginParams{Token: "opaque"}, nil)
	assert.Error(t, err)
	_, err = Login(context.Background(), ids, LoginParams{Token: " "}, nil)
	assert.Error(t, err)
}
