package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/adapters/tokenizer"
	"github.com/layer-3/walletauth/adapters/wallet"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/mocks"
)

func newSvc(t *testing.T) (*AuthService, *mocks.MockEventPublisher) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	pub := mocks.NewMockEventPublisher(ctrl)
	svc := NewAuthService(tokenizer.NewJWTTokenizer(key, "test-idp"), store.NewMemoryStore(), pub, nil, DefaultConfig())
	return svc, pub
}

func signedChallenge(t *testing.T, w *wallet.KeyWallet, at time.Time) (string, string) {
	t.Helper()

	message := core.NewChallenge(w.Address(), at.UnixMilli()).Message()
	signature, err := w.SignMessage(context.Background(), message)
	require.NoError(t, err)
	return message, signature
}

func newWallet(t *testing.T) *wallet.KeyWallet {
	t.Helper()

	w, err := wallet.GenerateKeyWallet()
	require.NoError(t, err)
	return w
}

func TestLogin_OK(t *testing.T) {
	svc, _ := newSvc(t)
	ctx := context.Background()
	w := newWallet(t)

	message, signature := signedChallenge(t, w, time.Now())
	user, tokens, err := svc.Login(ctx, w.Address(), signature, message)
	require.NoError(t, err)
	require.NotEmpty(t, tokens.AccessToken)
	require.NotEmpty(t, tokens.RefreshToken)
	require.Equal(t, strings.ToLower(w.Address()), user.Address)
	require.Equal(t, "user", user.Role)
	require.Equal(t, UserFor(w.Address()), user)

	session, err := svc.ValidateAccessToken(ctx, tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.Address, session.Address)
}

func TestLogin_ReplayRejected(t *testing.T) {
	svc, _ := newSvc(t)
	ctx := context.Background()
	w := newWallet(t)

	message, signature := signedChallenge(t, w, time.Now())
	_, _, err := svc.Login(ctx, w.Address(), signature, message)
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, w.Address(), signature, message)
	require.ErrorIs(t, err, core.ErrChallengeReused)
}

func TestLogin_ChallengeWindow(t *testing.T) {
	svc, _ := newSvc(t)
	ctx := context.Background()
	w := newWallet(t)

	message, signature := signedChallenge(t, w, time.Now().Add(-6*time.Minute))
	_, _, err := svc.Login(ctx, w.Address(), signature, message)
	require.ErrorIs(t, err, core.ErrChallengeExpired)

	message, signature = signedChallenge(t, w, time.Now().Add(time.Minute))
	_, _, err = svc.Login(ctx, w.Address(), signature, message)
	require.ErrorIs(t, err, core.ErrChallengeExpired)

	message, signature = signedChallenge(t, w, time.Now().Add(10*time.Second))
	_, _, err = svc.Login(ctx, w.Address(), signature, message)
	require.NoError(t, err)
}

func TestLogin_BadSignature(t *testing.T) {
	svc, _ := newSvc(t)
	ctx := context.Background()
	w := newWallet(t)
	other := newWallet(t)

	message := core.NewChallenge(w.Address(), time.Now().UnixMilli()).Message()
	signature, err := other.SignMessage(ctx, message)
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, w.Address(), signature, message)
	require.ErrorIs(t, err, core.ErrInvalidSignature)

	message, signature = signedChallenge(t, w, time.Now())
	_, _, err = svc.Login(ctx, other.Address(), signature, message)
	require.ErrorIs(t, err, core.ErrInvalidChallenge)

	_, _, err = svc.Login(ctx, w.Address(), signature, "hello")
	require.ErrorIs(t, err, core.ErrInvalidChallenge)
}

func TestRefresh_Rotates(t *testing.T) {
	svc, _ := newSvc(t)
	ctx := context.Background()
	w := newWallet(t)

	message, signature := signedChallenge(t, w, time.Now())
	_, first, err := svc.Login(ctx, w.Address(), signature, message)
	require.NoError(t, err)

	second, err := svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = svc.ValidateAccessToken(ctx, second.AccessToken)
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(ctx, first.AccessToken)
	require.ErrorIs(t, err, core.ErrTokenInvalidated)

	_, err = svc.Refresh(ctx, first.RefreshToken)
	require.ErrorIs(t, err, core.ErrTokenInvalidated)

	_, err = svc.Refresh(ctx, "not-a-token")
	require.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestRefresh_ConcurrentUseSucceedsOnce(t *testing.T) {
	svc, _ := newSvc(t)
	ctx := context.Background()
	w := newWallet(t)

	message, signature := signedChallenge(t, w, time.Now())
	_, tokens, err := svc.Login(ctx, w.Address(), signature, message)
	require.NoError(t, err)

	const n = 8
	var (
		wg     sync.WaitGroup
		wins   atomic.Int32
		denied atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Refresh(ctx, tokens.RefreshToken)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, core.ErrTokenInvalidated):
				denied.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, wins.Load())
	require.EqualValues(t, n-1, denied.Load())
}

func TestRefresh_LostClaimIsRejected(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	kv := mocks.NewMockStore(ctrl)
	tok := tokenizer.NewJWTTokenizer(key, "test-idp")
	svc := NewAuthService(tok, kv, mocks.NewMockEventPublisher(ctrl), nil, DefaultConfig())

	now := time.Now()
	refreshToken, err := tok.SessionToRefreshToken(svc.newSession(newWallet(t).Address(), now))
	require.NoError(t, err)

	// the store holds the marker already: another refresh won the claim
	kv.EXPECT().SetNX(gomock.Any(), gomock.Any(), "1", gomock.Any()).Return(false, nil)

	_, err = svc.Refresh(context.Background(), refreshToken)
	require.ErrorIs(t, err, core.ErrTokenInvalidated)
}

func TestLogin_ConcurrentReplaySucceedsOnce(t *testing.T) {
	svc, _ := newSvc(t)
	ctx := context.Background()
	w := newWallet(t)
	message, signature := signedChallenge(t, w, time.Now())

	const n = 8
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := svc.Login(ctx, w.Address(), signature, message); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, wins.Load())
}

func TestLogout_RevokesAndPublishes(t *testing.T) {
	svc, pub := newSvc(t)
	ctx := context.Background()
	w := newWallet(t)

	message, signature := signedChallenge(t, w, time.Now())
	user, tokens, err := svc.Login(ctx, w.Address(), signature, message)
	require.NoError(t, err)

	pub.EXPECT().PublishLogout(gomock.Any(), user.Address, gomock.Any()).Return(errors.New("broker down"))
	require.NoError(t, svc.Logout(ctx, tokens.RefreshToken))

	_, err = svc.Refresh(ctx, tokens.RefreshToken)
	require.ErrorIs(t, err, core.ErrTokenInvalidated)

	_, err = svc.ValidateAccessToken(ctx, tokens.AccessToken)
	require.ErrorIs(t, err, core.ErrTokenInvalidated)
}

func TestValidateAccessToken_Expired(t *testing.T) {
	svc, _ := newSvc(t)
	ctx := context.Background()
	w := newWallet(t)

	message, signature := signedChallenge(t, w, time.Now())
	_, tokens, err := svc.Login(ctx, w.Address(), signature, message)
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(10 * time.Minute) }
	_, err = svc.ValidateAccessToken(ctx, tokens.AccessToken)
	require.ErrorIs(t, err, core.ErrTokenExpired)
}

func TestUserFor_Deterministic(t *testing.T) {
	a := UserFor("0xF39FD6E51AAD88F6F4CE6AB8827279CFFFB92266")
	b := UserFor("0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266")
	require.Equal(t, a, b)
	require.Equal(t, "0xf39f...2266", a.Username)
}
