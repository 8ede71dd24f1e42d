package oauth

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/dmitrymomot/oauthcore/pkg/session"
	svc "github.com/dmitrymomot/oauthcore/svc/oauth"
)

var errNoExchange = errors.New("oauth module: no http exchange in context")

type exchangeKey struct{}

type exchange struct {
	w http.ResponseWriter
	r *http.Request
}

func withExchange(ctx context.Context, w http.ResponseWriter, r *http.Request) context.Context {
	return context.WithValue(ctx, exchangeKey{}, exchange{w: w, r: r})
}

// Establisher returns the session establisher for the service. It signs
// the browser in on the callback response being handled, so it only works
// for callbacks served by a Module.
func Establisher(sessions *session.Manager) svc.SessionEstablisher {
	return svc.SessionEstablisherFunc(func(ctx context.Context, userID uuid.UUID) error {
		ex, ok := ctx.Value(exchangeKey{}).(exchange)
		if !ok {
			return errNoExchange
		}
		_, err := sessions.Authenticate(ctx, ex.w, ex.r, userID)
		return err
	})
}
