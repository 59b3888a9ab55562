package auth_test

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/sudea/internal/adapters/auth"
	"github.com/okian/sudea/internal/domain/model"
	"github.com/okian/sudea/pkg/logger"
)

type fakeCreds struct {
	byToken map[string]model.Identity
	err     error
	calls   int
}

func (f *fakeCreds) FindScriptCredential(_ context.Context, token string) (model.Identity, bool, error) {
	f.calls++
	if f.err != nil {
		return model.Identity{}, false, f.err
	}
	id, ok := f.byToken[token]
	return id, ok, nil
}

type fakeSessions struct {
	byToken map[string]model.Identity
	calls   int
}

func (f *fakeSessions) Lookup(_ context.Context, token string) (model.Identity, bool, error) {
	f.calls++
	id, ok := f.byToken[token]
	return id, ok, nil
}

func TestCredentials(t *testing.T) {
	Convey("Given authorization headers", t, func() {
		tok, ok := auth.Credentials{Authorization: "Bearer abc"}.BearerToken()
		So(ok, ShouldBeTrue)
		So(tok, ShouldEqual, "abc")

		_, ok = auth.Credentials{Authorization: "Bearer "}.BearerToken()
		So(ok, ShouldBeFalse)

		_, ok = auth.Credentials{Authorization: "Basic abc"}.BearerToken()
		So(ok, ShouldBeFalse)

		_, ok = auth.Credentials{}.BearerToken()
		So(ok, ShouldBeFalse)
	})
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	scriptUser := model.Identity{ID: "script-owner", Email: "bot@example.com"}
	webUser := model.Identity{ID: "web-user", Name: "Ana"}

	Convey("Given a bearer then session chain", t, func() {
		creds := &fakeCreds{byToken: map[string]model.Identity{"good": scriptUser}}
		sessions := &fakeSessions{byToken: map[string]model.Identity{"cookie": webUser}}
		chain := auth.NewChain(logger.Discard(), auth.NewBearerResolver(creds), auth.NewSessionResolver(sessions))

		Convey("When a valid bearer token and a session are both present", func() {
			id, ok := chain.Resolve(ctx, auth.Credentials{Authorization: "Bearer good", SessionToken: "cookie"})

			Convey("Then the bearer identity wins and the session is not consulted", func() {
				So(ok, ShouldBeTrue)
				So(id, ShouldResemble, scriptUser)
				So(sessions.calls, ShouldEqual, 0)
			})
		})

		Convey("When the bearer token is unknown", func() {
			id, ok := chain.Resolve(ctx, auth.Credentials{Authorization: "Bearer bad", SessionToken: "cookie"})

			Convey("Then the session is used as fallback", func() {
				So(ok, ShouldBeTrue)
				So(id, ShouldResemble, webUser)
			})
		})

		Convey("When the credential store fails", func() {
			creds.err = errors.New("db down")
			id, ok := chain.Resolve(ctx, auth.Credentials{Authorization: "Bearer good", SessionToken: "cookie"})

			Convey("Then the chain continues to the session", func() {
				So(ok, ShouldBeTrue)
				So(id, ShouldResemble, webUser)
			})
		})

		Convey("When nothing matches", func() {
			_, ok := chain.Resolve(ctx, auth.Credentials{Authorization: "Bearer bad", SessionToken: "stale"})
			So(ok, ShouldBeFalse)
		})

		Convey("When no credentials are sent", func() {
			_, ok := chain.Resolve(ctx, auth.Credentials{})
			So(ok, ShouldBeFalse)
			So(creds.calls, ShouldEqual, 0)
			So(sessions.calls, ShouldEqual, 0)
		})
	})

	Convey("Given a session-only chain", t, func() {
		creds := &fakeCreds{byToken: map[string]model.Identity{"good": scriptUser}}
		sessions := &fakeSessions{byToken: map[string]model.Identity{}}
		chain := auth.NewChain(nil, auth.NewSessionResolver(sessions))

		Convey("When a script token is presented", func() {
			_, ok := chain.Resolve(ctx, auth.Credentials{Authorization: "Bearer good"})

			Convey("Then it is not accepted", func() {
				So(ok, ShouldBeFalse)
				So(creds.calls, ShouldEqual, 0)
			})
		})
	})
}
