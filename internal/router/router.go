package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/fastygo/storefront-session/api/handler"
)

const prefix = "/api/session"

type Handlers struct {
	Session *apiHandler.SessionHandler
	Health  *apiHandler.HealthHandler
}

type Middlewares struct {
	// Authenticated guards routes that need a live session.
	Authenticated func(fasthttp.RequestHandler) fasthttp.RequestHandler
	// Activity wraps every session route so UI requests count as interaction.
	Activity func(fasthttp.RequestHandler) fasthttp.RequestHandler
}

func New(handlers Handlers, mw Middlewares) *router.Router {
	r := router.New()
	r.RedirectTrailingSlash = false

	r.GET("/health", handlers.Health.Check)

	tracked := func(h fasthttp.RequestHandler) fasthttp.RequestHandler {
		if mw.Activity == nil {
			return h
		}
		return mw.Activity(h)
	}
	guarded := func(h fasthttp.RequestHandler) fasthttp.RequestHandler {
		if mw.Authenticated == nil {
			return tracked(h)
		}
		return tracked(mw.Authenticated(h))
	}

	r.GET(prefix, tracked(handlers.Session.Current))
	r.GET(prefix+"/valid", tracked(handlers.Session.Valid))
	r.GET(prefix+"/access/{area}", tracked(handlers.Session.Access))

	r.POST(prefix+"/login", handlers.Session.Login)
	r.POST(prefix+"/signup", handlers.Session.Signup)
	r.POST(prefix+"/admin", handlers.Session.CreateAdmin)
	r.POST(prefix+"/logout", handlers.Session.Logout)
	r.POST(prefix+"/activity", handlers.Session.Activity)
	r.POST(prefix+"/extend", guarded(handlers.Session.Extend))

	return r
}
