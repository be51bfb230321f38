package main

import (
	"context"

	"golang.org/x/time/rate"
)

// AppContext is the explicitly constructed application state shared by
// every component: settings, the process-wide limiters, the cache
// database and the factories bots use to obtain their collaborators.
// Tests build fresh contexts with fake factories.
type AppContext struct {
	Settings *Settings
	Registry *BotRegistry
	GlobalDB *GlobalDatabase
	Input    InputProvider

	// Process-wide pacing semaphores, one set per process,
	// initialized before any bot starts
	LoginLimiter         *PacingSemaphore
	GiftsLimiter         *PacingSemaphore
	ConfirmationsLimiter *PacingSemaphore

	// Web transport limits shared by every bot's web client
	WebHosts *HostLimiter
	WebRate  *rate.Limiter

	// NewSession builds the SDK session for one bot; swapped for a
	// fake in tests
	NewSession func(botName string, index int) (SteamSession, error)

	// NewWebClient builds the web collaborator for one bot; the
	// account's proxy (when configured) is bound to its transport
	NewWebClient func(botName string, index int) (WebClient, error)

	// OnLastBotStopped runs when a bot stop leaves nothing running;
	// main wires process exit here, tests leave it nil
	OnLastBotStopped func()

	ctx    context.Context
	cancel context.CancelFunc
}

// NewAppContext wires an application context with production
// collaborator factories.
func NewAppContext(settings *Settings, globalDB *GlobalDatabase, input InputProvider) *AppContext {
	ctx, cancel := context.WithCancel(context.Background())

	app := &AppContext{
		Settings:             settings,
		GlobalDB:             globalDB,
		Input:                input,
		LoginLimiter:         NewPacingSemaphore(settings.LoginLimiterDelay),
		GiftsLimiter:         NewPacingSemaphore(settings.GiftsLimiterDelay),
		ConfirmationsLimiter: NewPacingSemaphore(settings.ConfirmationsLimiterDelay),
		WebHosts:             NewHostLimiter(settings.MaxConnectionsPerHost),
		WebRate:              rate.NewLimiter(rate.Limit(settings.WebRequestsPerSecond), 1),
		ctx:                  ctx,
		cancel:               cancel,
	}

	app.NewSession = func(botName string, index int) (SteamSession, error) {
		return NewSteamConnection(), nil
	}

	app.NewWebClient = func(botName string, index int) (WebClient, error) {
		dialer, err := GetProxyForAccount(settings, botName, index)
		if err != nil {
			return nil, err
		}
		return NewWebClient(settings, app.WebHosts, app.WebRate, dialer), nil
	}

	app.Registry = NewBotRegistry(app)

	return app
}

// Context returns the process-lifetime context; it is cancelled on
// shutdown.
func (a *AppContext) Context() context.Context {
	return a.ctx
}

// Shutdown stops every bot and cancels the process context.
func (a *AppContext) Shutdown() {
	if a.Registry != nil {
		a.Registry.StopAll()
	}
	a.cancel()
}
