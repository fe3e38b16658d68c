package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/mkrupp/nutrifit-client/internal/infra/logging"
	"github.com/mkrupp/nutrifit-client/internal/notify"
	"github.com/mkrupp/nutrifit-client/internal/repo/credential"
	"github.com/mkrupp/nutrifit-client/internal/routeguard"
	"github.com/mkrupp/nutrifit-client/internal/svc/apiclient"
	"github.com/mkrupp/nutrifit-client/internal/svc/feedsvc"
	"github.com/mkrupp/nutrifit-client/internal/svc/imagesvc"
	"github.com/mkrupp/nutrifit-client/internal/svc/interactionsvc"
	"github.com/mkrupp/nutrifit-client/internal/svc/profilesvc"
	"github.com/mkrupp/nutrifit-client/internal/svc/sessionsvc"
	"github.com/mkrupp/nutrifit-client/internal/svc/workoutsvc"
)

// App wires the client services for a single command invocation.
type App struct {
	out io.Writer
	log logging.Logger

	store        credential.Store
	gw           *apiclient.Gateway
	session      *sessionsvc.Manager
	guard        *routeguard.Guard
	interactions *interactionsvc.Sync
	images       *imagesvc.Service
	feed         *feedsvc.Service
	profiles     *profilesvc.Service
	workouts     *workoutsvc.Service

	unsubscribe func()

	mu    sync.Mutex
	route string
}

// NewApp opens the credential store and builds the services. The route guard
// starts in zone and prints every redirect to out.
func NewApp(ctx context.Context, cfg Config, out io.Writer, zone routeguard.Zone) (*App, error) {
	store, err := credential.NewStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}

	images, err := imagesvc.NewService(cfg.Image)
	if err != nil {
		_ = store.Close()

		return nil, fmt.Errorf("new image service: %w", err)
	}

	notifier := notify.Multi(notify.NewWriterNotifier(out), notify.NewLogNotifier())

	interactions, err := interactionsvc.NewSync(notifier, nil)
	if err != nil {
		_ = store.Close()

		return nil, fmt.Errorf("new interaction sync: %w", err)
	}

	app := &App{
		out:          out,
		log:          logging.GetLogger("cmd.fitclient"),
		store:        store,
		gw:           apiclient.NewGateway(cfg.API, nil),
		interactions: interactions,
		images:       images,
	}

	app.session = sessionsvc.NewManager(cfg.Session, app.gw, store, notifier)
	app.guard = routeguard.NewGuard(routeguard.NavigatorFunc(app.navigate), zone)
	app.unsubscribe = app.session.Subscribe(func(state sessionsvc.State) {
		app.guard.SetSession(context.WithoutCancel(ctx), state.Present(), state.IsLoading)
	})

	app.feed = feedsvc.NewService(app.gw, interactions, images, app.session, notifier)
	app.profiles = profilesvc.NewService(app.gw, interactions, app.session, notifier)
	app.workouts = workoutsvc.NewService(app.gw)

	return app, nil
}

func (a *App) navigate(_ context.Context, route string) {
	a.mu.Lock()
	a.route = route
	a.mu.Unlock()

	_, _ = fmt.Fprintf(a.out, "→ %s\n", route)
}

// Redirected returns the route of the last redirect, if any.
func (a *App) Redirected() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.route, a.route != ""
}

// Close waits for pending interaction confirmations and releases the store.
func (a *App) Close() {
	a.interactions.Wait()
	a.unsubscribe()
	a.session.Close()

	if err := a.store.Close(); err != nil {
		a.log.Warn("close credential store failed", "error", err)
	}
}
