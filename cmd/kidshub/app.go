package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/geocoder89/kidshub/internal/client"
	"github.com/geocoder89/kidshub/internal/config"
	"github.com/geocoder89/kidshub/internal/data"
	"github.com/geocoder89/kidshub/internal/domain/profile"
	"github.com/geocoder89/kidshub/internal/observability"
	"github.com/geocoder89/kidshub/internal/persist"
	"github.com/geocoder89/kidshub/internal/redisclient"
	"github.com/geocoder89/kidshub/internal/repo/memory"
	"github.com/geocoder89/kidshub/internal/session"
	"github.com/geocoder89/kidshub/internal/store"
)

// app is what every command runs against: the session store for identity
// and the data façade for rows.
type app struct {
	out     io.Writer
	log     *slog.Logger
	demo    bool
	session *session.Store
	data    *data.Client

	closers []func()
}

type appOptions struct {
	cfg     config.ClientConfig
	out     io.Writer
	verbose bool

	// storage and rows override the defaults; tests set them.
	storage persist.Storage
	rows    store.Store
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	log := observability.NewCLILogger(opts.out, opts.verbose)
	a := &app{out: opts.out, log: log, demo: client.IsPlaceholder(opts.cfg.URL)}

	storage := opts.storage
	if storage == nil {
		s, closeFn, err := openStorage(opts.cfg)
		if err != nil {
			return nil, err
		}
		storage = s
		a.closers = append(a.closers, closeFn)
	}

	deps := session.Deps{
		Storage: storage,
		Logger:  log,
		Redirector: session.RedirectFunc(func() {
			fmt.Fprintln(opts.out, "Your session has ended. Run `kidshub signin` to continue.")
		}),
	}

	if a.demo {
		rows := opts.rows
		if rows == nil {
			demo := memory.NewStore()
			if err := seedDemoCatalogue(ctx, demo); err != nil {
				return nil, err
			}
			rows = demo
		}
		deps.Demo = true
		deps.Store = rows
		a.data = data.New(rows, nil)
	} else {
		cc := client.Config{
			BaseURL: opts.cfg.URL,
			APIKey:  opts.cfg.AnonKey,
			Storage: storage,
			Logger:  log,
		}
		auth := client.NewAuth(cc)
		a.closers = append(a.closers, auth.Close)

		rows := opts.rows
		if rows == nil {
			rows = client.NewRest(cc, auth)
		}
		deps.Identity = auth
		deps.Store = rows
		a.data = data.New(rows, auth)
	}

	a.session = session.New(ctx, deps)
	a.closers = append(a.closers, a.session.Start(ctx))

	if err := a.settle(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func openStorage(cfg config.ClientConfig) (persist.Storage, func(), error) {
	if cfg.RedisAddr != "" {
		rdb := redisclient.New(redisclient.Config{Addr: cfg.RedisAddr})
		return persist.NewRedisStorage(rdb.Raw(), "kidshub:"), func() { _ = rdb.Close() }, nil
	}

	fs, err := persist.NewFileStorage(cfg.StateDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open state dir %s: %w", cfg.StateDir, err)
	}
	return fs, func() {}, nil
}

// settle waits for the background reconciliation started by Start.
func (a *app) settle(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return a.session.WaitIdle(ctx)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// requireUser returns the signed in user, optionally of a given kind.
func (a *app) requireUser(kinds ...profile.Kind) (*profile.User, error) {
	st := a.session.Snapshot()
	if !st.IsAuthenticated || st.User == nil {
		if a.demo {
			return nil, session.ErrDemoMode
		}
		return nil, fmt.Errorf("not signed in: run `kidshub signin`")
	}
	if len(kinds) == 0 {
		return st.User, nil
	}
	for _, k := range kinds {
		if st.UserKind == k {
			return st.User, nil
		}
	}
	return nil, fmt.Errorf("this command is for %s accounts", kinds[0])
}
