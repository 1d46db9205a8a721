package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/layer-3/walletauth"
	"github.com/layer-3/walletauth/adapters/events"
	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/adapters/wallet"
	"github.com/layer-3/walletauth/config"
	"github.com/layer-3/walletauth/logging"
)

func main() {
	app := &cli.App{
		Name:  "walletauth",
		Usage: "sign in with an Ethereum key and call a wallet authenticated API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "sign a fresh challenge and store the session",
				Action: withSession(login),
			},
			{
				Name:   "logout",
				Usage:  "forget the stored session",
				Action: withSession(logout),
			},
			{
				Name:   "status",
				Usage:  "print the authentication state",
				Action: withSession(status),
			},
			{
				Name:      "request",
				Usage:     "send an authorized request",
				ArgsUsage: "METHOD PATH [JSON]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "public", Usage: "send without authorization"},
					&cli.StringSliceFlag{Name: "query", Aliases: []string{"q"}, Usage: "query parameter as key=value"},
				},
				Action: withSession(request),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type action func(c *cli.Context, session *walletauth.Client) error

// withSession loads the configuration and wires a client around the configured store
func withSession(fn action) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return err
		}

		logger, err := logging.New(cfg.Log)
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		session, closeFn, err := newSession(c.Context, cfg, logger)
		if err != nil {
			return err
		}
		defer closeFn()

		return fn(c, session)
	}
}

func newSession(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*walletauth.Client, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	opts := walletauth.Options{
		BaseURL:        cfg.Client.BaseURL,
		Namespace:      cfg.Client.Namespace,
		HTTPClient:     &http.Client{Timeout: cfg.Client.RequestTimeout},
		RefreshTimeout: cfg.Client.RefreshTimeout,
		RevokeOnLogout: cfg.Client.RevokeOnLogout,
		Logger:         logger,
	}

	if cfg.Client.PrivateKey != "" {
		w, err := wallet.NewKeyWalletFromHex(cfg.Client.PrivateKey)
		if err != nil {
			return nil, nil, err
		}
		opts.Wallet = w
	}

	needsRedis := cfg.Store.Driver == config.StoreRedis || cfg.Events.Driver == config.EventsRedis
	if needsRedis {
		redisClient, err := store.NewRedisClient(ctx, cfg.Store.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		if cfg.Store.Driver == config.StoreRedis {
			opts.Store = store.NewRedisStore(redisClient, cfg.Store.RedisPrefix)
		}
		if cfg.Events.Driver == config.EventsRedis {
			publisher, err := redisstream.NewPublisher(
				redisstream.PublisherConfig{Client: redisClient},
				logging.NewWatermillLogger(logger),
			)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("create redis publisher: %w", err)
			}
			closers = append(closers, func() { _ = publisher.Close() })
			opts.StatePublisher = events.NewWatermillPublisher(publisher)
		}
	}

	if cfg.Store.Driver == config.StoreSQLite {
		sqlite, err := store.OpenSQLiteStore(cfg.Store.SQLitePath)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { _ = sqlite.Close() })
		opts.Store = sqlite
	}

	session, err := walletauth.New(opts)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	closers = append(closers, func() { _ = session.Close() })

	return session, closeAll, nil
}

func login(c *cli.Context, session *walletauth.Client) error {
	user, err := session.Login(c.Context)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "logged in as %s (%s)\n", user.Username, user.Address)
	return nil
}

func logout(c *cli.Context, session *walletauth.Client) error {
	session.Logout(c.Context)
	fmt.Fprintln(c.App.Writer, "logged out")
	return nil
}

func status(c *cli.Context, session *walletauth.Client) error {
	fmt.Fprintf(c.App.Writer, "state: %s\n", session.State())
	if user, ok := session.User(); ok {
		fmt.Fprintf(c.App.Writer, "user:  %s %s (%s)\n", user.ID, user.Username, user.Address)
	}
	return nil
}

func request(c *cli.Context, session *walletauth.Client) error {
	if c.NArg() < 2 {
		return cli.Exit("usage: walletauth request METHOD PATH [JSON]", 2)
	}

	req := walletauth.Request{
		Method: strings.ToUpper(c.Args().Get(0)),
		Path:   c.Args().Get(1),
		Public: c.Bool("public"),
	}

	if raw := c.Args().Get(2); raw != "" {
		if !json.Valid([]byte(raw)) {
			return fmt.Errorf("request body is not valid JSON")
		}
		req.Body = json.RawMessage(raw)
	}

	if pairs := c.StringSlice("query"); len(pairs) > 0 {
		req.Query = url.Values{}
		for _, pair := range pairs {
			key, value, _ := strings.Cut(pair, "=")
			req.Query.Add(key, value)
		}
	}

	resp, err := session.Do(c.Context, req)
	if err != nil {
		var httpErr *walletauth.HTTPError
		if errors.As(err, &httpErr) {
			return cli.Exit(httpErr.Error(), 1)
		}
		return err
	}

	return printBody(c.App.Writer, resp)
}

func printBody(w io.Writer, resp *walletauth.Response) error {
	if !resp.IsJSON() {
		_, err := fmt.Fprintln(w, resp.Text())
		return err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, resp.Body, "", "  "); err != nil {
		_, err = fmt.Fprintln(w, resp.Text())
		return err
	}
	out.WriteByte('\n')
	_, err := out.WriteTo(w)
	return err
}
