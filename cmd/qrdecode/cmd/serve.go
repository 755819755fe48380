package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ericlevine/qrdecode/internal/cache"
	"github.com/ericlevine/qrdecode/internal/server"
)

func (a *app) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the decode API and the chat message feed",
		Long: `Start an HTTP server with the following endpoints:
  POST /v1/decode    decode an uploaded image or a referenced one
  GET  /v1/messages  websocket feed answering chat messages
  GET  /healthz      health check
  GET  /metrics      Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := a.newCache(ctx)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			l := a.newLoader(true)
			srv := server.New(server.Options{
				Config:  *a.cfg,
				Scanner: a.newScanner(l),
				Fetcher: l,
				Cache:   store,
				Logger:  a.log,
				Version: a.version,
			})
			return srv.Run(ctx)
		},
	}
	cmd.Flags().String("addr", "", "listen address (default from config, :8080)")
	_ = a.v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

// newCache returns the configured result store, or nil when caching is off.
// An unreachable Redis falls back to the in-process cache.
func (a *app) newCache(ctx context.Context) (cache.Store, error) {
	c := a.cfg.Cache
	if !c.Enabled {
		return nil, nil
	}
	if c.RedisAddr != "" {
		r := cache.NewRedis(cache.RedisOptions{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
			TTL:      c.TTL,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		err := r.Ping(pingCtx)
		if err == nil {
			a.log.Info("result cache: redis", zap.String("addr", c.RedisAddr))
			return r, nil
		}
		a.log.Warn("redis unreachable, using memory cache", zap.String("addr", c.RedisAddr), zap.Error(err))
		_ = r.Close()
	}
	m, err := cache.NewMemory(c.Size)
	if err != nil {
		return nil, err
	}
	a.log.Info("result cache: memory", zap.Int("size", c.Size))
	return m, nil
}
