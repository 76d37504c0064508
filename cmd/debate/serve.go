package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-debate/internal/replay"
	"github.com/tjfontaine/polyglot-debate/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local archive over the backend HTTP API",
		Long: `Serve the local archive over the same routes as the debate backend:

  POST /GenerateDebate   stream an archived debate matching topic and panel
  GET  /list-debates     page through archived debates
  GET  /get-debate?id=   fetch one archived debate

Point api.base_url at this server to replay debates offline.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("serve needs an archive (storage.type=%s)", a.cfg.Storage.Type)
			}
			defer store.Close()

			if port == 0 {
				port = a.cfg.Server.Port
			}

			srv := server.New(port, a.logger, server.WithRequestTimeout(a.cfg.API.Timeout))
			replay.NewHandler(store, a.logger,
				replay.WithChunkSize(a.cfg.Server.ChunkSize),
				replay.WithPacing(a.cfg.Server.Pacing),
			).RegisterRoutes(srv.Router)

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}

			// Graceful shutdown
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (default server.port)")
	return cmd
}
