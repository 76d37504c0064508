package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-debate/internal/api/debates"
	"github.com/tjfontaine/polyglot-debate/internal/cache"
	"github.com/tjfontaine/polyglot-debate/internal/core/domain"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit  int
		offset int
		local  bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past debates, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var page *debates.ListDebatesResponse
			var err error
			if local {
				store, openErr := a.openStore()
				if openErr != nil {
					return openErr
				}
				if store == nil {
					return fmt.Errorf("local archive is disabled (storage.type=%s)", a.cfg.Storage.Type)
				}
				defer store.Close()
				page, err = cache.ArchiveSource{Store: store}.ListDebates(ctx, limit, offset)
			} else {
				page, err = a.client().ListDebates(ctx, limit, offset)
			}
			if err != nil {
				return fmt.Errorf("failed to list debates: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTARTED\tTOPIC\tPANELISTS")
			for _, d := range page.Debates {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					d.ID, d.CreatedAt.Local().Format(time.DateTime), d.Topic, panelNames(d.Panelists))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if page.HasMore {
				fmt.Fprintf(cmd.ErrOrStderr(), "\n%d of %d shown; next page: --offset %d\n",
					len(page.Debates), page.Total, offset+len(page.Debates))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "debates per page")
	cmd.Flags().IntVar(&offset, "offset", 0, "debates to skip")
	cmd.Flags().BoolVar(&local, "local", false, "list the local archive instead of remote history")
	return cmd
}

func panelNames(panelists []domain.Panelist) string {
	names := make([]string, len(panelists))
	for i, p := range panelists {
		names[i] = p.Name
		if names[i] == "" {
			names[i] = p.ID
		}
	}
	return strings.Join(names, ", ")
}
