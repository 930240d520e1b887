package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/changes"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/store"
)

// FeedOptions holds flags for the feed command.
type FeedOptions struct {
	*RootOptions
	TenantID string
	After    int64
	Limit    int
	Outlets  []string
}

type feedResult struct {
	TenantID   string                `json:"tenant_id"`
	NextCursor int64                 `json:"next_cursor"`
	Changes    []domain.ChangeRecord `json:"changes"`
}

func (r feedResult) Text() string {
	var b strings.Builder
	for _, c := range r.Changes {
		outlet := "-"
		if c.OutletID != nil {
			outlet = *c.OutletID
		}
		fmt.Fprintf(&b, "%6d  %-6s  %-10s  %-12s  %s  %s\n",
			c.Cursor, c.Op, outlet, c.EntityType, c.EntityID, c.UpdatedAt)
	}
	fmt.Fprintf(&b, "%d changes, next cursor %d\n", len(r.Changes), r.NextCursor)
	return b.String()
}

// NewFeedCommand creates the feed command.
func NewFeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Dump a tenant's change feed",
		Long: `Print change records with cursor greater than --after in cursor order.
Unlike a device pull this skips authorization; it is an operator tool.`,
		Example: `  laundrysync feed --tenant t1
  laundrysync feed --tenant t1 --after 120 --outlet o1 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeed(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringVar(&opts.TenantID, "tenant", "", "tenant id (required)")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "return changes after this cursor")
	cmd.Flags().IntVar(&opts.Limit, "limit", changes.DefaultLimit, "maximum number of changes")
	cmd.Flags().StringSliceVar(&opts.Outlets, "outlet", nil, "restrict to these outlets (tenant-wide rows always included)")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runFeed(cmd *cobra.Command, opts *FeedOptions) error {
	if opts.Limit < 1 || opts.Limit > changes.MaxLimit {
		return commandError(KindUsage, fmt.Sprintf("--limit must be between 1 and %d", changes.MaxLimit), nil)
	}
	if opts.After < 0 {
		return commandError(KindUsage, "--after must not be negative", nil)
	}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	setupLogging(cfg, opts.RootOptions, cmd.ErrOrStderr())
	printer := newPrinter(cmd, opts.RootOptions)

	ctx := cmd.Context()
	st, err := openStore(ctx, cfg.Database)
	if err != nil {
		return runtimeError(KindStore, "failed to open database", err)
	}
	defer st.Close()

	records, err := st.ListChanges(ctx, store.ChangeFilter{
		TenantID:  opts.TenantID,
		After:     opts.After,
		OutletIDs: opts.Outlets,
		Limit:     opts.Limit,
	})
	if err != nil {
		return runtimeError(KindStore, "failed to read change feed", err)
	}

	res := feedResult{TenantID: opts.TenantID, NextCursor: opts.After, Changes: records}
	if len(records) > 0 {
		res.NextCursor = records[len(records)-1].Cursor
	}
	if res.Changes == nil {
		res.Changes = []domain.ChangeRecord{}
	}
	return printer.Result(res)
}
