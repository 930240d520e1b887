package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/quota"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/store"
)

// QuotaOptions holds flags for the quota command.
type QuotaOptions struct {
	*RootOptions
	TenantID string
	Period   string
}

type quotaResult struct {
	TenantID string               `json:"tenant_id"`
	Quota    domain.QuotaSnapshot `json:"quota"`
}

func (r quotaResult) Text() string {
	q := r.Quota
	limit, remaining := "unlimited", "unlimited"
	if q.OrdersLimit != nil {
		limit = fmt.Sprint(*q.OrdersLimit)
	}
	if q.OrdersRemaining != nil {
		remaining = fmt.Sprint(*q.OrdersRemaining)
	}
	plan := "-"
	if q.Plan != nil {
		plan = *q.Plan
	}
	return fmt.Sprintf("tenant %s plan %s period %s: used %d of %s, remaining %s, can create: %t\n",
		r.TenantID, plan, q.Period, q.OrdersUsed, limit, remaining, q.CanCreateOrder)
}

// NewQuotaCommand creates the quota command.
func NewQuotaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QuotaOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Show a tenant's order quota for a period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuota(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringVar(&opts.TenantID, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&opts.Period, "period", "", "period as YYYY-MM (default: current)")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runQuota(cmd *cobra.Command, opts *QuotaOptions) error {
	if opts.Period != "" && !quota.ValidPeriod(opts.Period) {
		return commandError(KindUsage, fmt.Sprintf("invalid period %q: want YYYY-MM", opts.Period), nil)
	}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	setupLogging(cfg, opts.RootOptions, cmd.ErrOrStderr())
	printer := newPrinter(cmd, opts.RootOptions)

	q, err := quotaService(cfg, domain.SystemClock{})
	if err != nil {
		return commandError(KindConfig, "invalid quota configuration", err)
	}

	ctx := cmd.Context()
	st, err := openStore(ctx, cfg.Database)
	if err != nil {
		return runtimeError(KindStore, "failed to open database", err)
	}
	defer st.Close()

	snap, err := q.Snapshot(ctx, st, opts.TenantID, opts.Period)
	if errors.Is(err, store.ErrNotFound) {
		return commandError(KindNotFound, fmt.Sprintf("tenant %s not found", opts.TenantID), nil)
	}
	if err != nil {
		return runtimeError(KindStore, "failed to read quota", err)
	}
	return printer.Result(quotaResult{TenantID: opts.TenantID, Quota: snap})
}
