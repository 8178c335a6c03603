package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grovetools/causes/cli"
	"github.com/grovetools/causes/config"
	"github.com/grovetools/causes/errors"
	"github.com/grovetools/causes/pkg/daemon"
	"github.com/grovetools/causes/pkg/livesync"
	"github.com/grovetools/causes/pkg/models"
	"github.com/grovetools/causes/pkg/profiling"
	"github.com/grovetools/causes/pkg/query"
	"github.com/spf13/cobra"
)

type browseOptions struct {
	params  query.Params
	follow  bool
	timeout time.Duration
	retry   time.Duration
	json    bool
}

// NewBrowseCmd returns the browse command.
func NewBrowseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browse <collection>",
		Short: "Show a live, filtered view of a collection",
		Long: `Subscribe to a collection, wait for the first snapshot and print the
entities selected by --category and --search.

With --follow the view is re-rendered on every update until interrupted.
If the source fails, the reason is printed together with the last synced
entities.`,
		Example: `  causes browse ngos --category Health
  causes browse events --kind event --search gala --follow`,
		Args: cobra.ExactArgs(1),
		RunE: runBrowse,
	}

	cmd.Flags().String("kind", "", "Entity kind (organization or event); defaults to the collection's configured kind")
	cmd.Flags().String("category", query.AllCategories, "Only show entities in this category (exact match)")
	cmd.Flags().StringP("search", "s", "", "Case-insensitive text to match in name or description")
	cmd.Flags().BoolP("follow", "f", false, "Keep running and re-render on every update")
	cmd.Flags().Duration("timeout", 10*time.Second, "How long to wait for the first snapshot")
	cmd.Flags().Duration("retry", 5*time.Second, "With --follow, resubscribe this long after a failure when the source does not reconnect by itself (0 disables)")

	return cmd
}

func runBrowse(cmd *cobra.Command, args []string) error {
	cfg, err := cli.LoadConfig(cmd)
	if err != nil {
		return err
	}
	name := args[0]

	kind := cfg.KindOf(name)
	if k, _ := cmd.Flags().GetString("kind"); k != "" {
		kind = models.Kind(k)
	}
	if !kind.Valid() {
		return errors.InvalidQuery(fmt.Sprintf("unknown kind %q", kind)).WithDetail("field", "kind")
	}

	category, _ := cmd.Flags().GetString("category")
	search, _ := cmd.Flags().GetString("search")
	params := query.All().InCategory(category).Matching(search).Normalize()
	if err := params.Validate(); err != nil {
		return err
	}

	opts := browseOptions{params: params, json: cli.GetOptions(cmd).JSONOutput}
	opts.follow, _ = cmd.Flags().GetBool("follow")
	opts.timeout, _ = cmd.Flags().GetDuration("timeout")
	opts.retry, _ = cmd.Flags().GetDuration("retry")
	if interval, err := cfg.Source.Reconnect(); err == nil && interval > 0 {
		// The source reconnects on its own.
		opts.retry = 0
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch kind {
	case models.KindEvent:
		return browse(ctx, cmd, cfg, name, models.DecodeEvent, opts)
	default:
		return browse(ctx, cmd, cfg, name, models.DecodeOrganization, opts)
	}
}

func browse[T models.Record](ctx context.Context, cmd *cobra.Command, cfg *config.Config, name string, decode models.Decoder[T], o browseOptions) error {
	logger := cli.GetLogger(cmd, "browse")

	src, err := daemon.NewSource(cfg.Source, decode, logger)
	if err != nil {
		return err
	}
	ctrl := livesync.New(name, src, livesync.WithLogger(logger), livesync.WithParams(o.params))
	return followController(ctx, cmd, ctrl, o)
}

// followController starts ctrl and renders its views. Without follow it
// returns after the first Ready or Error view.
func followController[T models.Record](ctx context.Context, cmd *cobra.Command, ctrl *livesync.Controller[T], o browseOptions) error {
	out := cmd.OutOrStdout()
	render := func(v livesync.View[T]) error {
		if o.json {
			return writeViewJSON(out, v)
		}
		return renderView(out, v)
	}

	views, cancelWatch := ctrl.Watch()
	defer cancelWatch()
	if err := ctrl.Start(); err != nil {
		return err
	}
	defer ctrl.Stop()

	if !o.follow {
		defer profiling.Start("first view").Stop()
		timer := time.NewTimer(o.timeout)
		defer timer.Stop()
		for {
			select {
			case v := <-views:
				switch v.State {
				case livesync.PhaseReady:
					return render(v)
				case livesync.PhaseError:
					if err := render(v); err != nil {
						return err
					}
					return v.Err()
				}
			case <-timer.C:
				return errors.Connectivity(ctrl.Name(), fmt.Errorf("no snapshot within %s", o.timeout))
			case <-ctx.Done():
				return nil
			}
		}
	}

	var retry <-chan time.Time
	for {
		select {
		case v, ok := <-views:
			if !ok {
				return nil
			}
			if v.State == livesync.PhaseLoading || v.State == livesync.PhaseIdle {
				continue
			}
			if err := render(v); err != nil {
				return err
			}
			if v.State == livesync.PhaseError && o.retry > 0 && retry == nil {
				retry = time.After(o.retry)
			}
		case <-retry:
			retry = nil
			if err := ctrl.Retry(); err != nil && !errors.Is(err, errors.ErrCodeInvalidTransition) {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
