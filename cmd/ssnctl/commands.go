package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/warp/ssn-filing/app"
	"github.com/warp/ssn-filing/calendar"
	"github.com/warp/ssn-filing/filing"
	"github.com/warp/ssn-filing/lifecycle"
)

// =============================================================================
// SHARED
// =============================================================================

// target selects one submission by delivery type and period.
type target struct {
	deliveryType string
	period       string
}

func (t *target) setFlags(f *flag.FlagSet) {
	f.StringVar(&t.deliveryType, "type", "weekly", "Delivery type (weekly, monthly)")
	f.StringVar(&t.period, "period", "", "Schedule period (YYYY-WW or YYYY-MM)")
}

func (t *target) parse() (filing.DeliveryType, error) {
	dt, err := filing.ParseDeliveryType(t.deliveryType)
	if err != nil {
		return "", err
	}
	if t.period == "" {
		return "", fmt.Errorf("-period is required")
	}
	return dt, nil
}

func (t *target) find(ctx context.Context, a *app.App) (filing.Submission, error) {
	dt, err := t.parse()
	if err != nil {
		return filing.Submission{}, err
	}
	return a.Store.FindSubmission(ctx, dt, t.period)
}

// run opens the application, runs fn and maps its error to an exit status.
func run(ctx context.Context, fn func(a *app.App) error) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if err := fn(a); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printSendResult prints a regulator answer and fails on rejection.
func printSendResult(res lifecycle.SendResult) error {
	if err := printJSON(res); err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("regulator answered %d", res.Status)
	}
	return nil
}

// =============================================================================
// SUBMISSIONS
// =============================================================================

type validateCmd struct{ target }

func (*validateCmd) Name() string     { return "validate" }
func (*validateCmd) Synopsis() string { return "check whether a period can be created" }
func (*validateCmd) Usage() string {
	return `ssnctl validate -type <weekly|monthly> -period <id>

  Runs the pre-creation checks (duplicate, sequencing, regulator state,
  monthly data) and prints every failure.
`
}
func (c *validateCmd) SetFlags(f *flag.FlagSet) { c.setFlags(f) }

func (c *validateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	dt, err := c.parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	return run(ctx, func(a *app.App) error {
		failures, err := a.Lifecycle.Validator.Validate(ctx, dt, c.period, "")
		if err != nil {
			return err
		}
		if len(failures) == 0 {
			fmt.Println("OK")
			return nil
		}
		for _, f := range failures {
			fmt.Printf("%s: %s\n", f.Field, f.Message)
		}
		return fmt.Errorf("%d validation failure(s)", len(failures))
	})
}

type createCmd struct{ target }

func (*createCmd) Name() string     { return "create" }
func (*createCmd) Synopsis() string { return "create a submission (monthly: generate its stock)" }
func (*createCmd) Usage() string {
	return `ssnctl create -type <weekly|monthly> -period <id>
`
}
func (c *createCmd) SetFlags(f *flag.FlagSet) { c.setFlags(f) }

func (c *createCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	dt, err := c.parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	return run(ctx, func(a *app.App) error {
		res, err := a.Lifecycle.Create(ctx, dt, c.period)
		if err != nil {
			return err
		}
		return printJSON(res)
	})
}

type sendCmd struct{ target }

func (*sendCmd) Name() string     { return "send" }
func (*sendCmd) Synopsis() string { return "deliver and confirm a submission" }
func (*sendCmd) Usage() string {
	return `ssnctl send -type <weekly|monthly> -period <id>
`
}
func (c *sendCmd) SetFlags(f *flag.FlagSet) { c.setFlags(f) }

func (c *sendCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app.App) error {
		sub, err := c.find(ctx, a)
		if err != nil {
			return err
		}
		res, err := a.Lifecycle.Send(ctx, sub.ID)
		if err != nil {
			return err
		}
		return printSendResult(res)
	})
}

type rectifyCmd struct{ target }

func (*rectifyCmd) Name() string     { return "rectify" }
func (*rectifyCmd) Synopsis() string { return "request the rectification of a filed period" }
func (*rectifyCmd) Usage() string {
	return `ssnctl rectify -type <weekly|monthly> -period <id>
`
}
func (c *rectifyCmd) SetFlags(f *flag.FlagSet) { c.setFlags(f) }

func (c *rectifyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app.App) error {
		sub, err := c.find(ctx, a)
		if err != nil {
			return err
		}
		res, err := a.Lifecycle.RequestRectification(ctx, sub.ID)
		if err != nil {
			return err
		}
		return printSendResult(res)
	})
}

type cancelRectificationCmd struct{ target }

func (*cancelRectificationCmd) Name() string { return "cancel-rectification" }
func (*cancelRectificationCmd) Synopsis() string {
	return "drop rows added since the last send and resync"
}
func (*cancelRectificationCmd) Usage() string {
	return `ssnctl cancel-rectification -type <weekly|monthly> -period <id>
`
}
func (c *cancelRectificationCmd) SetFlags(f *flag.FlagSet) { c.setFlags(f) }

func (c *cancelRectificationCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app.App) error {
		sub, err := c.find(ctx, a)
		if err != nil {
			return err
		}
		res, err := a.Lifecycle.CancelRectification(ctx, sub.ID)
		if err != nil {
			return err
		}
		return printJSON(res)
	})
}

type syncCmd struct {
	deliveryType string
}

func (*syncCmd) Name() string     { return "sync" }
func (*syncCmd) Synopsis() string { return "poll the regulator for every submission" }
func (*syncCmd) Usage() string {
	return `ssnctl sync [-type <weekly|monthly>]

  Copies the regulator's state onto the local submissions. Without -type
  both delivery types are polled.
`
}
func (c *syncCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.deliveryType, "type", "", "Delivery type (weekly, monthly); empty for both")
}

func (c *syncCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var dt filing.DeliveryType
	if c.deliveryType != "" {
		var err error
		if dt, err = filing.ParseDeliveryType(c.deliveryType); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitUsageError
		}
	}
	return run(ctx, func(a *app.App) error {
		changed, err := a.Lifecycle.SyncAll(ctx, dt)
		if err != nil {
			return err
		}
		fmt.Printf("%d submission(s) changed state\n", changed)
		return nil
	})
}

// =============================================================================
// STOCK
// =============================================================================

type generateCmd struct{ period string }

func (*generateCmd) Name() string     { return "generate" }
func (*generateCmd) Synopsis() string { return "generate the stock of a monthly submission" }
func (*generateCmd) Usage() string {
	return `ssnctl generate -period <YYYY-MM>
`
}
func (c *generateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.period, "period", "", "Monthly schedule period (YYYY-MM)")
}

func (c *generateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	t := target{deliveryType: "monthly", period: c.period}
	return run(ctx, func(a *app.App) error {
		sub, err := t.find(ctx, a)
		if err != nil {
			return err
		}
		res, err := a.Lifecycle.GenerateStock(ctx, sub.ID)
		if err != nil {
			return err
		}
		if err := printJSON(res); err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("%s", res.Message)
		}
		return nil
	})
}

type clearStockCmd struct{ period string }

func (*clearStockCmd) Name() string     { return "clear-stock" }
func (*clearStockCmd) Synopsis() string { return "delete every stock row of a monthly submission" }
func (*clearStockCmd) Usage() string {
	return `ssnctl clear-stock -period <YYYY-MM>
`
}
func (c *clearStockCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.period, "period", "", "Monthly schedule period (YYYY-MM)")
}

func (c *clearStockCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	t := target{deliveryType: "monthly", period: c.period}
	return run(ctx, func(a *app.App) error {
		sub, err := t.find(ctx, a)
		if err != nil {
			return err
		}
		n, err := a.Lifecycle.ClearStock(ctx, sub.ID)
		if err != nil {
			return err
		}
		fmt.Printf("%d stock row(s) deleted\n", n)
		return nil
	})
}

// =============================================================================
// CALENDAR
// =============================================================================

type alertsCmd struct{}

func (*alertsCmd) Name() string     { return "alerts" }
func (*alertsCmd) Synopsis() string { return "list periods still due, most urgent first" }
func (*alertsCmd) Usage() string {
	return `ssnctl alerts
`
}
func (*alertsCmd) SetFlags(*flag.FlagSet) {}

func (*alertsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app.App) error {
		alerts, err := a.Lifecycle.Alerts(ctx, nil)
		if err != nil {
			return err
		}
		for _, al := range alerts {
			fmt.Printf("[%-7s] %-8s %s\n", al.Level, al.Period, al.Message)
		}
		return nil
	})
}

// weeksCmd needs no database: it only prints calendar options.
type weeksCmd struct {
	year    int
	monthly bool
}

func (*weeksCmd) Name() string     { return "weeks" }
func (*weeksCmd) Synopsis() string { return "list the selectable periods of a year" }
func (*weeksCmd) Usage() string {
	return `ssnctl weeks [-year <YYYY>] [-monthly]
`
}
func (c *weeksCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.year, "year", time.Now().Year(), "Year")
	f.BoolVar(&c.monthly, "monthly", false, "List months instead of ISO weeks")
}

func (c *weeksCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	today := calendar.Today()
	opts, def := calendar.WeekOptions(c.year), calendar.DefaultWeek(today)
	if c.monthly {
		opts, def = calendar.MonthOptions(c.year), calendar.DefaultMonth(today)
	}
	for _, o := range opts {
		marker := " "
		if o.ID == def {
			marker = "*"
		}
		fmt.Printf("%s %s  %s\n", marker, o.ID, o.Label)
	}
	return subcommands.ExitSuccess
}

// =============================================================================
// ADMIN
// =============================================================================

type importCmd struct {
	period   string
	year     int
	periodID string
	dryRun   bool
	force    bool
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "import past deliveries from the regulator" }
func (*importCmd) Usage() string {
	return `ssnctl import -period <weekly|monthly> -year <YYYY> [-period-id <id>] [-dry-run] [-force]

  Pulls every closed period of the year and stores it as a SUBMITTED
  submission dated at its presentation day. Existing periods are skipped
  unless -force is set.
`
}
func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.period, "period", "weekly", "Delivery type (weekly, monthly)")
	f.IntVar(&c.year, "year", time.Now().Year(), "Year to import")
	f.StringVar(&c.periodID, "period-id", "", "Import a single period (YYYY-WW or YYYY-MM)")
	f.BoolVar(&c.dryRun, "dry-run", false, "Fetch and decode without writing")
	f.BoolVar(&c.force, "force", false, "Replace periods that already exist")
}

func (c *importCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	dt, err := filing.ParseDeliveryType(c.period)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	return run(ctx, func(a *app.App) error {
		stats, err := a.Lifecycle.ImportHistory(ctx, lifecycle.ImportOptions{
			DeliveryType: dt,
			Year:         c.year,
			PeriodID:     c.periodID,
			DryRun:       c.dryRun,
			Force:        c.force,
		})
		if err != nil {
			return err
		}
		for _, f := range stats.Failures {
			fmt.Fprintln(os.Stderr, f)
		}
		fmt.Printf("processed=%d created=%d skipped=%d errors=%d rows=%d\n",
			stats.Processed, stats.Created, stats.Skipped, stats.Errors, stats.RowsCreated)
		return nil
	})
}
