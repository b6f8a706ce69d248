package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ahmetk3436/serverdeck/internal/client"
	"github.com/ahmetk3436/serverdeck/internal/dashboard"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const sessionRenewEvery = 10 * time.Minute

var (
	watchInterval time.Duration
	watchSchedule string
	watchOnce     bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live metrics and status for your servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, sess, err := authedClient(ctx)
		if err != nil {
			return err
		}

		dash, err := dashboard.New(client.Source{Client: c, Interval: time.Minute}, c, dashboard.Options{
			RefreshInterval: watchInterval,
			StatusSchedule:  watchSchedule,
		})
		if err != nil {
			return err
		}

		if watchOnce {
			if err := dash.Load(ctx); err != nil {
				return err
			}
			dash.Poller().RefreshAll(ctx)
			dash.Checker().CheckAll(ctx)
			renderSnapshot(os.Stdout, dash.Snapshot(), time.Now())
			dash.Close()
			return nil
		}

		if err := dash.Start(ctx); err != nil {
			return err
		}
		defer dash.Close()

		changes, cancel := dash.Store().Watch()
		defer cancel()

		renewTicker := time.NewTicker(sessionRenewEvery)
		defer renewTicker.Stop()

		redraw(dash)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-changes:
				redraw(dash)
			case <-renewTicker.C:
				if err := renew(ctx, c, sess); err != nil {
					return err
				}
			}
		}
	},
}

func redraw(dash *dashboard.Dashboard) {
	fmt.Print("\033[H\033[2J")
	renderSnapshot(os.Stdout, dash.Snapshot(), time.Now())
}

func renderSnapshot(w io.Writer, snap dashboard.Snapshot, now time.Time) {
	header := color.New(color.FgYellow, color.Bold)
	last := "never"
	if snap.LastRefresh != nil {
		last = now.Sub(*snap.LastRefresh).Round(time.Second).String() + " ago"
	}
	header.Fprintf(w, "ServerDeck  %d servers  last refresh %s\n\n", len(snap.Servers), last)

	if len(snap.Servers) == 0 {
		fmt.Fprintln(w, "No servers registered")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVER\tSTATUS\tLATENCY\tCPU\tMEMORY\tDISK\tSOURCE")
	for _, st := range snap.Servers {
		latency := "-"
		if st.LatencyMs != nil {
			latency = fmt.Sprintf("%dms", *st.LatencyMs)
		}
		cpu, mem, disk := "-", "-", "-"
		if st.Metrics != nil {
			cpu = fmt.Sprintf("%.1f%%", st.Metrics.CPU)
			mem = fmt.Sprintf("%.1f%%", st.Metrics.Memory.Percentage)
			disk = fmt.Sprintf("%.1f%%", st.Metrics.Disk.Percentage)
		}
		source := string(st.Source)
		if st.Loading {
			source = "loading"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			st.Server.Nickname, statusLabel(st.Status), latency, cpu, mem, disk, sourceLabel(source))
	}
	tw.Flush()

	for _, st := range snap.Servers {
		if st.Error != "" {
			color.New(color.FgHiBlack).Fprintf(w, "  %s: %s\n", st.Server.Nickname, st.Error)
		}
	}
}

func statusLabel(s dashboard.Status) string {
	switch s {
	case dashboard.StatusOnline:
		return color.GreenString(string(s))
	case dashboard.StatusOffline:
		return color.RedString(string(s))
	case dashboard.StatusChecking:
		return color.CyanString(string(s))
	default:
		return color.New(color.FgHiBlack).Sprint(string(s))
	}
}

func sourceLabel(source string) string {
	switch dashboard.Source(source) {
	case dashboard.SourceFallback:
		return color.YellowString(source)
	case dashboard.SourcePartial:
		return color.MagentaString(source)
	default:
		return source
	}
}

func init() {
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", dashboard.DefaultRefreshInterval, "metrics refresh interval")
	watchCmd.Flags().StringVar(&watchSchedule, "status-schedule", dashboard.DefaultStatusSchedule, "status check schedule (cron spec)")
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "refresh and check once, print and exit")
	rootCmd.AddCommand(watchCmd)
}
