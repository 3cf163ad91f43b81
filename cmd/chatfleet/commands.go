package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/chatfleet"
)

func parseSlotArg(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid slot number %q", arg)
	}
	return n, nil
}

func createStatusCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show fleet status",
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, _, err := newSupervisor(flags)
			if err != nil {
				return err
			}
			defer func() { _ = sup.Close() }()
			statuses, err := sup.Status(cmd.Context())
			if err != nil {
				return err
			}
			return renderStatus(statuses)
		},
	}
}

func renderStatus(statuses []chatfleet.SlotStatus) error {
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SLOT\tNAME\tPORT\tSTATUS\tPID\tCONFIG")
	for _, st := range statuses {
		state := "stopped"
		if st.Running {
			state = "running"
		}
		pid := "-"
		if st.PID > 0 {
			pid = strconv.Itoa(st.PID)
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\n",
			st.Slot, st.Name, st.Port, state, pid, st.ConfigFile)
	}
	return w.Flush()
}

func createStartCommand(flags *GlobalFlags) *cobra.Command {
	var background bool
	cmd := &cobra.Command{
		Use:   "start <slot>",
		Short: "Start a server slot",
		Long: `Start a server slot. If the slot's port is already live the command
succeeds without spawning a second process.

Foreground (default) relays server output until the process exits or the
command is interrupted; background returns once the server is confirmed
listening.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := parseSlotArg(args[0])
			if err != nil {
				return err
			}
			sup, _, err := newSupervisor(flags)
			if err != nil {
				return err
			}
			defer func() { _ = sup.Close() }()
			out, err := sup.Start(cmd.Context(), slot, background, os.Stdout)
			if err != nil {
				return err
			}
			if out.AlreadyRunning {
				fmt.Printf("Server %d is already running\n", slot)
				return nil
			}
			if background {
				fmt.Printf("Server %d started (pid %d)\n", slot, out.PID)
			} else if out.ExitErr != nil {
				return fmt.Errorf("server %d exited: %w", slot, out.ExitErr)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&background, "background", "b", false, "start in background")
	return cmd
}

func createStartAllCommand(flags *GlobalFlags) *cobra.Command {
	var delay time.Duration
	cmd := &cobra.Command{
		Use:   "start-all",
		Short: "Reset and start all servers in order",
		Long: `Stop every slot, then start slots in ascending order waiting --delay
between successive starts so earlier servers become discoverable before their
dependents come up. The sequence aborts on the first failed start.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, cfg, err := newSupervisor(flags)
			if err != nil {
				return err
			}
			defer func() { _ = sup.Close() }()
			started, err := sup.StartAll(cmd.Context(), delay)
			fmt.Printf("Started %d/%d servers\n", started, len(cfg.Slots))
			return err
		},
	}
	cmd.Flags().DurationVarP(&delay, "delay", "d", 3*time.Second, "delay between successive starts")
	return cmd
}

func createStopCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <slot>",
		Short: "Stop a server slot",
		Long: `Stop a server slot: graceful signal to the recorded pid, bounded grace
period, forced kill if needed. Falls back to the process owning the listening
port when the pid record is missing or stale. Stopping a stopped slot is a
no-op success.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := parseSlotArg(args[0])
			if err != nil {
				return err
			}
			sup, _, err := newSupervisor(flags)
			if err != nil {
				return err
			}
			defer func() { _ = sup.Close() }()
			out, err := sup.Stop(cmd.Context(), slot)
			if err != nil {
				return err
			}
			if out.WasRunning {
				fmt.Printf("Server %d stopped (pid %d)\n", slot, out.PID)
			} else {
				fmt.Printf("Server %d was not running\n", slot)
			}
			return nil
		},
	}
}

func createStopAllCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop-all",
		Short: "Stop all servers and sweep orphans",
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, cfg, err := newSupervisor(flags)
			if err != nil {
				return err
			}
			defer func() { _ = sup.Close() }()
			stopped, err := sup.StopAll(cmd.Context())
			fmt.Printf("Stopped %d/%d servers\n", stopped, len(cfg.Slots))
			return err
		},
	}
}

func createLogsCommand(flags *GlobalFlags) *cobra.Command {
	var follow bool
	var lines int
	cmd := &cobra.Command{
		Use:   "logs <slot>",
		Short: "Show server logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := parseSlotArg(args[0])
			if err != nil {
				return err
			}
			sup, _, err := newSupervisor(flags)
			if err != nil {
				return err
			}
			defer func() { _ = sup.Close() }()
			if follow {
				return sup.FollowLog(cmd.Context(), slot, lines, os.Stdout)
			}
			tail, err := sup.TailLog(slot, lines)
			if err != nil {
				return err
			}
			if len(tail) == 0 {
				fmt.Println("Log file is empty")
				return nil
			}
			for _, l := range tail {
				fmt.Println(l)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "number of lines to show")
	return cmd
}

func createDemoCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run the bootstrap demonstration",
		Long: `Reset the fleet, start the bootstrap server, give it time to become
discoverable, start the first client server against it, then show status.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, _, err := newSupervisor(flags)
			if err != nil {
				return err
			}
			defer func() { _ = sup.Close() }()
			ctx := cmd.Context()

			fmt.Println("Running bootstrap demonstration...")
			if _, err := sup.StopAll(ctx); err != nil {
				return err
			}
			fmt.Println("  1. Starting bootstrap server (server 1)...")
			if _, err := sup.Start(ctx, 1, true, nil); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
			fmt.Println("  2. Starting client server (server 2)...")
			if _, err := sup.Start(ctx, 2, true, nil); err != nil {
				return err
			}
			fmt.Println("Demo servers started. Check status and logs.")
			statuses, err := sup.Status(ctx)
			if err != nil {
				return err
			}
			return renderStatus(statuses)
		},
	}
}

func createHistoryCommand(flags *GlobalFlags) *cobra.Command {
	var slot, limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent lifecycle events",
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, _, err := newSupervisor(flags)
			if err != nil {
				return err
			}
			defer func() { _ = sup.Close() }()
			events, err := sup.History(cmd.Context(), slot, limit)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Println("No recorded events")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "TIME\tSLOT\tEVENT\tPID\tDETAIL")
			for _, ev := range events {
				_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\n",
					ev.OccurredAt.Local().Format(time.DateTime), ev.Slot, ev.Type, ev.PID, ev.Detail)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&slot, "slot", 0, "filter by slot (0 = all)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum events to show")
	return cmd
}
