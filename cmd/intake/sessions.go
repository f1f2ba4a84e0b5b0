package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zulandar/intake/internal/intake"
	"github.com/zulandar/intake/internal/store"
	"github.com/zulandar/intake/internal/textui"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"s"},
		Short:   "Inspect stored intake sessions",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsShowCmd())
	return cmd
}

func newSessionsListCmd() *cobra.Command {
	var (
		configPath string
		opts       store.ListOpts
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsList(cmd, configPath, opts)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&opts.Status, "status", "", "filter by status (active, completed, abandoned, expired)")
	cmd.Flags().StringVar(&opts.Source, "source", "", "filter by source (cli, web, slack, discord)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum rows to show")
	return cmd
}

func runSessionsList(cmd *cobra.Command, configPath string, opts store.ListOpts) error {
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	sessions, err := st.List(opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HANDLE\tSOURCE\tUSER\tSTATUS\tPHASE\tLAST ACTIVITY")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.Handle, s.Source, dash(s.UserName), s.Status, dash(s.Phase), s.LastActivity.Format(time.DateTime))
	}
	w.Flush()
	return nil
}

func newSessionsShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <handle>",
		Short: "Show a session and its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsShow(cmd, configPath, args[0])
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runSessionsShow(cmd *cobra.Command, configPath, handle string) error {
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	sess, err := st.Get(handle)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("session %s not found", handle)
	}
	if err != nil {
		return err
	}
	history, err := st.History(sess.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session:  %s\n", sess.Handle)
	fmt.Fprintf(out, "Source:   %s\n", sess.Source)
	if sess.UserName != "" {
		fmt.Fprintf(out, "User:     %s\n", sess.UserName)
	}
	if sess.ThreadKey != "" {
		fmt.Fprintf(out, "Thread:   %s\n", sess.ThreadKey)
	}
	fmt.Fprintf(out, "Status:   %s\n", sess.Status)
	if sess.Phase != "" {
		fmt.Fprintf(out, "Phase:    %s\n", sess.Phase)
	}
	if id, ok := st.Slot(sess.ID).Get(); ok {
		fmt.Fprintf(out, "Remote:   %s\n", id)
	}
	fmt.Fprintf(out, "Started:  %s\n", sess.CreatedAt.Format(time.DateTime))
	if sess.CompletedAt != nil {
		fmt.Fprintf(out, "Finished: %s\n", sess.CompletedAt.Format(time.DateTime))
	}

	fmt.Fprintf(out, "\nTranscript (%d messages):\n", len(history))
	for _, m := range history {
		fmt.Fprintf(out, "  %s\n", textui.RenderMessage(intake.Message{
			Author:  intake.Author(m.Author),
			Kind:    intake.Kind(m.Kind),
			Payload: m.Payload,
		}))
	}
	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
