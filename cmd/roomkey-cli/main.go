package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	"github.com/davidahmann/roomkey/internal/config"
	"github.com/davidahmann/roomkey/internal/escalation"
	"github.com/davidahmann/roomkey/internal/slack"
)

const escalateTimeout = 30 * time.Second

var exitFn = os.Exit

func main() {
	exitFn(run(os.Args[1:], env.ToMap(os.Environ()), os.Stdout, os.Stderr))
}

func run(args []string, environ map[string]string, stdout, stderr io.Writer) int {
	cfg, err := config.LoadFrom(environ)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 2
	}

	cmd := newRootCommand(cfg, stdout, stderr)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func newRootCommand(cfg config.Config, stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "roomkey-cli",
		Short:        "Escalate conversations to video and request video credentials",
		SilenceUsage: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.PersistentFlags().String("addr", cfg.CLI.GatewayURL, "issuance gateway address")
	cmd.PersistentFlags().String("token", cfg.CLI.CallerToken, "caller session token")

	cmd.AddCommand(
		newEscalateCommand(cfg),
		newIssueCommand(),
	)
	return cmd
}

func issuerFromFlags(cmd *cobra.Command) *escalation.HTTPIssuer {
	addr, _ := cmd.Flags().GetString("addr")
	token, _ := cmd.Flags().GetString("token")
	return &escalation.HTTPIssuer{BaseURL: addr, CallerToken: token}
}

type escalateOptions struct {
	task         string
	conversation string
	worker       string
	user         string
	joinBase     string
}

func newEscalateCommand(cfg config.Config) *cobra.Command {
	var opts escalateOptions

	cmd := &cobra.Command{
		Use:   "escalate",
		Short: "Escalate a conversation to a video session",
		Args:  cobra.NoArgs,
		Example: `  roomkey-cli escalate --task TK123 --conversation C123 --worker "Ann"
  roomkey-cli escalate --task TK123 --conversation C123 --user U456`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := cfg.Log.NewLogger()
			out := cmd.OutOrStdout()

			orch := &escalation.Orchestrator{
				Issuer:      issuerFromFlags(cmd),
				Sender:      escalation.WriterSender{Out: out},
				Surface:     escalation.WriterSurface{Out: out},
				Notifier:    escalation.WriterNotifier{Out: cmd.ErrOrStderr()},
				JoinBaseURL: opts.joinBase,
				Log:         log,
			}
			if cfg.Slack.BotToken != "" {
				client, err := slack.NewClient(cfg.Slack.BotToken, cfg.Slack.APIURL, nil, log)
				if err != nil {
					return err
				}
				orch.Sender = client
			}

			var task *escalation.Task
			if opts.task != "" || opts.conversation != "" {
				task = &escalation.Task{Key: opts.task, ConversationKey: opts.conversation}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), escalateTimeout)
			defer cancel()
			err := orch.Escalate(ctx, escalation.Trigger{
				Task:      task,
				Requester: escalation.Requester{ID: opts.user, Name: opts.worker},
			})
			if err != nil {
				// The notifier already showed the generic notice; the cause is for logs only.
				log.Debug().Err(err).Msg("escalation did not complete")
				cmd.SilenceErrors = true
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.task, "task", "", "task key the session is scoped to")
	cmd.Flags().StringVar(&opts.conversation, "conversation", "", "conversation (Slack channel) to post the invite into")
	cmd.Flags().StringVar(&opts.worker, "worker", "", "agent display name (default \"Agent\")")
	cmd.Flags().StringVar(&opts.user, "user", "", "requesting user id")
	cmd.Flags().StringVar(&opts.joinBase, "join-base", cfg.JoinBaseURL, "join page base URL")

	return cmd
}

func newIssueCommand() *cobra.Command {
	var (
		task    string
		worker  string
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:     "issue",
		Short:   "Request a raw credential pair from the gateway",
		Args:    cobra.NoArgs,
		Example: `  roomkey-cli issue --task TK123 --worker Ann --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), escalateTimeout)
			defer cancel()

			res, err := issuerFromFlags(cmd).Issue(ctx, task, worker)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetEscapeHTML(false)
				return enc.Encode(res)
			}
			_, err = fmt.Fprintf(out, "room=%s\nagent_token=%s\ncustomer_token=%s\n", res.RoomName, res.AgentToken, res.CustomerToken)
			return err
		},
	}

	cmd.Flags().StringVar(&task, "task", "", "task key the session is scoped to")
	cmd.Flags().StringVar(&worker, "worker", "", "agent display name")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the raw JSON response")
	_ = cmd.MarkFlagRequired("task")

	return cmd
}
