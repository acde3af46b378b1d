/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/codearena/judge/internal/logging"
	"github.com/codearena/judge/internal/mq"
	"github.com/codearena/judge/types"
	"github.com/spf13/cobra"
)

// eventsCmd tails submission events from the configured broker.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print submission events as they are published",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		log := logging.NewOrNop()
		defer func() { _ = log.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		broker, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			if errors.Is(err, mq.ErrDisabled) {
				return errors.New("no message broker configured (set MQ_BACKEND)")
			}
			return err
		}
		defer func() { _ = broker.Close() }()

		out := cmd.OutOrStdout()
		log.Infow("listening for submission events", "channel", cfg.MQ.Channel)
		err = broker.Subscribe(ctx, cfg.MQ.Channel, func(ctx context.Context, msg mq.Message) error {
			var event types.SubmissionEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				log.Warnw("dropping undecodable event", "message_id", msg.ID, "error", err)
				return nil
			}
			_, err := fmt.Fprintf(out, "%s submission=%d user=%d problem=%d passed=%d/%d\n",
				event.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
				event.SubmissionID,
				event.UserID,
				event.ProblemID,
				event.PassedCount,
				event.TotalCount,
			)
			return err
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}
