/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/recipebox/apiserver/internal/events"
	"github.com/recipebox/apiserver/internal/logger"
	"github.com/recipebox/apiserver/internal/mq"
	"github.com/spf13/cobra"
)

// eventsCmd represents the events command
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect recipe events on the message queue",
}

var eventsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Logs every recipe event published to MQ_CHANNEL",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logger.Get()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if queue == nil {
			return errors.New("MQ_BACKEND is none; nothing to watch")
		}
		defer queue.Close()

		log.Info().Str("channel", cfg.MQ.Channel).Str("backend", cfg.MQ.Backend).Msg("watching recipe events")
		err = queue.Subscribe(ctx, cfg.MQ.Channel, func(ctx context.Context, msg mq.Message) error {
			event, err := events.Decode(msg)
			if err != nil {
				log.Warn().Err(err).Str("message_id", msg.ID).Msg("dropping undecodable event")
				return nil
			}
			log.Info().
				Str("type", event.Type).
				Int("recipe_id", event.RecipeID).
				Int("owner_id", event.OwnerID).
				Str("title", event.Title).
				Time("occurred_at", event.OccurredAt).
				Msg("recipe event")
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("subscribe %s: %w", cfg.MQ.Channel, err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsWatchCmd)
}
