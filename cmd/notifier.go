/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/merchforge/apiserver/config"
	"github.com/merchforge/apiserver/internal/mailer"
	"github.com/merchforge/apiserver/internal/mq"
	"github.com/merchforge/apiserver/internal/services"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// notifierCmd represents the notifier command
var notifierCmd = &cobra.Command{
	Use:   "notifier",
	Short: "Emails customers when their order status changes",
	Long: `Consumes order events from the configured broker and sends status
update emails. Usage:

	MQ_BACKEND=rabbitmq merchforge notifier
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		m, err := mailer.New(cfg.Mail, logger)
		if err != nil {
			return fmt.Errorf("init mailer: %w", err)
		}
		broker, err := mq.Connect(cmd.Context(), cfg.MQ)
		if err != nil {
			return err
		}
		if broker == nil {
			return errors.New("notifier requires MQ_BACKEND to be rabbitmq or pubsub")
		}
		defer broker.Close()

		notifier := services.NewNotifier(m, nil, logger)
		events := mq.NewOrderEvents(broker, cfg.MQ.OrderEventsChannel)

		logger.Info("notifier consuming order events",
			zap.String("backend", cfg.MQ.Backend),
			zap.String("channel", cfg.MQ.OrderEventsChannel))
		err = events.Consume(cmd.Context(), notifier.HandleEvent, func(msg mq.Message, err error) {
			logger.Warn("dropping malformed order event", zap.String("message_id", msg.ID), zap.Error(err))
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("consume order events: %w", err)
		}
		logger.Info("notifier stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(notifierCmd)
}
