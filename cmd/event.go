package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/astarworks/astar-management/internal/core/events"
	"github.com/astarworks/astar-management/pkg/logger"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Manage events: publish test events, monitor event bus, inspect handlers`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish a test event",
	Long:  `Publish a test event to the event bus for testing and debugging`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		publishTestEvent(args[0])
	},
}

var eventData string

func publishTestEvent(eventType string) {
	log := logger.LoggerWrapper()

	eventBus := events.NewEventBus(log)
	eventBus.Subscribe(eventType, events.LoggingSubscriber(eventBus))

	testEvent := events.New(eventType, map[string]interface{}{
		"message": eventData,
		"source":  "cli-command",
	})

	log.Info("publishing test event", "event_type", eventType, "event_id", testEvent.ID)

	if err := eventBus.Publish(context.Background(), testEvent); err != nil {
		log.Error("failed to publish event", "error", err)
		return
	}

	time.Sleep(100 * time.Millisecond)
	eventBus.Drain()
	log.Info("test event published successfully")
}

func init() {
	publishEventCmd.Flags().StringVar(&eventData, "data", "test message", "Event data message")

	eventCmd.AddCommand(publishEventCmd)

	rootCmd.AddCommand(eventCmd)
}
