package cli

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/loopctl/loopctl/internal/events"
	"github.com/loopctl/loopctl/internal/tui"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <ws-url>",
		Short: "Attach a live dashboard to a running 'loopctl serve' instance",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatch,
	}
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	url := args[0]

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	bus := events.NewMemoryBus()
	defer bus.Close()

	go func() {
		for {
			var ev events.Event
			if err := conn.ReadJSON(&ev); err != nil {
				bus.Close()
				return
			}
			bus.Publish(retypeData(ev))
		}
	}()

	dash := tui.New(url, bus)
	return dash.Run()
}

// retypeData converts ev.Data from the generic map JSON decoding leaves it
// as back into its topic's concrete struct, so Dashboard's type assertions
// see the same shapes they would in-process.
func retypeData(ev events.Event) events.Event {
	raw, err := json.Marshal(ev.Data)
	if err != nil {
		return ev
	}
	switch ev.Topic {
	case events.TopicTaskCompleted:
		var data events.TaskCompletedData
		if json.Unmarshal(raw, &data) == nil {
			ev.Data = data
		}
	case events.TopicTaskFailed:
		var data events.TaskFailedData
		if json.Unmarshal(raw, &data) == nil {
			ev.Data = data
		}
	case events.TopicPlannerWakeup:
		var data events.WakeupData
		if json.Unmarshal(raw, &data) == nil {
			ev.Data = data
		}
	}
	return ev
}
