package mq

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Command names accepted on the command queue.
const (
	CommandRefresh      = "refresh"
	CommandFetchDevice  = "fetch_device"
	CommandSetThreshold = "set_threshold"
	CommandSetDeviceURL = "set_device_url"
)

// Command is a request received on the command queue.
type Command struct {
	Command    string   `json:"command"`
	SensorType string   `json:"sensor_type,omitempty"`
	MaxValue   *float64 `json:"max_value,omitempty"`
	MinValue   *float64 `json:"min_value,omitempty"`
	URL        string   `json:"url,omitempty"`
}

// DecodeCommand parses a command message and checks that the fields its
// command needs are present.
func DecodeCommand(body []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(body, &cmd); err != nil {
		return Command{}, fmt.Errorf("invalid command payload: %w", err)
	}
	cmd.Command = strings.TrimSpace(cmd.Command)

	switch cmd.Command {
	case CommandRefresh, CommandFetchDevice:
	case CommandSetThreshold:
		if cmd.SensorType == "" {
			return Command{}, fmt.Errorf("%s requires sensor_type", cmd.Command)
		}
		if cmd.MaxValue == nil {
			return Command{}, fmt.Errorf("%s requires max_value", cmd.Command)
		}
	case CommandSetDeviceURL:
		if strings.TrimSpace(cmd.URL) == "" {
			return Command{}, fmt.Errorf("%s requires url", cmd.Command)
		}
	case "":
		return Command{}, fmt.Errorf("missing command")
	default:
		return Command{}, fmt.Errorf("unknown command %q", cmd.Command)
	}

	return cmd, nil
}
