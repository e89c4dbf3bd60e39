package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/septivank/sensor-monitor-worker/internal/model"
	"github.com/septivank/sensor-monitor-worker/internal/mq"
)

// HandleCommand executes one command-queue message. It satisfies
// mq.MessageHandler; a returned error dead-letters the message.
func (r *Reconciler) HandleCommand(ctx context.Context, body []byte) error {
	cmd, err := mq.DecodeCommand(body)
	if err != nil {
		return err
	}

	r.logger.Info("executing command", zap.String("command", cmd.Command))

	switch cmd.Command {
	case mq.CommandRefresh:
		_, err = r.Reconcile(ctx)
	case mq.CommandFetchDevice:
		_, err = r.FetchFromDevice(ctx)
	case mq.CommandSetThreshold:
		if cmd.MinValue != nil {
			err = r.SetThresholdRange(ctx, model.Threshold{
				SensorType: cmd.SensorType,
				MinValue:   *cmd.MinValue,
				MaxValue:   *cmd.MaxValue,
			})
		} else {
			_, err = r.SetThreshold(ctx, cmd.SensorType, *cmd.MaxValue)
		}
	case mq.CommandSetDeviceURL:
		err = r.SetDeviceURL(cmd.URL)
	default:
		err = fmt.Errorf("unhandled command %q", cmd.Command)
	}

	return err
}
