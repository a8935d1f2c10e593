package main

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/danmuck/armlink/internal/fault"
	"github.com/danmuck/armlink/internal/robot"
	"github.com/danmuck/armlink/internal/statelog"
	"github.com/rs/zerolog/log"
)

var defaultDeviation = robot.Deviation{Translation: 10.0, Rotation: 3.12, Elbow: 2 * math.Pi}

const monitorInterval = 100 * time.Millisecond

// dumpLimit caps how many recent cycles are written to the log after a fault.
const dumpLimit = 20

// monitor keeps the latest state fresh for diagnostics until ctx ends.
func monitor(ctx context.Context, sess *robot.Session) error {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if _, err := sess.ReadOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

// holdPosition commands the measured joint position for the given number of
// cycles and finishes the motion in place.
func holdPosition(ctx context.Context, sess *robot.Session, cycles int) error {
	start, err := sess.ReadOnce(ctx)
	if err != nil {
		return err
	}
	id, err := sess.StartMotion(ctx, robot.ControllerJointImpedance, robot.MotionGeneratorJointPosition, defaultDeviation, defaultDeviation)
	if err != nil {
		return err
	}
	log.Info().Uint32("motion_id", id).Int("cycles", cycles).Msg("armctl.holdPosition started")

	cmd := &robot.MotionCommand{QC: start.Q}
	for i := 0; i < cycles; i++ {
		state, err := sess.Update(ctx, cmd, nil)
		if err == nil {
			err = sess.ThrowOnMotionError(ctx, state, id)
		}
		if err != nil {
			if sess.MotionState() != robot.MotionIdle {
				if cerr := sess.CancelMotion(context.WithoutCancel(ctx), id); cerr != nil {
					log.Warn().Err(cerr).Msg("armctl.holdPosition cancel failed")
				}
			}
			return err
		}
	}
	if err := sess.FinishMotion(ctx, id, cmd, nil); err != nil {
		return err
	}
	log.Info().Uint32("motion_id", id).Msg("armctl.holdPosition finished")
	return nil
}

func dumpHistory(history *statelog.Log, cause error) {
	records := history.Records()
	if len(records) > dumpLimit {
		records = records[len(records)-dumpLimit:]
	}
	log.Warn().
		Err(cause).
		Str("class", fault.ClassOf(cause).String()).
		Int("records", len(records)).
		Msg("armctl.dumpHistory")
	for _, rec := range records {
		event := log.Warn().
			Uint64("message_id", rec.State.MessageID).
			Str("robot_mode", rec.State.RobotMode.String()).
			Str("generator", rec.State.MotionGeneratorMode.String()).
			Str("controller", rec.State.ControllerMode.String()).
			Str("errors", rec.State.CurrentErrors.String())
		if rec.Command != nil {
			event = event.Bool("motion", rec.Command.HasMotion).Bool("control", rec.Command.HasControl)
		}
		event.Msg("armctl.dumpHistory record")
	}
}
