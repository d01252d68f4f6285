package mmec_fab

import (
	"context"

	"mmec_fab/rrc"
)

// PickPlaceOptions tunes the speeds, zones and motion types of PickPlace.
type PickPlaceOptions struct {
	TravelSpeed   float64
	TravelZone    rrc.Zone
	TravelMotion  rrc.Motion
	PreciseSpeed  float64
	PreciseZone   rrc.Zone
	PreciseMotion rrc.Motion
	// OffsetDistance is how far along the frame normal the approach and retreat frames sit.
	OffsetDistance float64
}

// DefaultPickPlaceOptions returns fast coarse travel moves and slow fine moves near parts.
func DefaultPickPlaceOptions() *PickPlaceOptions {
	return &PickPlaceOptions{
		TravelSpeed:    250,
		TravelZone:     rrc.Z10,
		TravelMotion:   rrc.MotionJoint,
		PreciseSpeed:   50,
		PreciseZone:    rrc.ZoneFine,
		PreciseMotion:  rrc.MotionLinear,
		OffsetDistance: 150,
	}
}

// Roll defaults.
const (
	DefaultRollSpeed = 50
	DefaultRollZone  = rrc.Z1
)

func moveTo(f Frame, speed float64, zone rrc.Zone, motion rrc.Motion) rrc.MoveToFrame {
	return rrc.MoveToFrame{
		Point:       f.Point,
		Orientation: f.Quaternion(),
		Speed:       speed,
		Zone:        zone,
		Motion:      motion,
	}
}

// PickPlace picks a part at pick, carries it through travel and sets it down at place,
// then returns through travel in reverse. Only the retreat above place waits for the
// controller, so at most one cycle is queued ahead of the arm.
func (c *RobotClient) PickPlace(ctx context.Context, pick, place Framelike, travel []Framelike, opts *PickPlaceOptions) error {
	if opts == nil {
		opts = DefaultPickPlaceOptions()
	}

	pickFrame, err := EnsureFrame(pick)
	if err != nil {
		return err
	}
	placeFrame, err := EnsureFrame(place)
	if err != nil {
		return err
	}
	travelFrames, err := EnsureFrames(travel)
	if err != nil {
		return err
	}

	abovePick := OffsetFrame(pickFrame, opts.OffsetDistance)
	abovePlace := OffsetFrame(placeFrame, opts.OffsetDistance)

	travelMove := func(f Frame) rrc.MoveToFrame {
		return moveTo(f, opts.TravelSpeed, opts.TravelZone, opts.TravelMotion)
	}
	preciseMove := func(f Frame) rrc.MoveToFrame {
		return moveTo(f, opts.PreciseSpeed, opts.PreciseZone, opts.PreciseMotion)
	}

	// PICK
	if err := c.send(ctx, "move above pick", travelMove(abovePick)); err != nil {
		return err
	}
	if err := c.send(ctx, "move to pick", preciseMove(pickFrame)); err != nil {
		return err
	}
	if err := c.send(ctx, "grab", c.gripper.Grab()); err != nil {
		return err
	}
	if err := c.send(ctx, "retreat above pick", preciseMove(abovePick)); err != nil {
		return err
	}

	// TRAVEL
	for _, f := range travelFrames {
		if err := c.send(ctx, "travel", travelMove(f)); err != nil {
			return err
		}
	}

	// PLACE
	if err := c.send(ctx, "move above place", travelMove(abovePlace)); err != nil {
		return err
	}
	if err := c.send(ctx, "move to place", preciseMove(placeFrame)); err != nil {
		return err
	}
	if err := c.send(ctx, "release", c.gripper.Open()); err != nil {
		return err
	}
	if err := c.sendAndWait(ctx, "retreat above place", preciseMove(abovePlace), 0); err != nil {
		return err
	}

	// RETURN
	for i := len(travelFrames) - 1; i >= 0; i-- {
		if err := c.send(ctx, "travel back", travelMove(travelFrames[i])); err != nil {
			return err
		}
	}

	return nil
}

// Roll visits every frame with an approach, touch and retreat move, all at speed and
// zone. Nothing waits for the controller.
func (c *RobotClient) Roll(ctx context.Context, frames []Framelike, offset, speed float64, zone rrc.Zone) error {
	rollFrames, err := EnsureFrames(frames)
	if err != nil {
		return err
	}

	for _, f := range rollFrames {
		above := OffsetFrame(f, offset)
		for _, step := range []struct {
			name  string
			frame Frame
		}{
			{"move above roll frame", above},
			{"move to roll frame", f},
			{"retreat above roll frame", above},
		} {
			if err := c.send(ctx, step.name, moveTo(step.frame, speed, zone, rrc.MotionJoint)); err != nil {
				return err
			}
		}
	}
	return nil
}
