package mmec_fab

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"

	"mmec_fab/rrc"
)

// Job is the content of a frames file: pick/place pairs, the travel waypoints between
// them and an optional list of frames for Roll.
type Job struct {
	PickFrames   []Framelike
	PlaceFrames  []Framelike
	TravelFrames []Framelike
	RollFrames   []Framelike
}

// LoadJob reads and decodes a frames file. The whole file is read before anything moves.
func LoadJob(path string, logger logging.Logger) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read frames file: %w", err)
	}
	job, err := ParseJob(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse frames file %s: %w", path, err)
	}
	if logger != nil {
		logger.Infof("Loaded %d pick/place pairs, %d travel frames and %d roll frames from %s",
			len(job.PickFrames), len(job.TravelFrames), len(job.RollFrames), path)
	}
	return job, nil
}

// ParseJob decodes a frames document with the keys pick_frames, place_frames,
// travel_frames (or travel_frame, which may hold a single frame) and roll_frames.
func ParseJob(data []byte) (*Job, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "decode frames document")
	}

	var job Job
	var err error
	if job.PickFrames, err = decodeFramelikes(doc["pick_frames"]); err != nil {
		return nil, errors.Wrap(err, "pick_frames")
	}
	if job.PlaceFrames, err = decodeFramelikes(doc["place_frames"]); err != nil {
		return nil, errors.Wrap(err, "place_frames")
	}
	travelKey := "travel_frames"
	if _, ok := doc[travelKey]; !ok {
		travelKey = "travel_frame"
	}
	if job.TravelFrames, err = decodeFramelikes(doc[travelKey]); err != nil {
		return nil, errors.Wrap(err, travelKey)
	}
	if job.RollFrames, err = decodeFramelikes(doc["roll_frames"]); err != nil {
		return nil, errors.Wrap(err, "roll_frames")
	}

	if len(job.PickFrames) != len(job.PlaceFrames) {
		return nil, errors.Errorf("got %d pick frames but %d place frames", len(job.PickFrames), len(job.PlaceFrames))
	}
	return &job, nil
}

// decodeFramelikes accepts a list of frame records, a single record, or nothing.
func decodeFramelikes(raw json.RawMessage) ([]Framelike, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		single, err := DecodeFramelike(raw)
		if err != nil {
			return nil, err
		}
		return []Framelike{single}, nil
	}

	out := make([]Framelike, 0, len(list))
	for i, item := range list {
		f, err := DecodeFramelike(item)
		if err != nil {
			return nil, errors.Wrapf(err, "item %d", i)
		}
		out = append(out, f)
	}
	return out, nil
}

// DecodeFramelike decodes one frame record. Three encodings are understood:
//
//	{"point": [x, y, z], "xaxis": [...], "yaxis": [...]}
//	{"dtype": "compas.geometry/Frame", "value": {...}}   ("data" is accepted for "value")
//	{"Origin": {"X": 0, "Y": 0, "Z": 0}, "XAxis": {...}, "YAxis": {...}}
//
// The last one is returned as a Plane and is only checked for completeness by EnsureFrame.
func DecodeFramelike(data []byte) (Framelike, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, errors.Wrap(err, "decode frame record")
	}

	if _, ok := fields["dtype"]; ok {
		for _, key := range []string{"value", "data"} {
			if inner, ok := fields[key]; ok {
				return DecodeFramelike(inner)
			}
		}
		return nil, fmt.Errorf("%w: dtype record without value", ErrGeometryConversion)
	}

	if _, ok := fields["point"]; ok {
		f, err := decodeFrame(fields)
		if err != nil {
			return nil, err
		}
		return f, nil
	}

	_, hasOrigin := fields["Origin"]
	_, hasX := fields["XAxis"]
	_, hasY := fields["YAxis"]
	if hasOrigin || hasX || hasY {
		var p Plane
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, errors.Wrap(err, "decode plane")
		}
		return p, nil
	}

	return nil, fmt.Errorf("%w: record is neither a frame nor a plane", ErrGeometryConversion)
}

func decodeFrame(fields map[string]json.RawMessage) (Frame, error) {
	vec := func(key string) (r3.Vector, error) {
		raw, ok := fields[key]
		if !ok {
			return r3.Vector{}, fmt.Errorf("%w: frame has no %s", ErrGeometryConversion, key)
		}
		var v []float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return r3.Vector{}, errors.Wrapf(err, "decode %s", key)
		}
		if len(v) != 3 {
			return r3.Vector{}, fmt.Errorf("%w: %s needs 3 values, got %d", ErrGeometryConversion, key, len(v))
		}
		return r3.Vector{X: v[0], Y: v[1], Z: v[2]}, nil
	}

	point, err := vec("point")
	if err != nil {
		return Frame{}, err
	}
	xaxis, err := vec("xaxis")
	if err != nil {
		return Frame{}, err
	}
	yaxis, err := vec("yaxis")
	if err != nil {
		return Frame{}, err
	}
	return NewFrame(point, xaxis, yaxis)
}

// RunPickPlace runs a complete session for job: Pre, one PickPlace per pick/place pair
// using the job's travel frames, then Post.
func (c *RobotClient) RunPickPlace(ctx context.Context, job *Job, opts *PickPlaceOptions) error {
	if err := c.Pre(ctx, nil); err != nil {
		return err
	}

	for i := range job.PickFrames {
		c.logger.Infof("Pick and place %d of %d", i+1, len(job.PickFrames))
		if err := c.PickPlace(ctx, job.PickFrames[i], job.PlaceFrames[i], job.TravelFrames, opts); err != nil {
			return fmt.Errorf("pick and place %d: %w", i, err)
		}
	}

	return c.Post(ctx, nil)
}

// RunRoll runs Pre, one Roll over the job's roll frames, then Post.
func (c *RobotClient) RunRoll(ctx context.Context, job *Job, offset, speed float64, zone rrc.Zone) error {
	if len(job.RollFrames) == 0 {
		return errors.New("job has no roll_frames")
	}
	if err := c.Pre(ctx, nil); err != nil {
		return err
	}
	if err := c.Roll(ctx, job.RollFrames, offset, speed, zone); err != nil {
		return err
	}
	return c.Post(ctx, nil)
}
