package mmec_fab

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/generic"

	"mmec_fab/rrc"
)

var PickPlaceModel = resource.NewModel("mmec", "fab", "pick-place")

func init() {
	resource.RegisterService(generic.API, PickPlaceModel,
		resource.Registration[resource.Resource, *Config]{
			Constructor: newPickPlaceService,
		},
	)
}

// pickPlaceService exposes a RobotClient through DoCommand.
type pickPlaceService struct {
	resource.Named
	resource.AlwaysRebuild

	logger logging.Logger
	cfg    *Config
	client *RobotClient

	// One choreography at a time.
	mu sync.Mutex
}

func newPickPlaceService(ctx context.Context, deps resource.Dependencies, conf resource.Config, logger logging.Logger) (resource.Resource, error) {
	cfg, err := resource.NativeConfig[*Config](conf)
	if err != nil {
		return nil, err
	}
	client, err := NewRobotClient(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize robot client: %w", err)
	}
	return newPickPlaceServiceWithClient(conf.ResourceName(), cfg, client, logger), nil
}

func newPickPlaceServiceWithClient(name resource.Name, cfg *Config, client *RobotClient, logger logging.Logger) *pickPlaceService {
	return &pickPlaceService{
		Named:  name.AsNamed(),
		logger: logger,
		cfg:    cfg,
		client: client,
	}
}

func (s *pickPlaceService) Close(ctx context.Context) error {
	s.logger.Info("Closing pick and place service")
	return s.client.Close()
}

func (s *pickPlaceService) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cmd["command"] {
	case "check_connection":
		timeout := time.Duration(floatArg(cmd, "timeout_sec", 0) * float64(time.Second))
		err := s.client.CheckConnectionController(ctx, timeout)
		return map[string]interface{}{"success": err == nil}, err

	case "pre":
		joints, err := jointsArg(cmd, "safe_joints")
		if err != nil {
			return nil, err
		}
		err = s.client.Pre(ctx, joints)
		return map[string]interface{}{"success": err == nil}, err

	case "post":
		joints, err := jointsArg(cmd, "safe_joints")
		if err != nil {
			return nil, err
		}
		err = s.client.Post(ctx, joints)
		return map[string]interface{}{"success": err == nil}, err

	case "pick_place":
		pick, err := framelikeArg(cmd, "pick")
		if err != nil {
			return nil, err
		}
		place, err := framelikeArg(cmd, "place")
		if err != nil {
			return nil, err
		}
		travel, err := framelikesArg(cmd, "travel")
		if err != nil {
			return nil, err
		}
		err = s.client.PickPlace(ctx, pick, place, travel, pickPlaceOptionsArg(cmd))
		return map[string]interface{}{"success": err == nil}, err

	case "run_job":
		name, _ := cmd["job_file"].(string)
		path := s.cfg.ResolveJobFile(name)
		if path == "" {
			return nil, errors.New("run_job requires 'job_file' or a configured job_file")
		}
		job, err := LoadJob(path, s.logger)
		if err != nil {
			return nil, err
		}
		err = s.client.RunPickPlace(ctx, job, pickPlaceOptionsArg(cmd))
		return map[string]interface{}{"success": err == nil, "pairs": len(job.PickFrames)}, err

	case "roll":
		frames, err := framelikesArg(cmd, "frames")
		if err != nil {
			return nil, err
		}
		offset := floatArg(cmd, "offset_distance", DefaultPickPlaceOptions().OffsetDistance)
		speed := floatArg(cmd, "speed", DefaultRollSpeed)
		zone := rrc.Zone(floatArg(cmd, "zone", float64(DefaultRollZone)))
		err = s.client.Roll(ctx, frames, offset, speed, zone)
		return map[string]interface{}{"success": err == nil, "frames": len(frames)}, err

	case "ensure_frame":
		fl, err := framelikeArg(cmd, "frame")
		if err != nil {
			return nil, err
		}
		f, err := EnsureFrame(fl)
		if err != nil {
			return nil, err
		}
		ov := f.Pose().Orientation().OrientationVectorDegrees()
		return map[string]interface{}{
			"point": []interface{}{f.Point.X, f.Point.Y, f.Point.Z},
			"orientation": map[string]interface{}{
				"o_x": ov.OX, "o_y": ov.OY, "o_z": ov.OZ, "theta": ov.Theta,
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown command: %v", cmd["command"])
	}
}

func floatArg(cmd map[string]interface{}, key string, def float64) float64 {
	if v, ok := cmd[key].(float64); ok {
		return v
	}
	return def
}

func jointsArg(cmd map[string]interface{}, key string) ([]float64, error) {
	raw, ok := cmd[key]
	if !ok {
		return nil, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s must be a list of numbers", key)
	}
	joints := make([]float64, 0, len(list))
	for _, v := range list {
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("%s must be a list of numbers, got %T", key, v)
		}
		joints = append(joints, f)
	}
	if len(joints) != 6 {
		return nil, fmt.Errorf("expected 6 values for %s, got %d", key, len(joints))
	}
	return joints, nil
}

func framelikeArg(cmd map[string]interface{}, key string) (Framelike, error) {
	raw, ok := cmd[key]
	if !ok {
		return nil, fmt.Errorf("missing '%s' frame", key)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", key)
	}
	f, err := DecodeFramelike(data)
	if err != nil {
		return nil, errors.Wrap(err, key)
	}
	return f, nil
}

func framelikesArg(cmd map[string]interface{}, key string) ([]Framelike, error) {
	raw, ok := cmd[key]
	if !ok {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", key)
	}
	fs, err := decodeFramelikes(data)
	if err != nil {
		return nil, errors.Wrap(err, key)
	}
	return fs, nil
}

func pickPlaceOptionsArg(cmd map[string]interface{}) *PickPlaceOptions {
	opts := DefaultPickPlaceOptions()
	opts.TravelSpeed = floatArg(cmd, "travel_speed", opts.TravelSpeed)
	opts.TravelZone = rrc.Zone(floatArg(cmd, "travel_zone", float64(opts.TravelZone)))
	opts.PreciseSpeed = floatArg(cmd, "precise_speed", opts.PreciseSpeed)
	opts.PreciseZone = rrc.Zone(floatArg(cmd, "precise_zone", float64(opts.PreciseZone)))
	opts.OffsetDistance = floatArg(cmd, "offset_distance", opts.OffsetDistance)
	return opts
}
