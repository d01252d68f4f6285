package mmec_fab

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/services/generic"
)

func newTestService(t *testing.T) (*pickPlaceService, *recordingTransport) {
	t.Helper()
	c, transport := newTestClient(t)
	return newPickPlaceServiceWithClient(generic.Named("pick-place"), c.cfg, c, logging.NewTestLogger(t)), transport
}

func frameArg(x, y, z float64) map[string]interface{} {
	return map[string]interface{}{
		"point": []interface{}{x, y, z},
		"xaxis": []interface{}{1.0, 0.0, 0.0},
		"yaxis": []interface{}{0.0, 1.0, 0.0},
	}
}

func TestDoCommand(t *testing.T) {
	ctx := context.Background()

	t.Run("check_connection", func(t *testing.T) {
		svc, transport := newTestService(t)
		resp, err := svc.DoCommand(ctx, map[string]interface{}{"command": "check_connection", "timeout_sec": 1.5})
		require.NoError(t, err)
		assert.Equal(t, true, resp["success"])
		assert.Equal(t, []string{"r_RRC_Noop"}, transport.instructions())
		assert.Equal(t, "1.5s", transport.commands()[0].timeout.String())
	})

	t.Run("pre and post", func(t *testing.T) {
		svc, transport := newTestService(t)
		_, err := svc.DoCommand(ctx, map[string]interface{}{"command": "pre"})
		require.NoError(t, err)
		_, err = svc.DoCommand(ctx, map[string]interface{}{
			"command":     "post",
			"safe_joints": []interface{}{1.0, 2.0, 3.0, 4.0, 5.0, 6.0},
		})
		require.NoError(t, err)
		assert.Len(t, transport.instructions(), 11)

		_, err = svc.DoCommand(ctx, map[string]interface{}{"command": "post", "safe_joints": []interface{}{1.0}})
		assert.ErrorContains(t, err, "expected 6 values")
	})

	t.Run("pick_place", func(t *testing.T) {
		svc, transport := newTestService(t)
		resp, err := svc.DoCommand(ctx, map[string]interface{}{
			"command": "pick_place",
			"pick":    frameArg(0, 0, 0),
			"place": map[string]interface{}{
				"Origin": map[string]interface{}{"X": 100.0, "Y": 0.0, "Z": 0.0},
				"XAxis":  map[string]interface{}{"X": 1.0, "Y": 0.0, "Z": 0.0},
				"YAxis":  map[string]interface{}{"X": 0.0, "Y": 1.0, "Z": 0.0},
			},
			"travel":          []interface{}{frameArg(50, 50, 300)},
			"offset_distance": 100.0,
		})
		require.NoError(t, err)
		assert.Equal(t, true, resp["success"])

		cmds := transport.commands()
		require.Len(t, cmds, 10)
		assert.InDelta(t, 100, moveTarget(t, cmds[0]).Point.Z, 1e-9)
	})

	t.Run("pick_place without place", func(t *testing.T) {
		svc, transport := newTestService(t)
		_, err := svc.DoCommand(ctx, map[string]interface{}{"command": "pick_place", "pick": frameArg(0, 0, 0)})
		assert.ErrorContains(t, err, "missing 'place' frame")
		assert.Empty(t, transport.commands())
	})

	t.Run("roll", func(t *testing.T) {
		svc, transport := newTestService(t)
		resp, err := svc.DoCommand(ctx, map[string]interface{}{
			"command": "roll",
			"frames":  []interface{}{frameArg(0, 0, 0), frameArg(10, 0, 0)},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, resp["frames"])
		assert.Len(t, transport.commands(), 6)
	})

	t.Run("run_job", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("VIAM_MODULE_DATA", dir)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "pp_frames.json"), []byte(jobDocument), 0o644))

		svc, transport := newTestService(t)
		resp, err := svc.DoCommand(ctx, map[string]interface{}{"command": "run_job", "job_file": "pp_frames.json"})
		require.NoError(t, err)
		assert.Equal(t, 2, resp["pairs"])
		assert.Len(t, transport.instructions(), 31)

		_, err = svc.DoCommand(ctx, map[string]interface{}{"command": "run_job"})
		assert.ErrorContains(t, err, "requires 'job_file'")
	})

	t.Run("ensure_frame", func(t *testing.T) {
		svc, transport := newTestService(t)
		resp, err := svc.DoCommand(ctx, map[string]interface{}{
			"command": "ensure_frame",
			"frame": map[string]interface{}{
				"Origin": map[string]interface{}{"X": 1.0, "Y": 2.0, "Z": 3.0},
				"XAxis":  map[string]interface{}{"X": 1.0, "Y": 0.0, "Z": 0.0},
				"YAxis":  map[string]interface{}{"X": 0.0, "Y": 1.0, "Z": 0.0},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []interface{}{1.0, 2.0, 3.0}, resp["point"])
		orientation, ok := resp["orientation"].(map[string]interface{})
		require.True(t, ok)
		assert.InDelta(t, 1, orientation["o_z"], 1e-9)
		assert.Empty(t, transport.commands())

		_, err = svc.DoCommand(ctx, map[string]interface{}{
			"command": "ensure_frame",
			"frame":   map[string]interface{}{"Origin": map[string]interface{}{"X": 1.0, "Y": 2.0, "Z": 3.0}},
		})
		assert.ErrorIs(t, err, ErrGeometryConversion)
	})

	t.Run("unknown command", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.DoCommand(ctx, map[string]interface{}{"command": "dance"})
		assert.ErrorContains(t, err, "unknown command")
	})
}

func TestServiceClose(t *testing.T) {
	svc, transport := newTestService(t)
	require.NoError(t, svc.Close(context.Background()))
	assert.Equal(t, 1, transport.closed)
}
