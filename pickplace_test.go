package mmec_fab

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mmec_fab/rrc"
)

func frameAt(t *testing.T, x, y, z float64) Frame {
	t.Helper()
	f, err := NewFrame(r3.Vector{X: x, Y: y, Z: z}, r3.Vector{X: 1}, r3.Vector{Y: 1})
	require.NoError(t, err)
	return f
}

func moveTarget(t *testing.T, s sent) rrc.MoveToFrame {
	t.Helper()
	move, ok := s.cmd.(rrc.MoveToFrame)
	require.True(t, ok, "expected MoveToFrame, got %T", s.cmd)
	return move
}

func TestPickPlace(t *testing.T) {
	t.Run("issues the full choreography in order", func(t *testing.T) {
		c, transport := newTestClient(t)
		pick := WorldXY()
		place := frameAt(t, 100, 0, 0)
		travel := []Framelike{frameAt(t, 50, 50, 300), frameAt(t, 80, 20, 300)}

		require.NoError(t, c.PickPlace(context.Background(), pick, place, travel, nil))

		cmds := transport.commands()
		require.Len(t, cmds, 12)

		opts := DefaultPickPlaceOptions()
		expected := []struct {
			point  r3.Vector
			speed  float64
			zone   rrc.Zone
			motion rrc.Motion
		}{
			{r3.Vector{Z: 150}, opts.TravelSpeed, opts.TravelZone, opts.TravelMotion},
			{r3.Vector{}, opts.PreciseSpeed, opts.PreciseZone, opts.PreciseMotion},
			{},
			{r3.Vector{Z: 150}, opts.PreciseSpeed, opts.PreciseZone, opts.PreciseMotion},
			{r3.Vector{X: 50, Y: 50, Z: 300}, opts.TravelSpeed, opts.TravelZone, opts.TravelMotion},
			{r3.Vector{X: 80, Y: 20, Z: 300}, opts.TravelSpeed, opts.TravelZone, opts.TravelMotion},
			{r3.Vector{X: 100, Z: 150}, opts.TravelSpeed, opts.TravelZone, opts.TravelMotion},
			{r3.Vector{X: 100}, opts.PreciseSpeed, opts.PreciseZone, opts.PreciseMotion},
			{},
			{r3.Vector{X: 100, Z: 150}, opts.PreciseSpeed, opts.PreciseZone, opts.PreciseMotion},
			{r3.Vector{X: 80, Y: 20, Z: 300}, opts.TravelSpeed, opts.TravelZone, opts.TravelMotion},
			{r3.Vector{X: 50, Y: 50, Z: 300}, opts.TravelSpeed, opts.TravelZone, opts.TravelMotion},
		}

		for i, want := range expected {
			switch i {
			case 2:
				assert.Equal(t, rrc.SetDigital{Name: DefaultGripperPin, Value: true}, cmds[i].cmd, "grab")
				continue
			case 8:
				assert.Equal(t, rrc.SetDigital{Name: DefaultGripperPin, Value: false}, cmds[i].cmd, "release")
				continue
			}
			move := moveTarget(t, cmds[i])
			assertVectorNear(t, want.point, move.Point)
			assert.Equal(t, want.speed, move.Speed, "step %d speed", i)
			assert.Equal(t, want.zone, move.Zone, "step %d zone", i)
			assert.Equal(t, want.motion, move.Motion, "step %d motion", i)
		}
	})

	t.Run("only the retreat above place waits", func(t *testing.T) {
		c, transport := newTestClient(t)
		require.NoError(t, c.PickPlace(context.Background(), WorldXY(), frameAt(t, 100, 0, 0), nil, nil))

		cmds := transport.commands()
		require.Len(t, cmds, 8)
		for i, s := range cmds {
			if i == 7 {
				assert.True(t, s.waited, "retreat above place should wait")
				assert.Zero(t, s.timeout)
				continue
			}
			assert.False(t, s.waited, "step %d should not wait", i)
		}
	})

	t.Run("no travel frames", func(t *testing.T) {
		c, transport := newTestClient(t)
		require.NoError(t, c.PickPlace(context.Background(), WorldXY(), frameAt(t, 100, 0, 0), []Framelike{}, nil))

		cmds := transport.commands()
		require.Len(t, cmds, 8)
		assertVectorNear(t, r3.Vector{Z: 150}, moveTarget(t, cmds[0]).Point)
		assertVectorNear(t, r3.Vector{X: 100, Z: 150}, moveTarget(t, cmds[4]).Point)
		assertVectorNear(t, r3.Vector{X: 100, Z: 150}, moveTarget(t, cmds[7]).Point)
	})

	t.Run("planes are accepted", func(t *testing.T) {
		c, transport := newTestClient(t)
		plane := Plane{Origin: &Point3d{X: 10}, XAxis: &Point3d{X: 1}, YAxis: &Point3d{Y: 1}}

		require.NoError(t, c.PickPlace(context.Background(), plane, &plane, nil, nil))
		assertVectorNear(t, r3.Vector{X: 10}, moveTarget(t, transport.commands()[1]).Point)
	})

	t.Run("custom options", func(t *testing.T) {
		c, transport := newTestClient(t)
		opts := &PickPlaceOptions{
			TravelSpeed:    500,
			TravelZone:     rrc.Z100,
			TravelMotion:   rrc.MotionLinear,
			PreciseSpeed:   10,
			PreciseZone:    rrc.Z0,
			PreciseMotion:  rrc.MotionLinear,
			OffsetDistance: 20,
		}
		require.NoError(t, c.PickPlace(context.Background(), WorldXY(), WorldXY(), nil, opts))

		first := moveTarget(t, transport.commands()[0])
		assertVectorNear(t, r3.Vector{Z: 20}, first.Point)
		assert.Equal(t, 500.0, first.Speed)
		assert.Equal(t, rrc.Z100, first.Zone)
	})

	t.Run("invalid frame sends nothing", func(t *testing.T) {
		c, transport := newTestClient(t)
		err := c.PickPlace(context.Background(), WorldXY(), Plane{}, nil, nil)
		assert.ErrorIs(t, err, ErrGeometryConversion)
		assert.Empty(t, transport.commands())

		err = c.PickPlace(context.Background(), WorldXY(), WorldXY(), []Framelike{nil}, nil)
		assert.ErrorIs(t, err, ErrGeometryConversion)
		assert.Empty(t, transport.commands())
	})

	t.Run("transport failure names the step", func(t *testing.T) {
		c, transport := newTestClient(t)
		transport.sendErr = errors.New("socket closed")

		err := c.PickPlace(context.Background(), WorldXY(), WorldXY(), nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "move above pick")
		assert.Contains(t, err.Error(), "socket closed")
	})
}

func TestRoll(t *testing.T) {
	t.Run("approach touch retreat per frame", func(t *testing.T) {
		c, transport := newTestClient(t)
		frames := []Framelike{frameAt(t, 0, 0, 0), frameAt(t, 10, 0, 0), frameAt(t, 20, 0, 0)}

		require.NoError(t, c.Roll(context.Background(), frames, 30, DefaultRollSpeed, DefaultRollZone))

		cmds := transport.commands()
		require.Len(t, cmds, 9)
		for i, x := range []float64{0, 10, 20} {
			assertVectorNear(t, r3.Vector{X: x, Z: 30}, moveTarget(t, cmds[3*i]).Point)
			assertVectorNear(t, r3.Vector{X: x}, moveTarget(t, cmds[3*i+1]).Point)
			assertVectorNear(t, r3.Vector{X: x, Z: 30}, moveTarget(t, cmds[3*i+2]).Point)
		}
		for _, s := range cmds {
			move := moveTarget(t, s)
			assert.False(t, s.waited)
			assert.Equal(t, float64(DefaultRollSpeed), move.Speed)
			assert.Equal(t, DefaultRollZone, move.Zone)
		}
	})

	t.Run("empty list sends nothing", func(t *testing.T) {
		c, transport := newTestClient(t)
		require.NoError(t, c.Roll(context.Background(), nil, 30, DefaultRollSpeed, DefaultRollZone))
		assert.Empty(t, transport.commands())
	})

	t.Run("invalid frame sends nothing", func(t *testing.T) {
		c, transport := newTestClient(t)
		err := c.Roll(context.Background(), []Framelike{WorldXY(), Plane{}}, 30, DefaultRollSpeed, DefaultRollZone)
		assert.ErrorIs(t, err, ErrGeometryConversion)
		assert.Empty(t, transport.commands())
	})
}
