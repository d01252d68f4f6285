package mmec_fab

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/spatialmath"
	"gonum.org/v1/gonum/num/quat"
)

// ErrGeometryConversion is returned when a frame-like value cannot be turned into a Frame.
var ErrGeometryConversion = errors.New("cannot convert to frame")

const axisEpsilon = 1e-9

// Frame is a pose: an origin and two orthonormal in-plane axes. The normal is
// XAxis × YAxis. Treat Frame as immutable; every helper returns a new value.
type Frame struct {
	Point r3.Vector
	XAxis r3.Vector
	YAxis r3.Vector
}

// NewFrame builds a Frame from an origin and two in-plane directions. The x axis is
// normalized and the y axis is made orthogonal to it, so the directions only need to span
// the plane.
func NewFrame(point, xaxis, yaxis r3.Vector) (Frame, error) {
	if xaxis.Norm() < axisEpsilon || yaxis.Norm() < axisEpsilon {
		return Frame{}, fmt.Errorf("%w: zero length axis", ErrGeometryConversion)
	}
	x := xaxis.Normalize()
	normal := x.Cross(yaxis)
	if normal.Norm() < axisEpsilon {
		return Frame{}, fmt.Errorf("%w: x and y axes are parallel", ErrGeometryConversion)
	}
	y := normal.Cross(x).Normalize()
	return Frame{Point: point, XAxis: x, YAxis: y}, nil
}

// WorldXY is the frame at the origin spanning the world XY plane.
func WorldXY() Frame {
	return Frame{XAxis: r3.Vector{X: 1}, YAxis: r3.Vector{Y: 1}}
}

// Normal is the unit z axis of the frame.
func (f Frame) Normal() r3.Vector {
	return f.XAxis.Cross(f.YAxis).Normalize()
}

// Quaternion is the frame's rotation relative to the world, as w + xi + yj + zk.
func (f Frame) Quaternion() quat.Number {
	x, y, z := f.XAxis, f.YAxis, f.Normal()
	// Rotation matrix columns are the frame axes.
	m00, m01, m02 := x.X, y.X, z.X
	m10, m11, m12 := x.Y, y.Y, z.Y
	m20, m21, m22 := x.Z, y.Z, z.Z

	var q quat.Number
	switch trace := m00 + m11 + m22; {
	case trace > 0:
		s := 0.5 / math.Sqrt(trace+1)
		q = quat.Number{Real: 0.25 / s, Imag: (m21 - m12) * s, Jmag: (m02 - m20) * s, Kmag: (m10 - m01) * s}
	case m00 > m11 && m00 > m22:
		s := 2 * math.Sqrt(1+m00-m11-m22)
		q = quat.Number{Real: (m21 - m12) / s, Imag: 0.25 * s, Jmag: (m01 + m10) / s, Kmag: (m02 + m20) / s}
	case m11 > m22:
		s := 2 * math.Sqrt(1+m11-m00-m22)
		q = quat.Number{Real: (m02 - m20) / s, Imag: (m01 + m10) / s, Jmag: 0.25 * s, Kmag: (m12 + m21) / s}
	default:
		s := 2 * math.Sqrt(1+m22-m00-m11)
		q = quat.Number{Real: (m10 - m01) / s, Imag: (m02 + m20) / s, Jmag: (m12 + m21) / s, Kmag: 0.25 * s}
	}
	// RAPID expects q1 (the scalar part) to be non-negative.
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	return q
}

// Pose converts the frame to a Viam pose.
func (f Frame) Pose() spatialmath.Pose {
	q := spatialmath.Quaternion(f.Quaternion())
	return spatialmath.NewPose(f.Point, &q)
}

// OffsetFrame returns a frame with the same axes whose origin is moved distance along the
// normal. Negative distances move against the normal.
func OffsetFrame(frame Frame, distance float64) Frame {
	return Frame{
		Point: frame.Point.Add(frame.Normal().Mul(distance)),
		XAxis: frame.XAxis,
		YAxis: frame.YAxis,
	}
}

// Point3d is a point or vector in the CAD plane convention.
type Point3d struct {
	X float64 `json:"X"`
	Y float64 `json:"Y"`
	Z float64 `json:"Z"`
}

func (p Point3d) vector() r3.Vector {
	return r3.Vector{X: p.X, Y: p.Y, Z: p.Z}
}

// Plane is a frame as exported from CAD: origin plus x and y axis. Any field may be missing
// when the plane came from a file.
type Plane struct {
	Origin *Point3d `json:"Origin"`
	XAxis  *Point3d `json:"XAxis"`
	YAxis  *Point3d `json:"YAxis"`
}

// Frame converts the plane to a Frame.
func (p Plane) Frame() (Frame, error) {
	switch {
	case p.Origin == nil:
		return Frame{}, fmt.Errorf("%w: plane has no Origin", ErrGeometryConversion)
	case p.XAxis == nil:
		return Frame{}, fmt.Errorf("%w: plane has no XAxis", ErrGeometryConversion)
	case p.YAxis == nil:
		return Frame{}, fmt.Errorf("%w: plane has no YAxis", ErrGeometryConversion)
	}
	return NewFrame(p.Origin.vector(), p.XAxis.vector(), p.YAxis.vector())
}

// Framelike is either a Frame or a Plane.
type Framelike interface {
	framelike()
}

func (Frame) framelike() {}
func (Plane) framelike() {}

// EnsureFrame returns f unchanged when it already is a Frame and converts it otherwise.
func EnsureFrame(f Framelike) (Frame, error) {
	switch v := f.(type) {
	case Frame:
		return v, nil
	case *Frame:
		if v == nil {
			return Frame{}, fmt.Errorf("%w: nil frame", ErrGeometryConversion)
		}
		return *v, nil
	case Plane:
		return v.Frame()
	case *Plane:
		if v == nil {
			return Frame{}, fmt.Errorf("%w: nil plane", ErrGeometryConversion)
		}
		return v.Frame()
	case nil:
		return Frame{}, fmt.Errorf("%w: no frame given", ErrGeometryConversion)
	default:
		return Frame{}, fmt.Errorf("%w: unsupported type %T", ErrGeometryConversion, f)
	}
}

// EnsureFrames converts every element, failing on the first one that cannot be converted.
func EnsureFrames(fs []Framelike) ([]Frame, error) {
	frames := make([]Frame, 0, len(fs))
	for i, f := range fs {
		frame, err := EnsureFrame(f)
		if err != nil {
			return nil, errors.Wrapf(err, "frame %d", i)
		}
		frames = append(frames, frame)
	}
	return frames, nil
}
