package mmec_fab

import "mmec_fab/rrc"

// gripper is a pneumatic gripper switched by a single digital output: high closes it.
type gripper struct {
	pin string
}

func newGripper(pin string) gripper {
	return gripper{pin: pin}
}

// Open releases the part.
func (g gripper) Open() rrc.Command {
	return rrc.SetDigital{Name: g.pin, Value: false}
}

// Grab closes the gripper on the part.
func (g gripper) Grab() rrc.Command {
	return rrc.SetDigital{Name: g.pin, Value: true}
}
