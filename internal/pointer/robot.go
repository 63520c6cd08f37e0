package pointer

import (
	"time"

	"github.com/go-vgo/robotgo"
)

// Robot drives the real pointer through robotgo.
type Robot struct{}

// NewRobot creates the OS-backed mouse.
func NewRobot() *Robot {
	return &Robot{}
}

// MoveTo glides to the target and then lets the travel window elapse
// so hover effects settle before any click.
func (r *Robot) MoveTo(x, y int, travel time.Duration) {
	robotgo.MoveSmooth(x, y)
	if travel > 0 {
		time.Sleep(travel)
	}
}

// Click presses and releases the left button.
func (r *Robot) Click() {
	robotgo.Click("left", false)
}

// Location returns the current pointer position.
func (r *Robot) Location() (int, int) {
	return robotgo.Location()
}
