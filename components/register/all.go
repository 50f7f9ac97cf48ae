// Package register registers all boards and components
package register

import (
	// register boards.
	_ "github.com/pibotlab/pibot/components/board/fake"
	_ "github.com/pibotlab/pibot/components/board/genericlinux"
	_ "github.com/pibotlab/pibot/components/board/pi"

	// register components.
	_ "github.com/pibotlab/pibot/components/base/pibot"
	_ "github.com/pibotlab/pibot/components/headerpin"
	_ "github.com/pibotlab/pibot/components/led"
	_ "github.com/pibotlab/pibot/components/sensor/linefollower"
	_ "github.com/pibotlab/pibot/components/sensor/ultrasonic"
)
