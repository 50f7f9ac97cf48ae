// Package picommon contains the Raspberry Pi header layout shared by the boards that drive it.
package picommon

import (
	"strconv"

	"github.com/pkg/errors"
)

// ModelName is the board model name for a Raspberry Pi driven through periph.io.
const ModelName = "pi"

// HeaderToBCM maps the physical 40 pin header position to the BCM GPIO number wired to it.
// Power and ground positions are absent.
var HeaderToBCM = map[int]int{
	3: 2, 5: 3, 7: 4, 8: 14, 10: 15,
	11: 17, 12: 18, 13: 27, 15: 22, 16: 23, 18: 24, 19: 10,
	21: 9, 22: 25, 23: 11, 24: 8, 26: 7, 27: 0, 28: 1, 29: 5,
	31: 6, 32: 12, 33: 13, 35: 19, 36: 16, 37: 26, 38: 20, 40: 21,
}

// BCMForHeaderPin resolves a header position name such as "11" to its BCM GPIO number.
func BCMForHeaderPin(name string) (int, error) {
	pos, err := strconv.Atoi(name)
	if err != nil {
		return 0, errors.Errorf("pin name %q is not a header position", name)
	}
	bcm, ok := HeaderToBCM[pos]
	if !ok {
		return 0, errors.Errorf("header position %d is not a gpio pin", pos)
	}
	return bcm, nil
}
