// Package pinwrappers implements board.GPIOPin on top of plain digital lines, adding a software
// PWM loop for boards whose lines can only be driven high or low.
package pinwrappers

import (
	"context"
	"sync"
	"time"

	"go.viam.com/utils"
	"periph.io/x/conn/v3/physic"

	"github.com/pibotlab/pibot/logging"
)

// A DigitalLine is one GPIO line that can be driven or sampled. Implementations pick the line
// direction from the call: Write makes it an output and Read makes it an input.
type DigitalLine interface {
	Write(high bool) error
	Read() (bool, error)
	Close() error
}

// GPIOPin implements board.GPIOPin over a DigitalLine.
type GPIOPin struct {
	name string
	line DigitalLine

	// These values are mutable. Lock the mutex when interacting with them.
	pwmRunning      bool
	pwmFreqHz       uint
	pwmDutyCyclePct float64
	closed          bool

	// pwmGeneration identifies the current PWM loop; a loop whose generation is stale exits.
	pwmGeneration uint64
	pwmCancel     context.CancelFunc
	pwmLoops      int

	mu        sync.Mutex
	cancelCtx context.Context
	waitGroup *sync.WaitGroup
	logger    logging.Logger
}

// NewGPIOPin wraps line. Software PWM loops started on the pin run until cancelCtx is done or
// the pin is driven directly, and are tracked by waitGroup.
func NewGPIOPin(
	cancelCtx context.Context,
	name string,
	line DigitalLine,
	waitGroup *sync.WaitGroup,
	logger logging.Logger,
) *GPIOPin {
	return &GPIOPin{
		name:      name,
		line:      line,
		cancelCtx: cancelCtx,
		waitGroup: waitGroup,
		logger:    logger,
	}
}

// Set drives the pin high or low, stopping any PWM loop.
func (pin *GPIOPin) Set(ctx context.Context, high bool, extra map[string]interface{}) error {
	pin.mu.Lock()
	defer pin.mu.Unlock()

	if pin.closed {
		return errClosed(pin.name)
	}
	pin.stopSoftwarePWM()
	return pin.line.Write(high)
}

// Get samples the pin.
func (pin *GPIOPin) Get(ctx context.Context, extra map[string]interface{}) (bool, error) {
	pin.mu.Lock()
	defer pin.mu.Unlock()

	if pin.closed {
		return false, errClosed(pin.name)
	}
	return pin.line.Read()
}

// PWM returns the duty cycle as a fraction between 0 and 1.
func (pin *GPIOPin) PWM(ctx context.Context, extra map[string]interface{}) (float64, error) {
	pin.mu.Lock()
	defer pin.mu.Unlock()

	return pin.pwmDutyCyclePct, nil
}

// SetPWM sets the duty cycle, a fraction between 0 and 1.
func (pin *GPIOPin) SetPWM(ctx context.Context, dutyCyclePct float64, extra map[string]interface{}) error {
	pin.mu.Lock()
	defer pin.mu.Unlock()

	if pin.closed {
		return errClosed(pin.name)
	}
	pin.pwmDutyCyclePct = dutyCyclePct
	return pin.startSoftwarePWM()
}

// PWMFreq returns the PWM frequency in Hz.
func (pin *GPIOPin) PWMFreq(ctx context.Context, extra map[string]interface{}) (uint, error) {
	pin.mu.Lock()
	defer pin.mu.Unlock()

	return pin.pwmFreqHz, nil
}

// SetPWMFreq sets the PWM frequency in Hz.
func (pin *GPIOPin) SetPWMFreq(ctx context.Context, freqHz uint, extra map[string]interface{}) error {
	pin.mu.Lock()
	defer pin.mu.Unlock()

	if pin.closed {
		return errClosed(pin.name)
	}
	pin.pwmFreqHz = freqHz
	return pin.startSoftwarePWM()
}

// Lock the mutex before calling this! A background goroutine is started to create the PWM
// signal if both parameters are set and one isn't already running.
func (pin *GPIOPin) startSoftwarePWM() error {
	if pin.pwmDutyCyclePct == 0 || pin.pwmFreqHz == 0 {
		pin.stopSoftwarePWM()
		return pin.line.Write(false)
	}
	if pin.pwmRunning {
		return nil
	}

	pin.pwmRunning = true
	pin.pwmGeneration++
	generation := pin.pwmGeneration
	loopCtx, cancel := context.WithCancel(pin.cancelCtx)
	pin.pwmCancel = cancel
	pin.pwmLoops++
	pin.waitGroup.Add(1)
	utils.ManagedGo(func() {
		pin.softwarePwmLoop(loopCtx, generation)
	}, func() {
		pin.mu.Lock()
		pin.pwmLoops--
		pin.mu.Unlock()
		pin.waitGroup.Done()
	})
	return nil
}

// Lock the mutex before calling this! The running loop, if any, is woken and exits.
func (pin *GPIOPin) stopSoftwarePWM() {
	pin.pwmRunning = false
	pin.pwmGeneration++
	if pin.pwmCancel != nil {
		pin.pwmCancel()
		pin.pwmCancel = nil
	}
}

// liveLoops returns how many software PWM goroutines have not yet exited.
func (pin *GPIOPin) liveLoops() int {
	pin.mu.Lock()
	defer pin.mu.Unlock()
	return pin.pwmLoops
}

// halfPwmCycle drives the pin and waits out that half of the period. It returns whether the loop
// should keep going.
func (pin *GPIOPin) halfPwmCycle(ctx context.Context, generation uint64, shouldBeOn bool) bool {
	var dutyCycle float64
	var freqHz uint

	shouldContinue := func() bool {
		pin.mu.Lock()
		defer pin.mu.Unlock()
		if !pin.pwmRunning || pin.pwmGeneration != generation {
			return false
		}

		dutyCycle = pin.pwmDutyCyclePct
		freqHz = pin.pwmFreqHz
		if !shouldBeOn {
			dutyCycle = 1 - dutyCycle
		}
		if dutyCycle <= 0 {
			return true
		}

		// a failed toggle is retried next cycle rather than ending the loop.
		if err := pin.line.Write(shouldBeOn); err != nil {
			pin.logger.Debugw("software pwm toggle failed", "pin", pin.name, "error", err)
		}
		return true
	}()

	if !shouldContinue {
		return false
	}
	if dutyCycle <= 0 {
		return utils.SelectContextOrWait(ctx, 0)
	}

	period := (physic.Frequency(freqHz) * physic.Hertz).Period()
	return utils.SelectContextOrWait(ctx, time.Duration(float64(period)*dutyCycle))
}

func (pin *GPIOPin) softwarePwmLoop(ctx context.Context, generation uint64) {
	for {
		if !pin.halfPwmCycle(ctx, generation, true) {
			return
		}
		if !pin.halfPwmCycle(ctx, generation, false) {
			return
		}
	}
}

// Close stops any PWM loop and releases the line.
func (pin *GPIOPin) Close() error {
	pin.mu.Lock()
	defer pin.mu.Unlock()

	if pin.closed {
		return nil
	}
	pin.closed = true
	pin.stopSoftwarePWM()
	return pin.line.Close()
}
