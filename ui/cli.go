//go:build !pi

package ui

import (
	"github.com/sirupsen/logrus"
)

// InitButtons returns a channel that never fires. Volume is controlled
// through the CLI when running off the Pi.
func InitButtons() <-chan ButtonEvent {
	return make(chan ButtonEvent)
}

func GetColorLED() ColorLed {
	return cliLed{}
}

type cliLed struct{}

func (cliLed) Yellow() {
	logrus.Println("LED: Yellow")
}

func (cliLed) Red() {
	logrus.Println("LED: Red")
}

func (cliLed) Green() {
	logrus.Println("LED: Green")
}

func (cliLed) Blue() {
	logrus.Println("LED: Blue")
}

func (cliLed) Off() {
	logrus.Println("LED: Off")
}
