//go:build pi

package ui

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

const (
	volumeUpPin   = "GPIO21"
	volumeDownPin = "GPIO20"

	redLEDPin   = "GPIO6"
	greenLEDPin = "GPIO5"
	blueLEDPin  = "GPIO13"
)

func init() {
	if _, err := host.Init(); err != nil {
		logrus.Fatalln("Unable to initialize periph:", err)
	}
}

type colorLed struct {
	r gpio.PinIO
	g gpio.PinIO
	b gpio.PinIO
}

func (c *colorLed) Green() {
	c.Off()
	c.g.Out(gpio.Low)
}

func (c *colorLed) Blue() {
	c.Off()
	c.b.Out(gpio.Low)
}

func (c *colorLed) Red() {
	c.Off()
	c.r.Out(gpio.Low)
}

func (c *colorLed) Yellow() {
	c.Off()
	c.r.Out(gpio.Low)
	c.g.Out(gpio.Low)
}

func (c *colorLed) Off() {
	c.r.Out(gpio.High)
	c.g.Out(gpio.High)
	c.b.Out(gpio.High)
}

func GetColorLED() ColorLed {
	logrus.Infoln("Initializing LED")

	c := colorLed{
		r: gpioreg.ByName(redLEDPin),
		g: gpioreg.ByName(greenLEDPin),
		b: gpioreg.ByName(blueLEDPin),
	}
	c.Off()
	return &c
}

// InitButtons initializes the volume button pins and fetches a button event channel
func InitButtons() <-chan ButtonEvent {
	logrus.Infoln("Initializing buttons")
	up := gpioreg.ByName(volumeUpPin)
	down := gpioreg.ByName(volumeDownPin)

	c := make(chan ButtonEvent, 10)
	initialized := sync.WaitGroup{}
	initialized.Add(2)
	go handleButton(up, VolumeUp, c, &initialized)
	go handleButton(down, VolumeDown, c, &initialized)
	initialized.Wait()
	return c
}

func handleButton(b gpio.PinIO, t Button, c chan ButtonEvent, initialized *sync.WaitGroup) {
	logrus.Debugln("Handling button ", b.Name())
	if err := b.In(gpio.PullUp, gpio.BothEdges); err != nil {
		logrus.Fatal(err)
	}

	last := b.Read()
	initialized.Done()
	for {
		// wait for the edge
		if !b.WaitForEdge(time.Second) {
			continue
		}

		// debounce
		l := b.Read()
		if l == last {
			continue
		}

		time.Sleep(50 * time.Millisecond)
		if l == b.Read() {
			// ... and handle
			last = l
			c <- ButtonEvent{
				Pressed: l == gpio.Low,
				Button:  t,
			}
		}
	}
}
