//go:build pi

package nfc

// Polls an MFRC522 over SPI for card UIDs. Register sequences follow the
// MFRC522 data sheet: https://www.nxp.com/docs/en/data-sheet/MFRC522.pdf

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ecc1/spi"
	"github.com/jdevelop/golang-rpi-extras/rf522/commands"
	"github.com/jdevelop/gpio"
	rpio "github.com/jdevelop/gpio/rpi"
	log "github.com/sirupsen/logrus"
)

var NoCardErr = errors.New("no card detected")

// ErrReaderBusy is reported when the SPI interface is already claimed by
// another reader in this process, as opposed to the hardware failing.
var ErrReaderBusy = errors.New("card reader interface is already in use")

var (
	stateLock sync.Mutex
	active    bool
)

const (
	pollInterval = 150 * time.Millisecond
	// confirmReads is how many identical consecutive reads are needed
	// before a card change is believed. Guards against half reads.
	confirmReads = 4
	// faultRun is how many consecutive hard errors mark the scanner as
	// degraded.
	faultRun = 8
	// maxResets bounds chip reset attempts while degraded.
	maxResets    = 5
	resetBackoff = 2 * time.Second
)

type cardReader struct {
	events <-chan CardEvent
	rfid   *rfid
	stop   chan struct{}
}

func (c *cardReader) Events() <-chan CardEvent {
	return c.events
}

func (c *cardReader) Close() error {
	close(c.stop)
	defer func() {
		stateLock.Lock()
		active = false
		stateLock.Unlock()
	}()
	return c.rfid.Close()
}

// CreateReader claims the SPI bus and starts polling for cards. The IRQ
// pin is wired but unreliable on the RC522 clones, so we poll.
func CreateReader(resetPin, irqPin int) (CardReader, error) {
	stateLock.Lock()
	if active {
		stateLock.Unlock()
		return nil, ErrReaderBusy
	}
	active = true
	stateLock.Unlock()

	reader, err := makeRFID(0, 0, 100000, resetPin, irqPin)
	if err != nil {
		stateLock.Lock()
		active = false
		stateLock.Unlock()
		return nil, fmt.Errorf("initialize RC522: %w", err)
	}

	events := make(chan CardEvent, 10)
	c := &cardReader{
		rfid:   reader,
		events: events,
		stop:   make(chan struct{}),
	}
	go c.poll(events)
	return c, nil
}

func (c *cardReader) poll(events chan<- CardEvent) {
	defer close(events)

	lastConfirmed, lastSeen := "", ""
	confirm := 0
	errorRun := 0
	resets := 0
	backoff := resetBackoff

	for {
		select {
		case <-c.stop:
			log.Debugln("Card reader stopped.")
			return
		case <-time.After(pollInterval):
		}

		id, err := c.rfid.readCardID()
		if err != nil && err != NoCardErr {
			log.Debugf("Card read error: %v", err)
			errorRun++
			if errorRun >= faultRun {
				if !c.degraded(events, &resets, &backoff) {
					return
				}
				if resets == 0 {
					// chip came back
					errorRun = 0
					lastSeen, confirm = "", 0
				}
			}
			continue
		}
		errorRun = 0
		resets = 0
		backoff = resetBackoff

		if lastSeen != id {
			lastSeen = id
			confirm = 0
			continue
		}

		if lastConfirmed == id {
			continue
		}

		confirm++
		if confirm < confirmReads {
			continue
		}

		if id == "" {
			log.Debugln("Card removed")
			events <- CardEvent{State: Deactivated, Time: time.Now()}
		} else {
			log.Debugf("Card %v activated", id)
			events <- CardEvent{CardID: id, State: Activated, Time: time.Now()}

			// freshly placed cards misread for a moment, give the
			// stream a head start before polling again
			time.Sleep(time.Second)
		}
		lastConfirmed = id
		confirm = 0
	}
}

// degraded surfaces the hardware fault and tries to bring the chip back
// with a bounded number of resets. Returns false only when the reader has
// been stopped. A successful reset is signalled by *resets == 0.
func (c *cardReader) degraded(events chan<- CardEvent, resets *int, backoff *time.Duration) bool {
	select {
	case events <- CardEvent{State: ReaderFault, Time: time.Now()}:
	default:
		// nobody listening is not a reason to stop polling
	}

	if *resets >= maxResets {
		log.Errorf("Scanner still unresponsive after %v resets, waiting %v", maxResets, *backoff)
		select {
		case <-c.stop:
			return false
		case <-time.After(*backoff):
		}
		return true
	}

	*resets++
	log.Warnf("Scanner unresponsive, reset %v/%v in %v", *resets, maxResets, *backoff)
	select {
	case <-c.stop:
		return false
	case <-time.After(*backoff):
	}
	*backoff *= 2

	if err := c.rfid.init(); err != nil {
		log.Warnf("Scanner reset failed: %v", err)
		return true
	}
	log.Infoln("Scanner reset succeeded")
	*resets = 0
	*backoff = resetBackoff
	return true
}

type rfid struct {
	resetPin    gpio.Pin
	antennaGain int
	spiDev      *spi.Device
}

func makeRFID(busID, deviceID, maxSpeed, resetPin, irqPin int) (*rfid, error) {
	spiDev, err := spi.Open(fmt.Sprintf("/dev/spidev%d.%d", busID, deviceID), maxSpeed, 0)
	if err != nil {
		return nil, err
	}
	if err := spiDev.SetLSBFirst(false); err != nil {
		spiDev.Close()
		return nil, err
	}
	if err := spiDev.SetBitsPerWord(8); err != nil {
		spiDev.Close()
		return nil, err
	}

	dev := &rfid{
		spiDev:      spiDev,
		antennaGain: 7,
	}

	pin, err := rpio.OpenPin(resetPin, gpio.ModeOutput)
	if err != nil {
		spiDev.Close()
		return nil, err
	}
	dev.resetPin = pin
	dev.resetPin.Set()

	if _, err := rpio.OpenPin(irqPin, gpio.ModeInput); err != nil {
		spiDev.Close()
		return nil, err
	}

	if err := dev.init(); err != nil {
		spiDev.Close()
		return nil, err
	}
	return dev, nil
}

func (r *rfid) Close() error {
	return r.spiDev.Close()
}

func (r *rfid) readCardID() (string, error) {
	if err := r.init(); err != nil {
		return "", err
	}
	if err := r.request(); err != nil {
		return "", err
	}
	data, err := r.antiColl()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(data), nil
}

func (r *rfid) init() error {
	if err := r.reset(); err != nil {
		return err
	}
	// timer, mode and gain setup per data sheet defaults
	setup := []struct {
		reg  int
		data byte
	}{
		{0x2A, 0x8D},
		{0x2B, 0x3E},
		{0x2D, 30},
		{0x2C, 0},
		{0x15, 0x40},
		{0x11, 0x3D},
		{0x26, byte(r.antennaGain) << 4},
	}
	for _, s := range setup {
		if err := r.devWrite(s.reg, s.data); err != nil {
			return err
		}
	}
	return r.setAntenna(true)
}

func (r *rfid) reset() error {
	return r.devWrite(commands.CommandReg, commands.PCD_RESETPHASE)
}

func (r *rfid) setAntenna(on bool) error {
	if !on {
		return r.clearBitmask(commands.TxControlReg, 0x03)
	}
	current, err := r.devRead(commands.TxControlReg)
	if err != nil {
		return err
	}
	if current&0x03 == 0 {
		return r.setBitmask(commands.TxControlReg, 0x03)
	}
	return nil
}

func (r *rfid) transfer(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	err := r.spiDev.Transfer(out)
	return out, err
}

func (r *rfid) devWrite(address int, data byte) error {
	_, err := r.transfer([]byte{(byte(address) << 1) & 0x7E, data})
	return err
}

func (r *rfid) devRead(address int) (byte, error) {
	rb, err := r.transfer([]byte{((byte(address) << 1) & 0x7E) | 0x80, 0})
	if err != nil {
		return 0, err
	}
	return rb[1], nil
}

func (r *rfid) setBitmask(address, mask int) error {
	current, err := r.devRead(address)
	if err != nil {
		return err
	}
	return r.devWrite(address, current|byte(mask))
}

func (r *rfid) clearBitmask(address, mask int) error {
	current, err := r.devRead(address)
	if err != nil {
		return err
	}
	return r.devWrite(address, current&^byte(mask))
}

// cardWrite sends a command plus payload to the card through the FIFO and
// collects the response.
func (r *rfid) cardWrite(command byte, data []byte) ([]byte, int, error) {
	backLength := -1
	irqEn := byte(0x00)
	irqWait := byte(0x00)

	switch command {
	case commands.PCD_AUTHENT:
		irqEn = 0x12
		irqWait = 0x10
	case commands.PCD_TRANSCEIVE:
		irqEn = 0x77
		irqWait = 0x30
	}

	r.devWrite(commands.CommIEnReg, irqEn|0x80)
	r.clearBitmask(commands.CommIrqReg, 0x80)
	r.setBitmask(commands.FIFOLevelReg, 0x80)
	r.devWrite(commands.CommandReg, commands.PCD_IDLE)

	for _, v := range data {
		r.devWrite(commands.FIFODataReg, v)
	}
	r.devWrite(commands.CommandReg, command)
	if command == commands.PCD_TRANSCEIVE {
		r.setBitmask(commands.BitFramingReg, 0x80)
	}

	i := 2000
	n := byte(0)
	for ; i > 0; i-- {
		var err error
		n, err = r.devRead(commands.CommIrqReg)
		if err != nil {
			return nil, backLength, err
		}
		if n&(irqWait|1) != 0 {
			break
		}
	}
	r.clearBitmask(commands.BitFramingReg, 0x80)

	if i == 0 {
		return nil, backLength, errors.New("timed out waiting for card response")
	}
	if d, err := r.devRead(commands.ErrorReg); err != nil || d&0x1B != 0 {
		if err == nil {
			err = fmt.Errorf("card communication error register %02x", d)
		}
		return nil, backLength, err
	}
	if n&irqEn&0x01 == 1 {
		return nil, backLength, errors.New("IRQ error")
	}

	var backData []byte
	if command == commands.PCD_TRANSCEIVE {
		n, err := r.devRead(commands.FIFOLevelReg)
		if err != nil {
			return nil, backLength, err
		}
		lastBits, err := r.devRead(commands.ControlReg)
		if err != nil {
			return nil, backLength, err
		}
		lastBits &= 0x07
		if lastBits != 0 {
			backLength = (int(n)-1)*8 + int(lastBits)
		} else {
			backLength = int(n) * 8
		}

		if n == 0 {
			n = 1
		}
		if n > 16 {
			n = 16
		}
		for i := byte(0); i < n; i++ {
			b, err := r.devRead(commands.FIFODataReg)
			if err != nil {
				return nil, backLength, err
			}
			backData = append(backData, b)
		}
	}
	return backData, backLength, nil
}

func (r *rfid) request() error {
	if err := r.devWrite(commands.BitFramingReg, 0x07); err != nil {
		return err
	}
	// REQIDL: only wake cards not already halted
	_, backBits, err := r.cardWrite(commands.PCD_TRANSCEIVE, []byte{0x26})
	if err != nil {
		return NoCardErr
	}
	if backBits != 0x10 {
		return fmt.Errorf("wrong number of ATQA bits %d", backBits)
	}
	return nil
}

// antiColl runs the anticollision sequence and returns the card UID,
// cascading to level 2 for 7 byte UIDs.
func (r *rfid) antiColl() ([]byte, error) {
	if err := r.devWrite(commands.BitFramingReg, 0x00); err != nil {
		return nil, err
	}
	backData, _, err := r.cardWrite(commands.PCD_TRANSCEIVE, []byte{0x93, 0x20})
	if err != nil {
		return nil, err
	}
	if len(backData) != 5 {
		return nil, fmt.Errorf("anticollision returned %d bytes, expected 5", len(backData))
	}
	if err := checkBCC(backData); err != nil {
		return nil, err
	}
	if backData[0] != 0x88 {
		// single size UID, done
		return backData[:4], nil
	}

	// 0x88 is the cascade tag: select this part, then fetch the rest
	uid := make([]byte, 7)
	copy(uid, backData[1:4])
	log.Debugf("Cascade level 2 needed for partial UID %v", hex.EncodeToString(uid))

	cmd := []byte{0x93, 0x70, backData[0], backData[1], backData[2], backData[3], backData[4]}
	crc, err := r.crc(cmd)
	if err != nil {
		return nil, err
	}
	sel, _, err := r.cardWrite(commands.PCD_TRANSCEIVE, append(cmd, crc...))
	if err != nil {
		return nil, err
	}
	if len(sel) == 0 || sel[0] != 0x04 {
		return nil, fmt.Errorf("unexpected level 2 select response")
	}

	backData, _, err = r.cardWrite(commands.PCD_TRANSCEIVE, []byte{0x95, 0x20})
	if err != nil {
		return nil, err
	}
	if len(backData) != 5 {
		return nil, fmt.Errorf("anticollision L2 returned %d bytes, expected 5", len(backData))
	}
	if err := checkBCC(backData); err != nil {
		return nil, err
	}
	copy(uid[3:], backData[:4])
	log.Debugf("Found UID %v", hex.EncodeToString(uid))
	return uid, nil
}

// checkBCC verifies the UID check byte (XOR of the four UID bytes).
func checkBCC(data []byte) error {
	bcc := byte(0)
	for _, v := range data[:4] {
		bcc ^= v
	}
	if bcc != data[4] {
		return fmt.Errorf("BCC mismatch, expected %02x actual %02x", bcc, data[4])
	}
	return nil
}

func (r *rfid) crc(data []byte) ([]byte, error) {
	if err := r.clearBitmask(commands.DivIrqReg, 0x04); err != nil {
		return nil, err
	}
	if err := r.setBitmask(commands.FIFOLevelReg, 0x80); err != nil {
		return nil, err
	}
	for _, v := range data {
		r.devWrite(commands.FIFODataReg, v)
	}
	if err := r.devWrite(commands.CommandReg, commands.PCD_CALCCRC); err != nil {
		return nil, err
	}
	for i := byte(0xFF); i > 0; i-- {
		n, err := r.devRead(commands.DivIrqReg)
		if err != nil {
			return nil, err
		}
		if n&0x04 > 0 {
			break
		}
	}
	lsb, err := r.devRead(commands.CRCResultRegL)
	if err != nil {
		return nil, err
	}
	msb, err := r.devRead(commands.CRCResultRegM)
	if err != nil {
		return nil, err
	}
	return []byte{lsb, msb}, nil
}
