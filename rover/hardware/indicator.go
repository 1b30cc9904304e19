package hardware

import (
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ev3go/ev3"
	"github.com/ev3go/ev3dev"
)

const (
	SOUND_DEVICE = "/dev/input/by-path/platform-sound-event"

	evSnd   = 0x12
	sndTone = 0x02
)

// EvadeIndicator warns bystanders that the rover is about to reverse: a
// repeated tone on the brick speaker and the status LEDs switched from
// green to red for the length of the maneuver. None of it is load bearing,
// so failures are logged and swallowed.
type EvadeIndicator struct {
	f *os.File
}

func NewEvadeIndicator(device string) (ind *EvadeIndicator, err error) {
	if device == "" {
		device = SOUND_DEVICE
	}

	f, err := os.OpenFile(device, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("unable to open sound device: %v", err)
	}

	ind = &EvadeIndicator{f: f}
	return
}

// EvadeStart turns the brick LEDs red and sounds three half second beeps,
// blocking for the three seconds the warning lasts.
func (ind *EvadeIndicator) EvadeStart() {
	ind.setLeds(false, true)

	for i := 0; i < 3; i++ {
		if err := ind.tone(1000); err != nil {
			log.Printf("unable to sound reversing tone: %v", err)
			return
		}
		time.Sleep(500 * time.Millisecond)
		if err := ind.tone(0); err != nil {
			log.Printf("unable to silence reversing tone: %v", err)
			return
		}
		time.Sleep(500 * time.Millisecond)
	}
}

// EvadeEnd silences the speaker and restores the green status LEDs.
func (ind *EvadeIndicator) EvadeEnd() {
	if err := ind.tone(0); err != nil {
		log.Printf("unable to silence reversing tone: %v", err)
	}
	ind.setLeds(true, false)
}

func (ind *EvadeIndicator) Close() error {
	return ind.f.Close()
}

// tone starts, or at zero hertz stops, a continuous beep through the brick
// speaker's input event device.
func (ind *EvadeIndicator) tone(freq uint32) (err error) {
	// input_event as the brick's 32 bit armel kernel lays it out: two long
	// timestamp words, then type, code, value
	var ev [16]byte
	binary.LittleEndian.PutUint16(ev[8:], evSnd)
	binary.LittleEndian.PutUint16(ev[10:], sndTone)
	binary.LittleEndian.PutUint32(ev[12:], freq)

	_, err = ind.f.Write(ev[:])
	return
}

func (ind *EvadeIndicator) setLeds(green, red bool) {
	for _, l := range []struct {
		led *ev3dev.LED
		on  bool
	}{
		{ev3.GreenLeft, green},
		{ev3.GreenRight, green},
		{ev3.RedLeft, red},
		{ev3.RedRight, red},
	} {
		bri := 0
		if l.on {
			var err error
			bri, err = l.led.MaxBrightness()
			if err != nil {
				log.Printf("unable to read brick led max brightness: %v", err)
				continue
			}
		}
		if err := l.led.SetBrightness(bri).Err(); err != nil {
			log.Printf("unable to set brick led: %v", err)
		}
	}
}
