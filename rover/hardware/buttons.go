package hardware

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	BUTTON_DEVICE = "/dev/input/by-path/platform-gpio_keys-event"

	keyStateLen = 96 // (KEY_MAX+7)/8 rounded up to the kernel's bitmap size
)

// evdev key codes reported for the six brick buttons.
const (
	KEY_BACKSPACE = 14
	KEY_ENTER     = 28
	KEY_UP        = 103
	KEY_LEFT      = 105
	KEY_RIGHT     = 106
	KEY_DOWN      = 108
)

var keyNames = map[int]string{
	KEY_BACKSPACE: "backspace",
	KEY_ENTER:     "enter",
	KEY_UP:        "up",
	KEY_LEFT:      "left",
	KEY_RIGHT:     "right",
	KEY_DOWN:      "down",
}

// BrickPad reads the EV3 brick buttons through the evdev key state ioctl.
// Polling the held key bitmap avoids draining the event queue, so a button
// held across several polls keeps reporting pressed.
type BrickPad struct {
	f *os.File
}

func NewBrickPad(device string) (p *BrickPad, err error) {
	if device == "" {
		device = BUTTON_DEVICE
	}

	f, err := os.Open(device)
	if err != nil {
		return nil, fmt.Errorf("unable to open button device: %v", err)
	}

	p = &BrickPad{f: f}
	return
}

// Pressed reports the names of all buttons currently held down.
func (p *BrickPad) Pressed() (names []string, err error) {
	var state [keyStateLen]byte

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, p.f.Fd(), eviocgkey(len(state)), uintptr(unsafe.Pointer(&state[0])))
	if errno != 0 {
		return nil, fmt.Errorf("unable to read button state: %v", errno)
	}

	for code, name := range keyNames {
		if state[code/8]&(1<<uint(code%8)) != 0 {
			names = append(names, name)
		}
	}
	return
}

func (p *BrickPad) Close() error {
	return p.f.Close()
}

// eviocgkey builds the EVIOCGKEY ioctl request for a size byte key bitmap.
func eviocgkey(size int) uintptr {
	const (
		iocRead   = 2
		evIocBase = 0x45 // 'E'
	)
	return uintptr(iocRead)<<30 | uintptr(size)<<16 | uintptr(evIocBase)<<8 | 0x18
}
