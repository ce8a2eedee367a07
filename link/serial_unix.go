//go:build linux

package link

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SetRawMode configures fd for 8N1 raw-mode transfer at baud, the mode
// every DNP3 serial outstation expects. The termios manipulation mirrors
// the raw-mode setup in the pack's serial-port driver (Daedaluz/goserial),
// narrowed here to the one configuration DNP3 needs instead of that
// driver's general-purpose flag surface.
func SetRawMode(fd int, baud uint32) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL

	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0

	speed, ok := baudRates[baud]
	if !ok {
		return fmt.Errorf("dnp3: unsupported serial baud rate %d", baud)
	}
	t.Cflag &^= unix.CBAUD
	t.Cflag |= speed
	t.Ispeed = speed
	t.Ospeed = speed

	return unix.IoctlSetTermios(fd, unix.TCSETS, t)
}

var baudRates = map[uint32]uint32{
	1200:   unix.B1200,
	2400:   unix.B2400,
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
}
