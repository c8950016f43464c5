package transport

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"
)

// baudFlags maps supported line rates to termios speed constants.
var baudFlags = map[int]uint32{
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	500000:  unix.B500000,
	921600:  unix.B921600,
	1000000: unix.B1000000,
}

// Serial reads line-protocol text from a wired tty device.
type Serial struct {
	device string
	baud   int
	fd     int
	buf    []byte
}

func NewSerial(device string, baud int) *Serial {
	return &Serial{device: device, baud: baud, fd: -1, buf: make([]byte, 4096)}
}

// Open opens the device and puts it in raw 8N1 mode at the configured
// rate. VTIME makes blocked reads return periodically so the read loop
// can observe cancellation between chunks.
func (s *Serial) Open() error {
	speed, ok := baudFlags[s.baud]
	if !ok {
		return fmt.Errorf("serial: unsupported baud rate %d", s.baud)
	}

	fd, err := unix.Open(s.device, unix.O_RDWR|unix.O_NOCTTY, 0600)
	if err != nil {
		return fmt.Errorf("serial: failed to open %s: %w", s.device, err)
	}

	tios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		unix.Close(fd)
		return fmt.Errorf("serial: failed to get termios: %w", err)
	}

	tios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	tios.Oflag &^= unix.OPOST
	tios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	tios.Cflag &^= unix.CSIZE | unix.PARENB | unix.CBAUD
	tios.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | speed
	tios.Ispeed = speed
	tios.Ospeed = speed
	tios.Cc[unix.VMIN] = 0
	tios.Cc[unix.VTIME] = 2 // deciseconds

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, tios); err != nil {
		unix.Close(fd)
		return fmt.Errorf("serial: failed to set termios: %w", err)
	}

	s.fd = fd
	return nil
}

func (s *Serial) ReadChunk(ctx context.Context) ([]byte, error) {
	if s.fd < 0 {
		return nil, ErrNotOpen
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := unix.Read(s.fd, s.buf)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, fmt.Errorf("serial: read error: %w", err)
		}
		if n == 0 {
			// VTIME expired with no data; poll cancellation and retry.
			continue
		}
		chunk := make([]byte, n)
		copy(chunk, s.buf[:n])
		return chunk, nil
	}
}

func (s *Serial) Write(p []byte) error {
	if s.fd < 0 {
		return ErrNotOpen
	}
	for len(p) > 0 {
		n, err := unix.Write(s.fd, p)
		if err != nil {
			return fmt.Errorf("serial: write error: %w", err)
		}
		p = p[n:]
	}
	return nil
}

func (s *Serial) Close() error {
	if s.fd < 0 {
		return nil
	}
	fd := s.fd
	s.fd = -1
	return unix.Close(fd)
}

func (s *Serial) Kind() Kind {
	return KindSerial
}
