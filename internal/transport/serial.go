package transport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goodieshq/bitbridge/internal/utils"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// USB identifiers of the micro:bit DAPLink interface
const (
	MicrobitVID = "0D28"
	MicrobitPID = "0204"
)

const (
	DefaultBaudRate = 115200
	flashImageName  = "MICROBIT.hex"
)

type SerialOpts struct {
	// Port is the device path. Empty selects the first attached micro:bit.
	Port     string
	BaudRate *int
	// MountDir is where the DAPLink mass-storage drive is mounted
	MountDir string

	open      func(name string, mode *serial.Mode) (serial.Port, error)
	listPorts func() ([]*enumerator.PortDetails, error)
}

// Serial talks to a micro:bit over its USB CDC serial port
type Serial struct {
	stream
	opts         SerialOpts
	serialNumber string
}

func NewSerial(opts SerialOpts) *Serial {
	if opts.open == nil {
		opts.open = serial.Open
	}
	if opts.listPorts == nil {
		opts.listPorts = enumerator.GetDetailedPortsList
	}
	return &Serial{
		stream: newStream(),
		opts:   opts,
	}
}

// IsMicrobit reports whether p is a micro:bit DAPLink port
func IsMicrobit(p *enumerator.PortDetails) bool {
	return p.IsUSB && strings.EqualFold(p.VID, MicrobitVID) && strings.EqualFold(p.PID, MicrobitPID)
}

// FindMicrobits lists the attached micro:bit serial ports
func FindMicrobits() ([]*enumerator.PortDetails, error) {
	return findMicrobits(enumerator.GetDetailedPortsList)
}

func findMicrobits(list func() ([]*enumerator.PortDetails, error)) ([]*enumerator.PortDetails, error) {
	ports, err := list()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	var found []*enumerator.PortDetails
	for _, p := range ports {
		if IsMicrobit(p) {
			found = append(found, p)
		}
	}
	return found, nil
}

// resolvePort picks the configured port, or the first micro:bit found
func (s *Serial) resolvePort() (name, serialNumber string, err error) {
	ports, err := findMicrobits(s.opts.listPorts)
	if err != nil && s.opts.Port == "" {
		return "", "", err
	}
	for _, p := range ports {
		if s.opts.Port == "" || p.Name == s.opts.Port {
			return p.Name, p.SerialNumber, nil
		}
	}
	if s.opts.Port != "" {
		// not a recognised micro:bit, or enumeration unsupported here
		return s.opts.Port, "", nil
	}
	return "", "", ErrNoDevice
}

func (s *Serial) Connect(ctx context.Context) error {
	if s.connected() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	name, serialNumber, err := s.resolvePort()
	if err != nil {
		return err
	}

	mode := &serial.Mode{
		BaudRate: utils.DefaultIfNil(s.opts.BaudRate, DefaultBaudRate),
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := s.opts.open(name, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", name, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		log.Debug().Err(err).Str("port", name).Msg("Could not reset input buffer")
	}

	s.mu.Lock()
	s.serialNumber = serialNumber
	s.mu.Unlock()

	s.attach(port)
	log.Info().Str("port", name).Str("serial", serialNumber).Int("baud", mode.BaudRate).Msg("Serial port opened")
	return nil
}

func (s *Serial) Disconnect() error {
	return s.detach()
}

func (s *Serial) SerialNumber() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serialNumber
}

// Flash copies a hex image onto the DAPLink drive. The board reboots once the
// copy completes, which drops the serial connection.
func (s *Serial) Flash(ctx context.Context, image []byte) error {
	if s.opts.MountDir == "" {
		return ErrNoMountDir
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Stat(s.opts.MountDir)
	if err != nil {
		return fmt.Errorf("failed to stat mount directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("mount path %s is not a directory", s.opts.MountDir)
	}

	path := filepath.Join(s.opts.MountDir, flashImageName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	if _, err := f.Write(image); err != nil {
		f.Close()
		return fmt.Errorf("failed to write firmware: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync firmware: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close firmware: %w", err)
	}

	log.Info().Str("path", path).Str("size", utils.DisplayBi(uint64(len(image)))).Msg("Firmware copied")
	return nil
}
