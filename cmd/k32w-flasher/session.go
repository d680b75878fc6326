package main

import (
	"fmt"

	"github.com/bigbag/k32w-flasher/internal/detect"
	"github.com/bigbag/k32w-flasher/internal/flasher"
	"github.com/bigbag/k32w-flasher/internal/isp"
	"github.com/bigbag/k32w-flasher/internal/protocol"
	"github.com/bigbag/k32w-flasher/internal/serial"
)

// session is an open port with a flasher on top of it.
type session struct {
	port    string
	conn    serial.Conn
	flasher *flasher.Flasher
}

// openSession resolves the port, auto-detecting it when none is configured,
// and opens it.
func openSession() (*session, error) {
	key, err := cfg.Key()
	if err != nil {
		return nil, err
	}
	kind := serial.Kind(cfg.Transport)

	portName := cfg.Port
	if portName == "" {
		ids, err := detect.ParseUSBIDs(cfg.USBIDs)
		if err != nil {
			return nil, err
		}

		fmt.Println("Detecting device...")
		result, err := detect.DetectDevice(ids, detect.Options{
			Transport:       kind,
			BaudRate:        cfg.Baud,
			Key:             key,
			EnterBootloader: cfg.EnterBootloader,
			Timeout:         cfg.ResponseTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("device detection failed: %w", err)
		}
		portName = result.Port
		fmt.Printf("Found %s on %s\n", result.ChipName, result.Port)
	}

	conn, err := serial.OpenConn(kind, portName, cfg.Baud)
	if err != nil {
		return nil, fmt.Errorf("failed to open port: %w", err)
	}
	conn.SetResponseTimeout(cfg.ResponseTimeout)

	fmt.Printf("Port: %s @ %d baud\n", portName, cfg.Baud)

	dev := isp.New(conn, isp.WithChunkSize(cfg.ChunkSize))

	var boot flasher.BootloaderEntry
	if cfg.EnterBootloader {
		boot = conn
	}

	return &session{
		port:    portName,
		conn:    conn,
		flasher: flasher.New(dev, boot),
	}, nil
}

// connect unlocks the bootloader and checks the chip.
func (s *session) connect() (protocol.DeviceInfo, error) {
	key, err := cfg.Key()
	if err != nil {
		return protocol.DeviceInfo{}, err
	}

	fmt.Println("Connecting to bootloader...")
	if err := s.flasher.Connect(key, cfg.Speed); err != nil {
		return protocol.DeviceInfo{}, err
	}
	if cfg.Speed != 0 {
		fmt.Printf("Switched to %d baud\n", cfg.Speed)
	}

	info, err := s.flasher.Info()
	if err != nil {
		return protocol.DeviceInfo{}, err
	}
	fmt.Printf("Connected to %s (version %d)\n", protocol.ChipName(info.ChipID), info.Version)
	return info, nil
}

// Close closes the port.
func (s *session) Close() error {
	return s.conn.Close()
}
