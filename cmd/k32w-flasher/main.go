package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"k8s.io/klog"

	"github.com/bigbag/k32w-flasher/internal/config"
	"github.com/bigbag/k32w-flasher/internal/detect"
	"github.com/bigbag/k32w-flasher/internal/protocol"
	"github.com/bigbag/k32w-flasher/internal/serial"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configFlag    string
	portFlag      string
	baudFlag      int
	speedFlag     uint32
	transportFlag string
	keyFlag       string
	timeoutFlag   time.Duration
	usbIDsFlag    []string
	bootFlag      bool

	memoryFlag  string
	noEraseFlag bool
	noResetFlag bool
	allFlag     bool
)

// cfg is the loaded config file with command line overrides applied.
var cfg *config.Config

func main() {
	rootCmd := &cobra.Command{
		Use:   "k32w-flasher",
		Short: "Flash firmware to NXP K32W061 devices over the ISP bootloader",
		Long: `K32W Flasher programs NXP K32W061 microcontrollers through their
in-system-programming bootloader over a USB serial bridge or a plain UART.

Settings are read from ~/.k32w-flasher.yaml when it exists; command line
flags override the file.`,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFlag, "config", config.DefaultPath(), "Config file")
	pf.StringVarP(&portFlag, "port", "p", "", "Serial port (auto-detect if not specified)")
	pf.IntVarP(&baudFlag, "baud", "b", protocol.DefaultBaudRate, "Baud rate used to talk to the bootloader")
	pf.Uint32Var(&speedFlag, "speed", 0, "Switch to this baud rate after unlocking (0 keeps --baud)")
	pf.StringVar(&transportFlag, "transport", string(serial.KindSerial), "Port driver: serial or raw (linux termios)")
	pf.StringVar(&keyFlag, "key", "", "ISP unlock key in hex (empty unlocks without a key)")
	pf.DurationVar(&timeoutFlag, "timeout", config.DefaultResponseTimeout, "Response timeout (0 waits forever)")
	pf.StringSliceVar(&usbIDsFlag, "usb-id", []string{config.DefaultUSBID}, "USB bridge vid:pid used for auto-detection")
	pf.BoolVar(&bootFlag, "enter-bootloader", true, "Pulse DTR/RTS to enter the bootloader")

	goflags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(goflags)
	pf.AddGoFlagSet(goflags)

	// Flash command
	flashCmd := &cobra.Command{
		Use:   "flash <image.bin>",
		Short: "Flash an image to device",
		Long: `Flash a binary image to a K32W061 device.

By default the target region is erased and blank checked first, the image
is written in 512 byte chunks and the device is reset afterwards.`,
		Args: cobra.ExactArgs(1),
		RunE: runFlash,
	}
	flashCmd.Flags().StringVarP(&memoryFlag, "memory", "m", protocol.MemoryFlash.String(), memoryUsage())
	flashCmd.Flags().BoolVar(&noEraseFlag, "no-erase", false, "Skip erase and blank check")
	flashCmd.Flags().BoolVar(&noResetFlag, "no-reset", false, "Leave the device in ISP mode")

	// Erase command
	eraseCmd := &cobra.Command{
		Use:   "erase",
		Short: "Erase a memory region",
		Args:  cobra.NoArgs,
		RunE:  runErase,
	}
	eraseCmd.Flags().StringVarP(&memoryFlag, "memory", "m", protocol.MemoryFlash.String(), memoryUsage())

	// Info command
	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show device info",
		Long:  "Unlock the bootloader and show the chip ID and version.",
		Args:  cobra.NoArgs,
		RunE:  runInfo,
	}

	// Reset command
	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset the device",
		Args:  cobra.NoArgs,
		RunE:  runReset,
	}

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List serial ports with a matching USB bridge",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	listCmd.Flags().BoolVarP(&allFlag, "all", "a", false, "List every serial port")

	// Version command
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("k32w-flasher %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}

	rootCmd.AddCommand(flashCmd, eraseCmd, infoCmd, resetCmd, listCmd, versionCmd)

	err := rootCmd.Execute()
	klog.Flush()
	if err != nil {
		os.Exit(1)
	}
}

func memoryUsage() string {
	return "Memory region: " + strings.Join(protocol.MemoryNames(), ", ")
}

// loadConfig reads the config file and applies flags set on the command line.
func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configFlag)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		c.Port = portFlag
	}
	if flags.Changed("baud") {
		c.Baud = baudFlag
	}
	if flags.Changed("speed") {
		c.Speed = speedFlag
	}
	if flags.Changed("transport") {
		c.Transport = transportFlag
	}
	if flags.Changed("key") {
		c.UnlockKey = keyFlag
	}
	if flags.Changed("timeout") {
		c.ResponseTimeout = timeoutFlag
	}
	if flags.Changed("usb-id") {
		c.USBIDs = usbIDsFlag
	}
	if flags.Changed("enter-bootloader") {
		c.EnterBootloader = bootFlag
	}

	if err := c.Validate(); err != nil {
		return err
	}
	cfg = c
	return nil
}

func memoryID() (protocol.MemoryID, error) {
	id, ok := protocol.ParseMemoryID(memoryFlag)
	if !ok {
		return 0, fmt.Errorf("unknown memory region %q (want one of %s)",
			memoryFlag, strings.Join(protocol.MemoryNames(), ", "))
	}
	return id, nil
}

func runFlash(cmd *cobra.Command, args []string) error {
	imagePath := args[0]

	id, err := memoryID()
	if err != nil {
		return err
	}

	// Read image file
	image, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("failed to read image file: %w", err)
	}

	fmt.Printf("Image: %s (%d bytes)\n", imagePath, len(image))

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.connect(); err != nil {
		return err
	}

	bar := progressbar.NewOptions(len(image),
		progressbar.OptionSetDescription("Flashing"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	s.flasher.SetProgressCallback(func(written, total int) {
		bar.Set(written)
	})

	erase := !noEraseFlag
	if erase {
		fmt.Printf("Erasing %s...\n", id)
	}
	fmt.Printf("Flashing %s (%d bytes)...\n", id, len(image))
	if err := s.flasher.FlashImage(id, image, erase); err != nil {
		return err
	}

	bar.Finish()
	fmt.Println("\nFlash complete!")

	if noResetFlag {
		fmt.Println("Device left in ISP mode")
		return nil
	}

	fmt.Println("Resetting device...")
	if err := s.flasher.Reset(); err != nil {
		fmt.Printf("Warning: reset failed: %v\n", err)
	}

	fmt.Println("Done!")
	return nil
}

func runErase(cmd *cobra.Command, args []string) error {
	id, err := memoryID()
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.connect(); err != nil {
		return err
	}

	fmt.Printf("Erasing %s...\n", id)
	if err := s.flasher.Erase(id); err != nil {
		return err
	}

	fmt.Println("Erase complete!")
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	info, err := s.connect()
	if err != nil {
		return err
	}

	fmt.Printf("  Port:     %s\n", s.port)
	if usb, err := detect.LookupPort(s.port); err == nil {
		fmt.Printf("  USB:      %s:%s %s\n", usb.VID, usb.PID, usb.Product)
	} else {
		klog.V(1).Infof("lookup %s: %v", s.port, err)
	}
	fmt.Printf("  Chip:     %s\n", protocol.ChipName(info.ChipID))
	fmt.Printf("  Chip ID:  0x%08X\n", info.ChipID)
	fmt.Printf("  Version:  %d\n", info.Version)
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.connect(); err != nil {
		return err
	}

	if err := s.flasher.Reset(); err != nil {
		return err
	}

	fmt.Println("Device reset")
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	if allFlag {
		ports, err := serial.ListPorts()
		if err != nil {
			return err
		}

		if len(ports) == 0 {
			fmt.Println("No serial ports found")
			return nil
		}

		fmt.Println("Available serial ports:")
		for _, p := range ports {
			fmt.Printf("  %s\n", p)
		}
		return nil
	}

	ids, err := detect.ParseUSBIDs(cfg.USBIDs)
	if err != nil {
		return err
	}

	devices, err := detect.ListDevices(ids)
	if err != nil {
		return err
	}

	if len(devices) == 0 {
		fmt.Printf("No serial ports match %s\n", strings.Join(cfg.USBIDs, ", "))
		return nil
	}

	fmt.Println("Matching serial ports:")
	for _, d := range devices {
		fmt.Printf("  %s  %s:%s", d.Port, d.VID, d.PID)
		if d.SerialNumber != "" {
			fmt.Printf("  %s", d.SerialNumber)
		}
		if d.Product != "" {
			fmt.Printf("  %s", d.Product)
		}
		fmt.Println()
	}
	return nil
}
