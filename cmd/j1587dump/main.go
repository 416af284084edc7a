// Command j1587dump prints every frame observed on a J1708 bus, in the
// spirit of candump, grounded on j1708dump.py's argument surface.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	j1587 "github.com/haystack/j1587"
	"github.com/haystack/j1587/internal/backend/rp1210"
	"github.com/haystack/j1587/internal/backend/serial"
	"github.com/haystack/j1587/internal/backend/udp"
)

// frameFilter is one candump-style "val[:mask]" filter, grounded on
// j1708dump.py's get_filter_val_and_mask/is_filter_applies: val and mask
// are hex-encoded leading frame bytes (mask defaults to all-ones, i.e. an
// exact-match prefix), so "ac:ff" matches only frames whose first byte
// (the MID) is 0xac.
type frameFilter struct {
	val, mask []byte
}

func parseFilter(s string) (frameFilter, error) {
	valHex, maskHex, hasMask := strings.Cut(s, ":")
	if !hasMask {
		maskHex = strings.Repeat("f", len(valHex))
	}
	val, err := hex.DecodeString(valHex)
	if err != nil {
		return frameFilter{}, fmt.Errorf("invalid filter %q: %w", s, err)
	}
	mask, err := hex.DecodeString(maskHex)
	if err != nil {
		return frameFilter{}, fmt.Errorf("invalid filter %q: bad mask: %w", s, err)
	}
	if len(mask) != len(val) {
		return frameFilter{}, fmt.Errorf("invalid filter %q: mask length must match value length", s)
	}
	return frameFilter{val: val, mask: mask}, nil
}

func (f frameFilter) applies(frame []byte) bool {
	if len(frame) < len(f.val) {
		return false
	}
	for i := range f.val {
		if frame[i]&f.mask[i] != f.val[i] {
			return false
		}
	}
	return true
}

// filterList accumulates repeated --show/--hide occurrences, mirroring
// the original's argparse action="append".
type filterList []frameFilter

func (fl *filterList) String() string {
	if fl == nil {
		return ""
	}
	return fmt.Sprint([]frameFilter(*fl))
}

func (fl *filterList) Set(s string) error {
	f, err := parseFilter(s)
	if err != nil {
		return err
	}
	*fl = append(*fl, f)
	return nil
}

func (fl filterList) applies(frame []byte) bool {
	for _, f := range fl {
		if f.applies(frame) {
			return true
		}
	}
	return false
}

func main() {
	var (
		iface         = flag.String("j1708-interface", "udp", "link backend: udp, serial or rp1210")
		truckduckHost = flag.String("truckduck-host", "", "host:serve_port:client_port for the udp backend")
		serialPort    = flag.String("serial-port", "/dev/ttyUSB0", "device path for the serial backend")
		rp1210DLL     = flag.String("rp1210-dll", "", "RP1210 vendor DLL name")
		rp1210Device  = flag.Int("rp1210-device", 1, "RP1210 device id")
		listRP1210    = flag.Bool("list-rp1210", false, "list available RP1210 devices and exit")
		showChecksums = flag.Bool("show-checksums", false, "print the trailing checksum byte")
		validate      = flag.Bool("validate", true, "drop frames that fail checksum validation")
		configPath    = flag.String("config", "", "optional ini file overriding defaults")
	)
	var show, hide filterList
	flag.Var(&show, "show", `candump-style hex[:mask] filter; matching frames are shown exclusively, processed before --hide (repeatable), e.g. "ac:ff" to show only MID 0xac frames`)
	flag.Var(&hide, "hide", `candump-style hex[:mask] filter; matching frames are hidden (repeatable), e.g. "89:ff" to hide MID 0x89 frames`)
	flag.Parse()

	if *configPath != "" {
		applyConfigDefaults(*configPath, iface, truckduckHost, serialPort, rp1210DLL)
	}

	if *listRP1210 {
		if _, err := rp1210.ListDevices(); err != nil {
			fmt.Fprintln(os.Stderr, "rp1210 device enumeration requires Windows")
			os.Exit(1)
		}
		return
	}

	link, err := openLink(*iface, *truckduckHost, *serialPort, *rp1210DLL, *rp1210Device)
	if err != nil {
		slog.Error("failed to open link", "err", err)
		os.Exit(1)
	}
	defer link.Close()

	for {
		frame, err := link.Read(time.Second)
		if err != nil {
			if err == j1587.ErrLinkClosed {
				return
			}
			slog.Error("link read failed", "err", err)
			return
		}
		if frame == nil {
			continue
		}

		if len(show) > 0 && !show.applies(frame) {
			continue
		}
		if hide.applies(frame) {
			continue
		}

		valid := j1587.VerifyChecksum(frame)
		if *validate && !valid {
			continue
		}
		display := frame
		if !*showChecksums {
			display = j1587.StripChecksum(frame)
		}
		printFrame(display, valid)
	}
}

func printFrame(msg []byte, checksumOK bool) {
	if len(msg) < 2 {
		return
	}
	mark := ""
	if !checksumOK {
		mark = " !checksum"
	}
	fmt.Printf("mid=%#02x pid=%d % x%s\n", msg[0], msg[1], msg[2:], mark)
}

func applyConfigDefaults(path string, iface, truckduckHost, serialPort, rp1210DLL *string) {
	cfg, err := ini.Load(path)
	if err != nil {
		slog.Warn("failed to load config file", "path", path, "err", err)
		return
	}
	section := cfg.Section("j1708")
	if v := section.Key("interface").String(); v != "" {
		*iface = v
	}
	if v := section.Key("truckduck_host").String(); v != "" {
		*truckduckHost = v
	}
	if v := section.Key("serial_port").String(); v != "" {
		*serialPort = v
	}
	if v := section.Key("rp1210_dll").String(); v != "" {
		*rp1210DLL = v
	}
}

func openLink(iface, truckduckHost, serialPort, rp1210DLL string, rp1210Device int) (j1587.Link, error) {
	switch iface {
	case "udp":
		return udp.NewLink(truckduckHost)
	case "serial":
		return serial.Open(serialPort)
	case "rp1210":
		return rp1210.Open(rp1210.Config{DLLName: rp1210DLL, DeviceID: rp1210Device, Protocol: "J1708:Baud=9600", ProtocolFallback: "PLC:Baud=9600"})
	default:
		return nil, fmt.Errorf("unknown interface %q", iface)
	}
}
