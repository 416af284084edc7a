// Command j1587send transmits one J1587 message, grounded on
// j1708send.py's argument surface.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/ini.v1"

	j1587 "github.com/haystack/j1587"
	"github.com/haystack/j1587/internal/backend/rp1210"
	"github.com/haystack/j1587/internal/backend/serial"
	"github.com/haystack/j1587/internal/backend/udp"
)

func main() {
	var (
		iface         = flag.String("j1708-interface", "udp", "link backend: udp, serial or rp1210")
		truckduckHost = flag.String("truckduck-host", "", "host:serve_port:client_port for the udp backend")
		serialPort    = flag.String("serial-port", "/dev/ttyUSB0", "device path for the serial backend")
		rp1210DLL     = flag.String("rp1210-dll", "", "RP1210 vendor DLL name")
		rp1210Device  = flag.Int("rp1210-device", 1, "RP1210 device id")
		listRP1210    = flag.Bool("list-rp1210", false, "list available RP1210 devices and exit")
		configPath    = flag.String("config", "", "optional ini file overriding defaults")
		myMID         = flag.Int("mid", 0xac, "local MID to transmit as")
		dstMID        = flag.Int("dst", -1, "destination MID; when set, uses connection-mode transport instead of a bare frame")
		payloadHex    = flag.String("payload", "", "hex-encoded message payload, e.g. c807040600464141")
	)
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

	payload, err := hex.DecodeString(*payloadHex)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid --payload:", err)
		os.Exit(1)
	}

	link, err := openLink(*iface, *truckduckHost, *serialPort, *rp1210DLL, *rp1210Device)
	if err != nil {
		slog.Error("failed to open link", "err", err)
		os.Exit(1)
	}

	cfg := j1587.DefaultConfig(j1587.MID(*myMID))
	driver := j1587.NewDriver(link, cfg)
	defer driver.Close()

	if *dstMID >= 0 {
		if err := driver.TransportSend(j1587.MID(*dstMID), payload); err != nil {
			slog.Error("transport send failed", "err", err)
			os.Exit(1)
		}
		return
	}

	buf := append([]byte{j1587.MID(*myMID)}, payload...)
	if err := driver.Send(buf); err != nil {
		slog.Error("send failed", "err", err)
		os.Exit(1)
	}
	time.Sleep(50 * time.Millisecond) // let the spine flush to the link before Close.
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
