package core

import (
	"net"

	"periph.io/x/conn/v3/physic"

	"gohal/periman"
)

// EthernetPHY selects the PHY or SPI MAC chip
type EthernetPHY uint8

const (
	EthernetLAN8720 EthernetPHY = iota
	EthernetTLK110
	EthernetRTL8201
	EthernetDP83848
	EthernetKSZ8041
	EthernetKSZ8081
	EthernetW5500
	EthernetDM9051
	EthernetKSZ8851
)

// SPI returns true for chips attached over SPI rather than RMII
func (p EthernetPHY) SPI() bool {
	return p >= EthernetW5500
}

// EthernetRMIIConfig describes an internal MAC wired to an RMII PHY.
// The RMII data lines are fixed by the chip.
type EthernetRMIIConfig struct {
	PHY     EthernetPHY
	PHYAddr int8 // -1 probes
	MDC     periman.Pin
	MDIO    periman.Pin
	Power   periman.Pin // NoPin if the PHY is always on
	CLK     periman.Pin // reference clock in or out
}

// EthernetSPIConfig describes a MAC+PHY chip on an SPI bus
type EthernetSPIConfig struct {
	PHY       EthernetPHY
	PHYAddr   int8
	CS        periman.Pin
	IRQ       periman.Pin // NoPin polls
	Reset     periman.Pin
	Frequency physic.Frequency
}

// EthernetHandle is the target's reference to a started interface
type EthernetHandle uint32

// EthernetDriver is implemented by target code to bring up a MAC and PHY.
type EthernetDriver interface {
	// RMIIDataPins lists the fixed RMII data and control pins, empty when
	// the chip has no internal MAC
	RMIIDataPins() []periman.Pin
	StartRMII(cfg EthernetRMIIConfig) (EthernetHandle, error)
	StartSPI(bus SPIBusID, cfg EthernetSPIConfig) (EthernetHandle, error)
	Stop(h EthernetHandle) error
	HardwareAddr(h EthernetHandle) (net.HardwareAddr, error)
	LinkUp(h EthernetHandle) bool
}

var ethDriver EthernetDriver

// SetEthernetDriver is called by target code to register its Ethernet driver
func SetEthernetDriver(d EthernetDriver) {
	ethDriver = d
}

// MustEthernet returns the Ethernet driver or panics if missing
func MustEthernet() EthernetDriver {
	if ethDriver == nil {
		panic("Ethernet driver not configured")
	}
	return ethDriver
}
