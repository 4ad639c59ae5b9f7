package periman

import "strings"

// Chip describes the pin table shape and peripheral set of one SoC.
type Chip struct {
	Name string

	// PinCount is the size of the pin table
	PinCount int

	// ValidMask has bit n set when pin n is bonded out and usable
	ValidMask uint64

	// Types lists the bus types compiled in for the chip.
	// BusTypeInit is always accepted.
	Types TypeSet
}

// PinIsValid reports whether pin exists on the chip
func (c Chip) PinIsValid(pin Pin) bool {
	if pin < 0 || int(pin) >= c.PinCount || pin >= 64 {
		return false
	}
	return c.ValidMask&(1<<uint(pin)) != 0
}

// Supports reports whether the chip has the peripheral behind t
func (c Chip) Supports(t BusType) bool {
	return t == BusTypeInit || c.Types.Has(t)
}

func bits(n int) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return 1<<uint(n) - 1
}

func without(mask uint64, pins ...int) uint64 {
	for _, p := range pins {
		mask &^= 1 << uint(p)
	}
	return mask
}

var (
	commonTypes = Types(
		BusTypeGPIO,
		BusTypeUARTRx, BusTypeUARTTx, BusTypeUARTCts, BusTypeUARTRts,
		BusTypeSigmaDelta,
		BusTypeADCOneshot, BusTypeADCCont,
		BusTypeLEDC,
		BusTypeRMTTx, BusTypeRMTRx,
		BusTypeI2CMasterSDA, BusTypeI2CMasterSCL,
		BusTypeI2CSlaveSDA, BusTypeI2CSlaveSCL,
		BusTypeSPIMasterSCK, BusTypeSPIMasterMISO, BusTypeSPIMasterMOSI, BusTypeSPIMasterSS,
		BusTypeEthernetSPI,
	).Union(TypeRange(BusTypeI2SStdMCLK, BusTypeI2SStdDIn))

	dacTypes   = TypeRange(BusTypeDACOneshot, BusTypeDACCosine)
	tdmTypes   = TypeRange(BusTypeI2STdmMCLK, BusTypeI2STdmDIn)
	pdmTxTypes = TypeRange(BusTypeI2SPdmTxCLK, BusTypeI2SPdmTxDOut1)
	pdmRxTypes = TypeRange(BusTypeI2SPdmRxCLK, BusTypeI2SPdmRxDIn3)
	sdmmcTypes = TypeRange(BusTypeSDMMCCLK, BusTypeSDMMCD3)
	usbTypes   = Types(BusTypeUSBDM, BusTypeUSBDP)
	rmiiTypes  = TypeRange(BusTypeEthernetRMII, BusTypeEthernetPWR)
)

// Chip presets
var (
	ESP32 = Chip{
		Name:      "esp32",
		PinCount:  40,
		ValidMask: without(bits(40), 24, 28, 29, 30, 31),
		Types: commonTypes.Union(dacTypes).Union(pdmTxTypes).Union(pdmRxTypes).
			Union(sdmmcTypes).Union(rmiiTypes).With(BusTypeTouch),
	}

	ESP32S2 = Chip{
		Name:      "esp32s2",
		PinCount:  47,
		ValidMask: without(bits(47), 22, 23, 24, 25),
		Types:     commonTypes.Union(dacTypes).Union(usbTypes).With(BusTypeTouch),
	}

	ESP32S3 = Chip{
		Name:      "esp32s3",
		PinCount:  49,
		ValidMask: without(bits(49), 22, 23, 24, 25),
		Types: commonTypes.Union(tdmTypes).Union(pdmTxTypes).Union(pdmRxTypes).
			Union(sdmmcTypes).Union(usbTypes).With(BusTypeTouch),
	}

	ESP32C3 = Chip{
		Name:      "esp32c3",
		PinCount:  22,
		ValidMask: bits(22),
		Types:     commonTypes.Union(tdmTypes).Union(pdmTxTypes).Union(usbTypes),
	}

	ESP32C6 = Chip{
		Name:      "esp32c6",
		PinCount:  31,
		ValidMask: bits(31),
		Types:     commonTypes.Union(tdmTypes).Union(pdmTxTypes).Union(usbTypes),
	}

	ESP32H2 = Chip{
		Name:      "esp32h2",
		PinCount:  28,
		ValidMask: bits(28),
		Types:     commonTypes.Union(tdmTypes).Union(pdmTxTypes).Union(usbTypes),
	}

	// RP2040 maps LEDC onto the PWM slices and RMT onto PIO state machines.
	RP2040 = Chip{
		Name:      "rp2040",
		PinCount:  30,
		ValidMask: bits(30),
		Types: Types(
			BusTypeGPIO,
			BusTypeUARTRx, BusTypeUARTTx, BusTypeUARTCts, BusTypeUARTRts,
			BusTypeADCOneshot,
			BusTypeLEDC,
			BusTypeRMTTx, BusTypeRMTRx,
			BusTypeI2CMasterSDA, BusTypeI2CMasterSCL,
			BusTypeI2CSlaveSDA, BusTypeI2CSlaveSCL,
			BusTypeSPIMasterSCK, BusTypeSPIMasterMISO, BusTypeSPIMasterMOSI, BusTypeSPIMasterSS,
			BusTypeEthernetSPI,
		).Union(usbTypes),
	}

	// BCM2835 is the 40-pin Raspberry Pi header, GPIO0..27, driven from
	// Linux. Controllers are routed by the device tree.
	BCM2835 = Chip{
		Name:      "bcm2835",
		PinCount:  28,
		ValidMask: bits(28),
		Types: Types(
			BusTypeGPIO,
			BusTypeUARTRx, BusTypeUARTTx, BusTypeUARTCts, BusTypeUARTRts,
			BusTypeLEDC,
			BusTypeI2CMasterSDA, BusTypeI2CMasterSCL,
			BusTypeSPIMasterSCK, BusTypeSPIMasterMISO, BusTypeSPIMasterMOSI, BusTypeSPIMasterSS,
		),
	}
)

var chips = []Chip{ESP32, ESP32S2, ESP32S3, ESP32C3, ESP32C6, ESP32H2, RP2040, BCM2835}

// ChipByName looks up a preset by name, ignoring case and dashes
func ChipByName(name string) (Chip, bool) {
	key := strings.ReplaceAll(strings.ToLower(name), "-", "")
	for _, c := range chips {
		if c.Name == key {
			return c, true
		}
	}
	return Chip{}, false
}
