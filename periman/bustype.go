package periman

// BusType identifies which peripheral class owns a pin.
// BusTypeInit marks an unowned pin.
type BusType uint8

const (
	BusTypeInit BusType = iota
	BusTypeGPIO
	BusTypeUARTRx
	BusTypeUARTTx
	BusTypeUARTCts
	BusTypeUARTRts
	BusTypeSigmaDelta
	BusTypeADCOneshot
	BusTypeADCCont
	BusTypeDACOneshot
	BusTypeDACCont
	BusTypeDACCosine
	BusTypeLEDC
	BusTypeRMTTx
	BusTypeRMTRx
	BusTypeI2SStdMCLK
	BusTypeI2SStdBCLK
	BusTypeI2SStdWS
	BusTypeI2SStdDOut
	BusTypeI2SStdDIn
	BusTypeI2STdmMCLK
	BusTypeI2STdmBCLK
	BusTypeI2STdmWS
	BusTypeI2STdmDOut
	BusTypeI2STdmDIn
	BusTypeI2SPdmTxCLK
	BusTypeI2SPdmTxDOut0
	BusTypeI2SPdmTxDOut1
	BusTypeI2SPdmRxCLK
	BusTypeI2SPdmRxDIn0
	BusTypeI2SPdmRxDIn1
	BusTypeI2SPdmRxDIn2
	BusTypeI2SPdmRxDIn3
	BusTypeI2CMasterSDA
	BusTypeI2CMasterSCL
	BusTypeI2CSlaveSDA
	BusTypeI2CSlaveSCL
	BusTypeSPIMasterSCK
	BusTypeSPIMasterMISO
	BusTypeSPIMasterMOSI
	BusTypeSPIMasterSS
	BusTypeSDMMCCLK
	BusTypeSDMMCCMD
	BusTypeSDMMCD0
	BusTypeSDMMCD1
	BusTypeSDMMCD2
	BusTypeSDMMCD3
	BusTypeTouch
	BusTypeUSBDM
	BusTypeUSBDP
	BusTypeEthernetSPI
	BusTypeEthernetRMII
	BusTypeEthernetCLK
	BusTypeEthernetMCD
	BusTypeEthernetMDIO
	BusTypeEthernetPWR

	// BusTypeMax is one past the last valid tag. GetPinBusType returns it
	// for invalid pins.
	BusTypeMax
)

var busTypeNames = [BusTypeMax]string{
	BusTypeInit:          "INIT",
	BusTypeGPIO:          "GPIO",
	BusTypeUARTRx:        "UART_RX",
	BusTypeUARTTx:        "UART_TX",
	BusTypeUARTCts:       "UART_CTS",
	BusTypeUARTRts:       "UART_RTS",
	BusTypeSigmaDelta:    "SIGMADELTA",
	BusTypeADCOneshot:    "ADC_ONESHOT",
	BusTypeADCCont:       "ADC_CONT",
	BusTypeDACOneshot:    "DAC_ONESHOT",
	BusTypeDACCont:       "DAC_CONT",
	BusTypeDACCosine:     "DAC_COSINE",
	BusTypeLEDC:          "LEDC",
	BusTypeRMTTx:         "RMT_TX",
	BusTypeRMTRx:         "RMT_RX",
	BusTypeI2SStdMCLK:    "I2S_STD_MCLK",
	BusTypeI2SStdBCLK:    "I2S_STD_BCLK",
	BusTypeI2SStdWS:      "I2S_STD_WS",
	BusTypeI2SStdDOut:    "I2S_STD_DOUT",
	BusTypeI2SStdDIn:     "I2S_STD_DIN",
	BusTypeI2STdmMCLK:    "I2S_TDM_MCLK",
	BusTypeI2STdmBCLK:    "I2S_TDM_BCLK",
	BusTypeI2STdmWS:      "I2S_TDM_WS",
	BusTypeI2STdmDOut:    "I2S_TDM_DOUT",
	BusTypeI2STdmDIn:     "I2S_TDM_DIN",
	BusTypeI2SPdmTxCLK:   "I2S_PDM_TX_CLK",
	BusTypeI2SPdmTxDOut0: "I2S_PDM_TX_DOUT0",
	BusTypeI2SPdmTxDOut1: "I2S_PDM_TX_DOUT1",
	BusTypeI2SPdmRxCLK:   "I2S_PDM_RX_CLK",
	BusTypeI2SPdmRxDIn0:  "I2S_PDM_RX_DIN0",
	BusTypeI2SPdmRxDIn1:  "I2S_PDM_RX_DIN1",
	BusTypeI2SPdmRxDIn2:  "I2S_PDM_RX_DIN2",
	BusTypeI2SPdmRxDIn3:  "I2S_PDM_RX_DIN3",
	BusTypeI2CMasterSDA:  "I2C_MASTER_SDA",
	BusTypeI2CMasterSCL:  "I2C_MASTER_SCL",
	BusTypeI2CSlaveSDA:   "I2C_SLAVE_SDA",
	BusTypeI2CSlaveSCL:   "I2C_SLAVE_SCL",
	BusTypeSPIMasterSCK:  "SPI_MASTER_SCK",
	BusTypeSPIMasterMISO: "SPI_MASTER_MISO",
	BusTypeSPIMasterMOSI: "SPI_MASTER_MOSI",
	BusTypeSPIMasterSS:   "SPI_MASTER_SS",
	BusTypeSDMMCCLK:      "SDMMC_CLK",
	BusTypeSDMMCCMD:      "SDMMC_CMD",
	BusTypeSDMMCD0:       "SDMMC_D0",
	BusTypeSDMMCD1:       "SDMMC_D1",
	BusTypeSDMMCD2:       "SDMMC_D2",
	BusTypeSDMMCD3:       "SDMMC_D3",
	BusTypeTouch:         "TOUCH",
	BusTypeUSBDM:         "USB_DM",
	BusTypeUSBDP:         "USB_DP",
	BusTypeEthernetSPI:   "ETHERNET_SPI",
	BusTypeEthernetRMII:  "ETHERNET_RMII",
	BusTypeEthernetCLK:   "ETHERNET_CLK",
	BusTypeEthernetMCD:   "ETHERNET_MCD",
	BusTypeEthernetMDIO:  "ETHERNET_MDIO",
	BusTypeEthernetPWR:   "ETHERNET_PWR",
}

// String returns the diagnostic name of t, or "UNKNOWN" for an
// out-of-range tag.
func (t BusType) String() string {
	if t >= BusTypeMax {
		return "UNKNOWN"
	}
	return busTypeNames[t]
}

// ParseBusType is the inverse of String
func ParseBusType(name string) (BusType, bool) {
	for i, n := range busTypeNames {
		if n == name {
			return BusType(i), true
		}
	}
	return BusTypeMax, false
}

// BusTypeNames returns the names of all tags indexed by tag value
func BusTypeNames() []string {
	names := make([]string, BusTypeMax)
	copy(names, busTypeNames[:])
	return names
}

// TypeSet is a set of bus types
type TypeSet uint64

// Types builds a set from a list of tags
func Types(types ...BusType) TypeSet {
	var s TypeSet
	for _, t := range types {
		s = s.With(t)
	}
	return s
}

// TypeRange builds a set from the inclusive range [first, last]
func TypeRange(first, last BusType) TypeSet {
	var s TypeSet
	for t := first; t <= last; t++ {
		s = s.With(t)
	}
	return s
}

// With returns s plus t
func (s TypeSet) With(t BusType) TypeSet {
	if t >= BusTypeMax {
		return s
	}
	return s | 1<<t
}

// Union returns s plus every tag in o
func (s TypeSet) Union(o TypeSet) TypeSet { return s | o }

// Has reports whether t is in s
func (s TypeSet) Has(t BusType) bool {
	return t < BusTypeMax && s&(1<<t) != 0
}
