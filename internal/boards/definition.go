package boards

// FlashParams are the board-specific knobs handed to the firmware flasher.
type FlashParams struct {
	MCU        string `json:"mcu" yaml:"mcu"`
	Programmer string `json:"programmer" yaml:"programmer"`
	BaudRate   int    `json:"baud_rate" yaml:"baud_rate"`
}

// Definition describes one supported panel board. MaxHardwareValue is the
// ADC ceiling raw input values are measured against; calibration needs it
// for inversion and rollover handling.
type Definition struct {
	ID               string      `json:"id" yaml:"id"`
	Name             string      `json:"name" yaml:"name"`
	MaxHardwareValue int         `json:"max_hardware_value" yaml:"max_hardware_value"`
	Flash            FlashParams `json:"flash" yaml:"flash"`
}
