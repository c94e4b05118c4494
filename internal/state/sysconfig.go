package state

import "fmt"

// SystemConfig is a typed view of a getSystemConfig result.
// Identifying fields are passed through untouched; deciding capabilities
// from moduleName or typeId is left to the caller.
type SystemConfig struct {
	MAC        string `mapstructure:"mac"`
	ModuleName string `mapstructure:"moduleName"`
	FwVersion  string `mapstructure:"fwVersion"`
	HomeID     *int   `mapstructure:"homeId"`
	RoomID     *int   `mapstructure:"roomId"`
	GroupID    *int   `mapstructure:"groupId"`
	TypeID     *int   `mapstructure:"typeId"`
	DrvConf    []int  `mapstructure:"drvConf"`
	Ping       *int   `mapstructure:"ping"`

	Extra map[string]any `mapstructure:",remain"`
}

// ParseSystemConfig decodes a getSystemConfig result
func ParseSystemConfig(m map[string]any) (*SystemConfig, error) {
	c := &SystemConfig{}
	if err := decode(m, c); err != nil {
		return nil, fmt.Errorf("failed to decode system config: %w", err)
	}
	return c, nil
}

// WhiteChannels returns the warm/cold white layout from drvConf (firmware before 1.22)
func (c *SystemConfig) WhiteChannels() (ratio int, channels int, ok bool) {
	if len(c.DrvConf) != 2 {
		return 0, 0, false
	}
	return c.DrvConf[0], c.DrvConf[1], true
}

// String returns a one-line summary
func (c *SystemConfig) String() string {
	name := c.ModuleName
	if name == "" {
		name = "unknown module"
	}
	if c.FwVersion == "" {
		return fmt.Sprintf("%s [%s]", name, c.MAC)
	}
	return fmt.Sprintf("%s fw %s [%s]", name, c.FwVersion, c.MAC)
}
