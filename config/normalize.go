package config

import "github.com/bobuhiro11/gohle/service/nfc"

const (
	defaultHeapBase = 0x08000000
	defaultHeapSize = 1 << 20
)

// Default returns a working configuration: one heap region, the default
// handle limit and both NFC ports with a tag on the reader.
func Default() *Config {
	cfg := &Config{}
	Normalize(cfg)

	return cfg
}

// Normalize fills in defaults. It must be called only after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if len(cfg.Memory.Regions) == 0 {
		cfg.Memory.Regions = []RegionConfig{{Name: "heap", Base: defaultHeapBase, Size: defaultHeapSize}}
	}

	for i := range cfg.Memory.Regions {
		if cfg.Memory.Regions[i].Type == "" {
			cfg.Memory.Regions[i].Type = "ram"
		}
	}

	cfg.Kernel.MaxHandles = cfg.Kernel.maxHandles()

	if len(cfg.Services.NFC.Ports) == 0 {
		cfg.Services.NFC.Ports = []string{nfc.ManagerPort, nfc.UserPort}
	}

	if cfg.Services.NFC.TagPresent == nil {
		present := true
		cfg.Services.NFC.TagPresent = &present
	}
}
