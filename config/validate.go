package config

import (
	"encoding/hex"
	"fmt"
	"time"
	"unicode/utf16"

	"github.com/bobuhiro11/gohle/kernel"
	"github.com/bobuhiro11/gohle/service/nfc"
)

const dateLayout = "2006-01-02"

// Validate checks configuration correctness. It does not mutate cfg.
func Validate(cfg *Config) error {
	if err := validateRegions(cfg.Memory.Regions); err != nil {
		return err
	}

	if h := cfg.Kernel.MaxHandles; h < 0 || h > 1<<15 {
		return fmt.Errorf("kernel: max_handles %d out of range (0-%d)", h, 1<<15)
	}

	seen := make(map[string]bool)

	for _, p := range cfg.Services.NFC.Ports {
		if p != nfc.UserPort && p != nfc.ManagerPort {
			return fmt.Errorf("services.nfc: unknown port %q", p)
		}

		if seen[p] {
			return fmt.Errorf("services.nfc: port %q listed twice", p)
		}

		seen[p] = true
	}

	if a := cfg.Services.NFC.Amiibo; a != nil {
		if err := validateAmiibo(a); err != nil {
			return fmt.Errorf("services.nfc.amiibo: %w", err)
		}
	}

	return nil
}

func validateRegions(regions []RegionConfig) error {
	names := make(map[string]bool)

	for i, r := range regions {
		if r.Name == "" {
			return fmt.Errorf("memory.regions[%d]: name is required", i)
		}

		if names[r.Name] {
			return fmt.Errorf("memory region %q defined twice", r.Name)
		}

		names[r.Name] = true

		if r.Size == 0 {
			return fmt.Errorf("memory region %q: size is required", r.Name)
		}

		if uint64(r.Base)+uint64(r.Size) > 1<<32 {
			return fmt.Errorf("memory region %q: [%#x,+%#x) leaves the 32-bit address space", r.Name, r.Base, r.Size)
		}

		switch r.Type {
		case "", "ram", "rom":
		default:
			return fmt.Errorf("memory region %q: unknown type %q", r.Name, r.Type)
		}

		for _, o := range regions[:i] {
			if uint64(r.Base) < uint64(o.Base)+uint64(o.Size) && uint64(o.Base) < uint64(r.Base)+uint64(r.Size) {
				return fmt.Errorf("memory regions %q and %q overlap", o.Name, r.Name)
			}
		}
	}

	return nil
}

func validateAmiibo(a *AmiiboConfig) error {
	if n := len(utf16.Encode([]rune(a.Nickname))); n > 11 {
		return fmt.Errorf("nickname %q is %d UTF-16 units, at most 11 fit", a.Nickname, n)
	}

	for _, d := range []struct{ name, value string }{
		{"setup_date", a.SetupDate},
		{"last_write_date", a.LastWriteDate},
	} {
		if d.value == "" {
			continue
		}

		if _, err := time.Parse(dateLayout, d.value); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}

	if len(a.CharacterID) > 3 {
		return fmt.Errorf("character_id has %d bytes, at most 3", len(a.CharacterID))
	}

	if a.UID != "" {
		uid, err := hex.DecodeString(a.UID)
		if err != nil {
			return fmt.Errorf("uid: %w", err)
		}

		if len(uid) > 10 {
			return fmt.Errorf("uid has %d bytes, at most 10", len(uid))
		}
	}

	return nil
}

// maxHandles is the handle table size the kernel is built with.
func (k KernelConfig) maxHandles() int {
	if k.MaxHandles == 0 {
		return kernel.DefaultMaxHandles
	}

	return k.MaxHandles
}
