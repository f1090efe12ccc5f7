package config

import (
	"encoding/hex"
	"time"

	"github.com/bobuhiro11/gohle/service/nfc"
)

// Amiibo converts the profile into the figure data the NFC service serves.
// A nil profile yields an empty figure.
func (a *AmiiboConfig) Amiibo() (nfc.Amiibo, error) {
	out := nfc.Amiibo{Config: nfc.NewAmiiboConfig()}
	if a == nil {
		return out, nil
	}

	if err := validateAmiibo(a); err != nil {
		return nfc.Amiibo{}, err
	}

	out.Settings.SetNickname(a.Nickname)
	out.Settings.Country = a.Country
	out.Settings.Flags = a.Flags
	out.Settings.SetupDate = date(a.SetupDate)

	out.Config.LastWriteDate = date(a.LastWriteDate)
	out.Config.WriteCounter = a.WriteCounter
	copy(out.Config.CharacterID[:], a.CharacterID)
	out.Config.SeriesID = a.SeriesID
	out.Config.AmiiboID = a.AmiiboID
	out.Config.Type = a.Type
	out.Config.Version = a.Version

	uid, _ := hex.DecodeString(a.UID)
	copy(out.TagInfo.TagID.ID[:], uid)
	out.TagInfo.TagID.IDSize = uint8(len(uid))
	out.TagInfo.Protocol = a.Protocol
	out.TagInfo.Type = a.TagType

	return out, nil
}

// date parses a validated date; the empty string is the zero date.
func date(s string) nfc.Date {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nfc.Date{}
	}

	return nfc.Date{Year: uint16(t.Year()), Month: uint8(t.Month()), Day: uint8(t.Day())}
}
