package nfc

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"
)

// OperationType is passed to Initialize and Shutdown.
type OperationType uint8

const (
	OperationUnknown OperationType = 1
	OperationNFCTag  OperationType = 2
	OperationRawNFC  OperationType = 3
)

// TagState is the tag lifecycle as seen by the guest.
type TagState uint8

const (
	TagNotInitialized TagState = 0
	TagNotScanning    TagState = 1
	TagScanning       TagState = 2
	TagInRange        TagState = 3
	TagOutOfRange     TagState = 4
	TagDataLoaded     TagState = 5
)

func (s TagState) String() string {
	switch s {
	case TagNotInitialized:
		return "NotInitialized"
	case TagNotScanning:
		return "NotScanning"
	case TagScanning:
		return "Scanning"
	case TagInRange:
		return "TagInRange"
	case TagOutOfRange:
		return "TagOutOfRange"
	case TagDataLoaded:
		return "TagDataLoaded"
	}

	return fmt.Sprintf("TagState(%d)", uint8(s))
}

// CommunicationStatus is reported by CommunicationGetStatus.
type CommunicationStatus uint8

const (
	CommunicationAttemptInitialize CommunicationStatus = 1
	CommunicationInitialized       CommunicationStatus = 2
)

func (s CommunicationStatus) String() string {
	switch s {
	case CommunicationAttemptInitialize:
		return "AttemptInitialize"
	case CommunicationInitialized:
		return "Initialized"
	}

	return fmt.Sprintf("CommunicationStatus(%d)", uint8(s))
}

// Byte layouts below are read directly by guest code. Every structure is
// encoded field by field at fixed offsets; the trailing padding is always
// zero.

const (
	// DateSize is the size of Date.
	DateSize = 4

	nicknameChars = 11
	miiSize       = 0x60

	settingsMiiOff      = 0x00
	settingsNicknameOff = settingsMiiOff + miiSize
	settingsFlagsOff    = settingsNicknameOff + 2*nicknameChars
	settingsCountryOff  = settingsFlagsOff + 1
	settingsDateOff     = settingsCountryOff + 1
	settingsPaddingOff  = settingsDateOff + DateSize

	// AmiiboSettingsSize is the size of AmiiboSettings.
	AmiiboSettingsSize = settingsPaddingOff + 0x2C

	tagIDSize = 10

	writeIDOff      = 0x00
	writeIDSizeOff  = writeIDOff + tagIDSize
	writePaddingOff = writeIDSizeOff + 1

	// AppDataWriteStructSize is the size of AppDataWriteStruct.
	AppDataWriteStructSize = writePaddingOff + 0x15

	tagInfoIDOff       = 0x00
	tagInfoProtocolOff = tagInfoIDOff + AppDataWriteStructSize
	tagInfoTypeOff     = tagInfoProtocolOff + 1
	tagInfoPaddingOff  = tagInfoTypeOff + 1

	// TagInfoSize is the size of TagInfo.
	TagInfoSize = tagInfoPaddingOff + 0xA

	configDateOff        = 0x00
	configWriteCountOff  = configDateOff + DateSize
	configCharacterIDOff = configWriteCountOff + 2
	configSeriesIDOff    = configCharacterIDOff + 3
	configAmiiboIDOff    = configSeriesIDOff + 1
	configTypeOff        = configAmiiboIDOff + 2
	configVersionOff     = configTypeOff + 1
	configAppDataSizeOff = configVersionOff + 1
	configPaddingOff     = configAppDataSizeOff + 2

	// AmiiboConfigSize is the size of AmiiboConfig.
	AmiiboConfigSize = configPaddingOff + 0x30

	// AppDataSize is the size of the application data area on a tag.
	AppDataSize = 0xD8
)

// Static size checks: each line fails to compile if the layout drifts.
var (
	_ [0]struct{} = [DateSize - 0x4]struct{}{}
	_ [0]struct{} = [AmiiboSettingsSize - 0xA8]struct{}{}
	_ [0]struct{} = [AppDataWriteStructSize - 0x20]struct{}{}
	_ [0]struct{} = [TagInfoSize - 0x2C]struct{}{}
	_ [0]struct{} = [AmiiboConfigSize - 0x40]struct{}{}
)

// Date is a calendar date as stored on a tag.
type Date struct {
	Year  uint16
	Month uint8
	Day   uint8
}

func (d Date) put(b []byte) {
	binary.LittleEndian.PutUint16(b[0:], d.Year)
	b[2] = d.Month
	b[3] = d.Day
}

func getDate(b []byte) Date {
	return Date{Year: binary.LittleEndian.Uint16(b[0:]), Month: b[2], Day: b[3]}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// AmiiboSettings is the owner-facing part of an amiibo: its Mii, nickname
// and registration data.
type AmiiboSettings struct {
	Mii       [miiSize]byte
	Nickname  [nicknameChars]uint16
	Flags     uint8
	Country   uint8
	SetupDate Date
}

// SetNickname stores s as UTF-16, truncated to the 11 available units.
func (s *AmiiboSettings) SetNickname(name string) {
	s.Nickname = [nicknameChars]uint16{}
	copy(s.Nickname[:], utf16.Encode([]rune(name)))
}

// NicknameString decodes the nickname up to the first NUL.
func (s *AmiiboSettings) NicknameString() string {
	n := 0
	for n < nicknameChars && s.Nickname[n] != 0 {
		n++
	}

	return string(utf16.Decode(s.Nickname[:n]))
}

func (s AmiiboSettings) MarshalBinary() ([]byte, error) {
	b := make([]byte, AmiiboSettingsSize)
	copy(b[settingsMiiOff:], s.Mii[:])

	for i, c := range s.Nickname {
		binary.LittleEndian.PutUint16(b[settingsNicknameOff+2*i:], c)
	}

	b[settingsFlagsOff] = s.Flags
	b[settingsCountryOff] = s.Country
	s.SetupDate.put(b[settingsDateOff:])

	return b, nil
}

func (s *AmiiboSettings) UnmarshalBinary(b []byte) error {
	if len(b) != AmiiboSettingsSize {
		return fmt.Errorf("amiibo settings: %d bytes, want %d", len(b), AmiiboSettingsSize)
	}

	copy(s.Mii[:], b[settingsMiiOff:settingsNicknameOff])

	for i := range s.Nickname {
		s.Nickname[i] = binary.LittleEndian.Uint16(b[settingsNicknameOff+2*i:])
	}

	s.Flags = b[settingsFlagsOff]
	s.Country = b[settingsCountryOff]
	s.SetupDate = getDate(b[settingsDateOff:])

	return nil
}

// AppDataWriteStruct identifies the tag an application data write is meant
// for.
type AppDataWriteStruct struct {
	ID     [tagIDSize]byte
	IDSize uint8
}

// UID returns the significant bytes of the tag id.
func (w AppDataWriteStruct) UID() []byte {
	n := int(w.IDSize)
	if n > tagIDSize {
		n = tagIDSize
	}

	return w.ID[:n]
}

func (w AppDataWriteStruct) MarshalBinary() ([]byte, error) {
	b := make([]byte, AppDataWriteStructSize)
	w.put(b)

	return b, nil
}

func (w AppDataWriteStruct) put(b []byte) {
	copy(b[writeIDOff:], w.ID[:])
	b[writeIDSizeOff] = w.IDSize
}

func (w *AppDataWriteStruct) UnmarshalBinary(b []byte) error {
	if len(b) != AppDataWriteStructSize {
		return fmt.Errorf("app data write struct: %d bytes, want %d", len(b), AppDataWriteStructSize)
	}

	copy(w.ID[:], b[writeIDOff:writeIDSizeOff])
	w.IDSize = b[writeIDSizeOff]

	return nil
}

// TagInfo describes the tag currently in range.
type TagInfo struct {
	TagID    AppDataWriteStruct
	Protocol uint8
	Type     uint8
}

func (t TagInfo) MarshalBinary() ([]byte, error) {
	b := make([]byte, TagInfoSize)
	t.TagID.put(b[tagInfoIDOff:])
	b[tagInfoProtocolOff] = t.Protocol
	b[tagInfoTypeOff] = t.Type

	return b, nil
}

func (t *TagInfo) UnmarshalBinary(b []byte) error {
	if len(b) != TagInfoSize {
		return fmt.Errorf("tag info: %d bytes, want %d", len(b), TagInfoSize)
	}

	if err := t.TagID.UnmarshalBinary(b[tagInfoIDOff:tagInfoProtocolOff]); err != nil {
		return err
	}

	t.Protocol = b[tagInfoProtocolOff]
	t.Type = b[tagInfoTypeOff]

	return nil
}

// AmiiboConfig is the figure identification block of an amiibo.
type AmiiboConfig struct {
	LastWriteDate Date
	WriteCounter  uint16
	CharacterID   [3]byte
	SeriesID      uint8
	AmiiboID      uint16
	Type          uint8
	Version       uint8
	// AppDataSize is always AppDataSize on real tags; NewAmiiboConfig sets
	// it.
	AppDataSize uint16
}

// NewAmiiboConfig returns a config with the fixed application data size.
func NewAmiiboConfig() AmiiboConfig {
	return AmiiboConfig{AppDataSize: AppDataSize}
}

func (c AmiiboConfig) MarshalBinary() ([]byte, error) {
	b := make([]byte, AmiiboConfigSize)
	c.LastWriteDate.put(b[configDateOff:])
	binary.LittleEndian.PutUint16(b[configWriteCountOff:], c.WriteCounter)
	copy(b[configCharacterIDOff:], c.CharacterID[:])
	b[configSeriesIDOff] = c.SeriesID
	binary.LittleEndian.PutUint16(b[configAmiiboIDOff:], c.AmiiboID)
	b[configTypeOff] = c.Type
	b[configVersionOff] = c.Version
	binary.LittleEndian.PutUint16(b[configAppDataSizeOff:], c.AppDataSize)

	return b, nil
}

func (c *AmiiboConfig) UnmarshalBinary(b []byte) error {
	if len(b) != AmiiboConfigSize {
		return fmt.Errorf("amiibo config: %d bytes, want %d", len(b), AmiiboConfigSize)
	}

	c.LastWriteDate = getDate(b[configDateOff:])
	c.WriteCounter = binary.LittleEndian.Uint16(b[configWriteCountOff:])
	copy(c.CharacterID[:], b[configCharacterIDOff:configSeriesIDOff])
	c.SeriesID = b[configSeriesIDOff]
	c.AmiiboID = binary.LittleEndian.Uint16(b[configAmiiboIDOff:])
	c.Type = b[configTypeOff]
	c.Version = b[configVersionOff]
	c.AppDataSize = binary.LittleEndian.Uint16(b[configAppDataSizeOff:])

	return nil
}
