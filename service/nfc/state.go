package nfc

// Amiibo is the figure data the service answers with.
type Amiibo struct {
	Settings AmiiboSettings
	TagInfo  TagInfo
	Config   AmiiboConfig
}

// State is the session state guest code can observe, in a form that
// survives a save and restore.
type State struct {
	Status      CommunicationStatus
	TagState    TagState
	Amiibo      Amiibo
	AppID       uint32
	AppDataOpen bool

	// Pending signals on the two events.
	TagInRangeSignaled    bool
	TagOutOfRangeSignaled bool
}

// State captures the current session.
func (m *Module) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := State{
		Status:      m.status,
		TagState:    m.tagState,
		Amiibo:      Amiibo{Settings: m.settings, TagInfo: m.tagInfo, Config: m.config},
		AppID:       m.appID,
		AppDataOpen: m.appDataOpen,
	}

	if !m.closed {
		s.TagInRangeSignaled = m.tagInRangeEvent.Signaled()
		s.TagOutOfRangeSignaled = m.tagOutOfRangeEvent.Signaled()
	}

	return s
}

// Restore replaces the session with s. Handles the guest already holds
// keep referring to the same events.
func (m *Module) Restore(s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	m.status = s.Status
	m.tagState = s.TagState
	m.settings = s.Amiibo.Settings
	m.tagInfo = s.Amiibo.TagInfo
	m.config = s.Amiibo.Config
	m.appID = s.AppID
	m.appDataOpen = s.AppDataOpen

	restoreSignal(m.tagInRangeEvent.Signaled(), s.TagInRangeSignaled, m.tagInRangeEvent)
	restoreSignal(m.tagOutOfRangeEvent.Signaled(), s.TagOutOfRangeSignaled, m.tagOutOfRangeEvent)

	return nil
}

type signaler interface {
	Signal()
	Clear()
}

func restoreSignal(have, want bool, e signaler) {
	switch {
	case want && !have:
		e.Signal()
	case !want && have:
		e.Clear()
	}
}

func (m *Module) TagState() TagState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.tagState
}

func (m *Module) Status() CommunicationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.status
}

// AppData returns the application id of the last OpenAppData and whether
// one was opened.
func (m *Module) AppData() (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.appID, m.appDataOpen
}

// Amiibo returns the cached figure data.
func (m *Module) Amiibo() Amiibo {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Amiibo{Settings: m.settings, TagInfo: m.tagInfo, Config: m.config}
}
