// Package mediasession bridges the player to the OS media session via
// MPRIS on the D-Bus session bus. The bridge is thin: it mirrors track
// metadata and playback status outward and delegates transport keys 1:1
// to the player.
package mediasession

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/phonobox/internal/app/event"
	"github.com/osa030/phonobox/internal/app/player"
)

const (
	mprisPath       = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	rootInterface   = "org.mpris.MediaPlayer2"
	playerInterface = "org.mpris.MediaPlayer2.Player"
	unknownArtist   = "Unknown Artist"
	microsPerSecond = 1e6
)

// Controls is the player surface the bridge drives.
type Controls interface {
	Play() error
	Pause()
	TogglePlayPause() error
	Next() error
	Previous() error
	Seek(position float64) error
	GetState() player.State
	Events() *event.Bus
}

// Bridge owns the D-Bus registration for one player instance.
type Bridge struct {
	conn     *dbus.Conn
	props    *prop.Properties
	controls Controls
	busName  string

	trackSub string
	stateSub string
}

// New connects to the session bus and registers the media session.
// Returns an error when the host offers no session bus; callers are
// expected to skip the bridge cleanly in that case.
func New(controls Controls, name string) (*Bridge, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, errors.Wrap(err, "no session bus available")
	}

	b := &Bridge{
		conn:     conn,
		controls: controls,
		busName:  rootInterface + "." + name,
	}

	reply, err := conn.RequestName(b.busName, dbus.NameFlagReplaceExisting)
	if err != nil || reply != dbus.RequestNameReplyPrimaryOwner {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "failed to own bus name %s", b.busName)
	}

	if err := conn.Export(&mprisRoot{}, mprisPath, rootInterface); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "failed to export root interface")
	}
	if err := conn.Export(&mprisPlayer{bridge: b}, mprisPath, playerInterface); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "failed to export player interface")
	}

	props, err := prop.Export(conn, mprisPath, map[string]map[string]*prop.Prop{
		rootInterface: {
			"Identity":     {Value: name, Emit: prop.EmitTrue},
			"CanQuit":      {Value: false, Emit: prop.EmitTrue},
			"CanRaise":     {Value: false, Emit: prop.EmitTrue},
			"HasTrackList": {Value: false, Emit: prop.EmitTrue},
		},
		playerInterface: {
			"PlaybackStatus": {Value: "Stopped", Emit: prop.EmitTrue},
			"Metadata":       {Value: map[string]dbus.Variant{}, Emit: prop.EmitTrue},
			"CanGoNext":      {Value: true, Emit: prop.EmitTrue},
			"CanGoPrevious":  {Value: true, Emit: prop.EmitTrue},
			"CanPlay":        {Value: true, Emit: prop.EmitTrue},
			"CanPause":       {Value: true, Emit: prop.EmitTrue},
			"CanSeek":        {Value: true, Emit: prop.EmitTrue},
			"CanControl":     {Value: true, Emit: prop.EmitTrue},
		},
	})
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "failed to export properties")
	}
	b.props = props

	bus := controls.Events()
	b.trackSub = bus.Subscribe(event.TypeTrackChange, event.HandlerFunc(func(event.Event) {
		b.refreshMetadata()
	}))
	b.stateSub = bus.Subscribe(event.TypeStateChange, event.HandlerFunc(func(event.Event) {
		b.refreshStatus()
	}))

	b.refreshMetadata()
	b.refreshStatus()
	return b, nil
}

// Close releases the bus registration.
func (b *Bridge) Close() error {
	bus := b.controls.Events()
	bus.Unsubscribe(event.TypeTrackChange, b.trackSub)
	bus.Unsubscribe(event.TypeStateChange, b.stateSub)

	if _, err := b.conn.ReleaseName(b.busName); err != nil {
		zlog.Debug().Err(err).Msg("mediasession: failed to release bus name")
	}
	return b.conn.Close()
}

// refreshMetadata pushes the current track's metadata, or clears it
// when no track is current.
func (b *Bridge) refreshMetadata() {
	st := b.controls.GetState()

	md := map[string]dbus.Variant{}
	if t := st.CurrentTrack; t != nil {
		artist := t.Artist
		if artist == "" {
			artist = unknownArtist
		}
		md["mpris:trackid"] = dbus.MakeVariant(dbus.ObjectPath(
			fmt.Sprintf("/org/phonobox/track/%d", st.CurrentQueueIndex+1)))
		md["xesam:title"] = dbus.MakeVariant(t.Title)
		md["xesam:artist"] = dbus.MakeVariant([]string{artist})
		if t.Artwork != "" {
			md["mpris:artUrl"] = dbus.MakeVariant(t.Artwork)
		}
		if st.Duration > 0 {
			md["mpris:length"] = dbus.MakeVariant(int64(st.Duration * microsPerSecond))
		}
	}
	b.props.SetMust(playerInterface, "Metadata", md)
}

func (b *Bridge) refreshStatus() {
	st := b.controls.GetState()
	status := "Stopped"
	switch {
	case st.IsPlaying:
		status = "Playing"
	case st.IsPaused:
		status = "Paused"
	}
	b.props.SetMust(playerInterface, "PlaybackStatus", status)
}

// mprisRoot implements org.mpris.MediaPlayer2.
type mprisRoot struct{}

func (r *mprisRoot) Raise() *dbus.Error { return nil }
func (r *mprisRoot) Quit() *dbus.Error  { return nil }

// mprisPlayer implements org.mpris.MediaPlayer2.Player; each transport
// handler delegates 1:1 to the player.
type mprisPlayer struct {
	bridge *Bridge
}

func (m *mprisPlayer) Play() *dbus.Error {
	_ = m.bridge.controls.Play()
	return nil
}

func (m *mprisPlayer) Pause() *dbus.Error {
	m.bridge.controls.Pause()
	return nil
}

func (m *mprisPlayer) PlayPause() *dbus.Error {
	_ = m.bridge.controls.TogglePlayPause()
	return nil
}

func (m *mprisPlayer) Stop() *dbus.Error {
	m.bridge.controls.Pause()
	return nil
}

func (m *mprisPlayer) Next() *dbus.Error {
	_ = m.bridge.controls.Next()
	return nil
}

func (m *mprisPlayer) Previous() *dbus.Error {
	_ = m.bridge.controls.Previous()
	return nil
}

// Seek moves the position by a relative offset in microseconds.
func (m *mprisPlayer) Seek(offset int64) *dbus.Error {
	st := m.bridge.controls.GetState()
	target := st.CurrentTime + float64(offset)/microsPerSecond
	if target < 0 {
		target = 0
	}
	_ = m.bridge.controls.Seek(target)
	return nil
}

// SetPosition seeks to an absolute position in microseconds. A call
// without a usable position payload is a no-op.
func (m *mprisPlayer) SetPosition(trackID dbus.ObjectPath, position int64) *dbus.Error {
	if trackID == "" || position < 0 {
		return nil
	}
	_ = m.bridge.controls.Seek(float64(position) / microsPerSecond)
	return nil
}
