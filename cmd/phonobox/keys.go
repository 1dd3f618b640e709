package main

import (
	"os"

	zlog "github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/osa030/phonobox/internal/app/player"
	"github.com/osa030/phonobox/internal/app/queue"
)

const (
	seekStepSec    = 10.0
	volumeStep     = 0.1
	escapeByte     = 0x1b
	ctrlC          = 0x03
	bracketByte    = '['
	arrowUpByte    = 'A'
	arrowDownByte  = 'B'
	arrowRightByte = 'C'
	arrowLeftByte  = 'D'
)

// keyboardLoop reads single keystrokes from a raw terminal and maps them
// to transport controls. Returns when 'q' is pressed or a signal arrives.
func keyboardLoop(p *player.Player, sigCh <-chan os.Signal) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		zlog.Debug().Msg("stdin is not a terminal, keyboard shortcuts disabled")
		<-sigCh
		return nil
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		zlog.Warn().Err(err).Msg("failed to enter raw mode, keyboard shortcuts disabled")
		<-sigCh
		return nil
	}
	defer func() { _ = term.Restore(fd, oldState) }()

	printKeyHelp()

	keyCh := make(chan byte)
	go readKeys(keyCh)

	lastVolume := 1.0
	for {
		select {
		case <-sigCh:
			return nil
		case key, ok := <-keyCh:
			if !ok {
				return nil
			}
			if key == 'q' || key == ctrlC {
				return nil
			}
			handleKey(p, key, &lastVolume)
		}
	}
}

// readKeys translates raw stdin bytes into key codes, folding ANSI arrow
// escape sequences into their final byte.
func readKeys(out chan<- byte) {
	defer close(out)

	buf := make([]byte, 1)
	pendingEscape := 0 // 0=none, 1=saw ESC, 2=saw ESC [
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil || n == 0 {
			return
		}
		b := buf[0]

		switch pendingEscape {
		case 1:
			if b == bracketByte {
				pendingEscape = 2
				continue
			}
			pendingEscape = 0
		case 2:
			pendingEscape = 0
			if b >= arrowUpByte && b <= arrowLeftByte {
				out <- b
				continue
			}
			continue
		}

		if b == escapeByte {
			pendingEscape = 1
			continue
		}
		out <- b
	}
}

func handleKey(p *player.Player, key byte, lastVolume *float64) {
	st := p.GetState()
	switch key {
	case ' ':
		if err := p.TogglePlayPause(); err != nil {
			zlog.Debug().Err(err).Msg("toggle failed")
		}
	case 'n':
		_ = p.Next()
	case 'b':
		_ = p.Previous()
	case 's':
		p.ToggleShuffle()
	case 'r':
		_ = p.SetRepeatMode(nextRepeatMode(st.RepeatMode))
	case 'm':
		if st.Volume > 0 {
			*lastVolume = st.Volume
			p.SetVolume(0)
		} else {
			p.SetVolume(*lastVolume)
		}
	case arrowRightByte:
		_ = p.Seek(st.CurrentTime + seekStepSec)
	case arrowLeftByte:
		target := st.CurrentTime - seekStepSec
		if target < 0 {
			target = 0
		}
		_ = p.Seek(target)
	case arrowUpByte:
		p.SetVolume(st.Volume + volumeStep)
	case arrowDownByte:
		p.SetVolume(st.Volume - volumeStep)
	}
}

func nextRepeatMode(m queue.RepeatMode) queue.RepeatMode {
	switch m {
	case queue.RepeatNone:
		return queue.RepeatAll
	case queue.RepeatAll:
		return queue.RepeatOne
	default:
		return queue.RepeatNone
	}
}

func printKeyHelp() {
	zlog.Info().Msg("keys: space=play/pause n=next b=previous s=shuffle r=repeat m=mute arrows=seek/volume q=quit")
}
