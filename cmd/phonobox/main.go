// Package main provides the phonobox CLI entry point.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dhowden/tag"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/phonobox/internal/app/event"
	"github.com/osa030/phonobox/internal/app/mediasession"
	"github.com/osa030/phonobox/internal/app/player"
	"github.com/osa030/phonobox/internal/domain/track"
	"github.com/osa030/phonobox/internal/infra/beepengine"
	"github.com/osa030/phonobox/internal/infra/config"
	"github.com/osa030/phonobox/internal/infra/logger"
	"github.com/osa030/phonobox/internal/infra/store"
)

var (
	app        = kingpin.New("phonobox", "phonobox audio player")
	configPath = app.Flag("config", "Path to config file").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stderr)").String()
	stateDir   = app.Flag("state-dir", "Directory for persisted state").String()
	paths      = app.Arg("path", "Audio files or directories to enqueue").Strings()
)

var audioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".ogg":  true,
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{Output: "stderr", Level: cfg.Logger.Level}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("phonobox error: %v", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if *configPath != "" {
		return config.Load(*configPath)
	}
	return config.Default()
}

// run executes the main player logic. Using a separate function ensures
// defer statements run even when returning with an error.
func run(cfg *config.Config) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}

	engine := beepengine.New()
	p, err := player.New(engine, st, cfg.PlayerOptions())
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			zlog.Warn().Err(err).Msg("failed to close player")
		}
	}()

	printEvents(p)

	if cfg.Player.EnableMediaSession {
		bridge, err := mediasession.New(p, "phonobox")
		if err != nil {
			zlog.Warn().Err(err).Msg("media session unavailable, continuing without it")
		} else {
			defer func() { _ = bridge.Close() }()
		}
	}

	tracks, err := collectTracks(*paths)
	if err != nil {
		return err
	}
	if len(tracks) > 0 {
		first := p.GetState().QueueLength
		if err := p.AddToQueue(tracks...); err != nil {
			return err
		}
		if err := p.PlayIndex(first); err != nil {
			zlog.Warn().Err(err).Msg("failed to start playback")
		}
	} else if state := p.GetState(); state.CurrentTrack != nil {
		zlog.Info().Msgf("Restored session: %s (paused)", state.CurrentTrack.Title)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if cfg.Player.EnableKeyboardShortcuts {
		return keyboardLoop(p, sigCh)
	}
	<-sigCh
	return nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	dir := cfg.Storage.Dir
	if *stateDir != "" {
		dir = *stateDir
	}
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			zlog.Warn().Err(err).Msg("no user config dir, state will not survive restarts")
			return store.NewMemory(), nil
		}
		dir = filepath.Join(base, "phonobox")
	}
	return store.NewFile(dir)
}

// printEvents logs the user-visible transitions.
func printEvents(p *player.Player) {
	bus := p.Events()
	bus.Subscribe(event.TypeTrackChange, event.HandlerFunc(func(e event.Event) {
		if e.Track == nil {
			return
		}
		artist := e.Track.Artist
		if artist == "" {
			artist = "Unknown Artist"
		}
		zlog.Info().Msgf("Now playing: %s - %s", e.Track.Title, artist)
	}))
	bus.Subscribe(event.TypeError, event.HandlerFunc(func(e event.Event) {
		zlog.Warn().Msgf("Player error: %v", e.Err)
	}))
}

// collectTracks builds track descriptors from files and directories,
// reading embedded metadata where available.
func collectTracks(args []string) ([]track.Track, error) {
	var tracks []track.Track
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			tracks = append(tracks, buildTrack(arg))
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && audioExtensions[strings.ToLower(filepath.Ext(path))] {
				tracks = append(tracks, buildTrack(path))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return tracks, nil
}

// buildTrack reads tags from the file, falling back to the file name.
func buildTrack(path string) track.Track {
	t := track.Track{
		ID:    uuid.New().String(),
		Src:   path,
		Title: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
	}

	f, err := os.Open(path)
	if err != nil {
		return t
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		zlog.Debug().Err(err).Msgf("no readable tags in %s", path)
		return t
	}
	if title := meta.Title(); title != "" {
		t.Title = title
	}
	t.Artist = meta.Artist()
	return t
}
