// Command augplayer plays a local file or an HTTP stream in a GStreamer video
// window, controlled from the terminal.
//
//	augplayer --uri ./clip.mp4 file
//	augplayer --uri https://example.com/live.m3u8 http
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/augmedia/augplayer/internal/config"
	"github.com/augmedia/augplayer/internal/control"
	"github.com/augmedia/augplayer/internal/gst"
	"github.com/augmedia/augplayer/internal/log"
	"github.com/augmedia/augplayer/internal/player"
	"github.com/augmedia/augplayer/internal/source"
	"github.com/augmedia/augplayer/internal/tui"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.NewPlayerViper()

	root := &cobra.Command{
		Use:   "augplayer",
		Short: "Play media in a GStreamer window",
		Long: "Play a local file or an HTTP(S) stream in a GStreamer video window,\n" +
			"with playback controlled from the terminal.",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("uri", "", "path or URL of the media to play")
	flags.Float64("volume", player.DefaultOptions.Volume, "initial volume, from 0 to 1")
	flags.Duration("seek-step", player.DefaultOptions.SeekStep, "distance moved by the seek keys")
	flags.Duration("poll-interval", time.Second, "how often the seek bar is refreshed")
	flags.String("control-addr", "", "serve the remote control API on this address")
	flags.String("log-level", "info", "minimum level of the log file")
	root.MarkPersistentFlagRequired("uri")

	for key, flag := range map[string]string{
		"volume":        "volume",
		"seek_step":     "seek-step",
		"poll_interval": "poll-interval",
		"control_addr":  "control-addr",
		"log_level":     "log-level",
	} {
		v.BindPFlag(key, flags.Lookup(flag))
	}

	for _, origin := range source.Origins {
		root.AddCommand(newPlayCmd(v, origin))
		root.ValidArgs = append(root.ValidArgs, string(origin))
	}

	// Subcommand names match exactly, so other spellings of an origin such as
	// FILE land here.
	root.Args = cobra.ExactArgs(1)
	root.RunE = func(cmd *cobra.Command, args []string) error {
		origin, err := source.ParseOrigin(args[0])
		if err != nil {
			return err
		}
		return play(cmd, v, origin)
	}
	return root
}

func newPlayCmd(v *viper.Viper, origin source.Origin) *cobra.Command {
	return &cobra.Command{
		Use:   string(origin),
		Short: fmt.Sprintf("Play media from a %s location", origin),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return play(cmd, v, origin)
		},
	}
}

func play(cmd *cobra.Command, v *viper.Viper, origin source.Origin) error {
	cfg, err := config.LoadPlayer(v)
	if err != nil {
		return err
	}
	location, err := cmd.Flags().GetString("uri")
	if err != nil {
		return err
	}
	return run(cmd.Context(), cfg, origin, location)
}

func run(ctx context.Context, cfg config.Player, origin source.Origin, location string) error {
	uri, err := source.FormatURI(origin, location)
	if err != nil {
		return err
	}

	logFile, err := openLogFile()
	if err != nil {
		return err
	}
	defer logFile.Close()
	log.Setup(logFile, cfg.LogLevel)

	log.Printf("Playing %s", uri)

	pb, err := gst.NewPlaybin(uri)
	if err != nil {
		return err
	}

	p := player.New(playbinEngine{pb}, player.Options{
		Volume:   cfg.Volume,
		SeekStep: cfg.SeekStep,
	})
	defer p.Close()

	if err := pb.Watch(func(msg gst.Message) { p.HandleMessage(toPlayerMessage(msg)) }); err != nil {
		return err
	}

	loop := gst.NewMainLoop()
	go loop.Run()
	defer loop.Quit()

	if err := p.Play(); err != nil {
		log.Errorf("Failed to start playback: %v", err)
	}

	if cfg.ControlAddr != "" {
		stop := serveControl(cfg.ControlAddr, p)
		defer stop(ctx)
	}

	title := location
	if origin == source.OriginFile {
		title = filepath.Base(location)
	}
	return tui.Run(p, tui.Options{Title: title, PollInterval: cfg.PollInterval})
}

// openLogFile opens augplayer.log in the user cache directory, since the
// terminal belongs to the UI.
func openLogFile() (*os.File, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dir, "augplayer.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func serveControl(addr string, p *player.Player) (stop func(context.Context)) {
	srv := &http.Server{
		Addr:    addr,
		Handler: control.NewHandler(p),
	}

	go func() {
		log.Printf("Serving remote control on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Remote control server failed: %v", err)
		}
	}()

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
