package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"soundscape/config"
	"soundscape/core/audio"
	"soundscape/core/catalog"
	"soundscape/core/compose"
	"soundscape/core/engine"
	"soundscape/core/render"
	"soundscape/logger"
)

var (
	previewMood   string
	previewSeed   string
	previewMaster float64
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Play a mix live through the local audio device",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		logger.InitLogger(logger.Config{Level: logger.LogLevel(cfg.LogLevel), OutputPath: cfg.LogPath})

		mood := compose.Mood(previewMood)
		if !mood.Valid() {
			log.Fatalf("unknown mood %q (known: %v)", previewMood, compose.Moods())
		}

		cat := catalog.New(catalog.DefaultLibrary(), catalog.DirProber{Root: cfg.AssetDir})
		ctx := context.Background()
		cat.Refresh(ctx)

		mix := compose.New(cat).Compose(mood, 30, previewSeed)
		fmt.Println(compose.RecipeText(mix))

		decoder := audio.NewFFmpegDecoder(cfg.FFmpegPath)
		loader := audio.NewCache(audio.DirLoader{
			Root: cfg.AssetDir, Decoder: decoder, SampleRate: render.DefaultSampleRate,
		})

		eng := engine.New(loader, engine.NewOtoOutput(render.DefaultSampleRate), render.DefaultSampleRate)
		if err := eng.Activate(); err != nil {
			log.Fatalf("failed to open audio device: %v", err)
		}
		defer eng.Close()

		if err := eng.SyncMix(ctx, mix.Seed, previewMaster, mix.Tracks); err != nil {
			log.Fatalf("failed to start playback: %v", err)
		}

		fmt.Println("playing, Ctrl+C to stop")
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop

		eng.StopAll()
	},
}

func init() {
	rootCmd.AddCommand(previewCmd)
	previewCmd.Flags().StringVarP(&previewMood, "mood", "m", "Nature", "mood preset (Sleep, Focus, Cozy, Nature)")
	previewCmd.Flags().StringVarP(&previewSeed, "seed", "s", "", "mix seed (empty for default)")
	previewCmd.Flags().Float64Var(&previewMaster, "master", 0.8, "master volume 0..1")
}
