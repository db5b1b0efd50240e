package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"soundscape/config"
	"soundscape/core/audio"
	"soundscape/core/catalog"
	"soundscape/core/compose"
	"soundscape/core/render"
	"soundscape/logger"
)

var (
	renderMood     string
	renderDuration int
	renderSeed     string
	renderOut      string
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a mix to a local WAV file",
	Long: `Composes a mix from (mood, duration, seed) and renders it offline to a
WAV file, with the license certificate written alongside. Uses the local
asset directory; no database or object storage needed.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		logger.InitLogger(logger.Config{Level: logger.LogLevel(cfg.LogLevel), OutputPath: cfg.LogPath})

		mood := compose.Mood(renderMood)
		if !mood.Valid() {
			log.Fatalf("unknown mood %q (known: %v)", renderMood, compose.Moods())
		}

		cat := catalog.New(catalog.DefaultLibrary(), catalog.DirProber{Root: cfg.AssetDir})
		ctx := context.Background()
		cat.Refresh(ctx)

		mix := compose.New(cat).Compose(mood, renderDuration, renderSeed)
		fmt.Println(compose.RecipeText(mix))

		decoder := audio.NewFFmpegDecoder(cfg.FFmpegPath)
		loader := audio.DirLoader{Root: cfg.AssetDir, Decoder: decoder, SampleRate: render.DefaultSampleRate}
		renderer := render.New(audio.NewCache(loader))

		cert := render.Certificate{
			JobID:    uuid.NewString(),
			IssuedAt: time.Now().UTC(),
			TermsURL: cfg.SiteURL + "/terms",
			Mix:      mix,
		}
		tags := audio.InfoTags{
			Title:        fmt.Sprintf("Soundscape %s %dm", mix.Mood, mix.DurationMinutes),
			Product:      "Soundscape",
			Software:     "Soundscape renderer",
			Comment:      cert.CommentTag(),
			CreationDate: cert.IssuedAt.Format("2006-01-02"),
		}

		start := time.Now()
		data, err := renderer.RenderWAV(ctx, mix, tags, func(done, total int) {
			fmt.Printf("\rchunk %d/%d", done, total)
		})
		fmt.Println()
		if err != nil {
			log.Fatalf("render failed: %v", err)
		}

		if err := os.WriteFile(renderOut, data, 0o644); err != nil {
			log.Fatalf("failed to write %s: %v", renderOut, err)
		}
		certPath := strings.TrimSuffix(renderOut, filepath.Ext(renderOut)) + "_license.txt"
		if err := os.WriteFile(certPath, []byte(cert.Text()), 0o644); err != nil {
			log.Fatalf("failed to write %s: %v", certPath, err)
		}

		fmt.Printf("wrote %s (%d bytes) and %s in %s\n",
			renderOut, len(data), certPath, time.Since(start).Round(time.Millisecond))
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.Flags().StringVarP(&renderMood, "mood", "m", "Nature", "mood preset (Sleep, Focus, Cozy, Nature)")
	renderCmd.Flags().IntVarP(&renderDuration, "duration", "d", 5, "export length in minutes")
	renderCmd.Flags().StringVarP(&renderSeed, "seed", "s", "", "mix seed (empty for default)")
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "soundscape.wav", "output WAV path")
}
