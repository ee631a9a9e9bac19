package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/glizzus/adsp-host/internal/addonmgr"
	"github.com/glizzus/adsp-host/internal/adsp"
	"github.com/glizzus/adsp-host/internal/builtin"
	"github.com/glizzus/adsp-host/internal/codec"
	"github.com/glizzus/adsp-host/internal/config"
	"github.com/glizzus/adsp-host/internal/datalayer"
	"github.com/glizzus/adsp-host/internal/loader"
	"github.com/glizzus/adsp-host/internal/pcm"
	"github.com/glizzus/adsp-host/internal/pipeline"
	"github.com/glizzus/adsp-host/internal/presenters"
	"github.com/glizzus/adsp-host/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
)

func newRedis(ctx context.Context) (*redis.Client, error) {
	cfg, err := config.NewRedisConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load redis config: %w", err)
	}
	return cfg.NewClient(ctx)
}

// detectCodec sniffs Ogg input and rewinds the file.
func detectCodec(f *os.File) string {
	switch strings.ToLower(filepath.Ext(f.Name())) {
	case ".ogg", ".oga", ".opus", ".spx":
	default:
		return ""
	}
	name, err := codec.ProbeOgg(f)
	if err != nil {
		log.Printf("Could not detect codec: %v", err)
		name = ""
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		log.Printf("Failed to rewind input: %v", err)
	}
	return name
}

func process(c *cli.Context) error {
	ctx := c.Context
	in, err := os.Open(c.String("input"))
	if err != nil {
		return cli.Exit("Failed to open input: "+err.Error(), 1)
	}
	defer in.Close()

	codecName := c.String("codec")
	if codecName == "" {
		codecName = detectCodec(in)
	}

	registry := loader.NewRegistry()
	builtin.Register(registry)
	addonID := c.String("addon")
	manager := addonmgr.NewManager(
		addonmgr.Config{
			Addons:     []string{addonID},
			AddonDir:   c.String("addon-dir"),
			ProfileDir: c.String("profile-dir"),
		},
		loader.Chain{registry, loader.SharedObject{}},
	)
	if err := manager.Activate(ctx); err != nil {
		return cli.Exit("Failed to start addon: "+err.Error(), 1)
	}
	defer manager.Deactivate(context.Background())
	addon, ok := manager.GetAudioDSPAddon(addonID)
	if !ok {
		return cli.Exit("Unknown addon "+addonID, 1)
	}

	channels := c.Int("channels")
	sampleRate := c.Int("sample-rate")
	decoded, err := pcm.Decode(ctx, in, sampleRate, channels)
	if err != nil {
		return cli.Exit("Failed to decode input: "+err.Error(), 1)
	}
	defer decoded.Close()
	src, err := pcm.NewReader(decoded, channels)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	out, err := os.Create(c.String("output"))
	if err != nil {
		return cli.Exit("Failed to create output: "+err.Error(), 1)
	}
	defer out.Close()
	sink := pcm.NewWriterSink(out, 8)
	defer sink.Close()

	var post []uint
	for _, m := range c.IntSlice("post-mode") {
		post = append(post, uint(m))
	}
	stats, err := pipeline.NewRunner(nil, nil, nil).Run(ctx, addon, src, sink, pipeline.Options{
		StreamType:  adsp.StreamTypeMusic,
		Codec:       codecName,
		Name:        filepath.Base(in.Name()),
		SampleRate:  sampleRate,
		BlockFrames: c.Int("block"),
		MasterMode:  uint(c.Int("master-mode")),
		PostModes:   post,
	})
	if err != nil {
		return cli.Exit("Failed to process audio: "+err.Error(), 1)
	}

	log.Printf("Processed %d frames in %d blocks (latency %s)", stats.Frames, stats.Blocks, stats.Latency)
	if stats.InfoString != "" {
		log.Printf("Addon reports: %s", stats.InfoString)
	}
	return nil
}

func listModes(c *cli.Context) error {
	pool, err := datalayer.NewPostgresPoolFromEnv(c.Context)
	if err != nil {
		return cli.Exit("Failed to create postgres pool: "+err.Error(), 1)
	}
	defer pool.Close()
	if err := datalayer.MigratePostgres(pool); err != nil {
		return cli.Exit("Failed to migrate postgres: "+err.Error(), 1)
	}

	modes, err := repository.NewPostgresModeRepository(pool).List(c.Context, c.Int("client-id"))
	if err != nil {
		return cli.Exit("Failed to list modes: "+err.Error(), 1)
	}
	return presenters.WriteModes(os.Stdout, modes)
}

func setDisabled(disabled bool) cli.ActionFunc {
	return func(c *cli.Context) error {
		rdb, err := newRedis(c.Context)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		defer rdb.Close()

		addonID := c.Args().First()
		if addonID == "" {
			return cli.Exit("Please provide an addon id", 1)
		}
		if err := addonmgr.NewRedisStateStore(rdb).SetDisabled(c.Context, addonID, disabled); err != nil {
			return cli.Exit("Failed to update addon state: "+err.Error(), 1)
		}

		event := addonmgr.Event{Type: addonmgr.EventAddonEnabled, AddonID: addonID, Time: time.Now().UTC()}
		if disabled {
			event.Type = addonmgr.EventAddonDisabled
		}
		if err := addonmgr.NewRedisEventPublisher(rdb).Publish(c.Context, event); err != nil {
			return cli.Exit("Failed to publish event: "+err.Error(), 1)
		}
		log.Printf("Addon %s %s. Running hosts pick this up on their next rescan.", addonID, event.Type)
		return nil
	}
}

func watchEvents(c *cli.Context) error {
	rdb, err := newRedis(c.Context)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer rdb.Close()

	consumer, err := os.Hostname()
	if err != nil {
		return cli.Exit("Failed to get hostname: "+err.Error(), 1)
	}
	receiver, err := addonmgr.NewRedisEventReceiver(c.Context, rdb, c.String("group"), consumer)
	if err != nil {
		return cli.Exit("Failed to create event receiver: "+err.Error(), 1)
	}
	for {
		events, err := receiver.Receive(c.Context, 5*time.Second)
		if err != nil {
			if c.Context.Err() != nil {
				return nil
			}
			return cli.Exit("Failed to receive events: "+err.Error(), 1)
		}
		for _, e := range events {
			log.Println(presenters.FormatEvent(e))
		}
	}
}

func upload(c *cli.Context) error {
	storage, err := datalayer.NewMinioStorageFromEnv()
	if err != nil {
		return cli.Exit("Failed to create minio storage: "+err.Error(), 1)
	}
	if err := storage.EnsureBucket(c.Context); err != nil {
		return cli.Exit("Failed to ensure bucket: "+err.Error(), 1)
	}

	f, err := os.Open(c.String("file"))
	if err != nil {
		return cli.Exit("Failed to open binary: "+err.Error(), 1)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return cli.Exit("Failed to stat binary: "+err.Error(), 1)
	}

	key := path.Join(c.String("prefix"), c.String("addon")+".so")
	if err := storage.Put(c.Context, key, f, datalayer.PutOptions{
		Size:        info.Size(),
		ContentType: "application/octet-stream",
	}); err != nil {
		return cli.Exit("Failed to upload binary: "+err.Error(), 1)
	}
	log.Printf("Uploaded %s (%d bytes)", key, info.Size())
	return nil
}

func main() {
	if err := config.LoadEnv(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed to load .env file: %v", err)
	}

	app := &cli.App{
		Name:        "adspctl",
		Description: "Operate an audio DSP addon host and run audio through addons locally",
		Commands: []*cli.Command{
			{
				Name:   "process",
				Usage:  "Decode a file with ffmpeg, run it through an addon and write f32le output",
				Action: process,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "Audio file to process", Required: true},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Where to write raw f32le audio", Required: true},
					&cli.StringFlag{Name: "addon", Usage: "Addon id", Value: builtin.VolumeID},
					&cli.StringFlag{Name: "addon-dir", Usage: "Directory holding addon binaries", Value: "./addons"},
					&cli.StringFlag{Name: "profile-dir", Usage: "Directory holding addon profiles", Value: "./profile"},
					&cli.StringFlag{Name: "codec", Usage: "Codec of the input, detected for Ogg files when empty"},
					&cli.IntFlag{Name: "channels", Usage: "Channels to decode to", Value: 2},
					&cli.IntFlag{Name: "sample-rate", Usage: "Sample rate to decode to", Value: 48000},
					&cli.IntFlag{Name: "block", Usage: "Frames per processing block", Value: 1024},
					&cli.IntFlag{Name: "master-mode", Usage: "Master mode number, 0 keeps the addon default"},
					&cli.IntSliceFlag{Name: "post-mode", Usage: "Post process mode numbers, in order"},
				},
			},
			{
				Name:   "modes",
				Usage:  "List modes addons have registered",
				Action: listModes,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "client-id", Usage: "Only list modes of this client id", Value: adsp.InvalidClientID},
				},
			},
			{
				Name:      "disable",
				Usage:     "Disable an addon",
				ArgsUsage: "<addon-id>",
				Action:    setDisabled(true),
			},
			{
				Name:      "enable",
				Usage:     "Enable a disabled addon",
				ArgsUsage: "<addon-id>",
				Action:    setDisabled(false),
			},
			{
				Name:   "events",
				Usage:  "Follow addon lifecycle events",
				Action: watchEvents,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "group", Usage: "Consumer group to read with", Value: "adspctl"},
				},
			},
			{
				Name:   "upload",
				Usage:  "Upload an addon binary to blob storage",
				Action: upload,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addon", Usage: "Addon id", Required: true},
					&cli.StringFlag{Name: "file", Usage: "Path to the shared object", Required: true},
					&cli.StringFlag{Name: "prefix", Usage: "Key prefix in the bucket", Value: "addons"},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Error running CLI: %v", err)
	}
}
