package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/reeltorecipe/video-worker/internal/models"
	"github.com/reeltorecipe/video-worker/internal/processor"
	"github.com/reeltorecipe/video-worker/internal/queue"
	"github.com/reeltorecipe/video-worker/internal/storage"
	"github.com/reeltorecipe/video-worker/internal/utils"
)

// requiredTools lists the external tools the pipeline shells out to
func requiredTools(ocrEngine string) []string {
	tools := []string{"yt-dlp", "ffmpeg", "ffprobe", "whisper"}
	if ocrEngine == utils.OCREngineCLI {
		tools = append(tools, "tesseract")
	}
	return tools
}

func main() {
	// A missing .env is fine, the environment may be set by the container
	_ = godotenv.Load()

	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches the subcommand and returns the process exit code
func run(args []string, stdout, stderr io.Writer) int {
	command := "worker"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	switch command {
	case "worker":
		return runWorker(args, stdout, stderr)
	case "process":
		return runProcess(args, stdout, stderr)
	case "submit":
		return runSubmit(args, stdout, stderr)
	case "status":
		return runStatus(args, stdout, stderr)
	case "help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `usage:
  worker [--redis-url URL]                                   run the worker loop
  worker worker [--redis-url URL] [--group NAME] [--consumer NAME]
  worker process --url URL [--output DIR]                    process one video and write <job_id>_result.json
  worker submit --url URL [--job-id ID] [--redis-url URL]    enqueue a job
  worker status --job-id ID [--redis-url URL]                print the job:<id> status record
`)
}

// runWorker consumes queue:video_processing until SIGINT/SIGTERM
func runWorker(args []string, stdout, stderr io.Writer) int {
	config := loadConfig()

	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&config.RedisURL, "redis-url", config.RedisURL, "Redis connection URL")
	fs.StringVar(&config.ConsumerGroup, "group", config.ConsumerGroup, "consumer group name")
	fs.StringVar(&config.ConsumerName, "consumer", config.ConsumerName, "consumer name within the group")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := newLogger(config.LogLevel, config.LogFormat, stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report := utils.CheckDependencies(requiredTools(config.OCREngine)...)
	for tool, path := range report.Found {
		logger.Debug().Str("tool", tool).Str("path", path).Msg("found external tool")
	}
	if len(report.Missing) > 0 {
		logger.Warn().Strs("missing", report.Missing).Msg("external tools not on PATH, affected stages will fail or degrade")
	}

	if err := os.MkdirAll(config.OutputDir, 0755); err != nil {
		logger.Error().Err(err).Str("output_dir", config.OutputDir).Msg("failed to create output directory")
		return 1
	}

	client, err := connectRedis(ctx, config.RedisURL)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to Redis")
		return 1
	}
	defer client.Close()
	logger.Info().Msg("Redis connection established")

	// Optional archive; a nil interface disables it
	var archive processor.Archive
	if config.PostgresURL != "" {
		storageManager, err := storage.NewStorageManager(ctx, config.PostgresURL)
		if err != nil {
			logger.Warn().Err(err).Msg("job archive disabled")
		} else {
			defer storageManager.Close()
			archive = storageManager
			logger.Info().Msg("job archive enabled")
		}
	}

	runner := utils.NewExecRunner(config.ToolTimeout, logger)
	videoProcessor := processor.NewVideoProcessor(
		runner,
		&config,
		storage.NewStatusStore(client, logger),
		queue.NewStreamPublisher(client),
		archive,
		logger,
	)

	consumer := queue.NewRedisConsumer(client, queue.RedisConsumerConfig{
		Group:        config.ConsumerGroup,
		Consumer:     config.ConsumerName,
		BlockTimeout: config.BlockTimeout,
		IdleDelay:    config.IdleDelay,
		ErrorDelay:   config.ErrorDelay,
	}, videoProcessor, logger)

	if err := consumer.Setup(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to set up consumer group")
		return 1
	}

	go videoProcessor.Stats().RunLogger(ctx, config.StatsInterval, logger)

	logger.Info().
		Str("group", config.ConsumerGroup).
		Str("consumer", config.ConsumerName).
		Str("output_dir", config.OutputDir).
		Int("ocr_concurrency", config.OCRConcurrency).
		Str("ocr_engine", config.OCREngine).
		Msg("video worker ready")

	if err := consumer.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("worker stopped")
		return 1
	}

	videoProcessor.Stats().Log(logger)
	logger.Info().Msg("video worker stopped")
	return 0
}

// runProcess runs the pipeline once for a URL without Redis
func runProcess(args []string, stdout, stderr io.Writer) int {
	config := loadConfig()

	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	fs.SetOutput(stderr)
	url := fs.String("url", "", "video URL (required)")
	fs.StringVar(&config.OutputDir, "output", config.OutputDir, "directory for artefacts and the result file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *url == "" {
		fmt.Fprintln(stderr, "process: --url is required")
		return 2
	}

	// stdout carries the result path only
	logger := newLogger(config.LogLevel, config.LogFormat, stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := utils.NewExecRunner(config.ToolTimeout, logger)
	_, resultPath, err := processor.NewSingleShot(runner, &config, logger).ProcessURL(ctx, *url, config.OutputDir)
	if err != nil {
		logger.Error().Err(err).Str("url", *url).Msg("processing failed")
		return 1
	}

	fmt.Fprintln(stdout, resultPath)
	return 0
}

// runSubmit enqueues a job the way the API does
func runSubmit(args []string, stdout, stderr io.Writer) int {
	config := loadConfig()

	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	url := fs.String("url", "", "video URL (required)")
	jobID := fs.String("job-id", "", "job ID (default: random UUID)")
	fs.StringVar(&config.RedisURL, "redis-url", config.RedisURL, "Redis connection URL")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *url == "" {
		fmt.Fprintln(stderr, "submit: --url is required")
		return 2
	}

	logger := newLogger(config.LogLevel, config.LogFormat, stderr)
	ctx := context.Background()

	client, err := connectRedis(ctx, config.RedisURL)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to Redis")
		return 1
	}
	defer client.Close()

	id, err := queue.NewSubmitter(client, storage.NewStatusStore(client, logger)).Submit(ctx, *url, *jobID)
	if err != nil {
		logger.Error().Err(err).Msg("submit failed")
		return 1
	}

	logger.Info().Str("job_id", id).Str("stream", models.VideoQueueStream).Msg("job submitted")
	fmt.Fprintln(stdout, id)
	return 0
}

// runStatus prints a job's status record as JSON
func runStatus(args []string, stdout, stderr io.Writer) int {
	config := loadConfig()

	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(stderr)
	jobID := fs.String("job-id", "", "job id (required)")
	fs.StringVar(&config.RedisURL, "redis-url", config.RedisURL, "Redis connection URL")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *jobID == "" {
		fmt.Fprintln(stderr, "status: --job-id is required")
		return 2
	}

	logger := newLogger(config.LogLevel, config.LogFormat, stderr)
	ctx := context.Background()

	client, err := connectRedis(ctx, config.RedisURL)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to Redis")
		return 1
	}
	defer client.Close()

	status, err := storage.NewStatusStore(client, logger).Get(ctx, *jobID)
	if errors.Is(err, storage.ErrJobNotFound) {
		fmt.Fprintf(stderr, "job %s not found\n", *jobID)
		return 1
	}
	if err != nil {
		logger.Error().Err(err).Str("job_id", *jobID).Msg("failed to read status")
		return 1
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode status")
		return 1
	}
	fmt.Fprintln(stdout, string(data))
	return 0
}

// connectRedis parses url and pings the server
func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// newLogger builds the root logger; format is "json" or "console"
func newLogger(level, format string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Str("service", "video-worker").Logger()
}
