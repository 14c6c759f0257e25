package cmd

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ipd-simulator/internal/engine"
	"github.com/ipd-simulator/internal/render"
	"github.com/ipd-simulator/internal/repository"
	"github.com/ipd-simulator/internal/webui"
	"github.com/ipd-simulator/pkg/config"
	"github.com/ipd-simulator/pkg/errors"
	"github.com/ipd-simulator/pkg/model"
	"github.com/ipd-simulator/pkg/parallel"
	"github.com/ipd-simulator/pkg/writer"
)

var (
	// Run command flags
	runWidth     int
	runHeight    int
	runSteps     int64
	runSeed      uint64
	runAlpha     float64
	runGamma     float64
	runEpsilon   float64
	runMemCap    int
	runPolicyCap int
	runNeighbors int

	runCSVPath     string
	runVideo       bool
	runVideoPath   string
	runFPS         int
	runSummaryPath string

	runChunk   int
	runThreads int

	runServe     bool
	runServePort int

	runDB bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation",
	Long: `Run an iterated prisoner's dilemma simulation on a grid.

Flags override values from the config file. Per-step statistics go to the
CSV path when given; --video writes raw RGB24 frames for an external
encoder; --serve streams live statistics to a browser.`,
	RunE: runSimulation,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVar(&runWidth, "width", 128, "Grid width")
	runCmd.Flags().IntVar(&runHeight, "height", 128, "Grid height")
	runCmd.Flags().Int64Var(&runSteps, "timesteps", 100, "Number of simulation steps")
	runCmd.Flags().Uint64Var(&runSeed, "seed", 1, "RNG seed")
	runCmd.Flags().Float64Var(&runAlpha, "alpha", 0.1, "Q-learning rate, (0,1]")
	runCmd.Flags().Float64Var(&runGamma, "gamma", 0.9, "Discount factor, [0,1]")
	runCmd.Flags().Float64Var(&runEpsilon, "epsilon", 0.1, "Exploration rate, [0,1]")
	runCmd.Flags().IntVar(&runMemCap, "memory-cap", 4, "Per-agent action memory capacity, 1..16")
	runCmd.Flags().IntVar(&runPolicyCap, "policy-cap", 1<<20, "Policy store entry bound")
	runCmd.Flags().IntVar(&runNeighbors, "neighborhood", 4, "Neighbor connectivity: 4 or 8")

	runCmd.Flags().StringVar(&runCSVPath, "csv", "", "Write per-step statistics CSV to this path")
	runCmd.Flags().BoolVar(&runVideo, "video", false, "Write raw RGB24 frames")
	runCmd.Flags().StringVar(&runVideoPath, "video-path", "frames.rgb", "Frame stream output path")
	runCmd.Flags().IntVar(&runFPS, "fps", 30, "Frame rate hint for the external encoder")
	runCmd.Flags().StringVar(&runSummaryPath, "summary", "", "Write a JSON run summary to this path")

	runCmd.Flags().IntVar(&runChunk, "chunk", parallel.DefaultChunkSize, "Work chunk size for parallel passes")
	runCmd.Flags().IntVar(&runThreads, "threads", 0, "Worker threads (0 = all cores)")

	runCmd.Flags().BoolVar(&runServe, "serve", false, "Stream live statistics to a browser")
	runCmd.Flags().IntVar(&runServePort, "port", 8080, "Port for the live view (used with --serve)")

	runCmd.Flags().BoolVar(&runDB, "db", false, "Persist the run and per-step statistics to the configured database")
}

// runSummary is the JSON document written at the end of a run.
type runSummary struct {
	Width        int             `json:"width"`
	Height       int             `json:"height"`
	Steps        int64           `json:"steps"`
	Seed         uint64          `json:"seed"`
	Alpha        float64         `json:"alpha"`
	Gamma        float64         `json:"gamma"`
	Epsilon      float64         `json:"epsilon"`
	TicksRun     int64           `json:"ticks_run"`
	Elapsed      string          `json:"elapsed"`
	FinalStats   model.StepStats `json:"final_stats"`
	PolicyCount  int             `json:"policy_entries"`
	PolicyEvicts int64           `json:"policy_evictions"`
}

func runSimulation(cmd *cobra.Command, args []string) error {
	log := GetLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	params := buildParams(cmd, cfg)
	params.Logger = log

	eng, err := engine.New(params)
	if err != nil {
		return err
	}

	// Writers and sinks.
	var csvWriter *writer.StatsCSVWriter
	if runCSVPath != "" {
		csvWriter, err = writer.CreateStatsCSVFile(runCSVPath)
		if err != nil {
			return err
		}
		defer csvWriter.Close()
	}

	var frameOut *os.File
	var frames *render.FrameRenderer
	if runVideo {
		frames, err = render.NewFrameRenderer(params.Width, params.Height)
		if err != nil {
			return err
		}
		frameOut, err = os.Create(runVideoPath)
		if err != nil {
			return errors.Wrap(errors.CodeWriteError, "create frame stream", err)
		}
		defer frameOut.Close()
	}

	var repo repository.RunRepository
	var runRow *repository.SimulationRun
	if runDB {
		cfg.Database.Enabled = true
		db, err := repository.NewGormDB(&cfg.Database)
		if err != nil {
			return err
		}
		repo, err = repository.NewGormRunRepository(db)
		if err != nil {
			return err
		}
		runRow = &repository.SimulationRun{
			Width: params.Width, Height: params.Height, Steps: params.Steps,
			Seed: params.Seed, Alpha: params.Alpha, Gamma: params.Gamma,
			Epsilon: params.Epsilon, Neighborhood: params.Neighborhood,
		}
		if err := repo.CreateRun(cmd.Context(), runRow); err != nil {
			return err
		}
	}

	var live *webui.Server
	if runServe {
		live = webui.NewServer(listenAddr(runServePort), log)
		live.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			live.Shutdown(ctx)
		}()
	}

	// Stop cleanly on SIGINT/SIGTERM; the engine checks between passes.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, span := otel.Tracer("ipd-simulator").Start(ctx, "simulation.run")
	span.SetAttributes(
		attribute.Int("grid.width", params.Width),
		attribute.Int("grid.height", params.Height),
		attribute.Int64("steps", params.Steps),
		attribute.Int64("seed", int64(params.Seed)),
	)
	defer span.End()

	progress := parallel.NewProgressTracker(params.Steps, func(done, total int64) {
		log.Info("tick %s/%s", humanize.Comma(done), humanize.Comma(total))
	}, 5*time.Second)
	progress.Start(ctx)
	defer progress.Stop()

	log.Info("starting run: %dx%d grid, %s steps, seed %d",
		params.Width, params.Height, humanize.Comma(params.Steps), params.Seed)
	start := time.Now()

	runErr := eng.Run(ctx, func(snap *engine.Snapshot) error {
		progress.Increment()
		if csvWriter != nil {
			if err := csvWriter.WriteStep(&snap.Stats); err != nil {
				return err
			}
		}
		if frames != nil {
			if err := frames.EncodeTo(frameOut, snap.Generations); err != nil {
				return err
			}
		}
		if repo != nil {
			if err := repo.SaveStep(ctx, runRow.ID, &snap.Stats); err != nil {
				return err
			}
		}
		if live != nil {
			live.Publish(&snap.Stats)
		}
		return nil
	})

	elapsed := time.Since(start)
	if repo != nil {
		status := repository.RunStatusCompleted
		if runErr != nil {
			status = repository.RunStatusFailed
		}
		if err := repo.FinishRun(context.Background(), runRow.ID, status); err != nil {
			log.Warn("finish run row: %v", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	snap := eng.Snapshot()
	log.Info("run complete: %s ticks in %s (%.1f ticks/s)",
		humanize.Comma(eng.Tick()), elapsed.Round(time.Millisecond),
		float64(eng.Tick())/elapsed.Seconds())
	log.Info("final population: %s active (%s multicellular), max organism %d cells",
		humanize.Comma(snap.Stats.Active), humanize.Comma(snap.Stats.Multicellular),
		snap.Stats.MaxOrgSize)

	if runVideo {
		log.Info("encode frames with: %s", render.FFmpegCommand(runVideoPath, params.Width, params.Height, runFPS))
	}

	if runSummaryPath != "" {
		summary := runSummary{
			Width: params.Width, Height: params.Height, Steps: params.Steps,
			Seed: params.Seed, Alpha: params.Alpha, Gamma: params.Gamma,
			Epsilon: params.Epsilon,
			TicksRun: eng.Tick(), Elapsed: elapsed.String(),
			FinalStats:   snap.Stats,
			PolicyCount:  eng.Store().Len(),
			PolicyEvicts: eng.Store().Evictions(),
		}
		if err := writer.NewPrettyJSONWriter[runSummary]().WriteToFile(summary, runSummaryPath); err != nil {
			return errors.Wrap(errors.CodeWriteError, "write summary", err)
		}
	}
	return nil
}

// buildParams merges config-file values with explicit flag overrides.
func buildParams(cmd *cobra.Command, cfg *config.Config) engine.Params {
	p := engine.DefaultParams()
	p.Width = cfg.Simulation.Width
	p.Height = cfg.Simulation.Height
	p.Steps = cfg.Simulation.Steps
	p.Seed = cfg.Simulation.Seed
	p.Neighborhood = cfg.Simulation.Neighborhood
	p.MemoryCapacity = cfg.Simulation.MemoryCapacity
	p.InitialFitness = cfg.Simulation.InitialFitness
	p.Alpha = cfg.Learning.Alpha
	p.Gamma = cfg.Learning.Gamma
	p.Epsilon = cfg.Learning.Epsilon
	p.PolicyCapacity = cfg.Policy.Capacity
	if cfg.Simulation.Threads > 0 {
		p.Pool.MaxWorkers = cfg.Simulation.Threads
	}
	if cfg.Simulation.ChunkSize > 0 {
		p.Pool.ChunkSize = cfg.Simulation.ChunkSize
	}

	flags := cmd.Flags()
	if flags.Changed("width") {
		p.Width = runWidth
	}
	if flags.Changed("height") {
		p.Height = runHeight
	}
	if flags.Changed("timesteps") {
		p.Steps = runSteps
	}
	if flags.Changed("seed") {
		p.Seed = runSeed
	}
	if flags.Changed("alpha") {
		p.Alpha = runAlpha
	}
	if flags.Changed("gamma") {
		p.Gamma = runGamma
	}
	if flags.Changed("epsilon") {
		p.Epsilon = runEpsilon
	}
	if flags.Changed("memory-cap") {
		p.MemoryCapacity = runMemCap
	}
	if flags.Changed("policy-cap") {
		p.PolicyCapacity = runPolicyCap
	}
	if flags.Changed("neighborhood") {
		p.Neighborhood = runNeighbors
	}
	if flags.Changed("threads") && runThreads > 0 {
		p.Pool.MaxWorkers = runThreads
	}
	if flags.Changed("chunk") && runChunk > 0 {
		p.Pool.ChunkSize = runChunk
	}

	// Flag values already default the CSV/video settings; config fills in
	// when the flags are untouched.
	if !flags.Changed("csv") && cfg.Output.CSVPath != "" {
		runCSVPath = cfg.Output.CSVPath
	}
	if !flags.Changed("video") {
		runVideo = cfg.Output.Video
	}
	if !flags.Changed("video-path") && cfg.Output.VideoPath != "" {
		runVideoPath = cfg.Output.VideoPath
	}
	if !flags.Changed("fps") && cfg.Output.FPS > 0 {
		runFPS = cfg.Output.FPS
	}
	if !flags.Changed("summary") && cfg.Output.SummaryPath != "" {
		runSummaryPath = cfg.Output.SummaryPath
	}
	if !flags.Changed("db") {
		runDB = cfg.Database.Enabled
	}
	return p
}

func listenAddr(port int) string {
	return ":" + strconv.Itoa(port)
}
