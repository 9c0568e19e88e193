// Command studyplan enriches exam coverage against the textbook index and
// builds interleaved study plans from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"studyrag/config"
	"studyrag/export"
	"studyrag/service"
	"studyrag/types"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:           "studyplan",
		Short:         "Textbook-grounded study planning",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			switch strings.ToLower(logLevel) {
			case "debug":
				level = slog.LevelDebug
			case "warn":
				level = slog.LevelWarn
			case "error":
				level = slog.LevelError
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		coverageCmd(),
		enrichCmd(),
		analyzeCmd(),
		planCmd(),
		exportCmd(),
		searchCmd(),
	)
	return cmd
}

// withApp opens the configured stores for the duration of fn and cancels
// on SIGINT or SIGTERM.
func withApp(fn func(ctx context.Context, app *service.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := service.Open(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer app.Close()

	return fn(ctx, app)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func coverageCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "coverage",
		Short: "Store an exam coverage record from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			var cov types.ExamCoverage
			if err := json.Unmarshal(data, &cov); err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}
			if errs := types.Validate(&cov); len(errs) > 0 {
				return fmt.Errorf("invalid coverage: %v", errs)
			}

			return withApp(func(ctx context.Context, app *service.App) error {
				saved, err := app.Service.SaveCoverage(ctx, cov)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stored coverage %s (%d topics)\n", saved.ExamID, len(saved.TopicList()))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "Coverage JSON file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func enrichCmd() *cobra.Command {
	var (
		examID string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Map an exam's topics onto textbook pages, problems and key terms",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *service.App) error {
				res, err := app.Service.Enrich(ctx, examID, force)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				c := res.Coverage
				if res.Cached {
					fmt.Fprintf(out, "%s: using stored enrichment (use --force to regenerate)\n", c.ExamID)
				}
				fmt.Fprintf(out, "%s: %d topics, %d high / %d medium / %d low confidence\n",
					c.ExamID, len(c.Topics), c.HighConfidenceCount(), c.MediumConfidenceCount(), c.LowConfidenceCount())
				for _, f := range res.Report.Failures {
					fmt.Fprintf(out, "  failed: %s: %v\n", f.Bullet, f.Err)
				}
				for _, b := range res.Report.LowConfidence {
					fmt.Fprintf(out, "  low confidence: %s\n", b)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&examID, "exam", "", "Exam id")
	cmd.Flags().BoolVar(&force, "force", false, "Regenerate even if a stored enrichment exists")
	_ = cmd.MarkFlagRequired("exam")
	return cmd
}

// planFlags are shared by analyze and plan.
type planFlags struct {
	params types.PlanParams
}

func (f *planFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.params.ExamIDs, "exam", nil, "Exam id (repeatable)")
	cmd.Flags().StringVar(&f.params.StartDate, "start", "", "First study day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.params.EndDate, "end", "", "Last study day (YYYY-MM-DD)")
	cmd.Flags().IntVar(&f.params.MinutesPerDay, "minutes", 0, "Study minutes per day (default from config)")
	_ = cmd.MarkFlagRequired("exam")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
}

func analyzeCmd() *cobra.Command {
	var flags planFlags

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Estimate whether the exams fit in the date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *service.App) error {
				req, err := app.Defaults.PlanRequest(flags.params)
				if err != nil {
					return err
				}
				analysis, err := app.Service.Analyze(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), analysis)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func planCmd() *cobra.Command {
	var (
		flags  planFlags
		format string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Generate and store an interleaved study plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, app *service.App) error {
				req, err := app.Defaults.PlanRequest(flags.params)
				if err != nil {
					return err
				}
				plan, err := app.Service.CreatePlan(ctx, req)
				if err != nil {
					return err
				}
				for _, w := range plan.Warnings {
					slog.Warn(w, "plan_id", plan.PlanID)
				}
				return export.Export(cmd.OutOrStdout(), plan, f)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&flags.params.Strategy, "strategy", "", "round_robin, priority_first or balanced (default from config)")
	cmd.Flags().StringVar(&format, "format", "md", "Output format (md, csv, json, yaml)")
	return cmd
}

func exportCmd() *cobra.Command {
	var (
		planID string
		format string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a stored plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, app *service.App) error {
				plan, err := app.Service.Plan(ctx, planID)
				if err != nil {
					return err
				}
				if out == "" {
					return export.Export(cmd.OutOrStdout(), plan, f)
				}

				file, err := os.Create(out)
				if err != nil {
					return err
				}
				if err := export.Export(file, plan, f); err != nil {
					file.Close()
					return err
				}
				return file.Close()
			})
		},
	}
	cmd.Flags().StringVar(&planID, "plan", "", "Plan id")
	cmd.Flags().StringVar(&format, "format", "md", "Output format (md, csv, json, yaml)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write to file instead of stdout")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

func searchCmd() *cobra.Command {
	var (
		params   types.SearchParams
		chapter  int
		minScore float64
	)

	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search the textbook index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params.Query = strings.Join(args, " ")
			if cmd.Flags().Changed("chapter") {
				params.Chapter = &chapter
			}
			if cmd.Flags().Changed("min-score") {
				params.MinScore = &minScore
			}
			if errs := types.Validate(&params); len(errs) > 0 {
				return fmt.Errorf("invalid search: %v", errs)
			}

			return withApp(func(ctx context.Context, app *service.App) error {
				resp, err := app.Service.Search(ctx, params)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
	cmd.Flags().IntVar(&params.TopK, "top-k", 0, "Number of results (default 5)")
	cmd.Flags().IntVar(&chapter, "chapter", 0, "Restrict to a chapter")
	cmd.Flags().StringVar(&params.FileID, "file", "", "Restrict to a textbook file")
	cmd.Flags().StringVar(&params.ExamID, "exam", "", "Restrict to the chapters of an exam")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Minimum similarity (default 0.5)")
	return cmd
}
