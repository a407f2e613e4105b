package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mediaapi/internal/config"
	"mediaapi/internal/ffmpeg"
	"mediaapi/internal/inspect"
	"mediaapi/internal/logger"
	"mediaapi/internal/model"
	"mediaapi/internal/pipeline"
	"mediaapi/internal/service"
	"mediaapi/internal/validate"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// toolkit is the local pipeline used by every command.
type toolkit struct {
	cfg       config.ProcessingConfig
	validator *validate.Validator
	processor *pipeline.Processor
	svc       service.MediaService
	log       *zap.Logger
}

func newToolkit(cmd *cobra.Command) (*toolkit, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("PROCESSING_CONFIG")
	}
	cfg, err := config.LoadProcessing(path)
	if err != nil {
		return nil, err
	}

	level, _ := cmd.Flags().GetString("log-level")
	log, err := logger.NewLogger(&config.AppConfig{Environment: "development", LogLevel: level})
	if err != nil {
		return nil, err
	}

	runner := ffmpeg.New(time.Duration(cfg.ProbeTimeoutSec) * time.Second)
	v := validate.New(cfg.AllowedExtensions, cfg.MaxUploadBytes, cfg.StrictMIME)
	proc := pipeline.NewProcessor(cfg, runner, nil, log)
	return &toolkit{
		cfg:       cfg,
		validator: v,
		processor: proc,
		// Inspect never touches storage or the repository.
		svc: service.NewMediaService(nil, nil, v, proc, runner, service.Options{TempDir: cfg.TempDir, Logger: log}),
		log: log,
	}, nil
}

func (t *toolkit) kind(flag, filename string) (model.Kind, error) {
	if flag != "" {
		return model.ParseKind(flag)
	}
	return t.validator.KindForExtension(inspect.Extension(filename))
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "mediactl",
		Short:        "Run the media pipeline against local files",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "processing TOML file (defaults to $PROCESSING_CONFIG)")
	root.PersistentFlags().String("log-level", "warn", "log level")

	root.AddCommand(newInspectCmd(), newChecksumCmd(), newDeriveCmd(), newVerifyCmd(), newTextCmd())
	return root
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Print the metadata the pipeline extracts from FILE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tk, err := newToolkit(cmd)
			if err != nil {
				return err
			}
			defer tk.log.Sync()

			kindFlag, _ := cmd.Flags().GetString("kind")
			var kind model.Kind
			if kindFlag != "" {
				if kind, err = model.ParseKind(kindFlag); err != nil {
					return err
				}
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			res, err := tk.svc.Inspect(cmd.Context(), f, filepath.Base(args[0]), kind)
			if err != nil {
				return fmt.Errorf("inspect %s: %w", args[0], err)
			}
			return writeJSON(cmd, res)
		},
	}
	cmd.Flags().String("kind", "", "image, document, video or audio (inferred from the extension when empty)")
	return cmd
}

func newChecksumCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checksum FILE",
		Short: "Print the SHA-256 of FILE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := inspect.ChecksumFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", sum, args[0])
			return nil
		},
	}
}

func newTextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "text FILE",
		Short: "Print the plain text of a PDF, DOCX or text FILE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mt, _, err := inspect.DetectMIMEFile(args[0], filepath.Base(args[0]))
			if err != nil {
				return err
			}
			text, err := inspect.ExtractText(args[0], mt)
			if err != nil {
				return fmt.Errorf("extract text from %s: %w", args[0], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
}

func newDeriveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "derive FILE",
		Short: "Write the artifacts derived from FILE into --out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			kindFlag, _ := cmd.Flags().GetString("kind")

			tk, err := newToolkit(cmd)
			if err != nil {
				return err
			}
			defer tk.log.Sync()

			name := filepath.Base(args[0])
			kind, err := tk.kind(kindFlag, name)
			if err != nil {
				return err
			}
			if err := tk.validator.Extension(kind, inspect.Extension(name)); err != nil {
				return err
			}

			written, warnings, err := tk.derive(cmd.Context(), args[0], name, kind, out)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, msg := range warnings {
				fmt.Fprintf(w, "warning: %s\n", msg)
			}
			if len(written) == 0 {
				fmt.Fprintln(w, "no artifacts derived")
			}
			for _, p := range written {
				fmt.Fprintln(w, p)
			}
			return nil
		},
	}
	cmd.Flags().String("out", ".", "output directory")
	cmd.Flags().String("kind", "", "image, document, video or audio (inferred from the extension when empty)")
	return cmd
}

func (t *toolkit) derive(ctx context.Context, path, name string, kind model.Kind, out string) ([]string, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	staged, err := pipeline.Stage(f, t.cfg.TempDir, t.cfg.MaxUploadBytes)
	if err != nil {
		return nil, nil, err
	}
	defer staged.Cleanup()

	res, err := t.processor.Process(ctx, staged, name, kind)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return nil, nil, err
	}

	written := make([]string, 0, len(res.Artifacts))
	for _, a := range res.Artifacts {
		dst := filepath.Join(out, a.Name)
		if err := os.WriteFile(dst, a.Data, 0o644); err != nil {
			return written, res.Warnings, fmt.Errorf("write %s: %w", a.Kind, err)
		}
		written = append(written, dst)
	}
	return written, res.Warnings, nil
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify FILE SHA256",
		Short: "Check FILE against an expected SHA-256",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := inspect.ChecksumFile(args[0])
			if err != nil {
				return err
			}
			expected := strings.ToLower(strings.TrimSpace(args[1]))
			if sum != expected {
				return fmt.Errorf("checksum mismatch: expected %s, got %s", expected, sum)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", args[0])
			return nil
		},
	}
}
