package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/felo/eml-to-txt/internal/converter"
	"github.com/felo/eml-to-txt/internal/db"
)

func newConvertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert <folder>",
		Short: "Convert every .eml file in a folder to a .txt file",
		Args:  cobra.ExactArgs(1),
		RunE:  runConvert,
	}

	flags := cmd.Flags()
	flags.StringP("output", "o", "", "Output folder for .txt files (default: the input folder)")
	flags.StringP("attachments", "a", "", "Folder for extracted attachments (default: <output>/attachments)")
	flags.BoolP("recursive", "r", false, "Process subfolders, mirroring them in the output")
	flags.BoolP("extract", "e", false, "Extract attachments to files")
	flags.String("ledger", "", "SQLite ledger recording every conversion (optional)")

	return cmd
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, func(v *viper.Viper) {
		v.Set("input", args[0])
	})
	if err != nil {
		return err
	}
	if err := cfg.ResolveConversion(); err != nil {
		return err
	}

	closeLog, err := openLog(cfg.LogLevel, cfg.LogFile, cfg.LogJSON)
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	defer closeLog()

	log.Info().Str("phase", "startup").Str("version", version).
		Str("input", cfg.InputDir).Str("output", cfg.OutputDir).
		Bool("recursive", cfg.Recursive).Bool("extract", cfg.Extract).
		Msg("eml-to-txt starting")
	if cfg.Extract {
		log.Info().Str("phase", "startup").Str("attachments", cfg.AttachmentsDir).Msg("Extracting attachments")
	}

	var ledger *db.DB
	if cfg.LedgerPath != "" {
		if ledger, err = db.Open(cfg.LedgerPath); err != nil {
			return err
		}
		defer ledger.Close()
		log.Info().Str("phase", "startup").Str("ledger", cfg.LedgerPath).Msg("Recording conversions")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := converter.NewConverter(cfg, ledger).ConvertAll(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Converted %d of %d files, %d failed, %d attachments extracted (%s)\n",
		result.Converted, result.TotalFound, result.Failed,
		result.AttachmentsExtracted, humanize.Bytes(uint64(result.BytesExtracted)))

	switch {
	case result.TotalFound == 0:
		return errors.New("no .eml files found in " + cfg.InputDir)
	case result.Failed > 0:
		return fmt.Errorf("%d of %d files failed to convert", result.Failed, result.TotalFound)
	}
	return nil
}
