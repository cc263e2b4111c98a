package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/docextract/internal/export"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage learned templates",
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List learned templates with their success rates",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("templates"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		tpls, err := st.AllTemplates(ctx)
		if err != nil {
			return err
		}

		if len(tpls) == 0 {
			cmd.Println("no templates learned yet")
			return nil
		}
		for _, t := range tpls {
			vendor := t.Vendor
			if vendor == "" {
				vendor = "-"
			}
			lastUsed := "never"
			if !t.LastUsedAt.IsZero() {
				lastUsed = t.LastUsedAt.UTC().Format("2006-01-02 15:04")
			}
			cmd.Printf("%s  vendor=%s  rules=%d  rate=%.3f (%d/%d)  last_used=%s  fp=%s\n",
				t.ID, vendor, len(t.Rules), t.SuccessRate(),
				t.SuccessCount, t.SuccessCount+t.FailureCount, lastUsed, t.Fingerprint)
		}
		return nil
	},
}

var templatesResetCmd = &cobra.Command{
	Use:   "reset <template-id>",
	Short: "Zero a template's counters so it becomes eligible again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("templates"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.ResetCounters(ctx, args[0]); err != nil {
			return err
		}
		zap.L().Info("counters reset", zap.String("template_id", args[0]))
		return nil
	},
}

var templatesDumpCmd = &cobra.Command{
	Use:   "dump <file.yaml>",
	Short: "Write the template registry to a YAML backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("templates"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		data, err := export.New(st).TemplatesYAML(ctx)
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[0], data, 0o644); err != nil {
			return eris.Wrapf(err, "write %s", args[0])
		}
		zap.L().Info("templates dumped", zap.String("path", args[0]))
		return nil
	},
}

var templatesLoadCmd = &cobra.Command{
	Use:   "load <file.yaml>",
	Short: "Load a YAML backup into the store (existing fingerprints are kept)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("templates"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}
		created, err := export.New(st).ImportTemplatesYAML(ctx, data)
		if err != nil {
			return err
		}
		cmd.Printf("loaded %d templates\n", created)
		return nil
	},
}

func init() {
	templatesCmd.AddCommand(templatesListCmd)
	templatesCmd.AddCommand(templatesResetCmd)
	templatesCmd.AddCommand(templatesDumpCmd)
	templatesCmd.AddCommand(templatesLoadCmd)
	rootCmd.AddCommand(templatesCmd)
}
