package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var gradeCmd = &cobra.Command{
	Use:   "grade",
	Short: "Grade a test from the command line",
}

var gradeRawCmd = &cobra.Command{
	Use:   "raw <test-id>",
	Short: "Compute raw scores, persist them and notify participants",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		a, err := buildApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		rep, err := a.grader.GradeRaw(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("grade %s: %w", args[0], err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), rep.Text())
		return nil
	},
}

var gradePsychometricCmd = &cobra.Command{
	Use:     "psychometric <test-id>",
	Aliases: []string{"irt"},
	Short:   "Compute weighted scores and certificate tiers",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		a, err := buildApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		rep, err := a.grader.ScorePsychometric(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("score %s: %w", args[0], err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), rep.Text())
		if rep.ChartKey != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "chart: %s/%s\n", cfg.BlobBasePath, rep.ChartKey)
		}
		return nil
	},
}

func init() {
	gradeCmd.AddCommand(gradeRawCmd)
	gradeCmd.AddCommand(gradePsychometricCmd)
}
