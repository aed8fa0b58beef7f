package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateFile string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a YAML run configuration without running it",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := loadRunConfig(validateFile)
		if err != nil {
			return err
		}
		eng, err := openEngine(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer eng.Close()

		tasks, err := eng.svc.Validate(req)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: scope %s, %d tasks, %d rooms, %d invigilators\n",
			validateFile, req.Scope, tasks, len(req.Rooms), len(req.Invigilators))
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVarP(&validateFile, "file", "f", "", "run configuration (YAML)")
	_ = validateCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(validateCmd)
}
