package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/getmockd/interceptd/pkg/rules"
)

// RuleValidation is the result of validating one rule set document.
type RuleValidation struct {
	File     string             `json:"file"`
	Valid    bool               `json:"valid"`
	Rules    int                `json:"rules,omitempty"`
	Fallback string             `json:"fallback,omitempty"`
	Errors   []rules.FieldError `json:"errors,omitempty"`
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Work with rule set documents",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Validate rule set documents against the rule set schema",
	Example: `  interceptd rules validate rules/active.json
  interceptd rules validate rules/*.json --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRulesValidate,
}

func init() {
	rulesCmd.AddCommand(rulesValidateCmd)
	rootCmd.AddCommand(rulesCmd)
}

func runRulesValidate(cmd *cobra.Command, args []string) error {
	results := make([]RuleValidation, 0, len(args))
	invalid := 0
	for _, file := range args {
		res := validateRuleFile(file)
		if !res.Valid {
			invalid++
		}
		results = append(results, res)
	}

	err := printResult(cmd, results, func() {
		w := cmd.OutOrStdout()
		for _, res := range results {
			if res.Valid {
				fmt.Fprintf(w, "%s: ok (%d rules, fallback %s)\n", res.File, res.Rules, res.Fallback)
				continue
			}
			fmt.Fprintf(w, "%s: invalid\n", res.File)
			for _, fe := range res.Errors {
				if fe.Field == "" {
					fmt.Fprintf(w, "  - %s\n", fe.Message)
				} else {
					fmt.Fprintf(w, "  - %s: %s\n", fe.Field, fe.Message)
				}
			}
		}
	})
	if err != nil {
		return err
	}
	if invalid > 0 {
		return fmt.Errorf("%d of %d rule set(s) invalid", invalid, len(args))
	}
	return nil
}

func validateRuleFile(file string) RuleValidation {
	res := RuleValidation{File: file}
	data, err := os.ReadFile(file)
	if err != nil {
		res.Errors = []rules.FieldError{{Message: err.Error()}}
		return res
	}
	rs, err := rules.Parse(data)
	if err != nil {
		var verr *rules.ValidationError
		if errors.As(err, &verr) {
			res.Errors = verr.Errors
		} else {
			res.Errors = []rules.FieldError{{Message: err.Error()}}
		}
		return res
	}
	res.Valid = true
	res.Rules = len(rs.Rules)
	res.Fallback = string(rs.Fallback)
	return res
}
