package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rmadesk/rmadesk/internal/discounts"
)

// MappingSource loads the discount eligible SKUs the kit table must resolve to.
type MappingSource interface {
	DiscountMappings(ctx context.Context) ([]discounts.Mapping, error)
}

// KitsCLI offers operational helpers around the kit expansion table.
type KitsCLI struct {
	mappings MappingSource
}

// NewKitsCLI constructs a new helper instance.
func NewKitsCLI(mappings MappingSource) *KitsCLI {
	return &KitsCLI{mappings: mappings}
}

// KitsValidateOptions defines available flags for the kits validate command.
type KitsValidateOptions struct {
	Path       string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// KitsValidateSummary describes the JSON response for kits validate.
type KitsValidateSummary struct {
	OK       bool                   `json:"ok"`
	Kits     int                    `json:"kits"`
	Problems []discounts.KitProblem `json:"problems"`
}

// ValidateCommand checks the kit table against the current mappings. It
// returns 10 when problems are found.
func (c *KitsCLI) ValidateCommand(ctx context.Context, opts KitsValidateOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Path == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "kits validate: --file is required")
		return 1
	}
	rules, err := discounts.LoadKitRules(opts.Path)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "kits validate: %v\n", err)
		return 1
	}
	mappings, err := c.mappings.DiscountMappings(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "kits validate: load mappings: %v\n", err)
		return 1
	}
	problems := discounts.ValidateKitRules(rules, discounts.NewCatalog(mappings, rules))
	if problems == nil {
		problems = []discounts.KitProblem{}
	}

	if opts.JSONOutput {
		summary := KitsValidateSummary{OK: len(problems) == 0, Kits: len(rules), Problems: problems}
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "kits validate: encode json: %v\n", err)
			return 1
		}
	} else {
		_, _ = fmt.Fprintf(opts.Stdout, "%d kits checked\n", len(rules))
		for _, p := range problems {
			_, _ = fmt.Fprintf(opts.Stdout, "  %s\n", p)
		}
		if len(problems) == 0 {
			_, _ = fmt.Fprintln(opts.Stdout, "OK")
		}
	}
	if len(problems) > 0 {
		return 10
	}
	return 0
}
