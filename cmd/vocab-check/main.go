// Command vocab-check validates a disposal outcome vocabulary file and prints
// the effective vocabulary. Deployments that extend the built-in vocabulary
// run it in CI so a bad overlay never reaches the service.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"mycocore/pkg/domain"
)

type overlayEntry struct {
	Entity        string `json:"entity_type"`
	Code          string `json:"code"`
	Category      string `json:"category"`
	Contamination bool   `json:"contamination"`
	Description   string `json:"description"`
}

var exitFunc = os.Exit

func main() {
	exitFunc(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vocab-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("file", "", "JSON overlay file of additional outcome codes (optional)")
	asJSON := fs.Bool("json", false, "print the effective vocabulary as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	registry := domain.DefaultOutcomeRegistry()
	if *file != "" {
		if err := applyOverlay(registry, *file); err != nil {
			fmt.Fprintf(stderr, "vocab-check: %v\n", err)
			return 1
		}
	}
	if err := print(registry, *asJSON, stdout); err != nil {
		fmt.Fprintf(stderr, "vocab-check: %v\n", err)
		return 1
	}
	return 0
}

func applyOverlay(registry *domain.OutcomeRegistry, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var entries []overlayEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	for i, entry := range entries {
		entity := domain.EntityType(entry.Entity)
		if !entity.Valid() {
			return fmt.Errorf("entry %d: unknown entity type %q", i, entry.Entity)
		}
		spec := domain.OutcomeSpec{
			Code:          entry.Code,
			Category:      domain.OutcomeCategory(entry.Category),
			Contamination: entry.Contamination,
			Description:   entry.Description,
		}
		if err := registry.Vocabulary(entity).Register(spec); err != nil {
			return fmt.Errorf("entry %d (%s/%s): %w", i, entry.Entity, entry.Code, err)
		}
	}
	return nil
}

func print(registry *domain.OutcomeRegistry, asJSON bool, w io.Writer) error {
	entities := registry.Entities()
	sort.Slice(entities, func(i, j int) bool { return entities[i] < entities[j] })
	if asJSON {
		out := map[string][]domain.OutcomeSpec{}
		for _, entity := range entities {
			out[string(entity)] = registry.Vocabulary(entity).Specs()
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	for _, entity := range entities {
		fmt.Fprintf(w, "%s:\n", entity)
		for _, spec := range registry.Vocabulary(entity).Specs() {
			marker := ""
			if spec.Contamination {
				marker = " [contamination]"
			}
			fmt.Fprintf(w, "  %-24s %-8s%s  %s\n", spec.Code, spec.Category, marker, spec.Description)
		}
	}
	return nil
}
