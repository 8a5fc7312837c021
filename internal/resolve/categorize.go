// Package resolve classifies conflicted files and applies per-category
// merge resolutions.
package resolve

import (
	"path/filepath"
	"strings"
)

// Category groups files that share a conflict-resolution policy.
type Category string

const (
	CategoryDocs   Category = "docs"
	CategoryTest   Category = "test"
	CategorySchema Category = "schema"
	CategoryConfig Category = "config"
	CategorySource Category = "source"
)

// Strategy names how a conflicted file is resolved.
type Strategy string

const (
	// StrategyUnion keeps both sides: additive content should never
	// silently drop either one.
	StrategyUnion Strategy = "union"
	// StrategyTheirs takes the incoming branch: schemas evolve forward.
	StrategyTheirs Strategy = "theirs"
	// StrategyOurs keeps the target branch: config drift needs human review.
	StrategyOurs Strategy = "ours"
	// StrategyRecursive defers to the three-way merge driver, taking the
	// incoming side when it cannot reconcile.
	StrategyRecursive Strategy = "recursive"
)

// CategorizeFile classifies a changed file by extension and path, in
// priority order: docs, test, schema, config, then source as the default.
func CategorizeFile(path string) Category {
	lower := strings.ToLower(path)
	base := filepath.Base(lower)
	ext := filepath.Ext(base)

	if ext == ".md" || ext == ".markdown" || strings.HasPrefix(base, "readme") {
		return CategoryDocs
	}

	if strings.Contains(lower, "__tests__") ||
		strings.Contains(lower, "test") ||
		strings.Contains(lower, "spec") {
		return CategoryTest
	}

	if ext == ".sql" || strings.Contains(lower, "schema") || strings.Contains(lower, "migration") {
		return CategorySchema
	}

	switch ext {
	case ".json", ".yaml", ".yml", ".toml", ".ini":
		return CategoryConfig
	}
	if strings.HasPrefix(base, ".") || strings.Contains(base, "config") {
		return CategoryConfig
	}

	return CategorySource
}

// StrategyFor maps a category to its resolution strategy.
func StrategyFor(c Category) Strategy {
	switch c {
	case CategoryDocs, CategoryTest:
		return StrategyUnion
	case CategorySchema:
		return StrategyTheirs
	case CategoryConfig:
		return StrategyOurs
	default:
		return StrategyRecursive
	}
}

// describe returns the human explanation recorded in resolution plans.
func describe(c Category) string {
	switch c {
	case CategoryDocs:
		return "documentation: union merge keeps both sides"
	case CategoryTest:
		return "tests: union merge keeps both sides"
	case CategorySchema:
		return "schema: incoming branch wins, schemas evolve forward"
	case CategoryConfig:
		return "config: target branch wins, drift needs human review"
	default:
		return "source: three-way merge, incoming side on failure"
	}
}

// PlanEntry is one file's planned resolution within a merge attempt.
type PlanEntry struct {
	File        string   `json:"file"`
	Category    Category `json:"category"`
	Strategy    Strategy `json:"strategy"`
	Description string   `json:"description"`
}

// BuildPlan categorizes each file and pairs it with its strategy. The plan
// is ephemeral: built when a dry run reports conflicts, consumed
// immediately, discarded when the merge commits or aborts.
func BuildPlan(files []string) []PlanEntry {
	plan := make([]PlanEntry, 0, len(files))
	for _, f := range files {
		cat := CategorizeFile(f)
		plan = append(plan, PlanEntry{
			File:        f,
			Category:    cat,
			Strategy:    StrategyFor(cat),
			Description: describe(cat),
		})
	}
	return plan
}
