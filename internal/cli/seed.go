package cli

import (
	"fmt"
	"log"
	"os"
	"time"

	"exam-quiz-service/internal/app"
	"exam-quiz-service/internal/config"
	"exam-quiz-service/internal/domain"
	redisstore "exam-quiz-service/internal/infra/redis"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Categories []domain.Category `yaml:"categories"`
}

// NewSeedCmd loads categories from YAML into the configured document store.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load question banks into the document store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.Seed.File
			}
			if file == "" {
				return fmt.Errorf("no seed file given")
			}
			if cfg.Store.Driver == "memory" {
				return fmt.Errorf("seeding the memory store has no lasting effect, pick another driver")
			}
			categories, err := loadSeedFile(file)
			if err != nil {
				return err
			}

			b, err := openBackend(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer b.Close()
			if err := app.SeedCategories(cmd.Context(), b.docs, categories); err != nil {
				return err
			}
			// running servers sharing this Redis drop their cached banks
			if b.redis != nil {
				cache := redisstore.NewCategoryRepository(b.redis, app.NewDocumentCategoryLoader(b.docs), time.Minute)
				for _, c := range categories {
					if err := cache.Invalidate(cmd.Context(), c.ID); err != nil {
						log.Printf("invalidate cached category %s failed: %v", c.ID, err)
					}
				}
			}
			log.Printf("seeded %d categories from %s", len(categories), file)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML file with categories (defaults to seed.file)")
	return cmd
}

func loadSeedFile(path string) ([]domain.Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, c := range f.Categories {
		if c.ID == "" {
			return nil, fmt.Errorf("category %d in %s has no id", i, path)
		}
	}
	return f.Categories, nil
}

// seedCategories returns the categories from path, or a small built-in
// bank when no file is configured.
func seedCategories(path string) ([]domain.Category, error) {
	if path != "" {
		return loadSeedFile(path)
	}
	return sampleCategories(), nil
}

func sampleCategories() []domain.Category {
	return []domain.Category{
		{
			ID:   "arithmetic",
			Name: "Arithmetic",
			Tests: []domain.Question{
				{Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectAnswer: "4"},
				{Prompt: "What is 7 * 6?", Options: []string{"42", "36", "48"}, CorrectAnswer: "42"},
				{Prompt: "What is 81 / 9?", Options: []string{"8", "9", "7"}, CorrectAnswer: "9"},
				{Prompt: "What is 15 - 8?", Options: []string{"6", "7", "8"}, CorrectAnswer: "7"},
			},
			QuestionsPerTest: 3,
		},
		{
			ID:   "geography",
			Name: "Geography",
			Tests: []domain.Question{
				{Prompt: "Capital of France?", Options: []string{"Paris", "Lyon", "Nice"}, CorrectAnswer: "Paris"},
				{Prompt: "Longest river in Africa?", Options: []string{"Congo", "Nile", "Niger"}, CorrectAnswer: "Nile"},
				{Prompt: "Largest ocean?", Options: []string{"Atlantic", "Indian", "Pacific"}, CorrectAnswer: "Pacific"},
			},
			TimeLimitSeconds: 300,
		},
	}
}
