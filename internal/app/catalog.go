package app

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"exam-quiz-service/internal/domain"
)

// DocumentCategoryLoader reads categories straight from the document store.
// Cache layers wrap it.
type DocumentCategoryLoader struct {
	docs DocumentStore
}

func NewDocumentCategoryLoader(docs DocumentStore) *DocumentCategoryLoader {
	return &DocumentCategoryLoader{docs: docs}
}

func (l *DocumentCategoryLoader) LoadCategory(ctx context.Context, categoryID string) (domain.Category, error) {
	doc, err := l.docs.Get(ctx, domain.CategoriesCollection, categoryID)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return domain.Category{}, domain.ErrCategoryNotFound
	}
	if err != nil {
		return domain.Category{}, fmt.Errorf("load category: %w", err)
	}
	var category domain.Category
	if err := doc.Decode(&category); err != nil {
		return domain.Category{}, err
	}
	category.ID = doc.ID
	return category, nil
}

func (l *DocumentCategoryLoader) LoadCategories(ctx context.Context) ([]domain.CategorySummary, error) {
	docs, err := l.docs.List(ctx, domain.CategoriesCollection)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	summaries := make([]domain.CategorySummary, 0, len(docs))
	for _, doc := range docs {
		var head struct {
			Name string `json:"name"`
		}
		if err := doc.Decode(&head); err != nil {
			return nil, err
		}
		summaries = append(summaries, domain.CategorySummary{ID: doc.ID, Name: head.Name})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Name != summaries[j].Name {
			return summaries[i].Name < summaries[j].Name
		}
		return summaries[i].ID < summaries[j].ID
	})
	return summaries, nil
}

// SeedCategories writes categories under their own ids, replacing existing ones.
func SeedCategories(ctx context.Context, docs DocumentStore, categories []domain.Category) error {
	for _, c := range categories {
		if c.ID == "" {
			return fmt.Errorf("category %q has no id", c.Name)
		}
		fields, err := domain.EncodeFields(c)
		if err != nil {
			return err
		}
		if err := docs.Set(ctx, domain.CategoriesCollection, c.ID, fields); err != nil {
			return fmt.Errorf("seed category %s: %w", c.ID, err)
		}
	}
	return nil
}
