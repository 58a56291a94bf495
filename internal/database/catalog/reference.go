package catalog

import (
	"context"
	"strings"

	"github.com/mrlokans/librarian/internal/entities"
)

func (r *Repository) CreateAuthor(ctx context.Context, name string) (*entities.Author, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrNameRequired
	}
	author := &entities.Author{Name: strings.TrimSpace(name)}
	if err := r.db.WithContext(ctx).Create(author).Error; err != nil {
		return nil, translate("create author", err)
	}
	return author, nil
}

func (r *Repository) ListAuthors(ctx context.Context) ([]entities.Author, error) {
	authors := []entities.Author{}
	err := r.db.WithContext(ctx).Order("name ASC").Find(&authors).Error
	return authors, err
}

func (r *Repository) CreatePublisher(ctx context.Context, name string) (*entities.Publisher, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrNameRequired
	}
	publisher := &entities.Publisher{Name: strings.TrimSpace(name)}
	if err := r.db.WithContext(ctx).Create(publisher).Error; err != nil {
		return nil, translate("create publisher", err)
	}
	return publisher, nil
}

func (r *Repository) ListPublishers(ctx context.Context) ([]entities.Publisher, error) {
	publishers := []entities.Publisher{}
	err := r.db.WithContext(ctx).Order("name ASC").Find(&publishers).Error
	return publishers, err
}

func (r *Repository) CreateCategory(ctx context.Context, name string) (*entities.Category, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrNameRequired
	}
	category := &entities.Category{Name: strings.TrimSpace(name)}
	if err := r.db.WithContext(ctx).Create(category).Error; err != nil {
		return nil, translate("create category", err)
	}
	return category, nil
}

func (r *Repository) ListCategories(ctx context.Context) ([]entities.Category, error) {
	categories := []entities.Category{}
	err := r.db.WithContext(ctx).Order("name ASC").Find(&categories).Error
	return categories, err
}

func (r *Repository) CreateBookshelf(ctx context.Context, name, location string) (*entities.Bookshelf, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrNameRequired
	}
	shelf := &entities.Bookshelf{Name: strings.TrimSpace(name), Location: location}
	if err := r.db.WithContext(ctx).Create(shelf).Error; err != nil {
		return nil, translate("create bookshelf", err)
	}
	return shelf, nil
}

func (r *Repository) ListBookshelves(ctx context.Context) ([]entities.Bookshelf, error) {
	shelves := []entities.Bookshelf{}
	err := r.db.WithContext(ctx).Order("name ASC").Find(&shelves).Error
	return shelves, err
}
