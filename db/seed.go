package db

import (
	"context"
	"fmt"
	"os"

	"library_by_email/models"

	"gopkg.in/yaml.v3"
)

// SeedBook is one entry of a seed catalog file:
//
//	books:
//	  - title: El Quijote
//	    author: Cervantes
//	    isbn: "9788491050299"
//	    copies: 1
type SeedBook struct {
	Title  string `yaml:"title"`
	Author string `yaml:"author"`
	ISBN   string `yaml:"isbn"`
	Copies int    `yaml:"copies"`
}

var DefaultSeed = []SeedBook{
	{Title: "Cien Años de Soledad", Author: "G. G. Márquez", ISBN: "9780307474728", Copies: 2},
	{Title: "El Quijote", Author: "Cervantes", ISBN: "9788491050299", Copies: 1},
}

// LoadSeedFile reads a YAML seed catalog. An empty path yields DefaultSeed.
func LoadSeedFile(path string) ([]SeedBook, error) {
	if path == "" {
		return DefaultSeed, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var doc struct {
		Books []SeedBook `yaml:"books"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	for i := range doc.Books {
		if doc.Books[i].Copies == 0 {
			doc.Books[i].Copies = 1
		}
	}
	return doc.Books, nil
}

// SeedBooks registers books only when the active catalog is empty. It
// returns the books it created.
func (r *Repo) SeedBooks(ctx context.Context, seed []SeedBook) ([]models.Book, error) {
	var n int64
	if err := r.DB.WithContext(ctx).Model(&models.Book{}).
		Where("active = ?", true).
		Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, nil
	}
	var created []models.Book
	for _, s := range seed {
		b, err := r.RegisterBook(ctx, RegisterBookInput{
			Title: s.Title, Author: s.Author, ISBN: s.ISBN, Copies: s.Copies,
		})
		if err != nil {
			return created, fmt.Errorf("seed %q: %w", s.ISBN, err)
		}
		created = append(created, *b)
	}
	return created, nil
}
