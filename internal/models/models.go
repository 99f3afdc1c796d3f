package models

// Status is the shelf a book lives on
type Status string

const (
	StatusOwned    Status = "owned"
	StatusWishlist Status = "wishlist"
)

// Valid reports whether s is one of the known shelves
func (s Status) Valid() bool {
	return s == StatusOwned || s == StatusWishlist
}

// Book represents one tracked book in a collection.
// JSON names match the snapshot written by the browser client.
type Book struct {
	ID            string `json:"id" yaml:"id" parquet:"id"`
	Title         string `json:"title" yaml:"title" parquet:"title"`
	Author        string `json:"author" yaml:"author" parquet:"author"`
	ISBN          string `json:"isbn" yaml:"isbn" parquet:"isbn"`
	Category      string `json:"category" yaml:"category" parquet:"category"`
	Description   string `json:"description,omitempty" yaml:"description,omitempty" parquet:"description"`
	CoverImageURL string `json:"coverImageUrl" yaml:"coverImageUrl" parquet:"cover_image_url"`
	Status        Status `json:"status" yaml:"status" parquet:"status"`
}

// BookInput is a validated add-book submission, before a cover exists
type BookInput struct {
	Title       string
	Author      string
	ISBN        string
	Category    string
	Description string
	Status      Status
}

// NewBook assembles a Book from validated input and a generated cover
func NewBook(id string, input BookInput, coverImageURL string) Book {
	return Book{
		ID:            id,
		Title:         input.Title,
		Author:        input.Author,
		ISBN:          input.ISBN,
		Category:      input.Category,
		Description:   input.Description,
		CoverImageURL: coverImageURL,
		Status:        input.Status,
	}
}
