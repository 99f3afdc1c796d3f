package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/lehigh-university-libraries/shelfwise/internal/collection"
	"github.com/lehigh-university-libraries/shelfwise/internal/export"
	"github.com/lehigh-university-libraries/shelfwise/internal/models"
	"github.com/lehigh-university-libraries/shelfwise/internal/validation"
	"github.com/spf13/cobra"
)

// cliSession is the submission session used by the command line
const cliSession = "cli"

func newBooksCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "books",
		Short: "Manage the book collection",
		Long: `Add, list, remove and export books in the configured collection.

Commands operate directly on the stored snapshot, so they work whether or
not a server is running against the same storage.`,
	}

	cmd.AddCommand(newBooksAddCmd(opts))
	cmd.AddCommand(newBooksListCmd(opts))
	cmd.AddCommand(newBooksRemoveCmd(opts))
	cmd.AddCommand(newBooksExportCmd(opts))

	return cmd
}

func newBooksAddCmd(opts *rootOptions) *cobra.Command {
	var title, author, isbn, category, description, status string
	fields := map[string]*string{
		"title":       &title,
		"author":      &author,
		"isbn":        &isbn,
		"category":    &category,
		"description": &description,
		"status":      &status,
	}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a book and generate its cover",
		Example: `  # Add a book you own
  shelfwise books add --title Dune --author "Frank Herbert" --isbn 9780441013593 --category Sci-Fi

  # Add a book to the wishlist
  shelfwise books add --title Emma --author "Jane Austen" --isbn 9780141439587 --category Classic --status wishlist`,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := make(map[string]string, len(fields))
			for name, value := range fields {
				if *value != "" {
					raw[name] = *value
				}
			}

			// Pre-check before opening storage or contacting a provider
			if _, errs := validation.Validate(raw); errs != nil {
				printFieldErrors(cmd.ErrOrStderr(), errs)
				return fmt.Errorf("invalid book")
			}

			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Fprintln(cmd.OutOrStdout(), "Generating cover...")
			result := a.service.AddBook(cmd.Context(), cliSession, raw)
			if !result.Success {
				printFieldErrors(cmd.ErrOrStderr(), result.Errors)
				if result.Err != nil {
					return result.Err
				}
				return fmt.Errorf("book not added")
			}

			if err := a.books.Add(cmd.Context(), *result.Book); err != nil {
				return fmt.Errorf("failed to save book: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Book added: %q (%s) to %s\n", result.Book.Title, result.Book.ID, shelfName(result.Book.Status))
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Book title")
	cmd.Flags().StringVar(&author, "author", "", "Book author")
	cmd.Flags().StringVar(&isbn, "isbn", "", "ISBN-10 or ISBN-13")
	cmd.Flags().StringVar(&category, "category", "", "Category, e.g. Sci-Fi")
	cmd.Flags().StringVar(&description, "description", "", "Optional description")
	cmd.Flags().StringVar(&status, "status", string(models.StatusOwned), "owned or wishlist")

	return cmd
}

func newBooksListCmd(opts *rootOptions) *cobra.Command {
	var status, sortOpt, output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List books on a shelf",
		Example: `  # Owned books by author
  shelfwise books list --status owned --sort author-asc

  # Wishlist as YAML
  shelfwise books list --status wishlist -o yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opt, err := collection.ParseSort(sortOpt)
			if err != nil {
				return err
			}
			shelf := models.Status(status)
			if shelf != "" && !shelf.Valid() {
				return fmt.Errorf("invalid status %q: must be owned or wishlist", status)
			}

			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			books := a.books.View(opt, shelf)
			switch output {
			case "table":
				return printTable(cmd.OutOrStdout(), books)
			default:
				format, err := export.ParseFormat(output)
				if err != nil || format == export.FormatParquet {
					return fmt.Errorf("unsupported output %q (supported: table, json, yaml)", output)
				}
				return export.Write(cmd.OutOrStdout(), format, books)
			}
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Shelf to show: owned or wishlist (default all)")
	cmd.Flags().StringVar(&sortOpt, "sort", string(collection.SortTitleAsc), "title-asc, title-desc, author-asc or author-desc")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, json or yaml")

	return cmd
}

func newBooksRemoveCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <id>...",
		Short: "Remove books by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, id := range args {
				removed, err := a.books.Remove(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("failed to remove %s: %w", id, err)
				}
				if removed {
					fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", id)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "No book with id %s\n", id)
				}
			}
			return nil
		},
	}
	return cmd
}

func newBooksExportCmd(opts *rootOptions) *cobra.Command {
	var formatName, outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the whole collection",
		Example: `  # Back up to parquet
  shelfwise books export --out books.parquet

  # Print YAML to stdout
  shelfwise books export --format yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if formatName == "" {
				formatName = "json"
				if outPath != "" && outPath != "-" {
					formatName = filepath.Ext(outPath)
				}
			}
			format, err := export.ParseFormat(formatName)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			books := a.books.List()
			if outPath == "" || outPath == "-" {
				return export.Write(cmd.OutOrStdout(), format, books)
			}

			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", outPath, err)
			}
			if err := export.Write(f, format, books); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("failed to close %s: %w", outPath, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d books to %s\n", len(books), displayPath(outPath))
			return nil
		},
	}

	cmd.Flags().StringVar(&formatName, "format", "", "json, yaml or parquet (default from --out extension, else json)")
	cmd.Flags().StringVar(&outPath, "out", "", "Output file (default stdout)")

	return cmd
}

// absPath is swapped in tests
var absPath = filepath.Abs

// displayPath prefers the absolute form of p, falling back to p itself
func displayPath(p string) string {
	abs, err := absPath(p)
	if err != nil {
		return p
	}
	return abs
}

func printTable(w io.Writer, books []models.Book) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tAUTHOR\tISBN\tCATEGORY\tSHELF")
	for _, b := range books {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", b.ID, b.Title, b.Author, b.ISBN, b.Category, b.Status)
	}
	return tw.Flush()
}

func printFieldErrors(w io.Writer, errs validation.FieldErrors) {
	fields := make([]string, 0, len(errs))
	for field := range errs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		label := field
		if field == validation.GeneralKey {
			label = "error"
		}
		fmt.Fprintf(w, "  %s: %s\n", label, strings.Join(errs[field], " "))
	}
}

func shelfName(status models.Status) string {
	if status == models.StatusWishlist {
		return "wishlist"
	}
	return "collection"
}
