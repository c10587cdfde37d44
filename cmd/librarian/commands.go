package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rl1809/library-circulation/internal/adapter/storage"
	"github.com/rl1809/library-circulation/internal/core/domain"
	"github.com/rl1809/library-circulation/internal/core/service"
)

func newLibrarianCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "librarian",
		Short: "Manage librarian accounts",
	}

	var email, name string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a librarian account; the password is read from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), fmt.Sprintf("Password for %s: ", email))
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			if password == "" {
				return fmt.Errorf("password cannot be empty")
			}

			auth := service.NewAuthService(a.store, storage.NewMemorySessionStore(), 0, a.log)
			id, err := auth.RegisterLibrarian(cmd.Context(), email, name, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added librarian %s with ID %d\n", domain.NormalizeEmail(email), id)
			return nil
		},
	}
	add.Flags().StringVar(&email, "email", "", "login email")
	add.Flags().StringVar(&name, "name", "", "display name")
	add.MarkFlagRequired("email")

	cmd.AddCommand(add)
	return cmd
}

func newMemberCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Manage members",
	}

	var m domain.Member
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			member, err := service.NewMemberService(a.store, a.log).Register(cmd.Context(), m)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added member '%s' with ID %d\n", member.FullName, member.ID)
			return nil
		},
	}
	add.Flags().StringVar(&m.FullName, "name", "", "full name")
	add.Flags().StringVar(&m.Email, "email", "", "email")
	add.Flags().StringVar(&m.Phone, "phone", "", "phone")
	add.Flags().StringVar(&m.Address, "address", "", "address")
	add.Flags().StringVar(&m.Department, "department", "", "department")
	add.Flags().StringVar(&m.Semester, "semester", "", "semester")
	add.MarkFlagRequired("name")

	cmd.AddCommand(add)
	return cmd
}

func newBookCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Manage the catalog",
	}

	var b service.NewBook
	add := &cobra.Command{
		Use:   "add",
		Short: "Catalog a title with all copies available",
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := service.NewCatalogService(a.store, a.log).AddBook(cmd.Context(), b)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added book '%s' with ID %d (%d copies)\n", book.Title, book.ID, book.CopiesTotal)
			return nil
		},
	}
	add.Flags().StringVar(&b.Title, "title", "", "title")
	add.Flags().StringVar(&b.Author, "author", "", "author")
	add.Flags().StringVar(&b.ISBN, "isbn", "", "ISBN")
	add.Flags().IntVar(&b.CopiesTotal, "copies", 1, "number of copies")
	add.MarkFlagRequired("title")

	list := &cobra.Command{
		Use:   "list",
		Short: "List cataloged books",
		RunE: func(cmd *cobra.Command, args []string) error {
			search, _ := cmd.Flags().GetString("search")
			page, err := service.NewCatalogService(a.store, a.log).ListBooks(cmd.Context(), domain.BookQuery{Search: search, PageSize: 100})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-5s %-30s %-25s %-9s\n", "ID", "Title", "Author", "Available")
			fmt.Fprintln(out, strings.Repeat("-", 72))
			for _, book := range page.Items {
				fmt.Fprintf(out, "%-5d %-30s %-25s %d/%d\n",
					book.ID,
					truncateString(book.Title, 30),
					truncateString(book.Author, 25),
					book.CopiesAvailable,
					book.CopiesTotal)
			}
			return nil
		},
	}
	list.Flags().String("search", "", "filter by title, author or ISBN")

	cmd.AddCommand(add, list)
	return cmd
}

// readPassword reads without echo from a terminal, or one line otherwise.
func readPassword(in io.Reader, prompt io.Writer, label string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func truncateString(s string, maxLength int) string {
	if len(s) <= maxLength {
		return s
	}
	return s[:maxLength-3] + "..."
}
