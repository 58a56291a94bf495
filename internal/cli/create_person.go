package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/entrypoint"
)

// CreatePersonCommand registers a person account from the command line.
// Staff and admin accounts are prompted for a password.
type CreatePersonCommand struct {
	Username string
	Role     string
	Email    string
	FullName string
	Phone    string
}

func newCreatePersonCommand(loadConfig func() *config.Config, stdin *os.File) *cobra.Command {
	opts := &CreatePersonCommand{}
	cmd := &cobra.Command{
		Use:   "create-person",
		Short: "Create a borrower, staff or admin account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			role := entities.Role(strings.ToLower(opts.Role))
			if !role.Valid() {
				return fmt.Errorf("invalid --role %q: expected borrower, staff or admin", opts.Role)
			}

			var password string
			if role.Includes(entities.RoleStaff) {
				var err error
				password, err = promptPassword(cmd.OutOrStdout(), stdin)
				if err != nil {
					return err
				}
			}

			cfg := loadConfig()
			app, err := entrypoint.NewApp(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			person, err := opts.create(auth.NewService(app.DB.DB, cfg.Auth), role, password)
			if err != nil {
				return err
			}
			app.Audit.LogPerson(0, "person_create", person.ID, fmt.Sprintf("Created %s %s from the command line", person.Role, person.Username))

			fmt.Fprintf(cmd.OutOrStdout(), "Created %s %q (id %d)\n", person.Role, person.Username, person.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Username, "username", "", "Login name (required)")
	cmd.Flags().StringVar(&opts.Role, "role", string(entities.RoleBorrower), "borrower, staff or admin")
	cmd.Flags().StringVar(&opts.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&opts.FullName, "name", "", "Full name")
	cmd.Flags().StringVar(&opts.Phone, "phone", "", "Phone number")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func (opts *CreatePersonCommand) create(accounts *auth.Service, role entities.Role, password string) (*entities.Person, error) {
	return accounts.CreateAccount(auth.AccountInput{
		Username: opts.Username,
		Email:    opts.Email,
		FullName: opts.FullName,
		Phone:    opts.Phone,
		Password: password,
		Role:     role,
	})
}

// promptPassword reads a password twice with echo disabled. When stdin is
// not a terminal a single line is read instead, so scripts can pipe it in.
func promptPassword(out io.Writer, stdin *os.File) (string, error) {
	fd := int(stdin.Fd())
	if !term.IsTerminal(fd) {
		return readPasswordLine(stdin)
	}

	fmt.Fprint(out, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Fprint(out, "Repeat password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return validatePassword(string(first))
}

func readPasswordLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return validatePassword(strings.TrimRight(line, "\r\n"))
}

func validatePassword(password string) (string, error) {
	if err := auth.ValidatePassword(password); err != nil {
		return "", err
	}
	return password, nil
}
