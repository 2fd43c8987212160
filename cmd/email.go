package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ciciliostudio/loginpilot/internal/config"
)

var emailCmd = &cobra.Command{
	Use:   "email",
	Short: "Configure the email two-factor code reader",
}

var emailSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactively configure IMAP or Gmail code reading",
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := bufio.NewReader(os.Stdin)

		provider := prompt(reader, "Provider (imap/gmail)", cfg.Email.Provider)
		switch provider {
		case "imap":
			if err := setupIMAP(reader); err != nil {
				return err
			}
		case "gmail":
			if err := setupGmail(reader); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown provider %q (expected imap or gmail)", provider)
		}
		cfg.Email.Provider = provider

		loader := config.NewLoader(projectDir)
		if err := loader.Save(cfg); err != nil {
			return err
		}
		fmt.Printf("Email reader configured. Settings saved to %s\n", loader.Path())
		return nil
	},
}

func setupIMAP(reader *bufio.Reader) error {
	cfg.Email.IMAP.Host = prompt(reader, "IMAP host", cfg.Email.IMAP.Host)
	portStr := prompt(reader, "IMAP port", strconv.Itoa(cfg.Email.IMAP.Port))
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port %q", portStr)
	}
	cfg.Email.IMAP.Port = port
	cfg.Email.IMAP.Username = prompt(reader, "IMAP username", cfg.Email.IMAP.Username)

	password, err := promptSecret("IMAP password")
	if err != nil {
		return err
	}
	if password != "" {
		cfg.Email.IMAP.Password = password
	}
	return nil
}

func setupGmail(reader *bufio.Reader) error {
	cfg.Email.Gmail.Email = prompt(reader, "Gmail address", cfg.Email.Gmail.Email)
	cfg.Email.Gmail.ClientID = prompt(reader, "OAuth client id", cfg.Email.Gmail.ClientID)

	secret, err := promptSecret("OAuth client secret")
	if err != nil {
		return err
	}
	if secret != "" {
		cfg.Email.Gmail.ClientSecret = secret
	}

	token, err := promptSecret("OAuth refresh token")
	if err != nil {
		return err
	}
	if token != "" {
		cfg.Email.Gmail.RefreshToken = token
	}
	return nil
}

func prompt(reader *bufio.Reader, label, current string) string {
	if current != "" {
		fmt.Printf("%s [%s]: ", label, current)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	return line
}

// promptSecret reads without echo so credentials never land in scrollback.
func promptSecret(label string) (string, error) {
	fmt.Printf("%s (hidden, empty keeps current): ", label)
	value, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(value)), nil
}

func init() {
	emailCmd.AddCommand(emailSetupCmd)
	rootCmd.AddCommand(emailCmd)
}
