package cmd

import (
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/nexhire/internal/admin"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage access to the activity console",
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Print the bcrypt hash to put under admin.password-hash",
	Run: func(_ *cobra.Command, _ []string) {
		hashPassword()
	},
}

func init() {
	adminCmd.AddCommand(hashPasswordCmd)
	rootCmd.AddCommand(adminCmd)
}

func hashPassword() {
	logger := mustLogger(true)

	notEmpty := func(input string) error {
		if input == "" {
			return errors.New("password must not be empty")
		}
		return nil
	}

	password, err := (&promptui.Prompt{Label: "Password", Mask: '*', Validate: notEmpty}).Run()
	if err != nil {
		logger.Fatal("exiting", zap.Error(err))
	}

	confirm, err := (&promptui.Prompt{Label: "Repeat password", Mask: '*'}).Run()
	if err != nil {
		logger.Fatal("exiting", zap.Error(err))
	}
	if confirm != password {
		logger.Fatal("passwords do not match")
	}

	hash, err := admin.HashPassword(password)
	if err != nil {
		logger.Fatal("hashing the password", zap.Error(err))
	}

	fmt.Println(hash)
}
