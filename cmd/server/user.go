package main

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/garyjia/approval-engine/internal/container"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/repository"
)

type newUser struct {
	Name       string `validate:"required,max=200"`
	Email      string `validate:"omitempty,email"`
	Role       string `validate:"required,oneof=ADMIN APPROVER USER"`
	LarkOpenID string `validate:"omitempty,max=100"`
}

var userInput newUser

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage the user directory",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Add a user to the directory",
	Long: `Create adds a user. The printed id is what clients send in the
X-User-ID header.`,
	Args: cobra.NoArgs,
	RunE: runUserCreate,
}

func init() {
	f := userCreateCmd.Flags()
	f.StringVar(&userInput.Name, "name", "", "display name")
	f.StringVar(&userInput.Email, "email", "", "email address")
	f.StringVar(&userInput.Role, "role", string(entity.RoleUser), "ADMIN, APPROVER or USER")
	f.StringVar(&userInput.LarkOpenID, "lark-open-id", "", "Lark open id for IM delivery")

	userCmd.AddCommand(userCreateCmd)
	rootCmd.AddCommand(userCmd)
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	in := userInput
	in.Role = strings.ToUpper(strings.TrimSpace(in.Role))
	if err := validator.New().Struct(in); err != nil {
		return fmt.Errorf("invalid user: %w", err)
	}

	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync()

	dbCfg := container.FromAppConfig(cfg).Database
	bundle, err := container.ProvideDatabase(&dbCfg, logger)
	if err != nil {
		return err
	}
	defer bundle.DB.Close()

	user := &entity.User{
		Name:       in.Name,
		Email:      in.Email,
		Role:       entity.Role(in.Role),
		LarkOpenID: in.LarkOpenID,
	}
	if err := repository.NewUserRepository(bundle.DB.DB, logger).Create(cmd.Context(), user); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "created user %d (%s, %s)\n", user.ID, user.Name, user.Role)
	return nil
}
