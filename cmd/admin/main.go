// Package main provides the fleetward admin CLI: bootstrap and inspect users and
// permission groups directly against the Store, without going through the HTTP API.
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/fleetward/fleetward/internal/config"
	"github.com/fleetward/fleetward/internal/models"
	"github.com/fleetward/fleetward/internal/permission"
	"github.com/fleetward/fleetward/internal/store"
	"github.com/fleetward/fleetward/internal/store/mongostore"
	"github.com/fleetward/fleetward/pkg/auth"
	"github.com/fleetward/fleetward/pkg/database"
	"github.com/fleetward/fleetward/pkg/logger"
)

const superAdminGroupName = "$superadmins"

func main() {
	if len(os.Args) < 3 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&cfg.Logger)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(&cfg.Database, log)
	if err != nil {
		log.Error(ctx, "Failed to connect to database", err)
		os.Exit(1)
	}
	defer dbClient.Close(ctx)

	st := mongostore.New(dbClient)

	switch os.Args[1] {
	case "user":
		if err := cliUser(ctx, st, os.Args[2], os.Args[3:]); err != nil {
			fmt.Printf("user %s failed: %v\n", os.Args[2], err)
			os.Exit(1)
		}
	case "group":
		if err := cliGroup(ctx, st, os.Args[2], os.Args[3:]); err != nil {
			fmt.Printf("group %s failed: %v\n", os.Args[2], err)
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("usage: admin <user|group> <list|delete|init-admin> [args...]")
}

func pageAll() store.Page {
	return store.Page{Limit: 1000, Offset: 0}
}

func cliUser(ctx context.Context, st *mongostore.Store, cmd string, args []string) error {
	switch cmd {
	case "list":
		users, err := st.ListUsers(ctx, pageAll())
		if err != nil {
			return err
		}
		fmt.Printf("%-38s %-24s %-22s\n", "ID", "Username", "Last Login")
		for _, u := range users {
			lastLogin := "never"
			if u.LastLogin != nil {
				lastLogin = u.LastLogin.Format(time.RFC3339)
			}
			fmt.Printf("%-38s %-24s %-22s\n", u.ID, u.Username, lastLogin)
		}
		return nil
	case "delete":
		if len(args) < 1 {
			return fmt.Errorf("usage: admin user delete <id>")
		}
		if err := st.DeleteUser(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted user: %s\n", args[0])
		return nil
	case "init-admin":
		return initAdmin(ctx, st)
	default:
		return fmt.Errorf("unknown user subcommand %q", cmd)
	}
}

func cliGroup(ctx context.Context, st *mongostore.Store, cmd string, args []string) error {
	switch cmd {
	case "list":
		groups, err := st.ListGroups(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%-38s %-24s\n", "ID", "Name")
		for _, g := range groups {
			fmt.Printf("%-38s %-24s\n", g.ID, g.Name)
		}
		return nil
	case "delete":
		if len(args) < 1 {
			return fmt.Errorf("usage: admin group delete <id>")
		}
		if err := st.DeleteGroup(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted group: %s\n", args[0])
		return nil
	default:
		return fmt.Errorf("unknown group subcommand %q", cmd)
	}
}

// initAdmin creates the "$superadmins" permission group and an "admin" user with a
// randomly generated password, refusing to run if "admin" already exists.
func initAdmin(ctx context.Context, st *mongostore.Store) error {
	if existing, err := st.GetUserByUsername(ctx, "admin"); err != nil {
		return err
	} else if existing != nil {
		return fmt.Errorf("user \"admin\" already exists")
	}

	groupPerms := `[".*","@runner","@wheel",{"@fleetward":["` + permission.SuperAdmin + `"]}]`
	group := &models.PermissionGroup{
		ID:    uuid.NewString(),
		Name:  superAdminGroupName,
		Perms: groupPerms,
	}
	if err := st.CreateGroup(ctx, group); err != nil {
		return fmt.Errorf("failed to create admin group: %w", err)
	}

	password, err := randomPassword(20)
	if err != nil {
		return fmt.Errorf("failed to generate password: %w", err)
	}

	hasher := auth.NewPasswordHasher(auth.BcryptCost)
	hash, err := hasher.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     "admin",
		PasswordHash: hash,
	}
	if err := st.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	if err := st.AddMembership(ctx, user.ID, group.ID); err != nil {
		return fmt.Errorf("failed to add admin to group: %w", err)
	}

	fmt.Println("Created ADMIN user (!)")
	fmt.Println("\tUsername: admin")
	fmt.Printf("\tPassword: %s\n", password)
	return nil
}

const passwordAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func randomPassword(length int) (string, error) {
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(passwordAlphabet))))
		if err != nil {
			return "", err
		}
		out[i] = passwordAlphabet[n.Int64()]
	}
	return string(out), nil
}
