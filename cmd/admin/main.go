// Command admin is the out-of-band administration tool.
//
// The admin flag is never writable through the OAuth path; this CLI is the
// only thing that flips it. It also sets password hashes for local accounts.
//
// Usage:
//
//	admin -db data/guildhub.db promote <discord-id>
//	admin -db data/guildhub.db demote <discord-id>
//	admin -db data/guildhub.db set-password <email> <password>
//	admin -db data/guildhub.db list
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sakif/guildhub/internal/auth"
	"github.com/sakif/guildhub/internal/repository/sqlite"
	"github.com/sakif/guildhub/internal/service"
)

func main() {
	dbPath := flag.String("db", "data/guildhub.db", "path to the SQLite database")
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	db, err := sqlite.New(*dbPath)
	if err != nil {
		fatal("opening database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	switch cmd := flag.Arg(0); cmd {
	case "promote", "demote":
		if flag.NArg() != 2 {
			usage()
			os.Exit(2)
		}
		discordID := flag.Arg(1)

		user, err := db.GetByDiscordID(ctx, discordID)
		if err != nil {
			fatal("looking up user %s: %v", discordID, err)
		}

		admin := cmd == "promote"
		if err := db.SetAdmin(ctx, user.ID, admin); err != nil {
			fatal("setting admin flag: %v", err)
		}
		fmt.Printf("%s: admin=%t\n", user.Username, admin)

	case "set-password":
		if flag.NArg() != 3 {
			usage()
			os.Exit(2)
		}
		email := service.NormalizeEmail(flag.Arg(1))
		if email == "" {
			fatal("invalid email address %q", flag.Arg(1))
		}

		user, err := db.GetByEmail(ctx, email)
		if err != nil {
			fatal("looking up user %s: %v", email, err)
		}

		hash, err := auth.NewPasswordService().Hash(flag.Arg(2))
		if err != nil {
			fatal("hashing password: %v", err)
		}

		user.PasswordHash = hash
		if err := db.Update(ctx, user); err != nil {
			fatal("updating user: %v", err)
		}
		fmt.Printf("%s: password updated\n", user.Username)

	case "list":
		users, err := db.List(ctx)
		if err != nil {
			fatal("listing users: %v", err)
		}
		for _, u := range users {
			fmt.Printf("%-24s discord=%s admin=%t\n", u.Username, u.DiscordID, u.Admin)
		}

	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  admin [-db path] promote <discord-id>
  admin [-db path] demote <discord-id>
  admin [-db path] set-password <email> <password>
  admin [-db path] list`)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
