package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/studysync/studysync/internal/account"
	"github.com/studysync/studysync/internal/session"
)

// LoginCmd signs in and persists the session locally.
type LoginCmd struct {
	apiFlags `embed:""`

	Email    string `arg:"" help:"Account email"`
	Password string `help:"Password (prompted when omitted)"`
}

func (c *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	client, store, err := c.build(globals)
	if err != nil {
		return err
	}

	password := c.Password
	if password == "" {
		fmt.Print("Password: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimSpace(line)
	}

	svc := account.NewService(client, store)
	sess, err := svc.SignIn(ctx, c.Email, password)
	if err != nil {
		return err
	}

	fmt.Printf("Signed in as %s (%s)\n", sess.UserName, sess.UserID)
	return nil
}

// LogoutCmd revokes the token best-effort and clears the local session.
type LogoutCmd struct {
	apiFlags `embed:""`
}

func (c *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	client, store, err := c.build(globals)
	if err != nil {
		return err
	}

	if err := account.NewService(client, store).SignOut(ctx); err != nil {
		return err
	}

	fmt.Println("Signed out.")
	return nil
}

// WhoamiCmd prints the signed-in user, optionally refreshing the cached
// profile from the backend.
type WhoamiCmd struct {
	apiFlags `embed:""`

	Refresh bool `help:"Refetch the profile from the backend" default:"false"`
}

func (c *WhoamiCmd) Run(ctx context.Context, globals *Globals) error {
	client, store, err := c.build(globals)
	if err != nil {
		return err
	}

	sess, err := store.Get(ctx)
	if err != nil {
		if errors.Is(err, session.ErrNotSignedIn) {
			fmt.Println("Not signed in.")
			return nil
		}
		return err
	}

	fmt.Printf("%s (%s)", sess.UserName, sess.UserID)
	if sess.Role != "" {
		fmt.Printf(" role=%s", sess.Role)
	}
	fmt.Println()

	if claims, err := session.ParseClaims(sess.Token); err == nil && claims.ExpiresAt != nil {
		if claims.IsExpired() {
			fmt.Println("Session token has expired; sign in again.")
		} else {
			fmt.Printf("Token expires %s\n", claims.ExpiresAt.Format(time.RFC3339))
		}
	}

	if c.Refresh || len(sess.Profile) > 0 {
		profile, err := account.NewService(client, store).Profile(ctx, c.Refresh)
		if err != nil {
			return err
		}

		var pretty map[string]any
		if err := json.Unmarshal(profile, &pretty); err == nil {
			out, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Println(string(out))
		}
	}

	return nil
}
