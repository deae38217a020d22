package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli"

	"github.com/warpdl/queuedl/internal/config"
	"github.com/warpdl/queuedl/pkg/credman"
)

var (
	loginValue string

	loginFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "value",
			Usage:       "the secret; read from standard input when empty",
			Destination: &loginValue,
		},
	}

	// loginInput is where login reads the secret when --value is empty.
	loginInput io.Reader = os.Stdin
)

var errUnknownSecret = fmt.Errorf("unknown credential name, want one of %s, %s, %s",
	credman.BotToken, credman.SessionPassword, credman.RPCSecret)

func secretName(ctx *cli.Context) (string, error) {
	name := strings.TrimSpace(ctx.Args().First())
	switch name {
	case credman.BotToken, credman.SessionPassword, credman.RPCSecret:
		return name, nil
	case "":
		return "", errors.New("missing credential name")
	}
	return "", errUnknownSecret
}

func openSecrets() (*credman.SecretManager, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return credman.Open(dir)
}

func login(ctx *cli.Context) error {
	name, err := secretName(ctx)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	value := loginValue
	if value == "" {
		line, err := bufio.NewReader(loginInput).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("login: read secret: %w", err)
		}
		value = strings.TrimSpace(line)
	}
	if value == "" {
		return errors.New("login: empty secret")
	}
	sm, err := openSecrets()
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if err := sm.Set(name, value); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	fmt.Printf("Stored %s\n", name)
	return nil
}

func logout(ctx *cli.Context) error {
	name, err := secretName(ctx)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	sm, err := openSecrets()
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if err := sm.Delete(name); err != nil {
		if errors.Is(err, credman.ErrSecretNotFound) {
			fmt.Printf("%s was not stored\n", name)
			return nil
		}
		return fmt.Errorf("logout: %w", err)
	}
	fmt.Printf("Deleted %s\n", name)
	return nil
}
