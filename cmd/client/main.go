// Command client is the terminal front end: it signs in, captures a face
// still from an image file, files OD requests and runs the admin review.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"campusattend/internal/apperr"
	"campusattend/internal/client"
)

const usage = `usage: client [flags] <command> [args]

commands:
  login -u USER -p PASS       sign in and store the token
  register ...                create an account and sign in
  logout                      forget the stored token
  whoami                      show the signed-in identity
  mark -image FILE [-kiosk]   capture a still and mark attendance
  upload-od -file FILE ...    file an OD request
  review [-status S] [-q T]   list OD requests (admin)
  show -id ID                 show one OD request (admin)
  approve|reject -id ID       decide an OD request (admin)
  watch                       refresh the dashboard until interrupted
`

type app struct {
	api     *client.API
	session *client.Session
	router  client.Router
	log     *zap.Logger
}

func main() {
	home, _ := os.UserHomeDir()
	server := flag.String("server", envOr("CAMPUSATTEND_SERVER", "http://localhost:5000"), "API base URL")
	tokenFile := flag.String("token-file", filepath.Join(home, ".config", "campusattend", "token"), "where the session token is kept")
	timeout := flag.Duration("timeout", 30*time.Second, "per-request timeout")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage); flag.PrintDefaults() }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	zcfg := zap.NewDevelopmentConfig()
	zcfg.Encoding = "console"
	if !*verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	zl, err := zcfg.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.NewAPI(*server, client.FileTokens{Path: *tokenFile}, *timeout)
	a := &app{api: api, session: client.NewSession(api), log: zl}

	if err := a.run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			fmt.Fprintf(os.Stderr, "error: %s (%s)\n", ae.Message, ae.Code)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		return a.login(ctx, args)
	case "register":
		return a.register(ctx, args)
	case "logout":
		if err := a.session.Logout(); err != nil {
			return err
		}
		fmt.Println("signed out")
		return nil
	case "whoami":
		return a.whoami(ctx)
	case "mark":
		return a.mark(ctx, args)
	case "upload-od":
		return a.uploadOD(ctx, args)
	case "review":
		return a.review(ctx, args)
	case "show":
		return a.show(ctx, args)
	case "approve", "reject":
		return a.decide(ctx, cmd, args)
	case "watch":
		return a.watch(ctx)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// require restores the session and checks that the router lets it reach path.
func (a *app) require(ctx context.Context, path string) error {
	if err := a.session.Restore(ctx); err != nil {
		return err
	}
	d := a.router.Resolve(a.session, path)
	switch d.Action {
	case client.Render:
		return nil
	case client.Redirect:
		if d.Path == client.PathLogin {
			return apperr.With(apperr.ErrUnauthorized, "not signed in; run `client login`")
		}
		return apperr.With(apperr.ErrForbidden, "this command is not available for your role")
	default:
		return errors.New("session still loading")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
