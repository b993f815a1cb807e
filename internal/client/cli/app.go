package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/dmitrijs2005/authmaker/internal/client/client"
	"github.com/dmitrijs2005/authmaker/internal/netx"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrUsage reports a malformed command line.
var ErrUsage = errors.New("usage")

// Test seams for the avatar command.
var (
	readFile   = os.ReadFile
	uploadFile = netx.UploadToPresignedURL
)

type userClient interface {
	Ping(ctx context.Context) error
	Register(ctx context.Context, r client.RegisterRequest) (*structpb.Struct, error)
	GetUser(ctx context.Context, userID string) (*structpb.Struct, error)
	SetWebsiteURL(ctx context.Context, userID, url string) (*structpb.Struct, error)
	GetActiveScopes(ctx context.Context, userID string) ([]string, error)
	GetAccounts(ctx context.Context, userID string) (*structpb.Struct, error)
	Activate(ctx context.Context, userID, hash string) (*structpb.Struct, error)
	ChangeStatus(ctx context.Context, userID, to string) (*structpb.Struct, error)
	FirstRegisteredUser(ctx context.Context, key string, byConfig bool) (*structpb.Struct, error)
	PresignAvatarUpload(ctx context.Context, userID string) (*client.AvatarUpload, error)
	ConfirmAvatar(ctx context.Context, userID, key string) (*structpb.Struct, error)
}

type App struct {
	client userClient
	out    io.Writer
}

func NewApp(c userClient, out io.Writer) *App {
	return &App{client: c, out: out}
}

const helpText = `Available commands:
  register [-client id] [-email e] [-website url] [-display name] [-offline-email e] [-admin] <username>
  show <user-id>
  website <user-id> <url>
  scopes <user-id>
  accounts <user-id>
  activate <user-id> <activation-hash>
  status <user-id> <status>
  first [-config] <client-id | config-id>
  avatar <user-id> <image-file>
  ping
  help`

// Run executes the command named by args[0].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.out, helpText)
		return fmt.Errorf("%w: no command given", ErrUsage)
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "help":
		fmt.Fprintln(a.out, helpText)
		return nil
	case "ping":
		if err := a.client.Ping(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "OK")
		return nil
	case "register":
		return a.register(ctx, rest)
	case "show":
		return a.withUser(rest, 0, func(id string, _ []string) (proto.Message, error) {
			return a.client.GetUser(ctx, id)
		})
	case "website":
		return a.withUser(rest, 1, func(id string, p []string) (proto.Message, error) {
			return a.client.SetWebsiteURL(ctx, id, p[0])
		})
	case "accounts":
		return a.withUser(rest, 0, func(id string, _ []string) (proto.Message, error) {
			return a.client.GetAccounts(ctx, id)
		})
	case "activate":
		return a.withUser(rest, 1, func(id string, p []string) (proto.Message, error) {
			return a.client.Activate(ctx, id, p[0])
		})
	case "status":
		return a.withUser(rest, 1, func(id string, p []string) (proto.Message, error) {
			return a.client.ChangeStatus(ctx, id, p[0])
		})
	case "scopes":
		return a.scopes(ctx, rest)
	case "first":
		return a.first(ctx, rest)
	case "avatar":
		return a.avatar(ctx, rest)
	default:
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

// withUser checks that args hold a user ID followed by exactly extra
// values, then prints the result of fn.
func (a *App) withUser(args []string, extra int, fn func(id string, params []string) (proto.Message, error)) error {
	if len(args) != 1+extra || strings.TrimSpace(args[0]) == "" {
		return fmt.Errorf("%w: expected <user-id> and %d more argument(s)", ErrUsage, extra)
	}
	m, err := fn(args[0], args[1:])
	if err != nil {
		return err
	}
	return a.print(m)
}

func (a *App) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(a.out)

	var r client.RegisterRequest
	fs.StringVar(&r.ClientID, "client", "", "client (tenant) ID")
	fs.StringVar(&r.Email, "email", "", "email address")
	fs.StringVar(&r.WebsiteURL, "website", "", "website URL")
	fs.StringVar(&r.DisplayName, "display", "", "display name")
	fs.StringVar(&r.OfflineEmail, "offline-email", "", "offline notification email")
	fs.BoolVar(&r.IsAdmin, "admin", false, "grant admin flag")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: register expects exactly one <username>", ErrUsage)
	}
	r.UserName = fs.Arg(0)

	pw, err := GetPassword(a.out)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	r.Password = string(pw)

	resp, err := a.client.Register(ctx, r)
	if err != nil {
		return err
	}
	return a.print(resp)
}

func (a *App) scopes(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: scopes expects <user-id>", ErrUsage)
	}
	scopes, err := a.client.GetActiveScopes(ctx, args[0])
	if err != nil {
		return err
	}
	if len(scopes) == 0 {
		fmt.Fprintln(a.out, "(no active scopes)")
		return nil
	}
	for _, s := range scopes {
		fmt.Fprintln(a.out, s)
	}
	return nil
}

func (a *App) first(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("first", flag.ContinueOnError)
	fs.SetOutput(a.out)
	byConfig := fs.Bool("config", false, "look up by site config ID instead of client ID")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: first expects one key", ErrUsage)
	}

	resp, err := a.client.FirstRegisteredUser(ctx, fs.Arg(0), *byConfig)
	if err != nil {
		return err
	}
	return a.print(resp)
}

// avatar uploads a local image through a presigned PUT and then points the
// user's avatar at it.
func (a *App) avatar(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: avatar expects <user-id> <image-file>", ErrUsage)
	}
	userID, path := args[0], args[1]

	data, err := readFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	up, err := a.client.PresignAvatarUpload(ctx, userID)
	if err != nil {
		return err
	}
	if err := uploadFile(ctx, up.URL, http.DetectContentType(data), data); err != nil {
		return fmt.Errorf("upload avatar: %w", err)
	}

	resp, err := a.client.ConfirmAvatar(ctx, userID, up.Key)
	if err != nil {
		return err
	}
	return a.print(resp)
}

func (a *App) print(m proto.Message) error {
	b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	_, err = fmt.Fprintln(a.out, string(b))
	return err
}
