package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/authmaker/internal/api"
	"github.com/dmitrijs2005/authmaker/internal/auth"
	"github.com/dmitrijs2005/authmaker/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// tokenSlack is how long before expiry a cached token is replaced.
const tokenSlack = 10 * time.Second

// Options configures a GRPCClient.
type Options struct {
	EndpointURL    string
	Operator       string
	SecretKey      string
	TokenValidity  time.Duration
	RequestTimeout time.Duration
}

// GRPCClient talks to the authmaker.v1.Users service. It mints its own
// service tokens from the shared secret.
type GRPCClient struct {
	opts Options
	conn *grpc.ClientConn
	now  func() time.Time

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

// token returns the cached service token, minting a new one when it is
// missing, close to expiry or when force is set.
func (s *GRPCClient) token(force bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !force && s.accessToken != "" && now.Add(tokenSlack).Before(s.expiresAt) {
		return s.accessToken, nil
	}

	t, err := auth.GenerateToken(s.opts.Operator, []byte(s.opts.SecretKey), s.opts.TokenValidity)
	if err != nil {
		return "", fmt.Errorf("mint token: %w", err)
	}
	s.accessToken = t
	s.expiresAt = now.Add(s.opts.TokenValidity)
	return t, nil
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {

	token, err := s.token(false)
	if err != nil {
		return err
	}

	err = invoker(withAccessToken(ctx, token), method, req, reply, cc, opts...)
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Unauthenticated || st.Message() != common.ErrTokenExpired.Error() {
		return err
	}

	// server clock is ahead of ours; mint a fresh token and retry once
	token, terr := s.token(true)
	if terr != nil {
		return terr
	}
	return invoker(withAccessToken(ctx, token), method, req, reply, cc, opts...)
}

// NewGRPCClient dials the endpoint lazily. Extra dial options are appended
// after the defaults.
func NewGRPCClient(o Options, extra ...grpc.DialOption) (*GRPCClient, error) {
	if o.Operator == "" {
		return nil, errors.New("operator must not be empty")
	}
	if o.TokenValidity <= 0 {
		o.TokenValidity = 5 * time.Minute
	}

	c := &GRPCClient{opts: o, now: time.Now}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, extra...)

	conn, err := grpc.NewClient(o.EndpointURL, dialOpts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCClient) call(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}

	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}

	resp := &structpb.Struct{}
	if err := s.conn.Invoke(ctx, api.FullMethod(method), req, resp); err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	resp, err := s.call(ctx, api.MethodPing, nil)
	if err != nil {
		return err
	}
	if api.String(resp, api.FieldStatus) != "OK" {
		return ErrUnavailable
	}
	return nil
}

// RegisterRequest carries the RegisterUser fields.
type RegisterRequest struct {
	UserName     string
	ClientID     string
	Password     string
	DisplayName  string
	Email        string
	OfflineEmail string
	WebsiteURL   string
	IsAdmin      bool
}

func (s *GRPCClient) Register(ctx context.Context, r RegisterRequest) (*structpb.Struct, error) {
	return s.call(ctx, api.MethodRegisterUser, map[string]any{
		api.FieldUserName:     r.UserName,
		api.FieldClientID:     r.ClientID,
		api.FieldPassword:     r.Password,
		api.FieldDisplayName:  r.DisplayName,
		api.FieldEmail:        r.Email,
		api.FieldOfflineEmail: r.OfflineEmail,
		api.FieldWebsiteURL:   r.WebsiteURL,
		api.FieldIsAdmin:      r.IsAdmin,
	})
}

func (s *GRPCClient) GetUser(ctx context.Context, userID string) (*structpb.Struct, error) {
	return s.call(ctx, api.MethodGetUser, map[string]any{api.FieldUserID: userID})
}

func (s *GRPCClient) SetWebsiteURL(ctx context.Context, userID, url string) (*structpb.Struct, error) {
	return s.call(ctx, api.MethodSetWebsiteURL, map[string]any{
		api.FieldUserID:     userID,
		api.FieldWebsiteURL: url,
	})
}

func (s *GRPCClient) GetActiveScopes(ctx context.Context, userID string) ([]string, error) {
	resp, err := s.call(ctx, api.MethodGetActiveScopes, map[string]any{api.FieldUserID: userID})
	if err != nil {
		return nil, err
	}
	return api.Strings(resp, api.FieldScopes), nil
}

func (s *GRPCClient) GetAccounts(ctx context.Context, userID string) (*structpb.Struct, error) {
	return s.call(ctx, api.MethodGetAccounts, map[string]any{api.FieldUserID: userID})
}

func (s *GRPCClient) Activate(ctx context.Context, userID, hash string) (*structpb.Struct, error) {
	return s.call(ctx, api.MethodActivate, map[string]any{
		api.FieldUserID:         userID,
		api.FieldActivationHash: hash,
	})
}

func (s *GRPCClient) ChangeStatus(ctx context.Context, userID, to string) (*structpb.Struct, error) {
	return s.call(ctx, api.MethodChangeStatus, map[string]any{
		api.FieldUserID: userID,
		api.FieldStatus: to,
	})
}

// FirstRegisteredUser looks up by client ID; with byConfig set the key is a
// site config ID instead.
func (s *GRPCClient) FirstRegisteredUser(ctx context.Context, key string, byConfig bool) (*structpb.Struct, error) {
	field := api.FieldClientID
	if byConfig {
		field = api.FieldConfigID
	}
	return s.call(ctx, api.MethodFirstRegisteredUser, map[string]any{field: key})
}

// AvatarUpload is a presigned PUT returned by PresignAvatarUpload.
type AvatarUpload struct {
	Key       string
	URL       string
	ExpiresAt string
}

func (s *GRPCClient) PresignAvatarUpload(ctx context.Context, userID string) (*AvatarUpload, error) {
	resp, err := s.call(ctx, api.MethodPresignAvatarUpload, map[string]any{api.FieldUserID: userID})
	if err != nil {
		return nil, err
	}
	up := &AvatarUpload{
		Key:       api.String(resp, api.FieldKey),
		URL:       api.String(resp, api.FieldURL),
		ExpiresAt: api.String(resp, api.FieldExpiresAt),
	}
	if up.Key == "" || up.URL == "" {
		return nil, fmt.Errorf("presign response is missing key or url")
	}
	return up, nil
}

func (s *GRPCClient) ConfirmAvatar(ctx context.Context, userID, key string) (*structpb.Struct, error) {
	return s.call(ctx, api.MethodConfirmAvatar, map[string]any{
		api.FieldUserID: userID,
		api.FieldKey:    key,
	})
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.NotFound:
		return fmt.Errorf("%w: %s", common.ErrorNotFound, st.Message())
	case codes.AlreadyExists:
		return common.ErrDuplicateUser
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", common.ErrorValidation, st.Message())
	case codes.FailedPrecondition:
		if strings.Contains(st.Message(), common.ErrInvalidActivation.Error()) {
			return common.ErrInvalidActivation
		}
		return fmt.Errorf("%w: %s", common.ErrInvalidStatusTransition, st.Message())
	case codes.DataLoss:
		return common.ErrDanglingReference
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
