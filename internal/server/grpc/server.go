// Package grpc exposes the user and scope services over gRPC as the
// authmaker.v1.Users service.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/authmaker/internal/api"
	"github.com/dmitrijs2005/authmaker/internal/logging"
	"github.com/dmitrijs2005/authmaker/internal/server/models"
	"github.com/dmitrijs2005/authmaker/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

type userSvc interface {
	Register(ctx context.Context, p services.RegisterParams) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	SetWebsiteURL(ctx context.Context, id, raw string) (*models.User, bool, error)
	AttachConfig(ctx context.Context, id, configID string) (*models.User, error)
	GetActiveScopes(ctx context.Context, id string) ([]string, error)
	GetAccounts(ctx context.Context, id string) ([]*models.Account, error)
	FirstRegisteredUser(ctx context.Context, clientID string) (*models.User, error)
	FirstRegisteredUserForConfig(ctx context.Context, configID string) (*models.User, error)
	ChangeStatus(ctx context.Context, id string, to models.Status) (*models.User, error)
	Activate(ctx context.Context, id, hash string) (*models.User, error)
	UpdatePreferences(ctx context.Context, id string, prefs models.Preferences) (*models.User, error)
	RecordLogin(ctx context.Context, id string, info models.LastKnownInformation) (*models.User, error)
}

type avatarSvc interface {
	PresignAvatarUpload(ctx context.Context, userID string) (*services.AvatarUpload, error)
	ConfirmAvatar(ctx context.Context, userID, key string) (*models.User, error)
}

type GRPCServer struct {
	address   string
	users     userSvc
	avatars   avatarSvc
	logger    logging.Logger
	jwtSecret []byte
}

func NewGRPCServer(a string, l logging.Logger, us userSvc, as avatarSvc, secretKey string) (*GRPCServer, error) {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		users:     us,
		avatars:   as,
		jwtSecret: []byte(secretKey),
	}, nil
}

// usersServer is the handler type checked by grpc.Server.RegisterService.
type usersServer interface {
	Ping(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type handlerFunc func(s *GRPCServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unary(method string, h handlerFunc) grpc.MethodDesc {
	fullMethod := api.FullMethod(method)
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(*GRPCServer)
			if interceptor == nil {
				return h(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return h(s, ctx, req.(*structpb.Struct))
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: api.ServiceName,
	HandlerType: (*usersServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(api.MethodPing, (*GRPCServer).Ping),
		unary(api.MethodRegisterUser, (*GRPCServer).RegisterUser),
		unary(api.MethodGetUser, (*GRPCServer).GetUser),
		unary(api.MethodSetWebsiteURL, (*GRPCServer).SetWebsiteURL),
		unary(api.MethodAttachConfig, (*GRPCServer).AttachConfig),
		unary(api.MethodGetActiveScopes, (*GRPCServer).GetActiveScopes),
		unary(api.MethodGetAccounts, (*GRPCServer).GetAccounts),
		unary(api.MethodFirstRegisteredUser, (*GRPCServer).FirstRegisteredUser),
		unary(api.MethodChangeStatus, (*GRPCServer).ChangeStatus),
		unary(api.MethodActivate, (*GRPCServer).Activate),
		unary(api.MethodUpdatePreferences, (*GRPCServer).UpdatePreferences),
		unary(api.MethodRecordLogin, (*GRPCServer).RecordLogin),
		unary(api.MethodPresignAvatarUpload, (*GRPCServer).PresignAvatarUpload),
		unary(api.MethodConfirmAvatar, (*GRPCServer).ConfirmAvatar),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "authmaker/v1/users",
}

// newServer builds a grpc.Server with the interceptor chain and the
// Users service registered.
func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))
	srv.RegisterService(&serviceDesc, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.serve(ctx, listen)
}

func (s *GRPCServer) serve(ctx context.Context, listen net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
