package grpc

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/authmaker/internal/api"
	"github.com/dmitrijs2005/authmaker/internal/server/models"
	"github.com/dmitrijs2005/authmaker/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func (s *GRPCServer) Ping(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return newStruct(map[string]any{api.FieldStatus: "OK"})
}

func (s *GRPCServer) RegisterUser(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	s.logger.Info(ctx, "Registration request", "username", api.String(req, api.FieldUserName))

	u, err := s.users.Register(ctx, services.RegisterParams{
		UserName:     api.String(req, api.FieldUserName),
		ClientID:     api.String(req, api.FieldClientID),
		Password:     api.String(req, api.FieldPassword),
		DisplayName:  api.String(req, api.FieldDisplayName),
		Email:        api.String(req, api.FieldEmail),
		OfflineEmail: api.String(req, api.FieldOfflineEmail),
		WebsiteURL:   api.String(req, api.FieldWebsiteURL),
		IsAdmin:      api.Bool(req, api.FieldIsAdmin),
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	s.logger.Info(ctx, "Registered", "user_id", u.ID)
	return userResponse(u)
}

func (s *GRPCServer) GetUser(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := userID(req)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetUser(ctx, id)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return userResponse(u)
}

func (s *GRPCServer) SetWebsiteURL(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := userID(req)
	if err != nil {
		return nil, err
	}
	u, invalidated, err := s.users.SetWebsiteURL(ctx, id, api.String(req, api.FieldWebsiteURL))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return newStruct(map[string]any{
		api.FieldUser:              userFields(u),
		api.FieldConfigInvalidated: invalidated,
	})
}

func (s *GRPCServer) AttachConfig(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := userID(req)
	if err != nil {
		return nil, err
	}
	u, err := s.users.AttachConfig(ctx, id, api.String(req, api.FieldConfigID))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return userResponse(u)
}

func (s *GRPCServer) GetActiveScopes(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := userID(req)
	if err != nil {
		return nil, err
	}
	scopes, err := s.users.GetActiveScopes(ctx, id)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	list := make([]any, 0, len(scopes))
	for _, sc := range scopes {
		list = append(list, sc)
	}
	return newStruct(map[string]any{api.FieldScopes: list})
}

func (s *GRPCServer) GetAccounts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := userID(req)
	if err != nil {
		return nil, err
	}
	accounts, err := s.users.GetAccounts(ctx, id)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	list := make([]any, 0, len(accounts))
	for _, a := range accounts {
		list = append(list, accountFields(a))
	}
	return newStruct(map[string]any{api.FieldAccounts: list})
}

// FirstRegisteredUser looks up by client_id, or by config_id when no
// client_id is given.
func (s *GRPCServer) FirstRegisteredUser(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	clientID := api.String(req, api.FieldClientID)
	configID := api.String(req, api.FieldConfigID)

	var (
		u   *models.User
		err error
	)
	switch {
	case clientID != "":
		u, err = s.users.FirstRegisteredUser(ctx, clientID)
	case configID != "":
		u, err = s.users.FirstRegisteredUserForConfig(ctx, configID)
	default:
		return nil, status.Error(codes.InvalidArgument, "client_id or config_id is required")
	}
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return userResponse(u)
}

func (s *GRPCServer) ChangeStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := userID(req)
	if err != nil {
		return nil, err
	}
	to := models.Status(strings.ToLower(api.String(req, api.FieldStatus)))
	u, err := s.users.ChangeStatus(ctx, id, to)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return userResponse(u)
}

func (s *GRPCServer) Activate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := userID(req)
	if err != nil {
		return nil, err
	}
	u, err := s.users.Activate(ctx, id, api.String(req, api.FieldActivationHash))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return userResponse(u)
}

// UpdatePreferences replaces the preferences as a whole; keys missing from
// the request take their default value.
func (s *GRPCServer) UpdatePreferences(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := userID(req)
	if err != nil {
		return nil, err
	}
	u, err := s.users.UpdatePreferences(ctx, id, preferencesFrom(api.Struct(req, api.FieldPreferences)))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return userResponse(u)
}

func (s *GRPCServer) RecordLogin(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := userID(req)
	if err != nil {
		return nil, err
	}
	u, err := s.users.RecordLogin(ctx, id, infoFrom(api.Struct(req, api.FieldInfo)))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return userResponse(u)
}

func (s *GRPCServer) PresignAvatarUpload(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := userID(req)
	if err != nil {
		return nil, err
	}
	up, err := s.avatars.PresignAvatarUpload(ctx, id)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return newStruct(map[string]any{
		api.FieldKey:       up.Key,
		api.FieldURL:       up.URL,
		api.FieldExpiresAt: formatTime(up.ExpiresAt),
	})
}

func (s *GRPCServer) ConfirmAvatar(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := userID(req)
	if err != nil {
		return nil, err
	}
	u, err := s.avatars.ConfirmAvatar(ctx, id, api.String(req, api.FieldKey))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return userResponse(u)
}
