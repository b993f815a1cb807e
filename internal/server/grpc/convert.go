package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/authmaker/internal/api"
	"github.com/dmitrijs2005/authmaker/internal/common"
	"github.com/dmitrijs2005/authmaker/internal/server/models"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func userFields(u *models.User) map[string]any {
	var configID, lastLogin any
	if u.ConfigRef != nil {
		configID = *u.ConfigRef
	}
	if u.LastLogin != nil {
		lastLogin = formatTime(*u.LastLogin)
	}
	clean, _ := u.CleanURL()

	identities := make([]any, 0, len(u.ExternalIdentities))
	for _, id := range u.ExternalIdentities {
		identities = append(identities, id)
	}

	// password, activation and reset hashes never leave the server
	return map[string]any{
		"id":                  u.ID,
		api.FieldUserName:     u.UserName,
		api.FieldClientID:     u.ClientID,
		api.FieldDisplayName:  u.DisplayName,
		api.FieldEmail:        u.Email,
		api.FieldOfflineEmail: u.OfflineEmail,
		api.FieldWebsiteURL:   u.WebsiteURL,
		api.FieldCleanURL:     clean,
		api.FieldConfigID:     configID,
		api.FieldStatus:       string(u.Status),
		"activated":           u.Activated,
		api.FieldIsAdmin:      u.IsAdmin,
		"logged_in":           u.LoggedIn,
		"avatar_url":          u.AvatarURL,
		"created_at":          formatTime(u.CreatedAt),
		"updated_at":          formatTime(u.UpdatedAt),
		"last_login":          lastLogin,
		api.FieldInfo: map[string]any{
			"timezone":  u.LastKnownInformation.Timezone,
			"localTime": u.LastKnownInformation.LocalTime,
			"browser":   u.LastKnownInformation.Browser,
			"device":    u.LastKnownInformation.Device,
			"location":  u.LastKnownInformation.Location,
			"os":        u.LastKnownInformation.OS,
		},
		api.FieldPreferences: map[string]any{
			"tabNotify":    u.Preferences.TabNotify,
			"soundNotify":  u.Preferences.SoundNotify,
			"chromeNotify": u.Preferences.ChromeNotify,
		},
		"external_identities": identities,
	}
}

func accountFields(a *models.Account) map[string]any {
	out := map[string]any{"id": a.ID, "name": a.Name}
	if a.Plan == nil {
		return out
	}
	scopes := make([]any, 0, len(a.Plan.Scopes))
	for _, sc := range a.Plan.Scopes {
		scopes = append(scopes, sc.Scope)
	}
	out["plan"] = map[string]any{
		"id":            a.Plan.ID,
		"name":          a.Plan.Name,
		"expiry_date":   formatTime(a.Plan.ExpiryDate),
		api.FieldScopes: scopes,
	}
	return out
}

func preferencesFrom(s *structpb.Struct) models.Preferences {
	p := models.DefaultPreferences()
	if api.Has(s, "tabNotify") {
		p.TabNotify = api.Bool(s, "tabNotify")
	}
	if api.Has(s, "soundNotify") {
		p.SoundNotify = api.Bool(s, "soundNotify")
	}
	if api.Has(s, "chromeNotify") {
		p.ChromeNotify = api.Bool(s, "chromeNotify")
	}
	return p
}

func infoFrom(s *structpb.Struct) models.LastKnownInformation {
	return models.LastKnownInformation{
		Timezone:  api.String(s, "timezone"),
		LocalTime: api.String(s, "localTime"),
		Browser:   api.String(s, "browser"),
		Device:    api.String(s, "device"),
		Location:  api.String(s, "location"),
		OS:        api.String(s, "os"),
	}
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

func userResponse(u *models.User) (*structpb.Struct, error) {
	return newStruct(map[string]any{api.FieldUser: userFields(u)})
}

// userID extracts and validates the user_id request field.
func userID(req *structpb.Struct) (string, error) {
	id := api.String(req, api.FieldUserID)
	if _, err := uuid.Parse(id); err != nil {
		return "", status.Errorf(codes.InvalidArgument, "invalid %s %q", api.FieldUserID, id)
	}
	return id, nil
}

// toStatus maps service errors onto gRPC status codes. Unknown errors are
// reported as Internal without detail.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, common.ErrInvalidURL), errors.Is(err, common.ErrorValidation):
		code = codes.InvalidArgument
	case errors.Is(err, common.ErrStoreUnavailable):
		code = codes.Unavailable
	case errors.Is(err, common.ErrDanglingReference):
		code = codes.DataLoss
	case errors.Is(err, common.ErrDuplicateUser):
		code = codes.AlreadyExists
	case errors.Is(err, common.ErrorNotFound):
		code = codes.NotFound
	case errors.Is(err, common.ErrInvalidStatusTransition), errors.Is(err, common.ErrInvalidActivation):
		code = codes.FailedPrecondition
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrTokenExpired):
		code = codes.Unauthenticated
	default:
		s.logger.Error(ctx, "request failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}

	if code == codes.Unavailable || code == codes.DataLoss {
		s.logger.Error(ctx, "request failed", "error", err)
		return status.Error(code, code.String())
	}
	return status.Error(code, err.Error())
}
