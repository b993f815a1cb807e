// Package api describes the authmaker.v1.Users gRPC contract shared by the
// server and the CLI client. Requests and responses are
// google.protobuf.Struct messages; the keys below name their fields.
package api

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "authmaker.v1.Users"

const (
	MethodPing                = "Ping"
	MethodRegisterUser        = "RegisterUser"
	MethodGetUser             = "GetUser"
	MethodSetWebsiteURL       = "SetWebsiteURL"
	MethodAttachConfig        = "AttachConfig"
	MethodGetActiveScopes     = "GetActiveScopes"
	MethodGetAccounts         = "GetAccounts"
	MethodFirstRegisteredUser = "FirstRegisteredUser"
	MethodChangeStatus        = "ChangeStatus"
	MethodActivate            = "Activate"
	MethodUpdatePreferences   = "UpdatePreferences"
	MethodRecordLogin         = "RecordLogin"
	MethodPresignAvatarUpload = "PresignAvatarUpload"
	MethodConfirmAvatar       = "ConfirmAvatar"
)

// Request and response field keys.
const (
	FieldUserID            = "user_id"
	FieldUserName          = "username"
	FieldClientID          = "client_id"
	FieldPassword          = "password"
	FieldDisplayName       = "display_name"
	FieldEmail             = "email"
	FieldOfflineEmail      = "offline_email"
	FieldWebsiteURL        = "website_url"
	FieldCleanURL          = "clean_url"
	FieldIsAdmin           = "is_admin"
	FieldConfigID          = "config_id"
	FieldStatus            = "status"
	FieldActivationHash    = "activation_hash"
	FieldPreferences       = "preferences"
	FieldInfo              = "last_known_information"
	FieldKey               = "key"
	FieldURL               = "url"
	FieldExpiresAt         = "expires_at"
	FieldUser              = "user"
	FieldConfigInvalidated = "config_invalidated"
	FieldScopes            = "scopes"
	FieldAccounts          = "accounts"
)

// FullMethod returns the gRPC path of method, e.g. "/authmaker.v1.Users/Ping".
func FullMethod(method string) string {
	return fmt.Sprintf("/%s/%s", ServiceName, method)
}

// String returns the string field key of s, or "".
func String(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

// Bool returns the bool field key of s, or false.
func Bool(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}

// Struct returns the nested struct field key of s, or nil.
func Struct(s *structpb.Struct, key string) *structpb.Struct {
	return s.GetFields()[key].GetStructValue()
}

// Strings returns the string elements of the list field key of s.
func Strings(s *structpb.Struct, key string) []string {
	values := s.GetFields()[key].GetListValue().GetValues()
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, v.GetStringValue())
	}
	return out
}

// Has reports whether s carries field key.
func Has(s *structpb.Struct, key string) bool {
	_, ok := s.GetFields()[key]
	return ok
}
