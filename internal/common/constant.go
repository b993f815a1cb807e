package common

// AccessTokenHeaderName is the gRPC metadata key carrying the service token.
const AccessTokenHeaderName = "access_token"
