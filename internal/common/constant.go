package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// session token on authenticated calls.
const AccessTokenHeaderName = "access_token"
