package common

// AuthorizationHeaderName carries the API token as "Token <key>".
const AuthorizationHeaderName = "Authorization"

// AuthorizationScheme is the keyword preceding the key in the header.
const AuthorizationScheme = "Token"

// AuthTokenSize is the number of random bytes behind an API token key
// (hex-encoded to 40 characters).
const AuthTokenSize = 20
