package crm

import "encoding/base64"

// BasicAuthHeader returns the Authorization header value for an API key pair.
func BasicAuthHeader(key, secret string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(key+":"+secret))
}
