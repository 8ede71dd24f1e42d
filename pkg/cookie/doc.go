// Package cookie writes and reads HTTP cookies with shared defaults and
// optional HMAC-SHA256 signatures.
//
// Signatures cover the cookie name and value, so a value signed for one
// cookie cannot be replayed under another name. Several secrets may be
// configured to rotate keys: the first signs new cookies and all of them
// are accepted on read.
//
//	m, err := cookie.New([]string{os.Getenv("COOKIE_SECRET")}, cookie.WithSecure(true))
//	m.SetSigned(w, "sid", token)
//	token, err := m.GetSigned(r, "sid")
package cookie
